package repository

import (
	"context"
	"encoding/json"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
	"FinArb/pkg/cache"
)

// CachedResults adapts a cache.Store to the domain ResultCache
// contract, serializing canonical results as JSON.
type CachedResults struct {
	store cache.Store
}

func NewCachedResults(store cache.Store) repository.ResultCache {
	return &CachedResults{store: store}
}

func (c *CachedResults) Get(ctx context.Context, capability models.Capability, entity string) (*models.CanonicalResult, bool) {
	data, err := c.store.Get(ctx, resultKey(capability, entity))
	if err != nil {
		return nil, false
	}
	var res models.CanonicalResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *CachedResults) Set(ctx context.Context, res *models.CanonicalResult, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, resultKey(res.Capability, res.Entity), data, ttl)
}

func resultKey(capability models.Capability, entity string) string {
	return "result:" + string(capability) + ":" + entity
}
