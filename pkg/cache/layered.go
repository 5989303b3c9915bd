package cache

import (
	"context"
	"time"
)

// LayeredStore is a two-level cache: L1 process memory in front of an
// optional L2 Redis. Writes go through both; reads fill L1 from L2.
type LayeredStore struct {
	l1 *MemoryStore
	l2 Store // nil when Redis is not configured
}

// NewLayeredStore builds the layered cache. l2 may be nil.
func NewLayeredStore(l2 Store, memOpts ...MemoryOption) *LayeredStore {
	return &LayeredStore{
		l1: NewMemoryStore(memOpts...),
		l2: l2,
	}
}

func (ls *LayeredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ls.l2 != nil {
		if err := ls.l2.Set(ctx, key, value, ttl); err != nil {
			return err
		}
	}
	return ls.l1.Set(ctx, key, value, ttl)
}

func (ls *LayeredStore) Get(ctx context.Context, key string) ([]byte, error) {
	if data, err := ls.l1.Get(ctx, key); err == nil {
		return data, nil
	}
	if ls.l2 == nil {
		return nil, ErrCacheMiss
	}
	data, err := ls.l2.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = ls.l1.Set(ctx, key, data, 0)
	return data, nil
}

func (ls *LayeredStore) Delete(ctx context.Context, keys ...string) error {
	_ = ls.l1.Delete(ctx, keys...)
	if ls.l2 != nil {
		return ls.l2.Delete(ctx, keys...)
	}
	return nil
}

// Close closes both layers.
func (ls *LayeredStore) Close() error {
	_ = ls.l1.Close()
	if ls.l2 != nil {
		return ls.l2.Close()
	}
	return nil
}
