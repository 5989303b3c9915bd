package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
	lastUsed time.Time
}

func (m *memoryItem) expired() bool {
	return time.Now().After(m.expireAt)
}

// MemoryStore implements Store in process memory with TTL expiry and
// LRU eviction once the entry cap is reached.
type MemoryStore struct {
	mu            sync.Mutex
	data          map[string]*memoryItem
	maxEntries    int
	cleanupTicker *time.Ticker
}

// NewMemoryStore creates an in-memory store and starts its sweep loop.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := &MemoryConfig{
		MaxEntries:      1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ms := &MemoryStore{
		data:          make(map[string]*memoryItem),
		maxEntries:    cfg.MaxEntries,
		cleanupTicker: time.NewTicker(cfg.CleanupInterval),
	}
	go ms.sweep()
	return ms
}

func (ms *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if len(ms.data) >= ms.maxEntries {
		ms.evictLRU()
	}

	expireAt := time.Now().Add(ttl)
	if ttl <= 0 {
		expireAt = time.Now().Add(24 * time.Hour)
	}
	ms.data[key] = &memoryItem{value: value, expireAt: expireAt, lastUsed: time.Now()}
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	item, ok := ms.data[key]
	if !ok || item.expired() {
		if ok {
			delete(ms.data, key)
		}
		return nil, ErrCacheMiss
	}
	item.lastUsed = time.Now()
	return item.value, nil
}

func (ms *MemoryStore) Delete(_ context.Context, keys ...string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, key := range keys {
		delete(ms.data, key)
	}
	return nil
}

func (ms *MemoryStore) evictLRU() {
	var (
		oldestKey  string
		oldestTime = time.Now()
	)
	for key, item := range ms.data {
		if item.lastUsed.Before(oldestTime) {
			oldestTime = item.lastUsed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(ms.data, oldestKey)
	}
}

func (ms *MemoryStore) sweep() {
	for range ms.cleanupTicker.C {
		ms.mu.Lock()
		for key, item := range ms.data {
			if item.expired() {
				delete(ms.data, key)
			}
		}
		ms.mu.Unlock()
	}
}

// Close stops the sweep loop.
func (ms *MemoryStore) Close() error {
	if ms.cleanupTicker != nil {
		ms.cleanupTicker.Stop()
	}
	return nil
}
