package secretcache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache backend for tests and single-node
// deployments. Expired slots are reclaimed lazily on access.
type MemoryCache struct {
	mu    sync.Mutex
	slots map[Key]memorySlot
}

type memorySlot struct {
	record   Record
	deadline time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{slots: make(map[Key]memorySlot)}
}

func (c *MemoryCache) Set(_ context.Context, key Key, record *Record, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots[key] = memorySlot{
		record:   *record,
		deadline: time.Now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key Key) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[key]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	if now.After(slot.deadline) || slot.record.Expired(now) {
		delete(c.slots, key)
		return nil, ErrNotFound
	}

	record := slot.record
	return &record, nil
}

func (c *MemoryCache) Remove(_ context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.slots, key)
	return nil
}
