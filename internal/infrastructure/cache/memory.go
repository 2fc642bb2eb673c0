package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

const cleanupInterval = 10 * time.Minute

// cacheItem represents a single item in the cache with expiration
type cacheItem struct {
	Value      []byte
	Expiration time.Time
}

// counter is a fixed-window request counter
type counter struct {
	Count    int64
	ResetsAt time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support.
// Values are stored JSON-encoded so callers see the same bytes the Redis backend returns.
type MemoryCache struct {
	data     map[string]cacheItem
	counters map[string]counter
	mutex    sync.RWMutex
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{
		data:     make(map[string]cacheItem),
		counters: make(map[string]counter),
		stop:     make(chan struct{}),
	}

	go cache.cleanupExpired()

	return cache
}

// Get retrieves the JSON bytes stored under key
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists || time.Now().After(item.Expiration) {
		return nil, domain.ErrCacheMiss
	}

	return item.Value, nil
}

// Set stores the JSON encoding of value with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = cacheItem{
		Value:      jsonData,
		Expiration: time.Now().Add(ttl),
	}

	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return false, nil
	}

	return !time.Now().After(item.Expiration), nil
}

// Incr counts one event for key in a fixed window starting at its first event
func (c *MemoryCache) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	ctr, exists := c.counters[key]
	if !exists || !now.Before(ctr.ResetsAt) {
		ctr = counter{ResetsAt: now.Add(window)}
	}
	ctr.Count++
	c.counters[key] = ctr

	return ctr.Count, ctr.ResetsAt.Sub(now), nil
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// cleanupExpired removes expired entries and counters periodically
func (c *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired(time.Now())
		}
	}
}

func (c *MemoryCache) removeExpired(now time.Time) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, item := range c.data {
		if now.After(item.Expiration) {
			delete(c.data, key)
		}
	}
	for key, ctr := range c.counters {
		if !now.Before(ctr.ResetsAt) {
			delete(c.counters, key)
		}
	}
}

// Size returns the current number of items in the cache (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Clear removes all items and counters from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]cacheItem)
	c.counters = make(map[string]counter)
}
