package reports

import (
	"sync"
	"time"
)

// ReportCache keeps generated reports in memory for a TTL
type ReportCache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once

	hits   int64
	misses int64
}

type cacheEntry struct {
	value      *Report
	expiration time.Time
}

// CacheStats reports cache usage
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewReportCache creates a cache and starts its cleanup goroutine
func NewReportCache(ttl time.Duration) *ReportCache {
	c := &ReportCache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves an unexpired report
func (c *ReportCache) Get(key string) (*Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiration) {
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.value, true
}

// Set stores a report
func (c *ReportCache) Set(key string, value *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{value: value, expiration: time.Now().Add(c.ttl)}
}

// Delete removes a report
func (c *ReportCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
}

// Stats returns cache statistics
func (c *ReportCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{Size: len(c.data), Hits: c.hits, Misses: c.misses, HitRate: rate}
}

func (c *ReportCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *ReportCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *ReportCache) Stop() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
