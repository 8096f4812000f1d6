package services

import (
	"sync"
	"time"
)

// routeInfoCache is a small TTL cache in front of the routing backend.
// Driver fixes arrive every few seconds but quantize to the same key while
// the driver crawls a block, so most lookups never leave the process.
type routeInfoCache struct {
	cache      map[string]*routeInfoEntry
	mutex      sync.RWMutex
	maxEntries int
	ttl        time.Duration
}

type routeInfoEntry struct {
	info         *RouteInfo
	createdAt    time.Time
	lastAccessed time.Time
}

func newRouteInfoCache(maxEntries int, ttl time.Duration) *routeInfoCache {
	c := &routeInfoCache{
		cache:      make(map[string]*routeInfoEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}

	go c.cleanupExpired()

	return c
}

func (c *routeInfoCache) get(key string) (*RouteInfo, bool) {
	c.mutex.RLock()
	entry, found := c.cache[key]
	c.mutex.RUnlock()

	if !found {
		return nil, false
	}

	if time.Since(entry.createdAt) > c.ttl {
		c.mutex.Lock()
		delete(c.cache, key)
		c.mutex.Unlock()
		return nil, false
	}

	c.mutex.Lock()
	entry.lastAccessed = time.Now()
	c.mutex.Unlock()

	return entry.info, true
}

func (c *routeInfoCache) set(key string, info *RouteInfo) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.cache) >= c.maxEntries {
		c.evictOldest()
	}

	now := time.Now()
	c.cache[key] = &routeInfoEntry{
		info:         info,
		createdAt:    now,
		lastAccessed: now,
	}
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *routeInfoCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.cache {
		if oldestKey == "" || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
		}
	}

	if oldestKey != "" {
		delete(c.cache, oldestKey)
	}
}

func (c *routeInfoCache) cleanupExpired() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mutex.Lock()
		now := time.Now()
		for key, entry := range c.cache {
			if now.Sub(entry.createdAt) > c.ttl {
				delete(c.cache, key)
			}
		}
		c.mutex.Unlock()
	}
}
