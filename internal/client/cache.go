package client

import (
	"sync"
	"time"
)

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// Cache holds raw GET responses grouped by resource, so a change to
// "products" drops every cached products query at once.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]map[string]cacheEntry
	now     func() time.Time
}

// NewCache returns a cache whose entries live for ttl. ttl <= 0 disables
// caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: map[string]map[string]cacheEntry{}, now: time.Now}
}

// Get returns the cached body for key under resource.
func (c *Cache) Get(resource, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[resource][key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expires) {
		delete(c.entries[resource], key)
		return nil, false
	}
	return e.data, true
}

// Put stores data for key under resource.
func (c *Cache) Put(resource, key string, data []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[resource]
	if !ok {
		m = map[string]cacheEntry{}
		c.entries[resource] = m
	}
	m[key] = cacheEntry{data: data, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every entry of the given resources.
func (c *Cache) Invalidate(resources ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		delete(c.entries, r)
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = map[string]map[string]cacheEntry{}
	c.mu.Unlock()
}

// Len counts cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.entries {
		n += len(m)
	}
	return n
}
