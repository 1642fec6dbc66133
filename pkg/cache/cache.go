package cache

import (
	"sync"
	"time"
)

// Item represents a cached item with expiration
type Item struct {
	Value      interface{}
	Expiration int64
}

// Expired checks if the cache item has expired
func (item Item) Expired() bool {
	if item.Expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > item.Expiration
}

// Options configures a Cache
type Options struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
	MaxItems          int
}

// Cache is a thread-safe in-memory cache with expiration
type Cache struct {
	items             map[string]Item
	mu                sync.RWMutex
	defaultExpiration time.Duration
	maxItems          int
	onEvicted         func(string, interface{})
	stop              chan struct{}
	stopOnce          sync.Once
}

// New creates a cache with explicit options
func New(opts Options) *Cache {
	cache := &Cache{
		items:             make(map[string]Item),
		defaultExpiration: opts.DefaultExpiration,
		maxItems:          opts.MaxItems,
		stop:              make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go cache.startCleanupTimer(opts.CleanupInterval)
	}

	return cache
}

// Set adds an item to the cache with the default expiration
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithExpiration(key, value, c.defaultExpiration)
}

// SetWithExpiration adds an item to the cache with a specific expiration time
func (c *Cache) SetWithExpiration(key string, value interface{}, d time.Duration) {
	var exp int64
	if d > 0 {
		exp = time.Now().Add(d).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item{
		Value:      value,
		Expiration: exp,
	}
}

// Get retrieves an unexpired item from the cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired() {
		return nil, false
	}

	return item.Value, true
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, found := c.items[key]; found && c.onEvicted != nil {
		c.onEvicted(key, item.Value)
	}

	delete(c.items, key)
}

// Count returns the number of items in the cache (including expired items)
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// SetOnEvicted sets the callback to be called when an item is evicted
func (c *Cache) SetOnEvicted(f func(string, interface{})) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onEvicted = f
}

// Close stops the background cleanup goroutine
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) startCleanupTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for k, v := range c.items {
		if v.Expiration > 0 && now > v.Expiration {
			if c.onEvicted != nil {
				c.onEvicted(k, v.Value)
			}
			delete(c.items, k)
		}
	}
}

// evictOldest removes the item closest to expiry. Items without expiry are
// evicted first.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime int64
	first := true

	for k, v := range c.items {
		if first || v.Expiration < oldestTime {
			oldestKey = k
			oldestTime = v.Expiration
			first = false
		}
	}

	if oldestKey == "" {
		return
	}
	if c.onEvicted != nil {
		c.onEvicted(oldestKey, c.items[oldestKey].Value)
	}
	delete(c.items, oldestKey)
}
