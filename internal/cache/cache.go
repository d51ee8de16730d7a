package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ResultCache is a time-boxed in-memory cache for Admin API query results.
// Entries expire individually; a background janitor sweeps stale entries so
// the map does not grow unbounded between reads.
type ResultCache struct {
	data       sync.Map
	defaultTTL time.Duration
	cancel     context.CancelFunc
}

type entry struct {
	value      []byte
	expiration time.Time
}

const janitorInterval = time.Minute

func New(defaultTTL time.Duration) *ResultCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ResultCache{
		defaultTTL: defaultTTL,
		cancel:     cancel,
	}
	go c.sweep(ctx)
	return c
}

// Key derives a stable cache key from the shop and the query text plus its
// encoded variables.
func Key(shopDomain, query, variables string) string {
	sum := sha256.Sum256([]byte(query + "\x00" + variables))
	return shopDomain + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value and whether it was present and fresh. Expired
// entries are deleted lazily on access.
func (c *ResultCache) Get(key string) ([]byte, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if time.Now().After(e.expiration) {
		c.data.Delete(key)
		return nil, false
	}
	return e.value, true
}

// Set stores a value under the key. A zero ttl uses the cache default.
func (c *ResultCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.data.Store(key, entry{value: value, expiration: time.Now().Add(ttl)})
}

// Invalidate drops every entry belonging to the shop. Used when a shop
// uninstalls or its data changes via webhook.
func (c *ResultCache) Invalidate(shopDomain string) {
	prefix := shopDomain + ":"
	c.data.Range(func(k, _ any) bool {
		if key, ok := k.(string); ok && len(key) > len(prefix) && key[:len(prefix)] == prefix {
			c.data.Delete(k)
		}
		return true
	})
}

// Close stops the janitor goroutine.
func (c *ResultCache) Close() {
	c.cancel()
}

func (c *ResultCache) sweep(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			c.data.Range(func(k, v any) bool {
				if e, ok := v.(entry); ok && now.After(e.expiration) {
					c.data.Delete(k)
				}
				return true
			})
		}
	}
}
