// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package authz

import (
	"sync"
	"time"
)

// decisionCache caches classification decisions. Paths carry ids, so the
// cache is bounded and cleared wholesale when full.
type decisionCache struct {
	ttl      time.Duration
	maxItems int
	now      func() time.Time

	mu    sync.RWMutex
	items map[string]cacheItem
}

type cacheItem struct {
	matched   bool
	expiresAt time.Time
}

func newDecisionCache(ttl time.Duration, maxItems int) *decisionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxItems <= 0 {
		maxItems = 10000
	}
	return &decisionCache{
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
		items:    make(map[string]cacheItem),
	}
}

func cacheKey(class, path, method string) string {
	return class + "\x00" + method + "\x00" + path
}

func (c *decisionCache) get(class, path, method string) (matched, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[cacheKey(class, path, method)]
	if !found || c.now().After(item.expiresAt) {
		return false, false
	}
	return item.matched, true
}

func (c *decisionCache) set(class, path, method string, matched bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.items) >= c.maxItems {
		c.items = make(map[string]cacheItem)
		AuthzCacheResets.Inc()
	}
	c.items[cacheKey(class, path, method)] = cacheItem{
		matched:   matched,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheItem)
	c.mu.Unlock()
}

func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
