/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package cache provides the in-memory result store used by memoizing advice.
package cache

import (
	"strings"
	"sync"
	"time"
)

// MemoryCache stores values with an optional time to live. Expired values are
// never returned; they are swept by a background collector that runs only
// while the cache holds expirable values.
type MemoryCache struct {
	items      map[string]item
	mu         sync.RWMutex
	stopGc     chan struct{}
	ticker     *time.Ticker
	gcInterval time.Duration
}

// item expiration is a Unix nano timestamp, 0 for values that never expire.
type item struct {
	value      interface{}
	expiration int64
}

func (i item) expired(now int64) bool {
	return i.expiration > 0 && now > i.expiration
}

// NewMemoryCache creates an empty cache sweeping expired values every
// gcInterval, 5 minutes when gcInterval is not positive.
func NewMemoryCache(gcInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:      make(map[string]item),
		gcInterval: time.Minute * 5,
	}
	if gcInterval > 0 {
		c.gcInterval = gcInterval
	}
	return c
}

// Set stores value under key. A ttl of 0 keeps the value until it is deleted.
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	c.items[key] = item{value: value, expiration: expiration}
	startGC := expiration > 0 && c.ticker == nil
	c.mu.Unlock()
	if startGC {
		c.StartGC()
	}
}

// Get returns the value stored under key unless it has expired.
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	itm, ok := c.items[key]
	if !ok || itm.expired(time.Now().UnixNano()) {
		return nil, false
	}
	return itm.value, true
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// DeleteByPrefix removes every key starting with prefix.
func (c *MemoryCache) DeleteByPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// Clear removes every key.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]item)
}

// Len returns the number of stored keys, expired ones included until swept.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// StartGC starts the collector when it is not running and an expirable value
// is stored.
func (c *MemoryCache) StartGC() {
	c.mu.Lock()
	if c.ticker != nil {
		c.mu.Unlock()
		return
	}
	hasExpirable := false
	for _, itm := range c.items {
		if itm.expiration > 0 {
			hasExpirable = true
			break
		}
	}
	if !hasExpirable {
		c.mu.Unlock()
		return
	}
	ticker := time.NewTicker(c.gcInterval)
	stop := make(chan struct{})
	c.ticker, c.stopGc = ticker, stop
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !c.deleteExpired() {
					c.mu.Lock()
					if c.ticker == ticker {
						c.ticker, c.stopGc = nil, nil
					}
					c.mu.Unlock()
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopGC stops the collector. It is safe to call when the collector is not running.
func (c *MemoryCache) StopGC() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopGc != nil {
		close(c.stopGc)
		c.ticker, c.stopGc = nil, nil
	}
}

// deleteExpired sweeps expired values and reports whether expirable values remain.
func (c *MemoryCache) deleteExpired() bool {
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := false
	for k, itm := range c.items {
		if itm.expired(now) {
			delete(c.items, k)
		} else if itm.expiration > 0 {
			remaining = true
		}
	}
	return remaining
}
