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

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	t.Cleanup(c.StopGC)

	t.Run("SetAndGet", func(t *testing.T) {
		c.Set("key1", "value1", time.Minute)
		v, ok := c.Get("key1")
		require.True(t, ok)
		assert.Equal(t, "value1", v)

		c.Set("key2", "value2", 10*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		_, ok = c.Get("key2")
		assert.False(t, ok)

		c.Set("forever", 1, 0)
		_, ok = c.Get("forever")
		assert.True(t, ok)
	})

	t.Run("Delete", func(t *testing.T) {
		c.Set("key1", "value1", time.Minute)
		c.Delete("key1")
		_, ok := c.Get("key1")
		assert.False(t, ok)
	})

	t.Run("DeleteByPrefix", func(t *testing.T) {
		c.Set("prefix_key1", "value1", time.Minute)
		c.Set("prefix_key2", "value2", time.Minute)
		c.Set("other_key", "value3", time.Minute)

		c.DeleteByPrefix("prefix_")
		_, ok := c.Get("prefix_key1")
		assert.False(t, ok)
		_, ok = c.Get("prefix_key2")
		assert.False(t, ok)
		v, ok := c.Get("other_key")
		require.True(t, ok)
		assert.Equal(t, "value3", v)
	})

	t.Run("Clear", func(t *testing.T) {
		c.Set("a", 1, 0)
		c.Clear()
		assert.Equal(t, 0, c.Len())
	})
}

func TestMemoryCacheGC(t *testing.T) {
	c := NewMemoryCache(5 * time.Millisecond)
	t.Cleanup(c.StopGC)

	c.Set("permanent", 1, 0)
	c.StartGC()
	c.mu.RLock()
	assert.Nil(t, c.ticker, "no collector without expirable values")
	c.mu.RUnlock()

	c.Set("short", 2, time.Millisecond)
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, time.Millisecond)
	// The collector stops once nothing can expire.
	require.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.ticker == nil
	}, time.Second, time.Millisecond)

	c.Set("again", 3, time.Hour)
	c.StopGC()
	c.StopGC()
	v, ok := c.Get("again")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}
