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

package advice

import (
	"context"
	"sync"
	"time"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/utils/cache"
	"github.com/rulego/weaver/utils/json"
)

var _ types.Interceptor = (*Cache)(nil)

// Cache memoizes successful results per join point and argument list.
// Arguments implementing context.Context are left out of the key. Calls whose
// arguments cannot be encoded as JSON always run. Errors are never cached.
//
// Cache 按连接点和参数缓存成功的调用结果，context.Context 参数不参与缓存键。
// 无法编码为 JSON 的参数不会被缓存，错误结果也不会被缓存。
//
// Used as a PER_INSTANCE aspect, every advised object keeps its own results:
// 作为 PER_INSTANCE 切面使用时，每个被增强对象拥有独立的缓存：
//
//	def := types.NewAspectDefinition("cache", types.PerInstance,
//		engine.NewPrototypeFactory(&advice.Cache{}))
//	config := types.NewConfig(types.WithProperties("cache", map[string]interface{}{"ttl": "30s"}))
type Cache struct {
	// TTL bounds how long a result is served, 0 keeps it until invalidated.
	TTL time.Duration

	once  sync.Once
	store *cache.MemoryCache
}

// NewCache creates a cache keeping results for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{TTL: ttl}
}

func (a *Cache) Name() string {
	return "cache"
}

func (a *Cache) Invoke(inv types.Invocation) (interface{}, error) {
	key, ok := cacheKey(inv)
	if !ok {
		return inv.InvokeNext()
	}
	s := a.results()
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	result, err := inv.InvokeNext()
	if err == nil {
		s.Set(key, result, a.TTL)
	}
	return result, err
}

// Invalidate drops every result cached for the join point with the given key.
func (a *Cache) Invalidate(joinpointKey string) {
	a.results().DeleteByPrefix(joinpointKey + "|")
}

// Clear drops every cached result.
func (a *Cache) Clear() {
	a.results().Clear()
}

// Len returns the number of cached results.
func (a *Cache) Len() int {
	return a.results().Len()
}

// Close stops the expiry collector.
func (a *Cache) Close() {
	a.results().StopGC()
}

func (a *Cache) results() *cache.MemoryCache {
	a.once.Do(func() {
		a.store = cache.NewMemoryCache(a.TTL)
	})
	return a.store
}

func cacheKey(inv types.Invocation) (string, bool) {
	args := make([]interface{}, 0, len(inv.Arguments()))
	for _, arg := range inv.Arguments() {
		if _, ok := arg.(context.Context); ok {
			continue
		}
		args = append(args, arg)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", false
	}
	return inv.Joinpoint().Key() + "|" + string(data), true
}
