/*
 * Copyright 2024 The RuleGo Authors.
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

package config

import (
	"errors"
	"sort"
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/builtin/advice"
	"github.com/rulego/weaver/engine"
)

// DefaultRegistry resolves the built-in aspect and interceptor types.
//
//	aspect types:      debug, metrics, rateLimiter, concurrencyLimiter, jsGuard, cache, bulkhead
//	interceptor types: debug, metrics, tracing, recover
//
// Aspect types are prototypes: the properties configured for an aspect
// definition are injected into every instance, e.g.
//
//	properties:
//	  limits: {max: 10}
//	aspects:
//	  - {name: limits, scope: PER_CLASS, type: concurrencyLimiter}
var DefaultRegistry = newRegistry(nil)

func init() {
	_ = DefaultRegistry.RegisterAspect("debug", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.Debug{})
	})
	_ = DefaultRegistry.RegisterAspect("metrics", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.Metrics{})
	})
	_ = DefaultRegistry.RegisterAspect("rateLimiter", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.RateLimiter{})
	})
	_ = DefaultRegistry.RegisterAspect("concurrencyLimiter", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.ConcurrencyLimiter{})
	})
	_ = DefaultRegistry.RegisterAspect("jsGuard", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.JsGuard{})
	})
	_ = DefaultRegistry.RegisterAspect("cache", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.Cache{})
	})
	_ = DefaultRegistry.RegisterAspect("bulkhead", func() types.AspectFactory {
		return engine.NewPrototypeFactory(&advice.Bulkhead{})
	})
	_ = DefaultRegistry.RegisterInterceptor("debug", func() types.Interceptor {
		return &advice.Debug{}
	})
	_ = DefaultRegistry.RegisterInterceptor("metrics", func() types.Interceptor {
		return &advice.Metrics{}
	})
	_ = DefaultRegistry.RegisterInterceptor("tracing", func() types.Interceptor {
		return &advice.Tracing{}
	})
	_ = DefaultRegistry.RegisterInterceptor("recover", func() types.Interceptor {
		return &advice.Recover{}
	})
}

// Registry maps the type names used in configuration files to constructors.
// Each constructor is called once per declaration.
type Registry struct {
	aspects      map[string]func() types.AspectFactory
	interceptors map[string]func() types.Interceptor
	parent       *Registry
	sync.RWMutex
}

// NewRegistry creates an empty registry. Names it does not know are looked
// up in DefaultRegistry.
func NewRegistry() *Registry {
	return newRegistry(DefaultRegistry)
}

func newRegistry(parent *Registry) *Registry {
	return &Registry{
		aspects:      make(map[string]func() types.AspectFactory),
		interceptors: make(map[string]func() types.Interceptor),
		parent:       parent,
	}
}

// RegisterAspect adds an aspect type.
func (r *Registry) RegisterAspect(name string, newFactory func() types.AspectFactory) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.aspects[name]; ok {
		return errors.New("the aspect type already exists. type=" + name)
	}
	r.aspects[name] = newFactory
	return nil
}

// RegisterInterceptor adds an interceptor type.
func (r *Registry) RegisterInterceptor(name string, newInterceptor func() types.Interceptor) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.interceptors[name]; ok {
		return errors.New("the interceptor type already exists. type=" + name)
	}
	r.interceptors[name] = newInterceptor
	return nil
}

// Unregister removes an aspect type and an interceptor type of the given name.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()
	delete(r.aspects, name)
	delete(r.interceptors, name)
}

// AspectTypes returns the known aspect type names, sorted.
func (r *Registry) AspectTypes() []string {
	return r.names(func(r *Registry) []string {
		names := make([]string, 0, len(r.aspects))
		for name := range r.aspects {
			names = append(names, name)
		}
		return names
	})
}

// InterceptorTypes returns the known interceptor type names, sorted.
func (r *Registry) InterceptorTypes() []string {
	return r.names(func(r *Registry) []string {
		names := make([]string, 0, len(r.interceptors))
		for name := range r.interceptors {
			names = append(names, name)
		}
		return names
	})
}

func (r *Registry) names(of func(*Registry) []string) []string {
	seen := map[string]struct{}{}
	var result []string
	for cur := r; cur != nil; cur = cur.parent {
		cur.RLock()
		for _, name := range of(cur) {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				result = append(result, name)
			}
		}
		cur.RUnlock()
	}
	sort.Strings(result)
	return result
}

func (r *Registry) aspect(name string) (func() types.AspectFactory, bool) {
	for cur := r; cur != nil; cur = cur.parent {
		cur.RLock()
		f, ok := cur.aspects[name]
		cur.RUnlock()
		if ok {
			return f, true
		}
	}
	return nil, false
}

func (r *Registry) interceptor(name string) (func() types.Interceptor, bool) {
	for cur := r; cur != nil; cur = cur.parent {
		cur.RLock()
		f, ok := cur.interceptors[name]
		cur.RUnlock()
		if ok {
			return f, true
		}
	}
	return nil, false
}
