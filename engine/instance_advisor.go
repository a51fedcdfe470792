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

package engine

import (
	"context"
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/metadata"
)

var _ types.InstanceAdvisor = (*ClassInstanceAdvisor)(nil)

// ClassInstanceAdvisor advises one object. It owns the object's PER_INSTANCE
// and PER_JOINPOINT aspects, its metadata and the interceptors registered on
// the object alone.
type ClassInstanceAdvisor struct {
	advisor  *ClassAdvisor
	instance interface{}
	metadata *metadata.SimpleMetaData

	mu           sync.Mutex
	perInstance  map[*types.AspectDefinition]interface{}
	perJoinpoint map[aspectKey]interface{}

	chainMu sync.RWMutex
	before  []types.Interceptor
	after   []types.Interceptor
}

func newClassInstanceAdvisor(advisor *ClassAdvisor, instance interface{}) *ClassInstanceAdvisor {
	return &ClassInstanceAdvisor{
		advisor:      advisor,
		instance:     instance,
		metadata:     metadata.NewSimpleMetaData(),
		perInstance:  make(map[*types.AspectDefinition]interface{}),
		perJoinpoint: make(map[aspectKey]interface{}),
	}
}

func (ia *ClassInstanceAdvisor) Advisor() types.Advisor { return ia.advisor }

// ClassAdvisor returns the advisor of the object's class.
func (ia *ClassInstanceAdvisor) ClassAdvisor() *ClassAdvisor { return ia.advisor }

func (ia *ClassInstanceAdvisor) Instance() interface{} { return ia.instance }

func (ia *ClassInstanceAdvisor) MetaData() *metadata.SimpleMetaData { return ia.metadata }

// GetPerInstanceAspect creates the object's instance of def on first use. The
// lock is held while the factory runs so the instance is created once.
func (ia *ClassInstanceAdvisor) GetPerInstanceAspect(def *types.AspectDefinition) (interface{}, error) {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	if instance, ok := ia.perInstance[def]; ok {
		return instance, nil
	}
	instance, err := def.Factory().CreatePerInstance(ia.advisor, ia)
	if err != nil {
		return nil, err
	}
	ia.perInstance[def] = instance
	return instance, nil
}

// GetPerJoinpointAspect creates the object's instance of def for jp on first use.
func (ia *ClassInstanceAdvisor) GetPerJoinpointAspect(jp types.Joinpoint, def *types.AspectDefinition) (interface{}, error) {
	key := aspectKey{def: def, jp: jp.Key()}
	ia.mu.Lock()
	defer ia.mu.Unlock()
	if instance, ok := ia.perJoinpoint[key]; ok {
		return instance, nil
	}
	instance, err := def.Factory().CreatePerJoinpoint(ia.advisor, ia, jp)
	if err != nil {
		return nil, err
	}
	ia.perJoinpoint[key] = instance
	return instance, nil
}

// InsertInterceptor registers an interceptor running before the class chains
// of this object. Later insertions run first.
func (ia *ClassInstanceAdvisor) InsertInterceptor(interceptor types.Interceptor) {
	ia.chainMu.Lock()
	defer ia.chainMu.Unlock()
	ia.before = append([]types.Interceptor{interceptor}, ia.before...)
}

// AppendInterceptor registers an interceptor running after the class chains of this object.
func (ia *ClassInstanceAdvisor) AppendInterceptor(interceptor types.Interceptor) {
	ia.chainMu.Lock()
	defer ia.chainMu.Unlock()
	ia.after = append(ia.after, interceptor)
}

// RemoveInterceptor removes every interceptor registered on this object under name.
func (ia *ClassInstanceAdvisor) RemoveInterceptor(name string) {
	ia.chainMu.Lock()
	defer ia.chainMu.Unlock()
	ia.before = withoutInterceptor(ia.before, name)
	ia.after = withoutInterceptor(ia.after, name)
}

func withoutInterceptor(chain []types.Interceptor, name string) []types.Interceptor {
	var kept []types.Interceptor
	for _, i := range chain {
		if i.Name() != name {
			kept = append(kept, i)
		}
	}
	return kept
}

func (ia *ClassInstanceAdvisor) Interceptors(chain []types.Interceptor) []types.Interceptor {
	return ia.chain(chain)
}

func (ia *ClassInstanceAdvisor) chain(chain []types.Interceptor) []types.Interceptor {
	ia.chainMu.RLock()
	defer ia.chainMu.RUnlock()
	if len(ia.before) == 0 && len(ia.after) == 0 {
		return chain
	}
	result := make([]types.Interceptor, 0, len(ia.before)+len(chain)+len(ia.after))
	result = append(result, ia.before...)
	result = append(result, chain...)
	return append(result, ia.after...)
}

// InvokeMethod calls method on the object through its chain.
func (ia *ClassInstanceAdvisor) InvokeMethod(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	return ia.advisor.invokeMethod(ctx, ia, ia.instance, method, args)
}

// ReadField reads field of the object through its chain.
func (ia *ClassInstanceAdvisor) ReadField(ctx context.Context, field string) (interface{}, error) {
	return ia.advisor.readField(ctx, ia, ia.instance, field)
}

// WriteField writes field of the object through its chain.
func (ia *ClassInstanceAdvisor) WriteField(ctx context.Context, field string, value interface{}) error {
	return ia.advisor.writeField(ctx, ia, ia.instance, field, value)
}

// Destroy drops the object's aspects and interceptors.
func (ia *ClassInstanceAdvisor) Destroy() {
	ia.mu.Lock()
	ia.perInstance = make(map[*types.AspectDefinition]interface{})
	ia.perJoinpoint = make(map[aspectKey]interface{})
	ia.mu.Unlock()
	ia.chainMu.Lock()
	ia.before, ia.after = nil, nil
	ia.chainMu.Unlock()
}

// Advised is embedded by types whose objects hold their own instance
// advisors. The embedded field must be tagged `aop:"-"` so the loader does not
// treat it as a superclass:
//
//	type Account struct {
//		engine.Advised `aop:"-"`
//		Balance float64
//	}
type Advised struct {
	mu       sync.Mutex
	advisors []*ClassInstanceAdvisor
}

func (a *Advised) advised() *Advised { return a }

func (a *Advised) load(advisor *ClassAdvisor) *ClassInstanceAdvisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ia := range a.advisors {
		if ia.advisor == advisor {
			return ia
		}
	}
	return nil
}

func (a *Advised) loadOrStore(ia *ClassInstanceAdvisor) *ClassInstanceAdvisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.advisors {
		if existing.advisor == ia.advisor {
			return existing
		}
	}
	a.advisors = append(a.advisors, ia)
	return ia
}

func (a *Advised) release(advisor *ClassAdvisor) *ClassInstanceAdvisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, ia := range a.advisors {
		if ia.advisor == advisor {
			a.advisors = append(a.advisors[:i], a.advisors[i+1:]...)
			return ia
		}
	}
	return nil
}

// InstanceAdvisors returns the instance advisors held by the object.
func (a *Advised) InstanceAdvisors() []*ClassInstanceAdvisor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*ClassInstanceAdvisor(nil), a.advisors...)
}
