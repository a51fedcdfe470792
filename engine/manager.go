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

// Package engine dispatches advised calls through interceptor chains and
// manages the lifecycle of aspect instances.
//
// Package engine 负责将被通知的调用分派到拦截器链，并管理切面实例的生命周期。
//
// Key Components:
// 关键组件：
//   - Manager: aspect definitions, bindings, advisors and the PER_VM registry
//     Manager：切面定义、绑定、Advisor 以及 PER_VM 注册表
//   - ClassAdvisor: chains, metadata and PER_CLASS caches of one advised class
//     ClassAdvisor：单个被通知类的拦截器链、元数据和 PER_CLASS 缓存
//   - ClassInstanceAdvisor: PER_INSTANCE and PER_JOINPOINT caches of one object
//     ClassInstanceAdvisor：单个对象的 PER_INSTANCE 和 PER_JOINPOINT 缓存
//   - invocation: the dispatcher running one call through its chain
//     invocation：运行单次调用拦截器链的分派器
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
	"golang.org/x/sync/singleflight"
)

// DefaultManager is a process wide manager with the default configuration.
var DefaultManager = NewManager(types.NewConfig())

// loggerSetter is implemented by factories that log on their own.
type loggerSetter interface {
	SetLogger(logger types.Logger)
}

// Manager owns aspect definitions, bindings and advisors. It is the PER_VM
// registry: every PER_VM aspect is created once per Manager.
type Manager struct {
	config types.Config

	mu           sync.RWMutex
	definitions  map[string]*types.AspectDefinition
	bindings     []*AdviceBinding
	metaBindings []*MetaDataBinding
	advisors     map[string]*ClassAdvisor

	vmMu  sync.Mutex
	perVM map[*types.AspectDefinition]interface{}

	flights singleflight.Group
}

// NewManager creates a manager.
func NewManager(config types.Config) *Manager {
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	return &Manager{
		config:      config,
		definitions: make(map[string]*types.AspectDefinition),
		advisors:    make(map[string]*ClassAdvisor),
		perVM:       make(map[*types.AspectDefinition]interface{}),
	}
}

// Config returns the manager's configuration.
func (m *Manager) Config() types.Config {
	return m.config
}

// AddAspectDefinition registers def, replacing a definition with the same name.
// Properties configured for the aspect's name are handed to its factory.
func (m *Manager) AddAspectDefinition(def *types.AspectDefinition) error {
	if def == nil || def.Factory() == nil {
		return errors.New("aspect definition requires a factory")
	}
	if !def.Scope().Valid() {
		return &types.UnsupportedScopeError{Aspect: def.Name(), Scope: def.Scope()}
	}
	if setter, ok := def.Factory().(types.AttributeSetter); ok {
		if properties := m.config.AspectProperties(def.Name()); len(properties) > 0 {
			setter.SetAttributes(properties)
		}
	}
	if setter, ok := def.Factory().(loggerSetter); ok {
		setter.SetLogger(m.config.Logger)
	}
	m.mu.Lock()
	old := m.definitions[def.Name()]
	m.definitions[def.Name()] = def
	m.mu.Unlock()
	if old != nil && old != def {
		m.dropPerVM(old)
	}
	return nil
}

// GetAspectDefinition returns the definition registered under name.
func (m *Manager) GetAspectDefinition(name string) (*types.AspectDefinition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[name]
	return def, ok
}

// RemoveAspectDefinition unregisters the named definition and drops its PER_VM instance.
func (m *Manager) RemoveAspectDefinition(name string) {
	m.mu.Lock()
	def, ok := m.definitions[name]
	delete(m.definitions, name)
	m.mu.Unlock()
	if ok {
		m.dropPerVM(def)
	}
}

func (m *Manager) dropPerVM(def *types.AspectDefinition) {
	m.vmMu.Lock()
	defer m.vmMu.Unlock()
	delete(m.perVM, def)
}

// AddBinding registers b and rebuilds the chains of every advisor.
func (m *Manager) AddBinding(b *AdviceBinding) error {
	return m.AddBindings([]*AdviceBinding{b}, nil)
}

// AddBindings registers advice and metadata bindings together and rebuilds
// every advisor once. Nothing is registered when one of them has no pointcut.
func (m *Manager) AddBindings(bindings []*AdviceBinding, metaData []*MetaDataBinding) error {
	for _, b := range bindings {
		if b == nil || b.Pointcut == nil {
			return errors.New("advice binding requires a pointcut")
		}
	}
	for _, b := range metaData {
		if b == nil || b.Pointcut == nil {
			return errors.New("metadata binding requires a pointcut")
		}
	}
	m.mu.Lock()
	m.metaBindings = append(m.metaBindings, metaData...)
	m.bindings = append(m.bindings, bindings...)
	sortBindings(m.bindings)
	m.mu.Unlock()
	return m.rebuild()
}

// RemoveBinding unregisters the named binding and rebuilds the chains of every advisor.
func (m *Manager) RemoveBinding(name string) error {
	m.mu.Lock()
	bindings := m.bindings[:0]
	for _, b := range m.bindings {
		if b.Name != name {
			bindings = append(bindings, b)
		}
	}
	m.bindings = bindings
	m.mu.Unlock()
	return m.rebuild()
}

// AddMetaDataBinding registers b and rebuilds every advisor.
func (m *Manager) AddMetaDataBinding(b *MetaDataBinding) error {
	return m.AddBindings(nil, []*MetaDataBinding{b})
}

// Bindings returns the advice bindings in chain order.
func (m *Manager) Bindings() []*AdviceBinding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*AdviceBinding(nil), m.bindings...)
}

func (m *Manager) metaDataBindings() []*MetaDataBinding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*MetaDataBinding(nil), m.metaBindings...)
}

func (m *Manager) rebuild() error {
	m.mu.RLock()
	advisors := make([]*ClassAdvisor, 0, len(m.advisors))
	for _, a := range m.advisors {
		advisors = append(advisors, a)
	}
	m.mu.RUnlock()
	var errs []error
	for _, a := range advisors {
		if err := a.Rebuild(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Advise returns the advisor registered for class, creating and building it on
// first use. Errors raised by the build are returned with the advisor.
func (m *Manager) Advise(class member.ClassInfo) (*ClassAdvisor, error) {
	m.mu.Lock()
	if a, ok := m.advisors[class.Name()]; ok {
		m.mu.Unlock()
		return a, nil
	}
	a := newClassAdvisor(m, class)
	m.advisors[class.Name()] = a
	m.mu.Unlock()
	return a, a.Rebuild()
}

// NewAdvisor creates an advisor for class that is not registered with the
// manager. It owns its own caches and is rebuilt only by its Rebuild method.
func (m *Manager) NewAdvisor(class member.ClassInfo) (*ClassAdvisor, error) {
	a := newClassAdvisor(m, class)
	return a, a.Rebuild()
}

// GetAdvisor returns the advisor registered for the named class.
func (m *Manager) GetAdvisor(className string) (*ClassAdvisor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.advisors[className]
	return a, ok
}

func (m *Manager) removeAdvisor(a *ClassAdvisor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.advisors[a.Name()] == a {
		delete(m.advisors, a.Name())
	}
}

// PerVMAspect returns the single instance of def, creating it on first use.
func (m *Manager) PerVMAspect(def *types.AspectDefinition) (interface{}, error) {
	m.vmMu.Lock()
	defer m.vmMu.Unlock()
	if instance, ok := m.perVM[def]; ok {
		return instance, nil
	}
	instance, err := def.Factory().CreatePerVM()
	if err != nil {
		return nil, constructionError(def, err)
	}
	m.perVM[def] = instance
	return instance, nil
}

// ResolveAspect returns the instance of def for the given call context,
// creating it at most once per owner of def's scope.
//
// ResolveAspect 按切面作用域返回唯一的切面实例：
// PER_VM 由 Manager 持有，PER_CLASS 和 PER_CLASS_JOINPOINT 由 Advisor 持有，
// PER_INSTANCE 和 PER_JOINPOINT 由 InstanceAdvisor 持有。
func (m *Manager) ResolveAspect(def *types.AspectDefinition, advisor types.Advisor, ia types.InstanceAdvisor, jp types.Joinpoint) (interface{}, error) {
	if def == nil {
		return nil, &types.UnsupportedScopeError{Scope: types.ScopeUnknown}
	}
	factory := def.Factory()
	switch def.Scope() {
	case types.PerVM:
		return m.PerVMAspect(def)
	case types.PerClass:
		if advisor == nil {
			return nil, missingOwner(def, "Advisor")
		}
		if instance, ok := advisor.GetPerClassAspect(def); ok {
			return instance, nil
		}
		return m.createShared(def, advisor, jp, func() (interface{}, error) {
			if instance, ok := advisor.GetPerClassAspect(def); ok {
				return instance, nil
			}
			instance, err := factory.CreatePerClass(advisor)
			if err != nil {
				return nil, err
			}
			advisor.AddPerClassAspect(def, instance)
			if cached, ok := advisor.GetPerClassAspect(def); ok {
				return cached, nil
			}
			return instance, nil
		})
	case types.PerInstance:
		if ia != nil {
			instance, err := ia.GetPerInstanceAspect(def)
			if err != nil {
				return nil, constructionError(def, err)
			}
			return instance, nil
		}
		// No object: the instance is never cached.
		instance, err := factory.CreatePerInstance(advisor, nil)
		if err != nil {
			return nil, constructionError(def, err)
		}
		return instance, nil
	case types.PerJoinpoint:
		if ia != nil {
			instance, err := ia.GetPerJoinpointAspect(jp, def)
			if err != nil {
				return nil, constructionError(def, err)
			}
			return instance, nil
		}
		if advisor != nil && staticField(jp) {
			if instance, ok := advisor.GetFieldAspect(jp, def); ok {
				return instance, nil
			}
			return m.createShared(def, advisor, jp, func() (interface{}, error) {
				if instance, ok := advisor.GetFieldAspect(jp, def); ok {
					return instance, nil
				}
				instance, err := factory.CreatePerJoinpoint(advisor, nil, jp)
				if err != nil {
					return nil, err
				}
				advisor.AddFieldAspect(jp, def, instance)
				if cached, ok := advisor.GetFieldAspect(jp, def); ok {
					return cached, nil
				}
				return instance, nil
			})
		}
		instance, err := factory.CreatePerJoinpoint(advisor, nil, jp)
		if err != nil {
			return nil, constructionError(def, err)
		}
		return instance, nil
	case types.PerClassJoinpoint:
		if advisor == nil {
			return nil, missingOwner(def, "Advisor")
		}
		if jp == nil {
			return nil, missingOwner(def, "Joinpoint")
		}
		if instance, ok := advisor.GetPerClassJoinpointAspect(def, jp); ok {
			return instance, nil
		}
		return m.createShared(def, advisor, jp, func() (interface{}, error) {
			if instance, ok := advisor.GetPerClassJoinpointAspect(def, jp); ok {
				return instance, nil
			}
			instance, err := factory.CreatePerJoinpoint(advisor, nil, jp)
			if err != nil {
				return nil, err
			}
			advisor.AddPerClassJoinpointAspect(def, jp, instance)
			if cached, ok := advisor.GetPerClassJoinpointAspect(def, jp); ok {
				return cached, nil
			}
			return instance, nil
		})
	default:
		return nil, &types.UnsupportedScopeError{Aspect: def.Name(), Scope: def.Scope()}
	}
}

// createShared coalesces concurrent first accesses to a cache entry owned by
// an advisor. create adds the new instance and re-reads the cache, so the first
// writer wins even against callers outside this manager.
func (m *Manager) createShared(def *types.AspectDefinition, advisor types.Advisor, jp types.Joinpoint,
	create func() (interface{}, error)) (interface{}, error) {
	key := fmt.Sprintf("%p|%p", advisor, def)
	if jp != nil && def.Scope() != types.PerClass {
		key += "|" + jp.Key()
	}
	instance, err, _ := m.flights.Do(key, create)
	if err != nil {
		return nil, constructionError(def, err)
	}
	return instance, nil
}

// Stop drops every PER_VM instance and destroys every registered advisor.
func (m *Manager) Stop() {
	m.mu.Lock()
	advisors := m.advisors
	m.advisors = make(map[string]*ClassAdvisor)
	m.mu.Unlock()
	for _, a := range advisors {
		a.destroy()
	}
	m.vmMu.Lock()
	m.perVM = make(map[*types.AspectDefinition]interface{})
	m.vmMu.Unlock()
}

func constructionError(def *types.AspectDefinition, err error) error {
	var constructionErr *types.AspectConstructionError
	var scopeErr *types.UnsupportedScopeError
	if errors.As(err, &constructionErr) || errors.As(err, &scopeErr) {
		return err
	}
	return &types.AspectConstructionError{Aspect: def.Name(), TypeName: def.Factory().Name(), Cause: err}
}

func missingOwner(def *types.AspectDefinition, owner string) error {
	return &types.AspectConstructionError{Aspect: def.Name(), TypeName: def.Factory().Name(), Configuration: true,
		Cause: fmt.Errorf("%w: %s scope requires %s", types.ErrMissingContext, def.Scope(), owner)}
}
