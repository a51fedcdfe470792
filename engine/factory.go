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
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/utils/maps"
)

var (
	_ types.AspectFactory         = (*GenericAspectFactory)(nil)
	_ types.AttributeSetter       = (*GenericAspectFactory)(nil)
	_ types.AspectDefinitionAware = (*GenericAspectFactory)(nil)
)

// GenericAspectFactory builds aspects from a constructor function or a prototype.
// Every instance receives the attributes set on the factory and the context
// its scope provides through the Aware interfaces of api/types.
//
// GenericAspectFactory 通过构造函数或原型创建切面实例，
// 并按作用域注入属性和上下文（Advisor、InstanceAdvisor、Joinpoint）。
type GenericAspectFactory struct {
	typeName    string
	newInstance func() (interface{}, error)

	mu         sync.RWMutex
	attributes map[string]interface{}
	definition *types.AspectDefinition
	logger     types.Logger
}

// NewAspectFactory creates a factory from a constructor with one of the
// signatures func() *T or func() (*T, error).
func NewAspectFactory(constructor interface{}) (*GenericAspectFactory, error) {
	v := reflect.ValueOf(constructor)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("aspect constructor must be a func, got %T", constructor)
	}
	ft := v.Type()
	if ft.NumIn() != 0 || ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) {
		return nil, fmt.Errorf("aspect constructor %s must be func() T or func() (T, error)", ft)
	}
	return &GenericAspectFactory{
		typeName: member.TypeName(ft.Out(0)),
		newInstance: func() (interface{}, error) {
			return results(v.Call(nil))
		},
	}, nil
}

// NewPrototypeFactory creates a factory allocating a zero value of prototype's
// type for every instance. prototype must be a pointer to a struct.
func NewPrototypeFactory(prototype interface{}) *GenericAspectFactory {
	t := reflect.TypeOf(prototype)
	f := &GenericAspectFactory{}
	if t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct {
		f.typeName = member.TypeName(t)
		f.newInstance = func() (interface{}, error) {
			return reflect.New(t.Elem()).Interface(), nil
		}
	} else {
		f.typeName = fmt.Sprintf("%T", prototype)
		f.newInstance = func() (interface{}, error) {
			return nil, fmt.Errorf("cannot instantiate %T, a pointer to a struct is required", prototype)
		}
	}
	return f
}

// NewFuncFactory creates a factory from a typed constructor function.
func NewFuncFactory[T any](constructor func() (T, error)) *GenericAspectFactory {
	return &GenericAspectFactory{
		typeName: member.TypeName(reflect.TypeOf((*T)(nil)).Elem()),
		newInstance: func() (interface{}, error) {
			return constructor()
		},
	}
}

func (f *GenericAspectFactory) Name() string { return f.typeName }

// SetAttributes replaces the attributes injected into new instances.
func (f *GenericAspectFactory) SetAttributes(attributes map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attributes = attributes
}

// SetAspectDefinition records the definition owning this factory.
func (f *GenericAspectFactory) SetAspectDefinition(def *types.AspectDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.definition = def
}

// SetLogger sets the logger used for warnings raised while no advisor is at hand.
func (f *GenericAspectFactory) SetLogger(logger types.Logger) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logger = logger
}

func (f *GenericAspectFactory) CreatePerVM() (interface{}, error) {
	return f.create(types.PerVM, nil, nil, nil)
}

func (f *GenericAspectFactory) CreatePerClass(advisor types.Advisor) (interface{}, error) {
	return f.create(types.PerClass, advisor, nil, nil)
}

func (f *GenericAspectFactory) CreatePerInstance(advisor types.Advisor, instanceAdvisor types.InstanceAdvisor) (interface{}, error) {
	return f.create(types.PerInstance, advisor, instanceAdvisor, nil)
}

func (f *GenericAspectFactory) CreatePerJoinpoint(advisor types.Advisor, instanceAdvisor types.InstanceAdvisor, jp types.Joinpoint) (interface{}, error) {
	scope := types.PerJoinpoint
	if def := f.aspectDefinition(); def != nil && def.Scope() == types.PerClassJoinpoint {
		scope = types.PerClassJoinpoint
	}
	return f.create(scope, advisor, instanceAdvisor, jp)
}

func (f *GenericAspectFactory) aspectDefinition() *types.AspectDefinition {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.definition
}

func (f *GenericAspectFactory) aspectName() string {
	if def := f.aspectDefinition(); def != nil {
		return def.Name()
	}
	return f.typeName
}

func (f *GenericAspectFactory) create(scope types.Scope, advisor types.Advisor, ia types.InstanceAdvisor, jp types.Joinpoint) (instance interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			instance = nil
			err = &types.AspectConstructionError{Aspect: f.aspectName(), TypeName: f.typeName,
				Configuration: true, Cause: fmt.Errorf("instantiation panic: %v", r)}
		}
	}()
	instance, err = f.newInstance()
	if err != nil {
		return nil, &types.AspectConstructionError{Aspect: f.aspectName(), TypeName: f.typeName, Cause: err}
	}
	if instance == nil {
		return nil, &types.AspectConstructionError{Aspect: f.aspectName(), TypeName: f.typeName,
			Configuration: true, Cause: errors.New("constructor returned nil")}
	}
	f.mu.RLock()
	attributes, def, logger := f.attributes, f.definition, f.logger
	f.mu.RUnlock()
	if len(attributes) > 0 {
		if err := maps.Map2Struct(attributes, instance); err != nil {
			return nil, &types.AspectConstructionError{Aspect: f.aspectName(), TypeName: f.typeName,
				Configuration: true, Cause: err}
		}
	}
	if advisor != nil {
		logger = advisor.Logger()
	}
	if logger == nil {
		logger = types.DefaultLogger()
	}
	warn := func(context string) {
		logger.Printf("%v", &types.MissingContextWarning{Aspect: f.aspectName(), Scope: scope, Context: context})
	}
	if aware, ok := instance.(types.AspectDefinitionAware); ok && def != nil {
		aware.SetAspectDefinition(def)
	}
	if aware, ok := instance.(types.AdvisorAware); ok {
		if advisor != nil {
			aware.SetAdvisor(advisor)
		} else {
			warn("Advisor")
		}
	}
	if aware, ok := instance.(types.InstanceAdvisorAware); ok {
		if ia != nil {
			aware.SetInstanceAdvisor(ia)
		} else {
			warn("InstanceAdvisor")
		}
	}
	if aware, ok := instance.(types.JoinpointAware); ok {
		if jp != nil {
			aware.SetJoinpoint(jp)
		} else {
			warn("Joinpoint")
		}
	}
	return instance, nil
}

// InterceptorFactory produces the interceptor a binding contributes to a join
// point's chain. The variants are GenericInterceptorFactory,
// ScopedInterceptorFactory and AdviceFactory.
type InterceptorFactory interface {
	Name() string
	interceptorFactory()
}

// GenericInterceptorFactory creates a new interceptor for every join point it
// is bound to.
type GenericInterceptorFactory struct {
	name   string
	create func(advisor types.Advisor, jp types.Joinpoint) (types.Interceptor, error)
}

// NewGenericInterceptorFactory creates a factory calling create once per join point.
func NewGenericInterceptorFactory(name string, create func(advisor types.Advisor, jp types.Joinpoint) (types.Interceptor, error)) *GenericInterceptorFactory {
	return &GenericInterceptorFactory{name: name, create: create}
}

// NewInterceptorFactory creates a factory sharing one interceptor between all join points.
func NewInterceptorFactory(interceptor types.Interceptor) *GenericInterceptorFactory {
	return NewGenericInterceptorFactory(interceptor.Name(), func(types.Advisor, types.Joinpoint) (types.Interceptor, error) {
		return interceptor, nil
	})
}

func (f *GenericInterceptorFactory) Name() string        { return f.name }
func (f *GenericInterceptorFactory) interceptorFactory() {}

// ScopedInterceptorFactory uses the aspect instance itself as the interceptor.
// The instance is resolved according to the aspect's scope.
type ScopedInterceptorFactory struct {
	Aspect *types.AspectDefinition
}

// NewScopedInterceptorFactory creates a factory for def, whose instances must
// implement types.Interceptor.
func NewScopedInterceptorFactory(def *types.AspectDefinition) *ScopedInterceptorFactory {
	return &ScopedInterceptorFactory{Aspect: def}
}

func (f *ScopedInterceptorFactory) Name() string        { return aspectName(f.Aspect) }
func (f *ScopedInterceptorFactory) interceptorFactory() {}

// AdviceKind is the calling convention of an advice method.
type AdviceKind int

const (
	// Around advice is func(types.Invocation) (interface{}, error) and decides
	// itself whether to proceed.
	Around AdviceKind = iota
	// Before advice is func(types.Invocation) error. An error stops the call.
	Before
	// After advice is func(types.Invocation, interface{}, error) (interface{}, error)
	// and may replace the outcome of the call.
	After
	// Throwing advice is func(types.Invocation, error) error and runs only when
	// the call failed. A non nil error replaces the original one.
	Throwing
)

func (k AdviceKind) String() string {
	switch k {
	case Around:
		return "around"
	case Before:
		return "before"
	case After:
		return "after"
	case Throwing:
		return "throwing"
	default:
		return fmt.Sprintf("AdviceKind(%d)", int(k))
	}
}

// ParseAdviceKind parses around, before, after or throwing.
func ParseAdviceKind(s string) (AdviceKind, error) {
	for _, k := range []AdviceKind{Around, Before, After, Throwing} {
		if k.String() == s {
			return k, nil
		}
	}
	return Around, fmt.Errorf("unknown advice kind %q", s)
}

var adviceTypes = map[AdviceKind]reflect.Type{
	Around:   reflect.TypeOf((func(types.Invocation) (interface{}, error))(nil)),
	Before:   reflect.TypeOf((func(types.Invocation) error)(nil)),
	After:    reflect.TypeOf((func(types.Invocation, interface{}, error) (interface{}, error))(nil)),
	Throwing: reflect.TypeOf((func(types.Invocation, error) error)(nil)),
}

// AdviceFactory binds a named method of an aspect instance as advice.
type AdviceFactory struct {
	Aspect *types.AspectDefinition
	Method string
	Kind   AdviceKind
}

// NewAdviceFactory creates a factory binding method of def's instances.
func NewAdviceFactory(def *types.AspectDefinition, method string, kind AdviceKind) *AdviceFactory {
	return &AdviceFactory{Aspect: def, Method: method, Kind: kind}
}

func (f *AdviceFactory) Name() string        { return aspectName(f.Aspect) + "." + f.Method }
func (f *AdviceFactory) interceptorFactory() {}

// aspectName names def in chains and errors, "<nil>" for a missing definition.
func aspectName(def *types.AspectDefinition) string {
	if def == nil {
		return "<nil>"
	}
	return def.Name()
}

type adviceMethodKey struct {
	t    reflect.Type
	name string
	kind AdviceKind
}

// adviceMethods caches method indexes by aspect type.
var adviceMethods sync.Map

func adviceMethod(aspect interface{}, name string, kind AdviceKind) (reflect.Value, error) {
	v := reflect.ValueOf(aspect)
	key := adviceMethodKey{t: v.Type(), name: name, kind: kind}
	if cached, ok := adviceMethods.Load(key); ok {
		return v.Method(cached.(int)), nil
	}
	m, ok := v.Type().MethodByName(name)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%s has no advice method %s", v.Type(), name)
	}
	want := adviceTypes[kind]
	if got := v.Method(m.Index).Type(); got != want {
		return reflect.Value{}, fmt.Errorf("%s advice %s.%s must be %s, got %s", kind, v.Type(), name, want, got)
	}
	adviceMethods.Store(key, m.Index)
	return v.Method(m.Index), nil
}

// adviceInterceptor adapts an advice method to types.Interceptor.
type adviceInterceptor struct {
	name   string
	kind   AdviceKind
	advice interface{}
}

func newAdviceInterceptor(f *AdviceFactory, aspect interface{}) (types.Interceptor, error) {
	m, err := adviceMethod(aspect, f.Method, f.Kind)
	if err != nil {
		return nil, err
	}
	return &adviceInterceptor{name: f.Name(), kind: f.Kind, advice: m.Interface()}, nil
}

func (a *adviceInterceptor) Name() string { return a.name }

func (a *adviceInterceptor) Invoke(inv types.Invocation) (interface{}, error) {
	switch advice := a.advice.(type) {
	case func(types.Invocation) (interface{}, error):
		return advice(inv)
	case func(types.Invocation) error:
		if err := advice(inv); err != nil {
			return nil, err
		}
		return inv.InvokeNext()
	case func(types.Invocation, interface{}, error) (interface{}, error):
		result, err := inv.InvokeNext()
		return advice(inv, result, err)
	case func(types.Invocation, error) error:
		result, err := inv.InvokeNext()
		if err != nil {
			if replaced := advice(inv, err); replaced != nil {
				return result, replaced
			}
		}
		return result, err
	default:
		return nil, fmt.Errorf("advice %s has unsupported type %T", a.name, a.advice)
	}
}

// lazyInterceptor resolves a per instance or per joinpoint aspect on every call
// from the invocation's instance advisor. Calls without an instance proceed
// without the advice, except static field join points whose aspect is owned
// by the class advisor.
type lazyInterceptor struct {
	name     string
	def      *types.AspectDefinition
	jp       types.Joinpoint
	resolver *Manager
	build    func(aspect interface{}) (types.Interceptor, error)
}

func (l *lazyInterceptor) Name() string { return l.name }

func (l *lazyInterceptor) Invoke(inv types.Invocation) (interface{}, error) {
	ia := inv.InstanceAdvisor()
	if ia == nil && !staticField(l.jp) {
		return inv.InvokeNext()
	}
	aspect, err := l.resolver.ResolveAspect(l.def, inv.Advisor(), ia, l.jp)
	if err != nil {
		return nil, err
	}
	interceptor, err := l.build(aspect)
	if err != nil {
		return nil, &types.AspectConstructionError{Aspect: l.def.Name(), TypeName: l.def.Factory().Name(),
			Configuration: true, Cause: err}
	}
	return interceptor.Invoke(inv)
}

func staticField(jp types.Joinpoint) bool {
	if jp == nil || !jp.Static() {
		return false
	}
	kind := jp.Kind()
	return kind == types.FieldRead || kind == types.FieldWrite
}

func scopedInterceptor(def *types.AspectDefinition) func(aspect interface{}) (types.Interceptor, error) {
	return func(aspect interface{}) (types.Interceptor, error) {
		interceptor, ok := aspect.(types.Interceptor)
		if !ok {
			return nil, fmt.Errorf("aspect %s: %T does not implement types.Interceptor", def.Name(), aspect)
		}
		return interceptor, nil
	}
}

// interceptorFor builds the chain entry f contributes to jp. Instances of
// aspects whose scope needs an advised object are resolved at call time; a
// throwaway instance is built here to validate the binding.
func (a *ClassAdvisor) interceptorFor(f InterceptorFactory, jp types.Joinpoint) (types.Interceptor, error) {
	if f == nil || reflect.ValueOf(f).IsNil() {
		return nil, errors.New("nil interceptor factory")
	}
	var def *types.AspectDefinition
	var build func(aspect interface{}) (types.Interceptor, error)
	switch f := f.(type) {
	case *GenericInterceptorFactory:
		interceptor, err := f.create(a, jp)
		if err == nil && interceptor == nil {
			err = fmt.Errorf("interceptor factory %s returned nil", f.name)
		}
		return interceptor, err
	case *ScopedInterceptorFactory:
		def, build = f.Aspect, scopedInterceptor(f.Aspect)
	case *AdviceFactory:
		def = f.Aspect
		build = func(aspect interface{}) (types.Interceptor, error) {
			return newAdviceInterceptor(f, aspect)
		}
	default:
		return nil, fmt.Errorf("unknown interceptor factory %T", f)
	}
	if def == nil {
		return nil, &types.UnsupportedScopeError{Aspect: f.Name(), Scope: types.ScopeUnknown}
	}
	aspect, err := a.manager.ResolveAspect(def, a, nil, jp)
	if err != nil {
		return nil, err
	}
	interceptor, err := build(aspect)
	if err != nil {
		return nil, &types.AspectConstructionError{Aspect: def.Name(), TypeName: def.Factory().Name(),
			Configuration: true, Cause: err}
	}
	switch def.Scope() {
	case types.PerInstance, types.PerJoinpoint:
		return &lazyInterceptor{name: f.Name(), def: def, jp: jp, resolver: a.manager, build: build}, nil
	default:
		return interceptor, nil
	}
}
