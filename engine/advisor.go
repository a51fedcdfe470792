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
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/api/types/metrics"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/metadata"
	"github.com/rulego/weaver/pointcut"
)

var _ types.Advisor = (*ClassAdvisor)(nil)

type aspectKey struct {
	def *types.AspectDefinition
	jp  string
}

type methodEntry struct {
	jp    *MethodJoinpoint
	chain []types.Interceptor
}

type fieldEntry struct {
	read, write           *FieldJoinpoint
	readChain, writeChain []types.Interceptor
}

type constructorEntry struct {
	jp    *ConstructorJoinpoint
	chain []types.Interceptor
}

type annotated interface {
	HasAnnotation(annotation string) bool
}

// joinpoints is the immutable result of a Rebuild.
type joinpoints struct {
	methods      map[string]*methodEntry
	methodNames  map[string][]*methodEntry
	fields       map[string]*fieldEntry
	constructors map[string]*constructorEntry
	members      map[string]annotated
}

// ClassAdvisor advises one class. It owns the chains of the class's join
// points, its metadata and the caches of its PER_CLASS, PER_CLASS_JOINPOINT and
// static field aspects. Chains are rebuilt whenever the manager's bindings change.
type ClassAdvisor struct {
	manager *Manager
	class   member.ClassInfo

	perClass          sync.Map
	perClassJoinpoint sync.Map
	fieldAspects      sync.Map

	methodMeta      *metadata.Store
	fieldMeta       *metadata.Store
	constructorMeta *metadata.Store
	defaults        *metadata.SimpleMetaData

	joinpoints atomic.Pointer[joinpoints]

	mu            sync.RWMutex
	invokers      map[string]Invoker
	getters       map[string]Getter
	setters       map[string]Setter
	instantiators map[string]Instantiator
	instances     map[interface{}]*ClassInstanceAdvisor

	metrics   *metrics.InvocationMetrics
	destroyed atomic.Bool
}

func newClassAdvisor(m *Manager, class member.ClassInfo) *ClassAdvisor {
	a := &ClassAdvisor{
		manager:         m,
		class:           class,
		methodMeta:      metadata.NewStore(),
		fieldMeta:       metadata.NewStore(),
		constructorMeta: metadata.NewStore(),
		defaults:        metadata.NewSimpleMetaData(),
		invokers:        make(map[string]Invoker),
		getters:         make(map[string]Getter),
		setters:         make(map[string]Setter),
		instantiators:   make(map[string]Instantiator),
		instances:       make(map[interface{}]*ClassInstanceAdvisor),
		metrics:         metrics.NewInvocationMetrics(),
	}
	a.joinpoints.Store(&joinpoints{})
	return a
}

func (a *ClassAdvisor) Name() string            { return a.class.Name() }
func (a *ClassAdvisor) Class() member.ClassInfo { return a.class }
func (a *ClassAdvisor) Logger() types.Logger    { return a.manager.config.Logger }

// Config returns the configuration of the manager owning this advisor.
func (a *ClassAdvisor) Config() types.Config { return a.manager.config }

// Manager returns the manager owning this advisor.
func (a *ClassAdvisor) Manager() *Manager { return a.manager }

// Metrics returns the call counters of this advisor's entry points.
func (a *ClassAdvisor) Metrics() *metrics.InvocationMetrics { return a.metrics }

func (a *ClassAdvisor) GetPerClassAspect(def *types.AspectDefinition) (interface{}, bool) {
	return a.perClass.Load(def)
}

func (a *ClassAdvisor) AddPerClassAspect(def *types.AspectDefinition, instance interface{}) {
	if a.destroyed.Load() {
		return
	}
	a.perClass.LoadOrStore(def, instance)
}

func (a *ClassAdvisor) GetPerClassJoinpointAspect(def *types.AspectDefinition, jp types.Joinpoint) (interface{}, bool) {
	return a.perClassJoinpoint.Load(aspectKey{def: def, jp: jp.Key()})
}

func (a *ClassAdvisor) AddPerClassJoinpointAspect(def *types.AspectDefinition, jp types.Joinpoint, instance interface{}) {
	if a.destroyed.Load() {
		return
	}
	a.perClassJoinpoint.LoadOrStore(aspectKey{def: def, jp: jp.Key()}, instance)
}

func (a *ClassAdvisor) GetFieldAspect(jp types.Joinpoint, def *types.AspectDefinition) (interface{}, bool) {
	return a.fieldAspects.Load(aspectKey{def: def, jp: jp.Key()})
}

func (a *ClassAdvisor) AddFieldAspect(jp types.Joinpoint, def *types.AspectDefinition, instance interface{}) {
	if a.destroyed.Load() {
		return
	}
	a.fieldAspects.LoadOrStore(aspectKey{def: def, jp: jp.Key()}, instance)
}

func (a *ClassAdvisor) MethodMetaData() *metadata.Store           { return a.methodMeta }
func (a *ClassAdvisor) FieldMetaData() *metadata.Store            { return a.fieldMeta }
func (a *ClassAdvisor) ConstructorMetaData() *metadata.Store      { return a.constructorMeta }
func (a *ClassAdvisor) DefaultMetaData() *metadata.SimpleMetaData { return a.defaults }

func (a *ClassAdvisor) HasAnnotation(memberKey string, annotation string) bool {
	annotation = member.NormalizeAnnotation(annotation)
	for _, store := range []*metadata.Store{a.methodMeta, a.fieldMeta, a.constructorMeta} {
		if store.HasExactTag(memberKey, annotation) {
			return true
		}
	}
	if a.defaults.HasTag(annotation) {
		return true
	}
	if m, ok := a.joinpoints.Load().members[memberKey]; ok {
		return m.HasAnnotation(annotation)
	}
	return false
}

// storeFor returns the metadata store of jp's member kind.
func (a *ClassAdvisor) storeFor(jp types.Joinpoint) *metadata.Store {
	switch jp.Kind() {
	case types.MethodExecution:
		return a.methodMeta
	case types.FieldRead, types.FieldWrite:
		return a.fieldMeta
	case types.ConstructorExecution:
		return a.constructorMeta
	default:
		return nil
	}
}

// SetMethodInvoker replaces the reflective call of a method. method is a
// method name or a member key.
func (a *ClassAdvisor) SetMethodInvoker(method string, invoker Invoker) error {
	entry, err := a.method(method)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invokers[entry.jp.Key()] = invoker
	return nil
}

// SetFieldAccessor replaces the reflective access of a field. Either function may be nil.
func (a *ClassAdvisor) SetFieldAccessor(field string, getter Getter, setter Setter) error {
	entry, err := a.field(field)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if getter != nil {
		a.getters[entry.read.Key()] = getter
	}
	if setter != nil {
		a.setters[entry.read.Key()] = setter
	}
	return nil
}

// SetInstantiator replaces the reflective call of the constructor with the given key.
func (a *ClassAdvisor) SetInstantiator(constructorKey string, instantiate Instantiator) error {
	entry, err := a.constructor(constructorKey)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instantiators[entry.jp.Key()] = instantiate
	return nil
}

// Rebuild applies the metadata bindings and recomputes every chain. Members
// whose matching fails keep no interceptor from the failing binding; the
// errors are joined and returned.
func (a *ClassAdvisor) Rebuild() error {
	if a.destroyed.Load() {
		return types.ErrAdvisorDestroyed
	}
	methods, err := member.AllMethods(a.class)
	if err != nil {
		return &types.MatchEvaluationError{Member: a.class.Name(), Cause: err}
	}
	fields, err := member.AllFields(a.class)
	if err != nil {
		return &types.MatchEvaluationError{Member: a.class.Name(), Cause: err}
	}
	constructors := a.class.Constructors()
	opts := pointcut.MatchOptions{Advisor: a, MatchOnAdvisor: a.manager.config.MatchOnAdvisor}

	var errs []error
	for _, b := range a.manager.metaDataBindings() {
		errs = append(errs, a.applyMetaData(b, opts, methods, fields, constructors)...)
	}

	next := &joinpoints{
		methods:      make(map[string]*methodEntry),
		methodNames:  make(map[string][]*methodEntry),
		fields:       make(map[string]*fieldEntry),
		constructors: make(map[string]*constructorEntry),
		members:      make(map[string]annotated),
	}
	bindings := a.manager.Bindings()
	for _, m := range methods {
		entry := &methodEntry{jp: NewMethodJoinpoint(a.class.Name(), m)}
		for _, b := range bindings {
			ok, err := b.Pointcut.MatchesExecution(opts, m)
			entry.chain, errs = a.bind(b, ok, err, entry.jp, entry.chain, errs)
		}
		next.methods[entry.jp.Key()] = entry
		next.methodNames[m.Name()] = append(next.methodNames[m.Name()], entry)
		next.members[m.Key()] = m
	}
	for _, f := range fields {
		entry := &fieldEntry{read: NewFieldJoinpoint(a.class.Name(), f, false), write: NewFieldJoinpoint(a.class.Name(), f, true)}
		for _, b := range bindings {
			ok, err := b.Pointcut.MatchesGet(opts, f)
			entry.readChain, errs = a.bind(b, ok, err, entry.read, entry.readChain, errs)
			ok, err = b.Pointcut.MatchesSet(opts, f)
			entry.writeChain, errs = a.bind(b, ok, err, entry.write, entry.writeChain, errs)
		}
		next.fields[f.Name()] = entry
		next.members[f.Key()] = f
	}
	for _, c := range constructors {
		entry := &constructorEntry{jp: NewConstructorJoinpoint(c)}
		for _, b := range bindings {
			ok, err := b.Pointcut.MatchesConstruction(opts, c)
			entry.chain, errs = a.bind(b, ok, err, entry.jp, entry.chain, errs)
		}
		next.constructors[c.Key()] = entry
		next.members[c.Key()] = c
	}
	a.joinpoints.Store(next)
	err = errors.Join(errs...)
	if err != nil {
		a.Logger().Printf("advisor %s rebuilt with errors: %v", a.Name(), err)
	}
	return err
}

func (a *ClassAdvisor) bind(b *AdviceBinding, matched bool, matchErr error, jp types.Joinpoint,
	chain []types.Interceptor, errs []error) ([]types.Interceptor, []error) {
	if matchErr != nil {
		return chain, append(errs, fmt.Errorf("binding %s: %w", b.Name, matchErr))
	}
	if !matched {
		return chain, errs
	}
	for _, f := range b.Factories {
		interceptor, err := a.interceptorFor(f, jp)
		if err != nil {
			errs = append(errs, fmt.Errorf("binding %s at %s: %w", b.Name, jp, err))
			continue
		}
		chain = append(chain, interceptor)
	}
	return chain, errs
}

// applyMetaData attaches b to the selected members. Members declared by the
// advised class are exact matches, inherited ones are inexact.
func (a *ClassAdvisor) applyMetaData(b *MetaDataBinding, opts pointcut.MatchOptions, methods []member.MethodInfo,
	fields []member.FieldInfo, constructors []member.ConstructorInfo) []error {
	var errs []error
	matchedAny := false
	add := func(store *metadata.Store, key string, declaring member.ClassInfo, ok bool, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("metadata binding %s: %w", b.Name, err))
			return
		}
		if !ok {
			return
		}
		matchedAny = true
		if b.Default {
			return
		}
		exact := declaring != nil && declaring.Name() == a.class.Name()
		if len(b.Attributes) == 0 {
			store.AddTag(key, b.Tag, exact)
		}
		for attribute, value := range b.Attributes {
			store.Add(key, b.Tag, attribute, value, exact)
		}
	}
	for _, m := range methods {
		declaring, _ := m.DeclaringClass()
		ok, err := b.Pointcut.MatchesExecution(opts, m)
		add(a.methodMeta, m.Key(), declaring, ok, err)
	}
	for _, f := range fields {
		declaring, _ := f.DeclaringClass()
		ok, err := b.Pointcut.MatchesGet(opts, f)
		if err == nil && !ok {
			ok, err = b.Pointcut.MatchesSet(opts, f)
		}
		add(a.fieldMeta, f.Key(), declaring, ok, err)
	}
	for _, c := range constructors {
		declaring, _ := c.DeclaringClass()
		ok, err := b.Pointcut.MatchesConstruction(opts, c)
		add(a.constructorMeta, c.Key(), declaring, ok, err)
	}
	if b.Default && matchedAny {
		if len(b.Attributes) == 0 {
			a.defaults.AddMetaData(b.Tag, metadata.TagAttribute, true)
		}
		for attribute, value := range b.Attributes {
			a.defaults.AddMetaData(b.Tag, attribute, value)
		}
	}
	return errs
}

func (a *ClassAdvisor) method(nameOrKey string) (*methodEntry, error) {
	jps := a.joinpoints.Load()
	if entry, ok := jps.methods[nameOrKey]; ok {
		return entry, nil
	}
	switch entries := jps.methodNames[nameOrKey]; len(entries) {
	case 0:
		return nil, fmt.Errorf("%w: method %s of %s", types.ErrJoinpointNotFound, nameOrKey, a.Name())
	case 1:
		return entries[0], nil
	default:
		return nil, fmt.Errorf("%w: method %s of %s is overloaded, use its key", types.ErrJoinpointNotFound, nameOrKey, a.Name())
	}
}

func (a *ClassAdvisor) field(name string) (*fieldEntry, error) {
	if entry, ok := a.joinpoints.Load().fields[name]; ok {
		return entry, nil
	}
	return nil, fmt.Errorf("%w: field %s of %s", types.ErrJoinpointNotFound, name, a.Name())
}

func (a *ClassAdvisor) constructor(key string) (*constructorEntry, error) {
	jps := a.joinpoints.Load()
	if entry, ok := jps.constructors[key]; ok {
		return entry, nil
	}
	if key == "" && len(jps.constructors) == 1 {
		for _, entry := range jps.constructors {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("%w: constructor %q of %s", types.ErrJoinpointNotFound, key, a.Name())
}

// Joinpoints lists the keys of the join points that have a non empty chain.
func (a *ClassAdvisor) Joinpoints() []string {
	jps := a.joinpoints.Load()
	var keys []string
	for _, m := range jps.methods {
		if len(m.chain) > 0 {
			keys = append(keys, m.jp.String())
		}
	}
	for _, f := range jps.fields {
		if len(f.readChain) > 0 {
			keys = append(keys, f.read.String())
		}
		if len(f.writeChain) > 0 {
			keys = append(keys, f.write.String())
		}
	}
	for _, c := range jps.constructors {
		if len(c.chain) > 0 {
			keys = append(keys, c.jp.String())
		}
	}
	sort.Strings(keys)
	return keys
}

// Chain returns the names of the interceptors bound to the method, in order.
func (a *ClassAdvisor) Chain(method string) ([]string, error) {
	entry, err := a.method(method)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entry.chain))
	for _, i := range entry.chain {
		names = append(names, i.Name())
	}
	return names, nil
}

// InvokeMethod calls method on target through its chain. method is a method
// name or a member key. target is nil for static methods.
func (a *ClassAdvisor) InvokeMethod(ctx context.Context, target interface{}, method string, args ...interface{}) (interface{}, error) {
	var ia *ClassInstanceAdvisor
	if target != nil {
		ia = a.InstanceAdvisorOf(target)
	}
	return a.invokeMethod(ctx, ia, target, method, args)
}

// ReadField reads field of target through its chain.
func (a *ClassAdvisor) ReadField(ctx context.Context, target interface{}, field string) (interface{}, error) {
	var ia *ClassInstanceAdvisor
	if target != nil {
		ia = a.InstanceAdvisorOf(target)
	}
	return a.readField(ctx, ia, target, field)
}

// WriteField writes value to field of target through its chain.
func (a *ClassAdvisor) WriteField(ctx context.Context, target interface{}, field string, value interface{}) error {
	var ia *ClassInstanceAdvisor
	if target != nil {
		ia = a.InstanceAdvisorOf(target)
	}
	return a.writeField(ctx, ia, target, field, value)
}

// Construct runs the constructor with the given key through its chain. An
// empty key selects the only constructor of the class.
func (a *ClassAdvisor) Construct(ctx context.Context, constructorKey string, args ...interface{}) (interface{}, error) {
	if a.destroyed.Load() {
		return nil, types.ErrAdvisorDestroyed
	}
	entry, err := a.constructor(constructorKey)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	instantiate := a.instantiators[entry.jp.Key()]
	a.mu.RUnlock()
	state := &callState{
		ctx:     WithCallFrame(ctx, CallFrame{Joinpoint: entry.jp}),
		advisor: a,
		args:    args,
	}
	return a.dispatch(newInvocation(state, entry.jp, entry.chain, construction{jp: entry.jp, instantiate: instantiate}))
}

func (a *ClassAdvisor) invokeMethod(ctx context.Context, ia *ClassInstanceAdvisor, target interface{}, method string, args []interface{}) (interface{}, error) {
	if a.destroyed.Load() {
		return nil, types.ErrAdvisorDestroyed
	}
	entry, err := a.method(method)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	invoker := a.invokers[entry.jp.Key()]
	a.mu.RUnlock()
	state := &callState{
		ctx:             WithCallFrame(ctx, CallFrame{Joinpoint: entry.jp, Target: target}),
		advisor:         a,
		instanceAdvisor: ia,
		target:          target,
		args:            args,
	}
	chain := entry.chain
	if ia != nil {
		chain = ia.chain(chain)
	}
	return a.dispatch(newInvocation(state, entry.jp, chain, methodCall{jp: entry.jp, invoker: invoker}))
}

func (a *ClassAdvisor) readField(ctx context.Context, ia *ClassInstanceAdvisor, target interface{}, field string) (interface{}, error) {
	if a.destroyed.Load() {
		return nil, types.ErrAdvisorDestroyed
	}
	entry, err := a.field(field)
	if err != nil {
		return nil, err
	}
	a.mu.RLock()
	getter := a.getters[entry.read.Key()]
	a.mu.RUnlock()
	state := &callState{
		ctx:             WithCallFrame(ctx, CallFrame{Joinpoint: entry.read, Target: target}),
		advisor:         a,
		instanceAdvisor: ia,
		target:          target,
	}
	chain := entry.readChain
	if ia != nil {
		chain = ia.chain(chain)
	}
	return a.dispatch(newInvocation(state, entry.read, chain, fieldRead{jp: entry.read, getter: getter}))
}

func (a *ClassAdvisor) writeField(ctx context.Context, ia *ClassInstanceAdvisor, target interface{}, field string, value interface{}) error {
	if a.destroyed.Load() {
		return types.ErrAdvisorDestroyed
	}
	entry, err := a.field(field)
	if err != nil {
		return err
	}
	a.mu.RLock()
	setter := a.setters[entry.write.Key()]
	a.mu.RUnlock()
	state := &callState{
		ctx:             WithCallFrame(ctx, CallFrame{Joinpoint: entry.write, Target: target}),
		advisor:         a,
		instanceAdvisor: ia,
		target:          target,
		args:            []interface{}{value},
	}
	chain := entry.writeChain
	if ia != nil {
		chain = ia.chain(chain)
	}
	_, err = a.dispatch(newInvocation(state, entry.write, chain, fieldWrite{jp: entry.write, setter: setter}))
	return err
}

func (a *ClassAdvisor) dispatch(inv types.Invocation) (interface{}, error) {
	a.metrics.IncrementCurrent()
	a.metrics.IncrementTotal()
	defer a.metrics.DecrementCurrent()
	result, err := inv.InvokeNext()
	if err != nil {
		a.metrics.IncrementFailed()
	} else {
		a.metrics.IncrementSuccess()
	}
	return result, err
}

// advisedObject is implemented by types embedding Advised.
type advisedObject interface {
	advised() *Advised
}

// InstanceAdvisorOf returns the instance advisor of target, creating it on
// first use. Objects embedding Advised hold their instance advisor; other
// hashable targets are tracked by this advisor until Release. A target that
// cannot be a map key, such as a struct holding a slice in an interface
// field, gets a new instance advisor on every call.
func (a *ClassAdvisor) InstanceAdvisorOf(target interface{}) *ClassInstanceAdvisor {
	if holder, ok := target.(advisedObject); ok {
		if ia := holder.advised().load(a); ia != nil {
			return ia
		}
		return holder.advised().loadOrStore(newClassInstanceAdvisor(a, target))
	}
	if !hashable(target) {
		return newClassInstanceAdvisor(a, target)
	}
	a.mu.RLock()
	ia, ok := a.instances[target]
	a.mu.RUnlock()
	if ok {
		return ia
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if ia, ok = a.instances[target]; ok {
		return ia
	}
	ia = newClassInstanceAdvisor(a, target)
	if !a.destroyed.Load() {
		a.instances[target] = ia
	}
	return ia
}

// noKeys is never written; looking a value up in it hashes the value.
var noKeys = map[interface{}]struct{}{}

// hashable reports whether target can be used as a map key. Comparability of
// an interface value depends on its dynamic contents, so a lookup is tried.
func hashable(target interface{}) (ok bool) {
	if target == nil || !reflect.TypeOf(target).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, _ = noKeys[target]
	return true
}

// Release forgets the instance advisor of target and drops its caches.
func (a *ClassAdvisor) Release(target interface{}) {
	var ia *ClassInstanceAdvisor
	if holder, ok := target.(advisedObject); ok {
		ia = holder.advised().release(a)
	} else if !hashable(target) {
		return
	}
	a.mu.Lock()
	if tracked, ok := a.instances[target]; ok {
		ia = tracked
		delete(a.instances, target)
	}
	a.mu.Unlock()
	if ia != nil {
		ia.Destroy()
	}
}

// Destroy drops every cache owned by this advisor and unregisters it from its
// manager. Entry points fail with types.ErrAdvisorDestroyed afterwards.
func (a *ClassAdvisor) Destroy() {
	a.manager.removeAdvisor(a)
	a.destroy()
}

func (a *ClassAdvisor) destroy() {
	if a.destroyed.Swap(true) {
		return
	}
	a.perClass.Clear()
	a.perClassJoinpoint.Clear()
	a.fieldAspects.Clear()
	a.mu.Lock()
	instances := a.instances
	a.instances = make(map[interface{}]*ClassInstanceAdvisor)
	a.mu.Unlock()
	for _, ia := range instances {
		ia.Destroy()
	}
	a.joinpoints.Store(&joinpoints{})
}

// IsDestroyed reports whether Destroy was called.
func (a *ClassAdvisor) IsDestroyed() bool {
	return a.destroyed.Load()
}
