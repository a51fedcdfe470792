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

package member

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// TagName is the struct tag holding field annotations, e.g. `aop:"@Audited,@Cached"`.
// An embedded field tagged `aop:"-"` is ignored for superclass and method resolution.
const TagName = "aop"

// ClassAnnotated lets a live type declare class annotations.
type ClassAnnotated interface {
	ClassAnnotations() []string
}

// MethodAnnotated lets a live type declare annotations per method name.
type MethodAnnotated interface {
	MethodAnnotations() map[string][]string
}

var (
	errorType           = reflect.TypeOf((*error)(nil)).Elem()
	annotationProviders = map[string]bool{"ClassAnnotations": true, "MethodAnnotations": true}
)

// TypeName returns the structural name of a Go type: package path qualified for
// named types, predeclared names as is, composite types spelled out.
func TypeName(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Ptr:
		return "*" + TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + TypeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), TypeName(t.Elem()))
	case reflect.Map:
		return "map[" + TypeName(t.Key()) + "]" + TypeName(t.Elem())
	}
	if t.Name() != "" {
		if t.PkgPath() != "" {
			return t.PkgPath() + "." + t.Name()
		}
		return t.Name()
	}
	return t.String()
}

// Loader resolves live Go types. It is the runtime counterpart of ClassPool.
type Loader struct {
	mu           sync.RWMutex
	types        map[string]reflect.Type
	interfaces   []reflect.Type
	constructors map[string][]*liveConstructor
	classes      map[reflect.Type]*liveClass
}

// NewLoader creates an empty Loader.
func NewLoader() *Loader {
	return &Loader{
		types:        make(map[string]reflect.Type),
		constructors: make(map[string][]*liveConstructor),
		classes:      make(map[reflect.Type]*liveClass),
	}
}

// Register makes types resolvable by name. Each value may be a reflect.Type, a
// value or pointer of a struct type, or a nil pointer to an interface type,
// e.g. (*io.Reader)(nil).
func (l *Loader) Register(values ...interface{}) {
	for _, v := range values {
		l.RegisterType(typeOf(v))
	}
}

// RegisterType makes t resolvable by name.
func (l *Loader) RegisterType(t reflect.Type) {
	t = baseType(t)
	l.mu.Lock()
	defer l.mu.Unlock()
	name := TypeName(t)
	if _, ok := l.types[name]; ok {
		return
	}
	l.types[name] = t
	if t.Kind() == reflect.Interface {
		l.interfaces = append(l.interfaces, t)
	}
}

// RegisterConstructor registers a NewX-style function as a constructor of the
// type it returns. fn must return *T or (*T, error).
func (l *Loader) RegisterConstructor(fn interface{}, annotations ...string) (ConstructorInfo, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a func, got %T", fn)
	}
	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) {
		return nil, fmt.Errorf("constructor %s must return T or (T, error)", ft)
	}
	class := baseType(ft.Out(0))
	if class.Kind() != reflect.Struct {
		return nil, fmt.Errorf("constructor %s must return a struct type", ft)
	}
	c := &liveConstructor{class: l.Class(class).(*liveClass), fn: v, annotations: annotations}
	l.mu.Lock()
	l.constructors[TypeName(class)] = append(l.constructors[TypeName(class)], c)
	l.mu.Unlock()
	return c, nil
}

// ClassOf returns the ClassInfo of a value, pointer or reflect.Type.
func (l *Loader) ClassOf(v interface{}) ClassInfo {
	return l.Class(typeOf(v))
}

// Class returns the ClassInfo of t, registering it on first use.
func (l *Loader) Class(t reflect.Type) ClassInfo {
	t = baseType(t)
	if IsBuiltinTypeName(TypeName(t)) {
		return builtinClass(TypeName(t))
	}
	l.mu.RLock()
	c, ok := l.classes[t]
	l.mu.RUnlock()
	if ok {
		return c
	}
	l.RegisterType(t)
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.classes[t]; ok {
		return c
	}
	c = &liveClass{loader: l, t: t}
	l.classes[t] = c
	return c
}

// Resolve implements Resolver over registered types.
func (l *Loader) Resolve(name string) (ClassInfo, error) {
	name = ClassNameOf(name)
	if IsBuiltinTypeName(name) {
		return builtinClass(name), nil
	}
	l.mu.RLock()
	t, ok := l.types[name]
	l.mu.RUnlock()
	if !ok {
		return nil, &ClassNotFoundError{Name: name}
	}
	return l.Class(t), nil
}

func (l *Loader) registeredInterfaces() []reflect.Type {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]reflect.Type(nil), l.interfaces...)
}

func typeOf(v interface{}) reflect.Type {
	if t, ok := v.(reflect.Type); ok {
		return t
	}
	return reflect.TypeOf(v)
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func exported(name string) bool {
	for _, r := range name {
		return unicode.IsUpper(r)
	}
	return false
}

func visibility(name string) Modifier {
	if exported(name) {
		return Public
	}
	return Private
}

func ignored(f reflect.StructField) bool {
	return f.Tag.Get(TagName) == "-"
}

// superField returns the embedded struct acting as superclass.
func superField(t reflect.Type) (reflect.StructField, bool) {
	if t.Kind() != reflect.Struct {
		return reflect.StructField{}, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && !ignored(f) && baseType(f.Type).Kind() == reflect.Struct {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func hasMethod(t reflect.Type, name string) bool {
	if t.Kind() == reflect.Interface {
		_, ok := t.MethodByName(name)
		return ok
	}
	_, ok := reflect.PtrTo(t).MethodByName(name)
	return ok
}

// declaredOn reports whether t itself declares name, as opposed to the method
// being a compiler generated promotion wrapper.
func declaredOn(t reflect.Type, name string) bool {
	for _, candidate := range []reflect.Type{t, reflect.PtrTo(t)} {
		m, ok := candidate.MethodByName(name)
		if !ok {
			continue
		}
		fn := runtime.FuncForPC(m.Func.Pointer())
		if fn == nil {
			return true
		}
		if file, _ := fn.FileLine(fn.Entry()); file != "<autogenerated>" {
			return true
		}
	}
	return false
}

// declaringType follows method promotion through embedded fields to the type
// that declares name. hidden is true when the method comes from an ignored field.
func declaringType(t reflect.Type, name string) (declaring reflect.Type, hidden bool) {
	if t.Kind() != reflect.Struct {
		return t, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		base := baseType(f.Type)
		if !hasMethod(base, name) {
			continue
		}
		if declaredOn(t, name) {
			return t, false
		}
		if ignored(f) {
			return base, true
		}
		if base.Kind() == reflect.Struct {
			return declaringType(base, name)
		}
		return base, false
	}
	return t, false
}

type liveClass struct {
	loader *Loader
	t      reflect.Type

	once         sync.Once
	methods      []MethodInfo
	fields       []FieldInfo
	methodAnnots map[string][]string
	classAnnots  []string
}

func (c *liveClass) init() {
	c.once.Do(func() {
		if c.t.Kind() == reflect.Struct {
			sample := reflect.New(c.t).Interface()
			if a, ok := sample.(ClassAnnotated); ok {
				c.classAnnots = a.ClassAnnotations()
			}
			if a, ok := sample.(MethodAnnotated); ok {
				c.methodAnnots = a.MethodAnnotations()
			}
		}
		c.methods = c.declaredMethods()
		c.fields = c.declaredFields()
	})
}

func (c *liveClass) declaredMethods() []MethodInfo {
	var result []MethodInfo
	if c.t.Kind() == reflect.Interface {
		for i := 0; i < c.t.NumMethod(); i++ {
			m := c.t.Method(i)
			result = append(result, newLiveMethod(c, m.Name, m.Type, false))
		}
		return result
	}
	pt := reflect.PtrTo(c.t)
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if annotationProviders[m.Name] {
			continue
		}
		if declaring, hidden := declaringType(c.t, m.Name); hidden || declaring != c.t {
			continue
		}
		result = append(result, newLiveMethod(c, m.Name, m.Type, true))
	}
	return result
}

func (c *liveClass) declaredFields() []FieldInfo {
	var result []FieldInfo
	if c.t.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < c.t.NumField(); i++ {
		f := c.t.Field(i)
		if f.Anonymous {
			continue
		}
		result = append(result, &liveField{class: c, field: f})
	}
	return result
}

func (c *liveClass) Name() string { return TypeName(c.t) }

func (c *liveClass) Modifiers() Modifier { return visibility(c.t.Name()) }

func (c *liveClass) IsInterface() bool { return c.t.Kind() == reflect.Interface }

func (c *liveClass) Superclass() (ClassInfo, error) {
	f, ok := superField(c.t)
	if !ok {
		return nil, nil
	}
	return c.loader.Class(f.Type), nil
}

func (c *liveClass) Interfaces() ([]ClassInfo, error) {
	var result []ClassInfo
	if c.t.Kind() == reflect.Interface {
		for _, iface := range c.loader.registeredInterfaces() {
			if iface != c.t && c.t.Implements(iface) {
				result = append(result, c.loader.Class(iface))
			}
		}
		return result, nil
	}
	self := reflect.PtrTo(c.t)
	var super reflect.Type
	if f, ok := superField(c.t); ok {
		super = reflect.PtrTo(baseType(f.Type))
	}
	for _, iface := range c.loader.registeredInterfaces() {
		if !self.Implements(iface) {
			continue
		}
		if super != nil && super.Implements(iface) {
			continue
		}
		result = append(result, c.loader.Class(iface))
	}
	return result, nil
}

func (c *liveClass) Methods() []MethodInfo {
	c.init()
	return c.methods
}

func (c *liveClass) Fields() []FieldInfo {
	c.init()
	return c.fields
}

func (c *liveClass) Constructors() []ConstructorInfo {
	c.loader.mu.RLock()
	defer c.loader.mu.RUnlock()
	ctors := c.loader.constructors[c.Name()]
	result := make([]ConstructorInfo, 0, len(ctors))
	for _, ctor := range ctors {
		result = append(result, ctor)
	}
	return result
}

func (c *liveClass) Annotations() []string {
	c.init()
	return c.classAnnots
}

func (c *liveClass) HasAnnotation(annotation string) bool {
	return hasAnnotation(c.Annotations(), annotation)
}

func (c *liveClass) Resolver() Resolver { return c.loader }

type liveMethod struct {
	class      *liveClass
	name       string
	in         []reflect.Type
	params     []string
	returns    string
	out        reflect.Type
	exceptions []string
}

func newLiveMethod(class *liveClass, name string, ft reflect.Type, hasReceiver bool) *liveMethod {
	m := &liveMethod{class: class, name: name}
	start := 0
	if hasReceiver {
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		m.in = append(m.in, ft.In(i))
		m.params = append(m.params, TypeName(ft.In(i)))
	}
	m.returns, m.exceptions = results(ft)
	if ft.NumOut() > 0 && ft.Out(0) != errorType && !strings.HasPrefix(m.returns, "(") {
		m.out = ft.Out(0)
	}
	return m
}

func (l *Loader) classesOf(in []reflect.Type) []ClassInfo {
	result := make([]ClassInfo, 0, len(in))
	for _, t := range in {
		result = append(result, l.Class(t))
	}
	return result
}

// results splits a func type's results into the return type name and the
// declared exceptions: a trailing error result is the only exception.
func results(ft reflect.Type) (string, []string) {
	var outs []string
	var exceptions []string
	for i := 0; i < ft.NumOut(); i++ {
		out := ft.Out(i)
		if i == ft.NumOut()-1 && out == errorType {
			exceptions = []string{ErrorTypeName}
			continue
		}
		outs = append(outs, TypeName(out))
	}
	switch len(outs) {
	case 0:
		return Void, exceptions
	case 1:
		return outs[0], exceptions
	default:
		return "(" + strings.Join(outs, ",") + ")", exceptions
	}
}

func (m *liveMethod) Name() string { return m.name }

func (m *liveMethod) Key() string { return MethodKey(m.class.Name(), m.name, m.params) }

func (m *liveMethod) Modifiers() Modifier { return visibility(m.name) }

func (m *liveMethod) DeclaringClass() (ClassInfo, error) { return m.class, nil }

func (m *liveMethod) ParameterTypeNames() []string { return m.params }

func (m *liveMethod) ParameterTypes() ([]ClassInfo, error) {
	return m.class.loader.classesOf(m.in), nil
}

func (m *liveMethod) ReturnTypeName() string { return m.returns }

func (m *liveMethod) ReturnType() (ClassInfo, error) {
	if m.out == nil {
		return builtinClass(m.returns), nil
	}
	return m.class.loader.Class(m.out), nil
}

func (m *liveMethod) ExceptionTypeNames() []string { return m.exceptions }

func (m *liveMethod) ExceptionTypes() ([]ClassInfo, error) {
	return resolveTypes(m.class.loader, m.exceptions)
}

func (m *liveMethod) Annotations() []string {
	m.class.init()
	return m.class.methodAnnots[m.name]
}

func (m *liveMethod) HasAnnotation(annotation string) bool {
	return hasAnnotation(m.Annotations(), annotation)
}

type liveField struct {
	class *liveClass
	field reflect.StructField
}

func (f *liveField) Name() string { return f.field.Name }

func (f *liveField) Key() string { return FieldKey(f.class.Name(), f.field.Name) }

func (f *liveField) Modifiers() Modifier { return visibility(f.field.Name) }

func (f *liveField) DeclaringClass() (ClassInfo, error) { return f.class, nil }

func (f *liveField) TypeName() string { return TypeName(f.field.Type) }

func (f *liveField) Type() (ClassInfo, error) {
	return f.class.loader.Class(f.field.Type), nil
}

func (f *liveField) Annotations() []string {
	tag := f.field.Tag.Get(TagName)
	if tag == "" || tag == "-" {
		return nil
	}
	var result []string
	for _, a := range strings.Split(tag, ",") {
		if a = strings.TrimSpace(a); a != "" {
			result = append(result, a)
		}
	}
	return result
}

func (f *liveField) HasAnnotation(annotation string) bool {
	return hasAnnotation(f.Annotations(), annotation)
}

type liveConstructor struct {
	class       *liveClass
	fn          reflect.Value
	annotations []string
}

func (c *liveConstructor) in() []reflect.Type {
	ft := c.fn.Type()
	in := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		in = append(in, ft.In(i))
	}
	return in
}

func (c *liveConstructor) params() []string {
	var params []string
	for _, t := range c.in() {
		params = append(params, TypeName(t))
	}
	return params
}

func (c *liveConstructor) Key() string { return ConstructorKey(c.class.Name(), c.params()) }

func (c *liveConstructor) Modifiers() Modifier { return Public }

func (c *liveConstructor) DeclaringClass() (ClassInfo, error) { return c.class, nil }

func (c *liveConstructor) ParameterTypeNames() []string { return c.params() }

func (c *liveConstructor) ParameterTypes() ([]ClassInfo, error) {
	return c.class.loader.classesOf(c.in()), nil
}

func (c *liveConstructor) ExceptionTypeNames() []string {
	_, exceptions := results(c.fn.Type())
	return exceptions
}

func (c *liveConstructor) ExceptionTypes() ([]ClassInfo, error) {
	return resolveTypes(c.class.loader, c.ExceptionTypeNames())
}

func (c *liveConstructor) Annotations() []string { return c.annotations }

func (c *liveConstructor) HasAnnotation(annotation string) bool {
	return hasAnnotation(c.annotations, annotation)
}

// Func returns the constructor function.
func (c *liveConstructor) Func() reflect.Value { return c.fn }

// GoType returns the Go type behind a live ClassInfo.
func GoType(c ClassInfo) (reflect.Type, bool) {
	if lc, ok := c.(*liveClass); ok {
		return lc.t, true
	}
	return nil, false
}

// ConstructorFunc returns the function behind a live ConstructorInfo.
func ConstructorFunc(c ConstructorInfo) (reflect.Value, bool) {
	if lc, ok := c.(*liveConstructor); ok {
		return lc.fn, true
	}
	return reflect.Value{}, false
}
