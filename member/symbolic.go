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
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ClassDecl is the symbolic declaration of a class.
type ClassDecl struct {
	Name         string            `yaml:"name"`
	Modifiers    []string          `yaml:"modifiers,omitempty"`
	Interface    bool              `yaml:"interface,omitempty"`
	Superclass   string            `yaml:"superclass,omitempty"`
	Interfaces   []string          `yaml:"interfaces,omitempty"`
	Annotations  []string          `yaml:"annotations,omitempty"`
	Methods      []MethodDecl      `yaml:"methods,omitempty"`
	Fields       []FieldDecl       `yaml:"fields,omitempty"`
	Constructors []ConstructorDecl `yaml:"constructors,omitempty"`
}

// MethodDecl is the symbolic declaration of a method.
type MethodDecl struct {
	Name        string   `yaml:"name"`
	Modifiers   []string `yaml:"modifiers,omitempty"`
	Returns     string   `yaml:"returns,omitempty"`
	Params      []string `yaml:"params,omitempty"`
	Exceptions  []string `yaml:"exceptions,omitempty"`
	Annotations []string `yaml:"annotations,omitempty"`
}

// FieldDecl is the symbolic declaration of a field.
type FieldDecl struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Modifiers   []string `yaml:"modifiers,omitempty"`
	Annotations []string `yaml:"annotations,omitempty"`
}

// ConstructorDecl is the symbolic declaration of a constructor.
type ConstructorDecl struct {
	Modifiers   []string `yaml:"modifiers,omitempty"`
	Params      []string `yaml:"params,omitempty"`
	Exceptions  []string `yaml:"exceptions,omitempty"`
	Annotations []string `yaml:"annotations,omitempty"`
}

// ClassPool is a registry of symbolic class declarations.
// It is the pre-load counterpart of Loader.
type ClassPool struct {
	mu      sync.RWMutex
	classes map[string]*symbolicClass
	parent  Resolver
}

// NewClassPool creates an empty pool. Names not declared in the pool are
// looked up in parent when it is not nil.
func NewClassPool(parent Resolver) *ClassPool {
	return &ClassPool{
		classes: make(map[string]*symbolicClass),
		parent:  parent,
	}
}

// Add declares a class. Modifier names are validated eagerly.
func (p *ClassPool) Add(decl ClassDecl) (ClassInfo, error) {
	if decl.Name == "" {
		return nil, fmt.Errorf("class declaration without name")
	}
	c := &symbolicClass{pool: p, decl: decl}
	var err error
	if c.modifiers, err = ParseModifiers(decl.Modifiers); err != nil {
		return nil, fmt.Errorf("class %s: %w", decl.Name, err)
	}
	for _, md := range decl.Methods {
		m := &symbolicMethod{class: c, decl: md}
		if m.modifiers, err = ParseModifiers(md.Modifiers); err != nil {
			return nil, fmt.Errorf("method %s.%s: %w", decl.Name, md.Name, err)
		}
		c.methods = append(c.methods, m)
	}
	for _, fd := range decl.Fields {
		f := &symbolicField{class: c, decl: fd}
		if f.modifiers, err = ParseModifiers(fd.Modifiers); err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", decl.Name, fd.Name, err)
		}
		c.fields = append(c.fields, f)
	}
	for _, cd := range decl.Constructors {
		ctor := &symbolicConstructor{class: c, decl: cd}
		if ctor.modifiers, err = ParseModifiers(cd.Modifiers); err != nil {
			return nil, fmt.Errorf("constructor of %s: %w", decl.Name, err)
		}
		c.constructors = append(c.constructors, ctor)
	}
	p.mu.Lock()
	p.classes[decl.Name] = c
	p.mu.Unlock()
	return c, nil
}

// LoadYAML declares every class of a YAML list of ClassDecl.
func (p *ClassPool) LoadYAML(data []byte) ([]ClassInfo, error) {
	var decls []ClassDecl
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parsing class declarations: %w", err)
	}
	result := make([]ClassInfo, 0, len(decls))
	for _, decl := range decls {
		c, err := p.Add(decl)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}

// Resolve implements Resolver.
func (p *ClassPool) Resolve(name string) (ClassInfo, error) {
	name = ClassNameOf(name)
	if IsBuiltinTypeName(name) {
		return builtinClass(name), nil
	}
	p.mu.RLock()
	c, ok := p.classes[name]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}
	if p.parent != nil {
		return p.parent.Resolve(name)
	}
	return nil, &ClassNotFoundError{Name: name}
}

// Names returns the declared class names, sorted.
func (p *ClassPool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.classes))
	for name := range p.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type symbolicClass struct {
	pool         *ClassPool
	decl         ClassDecl
	modifiers    Modifier
	methods      []MethodInfo
	fields       []FieldInfo
	constructors []ConstructorInfo
}

func (c *symbolicClass) Name() string        { return c.decl.Name }
func (c *symbolicClass) Modifiers() Modifier { return c.modifiers }
func (c *symbolicClass) IsInterface() bool   { return c.decl.Interface }

func (c *symbolicClass) Superclass() (ClassInfo, error) {
	if c.decl.Superclass == "" {
		return nil, nil
	}
	return c.pool.Resolve(c.decl.Superclass)
}

func (c *symbolicClass) Interfaces() ([]ClassInfo, error) {
	return resolveTypes(c.pool, c.decl.Interfaces)
}

func (c *symbolicClass) Methods() []MethodInfo           { return c.methods }
func (c *symbolicClass) Fields() []FieldInfo             { return c.fields }
func (c *symbolicClass) Constructors() []ConstructorInfo { return c.constructors }
func (c *symbolicClass) Annotations() []string           { return c.decl.Annotations }
func (c *symbolicClass) Resolver() Resolver              { return c.pool }
func (c *symbolicClass) HasAnnotation(annotation string) bool {
	return hasAnnotation(c.decl.Annotations, annotation)
}

type symbolicMethod struct {
	class     *symbolicClass
	decl      MethodDecl
	modifiers Modifier
}

func (m *symbolicMethod) Name() string { return m.decl.Name }

func (m *symbolicMethod) Key() string {
	return MethodKey(m.class.Name(), m.decl.Name, m.decl.Params)
}

func (m *symbolicMethod) Modifiers() Modifier                { return m.modifiers }
func (m *symbolicMethod) DeclaringClass() (ClassInfo, error) { return m.class, nil }
func (m *symbolicMethod) ParameterTypeNames() []string       { return m.decl.Params }

func (m *symbolicMethod) ParameterTypes() ([]ClassInfo, error) {
	return resolveTypes(m.class.pool, m.decl.Params)
}

func (m *symbolicMethod) ReturnTypeName() string {
	if m.decl.Returns == "" {
		return Void
	}
	return m.decl.Returns
}

func (m *symbolicMethod) ReturnType() (ClassInfo, error) {
	return ResolveType(m.class.pool, m.ReturnTypeName())
}

func (m *symbolicMethod) ExceptionTypeNames() []string { return m.decl.Exceptions }

func (m *symbolicMethod) ExceptionTypes() ([]ClassInfo, error) {
	return resolveTypes(m.class.pool, m.decl.Exceptions)
}

func (m *symbolicMethod) Annotations() []string { return m.decl.Annotations }

func (m *symbolicMethod) HasAnnotation(annotation string) bool {
	return hasAnnotation(m.decl.Annotations, annotation)
}

type symbolicField struct {
	class     *symbolicClass
	decl      FieldDecl
	modifiers Modifier
}

func (f *symbolicField) Name() string                       { return f.decl.Name }
func (f *symbolicField) Key() string                        { return FieldKey(f.class.Name(), f.decl.Name) }
func (f *symbolicField) Modifiers() Modifier                { return f.modifiers }
func (f *symbolicField) DeclaringClass() (ClassInfo, error) { return f.class, nil }
func (f *symbolicField) TypeName() string                   { return f.decl.Type }
func (f *symbolicField) Type() (ClassInfo, error)           { return ResolveType(f.class.pool, f.decl.Type) }
func (f *symbolicField) Annotations() []string              { return f.decl.Annotations }

func (f *symbolicField) HasAnnotation(annotation string) bool {
	return hasAnnotation(f.decl.Annotations, annotation)
}

type symbolicConstructor struct {
	class     *symbolicClass
	decl      ConstructorDecl
	modifiers Modifier
}

func (c *symbolicConstructor) Key() string {
	return ConstructorKey(c.class.Name(), c.decl.Params)
}

func (c *symbolicConstructor) Modifiers() Modifier                { return c.modifiers }
func (c *symbolicConstructor) DeclaringClass() (ClassInfo, error) { return c.class, nil }
func (c *symbolicConstructor) ParameterTypeNames() []string       { return c.decl.Params }

func (c *symbolicConstructor) ParameterTypes() ([]ClassInfo, error) {
	return resolveTypes(c.class.pool, c.decl.Params)
}

func (c *symbolicConstructor) ExceptionTypeNames() []string { return c.decl.Exceptions }

func (c *symbolicConstructor) ExceptionTypes() ([]ClassInfo, error) {
	return resolveTypes(c.class.pool, c.decl.Exceptions)
}

func (c *symbolicConstructor) Annotations() []string { return c.decl.Annotations }

func (c *symbolicConstructor) HasAnnotation(annotation string) bool {
	return hasAnnotation(c.decl.Annotations, annotation)
}
