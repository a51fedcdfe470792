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

// Package member describes the structure of advisable classes and their members.
//
// Two representations implement the same interfaces:
//
//   - ClassPool holds symbolic declarations (ClassDecl). They describe a class
//     before anything about it is loaded; type references are plain names and are
//     resolved lazily through the pool.
//   - Loader wraps live Go types through reflect. An embedded struct plays the role
//     of the superclass, registered interface types play the role of implemented
//     interfaces, and registered NewX-style functions play the role of constructors.
//
// Both representations produce the same names and structural keys for the same
// member, so a pointcut evaluated against either gives the same answer.
package member

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Void is the return type name of a method without results.
	Void = "void"
	// ConstructorName is the member name of every constructor.
	ConstructorName = "new"
	// ErrorTypeName is the name of Go's error type, the only declarable exception.
	ErrorTypeName = "error"
)

// ErrClassNotFound is returned when a referenced type cannot be resolved.
var ErrClassNotFound = errors.New("class not found")

// ClassNotFoundError names the type that could not be resolved.
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class not found: %s", e.Name)
}

func (e *ClassNotFoundError) Is(target error) bool {
	return target == ErrClassNotFound
}

// Resolver turns a type name into a ClassInfo.
type Resolver interface {
	Resolve(name string) (ClassInfo, error)
}

// ClassInfo describes an advisable type.
type ClassInfo interface {
	Name() string
	Modifiers() Modifier
	IsInterface() bool
	// Superclass returns nil, nil for a root type.
	Superclass() (ClassInfo, error)
	Interfaces() ([]ClassInfo, error)
	// Methods returns the methods declared by this type only.
	Methods() []MethodInfo
	Fields() []FieldInfo
	Constructors() []ConstructorInfo
	Annotations() []string
	HasAnnotation(annotation string) bool
	// Resolver resolves type names referenced by this type's members.
	Resolver() Resolver
}

// MethodInfo describes one method.
type MethodInfo interface {
	Name() string
	Key() string
	Modifiers() Modifier
	DeclaringClass() (ClassInfo, error)
	ParameterTypeNames() []string
	ParameterTypes() ([]ClassInfo, error)
	ReturnTypeName() string
	ReturnType() (ClassInfo, error)
	ExceptionTypeNames() []string
	ExceptionTypes() ([]ClassInfo, error)
	Annotations() []string
	HasAnnotation(annotation string) bool
}

// FieldInfo describes one field.
type FieldInfo interface {
	Name() string
	Key() string
	Modifiers() Modifier
	DeclaringClass() (ClassInfo, error)
	TypeName() string
	Type() (ClassInfo, error)
	Annotations() []string
	HasAnnotation(annotation string) bool
}

// ConstructorInfo describes one constructor.
type ConstructorInfo interface {
	Key() string
	Modifiers() Modifier
	DeclaringClass() (ClassInfo, error)
	ParameterTypeNames() []string
	ParameterTypes() ([]ClassInfo, error)
	ExceptionTypeNames() []string
	ExceptionTypes() ([]ClassInfo, error)
	Annotations() []string
	HasAnnotation(annotation string) bool
}

// MethodKey is the structural key of a method.
func MethodKey(class, name string, params []string) string {
	return class + "." + name + "(" + strings.Join(params, ",") + ")"
}

// FieldKey is the structural key of a field.
func FieldKey(class, name string) string {
	return class + "." + name
}

// ConstructorKey is the structural key of a constructor.
func ConstructorKey(class string, params []string) string {
	return MethodKey(class, ConstructorName, params)
}

// NormalizeAnnotation strips the leading '@' of an annotation name.
func NormalizeAnnotation(annotation string) string {
	return strings.TrimPrefix(strings.TrimSpace(annotation), "@")
}

// ClassNameOf strips pointer indirections from a type name.
func ClassNameOf(typeName string) string {
	return strings.TrimLeft(typeName, "*")
}

var predeclared = map[string]bool{
	Void: true, ErrorTypeName: true, "any": true, "bool": true, "string": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true, "uintptr": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
	"byte": true, "rune": true, "interface {}": true,
}

// IsBuiltinTypeName reports whether name needs no resolution: predeclared and
// composite types (slices, arrays, maps, funcs, channels, literals).
func IsBuiltinTypeName(name string) bool {
	name = ClassNameOf(name)
	if predeclared[name] {
		return true
	}
	for _, prefix := range []string{"[", "map[", "func", "chan ", "<-chan", "struct {", "interface {"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ResolveType resolves a referenced type name through r.
// Builtin type names resolve without consulting r.
func ResolveType(r Resolver, name string) (ClassInfo, error) {
	name = ClassNameOf(name)
	if IsBuiltinTypeName(name) {
		return builtinClass(name), nil
	}
	if r == nil {
		return nil, &ClassNotFoundError{Name: name}
	}
	return r.Resolve(name)
}

func resolveTypes(r Resolver, names []string) ([]ClassInfo, error) {
	types := make([]ClassInfo, 0, len(names))
	for _, name := range names {
		c, err := ResolveType(r, name)
		if err != nil {
			return nil, err
		}
		types = append(types, c)
	}
	return types, nil
}

func hasAnnotation(annotations []string, annotation string) bool {
	annotation = NormalizeAnnotation(annotation)
	for _, a := range annotations {
		if NormalizeAnnotation(a) == annotation {
			return true
		}
	}
	return false
}

// DirectSupertypes returns the superclass (if any) followed by the interfaces of c.
func DirectSupertypes(c ClassInfo) ([]ClassInfo, error) {
	var result []ClassInfo
	super, err := c.Superclass()
	if err != nil {
		return nil, err
	}
	if super != nil {
		result = append(result, super)
	}
	ifaces, err := c.Interfaces()
	if err != nil {
		return nil, err
	}
	return append(result, ifaces...), nil
}

// Ancestors returns every supertype of c, breadth first, without duplicates.
func Ancestors(c ClassInfo) ([]ClassInfo, error) {
	var result []ClassInfo
	seen := map[string]bool{c.Name(): true}
	queue := []ClassInfo{c}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		supers, err := DirectSupertypes(current)
		if err != nil {
			return nil, err
		}
		for _, s := range supers {
			if seen[s.Name()] {
				continue
			}
			seen[s.Name()] = true
			result = append(result, s)
			queue = append(queue, s)
		}
	}
	return result, nil
}

// IsAssignable reports whether sub is super or one of its descendants.
func IsAssignable(sub, super ClassInfo) (bool, error) {
	if sub.Name() == super.Name() {
		return true, nil
	}
	ancestors, err := Ancestors(sub)
	if err != nil {
		return false, err
	}
	for _, a := range ancestors {
		if a.Name() == super.Name() {
			return true, nil
		}
	}
	return false, nil
}

// signature is the name+parameters part of a method key, used to detect overrides.
func signature(m MethodInfo) string {
	return m.Name() + "(" + strings.Join(m.ParameterTypeNames(), ",") + ")"
}

// SameSignature reports whether a and b have the same name and parameter types.
func SameSignature(a, b MethodInfo) bool {
	return signature(a) == signature(b)
}

// AllMethods returns the methods declared by c followed by the inherited ones
// it does not override, walking the superclass chain.
func AllMethods(c ClassInfo) ([]MethodInfo, error) {
	var result []MethodInfo
	seen := make(map[string]bool)
	for current := c; current != nil; {
		for _, m := range current.Methods() {
			sig := signature(m)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			result = append(result, m)
		}
		super, err := current.Superclass()
		if err != nil {
			return nil, err
		}
		current = super
	}
	return result, nil
}

// AllFields returns the fields of c and of its superclass chain.
func AllFields(c ClassInfo) ([]FieldInfo, error) {
	var result []FieldInfo
	seen := make(map[string]bool)
	for current := c; current != nil; {
		for _, f := range current.Fields() {
			if seen[f.Name()] {
				continue
			}
			seen[f.Name()] = true
			result = append(result, f)
		}
		super, err := current.Superclass()
		if err != nil {
			return nil, err
		}
		current = super
	}
	return result, nil
}

// builtinClass is a predeclared or composite type: no supertypes, no members.
type builtinClass string

func (b builtinClass) Name() string                         { return string(b) }
func (b builtinClass) Modifiers() Modifier                  { return Public }
func (b builtinClass) IsInterface() bool                    { return string(b) == ErrorTypeName || string(b) == "any" }
func (b builtinClass) Superclass() (ClassInfo, error)       { return nil, nil }
func (b builtinClass) Interfaces() ([]ClassInfo, error)     { return nil, nil }
func (b builtinClass) Methods() []MethodInfo                { return nil }
func (b builtinClass) Fields() []FieldInfo                  { return nil }
func (b builtinClass) Constructors() []ConstructorInfo      { return nil }
func (b builtinClass) Annotations() []string                { return nil }
func (b builtinClass) HasAnnotation(annotation string) bool { return false }
func (b builtinClass) Resolver() Resolver                   { return nil }
