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

// Package pointcut evaluates pointcut expression trees against members.
//
// Trees are built from the node types of this package, either directly or with
// Decode from their YAML form. A Matcher evaluates a tree against a method, a
// field access or a constructor described by the member package. Symbolic
// descriptors from a ClassPool and live descriptors from a Loader give the same
// answer for the same member.
//
// A type that cannot be resolved while matching is reported as a
// *types.MatchEvaluationError, never as a non-match.
package pointcut

import (
	"errors"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/metadata"
)

// MatchOptions carries the context of an evaluation.
type MatchOptions struct {
	// Advisor is the advisor of the class being woven, if any. Its metadata is
	// consulted by annotation queries.
	Advisor types.Advisor
	// MatchOnAdvisor lets an inherited member match a class expression naming
	// the advised class when its declaring class does not match.
	MatchOnAdvisor bool
}

// Matcher evaluates one expression tree.
type Matcher struct {
	expr Node
	opts MatchOptions
}

// NewMatcher creates a Matcher for expr.
func NewMatcher(expr Node, opts MatchOptions) *Matcher {
	return &Matcher{expr: expr, opts: opts}
}

// MatchesMethod reports whether an execution of m is selected.
func (m *Matcher) MatchesMethod(method member.MethodInfo) (bool, error) {
	return m.run(&evaluation{kind: types.MethodExecution, method: method, opts: m.opts}, method.Key())
}

// MatchesField reports whether a read (write=false) or write of f is selected.
func (m *Matcher) MatchesField(field member.FieldInfo, write bool) (bool, error) {
	kind := types.FieldRead
	if write {
		kind = types.FieldWrite
	}
	return m.run(&evaluation{kind: kind, field: field, opts: m.opts}, field.Key())
}

// MatchesConstructor reports whether an execution of c is selected.
func (m *Matcher) MatchesConstructor(c member.ConstructorInfo) (bool, error) {
	return m.run(&evaluation{kind: types.ConstructorExecution, constructor: c, opts: m.opts}, c.Key())
}

// MatchesClass reports whether at least one member of c is selected.
func (m *Matcher) MatchesClass(c member.ClassInfo) (bool, error) {
	methods, err := member.AllMethods(c)
	if err != nil {
		return false, &types.MatchEvaluationError{Member: c.Name(), Cause: err}
	}
	for _, method := range methods {
		if ok, err := m.MatchesMethod(method); err != nil || ok {
			return ok, err
		}
	}
	fields, err := member.AllFields(c)
	if err != nil {
		return false, &types.MatchEvaluationError{Member: c.Name(), Cause: err}
	}
	for _, field := range fields {
		for _, write := range []bool{false, true} {
			if ok, err := m.MatchesField(field, write); err != nil || ok {
				return ok, err
			}
		}
	}
	for _, ctor := range c.Constructors() {
		if ok, err := m.MatchesConstructor(ctor); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) run(e *evaluation, key string) (bool, error) {
	ok, err := m.expr.eval(e)
	if err != nil {
		var evalErr *types.MatchEvaluationError
		if errors.As(err, &evalErr) {
			return false, err
		}
		return false, &types.MatchEvaluationError{Member: key, Cause: err}
	}
	return ok, nil
}

type evaluation struct {
	kind        types.JoinpointKind
	method      member.MethodInfo
	field       member.FieldInfo
	constructor member.ConstructorInfo
	opts        MatchOptions
}

func (e *evaluation) declaringClass() (member.ClassInfo, error) {
	switch e.kind {
	case types.MethodExecution:
		return e.method.DeclaringClass()
	case types.FieldRead, types.FieldWrite:
		return e.field.DeclaringClass()
	default:
		return e.constructor.DeclaringClass()
	}
}

// matchesClass matches the declaring class, falling back to the advised class
// when advisor level matching is enabled and the member is inherited by it.
func (e *evaluation) matchesClass(expr ClassExpression, declaring member.ClassInfo) (bool, error) {
	ok, err := expr.Matches(declaring)
	if err != nil || ok {
		return ok, err
	}
	if !e.opts.MatchOnAdvisor || e.opts.Advisor == nil {
		return false, nil
	}
	advised := e.opts.Advisor.Class()
	if advised == nil || advised.Name() == declaring.Name() {
		return false, nil
	}
	inherited, err := member.IsAssignable(advised, declaring)
	if err != nil || !inherited {
		return false, err
	}
	return expr.Matches(advised)
}

type storeOf func(types.Advisor) *metadata.Store

func methodStore(a types.Advisor) *metadata.Store      { return a.MethodMetaData() }
func fieldStore(a types.Advisor) *metadata.Store       { return a.FieldMetaData() }
func constructorStore(a types.Advisor) *metadata.Store { return a.ConstructorMetaData() }

// annotated consults exact member metadata, then the advisor's default metadata,
// then the annotations attached to the member. The first hit wins.
func (e *evaluation) annotated(store storeOf, key string, attached func(string) bool, annotation string) bool {
	annotation = member.NormalizeAnnotation(annotation)
	if advisor := e.opts.Advisor; advisor != nil {
		if s := store(advisor); s != nil && s.HasExactTag(key, annotation) {
			return true
		}
		if d := advisor.DefaultMetaData(); d != nil && d.HasTag(annotation) {
			return true
		}
	}
	return attached(annotation)
}

func (e *evaluation) matchesMethodIdentifier(id Identifier, m member.MethodInfo, declaring member.ClassInfo) (bool, error) {
	switch id.kind {
	case identifierAnnotation:
		return e.annotated(methodStore, m.Key(), m.HasAnnotation, id.name), nil
	case identifierImplements, identifierImplementing:
		var supers []member.ClassInfo
		var err error
		if id.kind == identifierImplements {
			supers, err = member.DirectSupertypes(declaring)
		} else {
			supers, err = member.Ancestors(declaring)
		}
		if err != nil {
			return false, err
		}
		for _, super := range supers {
			ok, err := id.class.Matches(super)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
			for _, candidate := range super.Methods() {
				if member.SameSignature(candidate, m) {
					return true, nil
				}
			}
		}
		return false, nil
	default:
		return id.matchesName(m.Name()), nil
	}
}

func (e *evaluation) env() (map[string]interface{}, error) {
	env := map[string]interface{}{
		"kind":    e.kind.String(),
		"advised": "",
	}
	if e.opts.Advisor != nil && e.opts.Advisor.Class() != nil {
		env["advised"] = e.opts.Advisor.Class().Name()
	}
	declaring, err := e.declaringClass()
	if err != nil {
		return nil, err
	}
	env["class"] = declaring.Name()
	var modifiers member.Modifier
	switch e.kind {
	case types.MethodExecution:
		modifiers = e.method.Modifiers()
		env["name"] = e.method.Name()
		env["key"] = e.method.Key()
		env["annotations"] = e.method.Annotations()
		env["params"] = e.method.ParameterTypeNames()
		env["returns"] = e.method.ReturnTypeName()
		env["exceptions"] = e.method.ExceptionTypeNames()
	case types.FieldRead, types.FieldWrite:
		modifiers = e.field.Modifiers()
		env["name"] = e.field.Name()
		env["key"] = e.field.Key()
		env["annotations"] = e.field.Annotations()
		env["fieldType"] = e.field.TypeName()
	default:
		modifiers = e.constructor.Modifiers()
		env["name"] = member.ConstructorName
		env["key"] = e.constructor.Key()
		env["annotations"] = e.constructor.Annotations()
		env["params"] = e.constructor.ParameterTypeNames()
		env["exceptions"] = e.constructor.ExceptionTypeNames()
	}
	env["modifiers"] = modifiers.Names()
	env["static"] = modifiers.Has(member.Static)
	return env, nil
}
