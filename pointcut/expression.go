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

package pointcut

import (
	"fmt"
	"strings"

	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/utils/str"
	"gopkg.in/yaml.v3"
)

const (
	// Any matches every class, name or single parameter.
	Any = "*"
	// AnyParameters matches zero or more parameters.
	AnyParameters = ".."

	instanceOfPrefix   = "$instanceof{"
	implementsPrefix   = "$implements{"
	implementingPrefix = "$implementing{"
	annotationPrefix   = "@"
)

type classKind int

const (
	className classKind = iota
	classAnnotation
	classInstanceOf
)

// ClassExpression selects classes:
//
//	example.com/shop.*    a `*` pattern over the class name; class names never
//	                      carry pointer indirection, a `*` is always a wildcard
//	*                     any class
//	@Transactional        a class carrying the annotation
//	$instanceof{X}        a class assignable to a class matching X, X being a
//	                      pattern or an @annotation
type ClassExpression struct {
	raw   string
	kind  classKind
	inner string
}

// NewClassExpression builds a class expression from its textual form.
func NewClassExpression(expr string) ClassExpression {
	expr = strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(expr, instanceOfPrefix) && strings.HasSuffix(expr, "}"):
		return ClassExpression{raw: expr, kind: classInstanceOf,
			inner: strings.TrimSpace(expr[len(instanceOfPrefix) : len(expr)-1])}
	case strings.HasPrefix(expr, annotationPrefix):
		return ClassExpression{raw: expr, kind: classAnnotation, inner: member.NormalizeAnnotation(expr)}
	default:
		return ClassExpression{raw: expr, kind: className, inner: expr}
	}
}

func (e ClassExpression) String() string { return e.raw }

// IsAny reports whether e matches every class without inspecting it.
func (e ClassExpression) IsAny() bool {
	return e.raw == "" || (e.kind == className && e.inner == Any)
}

// Matches reports whether c is selected by e. Errors come from resolving c's supertypes.
func (e ClassExpression) Matches(c member.ClassInfo) (bool, error) {
	if e.IsAny() {
		return true, nil
	}
	switch e.kind {
	case classAnnotation:
		return c.HasAnnotation(e.inner), nil
	case classInstanceOf:
		if e.matchesInner(c) {
			return true, nil
		}
		ancestors, err := member.Ancestors(c)
		if err != nil {
			return false, err
		}
		for _, a := range ancestors {
			if e.matchesInner(a) {
				return true, nil
			}
		}
		return false, nil
	default:
		return str.MatchWildcard(e.inner, c.Name()), nil
	}
}

func (e ClassExpression) matchesInner(c member.ClassInfo) bool {
	if strings.HasPrefix(e.inner, annotationPrefix) {
		return c.HasAnnotation(e.inner)
	}
	return str.MatchWildcard(e.inner, c.Name())
}

// UnmarshalYAML decodes a class expression from a scalar.
func (e *ClassExpression) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*e = NewClassExpression(s)
	return nil
}

// MarshalYAML encodes the textual form.
func (e ClassExpression) MarshalYAML() (interface{}, error) {
	return e.raw, nil
}

type identifierKind int

const (
	identifierName identifierKind = iota
	identifierAnnotation
	identifierImplements
	identifierImplementing
)

// Identifier selects a member by name or by what it carries:
//
//	get*                a `*` pattern over the simple member name
//	@Audited            a member carrying the annotation
//	$implements{X}      a method declared with the same signature by a direct
//	                    supertype matching the class expression X
//	$implementing{X}    the same, searching every ancestor
type Identifier struct {
	raw   string
	kind  identifierKind
	name  string
	class ClassExpression
}

// NewIdentifier builds an identifier from its textual form.
func NewIdentifier(s string) Identifier {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, implementsPrefix) && strings.HasSuffix(s, "}"):
		return Identifier{raw: s, kind: identifierImplements,
			class: NewClassExpression(s[len(implementsPrefix) : len(s)-1])}
	case strings.HasPrefix(s, implementingPrefix) && strings.HasSuffix(s, "}"):
		return Identifier{raw: s, kind: identifierImplementing,
			class: NewClassExpression(s[len(implementingPrefix) : len(s)-1])}
	case strings.HasPrefix(s, annotationPrefix):
		return Identifier{raw: s, kind: identifierAnnotation, name: member.NormalizeAnnotation(s)}
	default:
		return Identifier{raw: s, kind: identifierName, name: s}
	}
}

func (i Identifier) String() string { return i.raw }

// IsAnnotation reports whether i is an annotation presence query.
func (i Identifier) IsAnnotation() bool { return i.kind == identifierAnnotation }

func (i Identifier) matchesName(name string) bool {
	if i.raw == "" {
		return true
	}
	return str.MatchWildcard(i.name, name)
}

// UnmarshalYAML decodes an identifier from a scalar.
func (i *Identifier) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*i = NewIdentifier(s)
	return nil
}

// MarshalYAML encodes the textual form.
func (i Identifier) MarshalYAML() (interface{}, error) {
	return i.raw, nil
}

// Parameters constrains a parameter list position by position.
// AnyParameters matches zero or more parameters at any position.
type Parameters []ClassExpression

// NewParameters builds a parameter constraint from textual class expressions.
func NewParameters(exprs ...string) *Parameters {
	params := make(Parameters, 0, len(exprs))
	for _, e := range exprs {
		params = append(params, NewClassExpression(e))
	}
	return &params
}

// FixedLen is the number of positions that must be present.
func (p Parameters) FixedLen() int {
	n := 0
	for _, e := range p {
		if e.raw != AnyParameters {
			n++
		}
	}
	return n
}

func (p Parameters) matches(params []member.ClassInfo) (bool, error) {
	if len(p) == 0 {
		return len(params) == 0, nil
	}
	head := p[0]
	if head.raw == AnyParameters {
		for skip := 0; skip <= len(params); skip++ {
			ok, err := p[1:].matches(params[skip:])
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	if len(params) == 0 {
		return false, nil
	}
	ok, err := head.Matches(params[0])
	if err != nil || !ok {
		return false, err
	}
	return p[1:].matches(params[1:])
}

func (p Parameters) String() string {
	parts := make([]string, 0, len(p))
	for _, e := range p {
		parts = append(parts, e.raw)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Modifiers lists required modifiers; a leading '!' forbids one, e.g. "!static".
type Modifiers []string

func (m Modifiers) matches(actual member.Modifier) (bool, error) {
	for _, name := range m {
		negate := strings.HasPrefix(name, "!")
		mod, err := member.ParseModifier(strings.TrimPrefix(name, "!"))
		if err != nil {
			return false, fmt.Errorf("pointcut modifier: %w", err)
		}
		if actual.Has(mod) == negate {
			return false, nil
		}
	}
	return true, nil
}
