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

	"github.com/rulego/weaver/member"
	"gopkg.in/yaml.v3"
)

// Pointcut is a named expression tree.
type Pointcut struct {
	Name string
	Expr Node
}

// New creates a named pointcut.
func New(name string, expr Node) *Pointcut {
	return &Pointcut{Name: name, Expr: expr}
}

func (p *Pointcut) String() string {
	return p.Name + ": " + p.Expr.String()
}

// MatchesExecution reports whether executions of m are selected.
func (p *Pointcut) MatchesExecution(opts MatchOptions, m member.MethodInfo) (bool, error) {
	return NewMatcher(p.Expr, opts).MatchesMethod(m)
}

// MatchesGet reports whether reads of f are selected.
func (p *Pointcut) MatchesGet(opts MatchOptions, f member.FieldInfo) (bool, error) {
	return NewMatcher(p.Expr, opts).MatchesField(f, false)
}

// MatchesSet reports whether writes of f are selected.
func (p *Pointcut) MatchesSet(opts MatchOptions, f member.FieldInfo) (bool, error) {
	return NewMatcher(p.Expr, opts).MatchesField(f, true)
}

// MatchesConstruction reports whether executions of c are selected.
func (p *Pointcut) MatchesConstruction(opts MatchOptions, c member.ConstructorInfo) (bool, error) {
	return NewMatcher(p.Expr, opts).MatchesConstructor(c)
}

// Ref evaluates another named pointcut.
type Ref struct {
	Pointcut *Pointcut
}

func (n Ref) String() string { return n.Pointcut.Name }

func (n Ref) eval(e *evaluation) (bool, error) {
	return n.Pointcut.Expr.eval(e)
}

type pointcutDecl struct {
	Name string    `yaml:"name"`
	Expr yaml.Node `yaml:"expr"`
}

// Decode reads a YAML list of named pointcuts:
//
//	# pointcuts.yaml
//	- name: services
//	  expr:
//	    all: "example.com/shop.*Service"
//	- name: audited
//	  expr:
//	    and:
//	      - pointcut: services
//	      - execution: {name: "@Audited", params: [".."]}
//	      - not: {condition: "static"}
//
// A `pointcut` node refers to a pointcut declared earlier in the same list
// or present in known.
func Decode(data []byte, known ...*Pointcut) ([]*Pointcut, error) {
	var decls []pointcutDecl
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("parsing pointcuts: %w", err)
	}
	named := make(map[string]*Pointcut, len(decls)+len(known))
	for _, p := range known {
		named[p.Name] = p
	}
	result := make([]*Pointcut, 0, len(decls))
	for _, decl := range decls {
		if decl.Name == "" {
			return nil, fmt.Errorf("pointcut without name")
		}
		expr, err := DecodeNode(&decl.Expr, named)
		if err != nil {
			return nil, fmt.Errorf("pointcut %s: %w", decl.Name, err)
		}
		p := New(decl.Name, expr)
		named[p.Name] = p
		result = append(result, p)
	}
	return result, nil
}

// DecodeNode decodes one expression node. named resolves `pointcut` references.
func DecodeNode(value *yaml.Node, named map[string]*Pointcut) (Node, error) {
	if value.Kind == yaml.DocumentNode && len(value.Content) == 1 {
		value = value.Content[0]
	}
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return nil, fmt.Errorf("line %d: a node is a mapping with exactly one key", value.Line)
	}
	key, body := value.Content[0].Value, value.Content[1]
	switch key {
	case "and", "or":
		if body.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: %s expects a list", body.Line, key)
		}
		nodes := make([]Node, 0, len(body.Content))
		for _, item := range body.Content {
			n, err := DecodeNode(item, named)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		if key == "and" {
			return And(nodes), nil
		}
		return Or(nodes), nil
	case "not":
		n, err := DecodeNode(body, named)
		if err != nil {
			return nil, err
		}
		return Not{Node: n}, nil
	case "all", "within":
		var class ClassExpression
		if err := body.Decode(&class); err != nil {
			return nil, err
		}
		if key == "all" {
			return All{Class: class}, nil
		}
		return Within{Class: class}, nil
	case "execution":
		var m MethodNode
		if err := body.Decode(&m); err != nil {
			return nil, err
		}
		return Execution{Method: m}, nil
	case "construction":
		var c ConstructorNode
		if err := body.Decode(&c); err != nil {
			return nil, err
		}
		return Construction{Constructor: c}, nil
	case "get", "set", "field":
		var f FieldNode
		if err := body.Decode(&f); err != nil {
			return nil, err
		}
		switch key {
		case "get":
			return Get{Field: f}, nil
		case "set":
			return Set{Field: f}, nil
		default:
			return Field{Field: f}, nil
		}
	case "condition":
		c, err := NewCondition(body.Value)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "pointcut":
		p, ok := named[body.Value]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown pointcut %q", body.Line, body.Value)
		}
		return Ref{Pointcut: p}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown node %q", value.Line, key)
	}
}
