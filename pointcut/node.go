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
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
)

// Node is one node of a pointcut expression tree.
type Node interface {
	String() string
	eval(e *evaluation) (bool, error)
}

// MethodNode constrains a method. Zero fields do not constrain anything:
// an empty MethodNode matches every method.
type MethodNode struct {
	Modifiers  Modifiers         `yaml:"modifiers,omitempty"`
	Class      ClassExpression   `yaml:"class,omitempty"`
	Identifier Identifier        `yaml:"name,omitempty"`
	Exceptions []ClassExpression `yaml:"throws,omitempty"`
	Returns    *ClassExpression  `yaml:"returns,omitempty"`
	// Params nil matches any parameter list.
	Params *Parameters `yaml:"params,omitempty"`
}

// FieldNode constrains a field.
type FieldNode struct {
	Modifiers  Modifiers        `yaml:"modifiers,omitempty"`
	Class      ClassExpression  `yaml:"class,omitempty"`
	Identifier Identifier       `yaml:"name,omitempty"`
	Type       *ClassExpression `yaml:"type,omitempty"`
}

// ConstructorNode constrains a constructor. Its identifier is either the
// constructor name `new` or an annotation query.
type ConstructorNode struct {
	Modifiers  Modifiers         `yaml:"modifiers,omitempty"`
	Class      ClassExpression   `yaml:"class,omitempty"`
	Identifier Identifier        `yaml:"name,omitempty"`
	Exceptions []ClassExpression `yaml:"throws,omitempty"`
	Params     *Parameters       `yaml:"params,omitempty"`
}

// All matches every member declared by a class matching Class.
type All struct {
	Class ClassExpression
}

// Within matches every member of an advised class matching Class.
type Within struct {
	Class ClassExpression
}

// Execution matches method executions.
type Execution struct {
	Method MethodNode
}

// Construction matches constructor executions.
type Construction struct {
	Constructor ConstructorNode
}

// Get matches field reads.
type Get struct {
	Field FieldNode
}

// Set matches field writes.
type Set struct {
	Field FieldNode
}

// Field matches field reads and writes.
type Field struct {
	Field FieldNode
}

// And matches when every node matches, evaluated left to right.
type And []Node

// Or matches when one node matches, evaluated left to right.
type Or []Node

// Not inverts a node.
type Not struct {
	Node Node
}

// Condition is an expr-lang boolean expression over the joinpoint environment:
//
//	kind, name, key, class, advised, static, modifiers, annotations,
//	params, returns, exceptions, fieldType
type Condition struct {
	Expression string

	once    sync.Once
	program *vm.Program
	err     error
}

// NewCondition compiles expression.
func NewCondition(expression string) (*Condition, error) {
	c := &Condition{Expression: expression}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Condition) compile() error {
	c.once.Do(func() {
		if program, err := expr.Compile(c.Expression, expr.AllowUndefinedVariables(), expr.AsBool()); err != nil {
			c.err = fmt.Errorf("compile condition %q: %w", c.Expression, err)
		} else {
			c.program = program
		}
	})
	return c.err
}

func (c *Condition) String() string { return "condition(" + c.Expression + ")" }

func (c *Condition) eval(e *evaluation) (bool, error) {
	if err := c.compile(); err != nil {
		return false, err
	}
	env, err := e.env()
	if err != nil {
		return false, err
	}
	out, err := vm.Run(c.program, env)
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	return ok && result, nil
}

func (n All) String() string    { return "all(" + n.Class.String() + ")" }
func (n Within) String() string { return "within(" + n.Class.String() + ")" }

func (n Execution) String() string { return "execution(" + n.Method.String() + ")" }

func (n Construction) String() string { return "execution(" + n.Constructor.String() + ")" }

func (n Get) String() string   { return "get(" + n.Field.String() + ")" }
func (n Set) String() string   { return "set(" + n.Field.String() + ")" }
func (n Field) String() string { return "field(" + n.Field.String() + ")" }

func (n And) String() string { return joinNodes(n, " AND ") }
func (n Or) String() string  { return joinNodes(n, " OR ") }
func (n Not) String() string { return "!" + n.Node.String() }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.String())
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func prefixModifiers(m Modifiers, rest string) string {
	if len(m) == 0 {
		return rest
	}
	return strings.Join(m, " ") + " " + rest
}

func orAny(s string) string {
	if s == "" {
		return Any
	}
	return s
}

func (n MethodNode) String() string {
	returns := Any
	if n.Returns != nil {
		returns = n.Returns.String()
	}
	params := "(" + AnyParameters + ")"
	if n.Params != nil {
		params = n.Params.String()
	}
	s := returns + " " + orAny(n.Class.String()) + "->" + orAny(n.Identifier.String()) + params
	for i, e := range n.Exceptions {
		if i == 0 {
			s += " throws "
		} else {
			s += ", "
		}
		s += e.String()
	}
	return prefixModifiers(n.Modifiers, s)
}

func (n FieldNode) String() string {
	typ := Any
	if n.Type != nil {
		typ = n.Type.String()
	}
	return prefixModifiers(n.Modifiers, typ+" "+orAny(n.Class.String())+"->"+orAny(n.Identifier.String()))
}

func (n ConstructorNode) String() string {
	params := "(" + AnyParameters + ")"
	if n.Params != nil {
		params = n.Params.String()
	}
	name := n.Identifier.String()
	if name == "" {
		name = member.ConstructorName
	}
	return prefixModifiers(n.Modifiers, orAny(n.Class.String())+"->"+name+params)
}

func (n All) eval(e *evaluation) (bool, error) {
	declaring, err := e.declaringClass()
	if err != nil {
		return false, err
	}
	return e.matchesClass(n.Class, declaring)
}

func (n Within) eval(e *evaluation) (bool, error) {
	if e.opts.Advisor != nil && e.opts.Advisor.Class() != nil {
		return n.Class.Matches(e.opts.Advisor.Class())
	}
	declaring, err := e.declaringClass()
	if err != nil {
		return false, err
	}
	return n.Class.Matches(declaring)
}

func (n Execution) eval(e *evaluation) (bool, error) {
	if e.kind != types.MethodExecution {
		return false, nil
	}
	return n.Method.matches(e, e.method)
}

func (n Construction) eval(e *evaluation) (bool, error) {
	if e.kind != types.ConstructorExecution {
		return false, nil
	}
	return n.Constructor.matches(e, e.constructor)
}

func (n Get) eval(e *evaluation) (bool, error) {
	if e.kind != types.FieldRead {
		return false, nil
	}
	return n.Field.matches(e, e.field)
}

func (n Set) eval(e *evaluation) (bool, error) {
	if e.kind != types.FieldWrite {
		return false, nil
	}
	return n.Field.matches(e, e.field)
}

func (n Field) eval(e *evaluation) (bool, error) {
	if e.kind != types.FieldRead && e.kind != types.FieldWrite {
		return false, nil
	}
	return n.Field.matches(e, e.field)
}

func (n And) eval(e *evaluation) (bool, error) {
	for _, node := range n {
		if ok, err := node.eval(e); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (n Or) eval(e *evaluation) (bool, error) {
	for _, node := range n {
		if ok, err := node.eval(e); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (n Not) eval(e *evaluation) (bool, error) {
	ok, err := n.Node.eval(e)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// matches evaluates the predicates in a fixed order: modifiers, declaring class,
// identifier, exceptions, return type, parameters. The first failing one wins.
func (n *MethodNode) matches(e *evaluation, m member.MethodInfo) (bool, error) {
	if ok, err := n.Modifiers.matches(m.Modifiers()); err != nil || !ok {
		return false, err
	}
	declaring, err := m.DeclaringClass()
	if err != nil {
		return false, err
	}
	if ok, err := e.matchesClass(n.Class, declaring); err != nil || !ok {
		return false, err
	}
	if ok, err := e.matchesMethodIdentifier(n.Identifier, m, declaring); err != nil || !ok {
		return false, err
	}
	if ok, err := matchesExceptions(n.Exceptions, m.ExceptionTypes); err != nil || !ok {
		return false, err
	}
	if n.Returns != nil && !n.Returns.IsAny() {
		returns, err := m.ReturnType()
		if err != nil {
			return false, err
		}
		if ok, err := n.Returns.Matches(returns); err != nil || !ok {
			return false, err
		}
	}
	return matchesParameters(n.Params, m.ParameterTypeNames(), m.ParameterTypes)
}

func (n *FieldNode) matches(e *evaluation, f member.FieldInfo) (bool, error) {
	if ok, err := n.Modifiers.matches(f.Modifiers()); err != nil || !ok {
		return false, err
	}
	declaring, err := f.DeclaringClass()
	if err != nil {
		return false, err
	}
	if ok, err := e.matchesClass(n.Class, declaring); err != nil || !ok {
		return false, err
	}
	switch n.Identifier.kind {
	case identifierAnnotation:
		if !e.annotated(fieldStore, f.Key(), f.HasAnnotation, n.Identifier.name) {
			return false, nil
		}
	case identifierImplements, identifierImplementing:
		return false, nil
	default:
		if !n.Identifier.matchesName(f.Name()) {
			return false, nil
		}
	}
	if n.Type == nil || n.Type.IsAny() {
		return true, nil
	}
	typ, err := f.Type()
	if err != nil {
		return false, err
	}
	return n.Type.Matches(typ)
}

func (n *ConstructorNode) matches(e *evaluation, c member.ConstructorInfo) (bool, error) {
	if ok, err := n.Modifiers.matches(c.Modifiers()); err != nil || !ok {
		return false, err
	}
	declaring, err := c.DeclaringClass()
	if err != nil {
		return false, err
	}
	if ok, err := e.matchesClass(n.Class, declaring); err != nil || !ok {
		return false, err
	}
	switch n.Identifier.kind {
	case identifierAnnotation:
		if !e.annotated(constructorStore, c.Key(), c.HasAnnotation, n.Identifier.name) {
			return false, nil
		}
	case identifierImplements, identifierImplementing:
		return false, nil
	default:
		if !n.Identifier.matchesName(member.ConstructorName) {
			return false, nil
		}
	}
	if ok, err := matchesExceptions(n.Exceptions, c.ExceptionTypes); err != nil || !ok {
		return false, err
	}
	return matchesParameters(n.Params, c.ParameterTypeNames(), c.ParameterTypes)
}

// matchesExceptions requires every expression to be satisfied by one declared exception.
func matchesExceptions(required []ClassExpression, declared func() ([]member.ClassInfo, error)) (bool, error) {
	if len(required) == 0 {
		return true, nil
	}
	exceptions, err := declared()
	if err != nil {
		return false, err
	}
	for _, expr := range required {
		found := false
		for _, exc := range exceptions {
			ok, err := expr.Matches(exc)
			if err != nil {
				return false, err
			}
			if ok {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// matchesParameters checks arity on names first and resolves types only when
// a position has to be compared.
func matchesParameters(params *Parameters, names []string, resolve func() ([]member.ClassInfo, error)) (bool, error) {
	if params == nil {
		return true, nil
	}
	fixed := params.FixedLen()
	variable := fixed != len(*params)
	if (!variable && fixed != len(names)) || fixed > len(names) {
		return false, nil
	}
	if fixed == 0 {
		return true, nil
	}
	resolved, err := resolve()
	if err != nil {
		return false, err
	}
	return params.matches(resolved)
}
