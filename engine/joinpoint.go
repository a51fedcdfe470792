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
	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
)

var (
	_ types.Joinpoint = (*MethodJoinpoint)(nil)
	_ types.Joinpoint = (*FieldJoinpoint)(nil)
	_ types.Joinpoint = (*ConstructorJoinpoint)(nil)
)

// MethodJoinpoint is the execution of a method of an advised class. Inherited
// methods are keyed by the advised class, not by the declaring one.
type MethodJoinpoint struct {
	class  string
	method member.MethodInfo
	key    string
}

// NewMethodJoinpoint creates the joinpoint of m as seen from the advised class.
func NewMethodJoinpoint(advisedClass string, m member.MethodInfo) *MethodJoinpoint {
	return &MethodJoinpoint{
		class:  advisedClass,
		method: m,
		key:    member.MethodKey(advisedClass, m.Name(), m.ParameterTypeNames()),
	}
}

func (j *MethodJoinpoint) Kind() types.JoinpointKind { return types.MethodExecution }
func (j *MethodJoinpoint) Key() string               { return j.key }
func (j *MethodJoinpoint) ClassName() string         { return j.class }
func (j *MethodJoinpoint) MemberName() string        { return j.method.Name() }
func (j *MethodJoinpoint) Static() bool              { return j.method.Modifiers().Has(member.Static) }
func (j *MethodJoinpoint) String() string            { return "execution(" + j.key + ")" }
func (j *MethodJoinpoint) Method() member.MethodInfo { return j.method }

// FieldJoinpoint is a read or a write of a field. Both share the same key so
// per-joinpoint aspects are shared between the reads and writes of a field.
type FieldJoinpoint struct {
	class string
	field member.FieldInfo
	write bool
	key   string
}

// NewFieldJoinpoint creates the read (write=false) or write joinpoint of f.
func NewFieldJoinpoint(advisedClass string, f member.FieldInfo, write bool) *FieldJoinpoint {
	return &FieldJoinpoint{
		class: advisedClass,
		field: f,
		write: write,
		key:   member.FieldKey(advisedClass, f.Name()),
	}
}

func (j *FieldJoinpoint) Kind() types.JoinpointKind {
	if j.write {
		return types.FieldWrite
	}
	return types.FieldRead
}

func (j *FieldJoinpoint) Key() string             { return j.key }
func (j *FieldJoinpoint) ClassName() string       { return j.class }
func (j *FieldJoinpoint) MemberName() string      { return j.field.Name() }
func (j *FieldJoinpoint) Static() bool            { return j.field.Modifiers().Has(member.Static) }
func (j *FieldJoinpoint) Field() member.FieldInfo { return j.field }
func (j *FieldJoinpoint) IsWrite() bool           { return j.write }

func (j *FieldJoinpoint) String() string {
	if j.write {
		return "set(" + j.key + ")"
	}
	return "get(" + j.key + ")"
}

// ConstructorJoinpoint is the execution of a constructor. It never has a target.
type ConstructorJoinpoint struct {
	class       string
	constructor member.ConstructorInfo
}

// NewConstructorJoinpoint creates the joinpoint of c.
func NewConstructorJoinpoint(c member.ConstructorInfo) *ConstructorJoinpoint {
	class := ""
	if declaring, err := c.DeclaringClass(); err == nil && declaring != nil {
		class = declaring.Name()
	}
	return &ConstructorJoinpoint{class: class, constructor: c}
}

func (j *ConstructorJoinpoint) Kind() types.JoinpointKind { return types.ConstructorExecution }
func (j *ConstructorJoinpoint) Key() string               { return j.constructor.Key() }
func (j *ConstructorJoinpoint) ClassName() string         { return j.class }
func (j *ConstructorJoinpoint) MemberName() string        { return member.ConstructorName }
func (j *ConstructorJoinpoint) Static() bool              { return false }
func (j *ConstructorJoinpoint) String() string            { return "execution(" + j.constructor.Key() + ")" }

func (j *ConstructorJoinpoint) Constructor() member.ConstructorInfo { return j.constructor }

// memberKey is the metadata key of the member behind jp.
func memberKey(jp types.Joinpoint) string {
	switch j := jp.(type) {
	case *MethodJoinpoint:
		return j.method.Key()
	case *FieldJoinpoint:
		return j.field.Key()
	case *ConstructorJoinpoint:
		return j.constructor.Key()
	default:
		return jp.Key()
	}
}
