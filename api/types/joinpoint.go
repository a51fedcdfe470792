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

package types

import (
	"context"

	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/metadata"
)

// JoinpointKind is the kind of an interceptable point.
type JoinpointKind int

const (
	MethodExecution JoinpointKind = iota + 1
	FieldRead
	FieldWrite
	ConstructorExecution
)

func (k JoinpointKind) String() string {
	switch k {
	case MethodExecution:
		return "execution"
	case FieldRead:
		return "get"
	case FieldWrite:
		return "set"
	case ConstructorExecution:
		return "construction"
	default:
		return "unknown"
	}
}

// Joinpoint is the structural description of one interceptable point.
type Joinpoint interface {
	Kind() JoinpointKind
	// Key is the structural identity used by per-joinpoint caches.
	// A field read and a write of the same field share their key.
	Key() string
	ClassName() string
	MemberName() string
	Static() bool
	String() string
}

// Interceptor is one unit of advice in a join point's chain.
type Interceptor interface {
	Name() string
	Invoke(inv Invocation) (interface{}, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc struct {
	name string
	fn   func(inv Invocation) (interface{}, error)
}

// NewInterceptor creates an Interceptor from a function.
func NewInterceptor(name string, fn func(inv Invocation) (interface{}, error)) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

func (f *InterceptorFunc) Name() string { return f.name }

func (f *InterceptorFunc) Invoke(inv Invocation) (interface{}, error) { return f.fn(inv) }

// Invocation is the live state of one in-flight call through a join point.
// It is owned by a single call and must not be shared between goroutines.
type Invocation interface {
	// Id identifies the call; copies and wrappers keep it.
	Id() string
	Context() context.Context
	Joinpoint() Joinpoint
	Advisor() Advisor
	// InstanceAdvisor is nil for static members and constructors.
	InstanceAdvisor() InstanceAdvisor
	// Target is the advised object, nil for static members and constructors.
	Target() interface{}
	Arguments() []interface{}
	SetArguments(args []interface{})
	Interceptors() []Interceptor
	// CurrentInterceptor is the zero-based dispatch cursor.
	CurrentInterceptor() int
	// InvokeNext runs the next interceptor, or the terminal operation once the
	// chain is exhausted. The cursor is restored before it returns.
	InvokeNext() (interface{}, error)
	// InvokeTarget runs the terminal operation directly.
	InvokeTarget() (interface{}, error)
	// Copy returns an independent invocation with the same chain, cursor and context.
	Copy() Invocation
	// Wrapper returns an invocation that runs chain first and then continues
	// with this invocation's InvokeNext.
	Wrapper(chain []Interceptor) Invocation
	// MetaData is the metadata attached to this call.
	MetaData() *metadata.SimpleMetaData
	// ResolveAttribute looks up tag/attribute on the call, the instance, the
	// member and the class, in that order.
	ResolveAttribute(tag, attribute string) (interface{}, bool)
}

// Advisor represents one advised class.
type Advisor interface {
	Name() string
	Class() member.ClassInfo
	Logger() Logger

	GetPerClassAspect(def *AspectDefinition) (interface{}, bool)
	// AddPerClassAspect stores instance unless one is already cached.
	AddPerClassAspect(def *AspectDefinition, instance interface{})
	GetPerClassJoinpointAspect(def *AspectDefinition, jp Joinpoint) (interface{}, bool)
	AddPerClassJoinpointAspect(def *AspectDefinition, jp Joinpoint, instance interface{})
	// GetFieldAspect serves PER_JOINPOINT aspects of static field join points.
	GetFieldAspect(jp Joinpoint, def *AspectDefinition) (interface{}, bool)
	AddFieldAspect(jp Joinpoint, def *AspectDefinition, instance interface{})

	MethodMetaData() *metadata.Store
	FieldMetaData() *metadata.Store
	ConstructorMetaData() *metadata.Store
	DefaultMetaData() *metadata.SimpleMetaData
	// HasAnnotation reports whether the member with the given key carries annotation,
	// consulting exact member metadata, default metadata and attached annotations.
	HasAnnotation(memberKey string, annotation string) bool
}

// InstanceAdvisor represents one advised object.
type InstanceAdvisor interface {
	Advisor() Advisor
	Instance() interface{}
	// GetPerInstanceAspect returns the instance of def owned by this object,
	// creating it on first use.
	GetPerInstanceAspect(def *AspectDefinition) (interface{}, error)
	// GetPerJoinpointAspect returns the instance of def owned by this object for jp,
	// creating it on first use.
	GetPerJoinpointAspect(jp Joinpoint, def *AspectDefinition) (interface{}, error)
	MetaData() *metadata.SimpleMetaData
	// Interceptors returns chain surrounded by the interceptors registered on this object.
	Interceptors(chain []Interceptor) []Interceptor
}
