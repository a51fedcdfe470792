/*
 * Copyright 2023 The RuleGo Authors.
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
	"fmt"
	"strings"
)

// The types in this file provide the AOP (Aspect Oriented Programming) model of weaver.
//
//   - An aspect is a stateful object holding advice. Its lifecycle is decided by its Scope.
//   - An AspectDefinition names an aspect, fixes its Scope and owns the AspectFactory
//     that builds instances of it.
//   - Advisors (one per advised class) and instance advisors (one per advised object)
//     cache the instances the scope rules allow them to own.

// Scope is the lifecycle policy of aspect instances.
type Scope int

const (
	// ScopeUnknown is the zero value; resolving an aspect with it is an error.
	ScopeUnknown Scope = iota
	// PerVM shares one instance across the whole process (one Manager).
	PerVM
	// PerClass creates one instance per advised class.
	PerClass
	// PerInstance creates one instance per advised object.
	PerInstance
	// PerJoinpoint creates one instance per advised object and join point.
	PerJoinpoint
	// PerClassJoinpoint creates one instance per advised class and join point.
	PerClassJoinpoint
)

var scopeNames = map[Scope]string{
	PerVM:             "PER_VM",
	PerClass:          "PER_CLASS",
	PerInstance:       "PER_INSTANCE",
	PerJoinpoint:      "PER_JOINPOINT",
	PerClassJoinpoint: "PER_CLASS_JOINPOINT",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// Valid reports whether s is one of the five known scopes.
func (s Scope) Valid() bool {
	_, ok := scopeNames[s]
	return ok
}

// ParseScope parses PER_VM, PER_CLASS, PER_INSTANCE, PER_JOINPOINT or
// PER_CLASS_JOINPOINT, case insensitively.
func ParseScope(s string) (Scope, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for scope, name := range scopeNames {
		if name == normalized {
			return scope, nil
		}
	}
	return ScopeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedScope, s)
}

// AspectFactory builds aspect instances. Each entry point creates one instance
// and applies any externally supplied configuration before returning it.
// Implementations must not have side effects beyond building the instance: an
// instance built concurrently for a shared cache may be discarded.
//
// Factories and the Aware setters run while the cache that will own the
// instance is locked: the manager for PER_VM, the instance advisor for
// PER_INSTANCE and PER_JOINPOINT. Resolving another aspect held by that same
// owner from inside a factory deadlocks.
type AspectFactory interface {
	// Name is the declared type name of the aspect, used in error messages.
	Name() string
	CreatePerVM() (interface{}, error)
	CreatePerClass(advisor Advisor) (interface{}, error)
	CreatePerInstance(advisor Advisor, instanceAdvisor InstanceAdvisor) (interface{}, error)
	// CreatePerJoinpoint serves both PER_JOINPOINT and PER_CLASS_JOINPOINT;
	// instanceAdvisor is nil for the latter.
	CreatePerJoinpoint(advisor Advisor, instanceAdvisor InstanceAdvisor, jp Joinpoint) (interface{}, error)
}

// AttributeSetter is implemented by factories that accept externally resolved
// attribute values to apply to every instance they build.
type AttributeSetter interface {
	SetAttributes(attributes map[string]interface{})
}

// AspectDefinition names an aspect and fixes its scope and factory.
// It is immutable and shared by every call site that references it.
type AspectDefinition struct {
	name    string
	scope   Scope
	factory AspectFactory
}

// NewAspectDefinition creates a definition. Factories implementing
// AspectDefinitionAware receive the new definition.
func NewAspectDefinition(name string, scope Scope, factory AspectFactory) *AspectDefinition {
	def := &AspectDefinition{name: name, scope: scope, factory: factory}
	if aware, ok := factory.(AspectDefinitionAware); ok {
		aware.SetAspectDefinition(def)
	}
	return def
}

func (d *AspectDefinition) Name() string { return d.name }

func (d *AspectDefinition) Scope() Scope { return d.scope }

func (d *AspectDefinition) Factory() AspectFactory { return d.factory }

func (d *AspectDefinition) String() string {
	return fmt.Sprintf("aspect %s (%s)", d.name, d.scope)
}

// AdvisorAware aspects receive the advisor of the class they were created for.
type AdvisorAware interface {
	SetAdvisor(advisor Advisor)
}

// InstanceAdvisorAware aspects receive the instance advisor of their object.
type InstanceAdvisorAware interface {
	SetInstanceAdvisor(instanceAdvisor InstanceAdvisor)
}

// JoinpointAware aspects receive the join point they were created for.
type JoinpointAware interface {
	SetJoinpoint(jp Joinpoint)
}

// AspectDefinitionAware aspects and factories receive their definition.
type AspectDefinitionAware interface {
	SetAspectDefinition(def *AspectDefinition)
}
