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
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedScope is returned for an aspect definition without a known scope.
	ErrUnsupportedScope = errors.New("unsupported aspect scope")
	// ErrAspectConstruction is returned when a factory fails to build an aspect.
	ErrAspectConstruction = errors.New("aspect construction failed")
	// ErrRuntimeInvocation is returned when the terminal operation could not be
	// reached: wrong arguments, inaccessible member or failed instantiation.
	ErrRuntimeInvocation = errors.New("runtime invocation failed")
	// ErrMatchEvaluation is returned when a pointcut references a type that cannot be resolved.
	ErrMatchEvaluation = errors.New("pointcut match evaluation failed")
	// ErrMissingContext marks a context injection that was skipped.
	ErrMissingContext = errors.New("missing aspect context")
	// ErrAdvisorDestroyed is returned by entry points of a destroyed advisor.
	ErrAdvisorDestroyed = errors.New("advisor destroyed")
	// ErrJoinpointNotFound is returned when an entry point names an unknown member.
	ErrJoinpointNotFound = errors.New("joinpoint not found")
)

// UnsupportedScopeError reports the definition carrying an unknown scope.
type UnsupportedScopeError struct {
	Aspect string
	Scope  Scope
}

func (e *UnsupportedScopeError) Error() string {
	return fmt.Sprintf("aspect %s: %v: %s", e.Aspect, ErrUnsupportedScope, e.Scope)
}

func (e *UnsupportedScopeError) Is(target error) bool {
	return target == ErrUnsupportedScope
}

// AspectConstructionError wraps a factory failure with the aspect's declared type name.
type AspectConstructionError struct {
	Aspect   string
	TypeName string
	// Configuration is true when instantiation or configuration injection failed,
	// as opposed to the aspect's own constructor returning an error.
	Configuration bool
	Cause         error
}

func (e *AspectConstructionError) Error() string {
	kind := "construction"
	if e.Configuration {
		kind = "configuration"
	}
	return fmt.Sprintf("aspect %s (%s): %s error: %v", e.Aspect, e.TypeName, kind, e.Cause)
}

func (e *AspectConstructionError) Is(target error) bool {
	return target == ErrAspectConstruction
}

func (e *AspectConstructionError) Unwrap() error {
	return e.Cause
}

// RuntimeInvocationError reports a failure to reach the terminal operation of a join point.
type RuntimeInvocationError struct {
	Joinpoint string
	Cause     error
}

func (e *RuntimeInvocationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrRuntimeInvocation, e.Joinpoint, e.Cause)
}

func (e *RuntimeInvocationError) Is(target error) bool {
	return target == ErrRuntimeInvocation
}

func (e *RuntimeInvocationError) Unwrap() error {
	return e.Cause
}

// MatchEvaluationError reports an unresolved type referenced while matching a member.
type MatchEvaluationError struct {
	Member string
	Cause  error
}

func (e *MatchEvaluationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrMatchEvaluation, e.Member, e.Cause)
}

func (e *MatchEvaluationError) Is(target error) bool {
	return target == ErrMatchEvaluation
}

func (e *MatchEvaluationError) Unwrap() error {
	return e.Cause
}

// MissingContextWarning describes a context injection skipped because the
// context is not available in the aspect's scope. It is logged, never returned
// from a resolution.
type MissingContextWarning struct {
	Aspect  string
	Scope   Scope
	Context string
}

func (e *MissingContextWarning) Error() string {
	return fmt.Sprintf("aspect %s (%s) wants %s which is not available in this scope, setter skipped",
		e.Aspect, e.Scope, e.Context)
}

func (e *MissingContextWarning) Is(target error) bool {
	return target == ErrMissingContext
}
