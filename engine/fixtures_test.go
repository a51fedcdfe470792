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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/pointcut"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type Greeter struct {
	Advised `aop:"-"`
	Name    string
	Count   int
}

func NewGreeter(name string) *Greeter {
	return &Greeter{Name: name}
}

func (g *Greeter) Greet(prefix string) string {
	return prefix + ", " + g.Name
}

func (g *Greeter) Fail() error {
	return errBoom
}

type Polite struct {
	Greeter
}

func (p *Polite) Bow() string {
	return "bow"
}

// Plain does not embed Advised; its instance advisors live in the advisor registry.
type Plain struct {
	Value int
}

func (p *Plain) Get() int {
	return p.Value
}

func newLoader(t *testing.T) *member.Loader {
	loader := member.NewLoader()
	_, err := loader.RegisterConstructor(NewGreeter)
	require.Nil(t, err)
	return loader
}

func newTestManager(opts ...types.Option) *Manager {
	opts = append([]types.Option{types.WithLogger(types.DiscardLogger())}, opts...)
	return NewManager(types.NewConfig(opts...))
}

func methodOf(t *testing.T, class member.ClassInfo, name string) member.MethodInfo {
	methods, err := member.AllMethods(class)
	require.Nil(t, err)
	for _, m := range methods {
		if m.Name() == name {
			return m
		}
	}
	t.Fatalf("%s has no method %s", class.Name(), name)
	return nil
}

func execution(name, method string) *pointcut.Pointcut {
	return pointcut.New(name, pointcut.Execution{Method: pointcut.MethodNode{Identifier: pointcut.NewIdentifier(method)}})
}

// recorder collects the names of the steps of a call.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func (r *recorder) interceptor(name string) types.Interceptor {
	return types.NewInterceptor(name, func(inv types.Invocation) (interface{}, error) {
		r.add(name)
		return inv.InvokeNext()
	})
}

// loggingAspect records the advisor it was created for.
type loggingAspect struct {
	advisor types.Advisor
	Prefix  string
	Level   int
}

func (a *loggingAspect) SetAdvisor(advisor types.Advisor) { a.advisor = advisor }

func (a *loggingAspect) Name() string { return "logging" }

func (a *loggingAspect) Invoke(inv types.Invocation) (interface{}, error) {
	result, err := inv.InvokeNext()
	if s, ok := result.(string); ok && a.Prefix != "" {
		return a.Prefix + s, err
	}
	return result, err
}

// auditAspect carries advice methods of every kind.
type auditAspect struct {
	mu  sync.Mutex
	log []string
	ia  types.InstanceAdvisor
	jp  types.Joinpoint
}

func (a *auditAspect) SetInstanceAdvisor(ia types.InstanceAdvisor) { a.ia = ia }
func (a *auditAspect) SetJoinpoint(jp types.Joinpoint)             { a.jp = jp }

func (a *auditAspect) record(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log = append(a.log, s)
}

func (a *auditAspect) Entries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.log...)
}

func (a *auditAspect) Trace(inv types.Invocation) (interface{}, error) {
	a.record("around:" + inv.Joinpoint().MemberName())
	return inv.InvokeNext()
}

func (a *auditAspect) Check(inv types.Invocation) error {
	a.record("before")
	if len(inv.Arguments()) > 0 && inv.Arguments()[0] == "deny" {
		return errors.New("denied")
	}
	return nil
}

func (a *auditAspect) Shout(inv types.Invocation, result interface{}, err error) (interface{}, error) {
	a.record("after")
	if s, ok := result.(string); ok {
		return strings.ToUpper(s), err
	}
	return result, err
}

func (a *auditAspect) Translate(inv types.Invocation, err error) error {
	a.record("throwing")
	return fmt.Errorf("translated: %w", err)
}

func (a *auditAspect) Wrong(inv types.Invocation) string { return "" }
