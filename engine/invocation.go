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
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/metadata"
)

// Invoker runs a method on target. It replaces the reflective call for members
// that have no Go implementation reachable through reflection.
type Invoker func(ctx context.Context, target interface{}, args []interface{}) (interface{}, error)

// Getter reads a field of target.
type Getter func(ctx context.Context, target interface{}) (interface{}, error)

// Setter writes a field of target.
type Setter func(ctx context.Context, target interface{}, value interface{}) error

// Instantiator runs a constructor.
type Instantiator func(ctx context.Context, args []interface{}) (interface{}, error)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// payload is the terminal operation of a joinpoint kind.
type payload interface {
	methodCall | fieldRead | fieldWrite | construction
	invokeTarget(s *callState) (interface{}, error)
}

type methodCall struct {
	jp      *MethodJoinpoint
	invoker Invoker
}

func (p methodCall) invokeTarget(s *callState) (interface{}, error) {
	if p.invoker != nil {
		return p.invoker(s.ctx, s.target, s.args)
	}
	if s.target == nil {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(), Cause: errors.New("no target object")}
	}
	fn := reflect.ValueOf(s.target).MethodByName(p.jp.MemberName())
	if !fn.IsValid() {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(),
			Cause: fmt.Errorf("%T has no method %s", s.target, p.jp.MemberName())}
	}
	return callReflect(p.jp, fn, s.args, s.ctx)
}

type fieldRead struct {
	jp     *FieldJoinpoint
	getter Getter
}

func (p fieldRead) invokeTarget(s *callState) (interface{}, error) {
	if p.getter != nil {
		return p.getter(s.ctx, s.target)
	}
	f, err := fieldValue(s.target, p.jp.MemberName(), false)
	if err != nil {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(), Cause: err}
	}
	return f.Interface(), nil
}

type fieldWrite struct {
	jp     *FieldJoinpoint
	setter Setter
}

func (p fieldWrite) invokeTarget(s *callState) (interface{}, error) {
	if len(s.args) != 1 {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(),
			Cause: fmt.Errorf("a field write takes one argument, got %d", len(s.args))}
	}
	if p.setter != nil {
		return nil, p.setter(s.ctx, s.target, s.args[0])
	}
	f, err := fieldValue(s.target, p.jp.MemberName(), true)
	if err != nil {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(), Cause: err}
	}
	v, err := argValue(f.Type(), s.args[0], s.ctx)
	if err != nil {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(), Cause: err}
	}
	f.Set(v)
	return nil, nil
}

type construction struct {
	jp          *ConstructorJoinpoint
	instantiate Instantiator
}

func (p construction) invokeTarget(s *callState) (interface{}, error) {
	if p.instantiate != nil {
		return p.instantiate(s.ctx, s.args)
	}
	fn, ok := member.ConstructorFunc(p.jp.Constructor())
	if !ok {
		return nil, &types.RuntimeInvocationError{Joinpoint: p.jp.String(),
			Cause: errors.New("instantiation failed: no constructor function")}
	}
	return callReflect(p.jp, fn, s.args, s.ctx)
}

// callState is shared by an invocation, its wrappers and the invocations they wrap.
type callState struct {
	id              string
	ctx             context.Context
	advisor         *ClassAdvisor
	instanceAdvisor *ClassInstanceAdvisor
	target          interface{}
	args            []interface{}
	metadata        *metadata.SimpleMetaData
}

type invocation[P payload] struct {
	state        *callState
	payload      P
	jp           types.Joinpoint
	interceptors []types.Interceptor
	current      int
	// wrapped is resumed once this invocation's own chain is exhausted.
	wrapped types.Invocation
}

var (
	_ types.Invocation = (*invocation[methodCall])(nil)
	_ types.Invocation = (*invocation[fieldRead])(nil)
	_ types.Invocation = (*invocation[fieldWrite])(nil)
	_ types.Invocation = (*invocation[construction])(nil)
)

func newInvocation[P payload](state *callState, jp types.Joinpoint, chain []types.Interceptor, p P) *invocation[P] {
	if state.id == "" {
		id, _ := uuid.NewV4()
		state.id = id.String()
	}
	if state.metadata == nil {
		state.metadata = metadata.NewSimpleMetaData()
	}
	if state.ctx == nil {
		state.ctx = context.Background()
	}
	return &invocation[P]{state: state, payload: p, jp: jp, interceptors: chain}
}

func (inv *invocation[P]) Id() string                        { return inv.state.id }
func (inv *invocation[P]) Context() context.Context          { return inv.state.ctx }
func (inv *invocation[P]) Joinpoint() types.Joinpoint        { return inv.jp }
func (inv *invocation[P]) Target() interface{}               { return inv.state.target }
func (inv *invocation[P]) Arguments() []interface{}          { return inv.state.args }
func (inv *invocation[P]) SetArguments(args []interface{})   { inv.state.args = args }
func (inv *invocation[P]) Interceptors() []types.Interceptor { return inv.interceptors }
func (inv *invocation[P]) CurrentInterceptor() int           { return inv.current }
func (inv *invocation[P]) MetaData() *metadata.SimpleMetaData {
	return inv.state.metadata
}

func (inv *invocation[P]) Advisor() types.Advisor {
	if inv.state.advisor == nil {
		return nil
	}
	return inv.state.advisor
}

func (inv *invocation[P]) InstanceAdvisor() types.InstanceAdvisor {
	if inv.state.instanceAdvisor == nil {
		return nil
	}
	return inv.state.instanceAdvisor
}

// InvokeNext runs interceptors[current]. The cursor is advanced before the call
// and restored when it returns, whatever the outcome, so an interceptor may call
// InvokeNext again to replay the rest of the chain.
func (inv *invocation[P]) InvokeNext() (interface{}, error) {
	if inv.current < len(inv.interceptors) {
		interceptor := inv.interceptors[inv.current]
		inv.current++
		defer func() { inv.current-- }()
		return interceptor.Invoke(inv)
	}
	if inv.wrapped != nil {
		return inv.wrapped.InvokeNext()
	}
	return inv.InvokeTarget()
}

func (inv *invocation[P]) InvokeTarget() (interface{}, error) {
	return inv.payload.invokeTarget(inv.state)
}

// Copy returns an invocation with the same chain, cursor and context, and its
// own arguments and metadata.
func (inv *invocation[P]) Copy() types.Invocation {
	state := *inv.state
	state.args = append([]interface{}(nil), inv.state.args...)
	state.metadata = inv.state.metadata.Copy()
	return inv.copyWith(&state)
}

func (inv *invocation[P]) copyWith(state *callState) *invocation[P] {
	c := *inv
	c.state = state
	if w, ok := inv.wrapped.(*invocation[P]); ok {
		c.wrapped = w.copyWith(state)
	} else if inv.wrapped != nil {
		c.wrapped = inv.wrapped.Copy()
	}
	return &c
}

// Wrapper returns an invocation running chain in front of the rest of this one.
func (inv *invocation[P]) Wrapper(chain []types.Interceptor) types.Invocation {
	return &invocation[P]{
		state:        inv.state,
		payload:      inv.payload,
		jp:           inv.jp,
		interceptors: chain,
		wrapped:      inv,
	}
}

// ResolveAttribute looks up the call metadata, the instance metadata, the
// member metadata and the class default metadata, in that order.
func (inv *invocation[P]) ResolveAttribute(tag, attribute string) (interface{}, bool) {
	if v, ok := inv.state.metadata.GetMetaData(tag, attribute); ok {
		return v, true
	}
	if ia := inv.state.instanceAdvisor; ia != nil {
		if v, ok := ia.MetaData().GetMetaData(tag, attribute); ok {
			return v, true
		}
	}
	advisor := inv.state.advisor
	if advisor == nil {
		return nil, false
	}
	if store := advisor.storeFor(inv.jp); store != nil {
		if v, ok := store.Resolve(memberKey(inv.jp), tag, attribute); ok {
			return v, true
		}
	}
	return advisor.DefaultMetaData().GetMetaData(tag, attribute)
}

func (inv *invocation[P]) String() string {
	return fmt.Sprintf("invocation %s of %s at %d/%d", inv.state.id, inv.jp, inv.current, len(inv.interceptors))
}

func callReflect(jp types.Joinpoint, fn reflect.Value, args []interface{}, ctx context.Context) (interface{}, error) {
	in, err := arguments(fn.Type(), args, ctx)
	if err != nil {
		return nil, &types.RuntimeInvocationError{Joinpoint: jp.String(), Cause: err}
	}
	return results(fn.Call(in))
}

func arguments(ft reflect.Type, args []interface{}, ctx context.Context) ([]reflect.Value, error) {
	n := ft.NumIn()
	if (!ft.IsVariadic() && len(args) != n) || (ft.IsVariadic() && len(args) < n-1) {
		return nil, fmt.Errorf("wrong number of arguments: want %d, got %d", n, len(args))
	}
	in := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		t := ft.In(min(i, n-1))
		if ft.IsVariadic() && i >= n-1 {
			t = t.Elem()
		}
		v, err := argValue(t, arg, ctx)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}
	return in, nil
}

// argValue converts arg to t. A nil context.Context argument receives the
// invocation context; numeric values convert between numeric kinds when the
// value survives the conversion.
func argValue(t reflect.Type, arg interface{}, ctx context.Context) (reflect.Value, error) {
	if arg == nil {
		if t == contextType && ctx != nil {
			return reflect.ValueOf(ctx), nil
		}
		switch t.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not assignable to %s", t)
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if numeric(v.Kind()) && numeric(t.Kind()) {
		if c, ok := convertNumeric(v, t); ok {
			return c, nil
		}
		return reflect.Value{}, fmt.Errorf("%v (%s) does not fit %s", arg, v.Type(), t)
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), t)
}

// convertNumeric converts v to t, reporting false when the value changes.
// Between float kinds only overflow to infinity counts as a change.
func convertNumeric(v reflect.Value, t reflect.Type) (reflect.Value, bool) {
	c := v.Convert(t)
	if v.CanFloat() && c.CanFloat() {
		return c, math.IsInf(c.Float(), 0) == math.IsInf(v.Float(), 0)
	}
	if v.CanFloat() && (math.IsNaN(v.Float()) || math.IsInf(v.Float(), 0)) {
		return c, false
	}
	if negative(v) != negative(c) || !c.Convert(v.Type()).Equal(v) {
		return c, false
	}
	return c, true
}

func negative(v reflect.Value) bool {
	switch {
	case v.CanInt():
		return v.Int() < 0
	case v.CanFloat():
		return v.Float() < 0
	}
	return false
}

func numeric(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
}

// results splits a reflective call's results. A trailing error is returned as
// is, several other results are returned as a []interface{}.
func results(out []reflect.Value) (interface{}, error) {
	var err error
	if last := len(out) - 1; last >= 0 && out[last].Type() == errorType {
		if !out[last].IsNil() {
			err = out[last].Interface().(error)
		}
		out = out[:last]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		values := make([]interface{}, 0, len(out))
		for _, o := range out {
			values = append(values, o.Interface())
		}
		return values, err
	}
}

func fieldValue(target interface{}, name string, write bool) (reflect.Value, error) {
	if target == nil {
		return reflect.Value{}, errors.New("no target object")
	}
	v := reflect.ValueOf(target)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, errors.New("nil target object")
		}
		v = v.Elem()
	} else if write {
		return reflect.Value{}, fmt.Errorf("cannot write field %s of non pointer %T", name, target)
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%T is not a struct", target)
	}
	f := v.FieldByName(name)
	if !f.IsValid() {
		return reflect.Value{}, fmt.Errorf("%T has no field %s", target, name)
	}
	if !f.CanInterface() || (write && !f.CanSet()) {
		return reflect.Value{}, fmt.Errorf("illegal access to field %s of %T", name, target)
	}
	return f, nil
}
