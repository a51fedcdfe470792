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
	"math"
	"testing"

	"github.com/rulego/weaver/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGreetInvocation(t *testing.T, chain []types.Interceptor, target Invoker) *invocation[methodCall] {
	class := newLoader(t).ClassOf(&Greeter{})
	jp := NewMethodJoinpoint(class.Name(), methodOf(t, class, "Greet"))
	state := &callState{target: &Greeter{Name: "bob"}, args: []interface{}{"hi"}}
	return newInvocation(state, jp, chain, methodCall{jp: jp, invoker: target})
}

func TestInvokeNextRunsChainThenTarget(t *testing.T) {
	rec := &recorder{}
	var chain []types.Interceptor
	for _, name := range []string{"a", "b", "c"} {
		name := name
		chain = append(chain, types.NewInterceptor(name, func(inv types.Invocation) (interface{}, error) {
			rec.add(name)
			before := inv.CurrentInterceptor()
			result, err := inv.InvokeNext()
			assert.Equal(t, before, inv.CurrentInterceptor())
			return result, err
		}))
	}
	targets := 0
	inv := newGreetInvocation(t, chain, func(ctx context.Context, target interface{}, args []interface{}) (interface{}, error) {
		targets++
		rec.add("target")
		return "done", nil
	})

	result, err := inv.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"a", "b", "c", "target"}, rec.Steps())
	assert.Equal(t, 1, targets)
	assert.Equal(t, 0, inv.CurrentInterceptor())
}

func TestCursorRestoredOnFailure(t *testing.T) {
	failing := types.NewInterceptor("failing", func(inv types.Invocation) (interface{}, error) {
		return nil, errBoom
	})
	panicking := types.NewInterceptor("panicking", func(inv types.Invocation) (interface{}, error) {
		panic("interceptor panic")
	})

	inv := newGreetInvocation(t, []types.Interceptor{failing}, nil)
	_, err := inv.InvokeNext()
	assert.Equal(t, errBoom, err)
	assert.Equal(t, 0, inv.CurrentInterceptor())

	inv = newGreetInvocation(t, []types.Interceptor{panicking}, nil)
	assert.Panics(t, func() { _, _ = inv.InvokeNext() })
	assert.Equal(t, 0, inv.CurrentInterceptor())
}

func TestReplayRemainingChain(t *testing.T) {
	rec := &recorder{}
	retry := types.NewInterceptor("retry", func(inv types.Invocation) (interface{}, error) {
		if _, err := inv.InvokeNext(); err == nil {
			t.Fatal("first attempt should fail")
		}
		return inv.InvokeNext()
	})
	attempts := 0
	inv := newGreetInvocation(t, []types.Interceptor{retry, rec.interceptor("audit")},
		func(ctx context.Context, target interface{}, args []interface{}) (interface{}, error) {
			attempts++
			if attempts == 1 {
				return nil, errBoom
			}
			return "ok", nil
		})

	result, err := inv.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, []string{"audit", "audit"}, rec.Steps())
	assert.Equal(t, 2, attempts)
}

func TestWrapperDelegatesToWrappedInvocation(t *testing.T) {
	rec := &recorder{}
	var wrapped types.Invocation
	authCalls := 0
	auth := types.NewInterceptor("auth", func(inv types.Invocation) (interface{}, error) {
		authCalls++
		assert.Same(t, wrapped, inv)
		rec.add("auth")
		return inv.InvokeNext()
	})
	inv := newGreetInvocation(t, []types.Interceptor{auth, rec.interceptor("audit")},
		func(ctx context.Context, target interface{}, args []interface{}) (interface{}, error) {
			rec.add("target")
			return "done", nil
		})
	wrapped = inv

	wrapper := inv.Wrapper([]types.Interceptor{rec.interceptor("rateLimiter")})
	assert.Equal(t, inv.Id(), wrapper.Id())
	result, err := wrapper.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, []string{"rateLimiter", "auth", "audit", "target"}, rec.Steps())
	assert.Equal(t, 1, authCalls)
	assert.Equal(t, 0, inv.CurrentInterceptor())
}

func TestWrapperInsertedMidChain(t *testing.T) {
	rec := &recorder{}
	cflow := types.NewInterceptor("cflow", func(inv types.Invocation) (interface{}, error) {
		rec.add("cflow")
		return inv.Wrapper([]types.Interceptor{rec.interceptor("rateLimiter")}).InvokeNext()
	})
	inv := newGreetInvocation(t, []types.Interceptor{cflow, rec.interceptor("auth"), rec.interceptor("audit")},
		func(ctx context.Context, target interface{}, args []interface{}) (interface{}, error) {
			rec.add("target")
			return nil, nil
		})
	_, err := inv.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, []string{"cflow", "rateLimiter", "auth", "audit", "target"}, rec.Steps())
}

func TestWrapperSharesArguments(t *testing.T) {
	rewrite := types.NewInterceptor("rewrite", func(inv types.Invocation) (interface{}, error) {
		inv.SetArguments([]interface{}{"hello"})
		inv.MetaData().AddMetaData("tx", "id", 7)
		return inv.InvokeNext()
	})
	inv := newGreetInvocation(t, nil, nil)
	wrapper := inv.Wrapper([]types.Interceptor{rewrite})
	result, err := wrapper.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, "hello, bob", result)
	assert.Equal(t, []interface{}{"hello"}, inv.Arguments())
	v, ok := inv.MetaData().GetMetaData("tx", "id")
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestCopyIsIndependent(t *testing.T) {
	var copied types.Invocation
	capture := types.NewInterceptor("capture", func(inv types.Invocation) (interface{}, error) {
		copied = inv.Copy()
		return inv.InvokeNext()
	})
	inv := newGreetInvocation(t, []types.Interceptor{capture}, nil)
	inv.MetaData().AddMetaData("tx", "id", 1)
	_, err := inv.InvokeNext()
	require.Nil(t, err)

	require.NotNil(t, copied)
	assert.Equal(t, inv.Id(), copied.Id())
	assert.Equal(t, 1, copied.CurrentInterceptor())
	assert.Equal(t, inv.Interceptors(), copied.Interceptors())

	copied.SetArguments([]interface{}{"bye"})
	copied.MetaData().AddMetaData("tx", "id", 2)
	assert.Equal(t, []interface{}{"hi"}, inv.Arguments())
	v, _ := inv.MetaData().GetMetaData("tx", "id")
	assert.Equal(t, 1, v)

	// The copy resumes after the interceptor it was taken in.
	result, err := copied.InvokeNext()
	require.Nil(t, err)
	assert.Equal(t, "bye, bob", result)
}

func TestTargetFailureIsReturnedVerbatim(t *testing.T) {
	loader := newLoader(t)
	class := loader.ClassOf(&Greeter{})
	jp := NewMethodJoinpoint(class.Name(), methodOf(t, class, "Fail"))
	inv := newInvocation(&callState{target: &Greeter{}}, jp, nil, methodCall{jp: jp})
	_, err := inv.InvokeNext()
	assert.Equal(t, errBoom, err)
	assert.False(t, errors.Is(err, types.ErrRuntimeInvocation))
}

func TestReflectiveFailuresAreRuntimeInvocationErrors(t *testing.T) {
	inv := newGreetInvocation(t, nil, nil)
	inv.SetArguments([]interface{}{42})
	_, err := inv.InvokeNext()
	assert.True(t, errors.Is(err, types.ErrRuntimeInvocation))
	var runtimeErr *types.RuntimeInvocationError
	require.True(t, errors.As(err, &runtimeErr))
	assert.Contains(t, runtimeErr.Joinpoint, "Greet")

	inv = newGreetInvocation(t, nil, nil)
	inv.state.target = nil
	_, err = inv.InvokeNext()
	assert.True(t, errors.Is(err, types.ErrRuntimeInvocation))

	inv = newGreetInvocation(t, nil, nil)
	inv.SetArguments(nil)
	_, err = inv.InvokeNext()
	assert.True(t, errors.Is(err, types.ErrRuntimeInvocation))
}

func TestResolveAttributeOrder(t *testing.T) {
	m := newTestManager()
	class := newLoader(t).ClassOf(&Greeter{})
	advisor, err := m.Advise(class)
	require.Nil(t, err)
	g := NewGreeter("bob")
	ia := advisor.InstanceAdvisorOf(g)
	greet := methodOf(t, class, "Greet")
	jp := NewMethodJoinpoint(class.Name(), greet)
	inv := newInvocation(&callState{advisor: advisor, instanceAdvisor: ia, target: g}, jp, nil, methodCall{jp: jp})

	_, ok := inv.ResolveAttribute("tx", "timeout")
	assert.False(t, ok)

	advisor.DefaultMetaData().AddMetaData("tx", "timeout", 1)
	v, _ := inv.ResolveAttribute("tx", "timeout")
	assert.Equal(t, 1, v)

	advisor.MethodMetaData().Add(greet.Key(), "tx", "timeout", 2, true)
	v, _ = inv.ResolveAttribute("tx", "timeout")
	assert.Equal(t, 2, v)

	ia.MetaData().AddMetaData("tx", "timeout", 3)
	v, _ = inv.ResolveAttribute("tx", "timeout")
	assert.Equal(t, 3, v)

	inv.MetaData().AddMetaData("tx", "timeout", 4)
	v, _ = inv.ResolveAttribute("tx", "timeout")
	assert.Equal(t, 4, v)
}

func TestCallStack(t *testing.T) {
	class := newLoader(t).ClassOf(&Greeter{})
	outer := CallFrame{Joinpoint: NewMethodJoinpoint(class.Name(), methodOf(t, class, "Greet"))}
	inner := CallFrame{Joinpoint: NewMethodJoinpoint(class.Name(), methodOf(t, class, "Fail"))}

	assert.Nil(t, CallStack(context.Background()))
	ctx := WithCallFrame(context.Background(), outer)
	ctx2 := WithCallFrame(ctx, inner)
	assert.Len(t, CallStack(ctx), 1)
	assert.Len(t, CallStack(ctx2), 2)
	callers := Callers(ctx2)
	require.Len(t, callers, 1)
	assert.Equal(t, outer.Joinpoint.Key(), callers[0].Joinpoint.Key())
	assert.Empty(t, Callers(ctx))
}

type Meter struct{}

func (m *Meter) Take(n int) int { return n }

func (m *Meter) Count(n uint8) uint8 { return n }

func (m *Meter) Ratio(f float32) float32 { return f }

func (m *Meter) Wide(f float64) float64 { return f }

func TestNumericArguments(t *testing.T) {
	m := newTestManager()
	advisor, err := m.Advise(newLoader(t).ClassOf(&Meter{}))
	require.Nil(t, err)
	ctx := context.Background()

	tests := []struct {
		method string
		arg    interface{}
		want   interface{}
	}{
		{"Take", 3.0, 3},
		{"Take", int64(-7), -7},
		{"Take", uint16(9), 9},
		{"Count", 255, uint8(255)},
		{"Ratio", 1.5, float32(1.5)},
		{"Wide", 42, float64(42)},
		{"Wide", float32(0.25), 0.25},
	}
	for _, tt := range tests {
		result, err := advisor.InvokeMethod(ctx, &Meter{}, tt.method, tt.arg)
		require.Nil(t, err, "%s(%v)", tt.method, tt.arg)
		assert.Equal(t, tt.want, result, "%s(%v)", tt.method, tt.arg)
	}

	rejected := []struct {
		method string
		arg    interface{}
	}{
		{"Take", 3.7},
		{"Take", uint64(1 << 63)},
		{"Take", math.NaN()},
		{"Take", math.Inf(1)},
		{"Count", 256},
		{"Count", -1},
		{"Ratio", math.MaxFloat64},
		{"Wide", int64(1<<62 + 1)},
	}
	for _, tt := range rejected {
		result, err := advisor.InvokeMethod(ctx, &Meter{}, tt.method, tt.arg)
		assert.Nil(t, result, "%s(%v)", tt.method, tt.arg)
		assert.True(t, errors.Is(err, types.ErrRuntimeInvocation), "%s(%v)", tt.method, tt.arg)
		var runtimeErr *types.RuntimeInvocationError
		require.True(t, errors.As(err, &runtimeErr))
		assert.Contains(t, runtimeErr.Joinpoint, tt.method)
		assert.Contains(t, err.Error(), "does not fit")
	}
}
