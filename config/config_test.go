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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/builtin/advice"
	"github.com/rulego/weaver/engine"
	"github.com/rulego/weaver/member"
)

type Inventory struct {
	Stock int
}

func (i *Inventory) Reserve(n int) (int, error) {
	if n > i.Stock {
		return i.Stock, errors.New("out of stock")
	}
	i.Stock -= n
	return i.Stock, nil
}

func (i *Inventory) Count() int {
	return i.Stock
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) Trace(inv types.Invocation) (interface{}, error) {
	j.mu.Lock()
	j.entries = append(j.entries, inv.Joinpoint().MemberName())
	j.mu.Unlock()
	return inv.InvokeNext()
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

const inventoryConfig = `
matchOnAdvisor: true
scriptMaxExecutionTime: 500ms
properties:
  limits: {max: 1}
pointcuts:
  - name: reserve
    expr: {execution: {name: Reserve}}
  - name: reads
    expr:
      or:
        - pointcut: reserve
        - execution: {name: Count}
aspects:
  - {name: journal, scope: PER_VM, type: journal}
  - {name: limits, scope: PER_CLASS, type: concurrencyLimiter}
bindings:
  - name: limits
    pointcut: reserve
    order: 1
    interceptors:
      - aspect: limits
  - name: journal
    pointcut: reads
    order: 2
    interceptors:
      - {aspect: journal, advice: Trace, kind: around}
      - interceptor: metrics
metadata:
  - {name: tx, pointcut: reserve, tag: tx, attributes: {timeout: 5}}
`

func newInventoryRegistry(j *journal) *Registry {
	registry := NewRegistry()
	_ = registry.RegisterAspect("journal", func() types.AspectFactory {
		return engine.NewFuncFactory(func() (*journal, error) { return j, nil })
	})
	return registry
}

func TestParseAndApply(t *testing.T) {
	f, err := Parse([]byte(inventoryConfig))
	require.Nil(t, err)
	assert.True(t, f.MatchOnAdvisor)
	assert.Equal(t, 500*time.Millisecond, f.ScriptMaxExecutionTime)
	require.Len(t, f.Bindings, 2)

	j := &journal{}
	m, err := f.NewManager(newInventoryRegistry(j), types.WithLogger(types.DiscardLogger()))
	require.Nil(t, err)
	config := m.Config()
	assert.True(t, config.MatchOnAdvisor)
	assert.Equal(t, 500*time.Millisecond, config.ScriptMaxExecutionTime)
	assert.Equal(t, map[string]interface{}{"max": 1}, config.AspectProperties("limits"))

	advisor, err := m.Advise(member.NewLoader().ClassOf(&Inventory{}))
	require.Nil(t, err)
	chain, err := advisor.Chain("Reserve")
	require.Nil(t, err)
	assert.Equal(t, []string{"concurrencyLimiter", "journal.Trace", "metrics"}, chain)
	chain, err = advisor.Chain("Count")
	require.Nil(t, err)
	assert.Equal(t, []string{"journal.Trace", "metrics"}, chain)

	inventory := &Inventory{Stock: 3}
	result, err := advisor.InvokeMethod(context.Background(), inventory, "Reserve", 2)
	require.Nil(t, err)
	assert.Equal(t, 1, result)
	result, err = advisor.InvokeMethod(context.Background(), inventory, "Count")
	require.Nil(t, err)
	assert.Equal(t, 1, result)
	assert.Equal(t, []string{"Reserve", "Count"}, j.Entries())

	limiter, ok := advisor.GetPerClassAspect(mustDefinition(t, m, "limits"))
	require.True(t, ok)
	assert.Equal(t, int64(1), limiter.(*advice.ConcurrencyLimiter).Max)

	key := member.MethodKey(advisor.Name(), "Reserve", []string{"int"})
	assert.True(t, advisor.HasAnnotation(key, "@tx"))
	timeout, ok := advisor.MethodMetaData().Resolve(key, "tx", "timeout")
	require.True(t, ok)
	assert.Equal(t, 5, timeout)
}

func mustDefinition(t *testing.T, m *engine.Manager, name string) *types.AspectDefinition {
	def, ok := m.GetAspectDefinition(name)
	require.True(t, ok)
	return def
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weaver.yaml")
	require.Nil(t, os.WriteFile(path, []byte(inventoryConfig), 0o644))
	f, err := Load(path)
	require.Nil(t, err)
	assert.Len(t, f.Pointcuts, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	broken := filepath.Join(t.TempDir(), "broken.yaml")
	require.Nil(t, os.WriteFile(broken, []byte("aspects: [{name: a, scope: PER_NOTHING, type: debug}]"), 0o644))
	_, err = Load(broken)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), broken)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"bad scope", `aspects: [{name: a, scope: PER_NOTHING, type: debug}]`},
		{"aspect without type", `aspects: [{name: a, scope: PER_VM}]`},
		{"duplicate aspect", `aspects: [{name: a, scope: PER_VM, type: debug}, {name: a, scope: PER_CLASS, type: debug}]`},
		{"pointcut without name", `pointcuts: [{expr: {execution: {}}}]`},
		{"binding without interceptors", `bindings: [{name: b, pointcut: p}]`},
		{"interceptor and aspect", `bindings: [{name: b, pointcut: p, interceptors: [{interceptor: debug, aspect: a}]}]`},
		{"empty interceptor", `bindings: [{name: b, pointcut: p, interceptors: [{}]}]`},
		{"advice without aspect", `bindings: [{name: b, pointcut: p, interceptors: [{interceptor: debug, advice: Trace}]}]`},
		{"bad kind", `bindings: [{name: b, pointcut: p, interceptors: [{aspect: a, advice: Trace, kind: sideways}]}]`},
		{"metadata without tag", `metadata: [{name: m, pointcut: p}]`},
		{"negative timeout", `scriptMaxExecutionTime: -1s`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.config))
			require.NotNil(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}

	_, err := Parse([]byte("aspects: {"))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestApplyErrors(t *testing.T) {
	f, err := Parse([]byte(`
pointcuts:
  - name: all
    expr: {execution: {}}
  - name: broken
    expr: {pointcut: undeclared}
`))
	require.Nil(t, err)
	err = f.Apply(engine.NewManager(types.NewConfig(types.WithLogger(types.DiscardLogger()))), nil)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "pointcut broken")

	f, err = Parse([]byte(`
pointcuts:
  - name: all
    expr: {execution: {}}
aspects:
  - {name: ghost, scope: PER_VM, type: ghost}
bindings:
  - {name: a, pointcut: nowhere, interceptors: [{interceptor: debug}]}
  - {name: b, pointcut: all, interceptors: [{interceptor: ghost}]}
  - {name: c, pointcut: all, interceptors: [{aspect: ghost}]}
  - {name: d, pointcut: all, interceptors: [{interceptor: debug}]}
metadata:
  - {name: m, pointcut: nowhere, tag: tx}
`))
	require.Nil(t, err)
	m := engine.NewManager(types.NewConfig(types.WithLogger(types.DiscardLogger())))
	err = f.Apply(m, nil)
	require.NotNil(t, err)
	for _, part := range []string{
		"aspect ghost: unknown aspect type ghost",
		"binding a: unknown pointcut nowhere",
		"binding b: unknown interceptor ghost",
		"binding c: unknown aspect ghost",
		"metadata m: unknown pointcut nowhere",
	} {
		assert.Contains(t, err.Error(), part)
	}
	// Valid declarations are applied even when others fail.
	require.Len(t, m.Bindings(), 1)
	assert.Equal(t, "d", m.Bindings()[0].Name)
}

func TestApplyRebuildsOnce(t *testing.T) {
	f, err := Parse([]byte(`
pointcuts:
  - name: reserve
    expr: {execution: {name: Reserve}}
aspects:
  - {name: journal, scope: PER_VM, type: journal}
bindings:
  - {name: first, pointcut: reserve, interceptors: [{aspect: journal, advice: Missing}]}
  - {name: second, pointcut: reserve, interceptors: [{aspect: journal, advice: Missing}]}
metadata:
  - {name: tx, pointcut: reserve, tag: tx}
`))
	require.Nil(t, err)
	m := engine.NewManager(types.NewConfig(types.WithLogger(types.DiscardLogger())))
	advisor, err := m.Advise(member.NewLoader().ClassOf(&Inventory{}))
	require.Nil(t, err)

	err = f.Apply(m, newInventoryRegistry(&journal{}))
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, types.ErrAspectConstruction))
	assert.Equal(t, 1, strings.Count(err.Error(), "binding first at"))
	assert.Equal(t, 1, strings.Count(err.Error(), "binding second at"))
	assert.Len(t, m.Bindings(), 2)
	key := member.MethodKey(advisor.Name(), "Reserve", []string{"int"})
	assert.True(t, advisor.HasAnnotation(key, "@tx"))
}

func TestClassPool(t *testing.T) {
	f, err := Parse([]byte(`
classes:
  - name: shop.Cart
    annotations: [entity]
    methods:
      - {name: Total, modifiers: [public], returns: float64}
  - name: shop.Bad
    modifiers: [sideways]
`))
	require.Nil(t, err)
	_, err = f.ClassPool(nil)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "shop.Bad")

	f.Classes = f.Classes[:1]
	pool, err := f.ClassPool(member.NewLoader())
	require.Nil(t, err)
	assert.Equal(t, []string{"shop.Cart"}, pool.Names())
	cart, err := pool.Resolve("shop.Cart")
	require.Nil(t, err)
	assert.True(t, cart.HasAnnotation("entity"))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.Contains(t, registry.AspectTypes(), "concurrencyLimiter")
	assert.Contains(t, registry.InterceptorTypes(), "tracing")
	assert.Contains(t, registry.AspectTypes(), "bulkhead")
	assert.Contains(t, registry.InterceptorTypes(), "recover")

	newDebug := func() types.Interceptor { return &advice.Debug{Log: true} }
	require.Nil(t, registry.RegisterInterceptor("verbose", newDebug))
	assert.NotNil(t, registry.RegisterInterceptor("verbose", newDebug))
	assert.Contains(t, registry.InterceptorTypes(), "verbose")
	assert.NotContains(t, DefaultRegistry.InterceptorTypes(), "verbose")

	// A local type shadows the default one of the same name.
	require.Nil(t, registry.RegisterInterceptor("debug", newDebug))
	newInterceptor, ok := registry.interceptor("debug")
	require.True(t, ok)
	assert.True(t, newInterceptor().(*advice.Debug).Log)

	registry.Unregister("debug")
	newInterceptor, ok = registry.interceptor("debug")
	require.True(t, ok)
	assert.False(t, newInterceptor().(*advice.Debug).Log)
}
