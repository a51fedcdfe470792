/*
 * Copyright 2025 The RuleGo Authors.
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

package advice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/engine"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/pointcut"
)

var panicking = types.NewInterceptor("panicking", func(inv types.Invocation) (interface{}, error) {
	panic("boom")
})

// counting counts the calls reaching it and records the join point key.
type counting struct {
	calls int32
	key   atomic.Value
}

func (c *counting) Name() string { return "counting" }

func (c *counting) Invoke(inv types.Invocation) (interface{}, error) {
	atomic.AddInt32(&c.calls, 1)
	c.key.Store(inv.Joinpoint().Key())
	return inv.InvokeNext()
}

func (c *counting) Calls() int { return int(atomic.LoadInt32(&c.calls)) }

func TestRecover(t *testing.T) {
	logger := &captureLogger{}
	advisor, account := adviseAccount(t, testConfig(types.WithLogger(logger)), "Deposit", &Recover{}, panicking)

	result, err := deposit(advisor, account, 1)
	assert.Nil(t, result)
	require.True(t, errors.Is(err, ErrPanic))
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "Deposit")
	var logged []string
	for _, line := range logger.Lines() {
		if strings.HasPrefix(line, "panic recovered:") {
			logged = append(logged, line)
		}
	}
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "boom")

	// Without a panic the result passes through.
	advisor, account = adviseAccount(t, testConfig(), "Deposit", &Recover{NoStack: true})
	result, err = deposit(advisor, account, 2)
	require.Nil(t, err)
	assert.Equal(t, 2, result)
	_, err = deposit(advisor, account, -1)
	assert.Equal(t, errNegative, err)
}

func TestCache(t *testing.T) {
	c := NewCache(0)
	counter := &counting{}
	advisor, account := adviseAccount(t, testConfig(), "Deposit", c, counter)
	defer c.Close()

	for i := 0; i < 3; i++ {
		result, err := deposit(advisor, account, 5)
		require.Nil(t, err)
		assert.Equal(t, 5, result)
	}
	assert.Equal(t, 1, counter.Calls())
	assert.Equal(t, 5, account.Balance)

	result, err := deposit(advisor, account, 1)
	require.Nil(t, err)
	assert.Equal(t, 6, result)
	assert.Equal(t, 2, c.Len())

	// Errors are not cached.
	for i := 0; i < 2; i++ {
		_, err = deposit(advisor, account, -1)
		assert.Equal(t, errNegative, err)
	}
	assert.Equal(t, 4, counter.Calls())
	assert.Equal(t, 2, c.Len())

	c.Invalidate(counter.key.Load().(string))
	assert.Equal(t, 0, c.Len())
	result, err = deposit(advisor, account, 5)
	require.Nil(t, err)
	assert.Equal(t, 11, result)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	counter := &counting{}
	advisor, account := adviseAccount(t, testConfig(), "Deposit", c, counter)
	defer c.Close()

	_, err := deposit(advisor, account, 1)
	require.Nil(t, err)
	_, err = deposit(advisor, account, 1)
	require.Nil(t, err)
	assert.Equal(t, 1, counter.Calls())

	time.Sleep(20 * time.Millisecond)
	result, err := deposit(advisor, account, 1)
	require.Nil(t, err)
	assert.Equal(t, 2, result)
	assert.Equal(t, 2, counter.Calls())
}

func TestCacheSkipsContextAndUnencodableArguments(t *testing.T) {
	c := NewCache(0)
	counter := &counting{}
	advisor, account := adviseAccount(t, testConfig(), "Transfer", c, counter)
	defer c.Close()

	// The context argument is left out of the key.
	type key struct{}
	_, err := advisor.InvokeMethod(context.Background(), account, "Transfer", context.Background(), 3)
	require.Nil(t, err)
	_, err = advisor.InvokeMethod(context.Background(), account, "Transfer", context.WithValue(context.Background(), key{}, 1), 3)
	require.Nil(t, err)
	assert.Equal(t, 1, counter.Calls())

	_, ok := cacheKey(&fakeInvocation{args: []interface{}{make(chan int)}})
	assert.False(t, ok)
}

// fakeInvocation serves only the arguments needed to build a cache key.
type fakeInvocation struct {
	types.Invocation
	args []interface{}
}

func (f *fakeInvocation) Arguments() []interface{} { return f.args }

func TestCachePerInstance(t *testing.T) {
	m := engine.NewManager(testConfig(types.WithProperties("cache", map[string]interface{}{"ttl": "1m"})))
	def := types.NewAspectDefinition("cache", types.PerInstance, engine.NewPrototypeFactory(&Cache{}))
	require.Nil(t, m.AddAspectDefinition(def))
	pc := pointcut.New("deposit", pointcut.Execution{Method: pointcut.MethodNode{Identifier: pointcut.NewIdentifier("Deposit")}})
	require.Nil(t, m.AddBinding(engine.NewAdviceBinding("cache", pc, engine.NewScopedInterceptorFactory(def))))
	advisor, err := m.Advise(member.NewLoader().ClassOf(&Account{}))
	require.Nil(t, err)

	a, b := &Account{}, &Account{}
	for i := 0; i < 2; i++ {
		_, err = deposit(advisor, a, 4)
		require.Nil(t, err)
		_, err = deposit(advisor, b, 4)
		require.Nil(t, err)
	}
	assert.Equal(t, 4, a.Balance)
	assert.Equal(t, 4, b.Balance)

	instance, err := advisor.InstanceAdvisorOf(a).GetPerInstanceAspect(def)
	require.Nil(t, err)
	assert.Equal(t, time.Minute, instance.(*Cache).TTL)
	assert.Equal(t, 1, instance.(*Cache).Len())
}

func TestBulkhead(t *testing.T) {
	bulkhead := NewBulkhead(1)
	defer bulkhead.Close()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	blocker := types.NewInterceptor("blocker", func(inv types.Invocation) (interface{}, error) {
		if inv.Arguments()[0] == 100 {
			started <- struct{}{}
			<-release
		}
		return inv.InvokeNext()
	})
	advisor, account := adviseAccount(t, testConfig(), "Deposit", bulkhead, blocker)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, err := deposit(advisor, &Account{}, 100)
		assert.Nil(t, err)
		assert.Equal(t, 100, result)
	}()
	<-started

	_, err := deposit(advisor, account, 1)
	assert.Equal(t, ErrBulkheadFull, err)

	close(release)
	wg.Wait()
	require.Eventually(t, func() bool {
		_, err := deposit(advisor, account, 1)
		return err == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, account.Balance)
	assert.Equal(t, 1, bulkhead.Workers())

	_, err = deposit(advisor, account, -1)
	assert.Equal(t, errNegative, err)
}

func TestBulkheadContextAndPanic(t *testing.T) {
	bulkhead := &Bulkhead{MaxWorkers: 2}
	release := make(chan struct{})
	blocker := types.NewInterceptor("blocker", func(inv types.Invocation) (interface{}, error) {
		<-release
		return inv.InvokeNext()
	})
	advisor, account := adviseAccount(t, testConfig(), "Deposit", bulkhead, blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := advisor.InvokeMethod(ctx, account, "Deposit", 1)
	assert.Equal(t, context.DeadlineExceeded, err)
	close(release)

	advisor, account = adviseAccount(t, testConfig(), "Deposit", bulkhead, panicking)
	_, err = deposit(advisor, account, 1)
	require.True(t, errors.Is(err, ErrPanic))
	assert.Contains(t, err.Error(), "boom")

	bulkhead.Close()
	_, err = deposit(advisor, account, 1)
	assert.NotNil(t, err)
}
