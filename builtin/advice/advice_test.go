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

package advice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/engine"
	"github.com/rulego/weaver/member"
	"github.com/rulego/weaver/pointcut"
	"github.com/stretchr/testify/require"
)

var errNegative = errors.New("negative amount")

type Account struct {
	advisor *engine.ClassAdvisor
	Balance int
}

func (a *Account) Deposit(amount int) (int, error) {
	if amount < 0 {
		return 0, errNegative
	}
	a.Balance += amount
	return a.Balance, nil
}

// Transfer deposits through the advisor so the nested call is advised too.
func (a *Account) Transfer(ctx context.Context, amount int) (int, error) {
	result, err := a.advisor.InvokeMethod(ctx, a, "Deposit", amount)
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) Printf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

func (l *captureLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func testConfig(opts ...types.Option) types.Config {
	return types.NewConfig(append([]types.Option{types.WithLogger(types.DiscardLogger())}, opts...)...)
}

// adviseAccount binds interceptors, in order, to the executions of method.
func adviseAccount(t *testing.T, config types.Config, method string, interceptors ...types.Interceptor) (*engine.ClassAdvisor, *Account) {
	m := engine.NewManager(config)
	var factories []engine.InterceptorFactory
	for _, i := range interceptors {
		factories = append(factories, engine.NewInterceptorFactory(i))
	}
	pc := pointcut.New(method, pointcut.Execution{Method: pointcut.MethodNode{Identifier: pointcut.NewIdentifier(method)}})
	require.Nil(t, m.AddBinding(engine.NewAdviceBinding("advice", pc, factories...)))
	advisor, err := m.Advise(member.NewLoader().ClassOf(&Account{}))
	require.Nil(t, err)
	return advisor, &Account{advisor: advisor}
}

func deposit(advisor *engine.ClassAdvisor, account *Account, amount int) (interface{}, error) {
	return advisor.InvokeMethod(context.Background(), account, "Deposit", amount)
}

// recording returns an interceptor appending name to steps.
func recording(name string, mu *sync.Mutex, steps *[]string) types.Interceptor {
	return types.NewInterceptor(name, func(inv types.Invocation) (interface{}, error) {
		mu.Lock()
		*steps = append(*steps, name)
		mu.Unlock()
		return inv.InvokeNext()
	})
}
