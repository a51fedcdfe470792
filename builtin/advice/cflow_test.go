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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/weaver/api/types"
)

func TestCFlow(t *testing.T) {
	var mu sync.Mutex
	var steps []string
	cflow := &CFlow{
		Callers: []string{"*.Transfer"},
		Chain:   []types.Interceptor{recording("rateLimiter", &mu, &steps)},
	}
	advisor, account := adviseAccount(t, testConfig(), "Deposit", cflow, recording("audit", &mu, &steps))

	_, err := deposit(advisor, account, 1)
	require.Nil(t, err)
	assert.Equal(t, []string{"audit"}, steps)

	steps = nil
	// A nil context argument receives the invocation context.
	result, err := advisor.InvokeMethod(context.Background(), account, "Transfer", nil, 2)
	require.Nil(t, err)
	assert.Equal(t, 3, result)
	assert.Equal(t, []string{"rateLimiter", "audit"}, steps)
	assert.Equal(t, "cflow", cflow.Name())
}

func TestCFlowNegate(t *testing.T) {
	var mu sync.Mutex
	var steps []string
	cflow := &CFlow{
		Label:   "outsideTransfer",
		Callers: []string{"*.Transfer"},
		Chain:   []types.Interceptor{recording("inner", &mu, &steps)},
		Negate:  true,
	}
	advisor, account := adviseAccount(t, testConfig(), "Deposit", cflow)
	chain, err := advisor.Chain("Deposit")
	require.Nil(t, err)
	assert.Equal(t, []string{"outsideTransfer"}, chain)

	_, err = deposit(advisor, account, 1)
	require.Nil(t, err)
	assert.Equal(t, []string{"inner"}, steps)

	steps = nil
	_, err = advisor.InvokeMethod(context.Background(), account, "Transfer", nil, 1)
	require.Nil(t, err)
	assert.Empty(t, steps)
}
