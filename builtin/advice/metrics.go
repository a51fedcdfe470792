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
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/api/types/metrics"
)

var _ types.Interceptor = (*Metrics)(nil)

// Metrics 统计经过的调用指标
type Metrics struct {
	once    sync.Once
	metrics *metrics.InvocationMetrics
}

func NewMetrics(m *metrics.InvocationMetrics) *Metrics {
	if m == nil {
		m = metrics.NewInvocationMetrics()
	}
	return &Metrics{
		metrics: m,
	}
}

func (a *Metrics) Name() string {
	return "metrics"
}

func (a *Metrics) Invoke(inv types.Invocation) (interface{}, error) {
	m := a.GetMetrics()
	m.IncrementCurrent()
	m.IncrementTotal()
	defer m.DecrementCurrent()
	result, err := inv.InvokeNext()
	if err != nil {
		m.IncrementFailed()
	} else {
		m.IncrementSuccess()
	}
	return result, err
}

// GetMetrics 返回当前的指标
func (a *Metrics) GetMetrics() *metrics.InvocationMetrics {
	a.once.Do(func() {
		if a.metrics == nil {
			a.metrics = metrics.NewInvocationMetrics()
		}
	})
	return a.metrics
}
