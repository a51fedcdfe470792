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
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/api/types/metrics"
)

type debugRecord struct {
	id, flowType, joinpoint string
	result                  interface{}
	err                     error
}

func TestDebug(t *testing.T) {
	var mu sync.Mutex
	var records []debugRecord
	config := testConfig(types.WithOnDebug(func(invocationId string, flowType string, joinpoint string, result interface{}, err error) {
		mu.Lock()
		defer mu.Unlock()
		records = append(records, debugRecord{invocationId, flowType, joinpoint, result, err})
	}))
	advisor, account := adviseAccount(t, config, "Deposit", &Debug{})

	_, err := deposit(advisor, account, 5)
	require.Nil(t, err)
	_, err = deposit(advisor, account, -1)
	assert.Equal(t, errNegative, err)

	require.Len(t, records, 4)
	assert.Equal(t, types.In, records[0].flowType)
	assert.Nil(t, records[0].result)
	assert.Equal(t, types.Out, records[1].flowType)
	assert.Equal(t, 5, records[1].result)
	assert.Equal(t, records[0].id, records[1].id)
	assert.NotEqual(t, records[0].id, records[2].id)
	assert.Contains(t, records[0].joinpoint, "Deposit")
	assert.Equal(t, errNegative, records[3].err)
}

func TestDebugLogsWithoutCallback(t *testing.T) {
	logger := &captureLogger{}
	advisor, account := adviseAccount(t, testConfig(types.WithLogger(logger)), "Deposit", &Debug{})

	_, err := deposit(advisor, account, 7)
	require.Nil(t, err)
	lines := logger.Lines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "IN")
	assert.Contains(t, lines[0], "args=[7]")
	assert.Contains(t, lines[1], "OUT")
	assert.Contains(t, lines[1], "result=7")
}

func TestMetrics(t *testing.T) {
	m := metrics.NewInvocationMetrics()
	advisor, account := adviseAccount(t, testConfig(), "Deposit", NewMetrics(m))

	_, _ = deposit(advisor, account, 1)
	_, _ = deposit(advisor, account, 2)
	_, _ = deposit(advisor, account, -1)

	snapshot := m.Get()
	assert.Equal(t, int64(3), snapshot.Total)
	assert.Equal(t, int64(2), snapshot.Success)
	assert.Equal(t, int64(1), snapshot.Failed)
	assert.Equal(t, int64(0), snapshot.Current)

	zero := &Metrics{}
	assert.NotNil(t, zero.GetMetrics())
	assert.Same(t, zero.GetMetrics(), zero.GetMetrics())
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	advisor, account := adviseAccount(t, testConfig(), "Deposit", NewPrometheus(reg))

	_, _ = deposit(advisor, account, 1)
	_, _ = deposit(advisor, account, 2)
	_, _ = deposit(advisor, account, -1)

	families, err := reg.Gather()
	require.Nil(t, err)
	calls := map[string]float64{}
	var observed uint64
	for _, family := range families {
		switch family.GetName() {
		case "weaver_invocation_calls_total":
			for _, metric := range family.GetMetric() {
				labels := labelsOf(metric)
				assert.Equal(t, advisor.Name(), labels["class"])
				assert.Equal(t, "Deposit", labels["member"])
				calls[labels["status"]] += metric.GetCounter().GetValue()
			}
		case "weaver_invocation_duration_seconds":
			for _, metric := range family.GetMetric() {
				observed += metric.GetHistogram().GetSampleCount()
			}
		case "weaver_invocation_active":
			for _, metric := range family.GetMetric() {
				assert.Equal(t, float64(0), metric.GetGauge().GetValue())
			}
		}
	}
	assert.Equal(t, map[string]float64{"success": 2, "error": 1}, calls)
	assert.Equal(t, uint64(3), observed)

	// The collectors are registered once per registry.
	assert.Panics(t, func() { NewPrometheus(reg) })
}

func labelsOf(metric *dto.Metric) map[string]string {
	labels := map[string]string{}
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	advisor, account := adviseAccount(t, testConfig(), "Deposit", &Tracing{Tracer: tp.Tracer("test")})

	_, err := deposit(advisor, account, 3)
	require.Nil(t, err)
	_, err = deposit(advisor, account, -3)
	require.NotNil(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, advisor.Name()+".Deposit", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, errNegative.Error(), spans[1].Status.Description)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "execution", attrs["weaver.kind"])
	assert.Equal(t, "1", attrs["weaver.args"])
	assert.True(t, strings.Contains(attrs["weaver.joinpoint"], "Deposit"))
}
