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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rulego/weaver/api/types"
)

var _ types.Interceptor = (*Prometheus)(nil)

// Prometheus exports the calls it wraps as Prometheus metrics.
//
// Prometheus 将其包装的调用导出为 Prometheus 指标。
//
// Metrics (namespace "weaver", subsystem "invocation"):
// 指标（命名空间 "weaver"，子系统 "invocation"）：
//   - calls_total{class, member, status}: Number of calls  调用次数
//   - duration_seconds{class, member, status}: Call duration  调用耗时
//   - active{class}: Calls currently in progress  正在执行的调用数
//
// status is "success" or "error".
type Prometheus struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   *prometheus.GaugeVec
}

// NewPrometheus registers the collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer. Registering twice with the same registry panics.
//
// NewPrometheus 将指标注册到 reg，reg 为 nil 时使用 prometheus.DefaultRegisterer。
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Prometheus{
		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "weaver",
				Subsystem: "invocation",
				Name:      "calls_total",
				Help:      "Total number of advised calls.",
			},
			[]string{"class", "member", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "weaver",
				Subsystem: "invocation",
				Name:      "duration_seconds",
				Help:      "Duration of advised calls in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"class", "member", "status"},
		),
		active: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "weaver",
				Subsystem: "invocation",
				Name:      "active",
				Help:      "Number of advised calls in progress.",
			},
			[]string{"class"},
		),
	}
}

func (p *Prometheus) Name() string {
	return "prometheus"
}

func (p *Prometheus) Invoke(inv types.Invocation) (interface{}, error) {
	jp := inv.Joinpoint()
	active := p.active.WithLabelValues(jp.ClassName())
	active.Inc()
	defer active.Dec()

	start := time.Now()
	result, err := inv.InvokeNext()
	status := "success"
	if err != nil {
		status = "error"
	}
	p.duration.WithLabelValues(jp.ClassName(), jp.MemberName(), status).Observe(time.Since(start).Seconds())
	p.calls.WithLabelValues(jp.ClassName(), jp.MemberName(), status).Inc()
	return result, err
}
