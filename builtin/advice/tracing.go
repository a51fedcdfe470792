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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rulego/weaver/api/types"
)

// TracerName is the OpenTelemetry tracer name used when Tracing has no tracer.
const TracerName = "github.com/rulego/weaver"

var _ types.Interceptor = (*Tracing)(nil)

// Tracing opens a span named after the join point around every call. The span
// records the invocation id, the join point kind and the argument count; a
// failing call marks the span as an error.
//
// Tracing 为每次调用创建以连接点命名的 span，失败的调用会将 span 标记为错误。
//
// The span context is not propagated to the target: the invocation context is
// fixed when the call enters its chain.
type Tracing struct {
	// Tracer defaults to otel.Tracer(TracerName), resolved on every call so a
	// provider installed later is honored.
	Tracer trace.Tracer
}

func (t *Tracing) Name() string {
	return "tracing"
}

func (t *Tracing) Invoke(inv types.Invocation) (interface{}, error) {
	tracer := t.Tracer
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	jp := inv.Joinpoint()
	_, span := tracer.Start(inv.Context(), jp.ClassName()+"."+jp.MemberName(),
		trace.WithAttributes(
			attribute.String("weaver.invocation_id", inv.Id()),
			attribute.String("weaver.joinpoint", jp.Key()),
			attribute.String("weaver.kind", jp.Kind().String()),
			attribute.Int("weaver.args", len(inv.Arguments())),
		),
	)
	defer span.End()

	result, err := inv.InvokeNext()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}
