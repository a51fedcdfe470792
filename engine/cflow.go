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

	"github.com/rulego/weaver/api/types"
)

// CallFrame is one advised call in progress.
type CallFrame struct {
	Joinpoint types.Joinpoint
	Target    interface{}
}

type callStackKey struct{}

// WithCallFrame returns a context whose call stack ends with frame.
// The stack of the parent context is not modified.
func WithCallFrame(ctx context.Context, frame CallFrame) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	parent := CallStack(ctx)
	stack := make([]CallFrame, len(parent), len(parent)+1)
	copy(stack, parent)
	return context.WithValue(ctx, callStackKey{}, append(stack, frame))
}

// CallStack returns the advised calls in progress, outermost first.
func CallStack(ctx context.Context) []CallFrame {
	if ctx == nil {
		return nil
	}
	stack, _ := ctx.Value(callStackKey{}).([]CallFrame)
	return stack
}

// Callers returns the call stack without the innermost frame, the call
// currently executing.
func Callers(ctx context.Context) []CallFrame {
	stack := CallStack(ctx)
	if len(stack) == 0 {
		return nil
	}
	return stack[:len(stack)-1]
}
