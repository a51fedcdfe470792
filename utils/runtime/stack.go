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

// Package runtime formats stack traces for recovered panics.
package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// maxDepth bounds the number of frames Stack reports.
const maxDepth = 32

// Stack 获取堆栈信息
//
// Stack returns the caller's stack, one "function file:line" frame per line.
// Called from a deferred recover, the first frame is the panicking function.
func Stack() string {
	return StackSkip(1)
}

// StackSkip is Stack omitting skip additional frames.
func StackSkip(skip int) string {
	pc := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pc)
	frames := runtime.CallersFrames(pc[:n])

	var build strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			fmt.Fprintf(&build, "%s %s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return build.String()
}
