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
	"errors"
	"fmt"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/utils/runtime"
)

// ErrPanic wraps a panic raised by the rest of an interceptor chain.
var ErrPanic = errors.New("panic in advised call")

var _ types.Interceptor = (*Recover)(nil)

// Recover turns a panic in the rest of the chain, or in the advised member
// itself, into an error wrapping ErrPanic. The stack is written to the
// advisor's logger.
//
// Recover 将后续拦截器链或被增强成员中的 panic 转换为包装 ErrPanic 的错误，并记录堆栈。
type Recover struct {
	// NoStack leaves the stack out of the log line.
	NoStack bool
}

func (a *Recover) Name() string {
	return "recover"
}

func (a *Recover) Invoke(inv types.Invocation) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s: %v", ErrPanic, inv.Joinpoint().Key(), r)
			if logger := inv.Advisor().Logger(); logger != nil {
				if a.NoStack {
					logger.Printf("panic recovered: %v", err)
				} else {
					logger.Printf("panic recovered: %v\n%s", err, runtime.Stack())
				}
			}
		}
	}()
	return inv.InvokeNext()
}
