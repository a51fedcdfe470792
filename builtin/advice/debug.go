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
	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/utils/str"
)

// Compile-time check Debug implements types.Interceptor.
var _ types.Interceptor = (*Debug)(nil)

// configured is implemented by advisors that expose the engine configuration.
type configured interface {
	Config() types.Config
}

// Debug reports every call it wraps. The IN record is emitted before the rest
// of the chain runs and the OUT record after it returned, with its result and error.
//
// Debug 报告其包装的每一次调用。IN 记录在后续拦截器链执行前产生，
// OUT 记录在其返回后产生，并携带结果和错误。
//
// Records go to Config.OnDebug when it is set. Otherwise, and when Log is
// true, they are written to the advisor's logger.
// 设置了 Config.OnDebug 时记录交给该回调，否则（或 Log 为 true 时）写入 advisor 的日志。
type Debug struct {
	// Log forces logging even when an OnDebug callback is configured.
	Log bool
}

func (d *Debug) Name() string {
	return "debug"
}

func (d *Debug) Invoke(inv types.Invocation) (interface{}, error) {
	d.onDebug(inv, types.In, nil, nil)
	result, err := inv.InvokeNext()
	d.onDebug(inv, types.Out, result, err)
	return result, err
}

func (d *Debug) onDebug(inv types.Invocation, flowType string, result interface{}, err error) {
	advisor := inv.Advisor()
	var onDebug func(invocationId string, flowType string, joinpoint string, result interface{}, err error)
	if c, ok := advisor.(configured); ok {
		onDebug = c.Config().OnDebug
	}
	if onDebug != nil {
		onDebug(inv.Id(), flowType, inv.Joinpoint().Key(), result, err)
	}
	if (onDebug == nil || d.Log) && advisor != nil && advisor.Logger() != nil {
		if flowType == types.In {
			advisor.Logger().Printf("[%s] %s %s args=%s", inv.Id(), flowType, inv.Joinpoint(), str.ToString(inv.Arguments()))
		} else {
			advisor.Logger().Printf("[%s] %s %s result=%s err=%v", inv.Id(), flowType, inv.Joinpoint(), str.ToString(result), err)
		}
	}
}
