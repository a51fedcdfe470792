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
	"sync"

	"github.com/rulego/weaver/api/types"
	"github.com/rulego/weaver/utils/js"
)

// DefaultGuardFunction is the script function JsGuard calls when Function is empty.
const DefaultGuardFunction = "guard"

// ErrGuardRejected is returned when a guard script rejects a call.
var ErrGuardRejected = errors.New("call rejected by guard")

var _ types.Interceptor = (*JsGuard)(nil)

// JsGuard lets a JavaScript function decide whether a call proceeds. The
// function receives one object describing the call:
//
//	{id, class, member, key, kind, args}
//
// and returns true to proceed. Any other value rejects the call with
// ErrGuardRejected; a returned string becomes the rejection reason.
//
// JsGuard 由 JavaScript 函数决定调用是否继续。函数返回 true 时继续执行，
// 否则以 ErrGuardRejected 拒绝调用，返回的字符串作为拒绝原因。
//
//	guard := &advice.JsGuard{Script: `function guard(call) { return call.args[0] !== "root"; }`}
//
// The script is compiled on first use with the configuration of the advisor
// of that call, so Config.Udf functions are available to it.
// 脚本在首次使用时按调用所属 advisor 的配置编译，因此可以使用 Config.Udf 中注册的函数。
type JsGuard struct {
	Script string
	// Function defaults to DefaultGuardFunction.
	Function string

	once   sync.Once
	engine *js.GojaJsEngine
	err    error
}

func (g *JsGuard) Name() string {
	return "jsGuard"
}

func (g *JsGuard) init(inv types.Invocation) (*js.GojaJsEngine, error) {
	g.once.Do(func() {
		config := types.NewConfig()
		if c, ok := inv.Advisor().(configured); ok {
			config = c.Config()
		}
		g.engine, g.err = js.NewGojaJsEngine(config, g.Script, nil)
	})
	return g.engine, g.err
}

func (g *JsGuard) Invoke(inv types.Invocation) (interface{}, error) {
	engine, err := g.init(inv)
	if err != nil {
		return nil, fmt.Errorf("guard script: %w", err)
	}
	function := g.Function
	if function == "" {
		function = DefaultGuardFunction
	}
	jp := inv.Joinpoint()
	out, err := engine.Execute(inv.Context(), function, map[string]interface{}{
		"id":     inv.Id(),
		"class":  jp.ClassName(),
		"member": jp.MemberName(),
		"key":    jp.Key(),
		"kind":   jp.Kind().String(),
		"args":   inv.Arguments(),
	})
	if err != nil {
		return nil, fmt.Errorf("guard %s: %w", function, err)
	}
	switch v := out.(type) {
	case bool:
		if v {
			return inv.InvokeNext()
		}
	case string:
		return nil, fmt.Errorf("%w: %s", ErrGuardRejected, v)
	}
	return nil, ErrGuardRejected
}
