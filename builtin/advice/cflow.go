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
	"github.com/rulego/weaver/engine"
	"github.com/rulego/weaver/utils/str"
)

var _ types.Interceptor = (*CFlow)(nil)

// CFlow runs Chain only for calls made, directly or not, from an advised call
// matching one of Callers. Other calls continue with the rest of their chain.
//
// CFlow 仅当调用直接或间接来自匹配 Callers 的被增强调用时才执行 Chain，
// 其他调用直接执行后续拦截器链。
//
// A caller pattern is a wildcard over "Class.Member", for example
// "*.Transfer" or "shop.Cart.*". The call stack is the one carried by the
// invocation context, see engine.CallStack.
// 调用方模式是 "类名.成员名" 的通配符表达式。
//
// Chain runs through Invocation.Wrapper, so exhausting it continues with the
// interceptor after CFlow in the original chain.
type CFlow struct {
	// Label names the interceptor, defaulting to "cflow".
	Label   string
	Callers []string
	Chain   []types.Interceptor
	// Negate runs Chain only when no caller matches.
	Negate bool
}

func (c *CFlow) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return "cflow"
}

func (c *CFlow) Invoke(inv types.Invocation) (interface{}, error) {
	if c.active(inv) == c.Negate || len(c.Chain) == 0 {
		return inv.InvokeNext()
	}
	return inv.Wrapper(c.Chain).InvokeNext()
}

func (c *CFlow) active(inv types.Invocation) bool {
	for _, frame := range engine.Callers(inv.Context()) {
		name := frame.Joinpoint.ClassName() + "." + frame.Joinpoint.MemberName()
		for _, pattern := range c.Callers {
			if str.MatchWildcard(pattern, name) {
				return true
			}
		}
	}
	return false
}
