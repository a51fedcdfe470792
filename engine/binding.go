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
	"sort"

	"github.com/rulego/weaver/pointcut"
)

// AdviceBinding contributes interceptors to every join point its pointcut selects.
// Bindings with a lower Order run earlier in a chain.
type AdviceBinding struct {
	Name      string
	Pointcut  *pointcut.Pointcut
	Factories []InterceptorFactory
	Order     int
}

// NewAdviceBinding creates a binding with order 0.
func NewAdviceBinding(name string, pc *pointcut.Pointcut, factories ...InterceptorFactory) *AdviceBinding {
	return &AdviceBinding{Name: name, Pointcut: pc, Factories: factories}
}

// WithOrder sets the binding's order and returns it.
func (b *AdviceBinding) WithOrder(order int) *AdviceBinding {
	b.Order = order
	return b
}

// MetaDataBinding attaches a tag and its attributes to the members its pointcut
// selects. A Default binding attaches them to the class default metadata of
// every class with at least one selected member.
type MetaDataBinding struct {
	Name       string
	Pointcut   *pointcut.Pointcut
	Tag        string
	Attributes map[string]interface{}
	Default    bool
}

// sortBindings orders bindings by Order, keeping insertion order for ties.
func sortBindings(bindings []*AdviceBinding) {
	sort.SliceStable(bindings, func(i, j int) bool {
		return bindings[i].Order < bindings[j].Order
	})
}
