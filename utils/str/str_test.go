/*
 * Copyright 2023 The RuleGo Authors.
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

package str

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSprintfDict(t *testing.T) {
	dict := map[string]string{
		"name": "Alice",
		"age":  "18",
	}
	s := SprintfDict("Hello, ${name}. You are ${age} years old. ${unknown}", dict)
	assert.Equal(t, "Hello, Alice. You are 18 years old. ${unknown}", s)
}

func TestWildcard(t *testing.T) {
	assert.True(t, MatchWildcard("*", "anything"))
	assert.True(t, MatchWildcard("get*", "getName"))
	assert.False(t, MatchWildcard("get*", "setName"))
	assert.True(t, MatchWildcard("example.com/shop.*Service", "example.com/shop.OrderService"))
	assert.False(t, MatchWildcard("example.com/shop.*Service", "example.com/shopXOrderService"))
	assert.True(t, MatchWildcard("[]*", "[]int"))
	assert.True(t, MatchWildcard("Exact", "Exact"))
	assert.False(t, MatchWildcard("Exact", "Exactly"))
	assert.Same(t, Wildcard("a*"), Wildcard("a*"))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "123", ToString(123))
	assert.Equal(t, "this is test", ToString("this is test"))
	assert.Equal(t, "this is test", ToString([]byte("this is test")))
	assert.Equal(t, "boom", ToString(errors.New("boom")))
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "{\"name\":\"lala\"}", ToString(map[string]string{"name": "lala"}))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "c"))
}
