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

package js

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rulego/weaver/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	config := types.NewConfig(
		types.WithLogger(types.DiscardLogger()),
		types.WithProperties("audit", map[string]interface{}{"level": "high"}),
	)
	config.RegisterUdf("double", `function double(x) { return x * 2; }`)
	config.RegisterUdf("upper", strings.ToUpper)

	engine, err := NewGojaJsEngine(config, `
		function calc(a) { return double(a) + offset; }
		function shout(s) { return upper(s); }
		function level() { return global.audit.level; }
	`, map[string]interface{}{"offset": 1})
	require.Nil(t, err)

	out, err := engine.Execute(context.Background(), "calc", 3)
	require.Nil(t, err)
	assert.Equal(t, int64(7), out)

	out, err = engine.Execute(context.Background(), "shout", "hi")
	require.Nil(t, err)
	assert.Equal(t, "HI", out)

	out, err = engine.Execute(context.Background(), "level")
	require.Nil(t, err)
	assert.Equal(t, "high", out)

	_, err = engine.Execute(context.Background(), "missing")
	assert.EqualError(t, err, "missing is not a function")
}

func TestCompileErrors(t *testing.T) {
	config := types.NewConfig(types.WithLogger(types.DiscardLogger()))
	_, err := NewGojaJsEngine(config, `function (`, nil)
	assert.NotNil(t, err)

	config.RegisterUdf("broken", `function broken( {`)
	_, err = NewGojaJsEngine(config, `function ok() { return true; }`, nil)
	assert.NotNil(t, err)
}

func TestExecutionTimeout(t *testing.T) {
	config := types.NewConfig(
		types.WithLogger(types.DiscardLogger()),
		types.WithScriptMaxExecutionTime(50*time.Millisecond),
	)
	engine, err := NewGojaJsEngine(config, `
		function spin() { while (true) {} }
		function ok() { return 1; }
	`, nil)
	require.Nil(t, err)

	_, err = engine.Execute(context.Background(), "spin")
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "execution timeout")

	// The interrupted runtime is reusable.
	out, err := engine.Execute(context.Background(), "ok")
	require.Nil(t, err)
	assert.Equal(t, int64(1), out)
}
