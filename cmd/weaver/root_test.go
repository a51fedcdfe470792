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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const classes = `
- name: shop.Cart
  fields:
    - {name: Items, type: int}
  constructors:
    - {params: [string]}
  methods:
    - {name: Total, returns: float64}
    - {name: Add, params: [string, int]}
`

const pointcuts = `
- name: totals
  expr: {execution: {name: Total}}
- name: writes
  expr: {set: {name: Items}}
- name: creation
  expr: {construction: {params: [string]}}
`

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMatch(t *testing.T) {
	out, err := execute(t, "match",
		"--classes", writeFile(t, "classes.yaml", classes),
		"--pointcuts", writeFile(t, "pointcuts.yaml", pointcuts))
	require.Nil(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"totals", "execution", "shop.Cart.Total()"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"writes", "set", "shop.Cart.Items"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"creation", "construction", "shop.Cart.new(string)"}, strings.Fields(lines[2]))
}

func TestMatchClassPattern(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "cart.yaml"), []byte(classes), 0o644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "order.yaml"), []byte(`
- name: shop.Order
  superclass: shop.Cart
  methods:
    - {name: Total, returns: float64}
`), 0o644))
	out, err := execute(t, "match",
		"--classes", filepath.Join(dir, "*.yaml"),
		"--pointcuts", writeFile(t, "pointcuts.yaml", `[{name: totals, expr: {execution: {name: Total}}}]`))
	require.Nil(t, err)
	assert.Equal(t, []string{"totals", "execution", "shop.Cart.Total()", "totals", "execution", "shop.Order.Total()"}, strings.Fields(out))

	_, err = execute(t, "match",
		"--classes", filepath.Join(dir, "*.json"),
		"--pointcuts", writeFile(t, "pointcuts.yaml", pointcuts))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "no class files match")
}

func TestMatchErrors(t *testing.T) {
	_, err := execute(t, "match", "--classes", writeFile(t, "classes.yaml", classes))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "pointcuts")

	_, err = execute(t, "match",
		"--classes", writeFile(t, "classes.yaml", classes),
		"--pointcuts", writeFile(t, "pointcuts.yaml", `[{name: p, expr: {pointcut: missing}}]`))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "unknown pointcut")

	_, err = execute(t, "match",
		"--classes", writeFile(t, "classes.yaml", `[{name: shop.Cart, superclass: shop.Missing}]`),
		"--pointcuts", writeFile(t, "pointcuts.yaml", pointcuts))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "shop.Missing")
}

func TestCheck(t *testing.T) {
	path := writeFile(t, "weaver.yaml", `
classes:
  - name: shop.Cart
    methods:
      - {name: Total, returns: float64}
      - {name: Add, params: [string, int]}
pointcuts:
  - name: totals
    expr: {execution: {name: Total}}
bindings:
  - name: observe
    pointcut: totals
    interceptors:
      - interceptor: metrics
      - interceptor: debug
`)
	out, err := execute(t, "check", path)
	require.Nil(t, err)
	assert.Equal(t, "shop.Cart.Total()  [metrics debug]\n", out)

	_, err = execute(t, "check")
	assert.NotNil(t, err)

	_, err = execute(t, "check", writeFile(t, "bad.yaml", `aspects: [{name: a, scope: PER_NOTHING, type: debug}]`))
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
