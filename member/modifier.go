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

package member

import (
	"fmt"
	"strings"
)

// Modifier is a bit set of member modifiers.
type Modifier uint32

const (
	Public Modifier = 1 << iota
	Private
	Protected
	Static
	Final
	Abstract
	Synchronized
	Transient
	Volatile
	Native
)

var modifierNames = []struct {
	m    Modifier
	name string
}{
	{Public, "public"},
	{Private, "private"},
	{Protected, "protected"},
	{Static, "static"},
	{Final, "final"},
	{Abstract, "abstract"},
	{Synchronized, "synchronized"},
	{Transient, "transient"},
	{Volatile, "volatile"},
	{Native, "native"},
}

// Has reports whether every bit of x is set in m.
func (m Modifier) Has(x Modifier) bool {
	return m&x == x
}

func (m Modifier) String() string {
	var names []string
	for _, item := range modifierNames {
		if m&item.m != 0 {
			names = append(names, item.name)
		}
	}
	return strings.Join(names, " ")
}

// Names returns the modifier names in declaration order.
func (m Modifier) Names() []string {
	var names []string
	for _, item := range modifierNames {
		if m&item.m != 0 {
			names = append(names, item.name)
		}
	}
	return names
}

// ParseModifier parses a single modifier name.
func ParseModifier(s string) (Modifier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, item := range modifierNames {
		if item.name == s {
			return item.m, nil
		}
	}
	return 0, fmt.Errorf("unknown modifier %q", s)
}

// ParseModifiers folds a list of modifier names into one set.
func ParseModifiers(names []string) (Modifier, error) {
	var m Modifier
	for _, name := range names {
		v, err := ParseModifier(name)
		if err != nil {
			return 0, err
		}
		m |= v
	}
	return m, nil
}
