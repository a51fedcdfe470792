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

package metadata

import (
	"sort"
	"sync"
)

// SimpleMetaData is a tag -> attribute -> value bag that is not keyed by member.
// It backs invocation-attached metadata, per-instance metadata and the
// class-level default metadata of an advisor.
type SimpleMetaData struct {
	mu   sync.RWMutex
	data map[string]map[string]interface{}
}

// NewSimpleMetaData creates an empty SimpleMetaData.
func NewSimpleMetaData() *SimpleMetaData {
	return &SimpleMetaData{data: make(map[string]map[string]interface{})}
}

// AddMetaData sets attribute of tag to value.
func (m *SimpleMetaData) AddMetaData(tag, attribute string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.data[tag]
	if !ok {
		attrs = make(map[string]interface{})
		m.data[tag] = attrs
	}
	attrs[attribute] = value
}

// GetMetaData returns the value of attribute under tag.
func (m *SimpleMetaData) GetMetaData(tag, attribute string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[tag][attribute]
	return v, ok
}

// HasTag reports whether tag has been recorded.
func (m *SimpleMetaData) HasTag(tag string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[tag]
	return ok
}

// RemoveMetaData removes attribute from tag, and tag itself once it is empty.
func (m *SimpleMetaData) RemoveMetaData(tag, attribute string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.data[tag]
	if !ok {
		return
	}
	delete(attrs, attribute)
	if len(attrs) == 0 {
		delete(m.data, tag)
	}
}

// Tags returns the recorded tags in sorted order.
func (m *SimpleMetaData) Tags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tags := make([]string, 0, len(m.data))
	for tag := range m.data {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Copy returns an independent copy. Values are copied by reference.
func (m *SimpleMetaData) Copy() *SimpleMetaData {
	if m == nil {
		return NewSimpleMetaData()
	}
	cp := NewSimpleMetaData()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for tag, attrs := range m.data {
		values := make(map[string]interface{}, len(attrs))
		for k, v := range attrs {
			values[k] = v
		}
		cp.data[tag] = values
	}
	return cp
}

// Merge copies every entry of other into m, overwriting existing attributes.
func (m *SimpleMetaData) Merge(other *SimpleMetaData) {
	if other == nil || other == m {
		return
	}
	snapshot := other.Copy()
	m.mu.Lock()
	defer m.mu.Unlock()
	for tag, attrs := range snapshot.data {
		dst, ok := m.data[tag]
		if !ok {
			m.data[tag] = attrs
			continue
		}
		for k, v := range attrs {
			dst[k] = v
		}
	}
}
