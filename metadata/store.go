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

// Package metadata holds the tag/attribute registries attached to advised members.
//
// A Store maps a structural member key (see member.MethodKey and friends) to a
// nested tag -> attribute -> value mapping. Keys are plain strings so a member
// described symbolically before it is loaded and the same member obtained through
// reflection land on the same entry.
//
// Every entry remembers whether it was added exactly (the member itself was
// targeted) or inexactly (it was reached through a supertype or another
// approximate match). A later exact add supersedes an inexact one, and an
// inexact add never overwrites an exact value.
package metadata

import (
	"sort"
	"sync"
)

// TagAttribute is the attribute name used when a tag is recorded without attributes.
const TagAttribute = ""

type entryKey struct {
	member    string
	tag       string
	attribute string
}

// Store is a per-member tag -> attribute -> value registry.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]map[string]map[string]interface{}
	inexact map[entryKey]struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]map[string]map[string]interface{}),
		inexact: make(map[entryKey]struct{}),
	}
}

// Add records value for (member, tag, attribute).
// exact=false records the triple in the inexact index; exact=true clears it.
// An inexact add for a triple that already holds an exact value is ignored.
func (s *Store) Add(member, tag, attribute string, value interface{}, exact bool) {
	key := entryKey{member: member, tag: tag, attribute: attribute}
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, ok := s.entries[member]
	if !ok {
		tags = make(map[string]map[string]interface{})
		s.entries[member] = tags
	}
	attrs, ok := tags[tag]
	if !ok {
		attrs = make(map[string]interface{})
		tags[tag] = attrs
	}
	if exact {
		attrs[attribute] = value
		delete(s.inexact, key)
		return
	}
	if _, exists := attrs[attribute]; exists {
		if _, wasInexact := s.inexact[key]; !wasInexact {
			return
		}
	}
	attrs[attribute] = value
	s.inexact[key] = struct{}{}
}

// AddTag records the presence of tag on member without any attribute.
func (s *Store) AddTag(member, tag string, exact bool) {
	s.Add(member, tag, TagAttribute, nil, exact)
}

// Resolve returns the value stored for (member, tag, attribute).
func (s *Store) Resolve(member, tag, attribute string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.entries[member][tag]
	if !ok {
		return nil, false
	}
	v, ok := attrs[attribute]
	return v, ok
}

// HasTag reports whether member carries tag, exactly or not.
func (s *Store) HasTag(member, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[member][tag]
	return ok
}

// HasExactTag reports whether member carries tag through at least one exact entry.
func (s *Store) HasExactTag(member, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.entries[member][tag]
	if !ok {
		return false
	}
	for attr := range attrs {
		if _, inexact := s.inexact[entryKey{member: member, tag: tag, attribute: attr}]; !inexact {
			return true
		}
	}
	return false
}

// WasMatchedInexactly reports whether the value for (member, tag, attribute)
// currently comes from an approximate match.
func (s *Store) WasMatchedInexactly(member, tag, attribute string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inexact[entryKey{member: member, tag: tag, attribute: attribute}]
	return ok
}

// Tags returns the sorted tags recorded for member.
func (s *Store) Tags(member string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.entries[member]))
	for tag := range s.entries[member] {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Members returns the sorted member keys that have at least one tag.
func (s *Store) Members() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := make([]string, 0, len(s.entries))
	for m := range s.entries {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Remove drops tag and all of its attributes from member.
func (s *Store) Remove(member, tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, ok := s.entries[member]
	if !ok {
		return
	}
	for attr := range tags[tag] {
		delete(s.inexact, entryKey{member: member, tag: tag, attribute: attr})
	}
	delete(tags, tag)
	if len(tags) == 0 {
		delete(s.entries, member)
	}
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]map[string]map[string]interface{})
	s.inexact = make(map[entryKey]struct{})
}
