/*
 * Copyright 2025 The Yorkie Authors. All rights reserved.
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

package value

import "sort"

// ObjectValue is the content of a document: a map of fields addressed by
// FieldPath. Updates never modify maps that may be shared with other
// ObjectValues; every level along the updated path is copied instead.
type ObjectValue struct {
	fields Map
}

// NewObject wraps the given map. The caller must not modify it afterwards.
func NewObject(fields Map) ObjectValue {
	if fields == nil {
		fields = Map{}
	}
	return ObjectValue{fields: fields}
}

// EmptyObject returns an object without fields.
func EmptyObject() ObjectValue {
	return ObjectValue{fields: Map{}}
}

// ObjectFrom converts a Go map into an ObjectValue.
func ObjectFrom(data map[string]any) (ObjectValue, error) {
	v, err := From(data)
	if err != nil {
		return ObjectValue{}, err
	}
	return NewObject(v.(Map)), nil
}

// Fields returns the top level map. It must be treated as read only.
func (o ObjectValue) Fields() Map {
	if o.fields == nil {
		return Map{}
	}
	return o.fields
}

// Get returns the value at the given path.
func (o ObjectValue) Get(path FieldPath) (Value, bool) {
	if path.IsEmpty() {
		return o.Fields(), true
	}
	current := o.Fields()
	for i, segment := range path.segments {
		v, ok := current[segment]
		if !ok {
			return nil, false
		}
		if i == len(path.segments)-1 {
			return v, true
		}
		next, ok := v.(Map)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// Set stores v at the given path, creating intermediate maps and replacing
// non-map values found along the way.
func (o *ObjectValue) Set(path FieldPath, v Value) {
	if path.IsEmpty() {
		if m, ok := v.(Map); ok {
			o.fields = m
		}
		return
	}
	o.fields = setIn(o.fields, path.segments, v)
}

// Delete removes the value at the given path if present.
func (o *ObjectValue) Delete(path FieldPath) {
	if path.IsEmpty() {
		return
	}
	o.fields = deleteIn(o.fields, path.segments)
}

// Equal returns whether both objects hold equal fields.
func (o ObjectValue) Equal(other ObjectValue) bool {
	return Equal(o.Fields(), other.Fields())
}

// FieldMask returns the paths of every leaf field. Empty maps count as
// leaves.
func (o ObjectValue) FieldMask() []FieldPath {
	var paths []FieldPath
	collectLeaves(o.Fields(), FieldPath{}, &paths)
	sort.Slice(paths, func(i, j int) bool {
		return paths[i].Compare(paths[j]) < 0
	})
	return paths
}

func collectLeaves(m Map, prefix FieldPath, paths *[]FieldPath) {
	for k, v := range m {
		path := prefix.Child(k)
		if child, ok := v.(Map); ok && len(child) > 0 {
			collectLeaves(child, path, paths)
			continue
		}
		*paths = append(*paths, path)
	}
}

func copyMap(m Map, extra int) Map {
	next := make(Map, len(m)+extra)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func setIn(m Map, segments []string, v Value) Map {
	next := copyMap(m, 1)
	if len(segments) == 1 {
		next[segments[0]] = v
		return next
	}
	child, _ := m[segments[0]].(Map)
	next[segments[0]] = setIn(child, segments[1:], v)
	return next
}

func deleteIn(m Map, segments []string) Map {
	if len(segments) == 1 {
		if _, ok := m[segments[0]]; !ok {
			return m
		}
		next := copyMap(m, 0)
		delete(next, segments[0])
		return next
	}
	child, ok := m[segments[0]].(Map)
	if !ok {
		return m
	}
	next := copyMap(m, 0)
	next[segments[0]] = deleteIn(child, segments[1:])
	return next
}
