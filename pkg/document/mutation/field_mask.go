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

package mutation

import (
	"sort"

	"github.com/yorkie-team/docsync/pkg/document/value"
)

// FieldMask is a sorted set of field paths.
type FieldMask struct {
	fields []value.FieldPath
}

// NewFieldMask creates a mask from the given paths, dropping duplicates.
func NewFieldMask(paths ...value.FieldPath) *FieldMask {
	sorted := append([]value.FieldPath{}, paths...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})

	var fields []value.FieldPath
	for _, p := range sorted {
		if len(fields) > 0 && fields[len(fields)-1].Equal(p) {
			continue
		}
		fields = append(fields, p)
	}
	return &FieldMask{fields: fields}
}

// Fields returns the paths of the mask.
func (m *FieldMask) Fields() []value.FieldPath {
	return m.fields
}

// Len returns the number of paths.
func (m *FieldMask) Len() int {
	return len(m.fields)
}

// Covers returns whether the mask contains path or one of its parents.
func (m *FieldMask) Covers(path value.FieldPath) bool {
	for _, f := range m.fields {
		if f.IsPrefixOf(path) {
			return true
		}
	}
	return false
}

// Union returns a mask with the paths of both masks.
func (m *FieldMask) Union(paths ...value.FieldPath) *FieldMask {
	return NewFieldMask(append(append([]value.FieldPath{}, m.fields...), paths...)...)
}
