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

import (
	"fmt"
	"regexp"
	"strings"
)

// KeyFieldName is the reserved field name that refers to the document key.
const KeyFieldName = "__name__"

var simpleSegment = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9]*$`)

// FieldPath is a dot separated path to a field inside a document.
type FieldPath struct {
	segments []string
}

// NewFieldPath creates a path from the given segments.
func NewFieldPath(segments ...string) FieldPath {
	copied := make([]string, len(segments))
	copy(copied, segments)
	return FieldPath{segments: copied}
}

// ParseFieldPath splits a dotted path such as "a.b.c". Segments are taken
// literally; use NewFieldPath for segments containing dots.
func ParseFieldPath(path string) FieldPath {
	if path == "" {
		return FieldPath{}
	}
	return FieldPath{segments: strings.Split(path, ".")}
}

// KeyFieldPath returns the path that refers to the document key.
func KeyFieldPath() FieldPath {
	return FieldPath{segments: []string{KeyFieldName}}
}

// IsKeyField returns whether the path refers to the document key.
func (p FieldPath) IsKeyField() bool {
	return len(p.segments) == 1 && p.segments[0] == KeyFieldName
}

// Len returns the number of segments.
func (p FieldPath) Len() int {
	return len(p.segments)
}

// IsEmpty returns whether the path has no segments.
func (p FieldPath) IsEmpty() bool {
	return len(p.segments) == 0
}

// Segments returns a copy of the segments.
func (p FieldPath) Segments() []string {
	return NewFieldPath(p.segments...).segments
}

// Child returns the path extended with the given segment.
func (p FieldPath) Child(segment string) FieldPath {
	next := make([]string, 0, len(p.segments)+1)
	next = append(next, p.segments...)
	return FieldPath{segments: append(next, segment)}
}

// IsPrefixOf returns whether p is a prefix of other.
func (p FieldPath) IsPrefixOf(other FieldPath) bool {
	if len(p.segments) > len(other.segments) {
		return false
	}
	for i, s := range p.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}

// Compare orders paths segment by segment.
func (p FieldPath) Compare(other FieldPath) int {
	n := min(len(p.segments), len(other.segments))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.segments[i], other.segments[i]); c != 0 {
			return c
		}
	}
	return compareInts(int64(len(p.segments)), int64(len(other.segments)))
}

// Equal returns whether both paths have the same segments.
func (p FieldPath) Equal(other FieldPath) bool {
	return p.Compare(other) == 0
}

// String returns the canonical form, quoting segments that are not simple
// identifiers with backticks.
func (p FieldPath) String() string {
	quoted := make([]string, len(p.segments))
	for i, s := range p.segments {
		if simpleSegment.MatchString(s) {
			quoted[i] = s
			continue
		}
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, "`", "\\`")
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ".")
}

// ParseCanonicalFieldPath parses the form returned by String, where
// segments that are not simple identifiers are quoted with backticks.
func ParseCanonicalFieldPath(path string) (FieldPath, error) {
	var segments []string
	var current strings.Builder
	quoted := false
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '\\' && quoted:
			if i+1 >= len(path) {
				return FieldPath{}, fmt.Errorf("trailing escape in field path %q", path)
			}
			i++
			current.WriteByte(path[i])
		case c == '`':
			quoted = !quoted
		case c == '.' && !quoted:
			if current.Len() == 0 {
				return FieldPath{}, fmt.Errorf("empty segment in field path %q", path)
			}
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if quoted {
		return FieldPath{}, fmt.Errorf("unterminated backtick in field path %q", path)
	}
	if current.Len() == 0 {
		return FieldPath{}, fmt.Errorf("empty segment in field path %q", path)
	}
	return FieldPath{segments: append(segments, current.String())}, nil
}
