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

// Package key provides resource paths and document keys.
package key

import (
	"fmt"
	"strings"

	"github.com/yorkie-team/docsync/pkg/errors"
)

// ErrInvalidPath is returned when a path can not be used as requested.
var ErrInvalidPath = errors.InvalidArgument("invalid path").WithCode("ErrInvalidPath")

// ResourcePath is a slash separated path of segments, relative to the
// documents root of a database. It is immutable; every operation returns a
// new path.
type ResourcePath struct {
	segments []string
}

// NewPath creates a path from the given segments.
func NewPath(segments ...string) ResourcePath {
	copied := make([]string, len(segments))
	copy(copied, segments)
	return ResourcePath{segments: copied}
}

// ParsePath parses a slash separated path. Empty segments are skipped.
func ParsePath(path string) ResourcePath {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return ResourcePath{segments: segments}
}

// Len returns the number of segments.
func (p ResourcePath) Len() int {
	return len(p.segments)
}

// IsEmpty returns whether the path has no segments.
func (p ResourcePath) IsEmpty() bool {
	return len(p.segments) == 0
}

// Segment returns the i-th segment.
func (p ResourcePath) Segment(i int) string {
	return p.segments[i]
}

// Segments returns a copy of the segments.
func (p ResourcePath) Segments() []string {
	return NewPath(p.segments...).segments
}

// LastSegment returns the last segment, or "" for the empty path.
func (p ResourcePath) LastSegment() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Child returns a new path with the given segments appended.
func (p ResourcePath) Child(segments ...string) ResourcePath {
	next := make([]string, 0, len(p.segments)+len(segments))
	next = append(next, p.segments...)
	next = append(next, segments...)
	return ResourcePath{segments: next}
}

// Parent returns the path without its last segment.
func (p ResourcePath) Parent() ResourcePath {
	if len(p.segments) == 0 {
		return p
	}
	return NewPath(p.segments[:len(p.segments)-1]...)
}

// IsPrefixOf returns whether this path is a prefix of other.
func (p ResourcePath) IsPrefixOf(other ResourcePath) bool {
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

// IsImmediateParentOf returns whether other is exactly one segment below.
func (p ResourcePath) IsImmediateParentOf(other ResourcePath) bool {
	return len(p.segments)+1 == len(other.segments) && p.IsPrefixOf(other)
}

// Compare orders paths segment by segment, shorter paths first on ties.
func (p ResourcePath) Compare(other ResourcePath) int {
	n := min(len(p.segments), len(other.segments))
	for i := 0; i < n; i++ {
		if c := strings.Compare(p.segments[i], other.segments[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p.segments) < len(other.segments):
		return -1
	case len(p.segments) > len(other.segments):
		return 1
	}
	return 0
}

// Equal returns whether both paths have the same segments.
func (p ResourcePath) Equal(other ResourcePath) bool {
	return p.Compare(other) == 0
}

// String returns the slash separated form.
func (p ResourcePath) String() string {
	return strings.Join(p.segments, "/")
}

// Key uniquely identifies a document. Its path always has an even number of
// segments: alternating collection ids and document ids.
type Key struct {
	path ResourcePath
}

// New creates a key from a path, failing if the path does not point to a
// document.
func New(path ResourcePath) (Key, error) {
	if path.Len() == 0 || path.Len()%2 != 0 {
		return Key{}, fmt.Errorf("%q is not a document path: %w", path.String(), ErrInvalidPath)
	}
	return Key{path: path}, nil
}

// Parse creates a key from a slash separated path.
func Parse(path string) (Key, error) {
	return New(ParsePath(path))
}

// MustParse is like Parse but panics on an invalid path. It is intended for
// tests and constants.
func MustParse(path string) Key {
	k, err := Parse(path)
	if err != nil {
		panic(err)
	}
	return k
}

// Path returns the path of the document.
func (k Key) Path() ResourcePath {
	return k.path
}

// CollectionPath returns the path of the collection holding the document.
func (k Key) CollectionPath() ResourcePath {
	return k.path.Parent()
}

// CollectionGroup returns the id of the collection holding the document.
func (k Key) CollectionGroup() string {
	return k.path.Parent().LastSegment()
}

// ID returns the last segment of the document path.
func (k Key) ID() string {
	return k.path.LastSegment()
}

// IsZero returns whether the key was never initialised.
func (k Key) IsZero() bool {
	return k.path.IsEmpty()
}

// HasCollectionID returns whether the document lives in a collection with
// the given id.
func (k Key) HasCollectionID(collectionID string) bool {
	return k.path.Len() >= 2 && k.path.Segment(k.path.Len()-2) == collectionID
}

// Compare orders keys by path.
func (k Key) Compare(other Key) int {
	return k.path.Compare(other.path)
}

// Less reports whether k sorts before other.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// Equal returns whether both keys point to the same document.
func (k Key) Equal(other Key) bool {
	return k.Compare(other) == 0
}

// String returns the slash separated path of the document.
func (k Key) String() string {
	return k.path.String()
}
