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

// Package mutation provides writes to documents, their batching and the
// overlays that fold queued batches into one effective write per document.
package mutation

import (
	"fmt"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

// Mutation is a write to a single document. The set of implementations is
// closed: Set, Patch, Delete and Verify.
type Mutation interface {
	Key() key.Key
	Precondition() Precondition
	Transforms() []FieldTransform
	isMutation()
}

// Set replaces the whole content of a document.
type Set struct {
	key          key.Key
	data         value.ObjectValue
	precondition Precondition
	transforms   []FieldTransform
}

// Patch updates the fields in its mask, deleting masked fields absent from
// its data.
type Patch struct {
	key          key.Key
	data         value.ObjectValue
	mask         *FieldMask
	precondition Precondition
	transforms   []FieldTransform
}

// Delete removes a document.
type Delete struct {
	key          key.Key
	precondition Precondition
}

// Verify only checks its precondition. It never changes a document.
type Verify struct {
	key          key.Key
	precondition Precondition
}

// NewSet creates a Set mutation.
func NewSet(k key.Key, data value.ObjectValue, precondition Precondition, transforms ...FieldTransform) *Set {
	return &Set{key: k, data: data, precondition: precondition, transforms: transforms}
}

// NewPatch creates a Patch mutation.
func NewPatch(
	k key.Key,
	data value.ObjectValue,
	mask *FieldMask,
	precondition Precondition,
	transforms ...FieldTransform,
) *Patch {
	return &Patch{key: k, data: data, mask: mask, precondition: precondition, transforms: transforms}
}

// NewDelete creates a Delete mutation.
func NewDelete(k key.Key, precondition Precondition) *Delete {
	return &Delete{key: k, precondition: precondition}
}

// NewVerify creates a Verify mutation.
func NewVerify(k key.Key, precondition Precondition) *Verify {
	return &Verify{key: k, precondition: precondition}
}

func (m *Set) Key() key.Key    { return m.key }
func (m *Patch) Key() key.Key  { return m.key }
func (m *Delete) Key() key.Key { return m.key }
func (m *Verify) Key() key.Key { return m.key }

func (m *Set) Precondition() Precondition    { return m.precondition }
func (m *Patch) Precondition() Precondition  { return m.precondition }
func (m *Delete) Precondition() Precondition { return m.precondition }
func (m *Verify) Precondition() Precondition { return m.precondition }

func (m *Set) Transforms() []FieldTransform    { return m.transforms }
func (m *Patch) Transforms() []FieldTransform  { return m.transforms }
func (m *Delete) Transforms() []FieldTransform { return nil }
func (m *Verify) Transforms() []FieldTransform { return nil }

// KindOf returns the name of the kind of m: "set", "patch", "delete" or
// "verify".
func KindOf(m Mutation) string {
	switch m.(type) {
	case *Set:
		return "set"
	case *Patch:
		return "patch"
	case *Delete:
		return "delete"
	case *Verify:
		return "verify"
	default:
		return fmt.Sprintf("%T", m)
	}
}

func (*Set) isMutation()    {}
func (*Patch) isMutation()  {}
func (*Delete) isMutation() {}
func (*Verify) isMutation() {}

// Data returns the new content of the document.
func (m *Set) Data() value.ObjectValue { return m.data }

// Data returns the values of the patched fields.
func (m *Patch) Data() value.ObjectValue { return m.data }

// Mask returns the patched fields.
func (m *Patch) Mask() *FieldMask { return m.mask }

// Result is the outcome of one mutation as reported by the backend.
type Result struct {
	// Version is the version of the document after the write.
	Version time.SnapshotVersion

	// TransformResults holds one value per field transform of the mutation.
	TransformResults []value.Value
}

// ApplyToLocalView applies the mutation to doc as a pending write, using
// localWriteTime for server timestamps. previousMask holds the fields
// changed by prior mutations; nil means the whole document was replaced.
// It returns the fields changed so far, with the same convention.
func ApplyToLocalView(
	m Mutation,
	doc *document.MutableDocument,
	previousMask *FieldMask,
	localWriteTime time.Timestamp,
) *FieldMask {
	if !m.Precondition().IsValidFor(doc) {
		return previousMask
	}

	switch mut := m.(type) {
	case *Set:
		data := mut.data
		applyLocalTransforms(&data, doc, mut.transforms, localWriteTime)
		doc.ConvertToFoundDocument(doc.Version(), data).SetHasLocalMutations()
		return nil
	case *Patch:
		data := doc.Data()
		transformed := transformedFields(doc, mut.transforms, localWriteTime)
		applyPatch(&data, mut)
		for _, f := range transformed {
			data.Set(f.path, f.value)
		}
		doc.ConvertToFoundDocument(doc.Version(), data).SetHasLocalMutations()
		if previousMask == nil {
			return nil
		}
		mask := previousMask.Union(mut.mask.Fields()...)
		for _, t := range mut.transforms {
			mask = mask.Union(t.Field)
		}
		return mask
	case *Delete:
		doc.ConvertToNoDocument(doc.Version()).SetHasLocalMutations()
		return nil
	case *Verify:
		return previousMask
	}
	panic(fmt.Sprintf("unknown mutation %T", m))
}

// ApplyToRemoteDocument applies the acknowledged mutation to doc, the last
// known backend state of the document. Set and Delete fully determine the
// result, which is therefore synced at the result version; Patch leaves the
// document with committed mutations until the backend sends it.
func ApplyToRemoteDocument(m Mutation, doc *document.MutableDocument, result Result) {
	switch mut := m.(type) {
	case *Set:
		data := mut.data
		applyRemoteTransforms(&data, doc, mut.transforms, result.TransformResults)
		doc.ConvertToFoundDocument(result.Version, data)
	case *Patch:
		if !mut.precondition.IsValidFor(doc) {
			doc.ConvertToUnknownDocument(result.Version)
			return
		}
		data := doc.Data()
		previous := doc.Clone()
		applyPatch(&data, mut)
		doc.ConvertToFoundDocument(result.Version, data)
		applyRemoteTransforms(doc.MutableData(), previous, mut.transforms, result.TransformResults)
		doc.SetHasCommittedMutations()
	case *Delete:
		doc.ConvertToNoDocument(result.Version)
	case *Verify:
	default:
		panic(fmt.Sprintf("unknown mutation %T", m))
	}
}

// CalculateOverlayMutation returns the mutation that turns the remote
// document into doc, given the fields changed locally. It returns nil when
// doc has no local mutations.
func CalculateOverlayMutation(doc *document.MutableDocument, mask *FieldMask) Mutation {
	if !doc.HasLocalMutations() || (mask != nil && mask.Len() == 0) {
		return nil
	}

	if mask == nil {
		if doc.IsNoDocument() {
			return NewDelete(doc.Key(), NoPrecondition)
		}
		return NewSet(doc.Key(), doc.Data(), NoPrecondition)
	}

	data := doc.Data()
	patch := value.EmptyObject()
	var fields []value.FieldPath
	seen := NewFieldMask()
	for _, path := range mask.Fields() {
		if seen.Covers(path) {
			continue
		}
		v, ok := data.Get(path)
		if !ok && path.Len() > 1 {
			path = parentOf(path)
			v, ok = data.Get(path)
		}
		if ok {
			patch.Set(path, v)
		} else {
			patch.Delete(path)
		}
		fields = append(fields, path)
		seen = seen.Union(path)
	}
	return NewPatch(doc.Key(), patch, NewFieldMask(fields...), NoPrecondition)
}

func parentOf(path value.FieldPath) value.FieldPath {
	segments := path.Segments()
	return value.NewFieldPath(segments[:len(segments)-1]...)
}

type fieldValue struct {
	path  value.FieldPath
	value value.Value
}

func applyPatch(data *value.ObjectValue, m *Patch) {
	for _, path := range m.mask.Fields() {
		if v, ok := m.data.Get(path); ok {
			data.Set(path, v)
		} else {
			data.Delete(path)
		}
	}
}

func transformedFields(
	doc *document.MutableDocument,
	transforms []FieldTransform,
	localWriteTime time.Timestamp,
) []fieldValue {
	results := make([]fieldValue, 0, len(transforms))
	for _, t := range transforms {
		previous, _ := doc.Field(t.Field)
		results = append(results, fieldValue{
			path:  t.Field,
			value: applyTransformToLocalView(t.Operation, previous, localWriteTime),
		})
	}
	return results
}

func applyLocalTransforms(
	data *value.ObjectValue,
	doc *document.MutableDocument,
	transforms []FieldTransform,
	localWriteTime time.Timestamp,
) {
	for _, f := range transformedFields(doc, transforms, localWriteTime) {
		data.Set(f.path, f.value)
	}
}

func applyRemoteTransforms(
	data *value.ObjectValue,
	doc *document.MutableDocument,
	transforms []FieldTransform,
	results []value.Value,
) {
	for i, t := range transforms {
		var result value.Value
		if i < len(results) {
			result = results[i]
		}
		previous, _ := doc.Field(t.Field)
		data.Set(t.Field, applyTransformToRemoteDocument(t.Operation, previous, result))
	}
}
