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

// Package document provides the documents cached by the sync engine and the
// ordered collections used to hold them.
package document

import (
	"fmt"

	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

// Type tells whether the document is known to exist.
type Type int

const (
	// TypeInvalid is a placeholder for a document about which nothing is known.
	TypeInvalid Type = iota

	// TypeFound is a document known to exist at its version.
	TypeFound

	// TypeNoDocument is a document known to be absent at its version.
	TypeNoDocument

	// TypeUnknown is a document that was updated by a write whose result is
	// not known locally, e.g. a patch acknowledged without prior content.
	TypeUnknown
)

// String returns the name of the type.
func (t Type) String() string {
	switch t {
	case TypeInvalid:
		return "invalid"
	case TypeFound:
		return "found"
	case TypeNoDocument:
		return "no_document"
	case TypeUnknown:
		return "unknown"
	}
	return fmt.Sprintf("type_%d", int(t))
}

// State tells how the document relates to the backend state.
type State int

const (
	// StateSynced means the document reflects the backend state at its version.
	StateSynced State = iota

	// StateHasLocalMutations means unacknowledged local writes were applied.
	StateHasLocalMutations

	// StateHasCommittedMutations means acknowledged writes were applied but
	// the backend has not sent the resulting document yet.
	StateHasCommittedMutations
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateHasLocalMutations:
		return "has_local_mutations"
	case StateHasCommittedMutations:
		return "has_committed_mutations"
	}
	return fmt.Sprintf("state_%d", int(s))
}

// MutableDocument is a document in the local cache. Conversions modify the
// document in place and return it for chaining; callers clone documents
// that are shared.
type MutableDocument struct {
	key      key.Key
	docType  Type
	version  time.SnapshotVersion
	readTime time.SnapshotVersion
	data     value.ObjectValue
	state    State
}

// NewInvalidDocument creates a document about which nothing is known.
func NewInvalidDocument(k key.Key) *MutableDocument {
	return &MutableDocument{
		key:  k,
		data: value.EmptyObject(),
	}
}

// NewFoundDocument creates an existing document.
func NewFoundDocument(k key.Key, version time.SnapshotVersion, data value.ObjectValue) *MutableDocument {
	return NewInvalidDocument(k).ConvertToFoundDocument(version, data)
}

// NewNoDocument creates a document known to be absent.
func NewNoDocument(k key.Key, version time.SnapshotVersion) *MutableDocument {
	return NewInvalidDocument(k).ConvertToNoDocument(version)
}

// NewUnknownDocument creates a document whose content is unknown.
func NewUnknownDocument(k key.Key, version time.SnapshotVersion) *MutableDocument {
	return NewInvalidDocument(k).ConvertToUnknownDocument(version)
}

// ConvertToFoundDocument turns the document into an existing one.
func (d *MutableDocument) ConvertToFoundDocument(version time.SnapshotVersion, data value.ObjectValue) *MutableDocument {
	d.version = version
	d.docType = TypeFound
	d.data = data
	d.state = StateSynced
	return d
}

// ConvertToNoDocument turns the document into an absent one.
func (d *MutableDocument) ConvertToNoDocument(version time.SnapshotVersion) *MutableDocument {
	d.version = version
	d.docType = TypeNoDocument
	d.data = value.EmptyObject()
	d.state = StateSynced
	return d
}

// ConvertToUnknownDocument turns the document into one with unknown content.
func (d *MutableDocument) ConvertToUnknownDocument(version time.SnapshotVersion) *MutableDocument {
	d.version = version
	d.docType = TypeUnknown
	d.data = value.EmptyObject()
	d.state = StateHasCommittedMutations
	return d
}

// SetHasCommittedMutations marks the document as updated by acknowledged writes.
func (d *MutableDocument) SetHasCommittedMutations() *MutableDocument {
	d.state = StateHasCommittedMutations
	return d
}

// SetHasLocalMutations marks the document as updated by pending writes. Its
// version is reset to the minimum, since local changes are not versioned by
// the backend.
func (d *MutableDocument) SetHasLocalMutations() *MutableDocument {
	d.state = StateHasLocalMutations
	d.version = time.MinVersion
	return d
}

// SetReadTime records when the document was read from the backend.
func (d *MutableDocument) SetReadTime(readTime time.SnapshotVersion) *MutableDocument {
	d.readTime = readTime
	return d
}

// Key returns the key of the document.
func (d *MutableDocument) Key() key.Key { return d.key }

// Type returns the type of the document.
func (d *MutableDocument) Type() Type { return d.docType }

// State returns the state of the document.
func (d *MutableDocument) State() State { return d.state }

// Version returns the version of the document.
func (d *MutableDocument) Version() time.SnapshotVersion { return d.version }

// ReadTime returns when the document was read from the backend.
func (d *MutableDocument) ReadTime() time.SnapshotVersion { return d.readTime }

// Data returns the content of the document.
func (d *MutableDocument) Data() value.ObjectValue { return d.data }

// MutableData returns the content of the document for in place updates.
func (d *MutableDocument) MutableData() *value.ObjectValue { return &d.data }

// Field returns the value at the given path.
func (d *MutableDocument) Field(path value.FieldPath) (value.Value, bool) {
	return d.data.Get(path)
}

// IsValidDocument returns whether anything is known about the document.
func (d *MutableDocument) IsValidDocument() bool { return d.docType != TypeInvalid }

// IsFoundDocument returns whether the document exists.
func (d *MutableDocument) IsFoundDocument() bool { return d.docType == TypeFound }

// IsNoDocument returns whether the document is known to be absent.
func (d *MutableDocument) IsNoDocument() bool { return d.docType == TypeNoDocument }

// IsUnknownDocument returns whether the content of the document is unknown.
func (d *MutableDocument) IsUnknownDocument() bool { return d.docType == TypeUnknown }

// HasLocalMutations returns whether pending writes were applied.
func (d *MutableDocument) HasLocalMutations() bool { return d.state == StateHasLocalMutations }

// HasCommittedMutations returns whether acknowledged writes were applied.
func (d *MutableDocument) HasCommittedMutations() bool {
	return d.state == StateHasCommittedMutations
}

// HasPendingWrites returns whether the document differs from the backend
// state because of writes.
func (d *MutableDocument) HasPendingWrites() bool {
	return d.HasLocalMutations() || d.HasCommittedMutations()
}

// Clone returns a copy of the document. Data is shared, which is safe since
// ObjectValue never modifies shared maps.
func (d *MutableDocument) Clone() *MutableDocument {
	copied := *d
	return &copied
}

// Equal returns whether both documents are identical.
func (d *MutableDocument) Equal(other *MutableDocument) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.key.Equal(other.key) &&
		d.docType == other.docType &&
		d.version == other.version &&
		d.state == other.state &&
		d.data.Equal(other.data)
}

// String returns a human readable form of the document.
func (d *MutableDocument) String() string {
	return fmt.Sprintf("Document(%s, %s, %s, %s, %s)",
		d.key, d.docType, d.version, d.state, value.CanonicalID(d.data.Fields()))
}

// CompareByKey orders documents by key.
func CompareByKey(a, b *MutableDocument) int {
	return a.key.Compare(b.key)
}
