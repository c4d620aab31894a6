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

package remote

import (
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

// WatchChange is a message decoded from the Listen stream. It is one of
// *DocumentWatchChange, *TargetWatchChange or *ExistenceFilterWatchChange.
type WatchChange interface {
	isWatchChange()
}

// DocumentWatchChange reports a document entering, changing in or leaving
// targets.
type DocumentWatchChange struct {
	// UpdatedTargetIDs are the targets the document now matches.
	UpdatedTargetIDs []int

	// RemovedTargetIDs are the targets the document no longer matches.
	RemovedTargetIDs []int

	Key key.Key

	// NewDocument is the new state of the document. It is nil when the
	// document left targets without being deleted.
	NewDocument *document.MutableDocument
}

// TargetChangeState is the kind of a TargetWatchChange.
type TargetChangeState int

// The kinds of target changes.
const (
	// TargetNoChange carries a resume token for the targets, or for every
	// target when none is named.
	TargetNoChange TargetChangeState = iota

	// TargetAdded acknowledges a listen request.
	TargetAdded

	// TargetRemoved acknowledges an unlisten request, or reports a target
	// the backend rejected when a cause is set.
	TargetRemoved

	// TargetCurrent marks targets as in sync with the backend.
	TargetCurrent

	// TargetReset asks to drop every document of the targets; they will be
	// sent again.
	TargetReset
)

// String returns the name of the state.
func (s TargetChangeState) String() string {
	switch s {
	case TargetNoChange:
		return "no_change"
	case TargetAdded:
		return "added"
	case TargetRemoved:
		return "removed"
	case TargetCurrent:
		return "current"
	case TargetReset:
		return "reset"
	default:
		return "unknown"
	}
}

// TargetWatchChange reports a change in the state of targets.
type TargetWatchChange struct {
	State TargetChangeState

	// TargetIDs are the targets changed. An empty list means every active
	// target.
	TargetIDs []int

	ResumeToken []byte

	// Cause is set when the backend removed the targets because of an
	// error.
	Cause error
}

// BloomFilter is the encoded form of a bloom filter over the names of the
// documents that still match a target.
type BloomFilter struct {
	Bitmap    []byte
	Padding   int
	HashCount int
}

// ExistenceFilterWatchChange reports the number of documents the backend
// has for a target.
type ExistenceFilterWatchChange struct {
	TargetID int
	Count    int

	// UnchangedNames is nil when the backend sent no bloom filter.
	UnchangedNames *BloomFilter
}

func (*DocumentWatchChange) isWatchChange()        {}
func (*TargetWatchChange) isWatchChange()          {}
func (*ExistenceFilterWatchChange) isWatchChange() {}
