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
	"fmt"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

// TargetChange is the change of one target within a RemoteEvent.
type TargetChange struct {
	// ResumeToken resumes the target from this event; it is empty when the
	// backend did not send one.
	ResumeToken []byte

	// Current tells whether the target is in sync with the backend as of
	// the event.
	Current bool

	AddedDocuments    *document.KeySet
	ModifiedDocuments *document.KeySet
	RemovedDocuments  *document.KeySet
}

// NewTargetChange creates an empty change.
func NewTargetChange(resumeToken []byte, current bool) *TargetChange {
	return &TargetChange{
		ResumeToken:       resumeToken,
		Current:           current,
		AddedDocuments:    document.NewKeySet(),
		ModifiedDocuments: document.NewKeySet(),
		RemovedDocuments:  document.NewKeySet(),
	}
}

// DocumentChanges returns the number of documents the change touches.
func (c *TargetChange) DocumentChanges() int {
	return c.AddedDocuments.Len() + c.ModifiedDocuments.Len() + c.RemovedDocuments.Len()
}

// RemoteEvent is a consistent snapshot of the backend state at one version,
// applied to the local cache at once.
type RemoteEvent struct {
	SnapshotVersion time.SnapshotVersion

	// TargetChanges holds the change of every target the event touches.
	TargetChanges map[int]*TargetChange

	// TargetMismatches holds the targets whose existence filter did not
	// match; they must be listened to again from scratch.
	TargetMismatches map[int]persistence.TargetPurpose

	// DocumentUpdates holds the new state of every changed document.
	DocumentUpdates *document.DocumentMap

	// ResolvedLimboDocuments holds the documents only limbo targets
	// reported.
	ResolvedLimboDocuments *document.KeySet

	// FilteredDocuments holds the documents a bloom filter excluded from a
	// target. Their updates are no-documents at the event version.
	FilteredDocuments *document.KeySet
}

// NewRemoteEvent creates an event at version without changes.
func NewRemoteEvent(version time.SnapshotVersion) *RemoteEvent {
	return &RemoteEvent{
		SnapshotVersion:        version,
		TargetChanges:          make(map[int]*TargetChange),
		TargetMismatches:       make(map[int]persistence.TargetPurpose),
		DocumentUpdates:        document.NewDocumentMap(),
		ResolvedLimboDocuments: document.NewKeySet(),
		FilteredDocuments:      document.NewKeySet(),
	}
}

// String returns a human readable form of the event.
func (e *RemoteEvent) String() string {
	return fmt.Sprintf(
		"RemoteEvent(v=%s, targets=%d, mismatches=%d, docs=%d, limbo=%d)",
		e.SnapshotVersion,
		len(e.TargetChanges),
		len(e.TargetMismatches),
		e.DocumentUpdates.Len(),
		e.ResolvedLimboDocuments.Len(),
	)
}
