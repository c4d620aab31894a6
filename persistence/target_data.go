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

package persistence

import (
	"fmt"

	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
)

// InvalidSequenceNumber is the sequence number of targets the local store
// does not keep, such as limbo resolution targets.
const InvalidSequenceNumber int64 = -1

// TargetPurpose tells why a target is listened to.
type TargetPurpose int

// The target purposes.
const (
	// PurposeListen is a target of a query of the user.
	PurposeListen TargetPurpose = iota

	// PurposeExistenceFilterMismatch is a target re-listened after an
	// existence filter mismatch that could not be reconciled.
	PurposeExistenceFilterMismatch

	// PurposeExistenceFilterMismatchBloom is like
	// PurposeExistenceFilterMismatch, after a bloom filter was tried.
	PurposeExistenceFilterMismatchBloom

	// PurposeLimboResolution is a target of a single document in limbo.
	PurposeLimboResolution
)

// String returns the name of the purpose.
func (p TargetPurpose) String() string {
	switch p {
	case PurposeListen:
		return "listen"
	case PurposeExistenceFilterMismatch:
		return "existence-filter-mismatch"
	case PurposeExistenceFilterMismatchBloom:
		return "existence-filter-mismatch-bloom"
	case PurposeLimboResolution:
		return "limbo-resolution"
	}
	return fmt.Sprintf("purpose_%d", int(p))
}

// TargetData describes one watch subscription. It is immutable; With
// methods return modified copies.
type TargetData struct {
	Target         *query.Target
	TargetID       int
	Purpose        TargetPurpose
	SequenceNumber int64

	// SnapshotVersion is the version of the last snapshot of the target.
	SnapshotVersion time.SnapshotVersion

	// LastLimboFreeSnapshotVersion is the version of the last snapshot in
	// which no document of the target was in limbo.
	LastLimboFreeSnapshotVersion time.SnapshotVersion

	// ResumeToken lets the backend resume the target; it is empty before
	// the first snapshot.
	ResumeToken []byte

	// ExpectedCount is the number of documents the target matched when it
	// was resumed, or nil when unknown.
	ExpectedCount *int
}

// NewTargetData creates the data of a target that was never listened to.
func NewTargetData(target *query.Target, targetID int, purpose TargetPurpose, sequenceNumber int64) *TargetData {
	return &TargetData{
		Target:         target,
		TargetID:       targetID,
		Purpose:        purpose,
		SequenceNumber: sequenceNumber,
	}
}

func (d *TargetData) clone() *TargetData {
	copied := *d
	return &copied
}

// WithSequenceNumber returns a copy with the given sequence number.
func (d *TargetData) WithSequenceNumber(sequenceNumber int64) *TargetData {
	copied := d.clone()
	copied.SequenceNumber = sequenceNumber
	return copied
}

// WithResumeToken returns a copy resumable from token at version. The
// expected count is cleared.
func (d *TargetData) WithResumeToken(token []byte, version time.SnapshotVersion) *TargetData {
	copied := d.clone()
	copied.ResumeToken = token
	copied.SnapshotVersion = version
	copied.ExpectedCount = nil
	return copied
}

// WithExpectedCount returns a copy with the given expected count.
func (d *TargetData) WithExpectedCount(count int) *TargetData {
	copied := d.clone()
	copied.ExpectedCount = &count
	return copied
}

// WithLastLimboFreeSnapshotVersion returns a copy with the given last limbo
// free snapshot version.
func (d *TargetData) WithLastLimboFreeSnapshotVersion(version time.SnapshotVersion) *TargetData {
	copied := d.clone()
	copied.LastLimboFreeSnapshotVersion = version
	return copied
}

// WithPurpose returns a copy with the given purpose.
func (d *TargetData) WithPurpose(purpose TargetPurpose) *TargetData {
	copied := d.clone()
	copied.Purpose = purpose
	return copied
}

// String returns a human readable form of the target data.
func (d *TargetData) String() string {
	return fmt.Sprintf(
		"TargetData(%d, %s, %s, v=%s, token=%d bytes)",
		d.TargetID, d.Purpose, d.Target, d.SnapshotVersion, len(d.ResumeToken),
	)
}
