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

package local

import (
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/errors"
)

var (
	// ErrSnapshotReverted is returned when a remote event is older than the
	// last applied one.
	ErrSnapshotReverted = errors.Internal("watch stream reverted to a previous snapshot").WithCode("ErrSnapshotReverted")

	// ErrTargetNotAllocated is returned when releasing a target that is not
	// active.
	ErrTargetNotAllocated = errors.FailedPrecond("target is not allocated").WithCode("ErrTargetNotAllocated")
)

// WriteResult is the outcome of a local write.
type WriteResult struct {
	// BatchID is the id of the batch the write was queued as.
	BatchID int

	// Changes holds the local view of the written documents.
	Changes *document.DocumentMap
}

// QueryResult is the outcome of a query against the local view.
type QueryResult struct {
	// Documents holds the documents matching the query, ignoring its limit.
	Documents *document.DocumentMap

	// RemoteKeys holds the keys the backend last reported for the query.
	RemoteKeys *document.KeySet
}

// ViewChanges are the documents a view of a target started or stopped
// showing.
type ViewChanges struct {
	TargetID  int
	FromCache bool
	Added     *document.KeySet
	Removed   *document.KeySet
}
