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

// Package persistence provides the storage interfaces of the engine: the
// remote document cache, the mutation queue, the document overlay cache,
// the target cache and the named query cache, all accessed inside
// all-or-nothing transactions.
package persistence

import (
	"context"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
)

var (
	// ErrStorageUnavailable is returned when the storage cannot serve a
	// transaction right now. Operations failing with it are retried.
	ErrStorageUnavailable = errors.Unavailable("storage unavailable").WithCode("ErrStorageUnavailable")

	// ErrLeaseLost is returned when the client lost the primary lease of
	// the storage. It is retried like ErrStorageUnavailable.
	ErrLeaseLost = errors.Unavailable("primary lease lost").WithCode("ErrLeaseLost")

	// ErrNotStarted is returned when a transaction runs before Start.
	ErrNotStarted = errors.FailedPrecond("persistence is not started").WithCode("ErrNotStarted")

	// ErrBatchNotFound is returned when a mutation batch does not exist.
	ErrBatchNotFound = errors.NotFound("mutation batch not found").WithCode("ErrBatchNotFound")

	// ErrTargetNotFound is returned when a target does not exist.
	ErrTargetNotFound = errors.NotFound("target not found").WithCode("ErrTargetNotFound")
)

// TransactionMode tells what a transaction may do.
type TransactionMode int

// The transaction modes.
const (
	ReadOnly TransactionMode = iota
	ReadWrite
	ReadWritePrimary
)

// String returns the name of the mode.
func (m TransactionMode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case ReadWritePrimary:
		return "readwrite-primary"
	}
	return "unknown"
}

// Transaction is the handle caches are accessed with. Implementations
// define their own concrete type.
type Transaction interface {
	// Context returns the context the transaction runs with.
	Context() context.Context

	// Mode returns the mode of the transaction.
	Mode() TransactionMode

	// AddOnCommittedListener registers fn to run after a successful commit.
	AddOnCommittedListener(fn func())
}

// Persistence is a storage backend of the engine.
type Persistence interface {
	// Start opens the storage.
	Start(ctx context.Context) error

	// Shutdown releases the storage.
	Shutdown(ctx context.Context) error

	// Started returns whether Start succeeded and Shutdown was not called.
	Started() bool

	// MutationQueue returns the pending writes of the given user.
	MutationQueue(user credentials.User) MutationQueue

	// DocumentOverlayCache returns the overlays of the given user.
	DocumentOverlayCache(user credentials.User) DocumentOverlayCache

	// RemoteDocumentCache returns the last known backend state of documents.
	RemoteDocumentCache() RemoteDocumentCache

	// TargetCache returns the targets and the keys matching them.
	TargetCache() TargetCache

	// NamedQueryCache returns the named queries.
	NamedQueryCache() NamedQueryCache

	// ReferenceDelegate returns the garbage collector of the storage.
	ReferenceDelegate() ReferenceDelegate

	// MutationQueuesContainKey returns whether a pending write of any user
	// targets k.
	MutationQueuesContainKey(txn Transaction, k key.Key) (bool, error)

	// RunTransaction runs fn in a transaction named action. Changes made
	// by fn are committed only if it returns nil.
	RunTransaction(ctx context.Context, action string, mode TransactionMode, fn func(txn Transaction) error) error
}

// RemoteDocumentCache holds the last known backend state of documents.
type RemoteDocumentCache interface {
	// Add stores doc, read from the backend at readTime.
	Add(txn Transaction, doc *document.MutableDocument, readTime time.SnapshotVersion) error

	// Remove removes the document with key k.
	Remove(txn Transaction, k key.Key) error

	// Get returns the document with key k, or an invalid document.
	Get(txn Transaction, k key.Key) (*document.MutableDocument, error)

	// GetAll returns the documents with the given keys, using invalid
	// documents for those not cached.
	GetAll(txn Transaction, keys *document.KeySet) (*document.DocumentMap, error)

	// GetDocumentsMatchingQuery scans the collection of q for documents read
	// after sinceReadTime that match q, along with the documents of
	// mutatedKeys in that collection whether they match or not.
	GetDocumentsMatchingQuery(
		txn Transaction,
		q *query.Query,
		sinceReadTime time.SnapshotVersion,
		mutatedKeys *document.KeySet,
	) (*document.DocumentMap, error)

	// Each calls fn for every cached document in key order until it returns
	// false.
	Each(txn Transaction, fn func(doc *document.MutableDocument) bool) error
}

// MutationQueue holds the pending writes of one user, in batch id order.
type MutationQueue interface {
	// CheckEmpty returns whether the queue has no batches.
	CheckEmpty(txn Transaction) (bool, error)

	// AddMutationBatch creates a batch with the next batch id.
	AddMutationBatch(
		txn Transaction,
		localWriteTime time.Timestamp,
		mutations []mutation.Mutation,
	) (*mutation.Batch, error)

	// LookupMutationBatch returns the batch with the given id, or nil.
	LookupMutationBatch(txn Transaction, batchID int) (*mutation.Batch, error)

	// NextMutationBatchAfterBatchID returns the first batch with an id
	// greater than batchID, or nil.
	NextMutationBatchAfterBatchID(txn Transaction, batchID int) (*mutation.Batch, error)

	// HighestUnacknowledgedBatchID returns the id of the last batch, or
	// mutation.UnknownBatchID.
	HighestUnacknowledgedBatchID(txn Transaction) (int, error)

	// AllMutationBatches returns every batch.
	AllMutationBatches(txn Transaction) ([]*mutation.Batch, error)

	// AllMutationBatchesAffectingDocumentKeys returns the batches writing
	// any of the given keys.
	AllMutationBatchesAffectingDocumentKeys(txn Transaction, keys *document.KeySet) ([]*mutation.Batch, error)

	// RemoveMutationBatch removes the given batch, which must be the first.
	RemoveMutationBatch(txn Transaction, batch *mutation.Batch) error

	// AcknowledgeBatch records the stream token returned with the
	// acknowledgement of batch.
	AcknowledgeBatch(txn Transaction, batch *mutation.Batch, streamToken []byte) error

	// LastStreamToken returns the token of the last write stream response.
	LastStreamToken(txn Transaction) ([]byte, error)

	// SetLastStreamToken records the token of a write stream response.
	SetLastStreamToken(txn Transaction, token []byte) error
}

// DocumentOverlayCache holds the overlays of one user.
type DocumentOverlayCache interface {
	// GetOverlay returns the overlay of the document with key k, or nil.
	GetOverlay(txn Transaction, k key.Key) (*mutation.Overlay, error)

	// GetOverlays returns the overlays of the given keys that exist, keyed
	// by document key.
	GetOverlays(txn Transaction, keys *document.KeySet) (map[string]*mutation.Overlay, error)

	// SaveOverlays stores the given mutations, keyed by document key, as
	// overlays reflecting batches up to largestBatchID.
	SaveOverlays(txn Transaction, largestBatchID int, overlays map[string]mutation.Mutation) error

	// RemoveOverlaysForBatchID removes the overlays of the given keys that
	// were last written by batchID.
	RemoveOverlaysForBatchID(txn Transaction, keys *document.KeySet, batchID int) error

	// GetOverlaysForCollection returns the overlays of documents directly in
	// collection whose largest batch id is greater than sinceBatchID.
	GetOverlaysForCollection(
		txn Transaction,
		collection key.ResourcePath,
		sinceBatchID int,
	) (map[string]*mutation.Overlay, error)

	// GetOverlaysForCollectionGroup is like GetOverlaysForCollection for
	// every collection with the given id.
	GetOverlaysForCollectionGroup(
		txn Transaction,
		collectionGroup string,
		sinceBatchID int,
	) (map[string]*mutation.Overlay, error)

	// Each calls fn for every overlay in key order until it returns false.
	Each(txn Transaction, fn func(overlay *mutation.Overlay) bool) error
}

// TargetCache holds the targets listened to and the keys matching them.
type TargetCache interface {
	// AllocateTargetID returns an unused target id.
	AllocateTargetID(txn Transaction) (int, error)

	// NextSequenceNumber returns the next listen sequence number.
	NextSequenceNumber(txn Transaction) (int64, error)

	// LastRemoteSnapshotVersion returns the version of the last applied
	// remote event.
	LastRemoteSnapshotVersion(txn Transaction) (time.SnapshotVersion, error)

	// SetLastRemoteSnapshotVersion records the version of the last applied
	// remote event.
	SetLastRemoteSnapshotVersion(txn Transaction, version time.SnapshotVersion) error

	// AddTargetData stores a new target.
	AddTargetData(txn Transaction, data *TargetData) error

	// UpdateTargetData replaces a stored target.
	UpdateTargetData(txn Transaction, data *TargetData) error

	// RemoveTargetData removes a target and its matching keys, which lose
	// their reference to it.
	RemoveTargetData(txn Transaction, data *TargetData) error

	// GetTargetData returns the stored data of target, or nil.
	GetTargetData(txn Transaction, target *query.Target) (*TargetData, error)

	// GetTargetDataByID returns the stored data of the target with the
	// given id, or nil.
	GetTargetDataByID(txn Transaction, targetID int) (*TargetData, error)

	// TargetCount returns the number of stored targets.
	TargetCount(txn Transaction) (int, error)

	// EachTarget calls fn for every target in id order until it returns
	// false.
	EachTarget(txn Transaction, fn func(data *TargetData) bool) error

	// AddMatchingKeys records that the given keys match the target.
	AddMatchingKeys(txn Transaction, keys *document.KeySet, targetID int) error

	// RemoveMatchingKeys records that the given keys no longer match the
	// target.
	RemoveMatchingKeys(txn Transaction, keys *document.KeySet, targetID int) error

	// RemoveMatchingKeysForTargetID removes every key of the target. Like
	// RemoveMatchingKeys, the keys lose their reference to it.
	RemoveMatchingKeysForTargetID(txn Transaction, targetID int) error

	// GetMatchingKeysForTargetID returns the keys matching the target.
	GetMatchingKeysForTargetID(txn Transaction, targetID int) (*document.KeySet, error)

	// ContainsKey returns whether any target matches k.
	ContainsKey(txn Transaction, k key.Key) (bool, error)
}

// NamedQueryCache holds queries saved under a name.
type NamedQueryCache interface {
	// GetNamedQuery returns the query with the given name, or nil.
	GetNamedQuery(txn Transaction, name string) (*NamedQuery, error)

	// SaveNamedQuery stores the query under its name.
	SaveNamedQuery(txn Transaction, q *NamedQuery) error
}

// NamedQuery is a query saved under a name along with the time its results
// were read.
type NamedQuery struct {
	Name     string
	Query    *query.Query
	ReadTime time.SnapshotVersion
}
