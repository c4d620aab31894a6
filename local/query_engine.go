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
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
)

// QueryEngine runs queries against the local view. When the previous
// results of a query are known to be complete it only reads those results
// and the documents changed since; otherwise it scans the collection.
type QueryEngine struct {
	documents *LocalDocumentsView
	logger    logging.Logger
}

// NewQueryEngine creates a query engine reading from documents.
func NewQueryEngine(documents *LocalDocumentsView, logger logging.Logger) *QueryEngine {
	return &QueryEngine{documents: documents, logger: logger}
}

func (e *QueryEngine) setLocalDocumentsView(documents *LocalDocumentsView) {
	e.documents = documents
}

// GetDocumentsMatchingQuery returns the documents matching q, ignoring its
// limit. remoteKeys are the keys the backend last reported for the target
// of q, complete as of lastLimboFreeSnapshotVersion; a minimum version
// means the previous results cannot be used.
func (e *QueryEngine) GetDocumentsMatchingQuery(
	txn persistence.Transaction,
	q *query.Query,
	lastLimboFreeSnapshotVersion time.SnapshotVersion,
	remoteKeys *document.KeySet,
) (*document.DocumentMap, error) {
	result, err := e.queryUsingRemoteKeys(txn, q, lastLimboFreeSnapshotVersion, remoteKeys)
	if err != nil || result != nil {
		return result, err
	}

	return e.documents.GetDocumentsMatchingQuery(txn, q, time.MinVersion, mutation.UnknownBatchID)
}

// queryUsingRemoteKeys returns nil when the previous results cannot be
// reused.
func (e *QueryEngine) queryUsingRemoteKeys(
	txn persistence.Transaction,
	q *query.Query,
	lastLimboFreeSnapshotVersion time.SnapshotVersion,
	remoteKeys *document.KeySet,
) (*document.DocumentMap, error) {
	if matchesAllDocuments(q) || lastLimboFreeSnapshotVersion.IsMin() {
		return nil, nil
	}

	docs, err := e.documents.GetDocuments(txn, remoteKeys)
	if err != nil {
		return nil, err
	}

	previous := applyQuery(q, docs)
	if q.HasLimit() && needsRefill(q, previous, remoteKeys, lastLimboFreeSnapshotVersion) {
		return nil, nil
	}

	e.logger.Debugf(
		"re-using previous result from %s to execute %s",
		lastLimboFreeSnapshotVersion, q,
	)

	// Documents changed since the previous results were limbo free are
	// scanned again; overlays are always considered.
	result, err := e.documents.GetDocumentsMatchingQuery(
		txn, q, lastLimboFreeSnapshotVersion, mutation.UnknownBatchID,
	)
	if err != nil {
		return nil, err
	}
	previous.Each(func(doc *document.MutableDocument) bool {
		result.Set(doc)
		return true
	})
	return result, nil
}

// matchesAllDocuments returns whether q selects its whole collection, in
// which case a scan is as cheap as reading the previous results.
func matchesAllDocuments(q *query.Query) bool {
	return len(q.Filters) == 0 && !q.HasLimit() && q.StartAt == nil && q.EndAt == nil &&
		!q.IsDocumentQuery() && !q.IsCollectionGroupQuery()
}

// applyQuery returns the documents of docs still matching q, in query
// order.
func applyQuery(q *query.Query, docs *document.DocumentMap) *document.DocumentSet {
	results := document.NewDocumentSet(q.Comparator())
	docs.Each(func(doc *document.MutableDocument) bool {
		if q.Matches(doc) {
			results.Add(doc)
		}
		return true
	})
	return results
}

// needsRefill returns whether a limit query must be run from scratch: a
// document may have left the previous results, or the document at the
// edge of the limit may have changed so that another document sorts
// before it.
func needsRefill(
	q *query.Query,
	previous *document.DocumentSet,
	remoteKeys *document.KeySet,
	lastLimboFreeSnapshotVersion time.SnapshotVersion,
) bool {
	if previous.Len() != remoteKeys.Len() {
		return true
	}

	var edge *document.MutableDocument
	var ok bool
	if q.LimitType == query.LimitToFirst {
		edge, ok = previous.Last()
	} else {
		edge, ok = previous.First()
	}
	if !ok {
		return false
	}

	return edge.HasPendingWrites() || edge.Version().Compare(lastLimboFreeSnapshotVersion) > 0
}
