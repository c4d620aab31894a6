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

package memory

import (
	"fmt"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
)

type remoteDocumentCache struct {
	p *Persistence
}

// Add implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) Add(
	txn persistence.Transaction,
	doc *document.MutableDocument,
	readTime time.SnapshotVersion,
) error {
	if readTime.IsMin() {
		return fmt.Errorf("add %s: read time must be set", doc.Key())
	}

	record := c.p.serializer.ToRemoteDocumentRecord(doc.Clone().SetReadTime(readTime))
	if err := unwrap(txn).Insert(tblRemoteDocuments, record); err != nil {
		return fmt.Errorf("insert remote document %s: %w", doc.Key(), err)
	}
	return nil
}

// Remove implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) Remove(txn persistence.Transaction, k key.Key) error {
	if _, err := unwrap(txn).DeleteAll(tblRemoteDocuments, "id", k.String()); err != nil {
		return fmt.Errorf("delete remote document %s: %w", k, err)
	}
	return nil
}

// Get implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) Get(txn persistence.Transaction, k key.Key) (*document.MutableDocument, error) {
	raw, err := unwrap(txn).First(tblRemoteDocuments, "id", k.String())
	if err != nil {
		return nil, fmt.Errorf("find remote document %s: %w", k, err)
	}
	if raw == nil {
		return document.NewInvalidDocument(k), nil
	}
	return c.p.serializer.FromRemoteDocumentRecord(raw.(*persistence.RemoteDocumentRecord))
}

// GetAll implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) GetAll(
	txn persistence.Transaction,
	keys *document.KeySet,
) (*document.DocumentMap, error) {
	docs := document.NewDocumentMap()
	var err error
	keys.Each(func(k key.Key) bool {
		var doc *document.MutableDocument
		if doc, err = c.Get(txn, k); err != nil {
			return false
		}
		docs.Set(doc)
		return true
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocumentsMatchingQuery implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) GetDocumentsMatchingQuery(
	txn persistence.Transaction,
	q *query.Query,
	sinceReadTime time.SnapshotVersion,
	mutatedKeys *document.KeySet,
) (*document.DocumentMap, error) {
	docs := document.NewDocumentMap()
	if q.IsDocumentQuery() {
		k, err := key.New(q.Path)
		if err != nil {
			return nil, err
		}
		doc, err := c.Get(txn, k)
		if err != nil {
			return nil, err
		}
		if doc.IsFoundDocument() && (q.Matches(doc) || mutatedKeys.Has(k)) {
			docs.Set(doc)
		}
		return docs, nil
	}

	index, arg := "collection_path", q.Path.String()
	if q.IsCollectionGroupQuery() {
		index, arg = "collection_group", q.CollectionGroup
	}

	iter, err := unwrap(txn).Get(tblRemoteDocuments, index, arg)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", q.Path, err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc, err := c.p.serializer.FromRemoteDocumentRecord(raw.(*persistence.RemoteDocumentRecord))
		if err != nil {
			return nil, err
		}
		if !doc.IsFoundDocument() || !q.MatchesCollection(doc.Key()) {
			continue
		}
		if doc.ReadTime().Compare(sinceReadTime) <= 0 {
			continue
		}
		if q.Matches(doc) || mutatedKeys.Has(doc.Key()) {
			docs.Set(doc)
		}
	}
	return docs, nil
}

// Each implements persistence.RemoteDocumentCache.
func (c *remoteDocumentCache) Each(txn persistence.Transaction, fn func(doc *document.MutableDocument) bool) error {
	iter, err := unwrap(txn).Get(tblRemoteDocuments, "id")
	if err != nil {
		return fmt.Errorf("scan remote documents: %w", err)
	}

	docs := document.NewDocumentMap()
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		doc, err := c.p.serializer.FromRemoteDocumentRecord(raw.(*persistence.RemoteDocumentRecord))
		if err != nil {
			return err
		}
		docs.Set(doc)
	}
	docs.Each(fn)
	return nil
}
