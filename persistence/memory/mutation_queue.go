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
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

type mutationQueue struct {
	p      *Persistence
	userID string
}

func (q *mutationQueue) metadata(txn persistence.Transaction) (*persistence.MutationQueueRecord, error) {
	raw, err := unwrap(txn).First(tblMutationQueues, "id", q.userID)
	if err != nil {
		return nil, fmt.Errorf("find mutation queue of %s: %w", q.userID, err)
	}
	if raw == nil {
		return &persistence.MutationQueueRecord{
			ID:                      q.userID,
			NextBatchID:             1,
			LastAcknowledgedBatchID: mutation.UnknownBatchID,
		}, nil
	}

	copied := *raw.(*persistence.MutationQueueRecord)
	return &copied, nil
}

func (q *mutationQueue) saveMetadata(txn persistence.Transaction, record *persistence.MutationQueueRecord) error {
	if err := unwrap(txn).Insert(tblMutationQueues, record); err != nil {
		return fmt.Errorf("update mutation queue of %s: %w", q.userID, err)
	}
	return nil
}

// CheckEmpty implements persistence.MutationQueue.
func (q *mutationQueue) CheckEmpty(txn persistence.Transaction) (bool, error) {
	first, err := q.NextMutationBatchAfterBatchID(txn, mutation.UnknownBatchID)
	if err != nil {
		return false, err
	}
	return first == nil, nil
}

// AddMutationBatch implements persistence.MutationQueue.
func (q *mutationQueue) AddMutationBatch(
	txn persistence.Transaction,
	localWriteTime time.Timestamp,
	mutations []mutation.Mutation,
) (*mutation.Batch, error) {
	if len(mutations) == 0 {
		return nil, fmt.Errorf("add mutation batch: no mutations")
	}

	meta, err := q.metadata(txn)
	if err != nil {
		return nil, err
	}
	batch := mutation.NewBatch(meta.NextBatchID, localWriteTime, mutations...)
	meta.NextBatchID++
	if err := q.saveMetadata(txn, meta); err != nil {
		return nil, err
	}

	record, err := q.p.serializer.ToMutationBatchRecord(q.userID, batch)
	if err != nil {
		return nil, err
	}
	if err := unwrap(txn).Insert(tblMutationBatches, record); err != nil {
		return nil, fmt.Errorf("insert batch %d: %w", batch.ID, err)
	}

	for _, m := range mutations {
		path := m.Key().String()
		if err := unwrap(txn).Insert(tblDocumentMutations, &persistence.DocumentMutationRecord{
			ID:       persistence.DocumentMutationID(q.userID, path, batch.ID),
			UserID:   q.userID,
			Path:     path,
			BatchID:  batch.ID,
			BatchKey: record.BatchKey,
		}); err != nil {
			return nil, fmt.Errorf("insert document mutation %s: %w", path, err)
		}
	}
	return batch, nil
}

// LookupMutationBatch implements persistence.MutationQueue.
func (q *mutationQueue) LookupMutationBatch(txn persistence.Transaction, batchID int) (*mutation.Batch, error) {
	raw, err := unwrap(txn).First(tblMutationBatches, "id", persistence.MutationBatchID(q.userID, batchID))
	if err != nil {
		return nil, fmt.Errorf("find batch %d: %w", batchID, err)
	}
	if raw == nil {
		return nil, nil
	}
	return q.p.serializer.FromMutationBatchRecord(raw.(*persistence.MutationBatchRecord))
}

// NextMutationBatchAfterBatchID implements persistence.MutationQueue.
func (q *mutationQueue) NextMutationBatchAfterBatchID(
	txn persistence.Transaction,
	batchID int,
) (*mutation.Batch, error) {
	from := batchID + 1
	if from < 0 {
		from = 0
	}
	iter, err := unwrap(txn).LowerBound(tblMutationBatches, "user_id_batch_key", q.userID, persistence.PaddedID(from))
	if err != nil {
		return nil, fmt.Errorf("find batch after %d: %w", batchID, err)
	}

	raw := iter.Next()
	if raw == nil || raw.(*persistence.MutationBatchRecord).UserID != q.userID {
		return nil, nil
	}
	return q.p.serializer.FromMutationBatchRecord(raw.(*persistence.MutationBatchRecord))
}

// HighestUnacknowledgedBatchID implements persistence.MutationQueue.
func (q *mutationQueue) HighestUnacknowledgedBatchID(txn persistence.Transaction) (int, error) {
	records, err := q.records(txn)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return mutation.UnknownBatchID, nil
	}
	return records[len(records)-1].BatchID, nil
}

func (q *mutationQueue) records(txn persistence.Transaction) ([]*persistence.MutationBatchRecord, error) {
	iter, err := unwrap(txn).LowerBound(tblMutationBatches, "user_id_batch_key", q.userID, persistence.PaddedID(0))
	if err != nil {
		return nil, fmt.Errorf("scan batches of %s: %w", q.userID, err)
	}

	var records []*persistence.MutationBatchRecord
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*persistence.MutationBatchRecord)
		if record.UserID != q.userID {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

// AllMutationBatches implements persistence.MutationQueue.
func (q *mutationQueue) AllMutationBatches(txn persistence.Transaction) ([]*mutation.Batch, error) {
	records, err := q.records(txn)
	if err != nil {
		return nil, err
	}

	batches := make([]*mutation.Batch, 0, len(records))
	for _, record := range records {
		batch, err := q.p.serializer.FromMutationBatchRecord(record)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// AllMutationBatchesAffectingDocumentKeys implements persistence.MutationQueue.
func (q *mutationQueue) AllMutationBatchesAffectingDocumentKeys(
	txn persistence.Transaction,
	keys *document.KeySet,
) ([]*mutation.Batch, error) {
	ids := make(map[int]struct{})
	var err error
	keys.Each(func(k key.Key) bool {
		var iter memdb.ResultIterator
		iter, err = unwrap(txn).Get(tblDocumentMutations, "user_id_path", q.userID, k.String())
		if err != nil {
			err = fmt.Errorf("find batches of %s: %w", k, err)
			return false
		}
		for raw := iter.Next(); raw != nil; raw = iter.Next() {
			ids[raw.(*persistence.DocumentMutationRecord).BatchID] = struct{}{}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)

	batches := make([]*mutation.Batch, 0, len(sorted))
	for _, id := range sorted {
		batch, err := q.LookupMutationBatch(txn, id)
		if err != nil {
			return nil, err
		}
		if batch == nil {
			return nil, fmt.Errorf("batch %d of document mutation: %w", id, persistence.ErrBatchNotFound)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// RemoveMutationBatch implements persistence.MutationQueue.
func (q *mutationQueue) RemoveMutationBatch(txn persistence.Transaction, batch *mutation.Batch) error {
	first, err := q.NextMutationBatchAfterBatchID(txn, mutation.UnknownBatchID)
	if err != nil {
		return err
	}
	if first == nil || first.ID != batch.ID {
		return fmt.Errorf("remove batch %d: not the first batch: %w", batch.ID, persistence.ErrBatchNotFound)
	}

	if _, err := unwrap(txn).DeleteAll(tblMutationBatches, "id", persistence.MutationBatchID(q.userID, batch.ID)); err != nil {
		return fmt.Errorf("delete batch %d: %w", batch.ID, err)
	}

	delegate := q.p.ReferenceDelegate()
	for _, m := range batch.Mutations {
		path := m.Key().String()
		id := persistence.DocumentMutationID(q.userID, path, batch.ID)
		if _, err := unwrap(txn).DeleteAll(tblDocumentMutations, "id", id); err != nil {
			return fmt.Errorf("delete document mutation %s: %w", path, err)
		}
		if err := delegate.RemoveMutationReference(txn, m.Key()); err != nil {
			return err
		}
	}
	return nil
}

// AcknowledgeBatch implements persistence.MutationQueue.
func (q *mutationQueue) AcknowledgeBatch(
	txn persistence.Transaction,
	batch *mutation.Batch,
	streamToken []byte,
) error {
	meta, err := q.metadata(txn)
	if err != nil {
		return err
	}
	if batch.ID <= meta.LastAcknowledgedBatchID {
		return fmt.Errorf("acknowledge batch %d after %d: %w", batch.ID, meta.LastAcknowledgedBatchID, persistence.ErrBatchNotFound)
	}
	meta.LastAcknowledgedBatchID = batch.ID
	meta.LastStreamToken = streamToken
	return q.saveMetadata(txn, meta)
}

// LastStreamToken implements persistence.MutationQueue.
func (q *mutationQueue) LastStreamToken(txn persistence.Transaction) ([]byte, error) {
	meta, err := q.metadata(txn)
	if err != nil {
		return nil, err
	}
	return meta.LastStreamToken, nil
}

// SetLastStreamToken implements persistence.MutationQueue.
func (q *mutationQueue) SetLastStreamToken(txn persistence.Transaction, token []byte) error {
	meta, err := q.metadata(txn)
	if err != nil {
		return err
	}
	meta.LastStreamToken = token
	return q.saveMetadata(txn, meta)
}
