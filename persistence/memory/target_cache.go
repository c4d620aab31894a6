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

	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/query"
)

// targetIDStep keeps the ids allocated by the target cache even. Odd ids
// are used for limbo resolution targets, which are never stored.
const targetIDStep = 2

type targetCache struct {
	p *Persistence
}

func (c *targetCache) globals(txn persistence.Transaction) (*persistence.TargetGlobalsRecord, error) {
	raw, err := unwrap(txn).First(tblTargetGlobals, "id", persistence.TargetGlobalsID)
	if err != nil {
		return nil, fmt.Errorf("find target globals: %w", err)
	}
	if raw == nil {
		return &persistence.TargetGlobalsRecord{ID: persistence.TargetGlobalsID}, nil
	}
	copied := *raw.(*persistence.TargetGlobalsRecord)
	return &copied, nil
}

func (c *targetCache) saveGlobals(txn persistence.Transaction, record *persistence.TargetGlobalsRecord) error {
	if err := unwrap(txn).Insert(tblTargetGlobals, record); err != nil {
		return fmt.Errorf("update target globals: %w", err)
	}
	return nil
}

// AllocateTargetID implements persistence.TargetCache.
func (c *targetCache) AllocateTargetID(txn persistence.Transaction) (int, error) {
	globals, err := c.globals(txn)
	if err != nil {
		return 0, err
	}
	globals.HighestTargetID += targetIDStep
	if err := c.saveGlobals(txn, globals); err != nil {
		return 0, err
	}
	return globals.HighestTargetID, nil
}

// NextSequenceNumber implements persistence.TargetCache.
func (c *targetCache) NextSequenceNumber(txn persistence.Transaction) (int64, error) {
	globals, err := c.globals(txn)
	if err != nil {
		return 0, err
	}
	globals.HighestSequenceNumber++
	if err := c.saveGlobals(txn, globals); err != nil {
		return 0, err
	}
	return globals.HighestSequenceNumber, nil
}

// LastRemoteSnapshotVersion implements persistence.TargetCache.
func (c *targetCache) LastRemoteSnapshotVersion(txn persistence.Transaction) (time.SnapshotVersion, error) {
	globals, err := c.globals(txn)
	if err != nil {
		return time.MinVersion, err
	}
	return converter.FromVersion(globals.LastRemoteSnapshotVersion), nil
}

// SetLastRemoteSnapshotVersion implements persistence.TargetCache.
func (c *targetCache) SetLastRemoteSnapshotVersion(txn persistence.Transaction, version time.SnapshotVersion) error {
	globals, err := c.globals(txn)
	if err != nil {
		return err
	}
	globals.LastRemoteSnapshotVersion = converter.ToVersion(version)
	return c.saveGlobals(txn, globals)
}

func (c *targetCache) saveTargetData(txn persistence.Transaction, data *persistence.TargetData) error {
	if err := unwrap(txn).Insert(tblTargets, c.p.serializer.ToTargetRecord(data)); err != nil {
		return fmt.Errorf("insert target %d: %w", data.TargetID, err)
	}

	globals, err := c.globals(txn)
	if err != nil {
		return err
	}
	changed := false
	if data.TargetID > globals.HighestTargetID {
		globals.HighestTargetID = data.TargetID
		changed = true
	}
	if data.SequenceNumber > globals.HighestSequenceNumber {
		globals.HighestSequenceNumber = data.SequenceNumber
		changed = true
	}
	if !changed {
		return nil
	}
	return c.saveGlobals(txn, globals)
}

// AddTargetData implements persistence.TargetCache.
func (c *targetCache) AddTargetData(txn persistence.Transaction, data *persistence.TargetData) error {
	existing, err := c.GetTargetDataByID(txn, data.TargetID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("add target %d: already exists", data.TargetID)
	}
	return c.saveTargetData(txn, data)
}

// UpdateTargetData implements persistence.TargetCache.
func (c *targetCache) UpdateTargetData(txn persistence.Transaction, data *persistence.TargetData) error {
	existing, err := c.GetTargetDataByID(txn, data.TargetID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("update target %d: %w", data.TargetID, persistence.ErrTargetNotFound)
	}
	return c.saveTargetData(txn, data)
}

// RemoveTargetData implements persistence.TargetCache.
func (c *targetCache) RemoveTargetData(txn persistence.Transaction, data *persistence.TargetData) error {
	if err := c.RemoveMatchingKeysForTargetID(txn, data.TargetID); err != nil {
		return err
	}
	if _, err := unwrap(txn).DeleteAll(tblTargets, "id", persistence.PaddedID(data.TargetID)); err != nil {
		return fmt.Errorf("delete target %d: %w", data.TargetID, err)
	}
	return nil
}

// GetTargetData implements persistence.TargetCache.
func (c *targetCache) GetTargetData(txn persistence.Transaction, target *query.Target) (*persistence.TargetData, error) {
	canonicalID := target.CanonicalID()
	raw, err := unwrap(txn).First(tblTargets, "canonical_id", canonicalID)
	if err != nil {
		return nil, fmt.Errorf("find target %s: %w", canonicalID, err)
	}
	if raw == nil {
		return nil, nil
	}
	return c.p.serializer.FromTargetRecord(raw.(*persistence.TargetRecord))
}

// GetTargetDataByID implements persistence.TargetCache.
func (c *targetCache) GetTargetDataByID(txn persistence.Transaction, targetID int) (*persistence.TargetData, error) {
	raw, err := unwrap(txn).First(tblTargets, "id", persistence.PaddedID(targetID))
	if err != nil {
		return nil, fmt.Errorf("find target %d: %w", targetID, err)
	}
	if raw == nil {
		return nil, nil
	}
	return c.p.serializer.FromTargetRecord(raw.(*persistence.TargetRecord))
}

// TargetCount implements persistence.TargetCache.
func (c *targetCache) TargetCount(txn persistence.Transaction) (int, error) {
	count := 0
	if err := c.EachTarget(txn, func(*persistence.TargetData) bool {
		count++
		return true
	}); err != nil {
		return 0, err
	}
	return count, nil
}

// EachTarget implements persistence.TargetCache.
func (c *targetCache) EachTarget(txn persistence.Transaction, fn func(data *persistence.TargetData) bool) error {
	iter, err := unwrap(txn).Get(tblTargets, "id")
	if err != nil {
		return fmt.Errorf("scan targets: %w", err)
	}
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		data, err := c.p.serializer.FromTargetRecord(raw.(*persistence.TargetRecord))
		if err != nil {
			return err
		}
		if !fn(data) {
			break
		}
	}
	return nil
}

// AddMatchingKeys implements persistence.TargetCache.
func (c *targetCache) AddMatchingKeys(txn persistence.Transaction, keys *document.KeySet, targetID int) error {
	delegate := c.p.ReferenceDelegate()
	var err error
	keys.Each(func(k key.Key) bool {
		path := k.String()
		if err = unwrap(txn).Insert(tblTargetDocuments, &persistence.TargetDocumentRecord{
			ID:        persistence.TargetDocumentID(targetID, path),
			TargetID:  targetID,
			TargetKey: persistence.PaddedID(targetID),
			Path:      path,
		}); err != nil {
			err = fmt.Errorf("insert %s of target %d: %w", path, targetID, err)
			return false
		}
		err = delegate.AddReference(txn, targetID, k)
		return err == nil
	})
	return err
}

// RemoveMatchingKeys implements persistence.TargetCache.
func (c *targetCache) RemoveMatchingKeys(txn persistence.Transaction, keys *document.KeySet, targetID int) error {
	delegate := c.p.ReferenceDelegate()
	var err error
	keys.Each(func(k key.Key) bool {
		id := persistence.TargetDocumentID(targetID, k.String())
		if _, err = unwrap(txn).DeleteAll(tblTargetDocuments, "id", id); err != nil {
			err = fmt.Errorf("delete %s of target %d: %w", k, targetID, err)
			return false
		}
		err = delegate.RemoveReference(txn, targetID, k)
		return err == nil
	})
	return err
}

// RemoveMatchingKeysForTargetID implements persistence.TargetCache.
func (c *targetCache) RemoveMatchingKeysForTargetID(txn persistence.Transaction, targetID int) error {
	keys, err := c.GetMatchingKeysForTargetID(txn, targetID)
	if err != nil {
		return err
	}
	return c.RemoveMatchingKeys(txn, keys, targetID)
}

// GetMatchingKeysForTargetID implements persistence.TargetCache.
func (c *targetCache) GetMatchingKeysForTargetID(txn persistence.Transaction, targetID int) (*document.KeySet, error) {
	iter, err := unwrap(txn).Get(tblTargetDocuments, "target_key", persistence.PaddedID(targetID))
	if err != nil {
		return nil, fmt.Errorf("find keys of target %d: %w", targetID, err)
	}

	keys := document.NewKeySet()
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		k, err := key.Parse(raw.(*persistence.TargetDocumentRecord).Path)
		if err != nil {
			return nil, err
		}
		keys.Add(k)
	}
	return keys, nil
}

// ContainsKey implements persistence.TargetCache.
func (c *targetCache) ContainsKey(txn persistence.Transaction, k key.Key) (bool, error) {
	raw, err := unwrap(txn).First(tblTargetDocuments, "path", k.String())
	if err != nil {
		return false, fmt.Errorf("find targets of %s: %w", k, err)
	}
	return raw != nil, nil
}
