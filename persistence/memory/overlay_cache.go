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

	"github.com/hashicorp/go-memdb"

	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
)

type overlayCache struct {
	p      *Persistence
	userID string
}

// GetOverlay implements persistence.DocumentOverlayCache.
func (c *overlayCache) GetOverlay(txn persistence.Transaction, k key.Key) (*mutation.Overlay, error) {
	raw, err := unwrap(txn).First(tblOverlays, "id", persistence.OverlayID(c.userID, k.String()))
	if err != nil {
		return nil, fmt.Errorf("find overlay of %s: %w", k, err)
	}
	if raw == nil {
		return nil, nil
	}
	return c.p.serializer.FromOverlayRecord(raw.(*persistence.OverlayRecord))
}

// GetOverlays implements persistence.DocumentOverlayCache.
func (c *overlayCache) GetOverlays(
	txn persistence.Transaction,
	keys *document.KeySet,
) (map[string]*mutation.Overlay, error) {
	overlays := make(map[string]*mutation.Overlay)
	var err error
	keys.Each(func(k key.Key) bool {
		var overlay *mutation.Overlay
		if overlay, err = c.GetOverlay(txn, k); err != nil {
			return false
		}
		if overlay != nil {
			overlays[k.String()] = overlay
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return overlays, nil
}

// SaveOverlays implements persistence.DocumentOverlayCache.
func (c *overlayCache) SaveOverlays(
	txn persistence.Transaction,
	largestBatchID int,
	overlays map[string]mutation.Mutation,
) error {
	for path, m := range overlays {
		record, err := c.p.serializer.ToOverlayRecord(c.userID, &mutation.Overlay{
			LargestBatchID: largestBatchID,
			Mutation:       m,
		})
		if err != nil {
			return err
		}
		if err := unwrap(txn).Insert(tblOverlays, record); err != nil {
			return fmt.Errorf("insert overlay of %s: %w", path, err)
		}
	}
	return nil
}

// RemoveOverlaysForBatchID implements persistence.DocumentOverlayCache.
func (c *overlayCache) RemoveOverlaysForBatchID(
	txn persistence.Transaction,
	keys *document.KeySet,
	batchID int,
) error {
	var err error
	keys.Each(func(k key.Key) bool {
		id := persistence.OverlayID(c.userID, k.String())
		var raw interface{}
		if raw, err = unwrap(txn).First(tblOverlays, "id", id); err != nil {
			err = fmt.Errorf("find overlay of %s: %w", k, err)
			return false
		}
		if raw == nil || raw.(*persistence.OverlayRecord).LargestBatchID != batchID {
			return true
		}
		if err = unwrap(txn).Delete(tblOverlays, raw); err != nil {
			err = fmt.Errorf("delete overlay of %s: %w", k, err)
			return false
		}
		return true
	})
	return err
}

// GetOverlaysForCollection implements persistence.DocumentOverlayCache.
func (c *overlayCache) GetOverlaysForCollection(
	txn persistence.Transaction,
	collection key.ResourcePath,
	sinceBatchID int,
) (map[string]*mutation.Overlay, error) {
	iter, err := unwrap(txn).Get(tblOverlays, "user_id_collection_path", c.userID, collection.String())
	if err != nil {
		return nil, fmt.Errorf("find overlays of %s: %w", collection, err)
	}
	return c.collect(iter, sinceBatchID)
}

// GetOverlaysForCollectionGroup implements persistence.DocumentOverlayCache.
func (c *overlayCache) GetOverlaysForCollectionGroup(
	txn persistence.Transaction,
	collectionGroup string,
	sinceBatchID int,
) (map[string]*mutation.Overlay, error) {
	iter, err := unwrap(txn).Get(tblOverlays, "user_id_collection_group", c.userID, collectionGroup)
	if err != nil {
		return nil, fmt.Errorf("find overlays of group %s: %w", collectionGroup, err)
	}
	return c.collect(iter, sinceBatchID)
}

func (c *overlayCache) collect(iter memdb.ResultIterator, sinceBatchID int) (map[string]*mutation.Overlay, error) {
	overlays := make(map[string]*mutation.Overlay)
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		record := raw.(*persistence.OverlayRecord)
		if record.LargestBatchID <= sinceBatchID {
			continue
		}
		overlay, err := c.p.serializer.FromOverlayRecord(record)
		if err != nil {
			return nil, err
		}
		overlays[record.Path] = overlay
	}
	return overlays, nil
}

// Each implements persistence.DocumentOverlayCache.
func (c *overlayCache) Each(txn persistence.Transaction, fn func(overlay *mutation.Overlay) bool) error {
	iter, err := unwrap(txn).Get(tblOverlays, "user_id", c.userID)
	if err != nil {
		return fmt.Errorf("scan overlays of %s: %w", c.userID, err)
	}
	overlays, err := c.collect(iter, mutation.UnknownBatchID)
	if err != nil {
		return err
	}

	keys := document.NewKeySet()
	for _, overlay := range overlays {
		keys.Add(overlay.Key())
	}
	keys.Each(func(k key.Key) bool {
		return fn(overlays[k.String()])
	})
	return nil
}
