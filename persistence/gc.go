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
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

// DefaultRetainedTargets is the number of released targets the LRU garbage
// collector keeps.
const DefaultRetainedTargets = 100

// ReferenceDelegate tracks which cached documents are still referenced by
// targets, pending writes or in-memory pins, and removes the others.
type ReferenceDelegate interface {
	// SetPersistence binds the delegate to the storage it collects.
	SetPersistence(p Persistence)

	// SetInMemoryPins sets references that keep documents alive, such as
	// the documents of local views.
	SetInMemoryPins(pins *ReferenceSet)

	// OnStartup runs once when the storage starts.
	OnStartup(txn Transaction) error

	// AddReference records that the target matches k.
	AddReference(txn Transaction, targetID int, k key.Key) error

	// RemoveReference records that the target no longer matches k.
	RemoveReference(txn Transaction, targetID int, k key.Key) error

	// RemoveMutationReference records that a pending write of k was
	// acknowledged or rejected.
	RemoveMutationReference(txn Transaction, k key.Key) error

	// RemoveTarget releases a target nobody listens to anymore.
	RemoveTarget(txn Transaction, data *TargetData) error

	// ActivateTarget records that a released target is listened to again.
	ActivateTarget(targetID int)

	// UpdateLimboDocument records that k was resolved from limbo.
	UpdateLimboDocument(txn Transaction, k key.Key) error

	// OnTransactionStarted runs when a transaction starts.
	OnTransactionStarted(txn Transaction)

	// OnTransactionCommitted runs inside a transaction right before it
	// commits, removing the documents it orphaned.
	OnTransactionCommitted(txn Transaction) error

	// CollectGarbage removes every cached document nothing refers to. It
	// returns the number of removed documents.
	CollectGarbage(txn Transaction) (int, error)
}

// referenceTracker is the part shared by the garbage collectors: documents
// that lost a reference during a transaction are removed at its end unless
// something else still refers to them.
type referenceTracker struct {
	persistence Persistence
	pins        *ReferenceSet
	orphaned    *document.KeySet
}

func newReferenceTracker() referenceTracker {
	return referenceTracker{pins: NewReferenceSet(), orphaned: document.NewKeySet()}
}

func (t *referenceTracker) SetPersistence(p Persistence) {
	t.persistence = p
}

func (t *referenceTracker) SetInMemoryPins(pins *ReferenceSet) {
	t.pins = pins
}

func (t *referenceTracker) AddReference(_ Transaction, _ int, k key.Key) error {
	t.orphaned.Delete(k)
	return nil
}

func (t *referenceTracker) RemoveReference(_ Transaction, _ int, k key.Key) error {
	t.orphaned.Add(k)
	return nil
}

func (t *referenceTracker) RemoveMutationReference(_ Transaction, k key.Key) error {
	t.orphaned.Add(k)
	return nil
}

func (t *referenceTracker) UpdateLimboDocument(txn Transaction, k key.Key) error {
	referenced, err := t.isReferenced(txn, k)
	if err != nil {
		return err
	}
	if referenced {
		t.orphaned.Delete(k)
	} else {
		t.orphaned.Add(k)
	}
	return nil
}

func (t *referenceTracker) OnTransactionStarted(Transaction) {
	t.orphaned = document.NewKeySet()
}

func (t *referenceTracker) removeOrphaned(txn Transaction) error {
	var err error
	t.orphaned.Each(func(k key.Key) bool {
		err = t.removeIfUnreferenced(txn, k)
		return err == nil
	})
	t.orphaned = document.NewKeySet()
	return err
}

func (t *referenceTracker) removeIfUnreferenced(txn Transaction, k key.Key) error {
	referenced, err := t.isReferenced(txn, k)
	if err != nil || referenced {
		return err
	}
	if err := t.persistence.RemoteDocumentCache().Remove(txn, k); err != nil {
		return fmt.Errorf("remove orphaned %s: %w", k, err)
	}
	return nil
}

func (t *referenceTracker) isReferenced(txn Transaction, k key.Key) (bool, error) {
	if t.pins.ContainsKey(k) {
		return true, nil
	}
	inTarget, err := t.persistence.TargetCache().ContainsKey(txn, k)
	if err != nil || inTarget {
		return inTarget, err
	}
	return t.persistence.MutationQueuesContainKey(txn, k)
}

func (t *referenceTracker) CollectGarbage(txn Transaction) (int, error) {
	var unreferenced []key.Key
	var err error
	eachErr := t.persistence.RemoteDocumentCache().Each(txn, func(doc *document.MutableDocument) bool {
		var referenced bool
		referenced, err = t.isReferenced(txn, doc.Key())
		if err != nil {
			return false
		}
		if !referenced {
			unreferenced = append(unreferenced, doc.Key())
		}
		return true
	})
	if eachErr != nil {
		return 0, eachErr
	}
	if err != nil {
		return 0, err
	}

	for _, k := range unreferenced {
		if err := t.persistence.RemoteDocumentCache().Remove(txn, k); err != nil {
			return 0, err
		}
	}
	return len(unreferenced), nil
}

// EagerGarbageCollector removes targets as soon as they are released and
// documents as soon as nothing refers to them.
type EagerGarbageCollector struct {
	referenceTracker
}

// NewEagerGarbageCollector creates an eager garbage collector.
func NewEagerGarbageCollector() *EagerGarbageCollector {
	return &EagerGarbageCollector{referenceTracker: newReferenceTracker()}
}

// OnStartup implements ReferenceDelegate.
func (c *EagerGarbageCollector) OnStartup(Transaction) error {
	return nil
}

// RemoveTarget implements ReferenceDelegate. The keys of the target lose
// their reference as the target is removed.
func (c *EagerGarbageCollector) RemoveTarget(txn Transaction, data *TargetData) error {
	return c.persistence.TargetCache().RemoveTargetData(txn, data)
}

// ActivateTarget implements ReferenceDelegate.
func (c *EagerGarbageCollector) ActivateTarget(int) {}

// OnTransactionCommitted implements ReferenceDelegate.
func (c *EagerGarbageCollector) OnTransactionCommitted(txn Transaction) error {
	return c.removeOrphaned(txn)
}

// LRUGarbageCollector keeps a bounded number of released targets, along
// with the documents matching them, so that listening to them again can
// resume from the cache. The least recently released targets are removed
// first.
type LRUGarbageCollector struct {
	referenceTracker
	inactive   *lru.Cache[int, struct{}]
	evicted    []int
	activating bool
}

// NewLRUGarbageCollector creates a garbage collector keeping up to
// retainedTargets released targets.
func NewLRUGarbageCollector(retainedTargets int) (*LRUGarbageCollector, error) {
	if retainedTargets <= 0 {
		retainedTargets = DefaultRetainedTargets
	}

	c := &LRUGarbageCollector{referenceTracker: newReferenceTracker()}
	inactive, err := lru.NewWithEvict[int, struct{}](retainedTargets, func(targetID int, _ struct{}) {
		// Remove also calls back; only capacity evictions drop the target.
		if c.activating {
			return
		}
		c.evicted = append(c.evicted, targetID)
	})
	if err != nil {
		return nil, fmt.Errorf("new inactive target cache: %w", err)
	}
	c.inactive = inactive
	return c, nil
}

// OnStartup implements ReferenceDelegate. Every stored target is released
// when the storage starts; the oldest ones beyond the retained number are
// removed when the startup transaction commits.
func (c *LRUGarbageCollector) OnStartup(txn Transaction) error {
	var targets []*TargetData
	if err := c.persistence.TargetCache().EachTarget(txn, func(data *TargetData) bool {
		targets = append(targets, data)
		return true
	}); err != nil {
		return err
	}

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].SequenceNumber < targets[j].SequenceNumber
	})
	for _, data := range targets {
		c.inactive.Add(data.TargetID, struct{}{})
	}
	return nil
}

// RemoveTarget implements ReferenceDelegate.
func (c *LRUGarbageCollector) RemoveTarget(txn Transaction, data *TargetData) error {
	c.inactive.Add(data.TargetID, struct{}{})
	return nil
}

// ActivateTarget implements ReferenceDelegate.
func (c *LRUGarbageCollector) ActivateTarget(targetID int) {
	c.activating = true
	defer func() { c.activating = false }()
	c.inactive.Remove(targetID)
}

// InactiveTargets returns the number of released targets kept.
func (c *LRUGarbageCollector) InactiveTargets() int {
	return c.inactive.Len()
}

// OnTransactionCommitted implements ReferenceDelegate.
func (c *LRUGarbageCollector) OnTransactionCommitted(txn Transaction) error {
	if err := c.removeEvicted(txn); err != nil {
		return err
	}
	return c.removeOrphaned(txn)
}

func (c *LRUGarbageCollector) removeEvicted(txn Transaction) error {
	evicted := c.evicted
	c.evicted = nil
	targets := c.persistence.TargetCache()
	for _, targetID := range evicted {
		data, err := targets.GetTargetDataByID(txn, targetID)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}
		if err := targets.RemoveTargetData(txn, data); err != nil {
			return err
		}
	}
	return nil
}
