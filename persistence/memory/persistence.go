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

// Package memory implements the persistence interfaces with an in-memory
// database. It backs the engine when durability is not needed, and the
// durable backend mirrors it into MongoDB.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document/key"
)

// Change is a record stored or deleted by a transaction. Before is nil for
// inserted records and After is nil for deleted ones.
type Change struct {
	Store  string
	Before persistence.Record
	After  persistence.Record
}

// CommitHook is called with the changes of a transaction right before it
// commits, unless it changed nothing. The transaction is rolled back if the
// hook fails.
type CommitHook func(ctx context.Context, changes []Change) error

// Loader returns the stored records of a store. It is used to fill the
// database when it starts.
type Loader func(ctx context.Context, store string, newRecord func() persistence.Record) ([]persistence.Record, error)

// Option configures Persistence.
type Option func(*Persistence)

// WithCommitHook sets the hook called before transactions commit.
func WithCommitHook(hook CommitHook) Option {
	return func(p *Persistence) {
		p.commitHook = hook
	}
}

// WithLoader sets the loader filling the database on start.
func WithLoader(loader Loader) Option {
	return func(p *Persistence) {
		p.loader = loader
	}
}

// WithReferenceDelegate sets the garbage collector. Eager garbage
// collection is used by default.
func WithReferenceDelegate(delegate persistence.ReferenceDelegate) Option {
	return func(p *Persistence) {
		p.delegate = delegate
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Persistence) {
		p.logger = logger
	}
}

// Persistence is an in-memory storage of the engine.
type Persistence struct {
	db         *memdb.MemDB
	serializer *persistence.LocalSerializer
	delegate   persistence.ReferenceDelegate
	commitHook CommitHook
	loader     Loader
	logger     logging.Logger

	mu      sync.RWMutex
	started bool
}

// New creates a storage for the documents of the given database.
func New(databaseID key.DatabaseID, opts ...Option) (*Persistence, error) {
	memDB, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}

	p := &Persistence{
		db:         memDB,
		serializer: persistence.NewLocalSerializer(databaseID),
		logger:     logging.New("persistence"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.delegate == nil {
		p.delegate = persistence.NewEagerGarbageCollector()
	}
	p.delegate.SetPersistence(p)

	return p, nil
}

// Serializer returns the serializer of the records.
func (p *Persistence) Serializer() *persistence.LocalSerializer {
	return p.serializer
}

// Start implements persistence.Persistence. Stored records are loaded first
// if a loader is set.
func (p *Persistence) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	if p.loader != nil {
		if err := p.load(ctx); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.started = true
	p.mu.Unlock()

	return p.RunTransaction(ctx, "start", persistence.ReadWritePrimary, func(txn persistence.Transaction) error {
		return p.delegate.OnStartup(txn)
	})
}

func (p *Persistence) load(ctx context.Context) error {
	stores := persistence.Stores()
	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)

	txn := p.db.Txn(true)
	defer txn.Abort()

	for _, name := range names {
		records, err := p.loader(ctx, name, stores[name])
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		for _, record := range records {
			if err := txn.Insert(name, record); err != nil {
				return fmt.Errorf("insert %s %s: %w", name, record.RecordID(), err)
			}
		}
		p.logger.Debugf("loaded %d records of %s", len(records), name)
	}

	txn.Commit()
	return nil
}

// Shutdown implements persistence.Persistence.
func (p *Persistence) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	return nil
}

// Started implements persistence.Persistence.
func (p *Persistence) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// MutationQueue implements persistence.Persistence.
func (p *Persistence) MutationQueue(user credentials.User) persistence.MutationQueue {
	return &mutationQueue{p: p, userID: persistence.UserID(user)}
}

// DocumentOverlayCache implements persistence.Persistence.
func (p *Persistence) DocumentOverlayCache(user credentials.User) persistence.DocumentOverlayCache {
	return &overlayCache{p: p, userID: persistence.UserID(user)}
}

// RemoteDocumentCache implements persistence.Persistence.
func (p *Persistence) RemoteDocumentCache() persistence.RemoteDocumentCache {
	return &remoteDocumentCache{p: p}
}

// TargetCache implements persistence.Persistence.
func (p *Persistence) TargetCache() persistence.TargetCache {
	return &targetCache{p: p}
}

// NamedQueryCache implements persistence.Persistence.
func (p *Persistence) NamedQueryCache() persistence.NamedQueryCache {
	return &namedQueryCache{p: p}
}

// ReferenceDelegate implements persistence.Persistence.
func (p *Persistence) ReferenceDelegate() persistence.ReferenceDelegate {
	return p.delegate
}

// MutationQueuesContainKey implements persistence.Persistence.
func (p *Persistence) MutationQueuesContainKey(txn persistence.Transaction, k key.Key) (bool, error) {
	raw, err := unwrap(txn).First(tblDocumentMutations, "path", k.String())
	if err != nil {
		return false, fmt.Errorf("find mutations of %s: %w", k, err)
	}
	return raw != nil, nil
}

// RunTransaction implements persistence.Persistence.
func (p *Persistence) RunTransaction(
	ctx context.Context,
	action string,
	mode persistence.TransactionMode,
	fn func(txn persistence.Transaction) error,
) error {
	if !p.Started() {
		return fmt.Errorf("%s: %w", action, persistence.ErrNotStarted)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	write := mode != persistence.ReadOnly
	txn := &Txn{Txn: p.db.Txn(write), ctx: ctx, mode: mode}
	defer txn.Abort()

	if write {
		txn.TrackChanges()
		p.delegate.OnTransactionStarted(txn)
	}

	if err := fn(txn); err != nil {
		return err
	}

	if write {
		if err := p.delegate.OnTransactionCommitted(txn); err != nil {
			return fmt.Errorf("%s: collect garbage: %w", action, err)
		}
		if changes := txn.Changes(); p.commitHook != nil && len(changes) > 0 {
			if err := p.commitHook(ctx, changesOf(changes)); err != nil {
				return fmt.Errorf("%s: %w", action, err)
			}
		}
	}
	txn.Commit()

	for _, listener := range txn.listeners {
		listener()
	}
	return nil
}

func changesOf(changes memdb.Changes) []Change {
	converted := make([]Change, 0, len(changes))
	for _, change := range changes {
		c := Change{Store: change.Table}
		if change.Before != nil {
			c.Before = change.Before.(persistence.Record)
		}
		if change.After != nil {
			c.After = change.After.(persistence.Record)
		}
		converted = append(converted, c)
	}
	return converted
}

// Txn is a transaction of the in-memory storage.
type Txn struct {
	*memdb.Txn
	ctx       context.Context
	mode      persistence.TransactionMode
	listeners []func()
}

// Context implements persistence.Transaction.
func (t *Txn) Context() context.Context {
	return t.ctx
}

// Mode implements persistence.Transaction.
func (t *Txn) Mode() persistence.TransactionMode {
	return t.mode
}

// AddOnCommittedListener implements persistence.Transaction.
func (t *Txn) AddOnCommittedListener(fn func()) {
	t.listeners = append(t.listeners, fn)
}

func unwrap(txn persistence.Transaction) *Txn {
	return txn.(*Txn)
}
