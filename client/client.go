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
// Package client is the entry point of docsync. A Client keeps a local
// cache of the documents of one database in sync with the backend: queries
// are listened to from the cache, writes are applied to the cache at once
// and sent to the backend in order.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	gotime "time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	grpccredentials "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yorkie-team/docsync/async"
	"github.com/yorkie-team/docsync/core"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/local"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/persistence/memory"
	"github.com/yorkie-team/docsync/persistence/mongo"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote"
)

// The delays of the garbage collection of the "lru" policy.
const (
	initialGCDelay = gotime.Minute
	regularGCDelay = 5 * gotime.Minute
)

var (
	// ErrClientClosed is returned by the methods of a closed client.
	ErrClientClosed = errors.FailedPrecond("client is closed").WithCode("ErrClientClosed")

	// ErrDocumentNotInCache is returned when reading a document the cache
	// knows nothing about.
	ErrDocumentNotInCache = errors.Unavailable("document is not in the cache").WithCode("ErrDocumentNotInCache")
)

// Snapshot is the state of the results of a query raised to listeners.
type Snapshot = core.ViewSnapshot

// ListenOptions configures which snapshots a listener receives.
type ListenOptions = core.ListenOptions

type registration struct {
	listener *core.QueryListener
	observer *observer[*Snapshot]
}

// Client keeps the documents of one database in sync with the backend.
// Listeners and write callbacks are called one at a time on a goroutine
// of the client.
type Client struct {
	key     string
	config  *Config
	options Options
	logger  logging.Logger
	metrics *prometheus.Metrics

	queue      *async.Queue
	dispatcher *dispatcher
	auth       credentials.Provider
	appCheck   credentials.Provider

	persistence  persistence.Persistence
	datastore    *remote.Datastore
	localStore   *local.Store
	remoteStore  *remote.RemoteStore
	syncEngine   *core.SyncEngine
	eventManager *core.EventManager

	// gc is the next garbage collection. It is only used on the queue.
	gc *async.DelayedOperation

	mu        sync.Mutex
	listeners map[string]*registration
	closed    bool
}

// Dial creates a client of the database of conf and starts syncing.
func Dial(ctx context.Context, conf *Config, opts ...Option) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Key == "" {
		options.Key = uuid.New().String()
	}
	if options.Logger == nil {
		options.Logger = logging.New("client", logging.NewField("client", options.Key))
	}
	if options.Credentials == nil {
		options.Credentials = credentials.Empty{}
	}
	if options.AppCheck == nil {
		options.AppCheck = credentials.Empty{}
	}

	c := &Client{
		key:       options.Key,
		config:    conf,
		options:   options,
		logger:    options.Logger,
		metrics:   options.Metrics,
		auth:      options.Credentials,
		appCheck:  options.AppCheck,
		listeners: make(map[string]*registration),
	}

	p, err := c.newPersistence()
	if err != nil {
		return nil, err
	}
	c.persistence = p

	datastore, err := c.newDatastore()
	if err != nil {
		c.abort()
		return nil, err
	}
	c.datastore = datastore

	c.queue = async.NewQueue(c.logger)
	c.dispatcher = newDispatcher()

	user, err := c.watchCredentials(ctx)
	if err != nil {
		c.abort()
		return nil, err
	}
	if err := c.queue.EnqueueAndWait(ctx, func(ctx context.Context) error {
		return c.initialize(ctx, user)
	}); err != nil {
		c.abort()
		return nil, fmt.Errorf("initialize client: %w", err)
	}

	c.logger.Debugf("client %s started for %s", c.key, conf.DatabaseID().Name())
	return c, nil
}

func (c *Client) newPersistence() (persistence.Persistence, error) {
	if c.options.Persistence != nil {
		return c.options.Persistence, nil
	}

	delegate, err := newReferenceDelegate(c.config)
	if err != nil {
		return nil, err
	}

	if c.config.Mongo != nil {
		p, err := mongo.Dial(c.config.Mongo, c.config.DatabaseID(), delegate)
		if err != nil {
			return nil, fmt.Errorf("dial mongo: %w", err)
		}
		return p, nil
	}

	p, err := memory.New(c.config.DatabaseID(), memory.WithReferenceDelegate(delegate))
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newReferenceDelegate(conf *Config) (persistence.ReferenceDelegate, error) {
	if conf.GarbageCollector != GCLRU {
		return persistence.NewEagerGarbageCollector(), nil
	}

	collector, err := persistence.NewLRUGarbageCollector(conf.RetainedTargets)
	if err != nil {
		return nil, err
	}
	return collector, nil
}

func (c *Client) newDatastore() (*remote.Datastore, error) {
	databaseID := c.config.DatabaseID()
	opts := []remote.DatastoreOption{
		remote.WithAppCheck(c.appCheck),
		remote.WithStreamInitTimeout(c.config.ParseStreamInitTimeout()),
	}

	if c.options.Conn != nil {
		return remote.NewDatastore(c.options.Conn, databaseID, c.auth, opts...), nil
	}

	transport := grpc.WithTransportCredentials(insecure.NewCredentials())
	if c.config.CertFile != "" {
		creds, err := grpccredentials.NewClientTLSFromFile(c.config.CertFile, c.config.ServerNameOverride)
		if err != nil {
			return nil, fmt.Errorf("create client tls from file: %w", err)
		}
		transport = grpc.WithTransportCredentials(creds)
	}

	dialOptions := []grpc.DialOption{
		transport,
		remote.ChainStreamInterceptors(
			remote.NewLoggingInterceptor(c.logger.Named("stream")).Stream(),
			c.metrics.StreamClientInterceptor(),
		),
	}
	dialOptions = append(dialOptions, c.options.DialOptions...)
	return remote.Dial(c.config.Address, databaseID, c.auth, dialOptions, opts...)
}

// watchCredentials returns the first user the credentials report. Later
// users restart the streams with their own pending writes.
func (c *Client) watchCredentials(ctx context.Context) (credentials.User, error) {
	initial := make(chan credentials.User, 1)
	var received atomic.Bool
	c.auth.SetChangeListener(func(user credentials.User) {
		if received.CompareAndSwap(false, true) {
			initial <- user
			return
		}

		c.queue.Enqueue(func(ctx context.Context) error {
			return c.remoteStore.HandleCredentialChange(ctx, user)
		})
	})

	select {
	case user := <-initial:
		return user, nil
	case <-ctx.Done():
		return credentials.User{}, fmt.Errorf("wait for credentials: %w", ctx.Err())
	}
}

func (c *Client) initialize(ctx context.Context, user credentials.User) error {
	if err := c.persistence.Start(ctx); err != nil {
		return fmt.Errorf("start persistence: %w", err)
	}

	c.localStore = local.NewStore(c.persistence, user)
	if err := c.localStore.Start(ctx); err != nil {
		return fmt.Errorf("start local store: %w", err)
	}

	c.remoteStore = remote.NewRemoteStore(c.localStore, c.datastore, c.queue, c.logger, c.metrics)
	c.syncEngine = core.NewSyncEngine(
		c.localStore,
		c.remoteStore,
		user,
		core.WithMaxConcurrentLimboResolutions(c.config.MaxConcurrentLimboResolutions),
		core.WithLogger(c.logger),
		core.WithMetrics(c.metrics),
	)
	c.remoteStore.SetRemoteSyncer(c.syncEngine)
	c.eventManager = core.NewEventManager(c.syncEngine)
	c.syncEngine.SetListener(c.eventManager)

	if c.config.GarbageCollector == GCLRU {
		c.scheduleGC(initialGCDelay)
	}

	if c.options.StartOffline {
		return c.remoteStore.DisableNetwork(ctx)
	}
	return c.remoteStore.Start(ctx)
}

func (c *Client) scheduleGC(delay gotime.Duration) {
	c.gc = c.queue.EnqueueAfterDelay(async.TimerGarbageCollection, delay, func(ctx context.Context) error {
		removed, err := c.localStore.CollectGarbage(ctx)
		if err != nil {
			c.logger.Warnf("collect garbage: %v", err)
		} else if removed > 0 {
			c.logger.Debugf("garbage collection removed %d documents", removed)
		}
		c.scheduleGC(regularGCDelay)
		return nil
	})
}

// abort releases what Dial created before it failed.
func (c *Client) abort() {
	c.auth.SetChangeListener(nil)
	if c.queue != nil {
		_ = c.queue.Shutdown(context.Background(), nil)
	}
	if c.dispatcher != nil {
		c.dispatcher.close()
	}
	if c.persistence != nil {
		_ = c.persistence.Shutdown(context.Background())
	}
	if c.datastore != nil {
		_ = c.datastore.Close()
	}
}

// run runs op on the queue.
func (c *Client) run(ctx context.Context, op async.Operation) error {
	if err := c.queue.EnqueueAndWait(ctx, op); err != nil {
		if errors.Is(err, async.ErrShutdown) {
			return ErrClientClosed
		}
		return err
	}
	return nil
}

// Key returns the key of the client.
func (c *Client) Key() string {
	return c.key
}

// Listen calls onNext with the snapshots of the results of q until
// Unlisten is called with the returned id. If listening fails, onError is
// called once and the listener is removed.
func (c *Client) Listen(
	ctx context.Context,
	q *query.Query,
	opts ListenOptions,
	onNext func(*Snapshot),
	onError func(error),
) (string, error) {
	obs := newObserver(c.dispatcher, onNext, onError)
	l := core.NewQueryListener(q, opts, obs.next, obs.fail)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClientClosed
	}
	c.listeners[l.ID()] = &registration{listener: l, observer: obs}
	c.mu.Unlock()

	if err := c.run(ctx, func(ctx context.Context) error {
		// The error is delivered to onError.
		if err := c.eventManager.Listen(ctx, l); err != nil {
			c.logger.Warnf("listen %s: %v", q, err)
		}
		return nil
	}); err != nil {
		c.removeRegistration(l.ID())
		obs.mute()
		return "", err
	}

	return l.ID(), nil
}

// Unlisten removes the listener with the given id. Its callbacks are not
// called anymore once Unlisten started.
func (c *Client) Unlisten(ctx context.Context, id string) error {
	reg := c.removeRegistration(id)
	if reg == nil {
		return nil
	}
	reg.observer.mute()

	return c.run(ctx, func(ctx context.Context) error {
		return c.eventManager.Unlisten(ctx, reg.listener)
	})
}

func (c *Client) removeRegistration(id string) *registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, ok := c.listeners[id]
	if !ok {
		return nil
	}
	delete(c.listeners, id)
	return reg
}

// WriteAsync applies mutations to the cache as one batch and queues them
// for the backend. It returns once listeners see the batch; callback is
// called when the backend acknowledged or rejected it.
func (c *Client) WriteAsync(ctx context.Context, mutations []mutation.Mutation, callback func(error)) error {
	return c.run(ctx, func(ctx context.Context) error {
		return c.syncEngine.Write(ctx, mutations, func(err error) {
			if callback == nil {
				return
			}
			c.dispatcher.dispatch(func() { callback(err) })
		})
	})
}

// Write is like WriteAsync but waits until the backend acknowledged or
// rejected the batch. The batch stays pending if ctx is done first.
func (c *Client) Write(ctx context.Context, mutations ...mutation.Mutation) error {
	done := make(chan error, 1)
	if err := c.WriteAsync(ctx, mutations, func(err error) { done <- err }); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitForPendingWrites waits until every batch written so far was
// acknowledged or rejected. It fails with core.ErrUserChanged if the user
// changed meanwhile.
func (c *Client) WaitForPendingWrites(ctx context.Context) error {
	done := make(chan error, 1)
	if err := c.run(ctx, func(ctx context.Context) error {
		return c.syncEngine.RegisterPendingWritesCallback(ctx, func(err error) { done <- err })
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetDocumentFromCache returns the cached document with key k, with the
// pending writes applied. A deleted document is returned as a no-document.
func (c *Client) GetDocumentFromCache(ctx context.Context, k key.Key) (*document.MutableDocument, error) {
	var doc *document.MutableDocument
	if err := c.run(ctx, func(ctx context.Context) error {
		cached, err := c.localStore.ReadDocument(ctx, k)
		if err != nil {
			return err
		}
		if !cached.IsFoundDocument() && !cached.IsNoDocument() {
			return fmt.Errorf("get %s: %w", k, ErrDocumentNotInCache)
		}
		doc = cached
		return nil
	}); err != nil {
		return nil, err
	}

	return doc, nil
}

// GetDocumentsFromCache returns the results of q from the cache, with the
// pending writes applied.
func (c *Client) GetDocumentsFromCache(ctx context.Context, q *query.Query) (*Snapshot, error) {
	var snap *Snapshot
	if err := c.run(ctx, func(ctx context.Context) error {
		result, err := c.localStore.ExecuteQuery(ctx, q, true)
		if err != nil {
			return fmt.Errorf("execute %s: %w", q, err)
		}

		view := core.NewView(q, result.RemoteKeys, false)
		changes := view.ComputeDocChanges(result.Documents, nil)
		snap = view.ApplyChanges(changes, false, nil, false).Snapshot
		return nil
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

// AddSnapshotsInSyncListener calls fn every time the snapshots raised
// together were delivered to every listener, and once right away. It
// returns the id that removes it.
func (c *Client) AddSnapshotsInSyncListener(ctx context.Context, fn func()) (string, error) {
	var id string
	if err := c.run(ctx, func(context.Context) error {
		id = c.eventManager.AddSnapshotsInSyncListener(func() {
			c.dispatcher.dispatch(fn)
		})
		return nil
	}); err != nil {
		return "", err
	}

	return id, nil
}

// RemoveSnapshotsInSyncListener removes the listener with the given id.
func (c *Client) RemoveSnapshotsInSyncListener(ctx context.Context, id string) error {
	return c.run(ctx, func(context.Context) error {
		c.eventManager.RemoveSnapshotsInSyncListener(id)
		return nil
	})
}

// EnableNetwork resumes syncing after DisableNetwork.
func (c *Client) EnableNetwork(ctx context.Context) error {
	return c.run(ctx, func(ctx context.Context) error {
		return c.remoteStore.EnableNetwork(ctx)
	})
}

// DisableNetwork stops syncing. Listeners are served from the cache and
// writes stay pending until EnableNetwork.
func (c *Client) DisableNetwork(ctx context.Context) error {
	return c.run(ctx, func(ctx context.Context) error {
		return c.remoteStore.DisableNetwork(ctx)
	})
}

// OnlineState returns whether the client is connected to the backend.
func (c *Client) OnlineState(ctx context.Context) (remote.OnlineState, error) {
	state := remote.OnlineStateUnknown
	if err := c.run(ctx, func(context.Context) error {
		state = c.remoteStore.OnlineState()
		return nil
	}); err != nil {
		return state, err
	}

	return state, nil
}

// CollectGarbage removes the cached documents no query or pending write
// refers to. It returns the number of removed documents.
func (c *Client) CollectGarbage(ctx context.Context) (int, error) {
	removed := 0
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		removed, err = c.localStore.CollectGarbage(ctx)
		return err
	}); err != nil {
		return 0, err
	}

	return removed, nil
}

// Close stops syncing and releases the cache. Pending writes of a durable
// cache are sent by the next client of the same database.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for id, reg := range c.listeners {
		reg.observer.mute()
		delete(c.listeners, id)
	}
	c.mu.Unlock()

	c.auth.SetChangeListener(nil)
	c.auth.Shutdown()
	c.appCheck.Shutdown()

	err := c.queue.Shutdown(ctx, func(ctx context.Context) error {
		if c.gc != nil {
			c.gc.Cancel()
		}
		if err := c.remoteStore.Shutdown(ctx); err != nil {
			return err
		}
		return c.persistence.Shutdown(ctx)
	})
	c.dispatcher.close()

	if closeErr := c.datastore.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("close client: %w", err)
	}

	c.logger.Debugf("client %s closed", c.key)
	return nil
}
