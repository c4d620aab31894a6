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

package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// The metadata keys sent with every stream.
const (
	authorizationKey  = "authorization"
	appCheckKey       = "x-docsync-appcheck"
	resourcePrefixKey = "x-docsync-resource-prefix"
)

// DefaultStreamInitTimeout is how long opening a stream may take.
const DefaultStreamInitTimeout = 15 * time.Second

var (
	// ErrStreamInit is returned when a stream could not be opened in time.
	ErrStreamInit = errors.DeadlineExceeded("stream initialization timed out").WithCode("ErrStreamInit")

	// ErrStreamClosed is returned when the backend ended a stream without
	// a status.
	ErrStreamClosed = errors.Unavailable("stream closed by the backend").WithCode("ErrStreamClosed")
)

// DatastoreOption configures a Datastore.
type DatastoreOption func(*Datastore)

// WithAppCheck sets the provider of app check tokens.
func WithAppCheck(provider credentials.Provider) DatastoreOption {
	return func(d *Datastore) { d.appCheck = provider }
}

// WithStreamInitTimeout sets how long opening a stream may take.
func WithStreamInitTimeout(timeout time.Duration) DatastoreOption {
	return func(d *Datastore) { d.initTimeout = timeout }
}

// WithDatastoreLogger sets the logger of the datastore.
func WithDatastoreLogger(logger logging.Logger) DatastoreOption {
	return func(d *Datastore) { d.logger = logger }
}

// Datastore opens the Listen and Write streams of one database, attaching
// credentials to them.
type Datastore struct {
	conn        *grpc.ClientConn
	client      api.DatastoreClient
	serializer  *converter.Serializer
	auth        credentials.Provider
	appCheck    credentials.Provider
	initTimeout time.Duration
	logger      logging.Logger
}

// Dial creates a datastore connected to target.
func Dial(
	target string,
	databaseID key.DatabaseID,
	auth credentials.Provider,
	dialOptions []grpc.DialOption,
	opts ...DatastoreOption,
) (*Datastore, error) {
	conn, err := grpc.NewClient(target, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	d := NewDatastore(conn, databaseID, auth, opts...)
	d.conn = conn
	return d, nil
}

// NewDatastore creates a datastore over an existing connection, which the
// datastore does not own.
func NewDatastore(
	cc grpc.ClientConnInterface,
	databaseID key.DatabaseID,
	auth credentials.Provider,
	opts ...DatastoreOption,
) *Datastore {
	d := &Datastore{
		client:      api.NewDatastoreClient(cc),
		serializer:  converter.NewSerializer(databaseID),
		auth:        auth,
		appCheck:    credentials.Empty{},
		initTimeout: DefaultStreamInitTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.auth == nil {
		d.auth = credentials.Empty{}
	}
	if d.logger == nil {
		d.logger = logging.New("datastore")
	}
	return d
}

// Serializer returns the serializer of the database.
func (d *Datastore) Serializer() *converter.Serializer {
	return d.serializer
}

// Close closes the connection if the datastore dialed it.
func (d *Datastore) Close() error {
	if d.conn == nil {
		return nil
	}
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}

// invalidateTokens makes the next streams fetch fresh tokens.
func (d *Datastore) invalidateTokens() {
	d.auth.InvalidateToken()
	d.appCheck.InvalidateToken()
}

// tokens are the credentials a stream is opened with.
type tokens struct {
	auth     *credentials.Token
	appCheck *credentials.Token
}

// fetchTokens fetches the auth and app check tokens concurrently.
func (d *Datastore) fetchTokens(ctx context.Context) (tokens, error) {
	var t tokens
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		token, err := d.auth.GetToken(gctx, false)
		if err != nil {
			return fmt.Errorf("fetch auth token: %w", err)
		}
		t.auth = token
		return nil
	})
	g.Go(func() error {
		token, err := d.appCheck.GetToken(gctx, false)
		if err != nil {
			return fmt.Errorf("fetch app check token: %w", err)
		}
		t.appCheck = token
		return nil
	})
	if err := g.Wait(); err != nil {
		return tokens{}, err
	}
	return t, nil
}

func (d *Datastore) outgoingContext(ctx context.Context, t tokens) context.Context {
	pairs := []string{resourcePrefixKey, d.serializer.DatabaseName()}
	if t.auth != nil {
		pairs = append(pairs, authorizationKey, "Bearer "+t.auth.Value)
	}
	if t.appCheck != nil {
		pairs = append(pairs, appCheckKey, t.appCheck.Value)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func (d *Datastore) openListen(ctx context.Context, t tokens) (api.DatastoreListenClient, context.CancelFunc, error) {
	return openStream(d.outgoingContext(ctx, t), d.initTimeout, func(ctx context.Context) (api.DatastoreListenClient, error) {
		return d.client.Listen(ctx)
	})
}

func (d *Datastore) openWrite(ctx context.Context, t tokens) (api.DatastoreWriteClient, context.CancelFunc, error) {
	return openStream(d.outgoingContext(ctx, t), d.initTimeout, func(ctx context.Context) (api.DatastoreWriteClient, error) {
		return d.client.Write(ctx)
	})
}

// openStream opens a stream living until the returned function is called.
// It fails with ErrStreamInit when the stream is not open after timeout.
func openStream[S any](
	ctx context.Context,
	timeout time.Duration,
	open func(ctx context.Context) (S, error),
) (S, context.CancelFunc, error) {
	type result struct {
		stream S
		err    error
	}

	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan result, 1)
	go func() {
		stream, err := open(streamCtx)
		done <- result{stream: stream, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero S
	select {
	case r := <-done:
		if r.err != nil {
			cancel()
			return zero, nil, streamError(r.err)
		}
		return r.stream, cancel, nil
	case <-timer.C:
		cancel()
		return zero, nil, fmt.Errorf("open stream after %s: %w", timeout, ErrStreamInit)
	case <-ctx.Done():
		cancel()
		return zero, nil, errors.Canceled(ctx.Err().Error())
	}
}

// streamError converts an error received on a stream.
func streamError(err error) error {
	if err == io.EOF {
		return ErrStreamClosed
	}
	return converter.FromStatus(err)
}
