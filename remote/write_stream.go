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

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/async"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// WriteStreamListener receives the events of a WriteStream on the queue.
type WriteStreamListener interface {
	OnOpen(ctx context.Context) error

	// OnHandshakeComplete is called once the backend answered the
	// handshake; mutations may be written from then on.
	OnHandshakeComplete(ctx context.Context) error

	// OnMutationResult receives the results of the oldest written batch.
	OnMutationResult(ctx context.Context, commitVersion time.SnapshotVersion, results []mutation.Result) error

	// OnClose receives nil when the stream was stopped.
	OnClose(ctx context.Context, err error) error
}

// WriteStream is the persistent Write stream. After opening it, the client
// sends a handshake; the backend answers with a stream token, which every
// later request carries.
type WriteStream struct {
	*persistentStream[api.WriteRequest, api.WriteResponse]
	serializer *converter.Serializer
	listener   WriteStreamListener

	handshakeComplete bool
	lastStreamToken   []byte
}

// NewWriteStream creates a WriteStream. It is opened by Start.
func NewWriteStream(
	queue *async.Queue,
	datastore *Datastore,
	listener WriteStreamListener,
	metrics *prometheus.Metrics,
) *WriteStream {
	s := &WriteStream{
		persistentStream: newPersistentStream[api.WriteRequest, api.WriteResponse](
			"write",
			queue,
			datastore,
			async.TimerWriteStreamIdle,
			async.TimerWriteStreamConnectionBackoff,
			metrics,
		),
		serializer: datastore.Serializer(),
		listener:   listener,
	}
	s.open = func(ctx context.Context, t tokens) (bidiStream[api.WriteRequest, api.WriteResponse], context.CancelFunc, error) {
		return datastore.openWrite(ctx, t)
	}
	s.callbacks = streamCallbacks[api.WriteResponse]{
		onOpen: func(ctx context.Context) error {
			s.handshakeComplete = false
			return listener.OnOpen(ctx)
		},
		onMessage: s.onMessage,
		onClose:   listener.OnClose,
	}
	return s
}

// HandshakeComplete returns whether mutations may be written.
func (s *WriteStream) HandshakeComplete() bool {
	return s.handshakeComplete
}

// LastStreamToken returns the token of the last response.
func (s *WriteStream) LastStreamToken() []byte {
	return s.lastStreamToken
}

// SetLastStreamToken sets the token the next request carries.
func (s *WriteStream) SetLastStreamToken(token []byte) {
	s.lastStreamToken = token
}

// WriteHandshake sends the first request of the stream.
func (s *WriteStream) WriteHandshake() {
	s.send(&api.WriteRequest{Database: s.serializer.DatabaseName()})
}

// WriteMutations sends the mutations of one batch.
func (s *WriteStream) WriteMutations(mutations []mutation.Mutation) error {
	writes, err := s.serializer.ToWrites(mutations)
	if err != nil {
		return fmt.Errorf("encode mutations: %w", err)
	}
	s.send(&api.WriteRequest{
		StreamToken: s.lastStreamToken,
		Writes:      writes,
	})
	return nil
}

func (s *WriteStream) onMessage(ctx context.Context, resp *api.WriteResponse) error {
	s.lastStreamToken = resp.StreamToken

	if !s.handshakeComplete {
		s.handshakeComplete = true
		return s.listener.OnHandshakeComplete(ctx)
	}

	results, err := s.serializer.FromWriteResults(resp.WriteResults, resp.CommitTime)
	if err != nil {
		s.logger.Warnf("undecodable write response: %v", err)
		return s.close(ctx, StreamError, errors.Internal(err.Error()))
	}
	return s.listener.OnMutationResult(ctx, converter.FromVersion(resp.CommitTime), results)
}
