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
	"time"

	"github.com/yorkie-team/docsync/async"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/metrics/prometheus"
	"github.com/yorkie-team/docsync/pkg/errors"
)

const (
	// idleTimeout is how long a stream without requests stays open.
	idleTimeout = 60 * time.Second

	// healthyThreshold is how long a stream must stay open before an
	// unauthenticated error no longer invalidates the tokens.
	healthyThreshold = 10 * time.Second
)

// StreamState is the state of a persistent stream.
//
//	Initial -> Starting -> Open -> Healthy
//	   ^          |         |        |
//	   |          +----> Error <-----+
//	   |                   |
//	   +--- Backoff <------+
//
// Stop moves any state back to Initial.
type StreamState int

// The states of a persistent stream.
const (
	StreamInitial StreamState = iota
	StreamStarting
	StreamOpen
	StreamHealthy
	StreamError
	StreamBackoff
)

// String returns the name of the state.
func (s StreamState) String() string {
	switch s {
	case StreamInitial:
		return "initial"
	case StreamStarting:
		return "starting"
	case StreamOpen:
		return "open"
	case StreamHealthy:
		return "healthy"
	case StreamError:
		return "error"
	case StreamBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// bidiStream is the client side of a bidirectional gRPC stream.
type bidiStream[Req, Resp any] interface {
	Send(*Req) error
	Recv() (*Resp, error)
	CloseSend() error
}

// streamCallbacks are run on the queue.
type streamCallbacks[Resp any] struct {
	onOpen    func(ctx context.Context) error
	onMessage func(ctx context.Context, resp *Resp) error
	onClose   func(ctx context.Context, err error) error
}

// persistentStream keeps a stream to the backend open, reopening it with
// backoff when it fails. Every method must run on the queue.
//
// Each open attempt is tagged with the current epoch. Closing the stream
// advances the epoch, so that results of the attempt and messages of the
// closed stream arriving later are dropped.
type persistentStream[Req, Resp any] struct {
	name        string
	queue       *async.Queue
	datastore   *Datastore
	open        func(ctx context.Context, t tokens) (bidiStream[Req, Resp], context.CancelFunc, error)
	callbacks   streamCallbacks[Resp]
	idleTimerID async.TimerID
	backoff     *async.Backoff
	logger      logging.Logger
	metrics     *prometheus.Metrics

	state       StreamState
	epoch       uint64
	rpc         bidiStream[Req, Resp]
	cancel      context.CancelFunc
	idleTimer   *async.DelayedOperation
	healthTimer *async.DelayedOperation
}

func newPersistentStream[Req, Resp any](
	name string,
	queue *async.Queue,
	datastore *Datastore,
	idleTimerID async.TimerID,
	backoffTimerID async.TimerID,
	metrics *prometheus.Metrics,
) *persistentStream[Req, Resp] {
	return &persistentStream[Req, Resp]{
		name:        name,
		queue:       queue,
		datastore:   datastore,
		idleTimerID: idleTimerID,
		backoff:     async.NewBackoff(queue, backoffTimerID),
		logger:      logging.New("stream").With("stream", name),
		metrics:     metrics,
	}
}

// State returns the state of the stream.
func (s *persistentStream[Req, Resp]) State() StreamState {
	return s.state
}

// IsStarted returns whether Start was called and the stream was not
// stopped or failed since.
func (s *persistentStream[Req, Resp]) IsStarted() bool {
	return s.state == StreamStarting || s.state == StreamBackoff || s.IsOpen()
}

// IsOpen returns whether the stream can send requests.
func (s *persistentStream[Req, Resp]) IsOpen() bool {
	return s.state == StreamOpen || s.state == StreamHealthy
}

// Start opens the stream. A stream that failed waits for the backoff
// delay first.
func (s *persistentStream[Req, Resp]) Start(ctx context.Context) {
	if s.state == StreamError {
		s.performBackoff()
		return
	}
	s.auth(ctx)
}

// auth fetches tokens and opens the stream off the queue, then finishes
// the start on the queue if the attempt is still current.
func (s *persistentStream[Req, Resp]) auth(ctx context.Context) {
	s.state = StreamStarting
	epoch := s.epoch

	go func() {
		var rpc bidiStream[Req, Resp]
		var cancel context.CancelFunc
		t, err := s.datastore.fetchTokens(ctx)
		if err == nil {
			rpc, cancel, err = s.open(ctx, t)
		}

		s.queue.Enqueue(func(ctx context.Context) error {
			if epoch != s.epoch {
				if cancel != nil {
					cancel()
				}
				return nil
			}
			if err != nil {
				return s.handleStreamClose(ctx, err)
			}
			return s.onStreamOpen(ctx, epoch, rpc, cancel)
		})
	}()
}

func (s *persistentStream[Req, Resp]) onStreamOpen(
	ctx context.Context,
	epoch uint64,
	rpc bidiStream[Req, Resp],
	cancel context.CancelFunc,
) error {
	s.rpc = rpc
	s.cancel = cancel
	s.state = StreamOpen
	s.backoff.Reset()
	s.metrics.AddStreamOpen(s.name)
	s.logger.Debug("stream opened")

	s.healthTimer = s.queue.EnqueueAfterDelay(async.TimerHealthCheckTimeout, healthyThreshold, func(context.Context) error {
		s.healthTimer = nil
		if s.IsOpen() {
			s.state = StreamHealthy
		}
		return nil
	})

	go s.receive(epoch, rpc)
	return s.callbacks.onOpen(ctx)
}

// receive posts the messages of rpc to the queue until it fails.
func (s *persistentStream[Req, Resp]) receive(epoch uint64, rpc bidiStream[Req, Resp]) {
	for {
		resp, err := rpc.Recv()
		if err != nil {
			s.queue.Enqueue(func(ctx context.Context) error {
				if epoch != s.epoch {
					return nil
				}
				return s.handleStreamClose(ctx, streamError(err))
			})
			return
		}

		s.queue.Enqueue(func(ctx context.Context) error {
			if epoch != s.epoch {
				return nil
			}
			return s.callbacks.onMessage(ctx, resp)
		})
	}
}

func (s *persistentStream[Req, Resp]) performBackoff() {
	s.state = StreamBackoff
	s.backoff.BackoffAndRun(func(ctx context.Context) error {
		s.state = StreamInitial
		s.Start(ctx)
		return nil
	})
}

func (s *persistentStream[Req, Resp]) handleStreamClose(ctx context.Context, err error) error {
	s.logger.Debugf("stream closed: %v", err)
	return s.close(ctx, StreamError, err)
}

// close closes the stream, moving it to finalState, and notifies the
// listener. err is nil unless finalState is StreamError.
func (s *persistentStream[Req, Resp]) close(ctx context.Context, finalState StreamState, err error) error {
	s.cancelIdleCheck()
	if s.healthTimer != nil {
		s.healthTimer.Cancel()
		s.healthTimer = nil
	}
	s.backoff.Cancel()
	s.epoch++

	switch {
	case finalState != StreamError:
		s.backoff.Reset()
	case errors.IsStatus(err, errors.ErrCodeResourceExhausted):
		s.logger.Debugf("resource exhausted, using maximum backoff: %v", err)
		s.backoff.ResetToMax()
	case errors.IsStatus(err, errors.ErrCodeUnauthenticated) && s.state != StreamHealthy:
		// The tokens were likely rejected rather than expired mid-stream.
		s.datastore.invalidateTokens()
	}
	if finalState == StreamError {
		s.metrics.AddStreamFailure(s.name, errors.StatusOf(err).String())
	}

	if s.rpc != nil {
		if closeErr := s.rpc.CloseSend(); closeErr != nil {
			s.logger.Debugf("close send: %v", closeErr)
		}
		s.cancel()
		s.rpc = nil
		s.cancel = nil
	}

	s.state = finalState
	return s.callbacks.onClose(ctx, err)
}

// Stop closes the stream without an error.
func (s *persistentStream[Req, Resp]) Stop(ctx context.Context) error {
	if !s.IsStarted() {
		return nil
	}
	return s.close(ctx, StreamInitial, nil)
}

// InhibitBackoff makes the next Start open the stream immediately.
func (s *persistentStream[Req, Resp]) InhibitBackoff() {
	s.state = StreamInitial
	s.backoff.Reset()
}

// MarkIdle closes the open stream if no request is sent for a while.
func (s *persistentStream[Req, Resp]) MarkIdle() {
	if !s.IsOpen() || s.idleTimer != nil {
		return
	}
	s.idleTimer = s.queue.EnqueueAfterDelay(s.idleTimerID, idleTimeout, func(ctx context.Context) error {
		s.idleTimer = nil
		if s.IsOpen() {
			return s.close(ctx, StreamInitial, nil)
		}
		return nil
	})
}

func (s *persistentStream[Req, Resp]) cancelIdleCheck() {
	if s.idleTimer != nil {
		s.idleTimer.Cancel()
		s.idleTimer = nil
	}
}

// send sends req on the open stream. Send errors are reported by the
// receiving side of the stream.
func (s *persistentStream[Req, Resp]) send(req *Req) {
	s.cancelIdleCheck()
	if err := s.rpc.Send(req); err != nil {
		s.logger.Debugf("send: %v", err)
	}
}
