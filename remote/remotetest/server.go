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

// Package remotetest provides an in-process Datastore backend that tests
// drive by hand: they receive the requests of each stream and decide what
// the backend answers.
package remotetest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/yorkie-team/docsync/api"
)

const (
	bufSize = 1 << 20

	// Timeout bounds every wait of the helpers.
	Timeout = 5 * time.Second
)

// Server is a fake Datastore backend served over an in-memory listener.
type Server struct {
	listener   *bufconn.Listener
	grpcServer *grpc.Server

	listens chan *Stream[api.ListenRequest, api.ListenResponse]
	writes  chan *Stream[api.WriteRequest, api.WriteResponse]
}

// NewServer starts a server that is stopped when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		listener:   bufconn.Listen(bufSize),
		grpcServer: grpc.NewServer(),
		listens:    make(chan *Stream[api.ListenRequest, api.ListenResponse], 16),
		writes:     make(chan *Stream[api.WriteRequest, api.WriteResponse], 16),
	}
	api.RegisterDatastoreServer(s.grpcServer, s)
	go func() {
		_ = s.grpcServer.Serve(s.listener)
	}()
	t.Cleanup(s.grpcServer.Stop)
	return s
}

// Dial returns a connection to the server, closed when the test ends.
func (s *Server) Dial(t testing.TB, opts ...grpc.DialOption) *grpc.ClientConn {
	opts = append([]grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NextListen waits for the client to open a Listen stream.
func (s *Server) NextListen(t testing.TB) *Stream[api.ListenRequest, api.ListenResponse] {
	return next(t, s.listens, "listen stream")
}

// NextWrite waits for the client to open a Write stream.
func (s *Server) NextWrite(t testing.TB) *Stream[api.WriteRequest, api.WriteResponse] {
	return next(t, s.writes, "write stream")
}

// Listen implements api.DatastoreServer.
func (s *Server) Listen(stream api.DatastoreListenServer) error {
	return serve[api.ListenRequest, api.ListenResponse](stream, s.listens)
}

// Write implements api.DatastoreServer.
func (s *Server) Write(stream api.DatastoreWriteServer) error {
	return serve[api.WriteRequest, api.WriteResponse](stream, s.writes)
}

type serverStream[Req, Resp any] interface {
	Send(*Resp) error
	Recv() (*Req, error)
	Context() context.Context
}

// Stream is one stream opened by the client.
type Stream[Req, Resp any] struct {
	// Metadata holds the headers the stream was opened with.
	Metadata metadata.MD

	stream   serverStream[Req, Resp]
	requests chan *Req
	done     chan error
}

func serve[Req, Resp any](stream serverStream[Req, Resp], accepted chan<- *Stream[Req, Resp]) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	s := &Stream[Req, Resp]{
		Metadata: md,
		stream:   stream,
		requests: make(chan *Req, 64),
		done:     make(chan error, 1),
	}
	accepted <- s

	go func() {
		defer close(s.requests)
		for {
			req, err := stream.Recv()
			if err != nil {
				return
			}
			s.requests <- req
		}
	}()

	select {
	case err := <-s.done:
		return err
	case <-stream.Context().Done():
		return nil
	}
}

// Header returns the first value of the given header.
func (s *Stream[Req, Resp]) Header(key string) string {
	if values := s.Metadata.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

// NextRequest waits for the next request of the client.
func (s *Stream[Req, Resp]) NextRequest(t testing.TB) *Req {
	t.Helper()
	select {
	case req, ok := <-s.requests:
		require.True(t, ok, "stream closed before a request arrived")
		return req
	case <-time.After(Timeout):
		require.FailNow(t, "no request arrived")
		return nil
	}
}

// ExpectNoRequest fails if a request arrives within wait.
func (s *Stream[Req, Resp]) ExpectNoRequest(t testing.TB, wait time.Duration) {
	t.Helper()
	select {
	case req, ok := <-s.requests:
		if ok {
			require.FailNowf(t, "unexpected request", "%+v", req)
		}
	case <-time.After(wait):
	}
}

// WaitClosed waits until the client closed the stream.
func (s *Stream[Req, Resp]) WaitClosed(t testing.TB) {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case _, ok := <-s.requests:
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "stream was not closed")
			return
		}
	}
}

// Send sends resp to the client.
func (s *Stream[Req, Resp]) Send(t testing.TB, resp *Resp) {
	t.Helper()
	require.NoError(t, s.stream.Send(resp))
}

// Fail ends the stream with err, which should be a gRPC status error.
func (s *Stream[Req, Resp]) Fail(err error) {
	s.done <- err
}

func next[T any](t testing.TB, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(Timeout):
		require.FailNowf(t, "timed out", "no %s was opened", what)
		var zero T
		return zero
	}
}
