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

package remote_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/remote"
	"github.com/yorkie-team/docsync/remote/remotetest"
)

type methodRecorder struct {
	mu      sync.Mutex
	methods []string
	loggers []bool
}

func (r *methodRecorder) Stream() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		r.mu.Lock()
		r.methods = append(r.methods, method)
		r.loggers = append(r.loggers, logging.From(ctx) != logging.DefaultLogger())
		r.mu.Unlock()
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func TestInterceptors(t *testing.T) {
	t.Run("chained stream interceptors test", func(t *testing.T) {
		server := remotetest.NewServer(t)
		recorder := &methodRecorder{}
		conn := server.Dial(t, remote.ChainStreamInterceptors(
			remote.NewLoggingInterceptor(logging.Nop()).Stream(),
			nil,
			recorder.Stream(),
		))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stream, err := api.NewDatastoreClient(conn).Listen(ctx)
		require.NoError(t, err)
		require.NoError(t, stream.Send(&api.ListenRequest{}))

		accepted := server.NextListen(t)
		accepted.NextRequest(t)

		recorder.mu.Lock()
		defer recorder.mu.Unlock()
		assert.Equal(t, []string{api.DatastoreListenFullMethod}, recorder.methods)
		assert.Equal(t, []bool{true}, recorder.loggers)
	})
}
