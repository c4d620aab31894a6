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
	"strconv"
	"sync/atomic"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"

	"github.com/yorkie-team/docsync/internal/logging"
)

type streamID int32

func (c *streamID) next() string {
	next := atomic.AddInt32((*int32)(c), 1)
	return "s" + strconv.Itoa(int(next))
}

// LoggingInterceptor attaches a logger named after each stream to the
// stream context and logs how streams end.
type LoggingInterceptor struct {
	logger   logging.Logger
	streamID streamID
}

// NewLoggingInterceptor creates a new instance of LoggingInterceptor.
func NewLoggingInterceptor(logger logging.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{logger: logger}
}

// Stream creates a stream client interceptor for stream logging.
func (i *LoggingInterceptor) Stream() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		streamLogger := i.logger.Named(i.streamID.next())
		stream, err := streamer(logging.With(ctx, streamLogger), desc, cc, method, opts...)
		if err != nil {
			streamLogger.Debugf("open %s: %v", method, err)
			return nil, err
		}
		streamLogger.Debugf("opened %s", method)
		return &loggedStream{ClientStream: stream, logger: streamLogger}, nil
	}
}

type loggedStream struct {
	grpc.ClientStream
	logger logging.Logger
	closed atomic.Bool
}

func (s *loggedStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil && s.closed.CompareAndSwap(false, true) {
		s.logger.Debugf("closed: %v", err)
	}
	return err
}

// ChainStreamInterceptors returns the dial option installing the given
// stream interceptors in order. Nil interceptors are skipped.
func ChainStreamInterceptors(interceptors ...grpc.StreamClientInterceptor) grpc.DialOption {
	var chain []grpc.StreamClientInterceptor
	for _, interceptor := range interceptors {
		if interceptor != nil {
			chain = append(chain, interceptor)
		}
	}
	return grpc.WithStreamInterceptor(grpcmiddleware.ChainStreamClient(chain...))
}

