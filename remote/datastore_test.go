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
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/pkg/errors"
)

func TestDatastore(t *testing.T) {
	t.Run("stream init timeout test", func(t *testing.T) {
		// The connection never becomes ready, so the stream cannot open.
		conn, err := grpc.NewClient(
			"passthrough:///unreachable",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()

		d := NewDatastore(conn, testDatabaseID, nil, WithStreamInitTimeout(50*time.Millisecond))
		_, _, err = d.openListen(context.Background(), tokens{})
		assert.ErrorIs(t, err, ErrStreamInit)
		assert.True(t, errors.IsStatus(err, errors.ErrCodeDeadlineExceeded))
		assert.False(t, errors.IsPermanent(err))
	})

	t.Run("token metadata test", func(t *testing.T) {
		auth := credentials.NewStatic("secret", credentials.User{UID: "alice"})
		appCheck := credentials.NewStatic("app", credentials.Unauthenticated)
		d := NewDatastore(nil, testDatabaseID, auth, WithAppCheck(appCheck))

		tk, err := d.fetchTokens(context.Background())
		require.NoError(t, err)
		md, ok := metadata.FromOutgoingContext(d.outgoingContext(context.Background(), tk))
		require.True(t, ok)
		assert.Equal(t, []string{"Bearer secret"}, md.Get(authorizationKey))
		assert.Equal(t, []string{"app"}, md.Get(appCheckKey))
		assert.Equal(t, []string{testDatabaseID.Name()}, md.Get(resourcePrefixKey))

		d.invalidateTokens()
		assert.Equal(t, 1, auth.Invalidated())
		assert.Equal(t, 1, appCheck.Invalidated())
	})

	t.Run("anonymous metadata test", func(t *testing.T) {
		d := NewDatastore(nil, testDatabaseID, nil)
		tk, err := d.fetchTokens(context.Background())
		require.NoError(t, err)
		md, _ := metadata.FromOutgoingContext(d.outgoingContext(context.Background(), tk))
		assert.Empty(t, md.Get(authorizationKey))
		assert.Empty(t, md.Get(appCheckKey))
	})

	t.Run("stream error test", func(t *testing.T) {
		assert.Equal(t, ErrStreamClosed, streamError(io.EOF))

		err := streamError(status.Error(codes.PermissionDenied, "denied"))
		assert.True(t, errors.IsStatus(err, errors.ErrCodePermissionDenied))
		assert.Equal(t, "denied", err.Error())

		plain := fmt.Errorf("plain")
		assert.Equal(t, plain, streamError(plain))
	})
}
