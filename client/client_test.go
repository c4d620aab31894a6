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
package client_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/client"
	"github.com/yorkie-team/docsync/credentials"
	"github.com/yorkie-team/docsync/internal/logging"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
	"github.com/yorkie-team/docsync/remote/remotetest"
)

const projectID = "docsync-test"

func newClient(t *testing.T, server *remotetest.Server, opts ...client.Option) *client.Client {
	t.Helper()

	conf := client.NewConfig("bufnet", projectID)
	opts = append([]client.Option{
		client.WithConn(server.Dial(t)),
		client.WithLogger(logging.Nop()),
	}, opts...)

	cli, err := client.Dial(context.Background(), conf, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, cli.Close(context.Background()))
	})
	return cli
}

func set(t *testing.T, path string, data map[string]any) mutation.Mutation {
	t.Helper()
	obj, err := value.ObjectFrom(data)
	require.NoError(t, err)
	return mutation.NewSet(key.MustParse(path), obj, mutation.NoPrecondition)
}

type snapshots struct {
	ch     chan *client.Snapshot
	errors chan error
}

func listen(t *testing.T, cli *client.Client, q *query.Query, opts client.ListenOptions) (string, *snapshots) {
	t.Helper()
	s := &snapshots{ch: make(chan *client.Snapshot, 16), errors: make(chan error, 1)}
	id, err := cli.Listen(context.Background(), q, opts,
		func(snap *client.Snapshot) { s.ch <- snap },
		func(err error) { s.errors <- err },
	)
	require.NoError(t, err)
	return id, s
}

func (s *snapshots) next(t *testing.T) *client.Snapshot {
	t.Helper()
	select {
	case snap := <-s.ch:
		return snap
	case err := <-s.errors:
		require.FailNow(t, "listen failed", err.Error())
	case <-gotime.After(remotetest.Timeout):
		require.FailNow(t, "no snapshot raised")
	}
	return nil
}

func (s *snapshots) none(t *testing.T) {
	t.Helper()
	select {
	case snap := <-s.ch:
		require.FailNowf(t, "unexpected snapshot", "%d documents", snap.Documents.Len())
	case <-gotime.After(100 * gotime.Millisecond):
	}
}

func keysOf(snap *client.Snapshot) []string {
	var keys []string
	snap.Documents.Each(func(doc *document.MutableDocument) bool {
		keys = append(keys, doc.Key().String())
		return true
	})
	return keys
}

func TestClientOffline(t *testing.T) {
	rooms := query.NewQuery(key.ParsePath("rooms"))

	t.Run("write while offline is visible at once test", func(t *testing.T) {
		cli := newClient(t, remotetest.NewServer(t), client.WithStartOffline())

		acked := make(chan error, 1)
		require.NoError(t, cli.WriteAsync(context.Background(), []mutation.Mutation{
			set(t, "rooms/a", map[string]any{"name": "a"}),
		}, func(err error) { acked <- err }))

		_, s := listen(t, cli, rooms, client.ListenOptions{IncludeMetadataChanges: true})
		snap := s.next(t)
		assert.Equal(t, []string{"rooms/a"}, keysOf(snap))
		assert.True(t, snap.FromCache)
		assert.True(t, snap.HasPendingWrites())

		doc, err := cli.GetDocumentFromCache(context.Background(), key.MustParse("rooms/a"))
		require.NoError(t, err)
		assert.True(t, doc.IsFoundDocument())
		assert.True(t, doc.HasLocalMutations())

		select {
		case err := <-acked:
			require.FailNowf(t, "write settled while offline", "%v", err)
		case <-gotime.After(100 * gotime.Millisecond):
		}
	})

	t.Run("cache reads test", func(t *testing.T) {
		cli := newClient(t, remotetest.NewServer(t), client.WithStartOffline())
		ctx := context.Background()

		_, err := cli.GetDocumentFromCache(ctx, key.MustParse("rooms/a"))
		assert.ErrorIs(t, err, client.ErrDocumentNotInCache)
		assert.True(t, errors.IsStatus(err, errors.ErrCodeUnavailable))

		require.NoError(t, cli.WriteAsync(ctx, []mutation.Mutation{
			set(t, "rooms/b", map[string]any{"n": 2}),
			set(t, "rooms/a", map[string]any{"n": 1}),
			set(t, "users/a", map[string]any{"n": 3}),
		}, nil))

		snap, err := cli.GetDocumentsFromCache(ctx, rooms)
		require.NoError(t, err)
		assert.Equal(t, []string{"rooms/a", "rooms/b"}, keysOf(snap))
		assert.True(t, snap.FromCache)
		assert.Len(t, snap.DocChanges, 2)

		require.NoError(t, cli.WriteAsync(ctx, []mutation.Mutation{
			mutation.NewDelete(key.MustParse("rooms/a"), mutation.NoPrecondition),
		}, nil))
		doc, err := cli.GetDocumentFromCache(ctx, key.MustParse("rooms/a"))
		require.NoError(t, err)
		assert.True(t, doc.IsNoDocument())
	})

	t.Run("user change switches pending writes test", func(t *testing.T) {
		auth := credentials.NewStatic("alice-token", credentials.User{UID: "alice"})
		cli := newClient(t, remotetest.NewServer(t), client.WithStartOffline(), client.WithCredentials(auth))
		ctx := context.Background()
		k := key.MustParse("rooms/a")

		require.NoError(t, cli.WriteAsync(ctx, []mutation.Mutation{set(t, "rooms/a", map[string]any{"by": "alice"})}, nil))
		_, err := cli.GetDocumentFromCache(ctx, k)
		require.NoError(t, err)

		auth.SetToken("bob-token", credentials.User{UID: "bob"})
		_, err = cli.GetDocumentFromCache(ctx, k)
		assert.ErrorIs(t, err, client.ErrDocumentNotInCache)

		auth.SetToken("alice-token", credentials.User{UID: "alice"})
		doc, err := cli.GetDocumentFromCache(ctx, k)
		require.NoError(t, err)
		assert.True(t, doc.HasLocalMutations())
	})

	t.Run("unlisten stops snapshots test", func(t *testing.T) {
		cli := newClient(t, remotetest.NewServer(t), client.WithStartOffline())
		ctx := context.Background()

		id, s := listen(t, cli, rooms, client.ListenOptions{})
		assert.Empty(t, keysOf(s.next(t)))

		require.NoError(t, cli.Unlisten(ctx, id))
		require.NoError(t, cli.WriteAsync(ctx, []mutation.Mutation{set(t, "rooms/a", map[string]any{"n": 1})}, nil))
		s.none(t)

		// Unlistening twice has no effect.
		assert.NoError(t, cli.Unlisten(ctx, id))
	})

	t.Run("closed client test", func(t *testing.T) {
		conf := client.NewConfig("bufnet", projectID)
		server := remotetest.NewServer(t)
		cli, err := client.Dial(context.Background(), conf,
			client.WithConn(server.Dial(t)), client.WithStartOffline(), client.WithLogger(logging.Nop()))
		require.NoError(t, err)

		require.NoError(t, cli.Close(context.Background()))
		assert.NoError(t, cli.Close(context.Background()))

		err = cli.WriteAsync(context.Background(), []mutation.Mutation{set(t, "rooms/a", nil)}, nil)
		assert.ErrorIs(t, err, client.ErrClientClosed)
		_, err = cli.Listen(context.Background(), rooms, client.ListenOptions{}, nil, nil)
		assert.ErrorIs(t, err, client.ErrClientClosed)
	})
}

func TestClientOnline(t *testing.T) {
	databaseID := key.NewDatabaseID(projectID, "")
	serializer := converter.NewSerializer(databaseID)

	t.Run("listen receives documents of the backend test", func(t *testing.T) {
		server := remotetest.NewServer(t)
		cli := newClient(t, server)
		rooms := query.NewQuery(key.ParsePath("rooms"))
		_, s := listen(t, cli, rooms, client.ListenOptions{})

		stream := server.NextListen(t)
		req := stream.NextRequest(t)
		require.NotNil(t, req.AddTarget)
		targetID := req.AddTarget.TargetID

		obj, err := value.ObjectFrom(map[string]any{"name": "a"})
		require.NoError(t, err)
		doc := document.NewFoundDocument(key.MustParse("rooms/a"), time.VersionOf(5, 0), obj)

		stream.Send(t, &api.ListenResponse{TargetChange: &api.TargetChange{
			TargetChangeType: api.TargetChangeAdd, TargetIDs: []int32{targetID},
		}})
		stream.Send(t, &api.ListenResponse{DocumentChange: &api.DocumentChange{
			Document: serializer.ToDocument(doc), TargetIDs: []int32{targetID},
		}})
		stream.Send(t, &api.ListenResponse{TargetChange: &api.TargetChange{
			TargetChangeType: api.TargetChangeCurrent, TargetIDs: []int32{targetID}, ResumeToken: []byte("r1"),
		}})
		stream.Send(t, &api.ListenResponse{TargetChange: &api.TargetChange{
			TargetChangeType: api.TargetChangeNoChange, ReadTime: &api.Timestamp{Seconds: 10},
		}})

		snap := s.next(t)
		assert.Equal(t, []string{"rooms/a"}, keysOf(snap))
		assert.False(t, snap.FromCache)
		assert.False(t, snap.HasPendingWrites())
	})

	t.Run("write is acknowledged test", func(t *testing.T) {
		server := remotetest.NewServer(t)
		cli := newClient(t, server)
		ctx := context.Background()

		acked := make(chan error, 1)
		require.NoError(t, cli.WriteAsync(ctx, []mutation.Mutation{
			set(t, "rooms/a", map[string]any{"name": "a"}),
		}, func(err error) { acked <- err }))

		stream := server.NextWrite(t)
		handshake := stream.NextRequest(t)
		assert.Equal(t, databaseID.Name(), handshake.Database)
		stream.Send(t, &api.WriteResponse{StreamToken: []byte("s1")})

		req := stream.NextRequest(t)
		require.Len(t, req.Writes, 1)
		assert.Equal(t, databaseID.DocumentName(key.MustParse("rooms/a")), req.Writes[0].Update.Name)
		stream.Send(t, &api.WriteResponse{
			StreamToken:  []byte("s2"),
			WriteResults: []*api.WriteResult{{UpdateTime: &api.Timestamp{Seconds: 20}}},
			CommitTime:   &api.Timestamp{Seconds: 20},
		})

		select {
		case err := <-acked:
			assert.NoError(t, err)
		case <-gotime.After(remotetest.Timeout):
			require.FailNow(t, "write was not acknowledged")
		}

		waitCtx, cancel := context.WithTimeout(ctx, remotetest.Timeout)
		defer cancel()
		assert.NoError(t, cli.WaitForPendingWrites(waitCtx))
	})

	t.Run("rejected write is reverted test", func(t *testing.T) {
		server := remotetest.NewServer(t)
		cli := newClient(t, server)
		ctx, cancel := context.WithTimeout(context.Background(), remotetest.Timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- cli.Write(ctx, set(t, "rooms/a", map[string]any{"name": "a"}))
		}()

		stream := server.NextWrite(t)
		stream.NextRequest(t)
		stream.Send(t, &api.WriteResponse{StreamToken: []byte("s1")})
		stream.NextRequest(t)
		stream.Fail(status.Error(codes.PermissionDenied, "denied"))

		err := <-done
		assert.True(t, errors.IsStatus(err, errors.ErrCodePermissionDenied))

		_, err = cli.GetDocumentFromCache(ctx, key.MustParse("rooms/a"))
		assert.ErrorIs(t, err, client.ErrDocumentNotInCache)
	})
}

func TestConfig(t *testing.T) {
	t.Run("validate test", func(t *testing.T) {
		conf := client.NewConfig("localhost:8080", projectID)
		assert.NoError(t, conf.Validate())
		assert.Equal(t, 15*gotime.Second, conf.ParseStreamInitTimeout())
		assert.Equal(t, "projects/docsync-test/databases/(default)", conf.DatabaseID().Name())

		conf.ProjectID = "Invalid Project"
		assert.Error(t, conf.Validate())

		conf = client.NewConfig("localhost:8080", projectID)
		conf.GarbageCollector = "never"
		assert.Error(t, conf.Validate())

		conf = client.NewConfig("localhost:8080", projectID)
		conf.StreamInitTimeout = "soon"
		assert.Error(t, conf.Validate())

		conf = client.NewConfig("", projectID)
		assert.Error(t, conf.Validate())
	})

	t.Run("config file test", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docsync.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"Address: localhost:9090\nProjectID: my-project\nGarbageCollector: lru\nRetainedTargets: 10\n",
		), 0o600))

		conf, err := client.NewConfigFromFile(path)
		require.NoError(t, err)
		assert.NoError(t, conf.Validate())
		assert.Equal(t, "localhost:9090", conf.Address)
		assert.Equal(t, client.GCLRU, conf.GarbageCollector)
		assert.Equal(t, 10, conf.RetainedTargets)
		assert.Equal(t, key.DefaultDatabase, conf.Database)
		assert.Equal(t, client.DefaultStreamInitTimeout, conf.StreamInitTimeout)
	})
}
