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
	"github.com/yorkie-team/docsync/persistence"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// listenLabelKey is the request label naming why a target is listened to.
const listenLabelKey = "docsync-listen-tags"

// ListenStreamListener receives the events of a ListenStream on the queue.
type ListenStreamListener interface {
	OnOpen(ctx context.Context) error

	// OnWatchChange receives a decoded message. snapshotVersion is set only
	// for global target changes, which may complete a snapshot.
	OnWatchChange(ctx context.Context, change WatchChange, snapshotVersion time.SnapshotVersion) error

	// OnClose receives nil when the stream was stopped.
	OnClose(ctx context.Context, err error) error
}

// ListenStream is the persistent Listen stream. Targets are added and
// removed over the same stream.
type ListenStream struct {
	*persistentStream[api.ListenRequest, api.ListenResponse]
	serializer *converter.Serializer
	listener   ListenStreamListener
}

// NewListenStream creates a ListenStream. It is opened by Start.
func NewListenStream(
	queue *async.Queue,
	datastore *Datastore,
	listener ListenStreamListener,
	metrics *prometheus.Metrics,
) *ListenStream {
	s := &ListenStream{
		persistentStream: newPersistentStream[api.ListenRequest, api.ListenResponse](
			"listen",
			queue,
			datastore,
			async.TimerListenStreamIdle,
			async.TimerListenStreamConnectionBackoff,
			metrics,
		),
		serializer: datastore.Serializer(),
		listener:   listener,
	}
	s.open = func(ctx context.Context, t tokens) (bidiStream[api.ListenRequest, api.ListenResponse], context.CancelFunc, error) {
		return datastore.openListen(ctx, t)
	}
	s.callbacks = streamCallbacks[api.ListenResponse]{
		onOpen:    listener.OnOpen,
		onMessage: s.onMessage,
		onClose:   listener.OnClose,
	}
	return s
}

// Watch subscribes to the target of data. Its resume token or snapshot
// version let the backend send only what changed since.
func (s *ListenStream) Watch(data *persistence.TargetData) {
	req := &api.ListenRequest{
		Database: s.serializer.DatabaseName(),
		AddTarget: s.serializer.ToTarget(
			data.Target,
			data.TargetID,
			data.ResumeToken,
			data.SnapshotVersion,
			data.ExpectedCount,
		),
	}
	if data.Purpose != persistence.PurposeListen {
		req.Labels = map[string]string{listenLabelKey: data.Purpose.String()}
	}
	s.send(req)
}

// Unwatch unsubscribes from the target.
func (s *ListenStream) Unwatch(targetID int) {
	s.send(&api.ListenRequest{
		Database:     s.serializer.DatabaseName(),
		RemoveTarget: int32(targetID),
	})
}

func (s *ListenStream) onMessage(ctx context.Context, resp *api.ListenResponse) error {
	change, err := s.decode(resp)
	if err != nil {
		s.logger.Warnf("undecodable listen response: %v", err)
		return s.close(ctx, StreamError, errors.Internal(err.Error()))
	}
	return s.listener.OnWatchChange(ctx, change, snapshotVersionOf(resp))
}

// snapshotVersionOf returns the read time of a target change naming no
// targets, which marks a consistent snapshot of every target.
func snapshotVersionOf(resp *api.ListenResponse) time.SnapshotVersion {
	tc := resp.TargetChange
	if tc == nil || len(tc.TargetIDs) > 0 {
		return time.MinVersion
	}
	return converter.FromVersion(tc.ReadTime)
}

func (s *ListenStream) decode(resp *api.ListenResponse) (WatchChange, error) {
	switch {
	case resp.TargetChange != nil:
		return decodeTargetChange(resp.TargetChange)
	case resp.DocumentChange != nil:
		dc := resp.DocumentChange
		doc, err := s.serializer.FromDocument(dc.Document)
		if err != nil {
			return nil, fmt.Errorf("document change: %w", err)
		}
		return &DocumentWatchChange{
			UpdatedTargetIDs: targetIDs(dc.TargetIDs),
			RemovedTargetIDs: targetIDs(dc.RemovedTargetIDs),
			Key:              doc.Key(),
			NewDocument:      doc,
		}, nil
	case resp.DocumentDelete != nil:
		dd := resp.DocumentDelete
		k, err := s.serializer.FromName(dd.Document)
		if err != nil {
			return nil, fmt.Errorf("document delete: %w", err)
		}
		return &DocumentWatchChange{
			RemovedTargetIDs: targetIDs(dd.RemovedTargetIDs),
			Key:              k,
			NewDocument:      document.NewNoDocument(k, converter.FromVersion(dd.ReadTime)),
		}, nil
	case resp.DocumentRemove != nil:
		dr := resp.DocumentRemove
		k, err := s.serializer.FromName(dr.Document)
		if err != nil {
			return nil, fmt.Errorf("document remove: %w", err)
		}
		return &DocumentWatchChange{
			RemovedTargetIDs: targetIDs(dr.RemovedTargetIDs),
			Key:              k,
		}, nil
	case resp.Filter != nil:
		f := resp.Filter
		change := &ExistenceFilterWatchChange{TargetID: int(f.TargetID), Count: int(f.Count)}
		if bf := f.UnchangedNames; bf != nil && bf.Bits != nil {
			change.UnchangedNames = &BloomFilter{
				Bitmap:    bf.Bits.Bitmap,
				Padding:   int(bf.Bits.Padding),
				HashCount: int(bf.HashCount),
			}
		}
		return change, nil
	default:
		return nil, fmt.Errorf("empty listen response")
	}
}

func decodeTargetChange(tc *api.TargetChange) (*TargetWatchChange, error) {
	change := &TargetWatchChange{
		TargetIDs:   targetIDs(tc.TargetIDs),
		ResumeToken: tc.ResumeToken,
	}
	switch tc.TargetChangeType {
	case api.TargetChangeNoChange, "":
		change.State = TargetNoChange
	case api.TargetChangeAdd:
		change.State = TargetAdded
	case api.TargetChangeRemove:
		change.State = TargetRemoved
		if tc.Cause != nil {
			change.Cause = converter.FromTargetCause(tc.Cause.Code, tc.Cause.Message)
		}
	case api.TargetChangeCurrent:
		change.State = TargetCurrent
	case api.TargetChangeReset:
		change.State = TargetReset
	default:
		return nil, fmt.Errorf("unknown target change type %q", tc.TargetChangeType)
	}
	return change, nil
}

func targetIDs(ids []int32) []int {
	if len(ids) == 0 {
		return nil
	}
	converted := make([]int, len(ids))
	for i, id := range ids {
		converted[i] = int(id)
	}
	return converted
}
