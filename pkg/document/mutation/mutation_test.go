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

package mutation_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
)

var (
	docKey    = key.MustParse("rooms/a")
	writeTime = time.Timestamp{Seconds: 100}
)

func obj(m value.Map) value.ObjectValue {
	return value.NewObject(m)
}

func path(p string) value.FieldPath {
	return value.ParseFieldPath(p)
}

func remoteDoc(data value.Map) *document.MutableDocument {
	return document.NewFoundDocument(docKey, time.VersionOf(1, 0), obj(data))
}

func TestApplyToLocalView(t *testing.T) {
	t.Run("set test", func(t *testing.T) {
		doc := remoteDoc(value.Map{"a": value.Integer(1)})
		set := mutation.NewSet(docKey, obj(value.Map{"b": value.Integer(2)}), mutation.NoPrecondition)

		mask := mutation.ApplyToLocalView(set, doc, mutation.NewFieldMask(), writeTime)
		assert.Nil(t, mask)
		assert.True(t, doc.HasLocalMutations())
		assert.True(t, doc.Version().IsMin())
		assert.True(t, doc.Data().Equal(obj(value.Map{"b": value.Integer(2)})))
	})

	t.Run("patch test", func(t *testing.T) {
		doc := remoteDoc(value.Map{"a": value.Integer(1), "n": value.Map{"x": value.Integer(1), "y": value.Integer(2)}})
		patch := mutation.NewPatch(
			docKey,
			obj(value.Map{"b": value.Integer(2)}),
			mutation.NewFieldMask(path("b"), path("n.y")),
			mutation.ExistsPrecondition(true),
		)

		mask := mutation.ApplyToLocalView(patch, doc, mutation.NewFieldMask(), writeTime)
		require.NotNil(t, mask)
		assert.Equal(t, 2, mask.Len())
		assert.True(t, doc.Data().Equal(obj(value.Map{
			"a": value.Integer(1),
			"b": value.Integer(2),
			"n": value.Map{"x": value.Integer(1)},
		})))
	})

	t.Run("failed precondition test", func(t *testing.T) {
		doc := document.NewNoDocument(docKey, time.VersionOf(1, 0))
		patch := mutation.NewPatch(docKey, obj(value.Map{"b": value.Integer(2)}),
			mutation.NewFieldMask(path("b")), mutation.ExistsPrecondition(true))

		previous := mutation.NewFieldMask(path("z"))
		mask := mutation.ApplyToLocalView(patch, doc, previous, writeTime)
		assert.Equal(t, previous, mask)
		assert.True(t, doc.IsNoDocument())
		assert.False(t, doc.HasLocalMutations())
	})

	t.Run("delete test", func(t *testing.T) {
		doc := remoteDoc(value.Map{"a": value.Integer(1)})
		mutation.ApplyToLocalView(mutation.NewDelete(docKey, mutation.NoPrecondition), doc, nil, writeTime)
		assert.True(t, doc.IsNoDocument())
		assert.True(t, doc.HasLocalMutations())
	})

	t.Run("transforms test", func(t *testing.T) {
		doc := remoteDoc(value.Map{
			"count": value.Integer(math.MaxInt64 - 1),
			"tags":  value.Array{value.String("a"), value.String("b")},
			"ratio": value.Double(0.5),
		})
		patch := mutation.NewPatch(docKey, value.EmptyObject(), mutation.NewFieldMask(), mutation.NoPrecondition,
			mutation.FieldTransform{Field: path("count"), Operation: mutation.NumericIncrement{Operand: value.Integer(5)}},
			mutation.FieldTransform{Field: path("ratio"), Operation: mutation.NumericIncrement{Operand: value.Integer(1)}},
			mutation.FieldTransform{Field: path("tags"), Operation: mutation.ArrayUnion{Elements: []value.Value{value.String("b"), value.String("c")}}},
			mutation.FieldTransform{Field: path("gone"), Operation: mutation.ArrayRemove{Elements: []value.Value{value.String("x")}}},
			mutation.FieldTransform{Field: path("at"), Operation: mutation.ServerTimestamp{}},
			mutation.FieldTransform{Field: path("fresh"), Operation: mutation.NumericIncrement{Operand: value.Integer(3)}},
		)
		mutation.ApplyToLocalView(patch, doc, mutation.NewFieldMask(), writeTime)

		expect := map[string]value.Value{
			"count": value.Integer(math.MaxInt64),
			"ratio": value.Double(1.5),
			"tags":  value.Array{value.String("a"), value.String("b"), value.String("c")},
			"gone":  value.Array{},
			"at":    value.ServerTimestamp{LocalWriteTime: writeTime},
			"fresh": value.Integer(3),
		}
		for field, want := range expect {
			got, ok := doc.Field(path(field))
			require.True(t, ok, field)
			assert.True(t, value.Equal(want, got), field)
		}
	})
}

func TestApplyToRemoteDocument(t *testing.T) {
	commit := time.VersionOf(5, 0)

	t.Run("set is synced test", func(t *testing.T) {
		doc := document.NewInvalidDocument(docKey)
		set := mutation.NewSet(docKey, obj(value.Map{"a": value.Integer(1)}), mutation.NoPrecondition,
			mutation.FieldTransform{Field: path("at"), Operation: mutation.ServerTimestamp{}})
		mutation.ApplyToRemoteDocument(set, doc, mutation.Result{
			Version:          commit,
			TransformResults: []value.Value{value.Timestamp{Seconds: 5}},
		})

		assert.True(t, doc.IsFoundDocument())
		assert.Equal(t, commit, doc.Version())
		assert.Equal(t, document.StateSynced, doc.State())
		at, _ := doc.Field(path("at"))
		assert.Equal(t, value.Timestamp{Seconds: 5}, at)
	})

	t.Run("patch on missing document test", func(t *testing.T) {
		doc := document.NewInvalidDocument(docKey)
		patch := mutation.NewPatch(docKey, obj(value.Map{"a": value.Integer(1)}),
			mutation.NewFieldMask(path("a")), mutation.ExistsPrecondition(true))
		mutation.ApplyToRemoteDocument(patch, doc, mutation.Result{Version: commit})

		assert.True(t, doc.IsUnknownDocument())
		assert.True(t, doc.HasCommittedMutations())
	})

	t.Run("patch on found document test", func(t *testing.T) {
		doc := remoteDoc(value.Map{"a": value.Integer(1)})
		patch := mutation.NewPatch(docKey, obj(value.Map{"b": value.Integer(2)}),
			mutation.NewFieldMask(path("b")), mutation.ExistsPrecondition(true))
		mutation.ApplyToRemoteDocument(patch, doc, mutation.Result{Version: commit})

		assert.True(t, doc.HasCommittedMutations())
		assert.True(t, doc.Data().Equal(obj(value.Map{"a": value.Integer(1), "b": value.Integer(2)})))
	})

	t.Run("mismatched results test", func(t *testing.T) {
		batch := mutation.NewBatch(1, writeTime, mutation.NewDelete(docKey, mutation.NoPrecondition))
		err := batch.ApplyToRemoteDocument(document.NewInvalidDocument(docKey), &mutation.BatchResult{Batch: batch})
		assert.ErrorIs(t, err, mutation.ErrMismatchedResults)
	})
}

// TestOverlay checks that the overlay computed for a sequence of batches
// reproduces the same local view as applying the batches one by one.
func TestOverlay(t *testing.T) {
	base := value.Map{"a": value.Integer(1), "n": value.Map{"x": value.Integer(1), "y": value.Integer(2)}}
	batches := []*mutation.Batch{
		mutation.NewBatch(1, writeTime, mutation.NewPatch(docKey,
			obj(value.Map{"b": value.Integer(2)}), mutation.NewFieldMask(path("b"), path("n.y")), mutation.NoPrecondition)),
		mutation.NewBatch(2, writeTime, mutation.NewPatch(docKey,
			value.EmptyObject(), mutation.NewFieldMask(), mutation.NoPrecondition,
			mutation.FieldTransform{Field: path("a"), Operation: mutation.NumericIncrement{Operand: value.Integer(2)}})),
		mutation.NewBatch(3, writeTime, mutation.NewSet(docKey,
			obj(value.Map{"z": value.Boolean(true)}), mutation.NoPrecondition)),
		mutation.NewBatch(4, writeTime, mutation.NewDelete(docKey, mutation.NoPrecondition)),
	}

	for n := 1; n <= len(batches); n++ {
		folded := remoteDoc(base)
		mask := mutation.NewFieldMask()
		for _, b := range batches[:n] {
			mask = b.ApplyToLocalView(folded, mask)
		}

		overlay := mutation.CalculateOverlayMutation(folded, mask)
		require.NotNil(t, overlay)

		replayed := remoteDoc(base)
		mutation.ApplyToLocalView(overlay, replayed, mutation.NewFieldMask(), writeTime)

		assert.Equal(t, folded.Type(), replayed.Type(), "batches %d", n)
		assert.True(t, folded.Data().Equal(replayed.Data()), "batches %d", n)
	}

	t.Run("no overlay without local mutations test", func(t *testing.T) {
		assert.Nil(t, mutation.CalculateOverlayMutation(remoteDoc(base), nil))
	})

	t.Run("overlays of local document set test", func(t *testing.T) {
		docs := map[string]*mutation.OverlayedDocument{
			docKey.String(): {Document: document.NewInvalidDocument(docKey)},
		}
		update := mutation.NewBatch(5, writeTime, mutation.NewPatch(docKey,
			obj(value.Map{"b": value.Integer(2)}), mutation.NewFieldMask(path("b")), mutation.ExistsPrecondition(true)))
		overlays := update.ApplyToLocalDocumentSet(docs, document.NewKeySet())
		assert.Empty(t, overlays)
		assert.True(t, docs[docKey.String()].Document.IsNoDocument())

		docs[docKey.String()] = &mutation.OverlayedDocument{Document: document.NewInvalidDocument(docKey)}
		overlays = batches[2].ApplyToLocalDocumentSet(docs, document.NewKeySet(docKey))
		require.Contains(t, overlays, docKey.String())
		_, isSet := overlays[docKey.String()].(*mutation.Set)
		assert.True(t, isSet)
	})
}

func TestKindOf(t *testing.T) {
	t.Run("kind names test", func(t *testing.T) {
		assert.Equal(t, "set", mutation.KindOf(mutation.NewSet(docKey, obj(nil), mutation.NoPrecondition)))
		assert.Equal(t, "patch", mutation.KindOf(mutation.NewPatch(docKey, obj(nil), mutation.NewFieldMask(), mutation.NoPrecondition)))
		assert.Equal(t, "delete", mutation.KindOf(mutation.NewDelete(docKey, mutation.NoPrecondition)))
		assert.Equal(t, "verify", mutation.KindOf(mutation.NewVerify(docKey, mutation.ExistsPrecondition(true))))
	})
}
