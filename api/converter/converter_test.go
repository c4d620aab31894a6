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

package converter_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/api"
	"github.com/yorkie-team/docsync/api/converter"
	"github.com/yorkie-team/docsync/internal/metaerrors"
	"github.com/yorkie-team/docsync/pkg/document"
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/mutation"
	"github.com/yorkie-team/docsync/pkg/document/time"
	"github.com/yorkie-team/docsync/pkg/document/value"
	"github.com/yorkie-team/docsync/pkg/errors"
	"github.com/yorkie-team/docsync/pkg/query"
)

var db = key.NewDatabaseID("p1", "")

func TestConverter(t *testing.T) {
	s := converter.NewSerializer(db)

	t.Run("value round trip test", func(t *testing.T) {
		values := []value.Value{
			value.Null{},
			value.Boolean(true),
			value.Integer(math.MaxInt64),
			value.Double(1.5),
			value.Double(math.Inf(-1)),
			value.Timestamp(time.Timestamp{Seconds: 10, Nanos: 20}),
			value.String("hello"),
			value.Bytes{1, 2, 3},
			value.Reference{DatabaseID: key.NewDatabaseID("other", "db"), Key: key.MustParse("c/d")},
			value.GeoPoint{Latitude: 1, Longitude: -2},
			value.Array{value.Integer(1), value.String("x")},
			value.Vector{1, 2.5},
			value.Map{"a": value.Map{"b": value.Integer(1)}},
			value.ServerTimestamp{
				LocalWriteTime: time.Timestamp{Seconds: 5},
				Previous:       value.Integer(3),
			},
		}

		for _, v := range values {
			encoded, err := api.Codec{}.Marshal(s.ToValue(v))
			require.NoError(t, err)

			decoded := &api.Value{}
			require.NoError(t, api.Codec{}.Unmarshal(encoded, decoded))
			converted, err := s.FromValue(decoded)
			require.NoError(t, err)
			assert.True(t, value.Equal(v, converted), "%v != %v", v, converted)
		}
	})

	t.Run("nan value test", func(t *testing.T) {
		encoded, err := api.Codec{}.Marshal(s.ToValue(value.Double(math.NaN())))
		require.NoError(t, err)

		decoded := &api.Value{}
		require.NoError(t, api.Codec{}.Unmarshal(encoded, decoded))
		converted, err := s.FromValue(decoded)
		require.NoError(t, err)
		assert.True(t, value.IsNaN(converted))
	})

	t.Run("integer keeps full precision test", func(t *testing.T) {
		encoded, err := api.Codec{}.Marshal(s.ToValue(value.Integer(math.MaxInt64)))
		require.NoError(t, err)

		decoded := &api.Value{}
		require.NoError(t, api.Codec{}.Unmarshal(encoded, decoded))
		converted, err := s.FromValue(decoded)
		require.NoError(t, err)
		assert.True(t, value.Equal(value.Integer(math.MaxInt64), converted))
	})

	t.Run("empty value test", func(t *testing.T) {
		_, err := s.FromValue(&api.Value{})
		assert.ErrorIs(t, err, converter.ErrUnsupportedValueType)
	})

	t.Run("document name test", func(t *testing.T) {
		k := key.MustParse("rooms/r1/messages/m1")
		name := s.ToName(k)
		assert.Equal(t, "projects/p1/databases/(default)/documents/rooms/r1/messages/m1", name)

		parsed, err := s.FromName(name)
		require.NoError(t, err)
		assert.True(t, k.Equal(parsed))

		_, err = s.FromName("projects/p2/databases/(default)/documents/rooms/r1")
		assert.ErrorIs(t, err, converter.ErrDatabaseMismatch)

		_, err = s.FromName("rooms/r1")
		assert.ErrorIs(t, err, converter.ErrInvalidResourceName)

		_, err = s.FromName("projects/p1/databases/(default)/documents/rooms")
		assert.ErrorIs(t, err, key.ErrInvalidPath)
	})

	t.Run("document test", func(t *testing.T) {
		doc := document.NewFoundDocument(
			key.MustParse("c/d"),
			time.VersionOf(3, 0),
			value.NewObject(value.Map{"a": value.Integer(1)}),
		)
		converted, err := s.FromDocument(s.ToDocument(doc))
		require.NoError(t, err)
		assert.True(t, doc.Equal(converted))
	})
}

func TestWriteConversion(t *testing.T) {
	s := converter.NewSerializer(db)
	k := key.MustParse("c/d")
	data := value.NewObject(value.Map{"a": value.Integer(1), "b": value.Map{"c": value.String("x")}})

	mutations := []mutation.Mutation{
		mutation.NewSet(k, data, mutation.NoPrecondition,
			mutation.FieldTransform{Field: value.ParseFieldPath("ts"), Operation: mutation.ServerTimestamp{}},
		),
		mutation.NewPatch(k, data,
			mutation.NewFieldMask(value.ParseFieldPath("a"), value.NewFieldPath("b", "c.d")),
			mutation.ExistsPrecondition(true),
			mutation.FieldTransform{
				Field:     value.ParseFieldPath("n"),
				Operation: mutation.NumericIncrement{Operand: value.Integer(2)},
			},
			mutation.FieldTransform{
				Field:     value.ParseFieldPath("arr"),
				Operation: mutation.ArrayUnion{Elements: []value.Value{value.Integer(1)}},
			},
			mutation.FieldTransform{
				Field:     value.ParseFieldPath("arr2"),
				Operation: mutation.ArrayRemove{Elements: []value.Value{value.String("x")}},
			},
		),
		mutation.NewDelete(k, mutation.UpdateTimePrecondition(time.VersionOf(7, 8))),
		mutation.NewVerify(k, mutation.ExistsPrecondition(false)),
	}

	for _, m := range mutations {
		write, err := s.ToWrite(m)
		require.NoError(t, err)

		encoded, err := api.Codec{}.Marshal(write)
		require.NoError(t, err)
		decoded := &api.Write{}
		require.NoError(t, api.Codec{}.Unmarshal(encoded, decoded))

		converted, err := s.FromWrite(decoded)
		require.NoError(t, err)
		assert.IsType(t, m, converted)
		assert.True(t, m.Key().Equal(converted.Key()))
		assert.Equal(t, m.Precondition(), converted.Precondition())
		assert.Equal(t, m.Transforms(), converted.Transforms())

		switch mut := m.(type) {
		case *mutation.Set:
			assert.True(t, mut.Data().Equal(converted.(*mutation.Set).Data()))
		case *mutation.Patch:
			assert.True(t, mut.Data().Equal(converted.(*mutation.Patch).Data()))
			assert.Equal(t, mut.Mask().Fields(), converted.(*mutation.Patch).Mask().Fields())
		}
	}

	t.Run("write results test", func(t *testing.T) {
		results, err := s.FromWriteResults([]*api.WriteResult{
			{UpdateTime: &api.Timestamp{Seconds: 5}},
			{TransformResults: []*api.Value{s.ToValue(value.Integer(3))}},
		}, &api.Timestamp{Seconds: 9})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, time.VersionOf(5, 0), results[0].Version)
		assert.Equal(t, time.VersionOf(9, 0), results[1].Version)
		assert.Equal(t, []value.Value{value.Integer(3)}, results[1].TransformResults)
	})
}

func TestTargetConversion(t *testing.T) {
	s := converter.NewSerializer(db)

	t.Run("query target round trip test", func(t *testing.T) {
		q := query.NewQuery(key.ParsePath("rooms/r1/messages")).
			Where(query.Where("a", query.GreaterThan, value.Integer(1))).
			Where(query.AnyOf(
				query.Where("b", query.Equal, value.Null{}),
				query.Where("c", query.NotEqual, value.Double(math.NaN())),
			)).
			OrderBy("a", query.Descending).
			LimitToFirst(10).
			StartingAt(&query.Bound{Position: []value.Value{value.Integer(5)}, Inclusive: true}).
			EndingAt(&query.Bound{Position: []value.Value{value.Integer(1)}, Inclusive: false})
		target := q.ToTarget()

		wire := s.ToTarget(target, 4, nil, time.MinVersion, nil)
		assert.Equal(t, int32(4), wire.TargetID)
		require.NotNil(t, wire.Query)
		assert.Equal(t, "projects/p1/databases/(default)/documents/rooms/r1", wire.Query.Parent)
		sq := wire.Query.StructuredQuery
		assert.Equal(t, "messages", sq.From[0].CollectionID)
		assert.True(t, sq.StartAt.Before)
		assert.True(t, sq.EndAt.Before)
		or := sq.Where.CompositeFilter.Filters[1].CompositeFilter
		assert.Equal(t, api.OpIsNull, or.Filters[0].UnaryFilter.Op)
		assert.Equal(t, api.OpIsNotNaN, or.Filters[1].UnaryFilter.Op)

		converted, err := s.FromTarget(wire)
		require.NoError(t, err)
		assert.Equal(t, target.CanonicalID(), converted.CanonicalID())
	})

	t.Run("collection group test", func(t *testing.T) {
		target := query.NewCollectionGroupQuery(key.NewPath(), "messages").ToTarget()
		wire := s.ToTarget(target, 2, nil, time.MinVersion, nil)
		assert.Equal(t, "projects/p1/databases/(default)/documents", wire.Query.Parent)
		assert.True(t, wire.Query.StructuredQuery.From[0].AllDescendants)

		converted, err := s.FromTarget(wire)
		require.NoError(t, err)
		assert.Equal(t, target.CanonicalID(), converted.CanonicalID())
	})

	t.Run("limit to last is flipped test", func(t *testing.T) {
		q := query.NewQuery(key.ParsePath("c")).OrderBy("a", query.Ascending).LimitToLast(2)
		wire := s.ToTarget(q.ToTarget(), 2, nil, time.MinVersion, nil)
		sq := wire.Query.StructuredQuery
		assert.Equal(t, api.DirectionDescending, sq.OrderBy[0].Direction)
		assert.Equal(t, int32(2), *sq.Limit)
	})

	t.Run("document target test", func(t *testing.T) {
		k := key.MustParse("c/d")
		wire := s.ToTarget(query.NewDocumentTarget(k), 6, nil, time.MinVersion, nil)
		require.NotNil(t, wire.Documents)
		assert.Equal(t, []string{s.ToName(k)}, wire.Documents.Documents)

		converted, err := s.FromTarget(wire)
		require.NoError(t, err)
		got, ok := converted.DocumentKey()
		assert.True(t, ok)
		assert.True(t, k.Equal(got))
	})

	t.Run("resume state test", func(t *testing.T) {
		target := query.NewQuery(key.ParsePath("c")).ToTarget()
		count := 3

		withToken := s.ToTarget(target, 2, []byte("token"), time.VersionOf(1, 0), &count)
		assert.Equal(t, []byte("token"), withToken.ResumeToken)
		assert.Nil(t, withToken.ReadTime)
		assert.Equal(t, int32(3), *withToken.ExpectedCount)

		withReadTime := s.ToTarget(target, 2, nil, time.VersionOf(1, 0), &count)
		assert.Equal(t, int64(1), withReadTime.ReadTime.Seconds)
		assert.Equal(t, int32(3), *withReadTime.ExpectedCount)

		fresh := s.ToTarget(target, 2, nil, time.MinVersion, &count)
		assert.Nil(t, fresh.ExpectedCount)
	})
}

func TestStatusConversion(t *testing.T) {
	t.Run("status round trip test", func(t *testing.T) {
		err := errors.PermissionDenied("no access").WithCode("ErrNoAccess")
		wire := converter.ToStatus(err)
		assert.Equal(t, "ErrNoAccess", converter.ErrorCodeOf(wire))

		converted := converter.FromStatus(wire)
		assert.True(t, errors.IsStatus(converted, errors.ErrCodePermissionDenied))
		assert.Equal(t, "ErrNoAccess", errors.ErrorInfoOf(converted).Code)
	})

	t.Run("metadata round trip test", func(t *testing.T) {
		err := metaerrors.New(
			errors.InvalidArgument("bad value").WithCode("ErrBadValue"),
			map[string]string{"field": "age"},
		)
		wire := converter.ToStatus(err)
		assert.Equal(t, "ErrBadValue", converter.ErrorCodeOf(wire))

		converted := converter.FromStatus(wire)
		assert.Equal(t, "bad value [field=age]", converted.Error())
		assert.True(t, errors.IsStatus(converted, errors.ErrCodeInvalidArgument))
		assert.Equal(t, map[string]string{"field": "age"}, metaerrors.MetadataOf(converted))
	})

	t.Run("plain error test", func(t *testing.T) {
		plain := assert.AnError
		assert.Equal(t, plain, converter.FromStatus(plain))
		assert.Nil(t, converter.FromStatus(nil))
		assert.Nil(t, converter.FromTargetCause(0, ""))
		assert.True(t, errors.IsStatus(converter.FromTargetCause(7, "denied"), errors.ErrCodePermissionDenied))
	})
}
