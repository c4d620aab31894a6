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

package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/document/time"
)

func TestCompare(t *testing.T) {
	t.Run("type order test", func(t *testing.T) {
		db := key.NewDatabaseID("p", "")
		ordered := []Value{
			Null{},
			Boolean(false),
			Boolean(true),
			Double(math.NaN()),
			Double(math.Inf(-1)),
			Integer(-1),
			Double(0.5),
			Integer(1),
			Timestamp{Seconds: 1},
			Timestamp{Seconds: 1, Nanos: 1},
			ServerTimestamp{LocalWriteTime: time.Timestamp{Seconds: 1}},
			String(""),
			String("a"),
			String("b"),
			Bytes{0},
			Bytes{1},
			Reference{DatabaseID: db, Key: key.MustParse("c/a")},
			Reference{DatabaseID: db, Key: key.MustParse("c/b")},
			GeoPoint{Latitude: -90, Longitude: 0},
			GeoPoint{Latitude: 0, Longitude: 0},
			Array{},
			Array{Integer(1)},
			Array{Integer(1), Integer(2)},
			Vector{9},
			Vector{1, 2},
			Map{},
			Map{"a": Integer(1)},
			Map{"b": Integer(0)},
		}

		for i := 0; i < len(ordered); i++ {
			for j := 0; j < len(ordered); j++ {
				want := 0
				if i < j {
					want = -1
				} else if i > j {
					want = 1
				}
				assert.Equal(t, want, Compare(ordered[i], ordered[j]), "%d vs %d", i, j)
			}
		}
	})

	t.Run("numbers test", func(t *testing.T) {
		assert.Equal(t, 0, Compare(Integer(1), Double(1.0)))
		assert.Equal(t, 0, Compare(Double(-0.0), Double(0.0)))
		assert.Equal(t, 1, Compare(Integer(math.MaxInt64), Double(9007199254740992.0)))
		assert.Equal(t, -1, Compare(Double(-1e300), Integer(math.MinInt64)))
		assert.Equal(t, 1, Compare(Double(1e300), Integer(math.MaxInt64)))
		assert.Equal(t, 0, Compare(Double(math.NaN()), Double(math.NaN())))
	})
}

func TestEqual(t *testing.T) {
	assert.False(t, Equal(Integer(1), Double(1)))
	assert.True(t, Equal(Double(math.NaN()), Double(math.NaN())))
	assert.True(t, Equal(Double(-0.0), Double(0.0)))
	assert.True(t, Equal(nil, Null{}))
	assert.True(t, Equal(
		Map{"a": Array{Integer(1), String("x")}},
		Map{"a": Array{Integer(1), String("x")}},
	))
	assert.False(t, Equal(Map{"a": Integer(1)}, Map{"a": Integer(1), "b": Null{}}))
	assert.False(t, Equal(Array{Integer(1)}, Array{Double(1)}))
	assert.True(t, Equal(Vector{1, 2}, Vector{1, 2}))
	assert.False(t, Equal(String("a"), Bytes("a")))
}

func TestFrom(t *testing.T) {
	v, err := From(map[string]any{
		"n":    nil,
		"b":    true,
		"i":    3,
		"f":    1.5,
		"s":    "str",
		"list": []any{1, "two"},
		"nested": map[string]any{
			"x": int64(7),
		},
	})
	require.NoError(t, err)
	assert.True(t, Equal(Map{
		"n":      Null{},
		"b":      Boolean(true),
		"i":      Integer(3),
		"f":      Double(1.5),
		"s":      String("str"),
		"list":   Array{Integer(1), String("two")},
		"nested": Map{"x": Integer(7)},
	}, v))

	_, err = From(struct{}{})
	assert.Error(t, err)
	_, err = From(uint64(math.MaxUint64))
	assert.Error(t, err)
}

func TestCanonicalID(t *testing.T) {
	a := Map{"b": Integer(1), "a": Array{String("x"), Boolean(true)}}
	assert.Equal(t, "{a:[x,true],b:1}", CanonicalID(a))
	assert.Equal(t, "null", CanonicalID(nil))
}

func TestObjectValue(t *testing.T) {
	t.Run("set and get test", func(t *testing.T) {
		obj := EmptyObject()
		obj.Set(ParseFieldPath("a.b.c"), Integer(1))
		obj.Set(ParseFieldPath("d"), String("x"))

		v, ok := obj.Get(ParseFieldPath("a.b.c"))
		require.True(t, ok)
		assert.Equal(t, Integer(1), v)

		_, ok = obj.Get(ParseFieldPath("a.x"))
		assert.False(t, ok)
		_, ok = obj.Get(ParseFieldPath("d.e"))
		assert.False(t, ok)
	})

	t.Run("updates do not leak into copies test", func(t *testing.T) {
		original := NewObject(Map{"a": Map{"b": Integer(1)}})
		copied := original
		copied.Set(ParseFieldPath("a.b"), Integer(2))
		copied.Delete(ParseFieldPath("a"))

		v, ok := original.Get(ParseFieldPath("a.b"))
		require.True(t, ok)
		assert.Equal(t, Integer(1), v)
		_, ok = copied.Get(ParseFieldPath("a"))
		assert.False(t, ok)
	})

	t.Run("set replaces non-map parents test", func(t *testing.T) {
		obj := NewObject(Map{"a": Integer(1)})
		obj.Set(ParseFieldPath("a.b"), Integer(2))
		assert.True(t, obj.Equal(NewObject(Map{"a": Map{"b": Integer(2)}})))
	})

	t.Run("field mask test", func(t *testing.T) {
		obj := NewObject(Map{
			"a": Map{"b": Integer(1), "c": Map{}},
			"d": Integer(2),
		})
		var paths []string
		for _, p := range obj.FieldMask() {
			paths = append(paths, p.String())
		}
		assert.Equal(t, []string{"a.b", "a.c", "d"}, paths)
	})
}

func TestFieldPath(t *testing.T) {
	p := ParseFieldPath("a.b")
	assert.True(t, p.IsPrefixOf(p.Child("c")))
	assert.False(t, p.Child("c").IsPrefixOf(p))
	assert.Equal(t, "a.`b c`", NewFieldPath("a", "b c").String())
	assert.True(t, KeyFieldPath().IsKeyField())
	assert.Equal(t, -1, ParseFieldPath("a").Compare(ParseFieldPath("a.b")))
}

func TestParseCanonicalFieldPath(t *testing.T) {
	t.Run("round trip test", func(t *testing.T) {
		for _, p := range []FieldPath{
			NewFieldPath("a"),
			NewFieldPath("a", "b.c", "d"),
			NewFieldPath("with`tick", `back\slash`),
			KeyFieldPath(),
		} {
			parsed, err := ParseCanonicalFieldPath(p.String())
			assert.NoError(t, err)
			assert.True(t, p.Equal(parsed), p.String())
		}
	})

	t.Run("invalid path test", func(t *testing.T) {
		for _, s := range []string{"", "a..b", "`a", "a.", "`a\\"} {
			_, err := ParseCanonicalFieldPath(s)
			assert.Error(t, err, s)
		}
	})
}
