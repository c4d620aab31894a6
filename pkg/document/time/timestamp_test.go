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

package time

import (
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"
)

func TestTimestamp(t *testing.T) {
	t.Run("compare test", func(t *testing.T) {
		a := Timestamp{Seconds: 1, Nanos: 5}
		b := Timestamp{Seconds: 1, Nanos: 6}
		c := Timestamp{Seconds: 2}

		assert.Equal(t, -1, a.Compare(b))
		assert.Equal(t, 1, c.Compare(b))
		assert.Equal(t, 0, a.Compare(a))
	})

	t.Run("conversion test", func(t *testing.T) {
		now := gotime.Unix(1700000000, 123456789)
		ts := FromTime(now)
		assert.Equal(t, int64(1700000000), ts.Seconds)
		assert.Equal(t, int32(123456789), ts.Nanos)
		assert.True(t, ts.Time().Equal(now))
		assert.Equal(t, int64(1700000000123456), ts.Micros())
		assert.Equal(t, Timestamp{Seconds: -1, Nanos: 999_000_000}, FromMicros(-1000))
	})
}

func TestSnapshotVersion(t *testing.T) {
	v1 := VersionOf(10, 0)
	v2 := VersionOf(10, 1)

	assert.True(t, MinVersion.IsMin())
	assert.False(t, v1.IsMin())
	assert.True(t, v1.Less(v2))
	assert.Equal(t, v2, v1.Max(v2))
	assert.Equal(t, v2, v2.Max(MinVersion))
	assert.Equal(t, 0, NewVersion(Timestamp{Seconds: 10}).Compare(v1))
}
