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

package bloom_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yorkie-team/docsync/pkg/bloom"
)

func TestNew(t *testing.T) {
	t.Run("invalid arguments test", func(t *testing.T) {
		_, err := bloom.New([]byte{1}, 8, 1)
		assert.ErrorIs(t, err, bloom.ErrInvalidPadding)
		_, err = bloom.New([]byte{1}, -1, 1)
		assert.ErrorIs(t, err, bloom.ErrInvalidPadding)
		_, err = bloom.New(nil, 1, 0)
		assert.ErrorIs(t, err, bloom.ErrInvalidPadding)
		_, err = bloom.New([]byte{1}, 0, -1)
		assert.ErrorIs(t, err, bloom.ErrInvalidHashCount)
		_, err = bloom.New([]byte{1}, 0, 0)
		assert.ErrorIs(t, err, bloom.ErrInvalidHashCount)
		_, err = bloom.NewWithLimit(make([]byte, 16), 0, 1, 8)
		assert.ErrorIs(t, err, bloom.ErrBitmapTooLarge)
	})

	t.Run("empty filter test", func(t *testing.T) {
		f, err := bloom.New(nil, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, f.BitCount())
		assert.False(t, f.MightContain("anything"))
	})

	t.Run("bit count test", func(t *testing.T) {
		f, err := bloom.New([]byte{0xff, 0x01}, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, 13, f.BitCount())
		assert.Equal(t, 2, f.HashCount())
	})
}

func TestMightContain(t *testing.T) {
	t.Run("no false negatives test", func(t *testing.T) {
		builder := bloom.NewBuilder(1021, 7)
		var present []string
		for i := 0; i < 100; i++ {
			name := fmt.Sprintf("projects/p/databases/(default)/documents/rooms/%d", i)
			present = append(present, name)
			builder.Insert(name)
		}

		bitmap, padding := builder.Bitmap()
		assert.Equal(t, 3, padding)
		f, err := bloom.New(bitmap, padding, builder.HashCount())
		require.NoError(t, err)

		for _, name := range present {
			assert.True(t, f.MightContain(name), name)
		}

		falsePositives := 0
		for i := 100; i < 1100; i++ {
			if f.MightContain(fmt.Sprintf("projects/p/databases/(default)/documents/rooms/%d", i)) {
				falsePositives++
			}
		}
		assert.Less(t, falsePositives, 100)
	})

	t.Run("all bits set test", func(t *testing.T) {
		f, err := bloom.New([]byte{0xff, 0xff}, 0, 5)
		require.NoError(t, err)
		assert.True(t, f.MightContain("x"))
	})

	t.Run("no bits set test", func(t *testing.T) {
		f, err := bloom.New([]byte{0, 0}, 0, 5)
		require.NoError(t, err)
		assert.False(t, f.MightContain("x"))
	})
}
