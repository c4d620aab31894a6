/*
 * Copyright 2021 The Yorkie Authors. All rights reserved.
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

package llrb_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yorkie-team/docsync/pkg/llrb"
)

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func rangeArray(min, max int) []int {
	a := make([]int, max-min+1)
	for i := range a {
		a[i] = min + i
	}
	return a
}

func shuffle(a []int) []int {
	rand.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
	return a
}

func keys(tree *llrb.Tree[int, string]) string {
	var str []string
	tree.Each(func(k int, v string) bool {
		str = append(str, v)
		return true
	})
	return strings.Join(str, ",")
}

func TestTree(t *testing.T) {
	t.Run("keeping order test", func(t *testing.T) {
		tree := llrb.NewTree[int, string](compareInts)

		for _, value := range shuffle(rangeArray(0, 9)) {
			tree.Put(value, fmt.Sprintf("%d", value))
		}
		assert.Equal(t, "0,1,2,3,4,5,6,7,8,9", keys(tree))
		assert.Equal(t, 10, tree.Len())

		assert.True(t, tree.Remove(8))
		assert.Equal(t, "0,1,2,3,4,5,6,7,9", keys(tree))

		assert.True(t, tree.Remove(2))
		assert.Equal(t, "0,1,3,4,5,6,7,9", keys(tree))

		assert.True(t, tree.Remove(5))
		assert.Equal(t, "0,1,3,4,6,7,9", keys(tree))

		assert.False(t, tree.Remove(5))
		assert.Equal(t, 7, tree.Len())
	})

	t.Run("lookup test", func(t *testing.T) {
		tree := llrb.NewTree[int, string](compareInts)
		for _, value := range []int{10, 20, 30} {
			tree.Put(value, fmt.Sprintf("%d", value))
		}

		v, ok := tree.Get(20)
		assert.True(t, ok)
		assert.Equal(t, "20", v)

		k, _, ok := tree.Floor(25)
		assert.True(t, ok)
		assert.Equal(t, 20, k)
		_, _, ok = tree.Floor(5)
		assert.False(t, ok)

		k, _, _ = tree.Min()
		assert.Equal(t, 10, k)
		k, _, _ = tree.Max()
		assert.Equal(t, 30, k)
	})

	t.Run("clone isolation test", func(t *testing.T) {
		tree := llrb.NewTree[int, string](compareInts)
		for _, value := range shuffle(rangeArray(0, 99)) {
			tree.Put(value, fmt.Sprintf("%d", value))
		}
		cloned := tree.Clone()
		for i := 0; i < 100; i += 2 {
			cloned.Remove(i)
		}

		assert.Equal(t, 100, tree.Len())
		assert.Equal(t, 50, cloned.Len())
		_, ok := tree.Get(42)
		assert.True(t, ok)
		_, ok = cloned.Get(42)
		assert.False(t, ok)
	})

	t.Run("remove all test", func(t *testing.T) {
		tree := llrb.NewTree[int, string](compareInts)
		for _, value := range shuffle(rangeArray(0, 49)) {
			tree.Put(value, "")
		}
		for _, value := range shuffle(rangeArray(0, 49)) {
			assert.True(t, tree.Remove(value))
		}
		assert.Equal(t, 0, tree.Len())
		_, _, ok := tree.Min()
		assert.False(t, ok)
	})
}
