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

// Package llrb provides a Left-leaning Red-Black tree ordered by a caller
// supplied comparator.
package llrb

// Comparator gives the result of a 3-way comparison of two keys.
type Comparator[K any] func(a, b K) int

type node[K any, V any] struct {
	key   K
	value V
	left  *node[K, V]
	right *node[K, V]
	isRed bool
}

// Tree is an implementation of Left-leaning Red-Black Tree.
// Original paper on Left-leaning Red-Black Trees:
// http://www.cs.princeton.edu/~rs/talks/LLRB/LLRB.pdf
//
// Invariant 1: No red node has a red child
// Invariant 2: Every leaf path has the same number of black nodes
// Invariant 3: Only the left child can be red (left leaning)
type Tree[K any, V any] struct {
	root    *node[K, V]
	size    int
	compare Comparator[K]
}

// NewTree creates a new instance of Tree.
func NewTree[K any, V any](compare Comparator[K]) *Tree[K, V] {
	return &Tree[K, V]{compare: compare}
}

// Len returns the number of entries.
func (t *Tree[K, V]) Len() int {
	return t.size
}

// Put puts the value of the given key, replacing an existing entry.
func (t *Tree[K, V]) Put(k K, v V) {
	t.root = t.put(t.root, k, v)
	t.root.isRed = false
}

// Get returns the value of the given key.
func (t *Tree[K, V]) Get(k K) (V, bool) {
	n := t.root
	for n != nil {
		c := t.compare(k, n.key)
		switch {
		case c < 0:
			n = n.left
		case c > 0:
			n = n.right
		default:
			return n.value, true
		}
	}
	var zero V
	return zero, false
}

// Remove removes the entry of the given key. It returns false if there was
// no such entry.
func (t *Tree[K, V]) Remove(k K) bool {
	if _, ok := t.Get(k); !ok {
		return false
	}

	if !isRed(t.root.left) && !isRed(t.root.right) {
		t.root.isRed = true
	}

	t.root = t.remove(t.root, k)
	if t.root != nil {
		t.root.isRed = false
	}
	return true
}

// Min returns the smallest entry.
func (t *Tree[K, V]) Min() (K, V, bool) {
	if t.root == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	n := leftmost(t.root)
	return n.key, n.value, true
}

// Max returns the greatest entry.
func (t *Tree[K, V]) Max() (K, V, bool) {
	n := t.root
	if n == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	for n.right != nil {
		n = n.right
	}
	return n.key, n.value, true
}

// Floor returns the greatest entry less than or equal to the given key.
func (t *Tree[K, V]) Floor(k K) (K, V, bool) {
	var found *node[K, V]
	n := t.root
	for n != nil {
		c := t.compare(k, n.key)
		switch {
		case c == 0:
			return n.key, n.value, true
		case c < 0:
			n = n.left
		default:
			found = n
			n = n.right
		}
	}
	if found == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	return found.key, found.value, true
}

// Each calls fn for every entry in order until fn returns false.
func (t *Tree[K, V]) Each(fn func(k K, v V) bool) {
	traverseInOrder(t.root, fn)
}

// Clone returns a copy of the tree sharing keys and values but no nodes.
func (t *Tree[K, V]) Clone() *Tree[K, V] {
	return &Tree[K, V]{
		root:    cloneNode(t.root),
		size:    t.size,
		compare: t.compare,
	}
}

func (t *Tree[K, V]) put(n *node[K, V], key K, value V) *node[K, V] {
	if n == nil {
		t.size++
		return &node[K, V]{key: key, value: value, isRed: true}
	}

	c := t.compare(key, n.key)
	if c < 0 {
		n.left = t.put(n.left, key, value)
	} else if c > 0 {
		n.right = t.put(n.right, key, value)
	} else {
		n.key = key
		n.value = value
	}

	if isRed(n.right) && !isRed(n.left) {
		n = rotateLeft(n)
	}

	if isRed(n.left) && isRed(n.left.left) {
		n = rotateRight(n)
	}

	if isRed(n.left) && isRed(n.right) {
		flipColors(n)
	}

	return n
}

func (t *Tree[K, V]) remove(n *node[K, V], key K) *node[K, V] {
	if t.compare(key, n.key) < 0 {
		if !isRed(n.left) && !isRed(n.left.left) {
			n = moveRedLeft(n)
		}
		n.left = t.remove(n.left, key)
	} else {
		if isRed(n.left) {
			n = rotateRight(n)
		}

		if t.compare(key, n.key) == 0 && n.right == nil {
			t.size--
			return nil
		}

		if !isRed(n.right) && !isRed(n.right.left) {
			n = moveRedRight(n)
		}

		if t.compare(key, n.key) == 0 {
			t.size--
			smallest := leftmost(n.right)
			n.value = smallest.value
			n.key = smallest.key
			n.right = removeMin(n.right)
		} else {
			n.right = t.remove(n.right, key)
		}
	}

	return fixUp(n)
}

func cloneNode[K any, V any](n *node[K, V]) *node[K, V] {
	if n == nil {
		return nil
	}
	return &node[K, V]{
		key:   n.key,
		value: n.value,
		left:  cloneNode(n.left),
		right: cloneNode(n.right),
		isRed: n.isRed,
	}
}

func rotateLeft[K any, V any](n *node[K, V]) *node[K, V] {
	right := n.right
	n.right = right.left
	right.left = n
	right.isRed = right.left.isRed
	right.left.isRed = true
	return right
}

func rotateRight[K any, V any](n *node[K, V]) *node[K, V] {
	left := n.left
	n.left = left.right
	left.right = n
	left.isRed = left.right.isRed
	left.right.isRed = true
	return left
}

func flipColors[K any, V any](n *node[K, V]) {
	n.isRed = !n.isRed
	n.left.isRed = !n.left.isRed
	n.right.isRed = !n.right.isRed
}

func moveRedLeft[K any, V any](n *node[K, V]) *node[K, V] {
	flipColors(n)
	if isRed(n.right.left) {
		n.right = rotateRight(n.right)
		n = rotateLeft(n)
		flipColors(n)
	}
	return n
}

func moveRedRight[K any, V any](n *node[K, V]) *node[K, V] {
	flipColors(n)
	if isRed(n.left.left) {
		n = rotateRight(n)
		flipColors(n)
	}
	return n
}

func removeMin[K any, V any](n *node[K, V]) *node[K, V] {
	if n.left == nil {
		return nil
	}

	if !isRed(n.left) && !isRed(n.left.left) {
		n = moveRedLeft(n)
	}

	n.left = removeMin(n.left)
	return fixUp(n)
}

func leftmost[K any, V any](n *node[K, V]) *node[K, V] {
	for n.left != nil {
		n = n.left
	}
	return n
}

func fixUp[K any, V any](n *node[K, V]) *node[K, V] {
	if isRed(n.right) {
		n = rotateLeft(n)
	}

	if isRed(n.left) && isRed(n.left.left) {
		n = rotateRight(n)
	}

	if isRed(n.left) && isRed(n.right) {
		flipColors(n)
	}

	return n
}

func isRed[K any, V any](n *node[K, V]) bool {
	return n != nil && n.isRed
}

func traverseInOrder[K any, V any](n *node[K, V], fn func(k K, v V) bool) bool {
	if n == nil {
		return true
	}

	if !traverseInOrder(n.left, fn) {
		return false
	}
	if !fn(n.key, n.value) {
		return false
	}
	return traverseInOrder(n.right, fn)
}
