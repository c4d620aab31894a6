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

// Package bloom provides the bloom filter the backend attaches to existence
// filters. It is only ever used as a negative membership test: a false
// result means the value is definitely absent.
package bloom

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/yorkie-team/docsync/pkg/errors"
)

// DefaultMaxBitmapBytes is the largest bitmap accepted by New.
const DefaultMaxBitmapBytes = 8 << 20

var (
	// ErrInvalidPadding is returned when the padding is outside [0, 8), or
	// non-zero for an empty bitmap.
	ErrInvalidPadding = errors.InvalidArgument("invalid bloom filter padding").WithCode("ErrInvalidPadding")

	// ErrInvalidHashCount is returned when the hash count is negative, or
	// zero for a non-empty bitmap.
	ErrInvalidHashCount = errors.InvalidArgument("invalid bloom filter hash count").WithCode("ErrInvalidHashCount")

	// ErrBitmapTooLarge is returned when the bitmap exceeds the size cap.
	ErrBitmapTooLarge = errors.ResourceExhausted("bloom filter bitmap too large").WithCode("ErrBitmapTooLarge")
)

// Filter is an immutable bloom filter using MD5 based double hashing.
type Filter struct {
	bitmap    []byte
	bitCount  uint64
	hashCount int
}

// New creates a filter from the wire representation. padding is the number
// of unused bits at the end of the last byte.
func New(bitmap []byte, padding int, hashCount int) (*Filter, error) {
	return NewWithLimit(bitmap, padding, hashCount, DefaultMaxBitmapBytes)
}

// NewWithLimit is like New with a custom size cap.
func NewWithLimit(bitmap []byte, padding int, hashCount int, maxBytes int) (*Filter, error) {
	if padding < 0 || padding >= 8 {
		return nil, fmt.Errorf("padding %d: %w", padding, ErrInvalidPadding)
	}
	if hashCount < 0 {
		return nil, fmt.Errorf("hash count %d: %w", hashCount, ErrInvalidHashCount)
	}
	if len(bitmap) > 0 && hashCount == 0 {
		return nil, fmt.Errorf("hash count 0 for %d bytes: %w", len(bitmap), ErrInvalidHashCount)
	}
	if len(bitmap) == 0 && padding != 0 {
		return nil, fmt.Errorf("padding %d for empty bitmap: %w", padding, ErrInvalidPadding)
	}
	if maxBytes > 0 && len(bitmap) > maxBytes {
		return nil, fmt.Errorf("%d bytes: %w", len(bitmap), ErrBitmapTooLarge)
	}

	return &Filter{
		bitmap:    bitmap,
		bitCount:  uint64(len(bitmap)*8 - padding),
		hashCount: hashCount,
	}, nil
}

// BitCount returns the number of usable bits.
func (f *Filter) BitCount() int {
	return int(f.bitCount)
}

// HashCount returns the number of hash functions.
func (f *Filter) HashCount() int {
	return f.hashCount
}

// MightContain returns false if value is definitely not in the filter.
func (f *Filter) MightContain(value string) bool {
	if f.bitCount == 0 {
		return false
	}

	h1, h2 := hashes(value)
	for i := 0; i < f.hashCount; i++ {
		if !f.isBitSet(bitIndex(h1, h2, i, f.bitCount)) {
			return false
		}
	}
	return true
}

func (f *Filter) isBitSet(index uint64) bool {
	return f.bitmap[index/8]&(1<<(index%8)) != 0
}

// hashes splits the MD5 digest of value into two little-endian integers.
func hashes(value string) (uint64, uint64) {
	sum := md5.Sum([]byte(value))
	return binary.LittleEndian.Uint64(sum[0:8]), binary.LittleEndian.Uint64(sum[8:16])
}

// bitIndex computes (h1 + i*h2) mod bitCount in 64-bit wrapping arithmetic.
func bitIndex(h1, h2 uint64, i int, bitCount uint64) uint64 {
	return (h1 + uint64(i)*h2) % bitCount
}

// Builder creates filters. The backend side of the protocol, and tests,
// use it to produce bitmaps.
type Builder struct {
	bitmap    []byte
	bitCount  uint64
	hashCount int
}

// NewBuilder creates a builder for a filter of bitCount bits.
func NewBuilder(bitCount int, hashCount int) *Builder {
	return &Builder{
		bitmap:    make([]byte, (bitCount+7)/8),
		bitCount:  uint64(bitCount),
		hashCount: hashCount,
	}
}

// Insert adds value to the filter.
func (b *Builder) Insert(value string) {
	if b.bitCount == 0 {
		return
	}
	h1, h2 := hashes(value)
	for i := 0; i < b.hashCount; i++ {
		idx := bitIndex(h1, h2, i, b.bitCount)
		b.bitmap[idx/8] |= 1 << (idx % 8)
	}
}

// Bitmap returns the bitmap and padding of the filter.
func (b *Builder) Bitmap() ([]byte, int) {
	return append([]byte{}, b.bitmap...), len(b.bitmap)*8 - int(b.bitCount)
}

// HashCount returns the number of hash functions.
func (b *Builder) HashCount() int {
	return b.hashCount
}
