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

// Package time provides wall-clock timestamps and snapshot versions assigned
// by the backend.
package time

import (
	"fmt"
	gotime "time"
)

// Timestamp is a point in time with nanosecond precision, as assigned by the
// backend. Seconds may be negative; Nanos is always in [0, 1e9).
type Timestamp struct {
	Seconds int64 `json:"seconds" bson:"seconds"`
	Nanos   int32 `json:"nanos" bson:"nanos"`
}

// FromTime converts a time.Time into a Timestamp.
func FromTime(t gotime.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// FromMicros converts microseconds since the epoch into a Timestamp.
func FromMicros(micros int64) Timestamp {
	seconds := micros / 1_000_000
	rest := micros % 1_000_000
	if rest < 0 {
		seconds--
		rest += 1_000_000
	}
	return Timestamp{Seconds: seconds, Nanos: int32(rest * 1000)}
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return FromTime(gotime.Now())
}

// Time converts the Timestamp into a time.Time.
func (t Timestamp) Time() gotime.Time {
	return gotime.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// Micros returns the microseconds since the epoch, truncating nanoseconds.
func (t Timestamp) Micros() int64 {
	return t.Seconds*1_000_000 + int64(t.Nanos)/1000
}

// Compare returns -1, 0 or 1 when t is before, equal to or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Seconds < other.Seconds:
		return -1
	case t.Seconds > other.Seconds:
		return 1
	case t.Nanos < other.Nanos:
		return -1
	case t.Nanos > other.Nanos:
		return 1
	}
	return 0
}

// Add returns the Timestamp shifted by d.
func (t Timestamp) Add(d gotime.Duration) Timestamp {
	return FromTime(t.Time().Add(d))
}

// String returns a human readable form of the Timestamp.
func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(seconds=%d, nanos=%d)", t.Seconds, t.Nanos)
}

// SnapshotVersion is the version of the backend state a document or a remote
// event reflects. The zero value is the minimum version, used for documents
// that were never read from the backend or carry local mutations.
type SnapshotVersion struct {
	ts Timestamp
}

// MinVersion is the minimum snapshot version.
var MinVersion = SnapshotVersion{}

// NewVersion creates a snapshot version from a timestamp.
func NewVersion(ts Timestamp) SnapshotVersion {
	return SnapshotVersion{ts: ts}
}

// VersionOf creates a snapshot version from seconds and nanoseconds.
func VersionOf(seconds int64, nanos int32) SnapshotVersion {
	return SnapshotVersion{ts: Timestamp{Seconds: seconds, Nanos: nanos}}
}

// Timestamp returns the underlying timestamp.
func (v SnapshotVersion) Timestamp() Timestamp {
	return v.ts
}

// IsMin returns whether v is the minimum version.
func (v SnapshotVersion) IsMin() bool {
	return v.ts == Timestamp{}
}

// Compare orders versions by timestamp.
func (v SnapshotVersion) Compare(other SnapshotVersion) int {
	return v.ts.Compare(other.ts)
}

// Less reports whether v is older than other.
func (v SnapshotVersion) Less(other SnapshotVersion) bool {
	return v.Compare(other) < 0
}

// Max returns the newer of both versions.
func (v SnapshotVersion) Max(other SnapshotVersion) SnapshotVersion {
	if v.Less(other) {
		return other
	}
	return v
}

// String returns a human readable form of the version.
func (v SnapshotVersion) String() string {
	return fmt.Sprintf("SnapshotVersion(%d.%09d)", v.ts.Seconds, v.ts.Nanos)
}
