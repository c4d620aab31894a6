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

// Package converter provides the converter for converting the model of the
// engine to the messages of the wire protocol and vice versa.
package converter

import (
	"github.com/yorkie-team/docsync/pkg/document/key"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// The keys of the maps that encode values without a wire representation of
// their own.
const (
	typeKey           = "__type__"
	vectorType        = "__vector__"
	vectorValueKey    = "value"
	serverTimestamp   = "server_timestamp"
	localWriteTimeKey = "__local_write_time__"
	previousValueKey  = "__previous_value__"
)

var (
	// ErrUnsupportedValueType is returned when a value has no known kind.
	ErrUnsupportedValueType = errors.InvalidArgument("unsupported value type").WithCode("ErrUnsupportedValueType")

	// ErrUnsupportedMutation is returned when a write has no known kind.
	ErrUnsupportedMutation = errors.InvalidArgument("unsupported mutation").WithCode("ErrUnsupportedMutation")

	// ErrUnsupportedTransform is returned when a field transform has no
	// known kind.
	ErrUnsupportedTransform = errors.InvalidArgument("unsupported transform").WithCode("ErrUnsupportedTransform")

	// ErrUnsupportedFilter is returned when a filter has no known kind or
	// operator.
	ErrUnsupportedFilter = errors.InvalidArgument("unsupported filter").WithCode("ErrUnsupportedFilter")

	// ErrInvalidResourceName is returned when a resource name is not of the
	// form projects/{project}/databases/{database}/documents/{path}.
	ErrInvalidResourceName = errors.InvalidArgument("invalid resource name").WithCode("ErrInvalidResourceName")

	// ErrDatabaseMismatch is returned when a resource name belongs to
	// another database.
	ErrDatabaseMismatch = errors.InvalidArgument("database mismatch").WithCode("ErrDatabaseMismatch")
)

// Serializer converts between the model and the wire messages of one
// database.
type Serializer struct {
	databaseID key.DatabaseID
}

// NewSerializer creates a serializer for the given database.
func NewSerializer(databaseID key.DatabaseID) *Serializer {
	return &Serializer{databaseID: databaseID}
}

// DatabaseID returns the database the serializer encodes names for.
func (s *Serializer) DatabaseID() key.DatabaseID {
	return s.databaseID
}

// DatabaseName returns the name sent in stream requests.
func (s *Serializer) DatabaseName() string {
	return s.databaseID.Name()
}
