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

// Package metaerrors attaches metadata received with backend errors, such
// as the details of a rejected request, to the converted error.
package metaerrors

import (
	"errors"
	"sort"
	"strings"
)

// MetaError is an error with metadata attached to it.
type MetaError struct {
	// Err is the underlying error.
	Err error

	// Metadata holds additional information about the error.
	Metadata map[string]string
}

// New returns a new MetaError with the given error and metadata.
func New(err error, metadata map[string]string) *MetaError {
	return &MetaError{
		Err:      err,
		Metadata: metadata,
	}
}

// Error returns the error message followed by the metadata in key order.
func (e *MetaError) Error() string {
	if len(e.Metadata) == 0 {
		return e.Err.Error()
	}

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb := strings.Builder{}
	for _, k := range keys {
		if sb.Len() > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(e.Metadata[k])
	}

	return e.Err.Error() + " [" + sb.String() + "]"
}

// Unwrap returns the underlying error.
func (e *MetaError) Unwrap() error {
	return e.Err
}

// MetadataOf returns the metadata of the first MetaError in the chain of
// err, or nil.
func MetadataOf(err error) map[string]string {
	var metaErr *MetaError
	if errors.As(err, &metaErr) {
		return metaErr.Metadata
	}
	return nil
}
