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

package converter

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yorkie-team/docsync/internal/metaerrors"
	"github.com/yorkie-team/docsync/pkg/errors"
)

// codeKey is the metadata key of ErrorInfo details holding the error code.
const codeKey = "code"

// ErrorCodeOf returns the error code carried by the details of the given
// gRPC error.
func ErrorCodeOf(err error) string {
	return errorInfoOf(err).GetMetadata()[codeKey]
}

func errorInfoOf(err error) *errdetails.ErrorInfo {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, detail := range st.Details() {
		if errorInfo, ok := detail.(*errdetails.ErrorInfo); ok {
			return errorInfo
		}
	}
	return nil
}

// FromStatus converts an error received from the backend to a status
// error. Errors that are not gRPC statuses are returned as they are.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.OK {
		return nil
	}

	info := errorInfoOf(err)
	converted := errors.New(errors.StatusCode(st.Code()), st.Message())
	if code := info.GetMetadata()[codeKey]; code != "" {
		converted = converted.WithCode(code)
	}

	metadata := make(map[string]string)
	for k, v := range info.GetMetadata() {
		if k != codeKey {
			metadata[k] = v
		}
	}
	if len(metadata) > 0 {
		return metaerrors.New(converted, metadata)
	}
	return converted
}

// FromTargetCause converts the cause of a removed target.
func FromTargetCause(code int32, message string) error {
	if code == 0 {
		return nil
	}
	return errors.New(errors.StatusCode(code), message)
}

// ToStatus converts the given error to a gRPC status error, attaching the
// error code and metadata of the error as details.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}

	var statusErr errors.StatusError
	if !errors.As(err, &statusErr) {
		return status.Error(codes.Unknown, err.Error())
	}

	message := err.Error()
	metadata := make(map[string]string)
	var metaErr *metaerrors.MetaError
	if errors.As(err, &metaErr) {
		message = metaErr.Err.Error()
		for k, v := range metaErr.Metadata {
			metadata[k] = v
		}
	}
	if statusErr.Code() != "" {
		metadata[codeKey] = statusErr.Code()
	}

	st := status.New(codes.Code(statusErr.Status()), message)
	if len(metadata) == 0 {
		return st.Err()
	}
	withDetails, detailErr := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   statusErr.Code(),
		Metadata: metadata,
	})
	if detailErr != nil {
		return st.Err()
	}
	return withDetails.Err()
}
