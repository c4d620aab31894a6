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

package errors

import (
	"errors"
	"fmt"
)

// StatusError represents an error that carries an error status.
type StatusError interface {
	error
	Status() StatusCode
	Code() string
	WithCode(code string) StatusError
}

type errorWithStatus struct {
	err    error
	status StatusCode
	code   string
}

// Error returns the error message.
func (e errorWithStatus) Error() string {
	return e.err.Error()
}

// Status returns the error status.
func (e errorWithStatus) Status() StatusCode {
	return e.status
}

// Code returns the machine readable reason of the error.
func (e errorWithStatus) Code() string {
	return e.code
}

// Unwrap returns the underlying error.
func (e errorWithStatus) Unwrap() error {
	return e.err
}

// WithCode returns a copy of the error carrying the given reason code.
func (e errorWithStatus) WithCode(code string) StatusError {
	return errorWithStatus{
		err:    e.err,
		status: e.status,
		code:   code,
	}
}

// New creates an error with an arbitrary status. It is used when mapping
// statuses received from the backend.
func New(status StatusCode, message string) StatusError {
	return errorWithStatus{err: errors.New(message), status: status}
}

// Newf is like New but formats the message.
func Newf(status StatusCode, format string, args ...any) StatusError {
	return errorWithStatus{err: fmt.Errorf(format, args...), status: status}
}

// Canceled creates a new "canceled" error.
func Canceled(message string) StatusError {
	return New(ErrCodeCanceled, message)
}

// NotFound creates a new "not found" error.
func NotFound(message string) StatusError {
	return New(ErrCodeNotFound, message)
}

// InvalidArgument creates a new "invalid argument" error.
func InvalidArgument(message string) StatusError {
	return New(ErrCodeInvalidArgument, message)
}

// AlreadyExists creates a new "already exists" error.
func AlreadyExists(message string) StatusError {
	return New(ErrCodeAlreadyExists, message)
}

// PermissionDenied creates a new "permission denied" error.
func PermissionDenied(message string) StatusError {
	return New(ErrCodePermissionDenied, message)
}

// ResourceExhausted creates a new "resource exhausted" error.
func ResourceExhausted(message string) StatusError {
	return New(ErrCodeResourceExhausted, message)
}

// FailedPrecond creates a new "failed precondition" error.
func FailedPrecond(message string) StatusError {
	return New(ErrCodeFailedPrecondition, message)
}

// Aborted creates a new "aborted" error.
func Aborted(message string) StatusError {
	return New(ErrCodeAborted, message)
}

// Unauthenticated creates a new "unauthenticated" error.
func Unauthenticated(message string) StatusError {
	return New(ErrCodeUnauthenticated, message)
}

// Internal creates a new "internal" error.
func Internal(message string) StatusError {
	return New(ErrCodeInternal, message)
}

// Unavailable creates a new "unavailable" error.
func Unavailable(message string) StatusError {
	return New(ErrCodeUnavailable, message)
}

// DeadlineExceeded creates a new "deadline exceeded" error.
func DeadlineExceeded(message string) StatusError {
	return New(ErrCodeDeadlineExceeded, message)
}

// StatusOf extracts the error status from an error, unwrapping as needed.
// It returns 0 if no status is found.
func StatusOf(err error) StatusCode {
	if err == nil {
		return 0
	}

	if statusErr, ok := err.(StatusError); ok {
		return statusErr.Status()
	}

	var statusErr StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status()
	}

	return 0
}

// IsStatus checks if the given error has the specified error status.
func IsStatus(err error, code StatusCode) bool {
	return StatusOf(err) == code
}

// IsClientError checks if the error represents a client-side error.
func IsClientError(err error) bool {
	return StatusOf(err).IsClientError()
}

// IsServerError checks if the error represents a server-side error.
func IsServerError(err error) bool {
	return StatusOf(err).IsServerError()
}

// IsPermanent reports whether the failed operation must not be retried.
func IsPermanent(err error) bool {
	return StatusOf(err).IsPermanent()
}

// IsPermanentWrite reports whether a failed write must be rejected.
func IsPermanentWrite(err error) bool {
	return StatusOf(err).IsPermanentWrite()
}

// ErrorInfo provides detailed information about an error.
type ErrorInfo struct {
	Status       StatusCode
	Code         string
	Message      string
	IsClient     bool
	IsServer     bool
	StatusString string
	OriginalType string
}

// ErrorInfoOf extracts comprehensive information from an error for logging.
func ErrorInfoOf(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}

	originalType := "StandardError"
	code := ""
	var statusErr StatusError
	if errors.As(err, &statusErr) {
		originalType = "StatusError"
		code = statusErr.Code()
	}

	status := StatusOf(err)

	return ErrorInfo{
		Status:       status,
		Message:      err.Error(),
		IsClient:     status.IsClientError(),
		IsServer:     status.IsServerError(),
		StatusString: status.String(),
		OriginalType: originalType,
		Code:         code,
	}
}

// Is and As re-export the standard library helpers so that callers need a
// single errors import.
var (
	Is = errors.Is
	As = errors.As
)
