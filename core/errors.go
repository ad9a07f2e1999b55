// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package core

import (
	"errors"
	"fmt"

	"github.com/seedarr/seedarr/utils/httputil"
)

// ErrorKind classifies a pipeline failure. The worker decides requeue vs
// terminal failure from the kind alone.
type ErrorKind string

// Error kinds.
const (
	ErrKindNetworkTransient    ErrorKind = "network_transient"
	ErrKindRateLimited         ErrorKind = "rate_limited"
	ErrKindCircuitOpen         ErrorKind = "circuit_open"
	ErrKindAuthRejected        ErrorKind = "auth_rejected"
	ErrKindValidation          ErrorKind = "validation"
	ErrKindDuplicateRelease    ErrorKind = "duplicate_release"
	ErrKindTrackerPermanent    ErrorKind = "tracker_permanent"
	ErrKindExternalUnavailable ErrorKind = "external_unavailable"
	ErrKindInternalInvariant   ErrorKind = "internal_invariant"
	ErrKindUserCancelled       ErrorKind = "user_cancelled"
)

// Retryable returns whether failures of kind k may succeed on a later
// attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrKindNetworkTransient,
		ErrKindRateLimited,
		ErrKindCircuitOpen,
		ErrKindExternalUnavailable:
		return true
	}
	return false
}

// Error attaches an ErrorKind to an underlying cause.
type Error struct {
	Kind  ErrorKind
	cause error
}

// NewError creates a new Error of kind wrapping cause.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Errorf creates a new Error of kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.cause)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retryable returns whether e may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// KindOf extracts the ErrorKind from err. Unclassified transport errors are
// mapped by status: network failures and transient statuses are retryable,
// remaining 4xx are permanent. Anything else is an internal invariant
// violation.
func KindOf(err error) ErrorKind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	if httputil.IsNetworkError(err) {
		return ErrKindNetworkTransient
	}
	if httputil.IsRateLimited(err) {
		return ErrKindRateLimited
	}
	if httputil.IsUnauthorized(err) || httputil.IsForbidden(err) {
		return ErrKindAuthRejected
	}
	if httputil.IsRetryable(err) {
		return ErrKindNetworkTransient
	}
	var statusErr httputil.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status >= 400 && statusErr.Status < 500 {
			return ErrKindTrackerPermanent
		}
		return ErrKindNetworkTransient
	}
	return ErrKindInternalInvariant
}

// IsRetryable returns whether err may succeed on a later attempt, using the
// same classification as KindOf.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
