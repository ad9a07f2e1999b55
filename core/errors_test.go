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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/seedarr/seedarr/utils/httputil"

	"github.com/stretchr/testify/require"
)

func statusError(status int) error {
	req, err := http.NewRequest("GET", "http://localhost:0/test", nil)
	if err != nil {
		panic(err)
	}
	rec := httptest.NewRecorder()
	rec.WriteHeader(status)
	resp := rec.Result()
	resp.Request = req
	return httputil.NewStatusError(resp)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		desc     string
		err      error
		expected ErrorKind
	}{
		{"classified error", NewError(ErrKindDuplicateRelease, errors.New("dup")), ErrKindDuplicateRelease},
		{"wrapped classified error", fmt.Errorf("stage: %w", Errorf(ErrKindValidation, "bad field")), ErrKindValidation},
		{"network error", httputil.NewNetworkError(errors.New("connection refused")), ErrKindNetworkTransient},
		{"rate limited", statusError(429), ErrKindRateLimited},
		{"unauthorized", statusError(401), ErrKindAuthRejected},
		{"forbidden", statusError(403), ErrKindAuthRejected},
		{"bad gateway", statusError(502), ErrKindNetworkTransient},
		{"request timeout", statusError(408), ErrKindNetworkTransient},
		{"not found", statusError(404), ErrKindTrackerPermanent},
		{"server error", statusError(500), ErrKindNetworkTransient},
		{"plain error", errors.New("boom"), ErrKindInternalInvariant},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			require.Equal(t, test.expected, KindOf(test.err))
		})
	}
}

func TestErrorKindRetryable(t *testing.T) {
	require := require.New(t)

	require.True(ErrKindNetworkTransient.Retryable())
	require.True(ErrKindRateLimited.Retryable())
	require.True(ErrKindCircuitOpen.Retryable())
	require.True(ErrKindExternalUnavailable.Retryable())
	require.False(ErrKindValidation.Retryable())
	require.False(ErrKindTrackerPermanent.Retryable())
	require.False(ErrKindAuthRejected.Retryable())
	require.False(ErrKindUserCancelled.Retryable())
}
