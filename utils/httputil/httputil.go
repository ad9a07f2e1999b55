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

// Package httputil provides a thin wrapper around net/http which classifies
// transport failures and retries transient ones with exponential backoff.
package httputil

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

type sendOptions struct {
	body          io.Reader
	timeout       time.Duration
	acceptedCodes map[int]bool
	headers       map[string]string
	redirect      func(req *http.Request, via []*http.Request) error
	retry         retryOptions
	transport     http.RoundTripper
	ctx           context.Context
	tls           *tls.Config
}

// defaultSendOptions must be valid for any endpoint.
func defaultSendOptions() sendOptions {
	return sendOptions{
		timeout:       60 * time.Second,
		acceptedCodes: map[int]bool{http.StatusOK: true},
		headers:       map[string]string{},
		retry:         retryOptions{max: 1},
		transport:     nil, // Use HTTP default.
		ctx:           context.Background(),
	}
}

// SendOption allows overriding defaults for the Send function.
type SendOption func(*sendOptions)

// SendNoop returns a no-op option.
func SendNoop() SendOption {
	return func(o *sendOptions) {}
}

// SendBody specifies a body for http request.
func SendBody(body io.Reader) SendOption {
	return func(o *sendOptions) { o.body = body }
}

// SendTimeout specifies timeout for http request.
func SendTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = timeout }
}

// SendHeaders specifies headers for http request.
func SendHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) { o.headers = headers }
}

// SendAcceptedCodes specifies accepted codes for http request.
func SendAcceptedCodes(codes ...int) SendOption {
	m := make(map[int]bool)
	for _, c := range codes {
		m[c] = true
	}
	return func(o *sendOptions) { o.acceptedCodes = m }
}

// SendRedirect specifies a redirect policy for http request.
func SendRedirect(redirect func(req *http.Request, via []*http.Request) error) SendOption {
	return func(o *sendOptions) { o.redirect = redirect }
}

// SendTransport specifies transport for http request.
func SendTransport(transport http.RoundTripper) SendOption {
	return func(o *sendOptions) { o.transport = transport }
}

// SendContext specifies a context for http request.
func SendContext(ctx context.Context) SendOption {
	return func(o *sendOptions) { o.ctx = ctx }
}

// SendTLS specifies a tls config for http request.
func SendTLS(config *tls.Config) SendOption {
	return func(o *sendOptions) {
		if config == nil {
			return
		}
		o.tls = config
	}
}

type retryOptions struct {
	backoff    backoff.BackOff
	max        int
	extraCodes map[int]bool
}

// RetryOption allows overriding defaults for the SendRetry option.
type RetryOption func(*retryOptions)

// RetryBackoff specifies a backoff policy between retries.
func RetryBackoff(b backoff.BackOff) RetryOption {
	return func(o *retryOptions) { o.backoff = b }
}

// RetryMax specifies the max number of attempts.
func RetryMax(max int) RetryOption {
	return func(o *retryOptions) { o.max = max }
}

// RetryCodes specifies additional status codes to retry on, beyond the
// default transient set (408, 429, 502, 503, 504).
func RetryCodes(codes ...int) RetryOption {
	return func(o *retryOptions) {
		for _, c := range codes {
			o.extraCodes[c] = true
		}
	}
}

// SendRetry will we retry the request on network / transient errors with
// exponential backoff. A 429 wait honors the server's Retry-After if longer
// than the backoff.
func SendRetry(options ...RetryOption) SendOption {
	retry := retryOptions{
		backoff: backoff.WithMaxRetries(
			&backoff.ExponentialBackOff{
				InitialInterval:     time.Second,
				RandomizationFactor: 0.05,
				Multiplier:          2,
				MaxInterval:         30 * time.Second,
				Clock:               backoff.SystemClock,
			},
			4),
		max:        5,
		extraCodes: make(map[int]bool),
	}
	for _, o := range options {
		o(&retry)
	}
	retry.backoff.Reset()
	return func(o *sendOptions) { o.retry = retry }
}

func (o *retryOptions) retryable(err error) bool {
	if IsRetryable(err) {
		return true
	}
	if statusErr, ok := err.(StatusError); ok {
		return o.extraCodes[statusErr.Status]
	}
	return false
}

// Send sends an HTTP request. May return NetworkError or StatusError (see
// errors.go), which allows caller to retry requests at higher levels.
func Send(method, rawurl string, options ...SendOption) (resp *http.Response, err error) {
	opts := defaultSendOptions()
	for _, o := range options {
		o(&opts)
	}

	req, err := newRequest(method, rawurl, opts)
	if err != nil {
		return nil, err
	}

	client := http.Client{
		Timeout:       opts.timeout,
		CheckRedirect: opts.redirect,
		Transport:     opts.transport,
	}
	if opts.tls != nil {
		client.Transport = &http.Transport{TLSClientConfig: opts.tls}
	}

	for attempt := 0; ; attempt++ {
		resp, err = client.Do(req)
		if err != nil {
			err = NewNetworkError(err)
		} else if !opts.acceptedCodes[resp.StatusCode] {
			err = NewStatusError(resp)
		} else {
			return resp, nil
		}
		if attempt+1 >= opts.retry.max || !opts.retry.retryable(err) {
			break
		}
		d := opts.retry.backoff.NextBackOff()
		if d == backoff.Stop {
			break
		}
		if ra := RetryAfter(err); ra > d {
			d = ra
		}
		select {
		case <-time.After(d):
		case <-opts.ctx.Done():
			return nil, opts.ctx.Err()
		}
		// Bodies are single-use; rewind seekable bodies and rebuild the
		// request per attempt.
		if s, ok := opts.body.(io.Seeker); ok && opts.body != nil {
			if _, err := s.Seek(0, io.SeekStart); err != nil {
				return nil, NewNetworkError(err)
			}
		}
		req, err = newRequest(method, rawurl, opts)
		if err != nil {
			return nil, err
		}
	}
	return nil, err
}

func newRequest(method, rawurl string, opts sendOptions) (*http.Request, error) {
	req, err := http.NewRequest(method, rawurl, opts.body)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(opts.ctx)
	if opts.body == nil {
		req.ContentLength = 0
	}
	for key, val := range opts.headers {
		req.Header.Set(key, val)
	}
	return req, nil
}

// Get sends a GET http request.
func Get(url string, options ...SendOption) (*http.Response, error) {
	return Send("GET", url, options...)
}

// Head sends a HEAD http request.
func Head(url string, options ...SendOption) (*http.Response, error) {
	return Send("HEAD", url, options...)
}

// Post sends a POST http request.
func Post(url string, options ...SendOption) (*http.Response, error) {
	return Send("POST", url, options...)
}

// Put sends a PUT http request.
func Put(url string, options ...SendOption) (*http.Response, error) {
	return Send("PUT", url, options...)
}

// Patch sends a PATCH http request.
func Patch(url string, options ...SendOption) (*http.Response, error) {
	return Send("PATCH", url, options...)
}

// Delete sends a DELETE http request.
func Delete(url string, options ...SendOption) (*http.Response, error) {
	return Send("DELETE", url, options...)
}
