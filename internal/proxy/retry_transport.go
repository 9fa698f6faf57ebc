// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package proxy holds the outgoing HTTP plumbing shared by every backend client.
package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/pkg/httphelpers"
	"github.com/autobrr/sweeparr/pkg/redact"
)

const (
	DefaultMaxRetries = 3
	initialRetryWait  = 250 * time.Millisecond
	maxRetryWait      = 5 * time.Second
)

// RetryTransport wraps an http.RoundTripper with retries for transient
// network errors and 429/5xx responses. Requests that were never sent (dial
// failures) are retried for every method, everything else only for
// idempotent methods.
type RetryTransport struct {
	base       http.RoundTripper
	maxRetries int
	wait       time.Duration
	maxWait    time.Duration
}

func NewRetryTransport(base http.RoundTripper, maxRetries int) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &RetryTransport{
		base:       base,
		maxRetries: maxRetries,
		wait:       initialRetryWait,
		maxWait:    maxRetryWait,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.code)
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A body that can not be rewound is only sent once.
	if !canReplay(req) {
		return t.base.RoundTrip(req)
	}

	attempts := uint(t.maxRetries) + 1
	var (
		resp    *http.Response
		attempt uint
	)

	err := retry.Do(
		func() error {
			attempt++

			attemptReq, err := cloneRequest(req)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			r, err := t.base.RoundTrip(attemptReq)
			if err != nil {
				return err
			}

			if attempt < attempts && isRetryableStatus(r.StatusCode) && isIdempotentMethod(req.Method) {
				httphelpers.DrainAndClose(r)
				return &statusError{code: r.StatusCode}
			}

			resp = r
			return nil
		},
		retry.Context(req.Context()),
		retry.Attempts(attempts),
		retry.Delay(t.wait),
		retry.MaxDelay(t.maxWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return shouldRetry(req.Method, err)
		}),
		retry.OnRetry(func(n uint, err error) {
			t.closeIdleConnections()
			log.Debug().
				Err(redact.URLError(err)).
				Str("method", req.Method).
				Str("url", redact.URL(req.URL.String())).
				Uint("attempt", n+1).
				Msg("request failed with retryable error, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func canReplay(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("could not replay request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// closeIdleConnections clears potentially stale pooled connections after a failure.
func (t *RetryTransport) closeIdleConnections() {
	type closeIdler interface {
		CloseIdleConnections()
	}

	if tr, ok := t.base.(closeIdler); ok {
		tr.CloseIdleConnections()
	}
}

func shouldRetry(method string, err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return true
	}

	if isDialError(err) {
		return true
	}

	return isIdempotentMethod(method) && isRetryableError(err)
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// isRetryableError determines if an error is a transient network error that should be retried
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// A timeout might be a legitimately slow backend.
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "read") {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such host") ||
		(strings.Contains(errStr, "eof") && !strings.Contains(errStr, "unexpected eof"))
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// isIdempotentMethod checks if the HTTP method is safe to retry
func isIdempotentMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// NewHTTPClient returns the client used for every outgoing request.
func NewHTTPClient(timeout time.Duration, maxRetries int) *http.Client {
	if timeout <= 0 {
		timeout = 100 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: NewRetryTransport(http.DefaultTransport.(*http.Transport).Clone(), maxRetries),
	}
}
