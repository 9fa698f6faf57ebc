// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(maxRetries int) *RetryTransport {
	tr := NewRetryTransport(http.DefaultTransport.(*http.Transport).Clone(), maxRetries)
	tr.wait = time.Millisecond
	tr.maxWait = 5 * time.Millisecond
	return tr
}

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("ok:" + string(body)))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRetryTransport_RetriesIdempotentOnServerError(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 2, http.StatusServiceUnavailable)
	client := &http.Client{Transport: newTestTransport(3)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryTransport_ReturnsLastResponseWhenExhausted(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 10, http.StatusBadGateway)
	client := &http.Client{Transport: newTestTransport(2)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryTransport_DoesNotRetryPostOnServerError(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 1, http.StatusInternalServerError)
	client := &http.Client{Transport: newTestTransport(3)}

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetryTransport_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	srv, hits := flakyServer(t, 5, http.StatusUnauthorized)
	client := &http.Client{Transport: newTestTransport(3)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestRetryTransport_BodyReplay(t *testing.T) {
	t.Parallel()

	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	tests := []struct {
		name      string
		body      func() io.Reader
		wantCalls int32
		wantErr   bool
	}{
		{name: "rewindable body is resent", body: func() io.Reader { return strings.NewReader("payload") }, wantCalls: 2},
		{name: "one shot body is sent once", body: func() io.Reader { return io.NopCloser(strings.NewReader("payload")) }, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			var bodies []string
			base := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				data, err := io.ReadAll(req.Body)
				require.NoError(t, err)
				bodies = append(bodies, string(data))
				if calls.Add(1) == 1 {
					return nil, dialErr
				}
				return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
			})

			tr := NewRetryTransport(base, 3)
			tr.wait = time.Millisecond
			tr.maxWait = 5 * time.Millisecond

			req, err := http.NewRequest(http.MethodPost, "http://deluge.local/json", tt.body())
			require.NoError(t, err)

			resp, err := tr.RoundTrip(req)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				resp.Body.Close()
			}

			assert.Equal(t, tt.wantCalls, calls.Load())
			for _, b := range bodies {
				assert.Equal(t, "payload", b)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	readErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")}

	tests := []struct {
		name   string
		method string
		err    error
		want   bool
	}{
		{name: "status error", method: http.MethodGet, err: &statusError{code: 503}, want: true},
		{name: "dial error on post", method: http.MethodPost, err: dialErr, want: true},
		{name: "read error on get", method: http.MethodGet, err: readErr, want: true},
		{name: "read error on post", method: http.MethodPost, err: readErr, want: false},
		{name: "plain error", method: http.MethodGet, err: errors.New("bad things"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, shouldRetry(tt.method, tt.err))
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client := NewHTTPClient(0, 2)
	assert.Equal(t, 100*time.Second, client.Timeout)

	tr, ok := client.Transport.(*RetryTransport)
	require.True(t, ok)
	assert.Equal(t, 2, tr.maxRetries)
}
