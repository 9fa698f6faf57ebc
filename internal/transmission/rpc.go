// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/autobrr/sweeparr/internal/buildinfo"
	"github.com/autobrr/sweeparr/pkg/httphelpers"
	"github.com/autobrr/sweeparr/pkg/redact"
)

const sessionHeader = "X-Transmission-Session-Id"

var errSessionConflict = errors.New("transmission session id expired")

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

type rpc struct {
	endpoint string
	client   *http.Client
	username string
	password string

	mu        sync.Mutex
	sessionID string
}

func (r *rpc) session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *rpc) setSession(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = id
}

// call sends one request, repeating it once when the server hands out a
// new session id.
func (r *rpc) call(ctx context.Context, method string, args, out any) error {
	err := r.do(ctx, method, args, out)
	if errors.Is(err, errSessionConflict) {
		err = r.do(ctx, method, args, out)
	}
	return err
}

func (r *rpc) do(ctx context.Context, method string, args, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return errors.Wrapf(err, "could not encode %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "could not build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if id := r.session(); id != "" {
		req.Header.Set(sessionHeader, id)
	}
	if r.username != "" || r.password != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrapf(redact.URLError(err), "%s failed", method)
	}
	defer httphelpers.DrainAndClose(resp)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		r.setSession(resp.Header.Get(sessionHeader))
		return errSessionConflict
	case http.StatusUnauthorized:
		return errors.Errorf("%s: invalid transmission credentials", method)
	default:
		return errors.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, httphelpers.ErrorBody(resp))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "could not decode %s response", method)
	}
	if envelope.Result != "success" {
		return errors.Errorf("%s: %s", method, envelope.Result)
	}

	if out == nil || len(envelope.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Arguments, out); err != nil {
		return errors.Wrapf(err, "could not decode %s arguments", method)
	}
	return nil
}
