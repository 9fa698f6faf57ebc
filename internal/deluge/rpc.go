// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package deluge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/autobrr/sweeparr/internal/buildinfo"
	"github.com/autobrr/sweeparr/pkg/httphelpers"
	"github.com/autobrr/sweeparr/pkg/redact"
)

var (
	// ErrProtocolDesync is returned when a response id does not match its request.
	ErrProtocolDesync   = errors.New("deluge response id does not match request")
	ErrNotAuthenticated = errors.New("deluge session is not authenticated")
)

// errCodeNotAuthenticated is what the web ui reports for an expired session.
const errCodeNotAuthenticated = 1

type rpcRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpc struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Uint64
}

// call posts one request envelope to the json endpoint and decodes result
// into out when it is non-nil.
func (r *rpc) call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	id := r.nextID.Add(1)

	body, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return errors.Wrapf(err, "could not encode %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "could not build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrapf(redact.URLError(err), "%s failed", method)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, httphelpers.ErrorBody(resp))
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "could not decode %s response", method)
	}

	if envelope.ID != id {
		return errors.Wrapf(ErrProtocolDesync, "%s: sent id %d, received %d", method, id, envelope.ID)
	}

	if envelope.Error != nil {
		if envelope.Error.Code == errCodeNotAuthenticated {
			return errors.Wrap(ErrNotAuthenticated, method)
		}
		return errors.Errorf("%s: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return errors.Wrapf(err, "could not decode %s result", method)
	}
	return nil
}
