// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact strips credentials from URLs before they end up in logs.
package redact

import (
	"errors"
	"net/url"
	"strings"
)

const placeholder = "REDACTED"

var sensitiveParams = map[string]struct{}{
	"apikey":   {},
	"api_key":  {},
	"token":    {},
	"passkey":  {},
	"password": {},
	"pass":     {},
	"secret":   {},
}

// URL returns raw with sensitive query values and userinfo passwords replaced.
// Unparseable input is returned unchanged.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), placeholder)
		}
	}

	if u.RawQuery != "" {
		query := u.Query()
		changed := false
		for key := range query {
			if _, ok := sensitiveParams[strings.ToLower(key)]; ok {
				query.Set(key, placeholder)
				changed = true
			}
		}
		if changed {
			u.RawQuery = query.Encode()
		}
	}

	return u.String()
}

// URLError returns err with the URL of any wrapped *url.Error redacted.
// The *url.Error type is preserved so callers can still use errors.As.
func URLError(err error) error {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}

	redacted := &url.Error{Op: urlErr.Op, URL: URL(urlErr.URL), Err: urlErr.Err}
	if err == error(urlErr) {
		return redacted
	}

	return &wrappedError{
		msg: strings.ReplaceAll(err.Error(), urlErr.URL, redacted.URL),
		err: redacted,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.err }
