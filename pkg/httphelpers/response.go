// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package httphelpers

import (
	"io"
	"net/http"
	"strings"
)

const errorBodyLimit = 512

// DrainAndClose consumes the remaining response body and closes it to allow connection reuse.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ErrorBody returns a trimmed excerpt of the response body for error messages.
func ErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return strings.TrimSpace(string(data))
}

// NormalizeBasePath returns the path with one leading slash and no trailing
// slash, or an empty string for the root.
func NormalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// JoinBasePath appends suffix to a normalized base path.
func JoinBasePath(basePath, suffix string) string {
	base := NormalizeBasePath(basePath)
	suffix = strings.TrimLeft(suffix, "/")
	if suffix == "" {
		if base == "" {
			return "/"
		}
		return base
	}
	return base + "/" + suffix
}
