// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package downloadclient

import (
	"context"

	"github.com/rs/zerolog/log"
)

type dryRunBackend struct {
	Backend
}

// NewDryRunBackend wraps backend so priority changes and deletes are only logged.
func NewDryRunBackend(backend Backend) Backend {
	return &dryRunBackend{Backend: backend}
}

func (d *dryRunBackend) SetFilesUnwanted(_ context.Context, download *Download, indexes []int) error {
	log.Info().
		Str("client", string(d.Type())).
		Str("hash", download.Hash).
		Ints("files", indexes).
		Msg("[dry run] would mark files as unwanted")
	return nil
}

func (d *dryRunBackend) DeleteDownload(_ context.Context, hash string) error {
	log.Info().
		Str("client", string(d.Type())).
		Str("hash", hash).
		Msg("[dry run] would delete download")
	return nil
}
