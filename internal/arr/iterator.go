// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
)

const (
	PageSize = 200
	// MaxPages bounds a walk when the server keeps reporting more records.
	MaxPages = 100
)

// QueueFetcher is the part of Client the iterator needs.
type QueueFetcher interface {
	GetQueuePage(ctx context.Context, instance domain.ArrInstance, page int) (*QueuePage, error)
}

// Iterate walks every queue page of instance and hands each batch to fn.
// It stops once the reported total has been seen, on an empty page, or at
// MaxPages. Errors from fetching or from fn abort the walk.
func Iterate(ctx context.Context, client QueueFetcher, instance domain.ArrInstance, fn func(ctx context.Context, records []QueueRecord) error) error {
	var processed, total int

	for page := 1; page <= MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		qp, err := client.GetQueuePage(ctx, instance, page)
		if err != nil {
			return fmt.Errorf("could not fetch queue page %d of %s: %w", page, instance.Name, err)
		}
		if page == 1 {
			total = qp.TotalRecords
		}

		if len(qp.Records) == 0 {
			return nil
		}

		if err := fn(ctx, qp.Records); err != nil {
			return err
		}

		processed += len(qp.Records)
		if processed >= total {
			return nil
		}
	}

	log.Warn().
		Str("instance", instance.Name).
		Int("processed", processed).
		Int("total", total).
		Msg("queue page limit reached, remaining records skipped")
	return nil
}
