// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
)

// DryRun forwards reads to the wrapped client and logs mutations instead of
// sending them.
type DryRun struct {
	Client
}

func NewDryRun(client Client) *DryRun {
	return &DryRun{Client: client}
}

func (d *DryRun) DeleteQueueItem(_ context.Context, instance domain.ArrInstance, record QueueRecord, removeFromClient bool, reason DeleteReason) error {
	log.Info().
		Str("arr", string(d.Type())).
		Str("instance", instance.Name).
		Int64("id", record.ID).
		Str("title", record.Title).
		Str("reason", string(reason)).
		Bool("removeFromClient", removeFromClient).
		Msg("[dry run] would delete queue item")
	return nil
}

func (d *DryRun) RefreshItems(_ context.Context, instance domain.ArrInstance, items []SearchItem) error {
	if len(items) == 0 {
		return nil
	}
	log.Info().
		Str("arr", string(d.Type())).
		Str("instance", instance.Name).
		Int("items", len(items)).
		Msg("[dry run] would trigger search")
	return nil
}
