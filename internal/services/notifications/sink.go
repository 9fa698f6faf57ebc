// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// LogSink writes notifications to the application log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(_ context.Context, title, message string, event Event) error {
	s.logger.Info().
		Str("event", string(event.Type)).
		Str("instance", event.Item.InstanceURL).
		Str("hash", event.Item.Hash).
		Str("title", title).
		Msg(strings.ReplaceAll(message, "\n", " | "))
	return nil
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(event)
		}
	}
}

// DryRun logs events instead of forwarding them while enabled.
type DryRun struct {
	next    Notifier
	enabled bool
	logger  zerolog.Logger
}

func NewDryRun(next Notifier, enabled bool, logger zerolog.Logger) *DryRun {
	return &DryRun{next: next, enabled: enabled, logger: logger}
}

func (d *DryRun) Notify(event Event) {
	if !d.enabled {
		if d.next != nil {
			d.next.Notify(event)
		}
		return
	}

	d.logger.Info().
		Str("event", string(event.Type)).
		Str("hash", event.Item.Hash).
		Str("reason", event.Reason).
		Msg("dry run: notification suppressed")
}
