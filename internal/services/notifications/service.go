// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	defaultQueueSize = 100
	defaultWorkers   = 2
)

type Notifier interface {
	Notify(event Event)
}

// Sink delivers a formatted notification.
type Sink interface {
	Send(ctx context.Context, title, message string, event Event) error
}

// Service queues events and hands them to the sink from a small worker pool.
// Notify never blocks; events are dropped when the queue is full.
type Service struct {
	sink       Sink
	eventTypes []string
	logger     zerolog.Logger
	queue      chan Event
	startOnce  sync.Once
}

func NewService(sink Sink, eventTypes []string, logger zerolog.Logger) *Service {
	if sink == nil {
		return nil
	}

	return &Service{
		sink:       sink,
		eventTypes: eventTypes,
		logger:     logger,
		queue:      make(chan Event, defaultQueueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	if s == nil {
		return
	}

	s.startOnce.Do(func() {
		for range defaultWorkers {
			go s.worker(ctx)
		}
	})
}

func (s *Service) Notify(event Event) {
	if s == nil || s.sink == nil {
		return
	}

	if !allowsEvent(s.eventTypes, event.Type) {
		return
	}

	select {
	case s.queue <- event:
	default:
		s.logger.Warn().Str("event", string(event.Type)).Msg("notifications: queue full, dropping event")
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.queue:
			s.dispatch(ctx, event)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, event Event) {
	title, message := formatEvent(event)
	if strings.TrimSpace(message) == "" {
		return
	}

	if err := s.sink.Send(ctx, truncateMessage(title, maxTitleLength), truncateMessage(message, maxMessageLength), event); err != nil {
		s.logger.Error().Err(err).Str("event", string(event.Type)).Str("hash", event.Item.Hash).Msg("notifications: send failed")
	}
}

func formatEvent(event Event) (string, string) {
	lines := []string{
		formatLine("Item", fmt.Sprintf("%s%s", event.Item.Title, formatHashSuffix(event.Item.Hash))),
		formatLine("Reason", event.Reason),
	}

	var title string
	switch event.Type {
	case EventStrikeRaised:
		title = "Strike received"
		lines = append(lines, formatLine("Strikes", strconv.Itoa(event.StrikeCount)))
	case EventQueueItemDeleted:
		title = "Queue item deleted"
		lines = append(lines, formatLine("Removed from client", strconv.FormatBool(event.RemovedFromClient)))
	case EventDownloadCleaned:
		title = "Download cleaned"
		lines = append(lines,
			formatLine("Category", event.Category),
			formatLine("Ratio", strconv.FormatFloat(event.Ratio, 'f', 2, 64)),
			formatLine("Seeding time", event.SeedingTime.Round(time.Second).String()),
		)
	default:
		return "", ""
	}

	for _, field := range event.Fields {
		lines = append(lines, formatLine(field.Title, field.Text))
	}

	return title, buildMessage(instanceLabel(event), lines)
}

func instanceLabel(event Event) string {
	if event.Item.InstanceType == "" {
		return event.Item.InstanceURL
	}
	if event.Item.InstanceURL == "" {
		return string(event.Item.InstanceType)
	}
	return fmt.Sprintf("%s (%s)", event.Item.InstanceType, event.Item.InstanceURL)
}

func allowsEvent(eventTypes []string, eventType EventType) bool {
	if len(eventTypes) == 0 {
		return true
	}

	return slices.Contains(eventTypes, string(eventType))
}

func formatHashSuffix(hash string) string {
	trimmed := strings.TrimSpace(hash)
	if len(trimmed) < 8 {
		return ""
	}
	return fmt.Sprintf(" [%s]", trimmed[:8])
}

func formatLine(label, value string) string {
	trimmedLabel := strings.TrimSpace(label)
	trimmedValue := strings.TrimSpace(value)
	if trimmedLabel == "" || trimmedValue == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", trimmedLabel, trimmedValue)
}

func buildMessage(label string, lines []string) string {
	payload := make([]string, 0, len(lines)+1)
	if trimmed := strings.TrimSpace(label); trimmed != "" {
		payload = append(payload, formatLine("Instance", trimmed))
	}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			payload = append(payload, trimmed)
		}
	}
	return strings.Join(payload, "\n")
}

const (
	maxMessageLength = 420
	maxTitleLength   = 80
)

func truncateMessage(value string, limit int) string {
	if limit <= 0 {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	if limit <= 1 {
		return string(runes[:limit])
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
