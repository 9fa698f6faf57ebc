// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/autobrr/sweeparr/internal/domain"
)

type EventType string

const (
	EventStrikeRaised     EventType = "strike_raised"
	EventQueueItemDeleted EventType = "queue_item_deleted"
	EventDownloadCleaned  EventType = "download_cleaned"
)

type EventDefinition struct {
	Type        EventType `json:"type"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
}

var eventDefinitions = []EventDefinition{
	{Type: EventStrikeRaised, Label: "Strike raised", Description: "A queue item was observed in a bad state and received a strike."},
	{Type: EventQueueItemDeleted, Label: "Queue item deleted", Description: "A queue item was removed from an arr queue."},
	{Type: EventDownloadCleaned, Label: "Download cleaned", Description: "A completed download was removed from the download client."},
}

var eventTypeIndex = func() map[string]int {
	idx := make(map[string]int, len(eventDefinitions))
	for i, def := range eventDefinitions {
		idx[string(def.Type)] = i
	}
	return idx
}()

func EventDefinitions() []EventDefinition {
	out := make([]EventDefinition, len(eventDefinitions))
	copy(out, eventDefinitions)
	return out
}

func IsValidEventType(value string) bool {
	_, ok := eventTypeIndex[value]
	return ok
}

// NormalizeEventTypes validates the configured event filter and returns it
// de-duplicated in definition order.
func NormalizeEventTypes(input []string) ([]string, error) {
	if len(input) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(input))
	for _, raw := range input {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if !IsValidEventType(value) {
			return nil, fmt.Errorf("unknown event type: %s", value)
		}
		seen[value] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for _, def := range eventDefinitions {
		value := string(def.Type)
		if _, ok := seen[value]; ok {
			out = append(out, value)
		}
	}

	return out, nil
}

// Field is an optional key/value annotation rendered below the standard lines.
type Field struct {
	Title string
	Text  string
}

// Event is the payload handed to a Notifier. Which of the type specific
// fields are set depends on Type.
type Event struct {
	Type EventType
	Item domain.ItemContext

	Reason string
	Image  string
	Fields []Field

	// strike_raised
	StrikeCount int

	// queue_item_deleted
	RemovedFromClient bool

	// download_cleaned
	Ratio       float64
	SeedingTime time.Duration
	Category    string
}

func StrikeRaised(item domain.ItemContext, reason string, count int) Event {
	return Event{
		Type:        EventStrikeRaised,
		Item:        item,
		Reason:      reason,
		StrikeCount: count,
	}
}

func QueueItemDeleted(item domain.ItemContext, reason string, removedFromClient bool) Event {
	return Event{
		Type:              EventQueueItemDeleted,
		Item:              item,
		Reason:            reason,
		RemovedFromClient: removedFromClient,
	}
}

func DownloadCleaned(item domain.ItemContext, reason string, ratio float64, seedingTime time.Duration, category string) Event {
	return Event{
		Type:        EventDownloadCleaned,
		Item:        item,
		Reason:      reason,
		Ratio:       ratio,
		SeedingTime: seedingTime,
		Category:    category,
	}
}

// WithImage returns a copy of e carrying the poster url, if any.
func (e Event) WithImage(url string) Event {
	e.Image = url
	return e
}
