// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package notifications

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/sweeparr/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	titles []string
	events []Event
}

func (r *recordingSink) Send(_ context.Context, title, _ string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingNotifier struct {
	events []Event
}

func (r *recordingNotifier) Notify(event Event) {
	r.events = append(r.events, event)
}

var testItem = domain.ItemContext{
	InstanceType: domain.InstanceTypeSonarr,
	InstanceURL:  "http://sonarr:8989",
	Hash:         "0123456789abcdef",
	Title:        "Show.S01E01.1080p",
}

func TestServiceDeliversAllowedEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	svc := NewService(sink, []string{string(EventQueueItemDeleted)}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	svc.Notify(StrikeRaised(testItem, "Stalled", 1))
	svc.Notify(QueueItemDeleted(testItem, "Stalled", true))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, EventQueueItemDeleted, sink.events[0].Type)
	assert.Equal(t, "Queue item deleted", sink.titles[0])
}

func TestNilServiceIsSafe(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil, zerolog.Nop())
	assert.Nil(t, svc)
	svc.Start(context.Background())
	svc.Notify(StrikeRaised(testItem, "Stalled", 1))
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		event     Event
		wantTitle string
		wantLines []string
	}{
		{
			name:      "strike raised",
			event:     StrikeRaised(testItem, "Stalled", 2),
			wantTitle: "Strike received",
			wantLines: []string{"Instance: sonarr (http://sonarr:8989)", "Item: Show.S01E01.1080p [01234567]", "Reason: Stalled", "Strikes: 2"},
		},
		{
			name:      "queue item deleted",
			event:     QueueItemDeleted(testItem, "AllFilesBlocked", false),
			wantTitle: "Queue item deleted",
			wantLines: []string{"Reason: AllFilesBlocked", "Removed from client: false"},
		},
		{
			name:      "download cleaned",
			event:     DownloadCleaned(testItem, "MaxRatioReached", 1.5, 90*time.Minute, "tv"),
			wantTitle: "Download cleaned",
			wantLines: []string{"Category: tv", "Ratio: 1.50", "Seeding time: 1h30m0s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			title, message := formatEvent(tt.event)
			assert.Equal(t, tt.wantTitle, title)
			for _, line := range tt.wantLines {
				assert.Contains(t, message, line)
			}
		})
	}
}

func TestFormatEventIncludesFields(t *testing.T) {
	t.Parallel()

	event := StrikeRaised(testItem, "Stalled", 1)
	event.Fields = []Field{{Title: "Client", Text: "deluge"}}

	_, message := formatEvent(event)
	assert.Contains(t, message, "Client: deluge")
}

func TestDryRunSuppressesDelivery(t *testing.T) {
	t.Parallel()

	next := &recordingNotifier{}

	NewDryRun(next, true, zerolog.Nop()).Notify(StrikeRaised(testItem, "Stalled", 1))
	assert.Empty(t, next.events)

	NewDryRun(next, false, zerolog.Nop()).Notify(StrikeRaised(testItem, "Stalled", 1))
	assert.Len(t, next.events, 1)
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	a, b := &recordingNotifier{}, &recordingNotifier{}
	Multi{a, nil, b}.Notify(QueueItemDeleted(testItem, "Stalled", true))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestNormalizeEventTypes(t *testing.T) {
	t.Parallel()

	got, err := NormalizeEventTypes([]string{"download_cleaned", " strike_raised ", "strike_raised", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"strike_raised", "download_cleaned"}, got)

	_, err = NormalizeEventTypes([]string{"torrent_completed"})
	require.Error(t, err)
}
