// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strikes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/services/notifications"
)

type recordingNotifier struct {
	events []notifications.Event
}

func (r *recordingNotifier) Notify(event notifications.Event) {
	r.events = append(r.events, event)
}

func item(hash string) domain.ItemContext {
	return domain.ItemContext{
		InstanceType: domain.InstanceTypeRadarr,
		InstanceURL:  "http://radarr:7878",
		Hash:         hash,
		Title:        "Movie.2024.1080p",
	}
}

func TestStrikeAndCheckLimit(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	tracker := NewTracker(DefaultConfig(), notifier)
	it := item("ABCDEF")

	assert.False(t, tracker.StrikeAndCheckLimit(it, 3, ReasonStalled))
	assert.False(t, tracker.StrikeAndCheckLimit(it, 3, ReasonStalled))
	assert.True(t, tracker.StrikeAndCheckLimit(it, 3, ReasonStalled))
	assert.True(t, tracker.StrikeAndCheckLimit(it, 3, ReasonStalled), "over the limit still removes")

	assert.Equal(t, 4, tracker.Count("abcdef", ReasonStalled))
	assert.Len(t, notifier.events, 4)
	assert.Equal(t, 4, notifier.events[3].StrikeCount)
	assert.Equal(t, "Stalled", notifier.events[3].Reason)
}

func TestStrikeDisabled(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	tracker := NewTracker(DefaultConfig(), notifier)

	for range 10 {
		assert.False(t, tracker.StrikeAndCheckLimit(item("abc"), 0, ReasonStalled))
	}
	assert.Zero(t, tracker.Count("abc", ReasonStalled))
	assert.Empty(t, notifier.events)
}

func TestStrikesAreScopedByReason(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(DefaultConfig(), nil)
	it := item("abc")

	assert.False(t, tracker.StrikeAndCheckLimit(it, 2, ReasonStalled))
	assert.False(t, tracker.StrikeAndCheckLimit(it, 2, ReasonImportFailed))
	assert.True(t, tracker.StrikeAndCheckLimit(it, 2, ReasonStalled))

	assert.Equal(t, 1, tracker.Count("abc", ReasonImportFailed))
}

func TestResetOnProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		observed    int64
		wantStrikes int
	}{
		{name: "progress clears stalled strikes", observed: 200, wantStrikes: 0},
		{name: "same bytes keep strikes", observed: 100, wantStrikes: 2},
		{name: "fewer bytes keep strikes", observed: 50, wantStrikes: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker := NewTracker(DefaultConfig(), nil)
			it := item("HASH1")

			tracker.ResetOnProgress(it.Hash, 100)
			tracker.StrikeAndCheckLimit(it, 5, ReasonStalled)
			tracker.StrikeAndCheckLimit(it, 5, ReasonStalled)
			tracker.StrikeAndCheckLimit(it, 5, ReasonImportFailed)

			tracker.ResetOnProgress("hash1", tt.observed)

			assert.Equal(t, tt.wantStrikes, tracker.Count(it.Hash, ReasonStalled))
			assert.Equal(t, 1, tracker.Count(it.Hash, ReasonImportFailed), "only stalled strikes reset")
		})
	}
}

func TestResetOnProgressFirstObservation(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(DefaultConfig(), nil)
	it := item("hash2")

	tracker.StrikeAndCheckLimit(it, 5, ReasonStalled)
	tracker.ResetOnProgress(it.Hash, 1000)

	assert.Equal(t, 1, tracker.Count(it.Hash, ReasonStalled), "no cached bytes means no progress")
}
