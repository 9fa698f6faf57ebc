// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package downloadclient

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/blocklist"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/seeding"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/internal/strikes"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

type fakeBackend struct {
	mu        sync.Mutex
	downloads map[string]*Download
	getErr    error
	deleteErr error

	unwantedCalls [][]int
	deleted       []string
}

func newFakeBackend(downloads ...Download) *fakeBackend {
	f := &fakeBackend{downloads: make(map[string]*Download)}
	for i := range downloads {
		d := downloads[i]
		f.downloads[d.Hash] = &d
	}
	return f
}

func (f *fakeBackend) Type() domain.DownloadClientType { return domain.DownloadClientQbittorrent }

func (f *fakeBackend) Login(context.Context) error { return nil }

func (f *fakeBackend) GetDownload(_ context.Context, hash string) (*Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.downloads[hashutil.Normalize(hash)]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeBackend) ListDownloads(context.Context) ([]Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Download, 0, len(f.downloads))
	for _, d := range f.downloads {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeBackend) SetFilesUnwanted(_ context.Context, _ *Download, indexes []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unwantedCalls = append(f.unwantedCalls, indexes)
	return nil
}

func (f *fakeBackend) DeleteDownload(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, hash)
	return nil
}

func (f *fakeBackend) setDownloaded(hash string, downloaded int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[hash].Downloaded = downloaded
}

type captureNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (c *captureNotifier) Notify(event notifications.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) ofType(eventType notifications.EventType) []notifications.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notifications.Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestAdapter(backend Backend) (*Adapter, *captureNotifier) {
	notifier := &captureNotifier{}
	tracker := strikes.NewTracker(strikes.DefaultConfig(), notifier)
	return NewAdapter(backend, tracker, notifier), notifier
}

func item(hash string) domain.ItemContext {
	return domain.ItemContext{InstanceType: domain.InstanceTypeSonarr, InstanceURL: "http://sonarr", Hash: hash, Title: "Show.S01E01"}
}

func stalledDownload(hash string) Download {
	return Download{
		Hash:     hash,
		Name:     "Show.S01E01",
		Activity: ActivityDownloading,
		Files:    []File{{Index: 0, Name: "show.mkv", Wanted: true}},
	}
}

func TestShouldRemoveFromQueueNotFound(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(newFakeBackend())

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("missing"), StalledOptions{MaxStrikes: 1})
	require.NoError(t, err)
	assert.Equal(t, StalledResult{}, res)
}

func TestShouldRemoveFromQueueZeroFilesIsNotFound(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.Files = nil
	adapter, _ := newTestAdapter(newFakeBackend(d))

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{MaxStrikes: 1})
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)
}

func TestShouldRemoveFromQueueBackendError(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.getErr = errors.New("connection refused")
	adapter, _ := newTestAdapter(backend)

	_, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{})
	require.Error(t, err)
}

func TestShouldRemoveFromQueueAllUnwanted(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.Private = true
	d.Files = []File{{Index: 0, Name: "a.exe"}, {Index: 1, Name: "b.exe"}}
	adapter, _ := newTestAdapter(newFakeBackend(d))

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("AAA"), StalledOptions{IgnorePrivate: true})
	require.NoError(t, err)
	assert.True(t, res.ShouldRemove)
	assert.True(t, res.IsPrivate)
	assert.Equal(t, arr.DeleteReasonAllFilesBlocked, res.Reason)
}

func TestShouldRemoveFromQueueStalledStrikes(t *testing.T) {
	t.Parallel()

	adapter, notifier := newTestAdapter(newFakeBackend(stalledDownload("aaa")))
	opts := StalledOptions{MaxStrikes: 3}

	for i := 1; i <= 3; i++ {
		res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
		require.NoError(t, err)
		assert.Equal(t, i == 3, res.ShouldRemove, "strike %d", i)
		assert.Equal(t, arr.DeleteReasonStalled, res.Reason)
	}

	assert.Len(t, notifier.ofType(notifications.EventStrikeRaised), 3)
}

func TestShouldRemoveFromQueuePositiveETA(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.ETA = time.Hour
	adapter, notifier := newTestAdapter(newFakeBackend(d))

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{MaxStrikes: 1})
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)
	assert.Empty(t, notifier.ofType(notifications.EventStrikeRaised))
}

func TestShouldRemoveFromQueueInactiveStates(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.Activity = ActivityOther
	adapter, _ := newTestAdapter(newFakeBackend(d))

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{MaxStrikes: 1})
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)
}

func TestShouldRemoveFromQueuePrivateIgnored(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.Private = true
	adapter, _ := newTestAdapter(newFakeBackend(d))

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{MaxStrikes: 1, IgnorePrivate: true})
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)
	assert.True(t, res.IsPrivate)

	res, err = adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), StalledOptions{MaxStrikes: 1})
	require.NoError(t, err)
	assert.True(t, res.ShouldRemove)
	assert.True(t, res.IsPrivate)
}

func TestShouldRemoveFromQueueProgressResetsStrikes(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(stalledDownload("aaa"))
	adapter, _ := newTestAdapter(backend)
	opts := StalledOptions{MaxStrikes: 2}

	backend.setDownloaded("aaa", 100)
	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)

	backend.setDownloaded("aaa", 200)
	res, err = adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove, "progress should clear the first strike")

	res, err = adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
	require.NoError(t, err)
	assert.True(t, res.ShouldRemove)
}

func TestShouldRemoveFromQueueFetchingMetadata(t *testing.T) {
	t.Parallel()

	d := stalledDownload("aaa")
	d.Activity = ActivityFetchingMetadata
	d.Files = nil
	adapter, _ := newTestAdapter(newFakeBackend(d))
	opts := StalledOptions{MaxStrikes: 1, MetadataMaxStrikes: 2}

	res, err := adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
	require.NoError(t, err)
	assert.False(t, res.ShouldRemove)
	assert.Equal(t, arr.DeleteReasonDownloadingMetadata, res.Reason)

	res, err = adapter.ShouldRemoveFromQueue(context.Background(), item("aaa"), opts)
	require.NoError(t, err)
	assert.True(t, res.ShouldRemove)
}

func blacklist(patterns ...string) *blocklist.List {
	return &blocklist.List{Type: blocklist.Blacklist, Patterns: patterns}
}

func TestBlockUnwantedFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		download     Download
		list         *blocklist.List
		opts         BlockOptions
		wantRemove   bool
		wantPrivate  bool
		wantUnwanted [][]int
	}{
		{
			name: "blocks matching files only",
			download: Download{Hash: "aaa", Files: []File{
				{Index: 0, Name: "Show/show.mkv", Wanted: true},
				{Index: 1, Name: "Show/sample.exe", Wanted: true},
				{Index: 2, Name: `Show\readme.txt`, Wanted: true},
			}},
			list:         blacklist("*.exe", "readme.txt"),
			wantUnwanted: [][]int{{1, 2}},
		},
		{
			name: "all unwanted shortcut issues no priority updates",
			download: Download{Hash: "aaa", Files: []File{
				{Index: 0, Name: "a.exe", Wanted: true},
				{Index: 1, Name: "b.exe", Wanted: true},
			}},
			list:       blacklist("*.exe"),
			wantRemove: true,
		},
		{
			name: "already unwanted files count towards removal without re-evaluation",
			download: Download{Hash: "aaa", Files: []File{
				{Index: 0, Name: "a.mkv", Wanted: false},
				{Index: 1, Name: "b.exe", Wanted: true},
			}},
			list:       blacklist("*.exe"),
			wantRemove: true,
		},
		{
			name: "already unwanted files are not updated again",
			download: Download{Hash: "aaa", Files: []File{
				{Index: 0, Name: "a.exe", Wanted: false},
				{Index: 1, Name: "b.mkv", Wanted: true},
			}},
			list: blacklist("*.exe"),
		},
		{
			name: "private skipped when configured",
			download: Download{Hash: "aaa", Private: true, Files: []File{
				{Index: 0, Name: "a.exe", Wanted: true},
			}},
			list:        blacklist("*.exe"),
			opts:        BlockOptions{IgnorePrivate: true},
			wantPrivate: true,
		},
		{
			name: "private evaluated otherwise",
			download: Download{Hash: "aaa", Private: true, Files: []File{
				{Index: 0, Name: "a.exe", Wanted: true},
			}},
			list:        blacklist("*.exe"),
			wantRemove:  true,
			wantPrivate: true,
		},
		{
			name: "whitelist keeps matching names",
			download: Download{Hash: "aaa", Files: []File{
				{Index: 0, Name: "show.mkv", Wanted: true},
				{Index: 1, Name: "show.nfo", Wanted: true},
			}},
			list: &blocklist.List{
				Type:    blocklist.Whitelist,
				Regexes: []*regexp.Regexp{regexp.MustCompile(`(?i)\.mkv$`)},
			},
			wantUnwanted: [][]int{{1}},
		},
		{
			name:     "zero files treated as not found",
			download: Download{Hash: "aaa"},
			list:     blacklist("*"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := newFakeBackend(tt.download)
			adapter, _ := newTestAdapter(backend)

			decision, err := adapter.BlockUnwantedFiles(context.Background(), item("aaa"), tt.list, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemove, decision.ShouldRemove)
			assert.Equal(t, tt.wantPrivate, decision.IsPrivate)
			assert.Equal(t, tt.wantUnwanted, backend.unwantedCalls)
		})
	}
}

func TestBlockUnwantedFilesNotFound(t *testing.T) {
	t.Parallel()

	adapter, _ := newTestAdapter(newFakeBackend())

	decision, err := adapter.BlockUnwantedFiles(context.Background(), item("nope"), blacklist("*"), BlockOptions{})
	require.NoError(t, err)
	assert.Equal(t, BlockDecision{}, decision)
}

func completed(hash, category string, ratio float64, seeding time.Duration) Download {
	return Download{Hash: hash, Name: hash, Category: category, Complete: true, Ratio: ratio, SeedingTime: seeding}
}

func TestListForCleanup(t *testing.T) {
	t.Parallel()

	incomplete := completed("ccc", "tv", 5, time.Hour)
	incomplete.Complete = false

	backend := newFakeBackend(
		completed("aaa", "TV", 1, time.Hour),
		completed("bbb", "movies", 1, time.Hour),
		incomplete,
	)
	adapter, _ := newTestAdapter(backend)

	got, err := adapter.ListForCleanup(context.Background(), []seeding.Category{{Name: "tv", MaxRatio: 1, MaxSeedTime: -1}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaa", got[0].Hash)

	got, err = adapter.ListForCleanup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	categories := []seeding.Category{
		{Name: "tv", MaxRatio: 1, MinSeedTime: 1, MaxSeedTime: -1},
		{Name: "movies", MaxRatio: -1, MaxSeedTime: 1},
	}
	downloads := []Download{
		completed("aaa", "tv", 1.5, 2*time.Hour),
		completed("bbb", "tv", 1.5, 30*time.Minute),
		completed("ccc", "movies", 0.1, 2*time.Hour),
		completed("ddd", "movies", 0.1, 2*time.Hour),
		completed("eee", "music", 9, 100*time.Hour),
	}

	backend := newFakeBackend(downloads...)
	adapter, notifier := newTestAdapter(backend)

	cleaned := adapter.Cleanup(context.Background(), downloads, categories, hashutil.NewSet("DDD"))

	assert.Equal(t, 2, cleaned)
	assert.Equal(t, []string{"aaa", "ccc"}, backend.deleted)

	events := notifier.ofType(notifications.EventDownloadCleaned)
	require.Len(t, events, 2)
	assert.Equal(t, "MaxRatioReached", events[0].Reason)
	assert.Equal(t, "tv", events[0].Category)
	assert.Equal(t, "MaxSeedTimeReached", events[1].Reason)
}

func TestCleanupContinuesAfterDeleteFailure(t *testing.T) {
	t.Parallel()

	downloads := []Download{completed("aaa", "tv", 2, time.Hour), completed("bbb", "tv", 2, time.Hour)}
	backend := newFakeBackend(downloads...)
	backend.deleteErr = errors.New("boom")
	adapter, notifier := newTestAdapter(backend)

	cleaned := adapter.Cleanup(context.Background(), downloads, []seeding.Category{{Name: "tv", MaxRatio: 1, MaxSeedTime: -1}}, nil)
	assert.Zero(t, cleaned)
	assert.Empty(t, notifier.ofType(notifications.EventDownloadCleaned))
}

func TestDryRunBackend(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend(Download{Hash: "aaa", Files: []File{
		{Index: 0, Name: "a.mkv", Wanted: true},
		{Index: 1, Name: "a.exe", Wanted: true},
	}})
	adapter, _ := newTestAdapter(NewDryRunBackend(backend))

	_, err := adapter.BlockUnwantedFiles(context.Background(), item("aaa"), blacklist("*.exe"), BlockOptions{})
	require.NoError(t, err)
	require.NoError(t, adapter.DeleteDownload(context.Background(), "AAA"))

	assert.Empty(t, backend.unwantedCalls)
	assert.Empty(t, backend.deleted)
}
