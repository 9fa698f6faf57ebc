// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
)

type fakeTransmission struct {
	*httptest.Server

	mu       sync.Mutex
	requests []rpcRequestRecord
	torrents []map[string]any
}

type rpcRequestRecord struct {
	Method    string
	Arguments map[string]any
	Session   string
}

func newFakeTransmission(t *testing.T) *fakeTransmission {
	t.Helper()

	f := &fakeTransmission{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transmission/rpc" {
			http.NotFound(w, r)
			return
		}

		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if r.Header.Get(sessionHeader) != "session-1" {
			w.Header().Set(sessionHeader, "session-1")
			w.WriteHeader(http.StatusConflict)
			return
		}

		var req struct {
			Method    string         `json:"method"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.requests = append(f.requests, rpcRequestRecord{Method: req.Method, Arguments: req.Arguments, Session: r.Header.Get(sessionHeader)})
		torrents := f.torrents
		f.mu.Unlock()

		resp := map[string]any{"result": "success", "arguments": map[string]any{}}
		if req.Method == "torrent-get" {
			if ids, ok := req.Arguments["ids"].([]any); ok {
				var filtered []map[string]any
				for _, t := range torrents {
					for _, id := range ids {
						if t["hashString"] == id {
							filtered = append(filtered, t)
						}
					}
				}
				torrents = filtered
			}
			resp["arguments"] = map[string]any{"torrents": torrents}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTransmission) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, r := range f.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeTransmission) last(method string) rpcRequestRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method {
			return f.requests[i]
		}
	}
	return rpcRequestRecord{}
}

func newTestClient(t *testing.T, f *fakeTransmission) *Client {
	t.Helper()

	c, err := NewClient(domain.DownloadClientConfig{
		Type:     domain.DownloadClientTransmission,
		URL:      f.URL + "/",
		Username: "admin",
		Password: "secret",
	}, f.Client())
	require.NoError(t, err)
	return c
}

func sampleTorrent() map[string]any {
	return map[string]any{
		"hashString":     "abc",
		"name":           "Show",
		"status":         statusDownloading,
		"eta":            -1,
		"downloadedEver": 50,
		"totalSize":      100,
		"isPrivate":      true,
		"labels":         []string{},
		"downloadDir":    "/data/torrents/tv/",
		"uploadRatio":    0.5,
		"percentDone":    0.5,
		"files": []map[string]any{
			{"name": "Show/show.mkv", "length": 90},
			{"name": "Show/sample.exe", "length": 10},
		},
		"fileStats": []map[string]any{
			{"wanted": true, "priority": 0},
			{"wanted": false, "priority": 0},
		},
	}
}

func TestSessionHandshake(t *testing.T) {
	t.Parallel()

	f := newFakeTransmission(t)
	c := newTestClient(t, f)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, "session-1", f.last("session-get").Session)
}

func TestInvalidCredentials(t *testing.T) {
	t.Parallel()

	f := newFakeTransmission(t)
	c, err := NewClient(domain.DownloadClientConfig{URL: f.URL, Username: "admin", Password: "wrong"}, f.Client())
	require.NoError(t, err)

	require.Error(t, c.Login(context.Background()))
}

func TestGetDownload(t *testing.T) {
	t.Parallel()

	f := newFakeTransmission(t)
	f.torrents = []map[string]any{sampleTorrent()}
	c := newTestClient(t, f)

	d, err := c.GetDownload(context.Background(), "ABC")
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, "abc", d.Hash)
	assert.Equal(t, "tv", d.Category)
	assert.True(t, d.Private)
	assert.Zero(t, d.ETA)
	assert.Equal(t, downloadclient.ActivityDownloading, d.Activity)
	assert.Equal(t, []downloadclient.File{
		{Index: 0, Name: "Show/show.mkv", Wanted: true},
		{Index: 1, Name: "Show/sample.exe", Wanted: false},
	}, d.Files)

	_, err = c.GetDownload(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("torrent-get"), "second lookup should be served from cache")
}

func TestGetDownloadNotFound(t *testing.T) {
	t.Parallel()

	f := newFakeTransmission(t)
	c := newTestClient(t, f)

	d, err := c.GetDownload(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestMutationsInvalidateCache(t *testing.T) {
	t.Parallel()

	f := newFakeTransmission(t)
	f.torrents = []map[string]any{sampleTorrent()}
	c := newTestClient(t, f)

	d, err := c.GetDownload(context.Background(), "abc")
	require.NoError(t, err)

	require.NoError(t, c.SetFilesUnwanted(context.Background(), d, []int{0}))
	set := f.last("torrent-set")
	assert.Equal(t, []any{"abc"}, set.Arguments["ids"])
	assert.Equal(t, []any{float64(0)}, set.Arguments["files-unwanted"])

	_, err = c.GetDownload(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("torrent-get"))

	require.NoError(t, c.DeleteDownload(context.Background(), "ABC"))
	remove := f.last("torrent-remove")
	assert.Equal(t, true, remove.Arguments["delete-local-data"])
	assert.Equal(t, []any{"abc"}, remove.Arguments["ids"])
}

func TestListDownloads(t *testing.T) {
	t.Parallel()

	seeding := sampleTorrent()
	seeding["hashString"] = "DEF"
	seeding["status"] = 6
	seeding["percentDone"] = 1
	seeding["labels"] = []string{"movies"}
	seeding["secondsSeeding"] = 3600

	f := newFakeTransmission(t)
	f.torrents = []map[string]any{sampleTorrent(), seeding}
	c := newTestClient(t, f)

	got, err := c.ListDownloads(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "def", got[1].Hash)
	assert.Equal(t, "movies", got[1].Category)
	assert.True(t, got[1].Complete)
	assert.Equal(t, time.Hour, got[1].SeedingTime)
	assert.Equal(t, downloadclient.ActivityOther, got[1].Activity)
}

func TestTorrentCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		torrent torrent
		want    string
	}{
		{name: "label wins", torrent: torrent{Labels: []string{"tv"}, DownloadDir: "/data/movies"}, want: "tv"},
		{name: "blank labels fall back", torrent: torrent{Labels: []string{" "}, DownloadDir: "/data/movies/"}, want: "movies"},
		{name: "windows dir", torrent: torrent{DownloadDir: `D:\torrents\music`}, want: "music"},
		{name: "nothing", torrent: torrent{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.torrent.category())
		})
	}
}

func TestFetchingMetadata(t *testing.T) {
	t.Parallel()

	half := 0.5
	tr := torrent{Status: statusDownloading, MetadataPercentComplete: &half}
	assert.Equal(t, downloadclient.ActivityFetchingMetadata, tr.download().Activity)
}
