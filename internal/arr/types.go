// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package arr talks to the queue and command APIs of Sonarr, Radarr and Lidarr.
package arr

import (
	"context"
	"strings"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

// Client is implemented once per arr flavour. Instances are passed per call
// so one client serves every configured server of its type.
type Client interface {
	Type() domain.InstanceType
	GetQueuePage(ctx context.Context, instance domain.ArrInstance, page int) (*QueuePage, error)
	DeleteQueueItem(ctx context.Context, instance domain.ArrInstance, record QueueRecord, removeFromClient bool, reason DeleteReason) error
	RefreshItems(ctx context.Context, instance domain.ArrInstance, items []SearchItem) error
	IsRecordValid(record QueueRecord) bool
	SearchItemFor(record QueueRecord) (SearchItem, bool)
}

type DeleteReason string

const (
	DeleteReasonStalled             DeleteReason = "Stalled"
	DeleteReasonDownloadingMetadata DeleteReason = "DownloadingMetadata"
	DeleteReasonImportFailed        DeleteReason = "ImportFailed"
	DeleteReasonAllFilesBlocked     DeleteReason = "AllFilesBlocked"
)

const ProtocolTorrent = "torrent"

type StatusMessage struct {
	Title    string   `json:"title"`
	Messages []string `json:"messages"`
}

// QueueRecord is the flavour independent view of a queue entry. Media holds
// the flavour specific foreign keys.
type QueueRecord struct {
	ID                    int64
	DownloadID            string
	Title                 string
	Protocol              string
	Status                string
	TrackedDownloadStatus string
	TrackedDownloadState  string
	StatusMessages        []StatusMessage
	Image                 string
	Media                 Media
}

// Hash returns the normalized download id.
func (r QueueRecord) Hash() string {
	return hashutil.Normalize(r.DownloadID)
}

// Media is one of SeriesRef, MovieRef or AlbumRef.
type Media interface {
	media()
}

type SeriesRef struct {
	SeriesID     int64
	SeasonNumber int64
	EpisodeID    int64
}

type MovieRef struct {
	MovieID int64
}

type AlbumRef struct {
	ArtistID int64
	AlbumID  int64
}

func (SeriesRef) media() {}
func (MovieRef) media()  {}
func (AlbumRef) media()  {}

type QueuePage struct {
	Page         int
	TotalRecords int
	Records      []QueueRecord
}

// SearchItem identifies what to search for after a removal. ParentID is the
// series or artist id where the flavour needs one.
type SearchItem struct {
	ID       int64
	ParentID int64
}

// TorrentRecords drops records that are not torrents or have no download id.
func TorrentRecords(records []QueueRecord) []QueueRecord {
	out := make([]QueueRecord, 0, len(records))
	for _, r := range records {
		if !strings.EqualFold(r.Protocol, ProtocolTorrent) || strings.TrimSpace(r.DownloadID) == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// GroupByDownloadID groups records sharing a download, keeping first-seen order.
func GroupByDownloadID(records []QueueRecord) [][]QueueRecord {
	index := make(map[string]int, len(records))
	var groups [][]QueueRecord
	for _, r := range records {
		hash := r.Hash()
		if i, ok := index[hash]; ok {
			groups[i] = append(groups[i], r)
			continue
		}
		index[hash] = len(groups)
		groups = append(groups, []QueueRecord{r})
	}
	return groups
}

func dedupeSearchItems(items []SearchItem) []SearchItem {
	seen := make(map[SearchItem]struct{}, len(items))
	out := make([]SearchItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// ItemContext builds the explicit context handed down to the download client
// adapter, the strike tracker and the notifier.
func (r QueueRecord) ItemContext(instanceType domain.InstanceType, instance domain.ArrInstance) domain.ItemContext {
	return domain.ItemContext{
		InstanceType: instanceType,
		InstanceURL:  instance.URL,
		Hash:         r.Hash(),
		Title:        r.Title,
	}
}

// SearchItems collects the search items of every valid record in group.
func SearchItems(client Client, group []QueueRecord) []SearchItem {
	var items []SearchItem
	for _, r := range group {
		if !client.IsRecordValid(r) {
			continue
		}
		if item, ok := client.SearchItemFor(r); ok {
			items = append(items, item)
		}
	}
	return items
}
