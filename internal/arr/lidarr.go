// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
)

type LidarrClient struct {
	transport *transport
	logger    zerolog.Logger
}

func NewLidarrClient(httpClient *http.Client) *LidarrClient {
	return &LidarrClient{
		transport: newTransport(httpClient, "v1"),
		logger:    log.With().Str("component", "arr").Str("arr", string(domain.InstanceTypeLidarr)).Logger(),
	}
}

func (c *LidarrClient) Type() domain.InstanceType {
	return domain.InstanceTypeLidarr
}

type lidarrRecord struct {
	wireRecordBase
	ArtistID int64 `json:"artistId"`
	AlbumID  int64 `json:"albumId"`
	Album    *struct {
		Title  string      `json:"title"`
		Images []wireImage `json:"images"`
	} `json:"album"`
	Artist *struct {
		ArtistName string      `json:"artistName"`
		Images     []wireImage `json:"images"`
	} `json:"artist"`
}

var lidarrQueueInclude = url.Values{
	"includeUnknownArtistItems": {"true"},
	"includeArtist":             {"true"},
	"includeAlbum":              {"true"},
}

func (c *LidarrClient) GetQueuePage(ctx context.Context, instance domain.ArrInstance, page int) (*QueuePage, error) {
	return fetchQueue(ctx, c.transport, instance, page, lidarrQueueInclude, func(r lidarrRecord) QueueRecord {
		var image string
		if r.Album != nil {
			image = posterURL(r.Album.Images)
		}
		if image == "" && r.Artist != nil {
			image = posterURL(r.Artist.Images)
		}
		return r.record(image, AlbumRef{ArtistID: r.ArtistID, AlbumID: r.AlbumID})
	})
}

func (c *LidarrClient) DeleteQueueItem(ctx context.Context, instance domain.ArrInstance, record QueueRecord, removeFromClient bool, reason DeleteReason) error {
	if err := deleteQueueItem(ctx, c.transport, instance, record, removeFromClient); err != nil {
		return fmt.Errorf("could not delete queue item %d from %s: %w", record.ID, instance.Name, err)
	}

	c.logger.Info().
		Str("instance", instance.Name).
		Str("reason", string(reason)).
		Bool("removeFromClient", removeFromClient).
		Str("title", record.Title).
		Msg("queue item deleted")
	return nil
}

func (c *LidarrClient) IsRecordValid(record QueueRecord) bool {
	ref, ok := record.Media.(AlbumRef)
	if !ok || ref.ArtistID == 0 || ref.AlbumID == 0 {
		c.logger.Debug().Str("title", record.Title).Msg("skip queue record without artist or album")
		return false
	}
	return true
}

func (c *LidarrClient) SearchItemFor(record QueueRecord) (SearchItem, bool) {
	ref, ok := record.Media.(AlbumRef)
	if !ok || ref.AlbumID == 0 {
		return SearchItem{}, false
	}
	return SearchItem{ID: ref.AlbumID, ParentID: ref.ArtistID}, true
}

type lidarrAlbumSearch struct {
	Name     string  `json:"name"`
	AlbumIDs []int64 `json:"albumIds"`
}

func (c *LidarrClient) RefreshItems(ctx context.Context, instance domain.ArrInstance, items []SearchItem) error {
	if len(items) == 0 {
		return nil
	}

	items = dedupeSearchItems(items)
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	return runCommands(ctx, c.transport, instance, []any{lidarrAlbumSearch{Name: "AlbumSearch", AlbumIDs: ids}}, c.logger)
}
