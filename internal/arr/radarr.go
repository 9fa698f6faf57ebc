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

type RadarrClient struct {
	transport *transport
	logger    zerolog.Logger
}

func NewRadarrClient(httpClient *http.Client) *RadarrClient {
	return &RadarrClient{
		transport: newTransport(httpClient, "v3"),
		logger:    log.With().Str("component", "arr").Str("arr", string(domain.InstanceTypeRadarr)).Logger(),
	}
}

func (c *RadarrClient) Type() domain.InstanceType {
	return domain.InstanceTypeRadarr
}

type radarrRecord struct {
	wireRecordBase
	MovieID int64 `json:"movieId"`
	Movie   *struct {
		Title  string      `json:"title"`
		Images []wireImage `json:"images"`
	} `json:"movie"`
}

var radarrQueueInclude = url.Values{
	"includeUnknownMovieItems": {"true"},
	"includeMovie":             {"true"},
}

func (c *RadarrClient) GetQueuePage(ctx context.Context, instance domain.ArrInstance, page int) (*QueuePage, error) {
	return fetchQueue(ctx, c.transport, instance, page, radarrQueueInclude, func(r radarrRecord) QueueRecord {
		var image string
		if r.Movie != nil {
			image = posterURL(r.Movie.Images)
		}
		return r.record(image, MovieRef{MovieID: r.MovieID})
	})
}

func (c *RadarrClient) DeleteQueueItem(ctx context.Context, instance domain.ArrInstance, record QueueRecord, removeFromClient bool, reason DeleteReason) error {
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

func (c *RadarrClient) IsRecordValid(record QueueRecord) bool {
	ref, ok := record.Media.(MovieRef)
	if !ok || ref.MovieID == 0 {
		c.logger.Debug().Str("title", record.Title).Msg("skip queue record without movie")
		return false
	}
	return true
}

func (c *RadarrClient) SearchItemFor(record QueueRecord) (SearchItem, bool) {
	ref, ok := record.Media.(MovieRef)
	if !ok || ref.MovieID == 0 {
		return SearchItem{}, false
	}
	return SearchItem{ID: ref.MovieID}, true
}

type radarrMoviesSearch struct {
	Name     string  `json:"name"`
	MovieIDs []int64 `json:"movieIds"`
}

func (c *RadarrClient) RefreshItems(ctx context.Context, instance domain.ArrInstance, items []SearchItem) error {
	if len(items) == 0 {
		return nil
	}

	items = dedupeSearchItems(items)
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	return runCommands(ctx, c.transport, instance, []any{radarrMoviesSearch{Name: "MoviesSearch", MovieIDs: ids}}, c.logger)
}
