// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
)

type SonarrClient struct {
	transport  *transport
	searchType domain.SonarrSearchType
	logger     zerolog.Logger
}

func NewSonarrClient(httpClient *http.Client, searchType domain.SonarrSearchType) *SonarrClient {
	if searchType == "" {
		searchType = domain.SonarrSearchEpisode
	}
	return &SonarrClient{
		transport:  newTransport(httpClient, "v3"),
		searchType: searchType,
		logger:     log.With().Str("component", "arr").Str("arr", string(domain.InstanceTypeSonarr)).Logger(),
	}
}

func (c *SonarrClient) Type() domain.InstanceType {
	return domain.InstanceTypeSonarr
}

type sonarrRecord struct {
	wireRecordBase
	SeriesID     int64 `json:"seriesId"`
	EpisodeID    int64 `json:"episodeId"`
	SeasonNumber int64 `json:"seasonNumber"`
	Series       *struct {
		Title  string      `json:"title"`
		Images []wireImage `json:"images"`
	} `json:"series"`
}

var sonarrQueueInclude = url.Values{
	"includeUnknownSeriesItems": {"true"},
	"includeSeries":             {"true"},
	"includeEpisode":            {"true"},
}

func (c *SonarrClient) GetQueuePage(ctx context.Context, instance domain.ArrInstance, page int) (*QueuePage, error) {
	return fetchQueue(ctx, c.transport, instance, page, sonarrQueueInclude, func(r sonarrRecord) QueueRecord {
		var image string
		if r.Series != nil {
			image = posterURL(r.Series.Images)
		}
		return r.record(image, SeriesRef{
			SeriesID:     r.SeriesID,
			SeasonNumber: r.SeasonNumber,
			EpisodeID:    r.EpisodeID,
		})
	})
}

func (c *SonarrClient) DeleteQueueItem(ctx context.Context, instance domain.ArrInstance, record QueueRecord, removeFromClient bool, reason DeleteReason) error {
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

func (c *SonarrClient) IsRecordValid(record QueueRecord) bool {
	ref, ok := record.Media.(SeriesRef)
	if !ok || ref.SeriesID == 0 || ref.EpisodeID == 0 {
		c.logger.Debug().Str("title", record.Title).Msg("skip queue record without series or episode")
		return false
	}
	return true
}

// SearchItemFor maps a record to what the configured search type needs:
// the episode, the season of a series or the whole series.
func (c *SonarrClient) SearchItemFor(record QueueRecord) (SearchItem, bool) {
	ref, ok := record.Media.(SeriesRef)
	if !ok {
		return SearchItem{}, false
	}

	switch c.searchType {
	case domain.SonarrSearchSeason:
		return SearchItem{ID: ref.SeasonNumber, ParentID: ref.SeriesID}, ref.SeriesID != 0
	case domain.SonarrSearchSeries:
		return SearchItem{ID: ref.SeriesID}, ref.SeriesID != 0
	default:
		return SearchItem{ID: ref.EpisodeID, ParentID: ref.SeriesID}, ref.EpisodeID != 0
	}
}

type sonarrEpisodeSearch struct {
	Name       string  `json:"name"`
	EpisodeIDs []int64 `json:"episodeIds"`
}

type sonarrSeasonSearch struct {
	Name         string `json:"name"`
	SeriesID     int64  `json:"seriesId"`
	SeasonNumber int64  `json:"seasonNumber"`
}

type sonarrSeriesSearch struct {
	Name     string `json:"name"`
	SeriesID int64  `json:"seriesId"`
}

func (c *SonarrClient) commands(items []SearchItem) []any {
	items = dedupeSearchItems(items)

	switch c.searchType {
	case domain.SonarrSearchSeason:
		cmds := make([]any, 0, len(items))
		for _, item := range items {
			cmds = append(cmds, sonarrSeasonSearch{Name: "SeasonSearch", SeriesID: item.ParentID, SeasonNumber: item.ID})
		}
		return cmds
	case domain.SonarrSearchSeries:
		cmds := make([]any, 0, len(items))
		for _, item := range items {
			cmds = append(cmds, sonarrSeriesSearch{Name: "SeriesSearch", SeriesID: item.ID})
		}
		return cmds
	default:
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		return []any{sonarrEpisodeSearch{Name: "EpisodeSearch", EpisodeIDs: ids}}
	}
}

func (c *SonarrClient) RefreshItems(ctx context.Context, instance domain.ArrInstance, items []SearchItem) error {
	if len(items) == 0 {
		return nil
	}
	return runCommands(ctx, c.transport, instance, c.commands(items), c.logger)
}

// runCommands posts each command in turn. A failed command is logged and
// does not stop the rest.
func runCommands(ctx context.Context, t *transport, instance domain.ArrInstance, cmds []any, logger zerolog.Logger) error {
	var errs []error
	for _, cmd := range cmds {
		if err := postCommand(ctx, t, instance, cmd); err != nil {
			logger.Warn().Err(err).Str("instance", instance.Name).Interface("command", cmd).Msg("search command failed")
			errs = append(errs, err)
			continue
		}
		logger.Info().Str("instance", instance.Name).Interface("command", cmd).Msg("search triggered")
	}
	return errors.Join(errs...)
}
