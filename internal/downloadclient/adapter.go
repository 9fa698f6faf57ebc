// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package downloadclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/blocklist"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/seeding"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/internal/strikes"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

type StalledOptions struct {
	MaxStrikes         uint
	IgnorePrivate      bool
	MetadataMaxStrikes uint
}

type StalledResult struct {
	ShouldRemove bool
	Reason       arr.DeleteReason
	IsPrivate    bool
}

type BlockOptions struct {
	IgnorePrivate bool
}

type BlockDecision struct {
	ShouldRemove bool
	IsPrivate    bool
}

// Adapter implements the reconciliation decisions once on top of any Backend.
type Adapter struct {
	backend  Backend
	tracker  *strikes.Tracker
	notifier notifications.Notifier
	logger   zerolog.Logger
}

func NewAdapter(backend Backend, tracker *strikes.Tracker, notifier notifications.Notifier) *Adapter {
	return &Adapter{
		backend:  backend,
		tracker:  tracker,
		notifier: notifier,
		logger:   log.With().Str("component", "downloadclient").Str("client", string(backend.Type())).Logger(),
	}
}

func (a *Adapter) Type() domain.DownloadClientType {
	return a.backend.Type()
}

func (a *Adapter) Login(ctx context.Context) error {
	if err := a.backend.Login(ctx); err != nil {
		return fmt.Errorf("could not login to %s: %w", a.backend.Type(), err)
	}
	return nil
}

// ShouldRemoveFromQueue decides whether the queue item backed by item.Hash
// should go: every file unwanted, stuck fetching metadata, or stalled for
// enough consecutive checks.
func (a *Adapter) ShouldRemoveFromQueue(ctx context.Context, item domain.ItemContext, opts StalledOptions) (StalledResult, error) {
	download, err := a.backend.GetDownload(ctx, item.Hash)
	if err != nil {
		return StalledResult{}, err
	}

	// A torrent still fetching metadata has no file list yet.
	if download == nil || (len(download.Files) == 0 && download.Activity != ActivityFetchingMetadata) {
		a.logger.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("download not found in client, skipping")
		return StalledResult{}, nil
	}

	result := StalledResult{IsPrivate: download.Private}

	if allUnwanted(download.Files) {
		a.logger.Info().Str("hash", item.Hash).Str("title", item.Title).Msg("all files are unwanted")
		result.ShouldRemove = true
		result.Reason = arr.DeleteReasonAllFilesBlocked
		return result, nil
	}

	if download.Private && opts.IgnorePrivate {
		a.logger.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("private download, skipping stalled check")
		return result, nil
	}

	switch download.Activity {
	case ActivityFetchingMetadata:
		result.Reason = arr.DeleteReasonDownloadingMetadata
		result.ShouldRemove = a.tracker.StrikeAndCheckLimit(item, opts.MetadataMaxStrikes, strikes.ReasonDownloadingMetadata)
	case ActivityDownloading:
		a.tracker.ResetOnProgress(item.Hash, download.Downloaded)
		if download.ETA > 0 {
			return result, nil
		}
		result.Reason = arr.DeleteReasonStalled
		result.ShouldRemove = a.tracker.StrikeAndCheckLimit(item, opts.MaxStrikes, strikes.ReasonStalled)
	}

	return result, nil
}

func allUnwanted(files []File) bool {
	if len(files) == 0 {
		return false
	}
	for _, f := range files {
		if f.Wanted {
			return false
		}
	}
	return true
}

// BlockUnwantedFiles marks every file rejected by list as unwanted. When that
// leaves nothing wanted no priority is changed and ShouldRemove is set so the
// caller deletes the whole item instead.
func (a *Adapter) BlockUnwantedFiles(ctx context.Context, item domain.ItemContext, list *blocklist.List, opts BlockOptions) (BlockDecision, error) {
	download, err := a.backend.GetDownload(ctx, item.Hash)
	if err != nil {
		return BlockDecision{}, err
	}

	if download == nil || len(download.Files) == 0 {
		a.logger.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("download not found in client, skipping")
		return BlockDecision{}, nil
	}

	decision := BlockDecision{IsPrivate: download.Private}
	if download.Private && opts.IgnorePrivate {
		a.logger.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("private download, skipping blocklist check")
		return decision, nil
	}

	unwanted := 0
	var toBlock []int
	for _, f := range download.Files {
		if !f.Wanted {
			unwanted++
			continue
		}

		if list.IsValid(blocklist.FileName(f.Name)) {
			continue
		}

		a.logger.Debug().Str("hash", item.Hash).Str("file", f.Name).Msg("file blocked")
		toBlock = append(toBlock, f.Index)
		unwanted++
	}

	if unwanted == len(download.Files) {
		a.logger.Info().Str("hash", item.Hash).Str("title", item.Title).Msg("all files are blocked")
		decision.ShouldRemove = true
		return decision, nil
	}

	if len(toBlock) == 0 {
		return decision, nil
	}

	if err := a.backend.SetFilesUnwanted(ctx, download, toBlock); err != nil {
		return decision, fmt.Errorf("could not mark files unwanted for %s: %w", item.Hash, err)
	}

	a.logger.Info().Str("hash", item.Hash).Str("title", item.Title).Int("files", len(toBlock)).Msg("marked files as unwanted")
	return decision, nil
}

// DeleteDownload removes the torrent and its data from the client.
func (a *Adapter) DeleteDownload(ctx context.Context, hash string) error {
	if err := a.backend.DeleteDownload(ctx, hashutil.Normalize(hash)); err != nil {
		return fmt.Errorf("could not delete download %s: %w", hash, err)
	}
	return nil
}

// ListForCleanup returns completed downloads in one of the categories.
func (a *Adapter) ListForCleanup(ctx context.Context, categories []seeding.Category) ([]Download, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	downloads, err := a.backend.ListDownloads(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list downloads: %w", err)
	}

	var out []Download
	for _, d := range downloads {
		if !d.Complete {
			continue
		}
		if _, ok := findCategory(categories, d.Category); !ok {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// Cleanup deletes every download whose category policy says it is done
// seeding. Downloads in excluded are left alone. It returns how many were
// removed; per download failures are logged and skipped.
func (a *Adapter) Cleanup(ctx context.Context, downloads []Download, categories []seeding.Category, excluded *hashutil.Set) int {
	cleaned := 0

	for _, d := range downloads {
		if err := ctx.Err(); err != nil {
			return cleaned
		}

		hash := hashutil.Normalize(d.Hash)
		if excluded.Contains(hash) {
			a.logger.Debug().Str("hash", hash).Str("name", d.Name).Msg("download is excluded from cleanup")
			continue
		}

		category, ok := findCategory(categories, d.Category)
		if !ok {
			continue
		}

		verdict := seeding.ShouldClean(d.Ratio, d.SeedingTime, category)
		if !verdict.ShouldClean {
			continue
		}

		if err := a.DeleteDownload(ctx, hash); err != nil {
			a.logger.Error().Err(err).Str("hash", hash).Str("name", d.Name).Msg("failed to clean download")
			continue
		}
		cleaned++

		a.logger.Info().
			Str("hash", hash).
			Str("name", d.Name).
			Str("category", category.Name).
			Str("reason", verdict.Reason.String()).
			Float64("ratio", d.Ratio).
			Dur("seedingTime", d.SeedingTime).
			Msg("download cleaned")

		if a.notifier != nil {
			item := domain.ItemContext{Hash: hash, Title: d.Name}
			a.notifier.Notify(notifications.DownloadCleaned(item, verdict.Reason.String(), d.Ratio, d.SeedingTime, category.Name))
		}
	}

	return cleaned
}

func findCategory(categories []seeding.Category, name string) (seeding.Category, bool) {
	for _, c := range categories {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return seeding.Category{}, false
}
