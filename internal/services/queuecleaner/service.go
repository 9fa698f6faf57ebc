// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package queuecleaner removes stalled, metadata-stuck, fully unwanted and
// failed-import items from the arr queues.
package queuecleaner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/internal/strikes"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

const JobName = "queue-cleaner"

// DownloadClient is the part of downloadclient.Adapter the cleaner uses.
type DownloadClient interface {
	Login(ctx context.Context) error
	ShouldRemoveFromQueue(ctx context.Context, item domain.ItemContext, opts downloadclient.StalledOptions) (downloadclient.StalledResult, error)
}

type Service struct {
	cfg      domain.QueueCleanerConfig
	arrs     map[domain.InstanceType]domain.ArrConfig
	clients  []arr.Client
	download DownloadClient
	tracker  *strikes.Tracker
	ignored  *hashutil.Set
	notifier notifications.Notifier
}

func NewService(cfg *domain.Config, clients []arr.Client, download DownloadClient, tracker *strikes.Tracker, ignored *hashutil.Set, notifier notifications.Notifier) *Service {
	arrs := make(map[domain.InstanceType]domain.ArrConfig, len(domain.InstanceTypes))
	for _, t := range domain.InstanceTypes {
		arrs[t] = cfg.Arr(t)
	}

	return &Service{
		cfg:      cfg.QueueCleaner,
		arrs:     arrs,
		clients:  clients,
		download: download,
		tracker:  tracker,
		ignored:  ignored,
		notifier: notifier,
	}
}

func (s *Service) Name() string {
	return JobName
}

// Run performs one pass over every enabled arr instance. Failures of a
// single instance or record are logged and do not stop the pass.
func (s *Service) Run(ctx context.Context) error {
	if err := s.download.Login(ctx); err != nil {
		return err
	}

	for _, client := range s.clients {
		arrCfg := s.arrs[client.Type()]
		if !arrCfg.Enabled {
			continue
		}

		for _, instance := range arrCfg.Instances {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.processInstance(ctx, client, instance); err != nil {
				log.Error().Err(err).
					Str("arr", string(client.Type())).
					Str("instance", instance.URL).
					Msg("queue cleaner failed for instance")
			}
		}
	}

	return nil
}

func (s *Service) processInstance(ctx context.Context, client arr.Client, instance domain.ArrInstance) error {
	var searchItems []arr.SearchItem

	err := arr.Iterate(ctx, client, instance, func(ctx context.Context, records []arr.QueueRecord) error {
		for _, group := range arr.GroupByDownloadID(arr.TorrentRecords(records)) {
			if s.processGroup(ctx, client, instance, group) {
				searchItems = append(searchItems, arr.SearchItems(client, group)...)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(searchItems) > 0 {
		if err := client.RefreshItems(ctx, instance, searchItems); err != nil {
			return fmt.Errorf("could not trigger search: %w", err)
		}
	}
	return nil
}

// processGroup decides on the download behind one group of queue records
// and reports whether it was removed.
func (s *Service) processGroup(ctx context.Context, client arr.Client, instance domain.ArrInstance, group []arr.QueueRecord) bool {
	record := group[0]
	item := record.ItemContext(client.Type(), instance)

	if s.ignored.Contains(item.Hash) {
		log.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("download is ignored")
		return false
	}

	if !client.IsRecordValid(record) {
		return false
	}

	result, err := s.download.ShouldRemoveFromQueue(ctx, item, downloadclient.StalledOptions{
		MaxStrikes:         s.cfg.StalledMaxStrikes,
		IgnorePrivate:      s.cfg.StalledIgnorePrivate,
		MetadataMaxStrikes: s.cfg.DownloadingMetadataMaxStrikes,
	})
	if err != nil {
		log.Error().Err(err).Str("hash", item.Hash).Str("title", item.Title).Str("instance", instance.URL).Msg("could not check download")
		return false
	}

	reason := result.Reason
	removeFromClient := !result.IsPrivate || s.cfg.StalledDeletePrivate

	if !result.ShouldRemove {
		if !s.importFailed(item, record, result.IsPrivate) {
			return false
		}
		reason = arr.DeleteReasonImportFailed
		removeFromClient = !result.IsPrivate || s.cfg.ImportFailedDeletePrivate
	}

	if err := client.DeleteQueueItem(ctx, instance, record, removeFromClient, reason); err != nil {
		log.Error().Err(err).Str("hash", item.Hash).Str("title", item.Title).Str("instance", instance.URL).Msg("could not delete queue item")
		return false
	}

	if s.notifier != nil {
		s.notifier.Notify(notifications.QueueItemDeleted(item, string(reason), removeFromClient).WithImage(record.Image))
	}
	return true
}

// importFailed strikes completed records the arr could not import.
func (s *Service) importFailed(item domain.ItemContext, record arr.QueueRecord, private bool) bool {
	if s.cfg.ImportFailedMaxStrikes == 0 {
		return false
	}
	if !isImportBlocked(record) {
		return false
	}

	if private && s.cfg.ImportFailedIgnorePrivate {
		log.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("private download, skipping import check")
		return false
	}

	if pattern, ok := matchesIgnorePattern(record.StatusMessages, s.cfg.ImportFailedIgnorePatterns); ok {
		log.Debug().Str("hash", item.Hash).Str("title", item.Title).Str("pattern", pattern).Msg("import failure ignored by pattern")
		return false
	}

	return s.tracker.StrikeAndCheckLimit(item, s.cfg.ImportFailedMaxStrikes, strikes.ReasonImportFailed)
}

func isImportBlocked(record arr.QueueRecord) bool {
	if !strings.EqualFold(record.Status, "completed") {
		return false
	}
	if !strings.EqualFold(record.TrackedDownloadStatus, "warning") {
		return false
	}

	switch strings.ToLower(record.TrackedDownloadState) {
	case "importpending", "importfailed", "importblocked":
		return true
	default:
		return false
	}
}

func matchesIgnorePattern(messages []arr.StatusMessage, patterns []string) (string, bool) {
	for _, pattern := range patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		for _, msg := range messages {
			if strings.Contains(strings.ToLower(msg.Title), p) {
				return pattern, true
			}
			for _, m := range msg.Messages {
				if strings.Contains(strings.ToLower(m), p) {
					return pattern, true
				}
			}
		}
	}
	return "", false
}
