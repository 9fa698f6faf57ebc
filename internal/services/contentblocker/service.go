// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package contentblocker marks blocklisted files as unwanted before they are
// downloaded and removes queue items that end up with nothing wanted.
package contentblocker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/blocklist"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

const JobName = "content-blocker"

type DownloadClient interface {
	Login(ctx context.Context) error
	BlockUnwantedFiles(ctx context.Context, item domain.ItemContext, list *blocklist.List, opts downloadclient.BlockOptions) (downloadclient.BlockDecision, error)
}

type Blocklists interface {
	Load(ctx context.Context, instanceType domain.InstanceType, source string, listType blocklist.ListType) error
	Get(instanceType domain.InstanceType) (*blocklist.List, bool)
}

type Service struct {
	cfg        domain.ContentBlockerConfig
	arrs       map[domain.InstanceType]domain.ArrConfig
	clients    []arr.Client
	download   DownloadClient
	blocklists Blocklists
	ignored    *hashutil.Set
	notifier   notifications.Notifier
}

func NewService(cfg *domain.Config, clients []arr.Client, download DownloadClient, blocklists Blocklists, ignored *hashutil.Set, notifier notifications.Notifier) *Service {
	arrs := make(map[domain.InstanceType]domain.ArrConfig, len(domain.InstanceTypes))
	for _, t := range domain.InstanceTypes {
		arrs[t] = cfg.Arr(t)
	}

	return &Service{
		cfg:        cfg.ContentBlocker,
		arrs:       arrs,
		clients:    clients,
		download:   download,
		blocklists: blocklists,
		ignored:    ignored,
		notifier:   notifier,
	}
}

func (s *Service) Name() string {
	return JobName
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.download.Login(ctx); err != nil {
		return err
	}

	for _, client := range s.clients {
		arrCfg := s.arrs[client.Type()]
		if !arrCfg.Enabled {
			continue
		}

		list, err := s.loadBlocklist(ctx, client.Type())
		if err != nil {
			log.Error().Err(err).Str("arr", string(client.Type())).Msg("content blocker skipped, blocklist unavailable")
			continue
		}

		for _, instance := range arrCfg.Instances {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.processInstance(ctx, client, instance, list); err != nil {
				log.Error().Err(err).
					Str("arr", string(client.Type())).
					Str("instance", instance.URL).
					Msg("content blocker failed for instance")
			}
		}
	}

	return nil
}

func (s *Service) loadBlocklist(ctx context.Context, instanceType domain.InstanceType) (*blocklist.List, error) {
	cfg := s.cfg.Blocklist(instanceType)
	if cfg.Path == "" {
		return nil, fmt.Errorf("no blocklist configured for %s", instanceType)
	}

	listType, err := blocklist.ParseListType(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := s.blocklists.Load(ctx, instanceType, cfg.Path, listType); err != nil {
		return nil, err
	}

	list, ok := s.blocklists.Get(instanceType)
	if !ok {
		return nil, fmt.Errorf("blocklist for %s not loaded", instanceType)
	}
	return list, nil
}

func (s *Service) processInstance(ctx context.Context, client arr.Client, instance domain.ArrInstance, list *blocklist.List) error {
	var searchItems []arr.SearchItem

	err := arr.Iterate(ctx, client, instance, func(ctx context.Context, records []arr.QueueRecord) error {
		for _, group := range arr.GroupByDownloadID(arr.TorrentRecords(records)) {
			if s.processGroup(ctx, client, instance, list, group) {
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

func (s *Service) processGroup(ctx context.Context, client arr.Client, instance domain.ArrInstance, list *blocklist.List, group []arr.QueueRecord) bool {
	record := group[0]
	item := record.ItemContext(client.Type(), instance)

	if s.ignored.Contains(item.Hash) {
		log.Debug().Str("hash", item.Hash).Str("title", item.Title).Msg("download is ignored")
		return false
	}

	if !client.IsRecordValid(record) {
		return false
	}

	decision, err := s.download.BlockUnwantedFiles(ctx, item, list, downloadclient.BlockOptions{IgnorePrivate: s.cfg.IgnorePrivate})
	if err != nil {
		log.Error().Err(err).Str("hash", item.Hash).Str("title", item.Title).Str("instance", instance.URL).Msg("could not block unwanted files")
		return false
	}
	if !decision.ShouldRemove {
		return false
	}

	removeFromClient := !decision.IsPrivate || s.cfg.DeletePrivate
	if err := client.DeleteQueueItem(ctx, instance, record, removeFromClient, arr.DeleteReasonAllFilesBlocked); err != nil {
		log.Error().Err(err).Str("hash", item.Hash).Str("title", item.Title).Str("instance", instance.URL).Msg("could not delete queue item")
		return false
	}

	if s.notifier != nil {
		s.notifier.Notify(notifications.QueueItemDeleted(item, string(arr.DeleteReasonAllFilesBlocked), removeFromClient).WithImage(record.Image))
	}
	return true
}
