// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloadcleaner removes finished torrents from the download client
// once their category's seeding policy is met.
package downloadcleaner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/internal/seeding"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

const JobName = "download-cleaner"

// DefaultVisibilityDelay gives the arr instances time to show freshly grabbed
// downloads in their queues before the exclusion set is built.
const DefaultVisibilityDelay = 10 * time.Second

type DownloadClient interface {
	Login(ctx context.Context) error
	ListForCleanup(ctx context.Context, categories []seeding.Category) ([]downloadclient.Download, error)
	Cleanup(ctx context.Context, downloads []downloadclient.Download, categories []seeding.Category, excluded *hashutil.Set) int
}

type Service struct {
	categories []seeding.Category
	arrs       map[domain.InstanceType]domain.ArrConfig
	clients    []arr.Client
	download   DownloadClient
	ignored    *hashutil.Set
	delay      time.Duration
}

func NewService(cfg *domain.Config, clients []arr.Client, download DownloadClient, ignored *hashutil.Set) *Service {
	arrs := make(map[domain.InstanceType]domain.ArrConfig, len(domain.InstanceTypes))
	for _, t := range domain.InstanceTypes {
		arrs[t] = cfg.Arr(t)
	}

	return &Service{
		categories: cfg.DownloadCleaner.Categories,
		arrs:       arrs,
		clients:    clients,
		download:   download,
		ignored:    ignored,
		delay:      DefaultVisibilityDelay,
	}
}

// WithDelay overrides the wait between listing downloads and reading queues.
func (s *Service) WithDelay(d time.Duration) *Service {
	s.delay = d
	return s
}

func (s *Service) Name() string {
	return JobName
}

// Run cleans every download that met its seeding policy and is not tracked
// by any arr queue. If a queue cannot be read the pass is aborted, since
// cleaning without it could delete an in-flight download.
func (s *Service) Run(ctx context.Context) error {
	if len(s.categories) == 0 {
		log.Warn().Msg("no download cleaner categories configured")
		return nil
	}

	if err := s.download.Login(ctx); err != nil {
		return err
	}

	downloads, err := s.download.ListForCleanup(ctx, s.categories)
	if err != nil {
		return err
	}
	if len(downloads) == 0 {
		log.Debug().Msg("no downloads eligible for cleanup")
		return nil
	}

	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	excluded, err := s.inFlight(ctx)
	if err != nil {
		return err
	}

	cleaned := s.download.Cleanup(ctx, downloads, s.categories, excluded)
	log.Info().Int("candidates", len(downloads)).Int("excluded", excluded.Len()).Int("cleaned", cleaned).Msg("download cleaner finished")
	return nil
}

// inFlight collects the ignored hashes and every download id currently in an
// arr queue.
func (s *Service) inFlight(ctx context.Context) (*hashutil.Set, error) {
	excluded := hashutil.NewSet()
	if s.ignored != nil {
		for _, hash := range s.ignored.Values() {
			excluded.Add(hash)
		}
	}

	for _, client := range s.clients {
		arrCfg := s.arrs[client.Type()]
		if !arrCfg.Enabled {
			continue
		}

		for _, instance := range arrCfg.Instances {
			err := arr.Iterate(ctx, client, instance, func(_ context.Context, records []arr.QueueRecord) error {
				for _, r := range records {
					if r.DownloadID != "" {
						excluded.Add(r.DownloadID)
					}
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("could not read queue of %s: %w", instance.URL, err)
			}
		}
	}

	return excluded, nil
}
