// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/arr"
	"github.com/autobrr/sweeparr/internal/blocklist"
	"github.com/autobrr/sweeparr/internal/config"
	"github.com/autobrr/sweeparr/internal/deluge"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/internal/metrics"
	"github.com/autobrr/sweeparr/internal/proxy"
	"github.com/autobrr/sweeparr/internal/qbittorrent"
	"github.com/autobrr/sweeparr/internal/scheduler"
	"github.com/autobrr/sweeparr/internal/services/contentblocker"
	"github.com/autobrr/sweeparr/internal/services/downloadcleaner"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/internal/services/queuecleaner"
	"github.com/autobrr/sweeparr/internal/strikes"
	"github.com/autobrr/sweeparr/internal/transmission"
)

var jobNames = []string{queuecleaner.JobName, contentblocker.JobName, downloadcleaner.JobName}

// progressBuffer is added to the queue cleaner interval so a progress sample
// survives until the next pass.
const progressBuffer = 5 * time.Minute

type app struct {
	cfg      *domain.Config
	jobs     map[string]scheduler.Job
	observer scheduler.Observer
}

func newApp(ctx context.Context, cfg *domain.Config, metricsManager *metrics.MetricsManager) (*app, error) {
	timeout := time.Duration(cfg.HTTPTimeout) * time.Second
	httpClient := proxy.NewHTTPClient(timeout, cfg.HTTPMaxRetries)

	ignored, err := config.LoadIgnoredDownloads(cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(ctx, cfg, metricsManager)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg.DownloadClient, httpClient, timeout)
	if err != nil {
		return nil, err
	}
	if cfg.DryRun {
		log.Warn().Msg("Dry run enabled, no changes will be made")
		backend = downloadclient.NewDryRunBackend(backend)
	}

	tracker := strikes.NewTracker(strikes.Config{
		StrikeTTL:   strikes.DefaultStrikeTTL,
		ProgressTTL: progressTTL(cfg.QueueCleaner.Schedule, time.Now()),
	}, notifier)

	adapter := downloadclient.NewAdapter(backend, tracker, notifier)
	clients := newArrClients(cfg, httpClient)

	a := &app{
		cfg: cfg,
		jobs: map[string]scheduler.Job{
			queuecleaner.JobName:    queuecleaner.NewService(cfg, clients, adapter, tracker, ignored, notifier),
			contentblocker.JobName:  contentblocker.NewService(cfg, clients, adapter, blocklist.NewProvider(httpClient), ignored, notifier),
			downloadcleaner.JobName: downloadcleaner.NewService(cfg, clients, adapter, ignored),
		},
	}
	if metricsManager != nil {
		a.observer = metricsManager.Jobs().ObserveRun
	}
	return a, nil
}

func (a *app) job(name string) (scheduler.Job, bool) {
	job, ok := a.jobs[name]
	return job, ok
}

// scheduler registers every enabled job. With runSequentially the content
// blocker has no schedule of its own and runs after each queue cleaner pass.
func (a *app) scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.observer)

	qc := a.cfg.QueueCleaner
	cb := a.cfg.ContentBlocker
	dc := a.cfg.DownloadCleaner

	if qc.Enabled {
		if err := s.Register(a.jobs[queuecleaner.JobName], qc.Schedule); err != nil {
			return nil, err
		}
	}

	if cb.Enabled {
		sequential := qc.Enabled && qc.RunSequentially
		schedule := cb.Schedule
		if sequential {
			schedule = ""
		}
		if err := s.Register(a.jobs[contentblocker.JobName], schedule); err != nil {
			return nil, err
		}
		if sequential {
			if err := s.Chain(queuecleaner.JobName, contentblocker.JobName); err != nil {
				return nil, err
			}
		}
	}

	if dc.Enabled {
		if err := s.Register(a.jobs[downloadcleaner.JobName], dc.Schedule); err != nil {
			return nil, err
		}
	}

	if !qc.Enabled && !cb.Enabled && !dc.Enabled {
		log.Warn().Msg("No jobs enabled")
	}

	return s, nil
}

func newBackend(cfg domain.DownloadClientConfig, httpClient *http.Client, timeout time.Duration) (downloadclient.Backend, error) {
	switch cfg.Type {
	case domain.DownloadClientQbittorrent:
		return qbittorrent.NewClient(cfg, timeout), nil
	case domain.DownloadClientDeluge:
		return deluge.NewClient(cfg, httpClient)
	case domain.DownloadClientTransmission:
		return transmission.NewClient(cfg, httpClient)
	default:
		return nil, fmt.Errorf("unsupported download client type: %q", cfg.Type)
	}
}

func newArrClients(cfg *domain.Config, httpClient *http.Client) []arr.Client {
	clients := []arr.Client{
		arr.NewSonarrClient(httpClient, cfg.Sonarr.SearchType),
		arr.NewRadarrClient(httpClient),
		arr.NewLidarrClient(httpClient),
	}
	if cfg.DryRun {
		for i, client := range clients {
			clients[i] = arr.NewDryRun(client)
		}
	}
	return clients
}

// newNotifier fans events out to the metrics collector and, when enabled, to
// the notification service. Dry run suppresses only the latter.
func newNotifier(ctx context.Context, cfg *domain.Config, metricsManager *metrics.MetricsManager) (notifications.Multi, error) {
	var chain notifications.Multi

	if metricsManager != nil {
		chain = append(chain, metricsManager.Jobs())
	}

	if cfg.NotificationsEnabled {
		events, err := notifications.NormalizeEventTypes(cfg.NotificationEvents)
		if err != nil {
			return nil, err
		}

		logger := log.With().Str("component", "notifications").Logger()
		service := notifications.NewService(notifications.NewLogSink(logger), events, logger)
		service.Start(ctx)

		chain = append(chain, notifications.NewDryRun(service, cfg.DryRun, logger))
	}

	return chain, nil
}

// progressTTL is one queue cleaner interval plus progressBuffer, falling back
// to the tracker default when the schedule can not be evaluated.
func progressTTL(schedule string, now time.Time) time.Duration {
	if schedule == "" {
		return strikes.DefaultProgressTTL
	}

	first, err := gronx.NextTickAfter(schedule, now, false)
	if err != nil {
		return strikes.DefaultProgressTTL
	}
	second, err := gronx.NextTickAfter(schedule, first, false)
	if err != nil {
		return strikes.DefaultProgressTTL
	}
	return second.Sub(first) + progressBuffer
}
