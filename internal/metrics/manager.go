// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/metrics/collector"
)

type MetricsManager struct {
	registry *prometheus.Registry
	jobs     *collector.JobCollector
}

func NewMetricsManager() *MetricsManager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	jobs := collector.NewJobCollector(registry)

	log.Info().Msg("Metrics manager initialized with job collector")

	return &MetricsManager{
		registry: registry,
		jobs:     jobs,
	}
}

func (m *MetricsManager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Jobs exposes the collector so it can be handed to the scheduler and the
// notification chain.
func (m *MetricsManager) Jobs() *collector.JobCollector {
	return m.jobs
}
