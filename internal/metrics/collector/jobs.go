// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/sweeparr/internal/services/notifications"
)

const namespace = "sweeparr"

type JobCollector struct {
	JobRunTotal            *prometheus.CounterVec
	JobRunDuration         *prometheus.HistogramVec
	StrikesTotal           *prometheus.CounterVec
	QueueItemsRemovedTotal *prometheus.CounterVec
	DownloadsCleanedTotal  *prometheus.CounterVec
}

func NewJobCollector(r *prometheus.Registry) *JobCollector {
	m := &JobCollector{
		JobRunTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "run_total",
			Help:      "Total number of job runs by outcome",
		}, []string{"job", "status"}),
		JobRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "run_duration_seconds",
			Help:      "Duration of job runs",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		StrikesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strikes_total",
			Help:      "Total number of strikes raised against queue items",
		}, []string{"instance_type", "reason"}),
		QueueItemsRemovedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_items_removed_total",
			Help:      "Total number of queue items removed from an arr",
		}, []string{"instance_type", "reason"}),
		DownloadsCleanedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_cleaned_total",
			Help:      "Total number of seeded downloads removed from the download client",
		}, []string{"category", "reason"}),
	}

	r.MustRegister(m.JobRunTotal)
	r.MustRegister(m.JobRunDuration)
	r.MustRegister(m.StrikesTotal)
	r.MustRegister(m.QueueItemsRemovedTotal)
	r.MustRegister(m.DownloadsCleanedTotal)
	return m
}

// ObserveRun matches the scheduler observer signature.
func (m *JobCollector) ObserveRun(job string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRunTotal.WithLabelValues(job, status).Inc()
	m.JobRunDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Notify counts events so the collector can sit in a notifications.Multi.
func (m *JobCollector) Notify(event notifications.Event) {
	switch event.Type {
	case notifications.EventStrikeRaised:
		m.StrikesTotal.WithLabelValues(string(event.Item.InstanceType), event.Reason).Inc()
	case notifications.EventQueueItemDeleted:
		m.QueueItemsRemovedTotal.WithLabelValues(string(event.Item.InstanceType), event.Reason).Inc()
	case notifications.EventDownloadCleaned:
		m.DownloadsCleanedTotal.WithLabelValues(event.Category, event.Reason).Inc()
	}
}

var _ notifications.Notifier = (*JobCollector)(nil)
