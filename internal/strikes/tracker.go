// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package strikes turns repeated bad observations of a download into a stable
// removal decision.
package strikes

import (
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/services/notifications"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

type Reason string

const (
	ReasonStalled             Reason = "Stalled"
	ReasonDownloadingMetadata Reason = "DownloadingMetadata"
	ReasonImportFailed        Reason = "ImportFailed"
)

const (
	DefaultStrikeTTL   = 2 * time.Hour
	DefaultProgressTTL = 10 * time.Minute
)

type key struct {
	reason Reason
	hash   string
}

type Config struct {
	StrikeTTL   time.Duration
	ProgressTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		StrikeTTL:   DefaultStrikeTTL,
		ProgressTTL: DefaultProgressTTL,
	}
}

// Tracker keeps strike counts per (reason, hash) and the last observed
// downloaded byte count per hash in two independent caches.
type Tracker struct {
	mu       sync.Mutex
	strikes  *ttlcache.Cache[key, int]
	progress *ttlcache.Cache[string, int64]
	notifier notifications.Notifier
	logger   zerolog.Logger
}

func NewTracker(cfg Config, notifier notifications.Notifier) *Tracker {
	if cfg.StrikeTTL <= 0 {
		cfg.StrikeTTL = DefaultStrikeTTL
	}
	if cfg.ProgressTTL <= 0 {
		cfg.ProgressTTL = DefaultProgressTTL
	}

	return &Tracker{
		strikes:  ttlcache.New(ttlcache.Options[key, int]{}.SetDefaultTTL(cfg.StrikeTTL)),
		progress: ttlcache.New(ttlcache.Options[string, int64]{}.SetDefaultTTL(cfg.ProgressTTL)),
		notifier: notifier,
		logger:   log.With().Str("component", "strikes").Logger(),
	}
}

// StrikeAndCheckLimit records a strike for the item and reports whether the
// count reached maxStrikes. A maxStrikes of zero disables the check.
func (t *Tracker) StrikeAndCheckLimit(item domain.ItemContext, maxStrikes uint, reason Reason) bool {
	if maxStrikes == 0 {
		return false
	}

	k := key{reason: reason, hash: hashutil.Normalize(item.Hash)}

	t.mu.Lock()
	count, _ := t.strikes.Get(k)
	count++
	t.strikes.Set(k, count, ttlcache.DefaultTTL)
	t.mu.Unlock()

	t.logger.Info().
		Str("reason", string(reason)).
		Str("hash", k.hash).
		Str("title", item.Title).
		Int("strikes", count).
		Uint("maxStrikes", maxStrikes).
		Msg("item received strike")

	if t.notifier != nil {
		t.notifier.Notify(notifications.StrikeRaised(item, string(reason), count))
	}

	if count > int(maxStrikes) {
		t.logger.Warn().
			Str("reason", string(reason)).
			Str("hash", k.hash).
			Str("title", item.Title).
			Int("strikes", count).
			Msg("item keeps coming back after removal, consider enabling blocklist rejection of previously failed downloads in the arr instance")
	}

	return count >= int(maxStrikes)
}

// ResetOnProgress clears the stalled strikes of hash when downloaded grew
// since the previous observation, then records downloaded.
func (t *Tracker) ResetOnProgress(hash string, downloaded int64) {
	hash = hashutil.Normalize(hash)

	t.mu.Lock()
	defer t.mu.Unlock()

	if previous, ok := t.progress.Get(hash); ok && downloaded > previous {
		k := key{reason: ReasonStalled, hash: hash}
		if _, struck := t.strikes.Get(k); struck {
			t.strikes.Delete(k)
			t.logger.Debug().Str("hash", hash).Int64("downloaded", downloaded).Msg("progress detected, stalled strikes reset")
		}
	}

	t.progress.Set(hash, downloaded, ttlcache.DefaultTTL)
}

// Count returns the current strike count for hash and reason.
func (t *Tracker) Count(hash string, reason Reason) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count, _ := t.strikes.Get(key{reason: reason, hash: hashutil.Normalize(hash)})
	return count
}
