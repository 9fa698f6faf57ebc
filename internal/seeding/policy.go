// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package seeding decides when a completed download has seeded long enough
// to be removed from the download client.
package seeding

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category holds the cleanup thresholds for one download client category.
// Seed times are expressed in hours.
type Category struct {
	Name string `toml:"name" mapstructure:"name"`

	// MaxRatio enables the ratio rule when >= 0.
	MaxRatio float64 `toml:"maxRatio" mapstructure:"maxRatio"`

	// MinSeedTime gates the ratio rule.
	MinSeedTime float64 `toml:"minSeedTime" mapstructure:"minSeedTime"`

	// MaxSeedTime enables the seed time rule when >= 0.
	MaxSeedTime float64 `toml:"maxSeedTime" mapstructure:"maxSeedTime"`
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("category name is required")
	}
	if c.MaxRatio < 0 && c.MaxSeedTime < 0 {
		return fmt.Errorf("category %q: either maxRatio or maxSeedTime must be enabled", c.Name)
	}
	if c.MinSeedTime < 0 {
		return fmt.Errorf("category %q: minSeedTime can not be negative", c.Name)
	}
	return nil
}

// ValidateCategories validates every category and rejects duplicate names.
func ValidateCategories(categories []Category) error {
	var errs []error
	seen := make(map[string]struct{}, len(categories))

	for _, c := range categories {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, exists := seen[key]; exists {
			errs = append(errs, fmt.Errorf("duplicate category %q", c.Name))
			continue
		}
		seen[key] = struct{}{}
	}

	return errors.Join(errs...)
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonMaxRatioReached
	ReasonMaxSeedTimeReached
)

func (r Reason) String() string {
	switch r {
	case ReasonMaxRatioReached:
		return "MaxRatioReached"
	case ReasonMaxSeedTimeReached:
		return "MaxSeedTimeReached"
	default:
		return "None"
	}
}

type Result struct {
	ShouldClean bool
	Reason      Reason
}

// ShouldClean evaluates the ratio rule and then the seed time rule; the
// first rule that fires wins.
func ShouldClean(ratio float64, seedingTime time.Duration, category Category) Result {
	if ratioReached(ratio, seedingTime, category) {
		return Result{ShouldClean: true, Reason: ReasonMaxRatioReached}
	}

	if seedTimeReached(seedingTime, category) {
		return Result{ShouldClean: true, Reason: ReasonMaxSeedTimeReached}
	}

	return Result{Reason: ReasonNone}
}

func ratioReached(ratio float64, seedingTime time.Duration, category Category) bool {
	if category.MaxRatio < 0 {
		return false
	}

	if category.MinSeedTime > 0 && seedingTime < hours(category.MinSeedTime) {
		return false
	}

	return ratio >= category.MaxRatio
}

func seedTimeReached(seedingTime time.Duration, category Category) bool {
	if category.MaxSeedTime < 0 {
		return false
	}

	return category.MaxSeedTime == 0 || seedingTime >= hours(category.MaxSeedTime)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
