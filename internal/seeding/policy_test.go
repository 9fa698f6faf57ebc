// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package seeding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldClean(t *testing.T) {
	t.Parallel()

	ratioOnly := Category{Name: "tv", MaxRatio: 1.0, MinSeedTime: 1, MaxSeedTime: -1}
	seedTimeOnly := Category{Name: "movies", MaxRatio: -1, MinSeedTime: 0, MaxSeedTime: 1}

	tests := []struct {
		name        string
		ratio       float64
		seedingTime time.Duration
		category    Category
		want        Result
	}{
		{
			name:        "ratio reached after min seed time",
			ratio:       1.5,
			seedingTime: 2 * time.Hour,
			category:    ratioOnly,
			want:        Result{ShouldClean: true, Reason: ReasonMaxRatioReached},
		},
		{
			name:        "ratio reached before min seed time",
			ratio:       1.5,
			seedingTime: 30 * time.Minute,
			category:    ratioOnly,
			want:        Result{Reason: ReasonNone},
		},
		{
			name:        "ratio below max",
			ratio:       0.9,
			seedingTime: 5 * time.Hour,
			category:    ratioOnly,
			want:        Result{Reason: ReasonNone},
		},
		{
			name:        "ratio exactly at max",
			ratio:       1.0,
			seedingTime: time.Hour,
			category:    ratioOnly,
			want:        Result{ShouldClean: true, Reason: ReasonMaxRatioReached},
		},
		{
			name:        "seed time reached",
			ratio:       0.5,
			seedingTime: 2 * time.Hour,
			category:    seedTimeOnly,
			want:        Result{ShouldClean: true, Reason: ReasonMaxSeedTimeReached},
		},
		{
			name:        "seed time not reached",
			ratio:       10,
			seedingTime: 59 * time.Minute,
			category:    seedTimeOnly,
			want:        Result{Reason: ReasonNone},
		},
		{
			name:        "zero max seed time always fires",
			ratio:       0,
			seedingTime: 0,
			category:    Category{Name: "x", MaxRatio: -1, MaxSeedTime: 0},
			want:        Result{ShouldClean: true, Reason: ReasonMaxSeedTimeReached},
		},
		{
			name:        "ratio rule wins over seed time rule",
			ratio:       3,
			seedingTime: 10 * time.Hour,
			category:    Category{Name: "x", MaxRatio: 2, MaxSeedTime: 1},
			want:        Result{ShouldClean: true, Reason: ReasonMaxRatioReached},
		},
		{
			name:        "min seed time blocks ratio but seed time fires",
			ratio:       3,
			seedingTime: 2 * time.Hour,
			category:    Category{Name: "x", MaxRatio: 2, MinSeedTime: 5, MaxSeedTime: 1},
			want:        Result{ShouldClean: true, Reason: ReasonMaxSeedTimeReached},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShouldClean(tt.ratio, tt.seedingTime, tt.category))
		})
	}
}

func TestValidateCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		categories []Category
		wantErr    string
	}{
		{name: "valid", categories: []Category{{Name: "tv", MaxRatio: 1, MaxSeedTime: -1}}},
		{name: "both rules disabled", categories: []Category{{Name: "tv", MaxRatio: -1, MaxSeedTime: -1}}, wantErr: "either maxRatio or maxSeedTime"},
		{name: "negative min seed time", categories: []Category{{Name: "tv", MaxRatio: 1, MinSeedTime: -1}}, wantErr: "minSeedTime can not be negative"},
		{name: "missing name", categories: []Category{{MaxRatio: 1}}, wantErr: "name is required"},
		{
			name: "duplicate names ignore case",
			categories: []Category{
				{Name: "TV", MaxRatio: 1},
				{Name: "tv", MaxSeedTime: 2, MaxRatio: -1},
			},
			wantErr: "duplicate category",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateCategories(tt.categories)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
