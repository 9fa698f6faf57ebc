// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"

	"github.com/autobrr/sweeparr/internal/seeding"
)

// Config represents the application configuration
type Config struct {
	Version               string
	LogLevel              string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath               string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize            int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups         int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	MetricsEnabled        bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost           string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort           int    `toml:"metricsPort" mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `toml:"metricsBasicAuthUsers" mapstructure:"metricsBasicAuthUsers"`

	// DryRun logs every mutating call (deletes, priority changes, searches,
	// notifications) instead of performing it.
	DryRun bool `toml:"dryRun" mapstructure:"dryRun"`

	// HTTPTimeout is the per-request timeout in seconds for every outgoing HTTP call.
	HTTPTimeout    int `toml:"httpTimeout" mapstructure:"httpTimeout"`
	HTTPMaxRetries int `toml:"httpMaxRetries" mapstructure:"httpMaxRetries"`

	IgnoredDownloads     []string `toml:"ignoredDownloads" mapstructure:"ignoredDownloads"`
	IgnoredDownloadsPath string   `toml:"ignoredDownloadsPath" mapstructure:"ignoredDownloadsPath"`

	NotificationsEnabled bool     `toml:"notificationsEnabled" mapstructure:"notificationsEnabled"`
	NotificationEvents   []string `toml:"notificationEvents" mapstructure:"notificationEvents"`

	DownloadClient  DownloadClientConfig  `toml:"downloadClient" mapstructure:"downloadClient"`
	Sonarr          SonarrConfig          `toml:"sonarr" mapstructure:"sonarr"`
	Radarr          ArrConfig             `toml:"radarr" mapstructure:"radarr"`
	Lidarr          ArrConfig             `toml:"lidarr" mapstructure:"lidarr"`
	QueueCleaner    QueueCleanerConfig    `toml:"queueCleaner" mapstructure:"queueCleaner"`
	ContentBlocker  ContentBlockerConfig  `toml:"contentBlocker" mapstructure:"contentBlocker"`
	DownloadCleaner DownloadCleanerConfig `toml:"downloadCleaner" mapstructure:"downloadCleaner"`
}

type DownloadClientConfig struct {
	Type          DownloadClientType `toml:"type" mapstructure:"type"`
	URL           string             `toml:"url" mapstructure:"url"`
	Username      string             `toml:"username" mapstructure:"username"`
	Password      string             `toml:"password" mapstructure:"password"`
	BasicUsername string             `toml:"basicUsername" mapstructure:"basicUsername"`
	BasicPassword string             `toml:"basicPassword" mapstructure:"basicPassword"`
}

// ArrInstance is one configured Sonarr, Radarr or Lidarr server.
type ArrInstance struct {
	Name   string `toml:"name" mapstructure:"name"`
	URL    string `toml:"url" mapstructure:"url"`
	APIKey string `toml:"apiKey" mapstructure:"apiKey"`
}

type ArrConfig struct {
	Enabled   bool          `toml:"enabled" mapstructure:"enabled"`
	Instances []ArrInstance `toml:"instances" mapstructure:"instances"`
}

type SonarrConfig struct {
	ArrConfig  `mapstructure:",squash"`
	SearchType SonarrSearchType `toml:"searchType" mapstructure:"searchType"`
}

type SonarrSearchType string

const (
	SonarrSearchEpisode SonarrSearchType = "Episode"
	SonarrSearchSeason  SonarrSearchType = "Season"
	SonarrSearchSeries  SonarrSearchType = "Series"
)

type QueueCleanerConfig struct {
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	Schedule        string `toml:"schedule" mapstructure:"schedule"`
	RunSequentially bool   `toml:"runSequentially" mapstructure:"runSequentially"`

	ImportFailedMaxStrikes     uint     `toml:"importFailedMaxStrikes" mapstructure:"importFailedMaxStrikes"`
	ImportFailedIgnorePrivate  bool     `toml:"importFailedIgnorePrivate" mapstructure:"importFailedIgnorePrivate"`
	ImportFailedDeletePrivate  bool     `toml:"importFailedDeletePrivate" mapstructure:"importFailedDeletePrivate"`
	ImportFailedIgnorePatterns []string `toml:"importFailedIgnorePatterns" mapstructure:"importFailedIgnorePatterns"`

	StalledMaxStrikes    uint `toml:"stalledMaxStrikes" mapstructure:"stalledMaxStrikes"`
	StalledIgnorePrivate bool `toml:"stalledIgnorePrivate" mapstructure:"stalledIgnorePrivate"`
	StalledDeletePrivate bool `toml:"stalledDeletePrivate" mapstructure:"stalledDeletePrivate"`

	DownloadingMetadataMaxStrikes uint `toml:"downloadingMetadataMaxStrikes" mapstructure:"downloadingMetadataMaxStrikes"`
}

type BlocklistConfig struct {
	Path string `toml:"blocklistPath" mapstructure:"blocklistPath"`
	Type string `toml:"blocklistType" mapstructure:"blocklistType"`
}

type ContentBlockerConfig struct {
	Enabled       bool            `toml:"enabled" mapstructure:"enabled"`
	Schedule      string          `toml:"schedule" mapstructure:"schedule"`
	IgnorePrivate bool            `toml:"ignorePrivate" mapstructure:"ignorePrivate"`
	DeletePrivate bool            `toml:"deletePrivate" mapstructure:"deletePrivate"`
	Sonarr        BlocklistConfig `toml:"sonarr" mapstructure:"sonarr"`
	Radarr        BlocklistConfig `toml:"radarr" mapstructure:"radarr"`
	Lidarr        BlocklistConfig `toml:"lidarr" mapstructure:"lidarr"`
}

// Blocklist returns the blocklist settings for the given arr type.
func (c ContentBlockerConfig) Blocklist(t InstanceType) BlocklistConfig {
	switch t {
	case InstanceTypeSonarr:
		return c.Sonarr
	case InstanceTypeRadarr:
		return c.Radarr
	case InstanceTypeLidarr:
		return c.Lidarr
	default:
		return BlocklistConfig{}
	}
}

type DownloadCleanerConfig struct {
	Enabled    bool               `toml:"enabled" mapstructure:"enabled"`
	Schedule   string             `toml:"schedule" mapstructure:"schedule"`
	Categories []seeding.Category `toml:"categories" mapstructure:"categories"`
}

// Arr returns the settings for the given arr type.
func (c *Config) Arr(t InstanceType) ArrConfig {
	switch t {
	case InstanceTypeSonarr:
		return c.Sonarr.ArrConfig
	case InstanceTypeRadarr:
		return c.Radarr
	case InstanceTypeLidarr:
		return c.Lidarr
	default:
		return ArrConfig{}
	}
}

// Validate checks the configuration for contradictory or missing settings.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.QueueCleaner.Enabled || c.ContentBlocker.Enabled || c.DownloadCleaner.Enabled {
		if err := c.DownloadClient.validate(); err != nil {
			errs = append(errs, err)
		}
	}

	for _, t := range InstanceTypes {
		arrCfg := c.Arr(t)
		if !arrCfg.Enabled {
			continue
		}
		for i, instance := range arrCfg.Instances {
			if err := instance.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s instance %d: %w", t, i, err))
			}
		}
	}

	if c.Sonarr.Enabled {
		switch c.Sonarr.SearchType {
		case SonarrSearchEpisode, SonarrSearchSeason, SonarrSearchSeries:
		default:
			errs = append(errs, fmt.Errorf("sonarr: invalid searchType %q", c.Sonarr.SearchType))
		}
	}

	jobs := []struct {
		name     string
		enabled  bool
		schedule string
	}{
		{"queueCleaner", c.QueueCleaner.Enabled, c.QueueCleaner.Schedule},
		{"contentBlocker", c.ContentBlocker.Enabled && !c.QueueCleaner.RunSequentially, c.ContentBlocker.Schedule},
		{"downloadCleaner", c.DownloadCleaner.Enabled, c.DownloadCleaner.Schedule},
	}
	for _, job := range jobs {
		if job.enabled && !gronx.IsValid(job.schedule) {
			errs = append(errs, fmt.Errorf("%s: invalid schedule %q", job.name, job.schedule))
		}
	}

	if c.ContentBlocker.Enabled {
		for _, t := range InstanceTypes {
			bl := c.ContentBlocker.Blocklist(t)
			if !c.Arr(t).Enabled || bl.Path == "" {
				continue
			}
			switch strings.ToLower(bl.Type) {
			case "blacklist", "whitelist":
			default:
				errs = append(errs, fmt.Errorf("contentBlocker.%s: invalid blocklistType %q", t, bl.Type))
			}
		}
	}

	if c.DownloadCleaner.Enabled {
		if len(c.DownloadCleaner.Categories) == 0 {
			errs = append(errs, errors.New("downloadCleaner: at least one category is required"))
		}
		if err := seeding.ValidateCategories(c.DownloadCleaner.Categories); err != nil {
			errs = append(errs, fmt.Errorf("downloadCleaner: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (d DownloadClientConfig) validate() error {
	if _, err := ParseDownloadClientType(string(d.Type)); err != nil {
		return err
	}
	return validateURL("downloadClient.url", d.URL)
}

func (i ArrInstance) validate() error {
	if err := validateURL("url", i.URL); err != nil {
		return err
	}
	if strings.TrimSpace(i.APIKey) == "" {
		return errors.New("apiKey is required")
	}
	return nil
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: unsupported scheme %q", field, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: missing host", field)
	}
	return nil
}
