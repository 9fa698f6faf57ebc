// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/pkg/debounce"
)

const (
	envPrefix        = "SWEEPARR__"
	reloadDebounce   = 500 * time.Millisecond
	defaultConfigDir = "sweeparr"
)

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	version string

	reload *debounce.Debouncer

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

// New loads configuration from configDirOrPath (a directory holding
// config.toml or the file itself), writing a commented default file when
// none exists. Environment variables override the file.
func New(configDirOrPath, version string) (*AppConfig, error) {
	if strings.TrimSpace(version) == "" {
		version = "dev"
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
		reload:  debounce.New(reloadDebounce),
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	if err := c.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dryRun", false)
	c.viper.SetDefault("httpTimeout", 100)
	c.viper.SetDefault("httpMaxRetries", 3)
	c.viper.SetDefault("ignoredDownloads", []string{})
	c.viper.SetDefault("ignoredDownloadsPath", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9075)
	c.viper.SetDefault("metricsBasicAuthUsers", "")
	c.viper.SetDefault("notificationsEnabled", false)
	c.viper.SetDefault("notificationEvents", []string{})

	c.viper.SetDefault("downloadClient.type", string(domain.DownloadClientQbittorrent))
	c.viper.SetDefault("downloadClient.url", "http://localhost:8080")

	c.viper.SetDefault("sonarr.enabled", false)
	c.viper.SetDefault("sonarr.searchType", string(domain.SonarrSearchEpisode))
	c.viper.SetDefault("radarr.enabled", false)
	c.viper.SetDefault("lidarr.enabled", false)

	c.viper.SetDefault("queueCleaner.enabled", false)
	c.viper.SetDefault("queueCleaner.schedule", "*/5 * * * *")
	c.viper.SetDefault("queueCleaner.runSequentially", true)
	c.viper.SetDefault("queueCleaner.importFailedMaxStrikes", 0)
	c.viper.SetDefault("queueCleaner.stalledMaxStrikes", 0)
	c.viper.SetDefault("queueCleaner.downloadingMetadataMaxStrikes", 0)

	c.viper.SetDefault("contentBlocker.enabled", false)
	c.viper.SetDefault("contentBlocker.schedule", "*/5 * * * *")

	c.viper.SetDefault("downloadCleaner.enabled", false)
	c.viper.SetDefault("downloadCleaner.schedule", "0 * * * *")
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	configPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
	if configDirOrPath != "" {
		configPath = resolveConfigPath(configDirOrPath)
	}
	c.viper.SetConfigFile(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := c.writeDefaultConfig(configPath); err != nil {
			return err
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return nil
}

// loadFromEnv binds only the variables listed here, never AutomaticEnv.
func (c *AppConfig) loadFromEnv() error {
	binds := []struct{ key, env string }{
		{"logLevel", "LOG_LEVEL"},
		{"logPath", "LOG_PATH"},
		{"logMaxSize", "LOG_MAX_SIZE"},
		{"logMaxBackups", "LOG_MAX_BACKUPS"},
		{"dryRun", "DRY_RUN"},
		{"httpTimeout", "HTTP_TIMEOUT"},
		{"httpMaxRetries", "HTTP_MAX_RETRIES"},
		{"ignoredDownloadsPath", "IGNORED_DOWNLOADS_PATH"},
		{"metricsEnabled", "METRICS_ENABLED"},
		{"metricsHost", "METRICS_HOST"},
		{"metricsPort", "METRICS_PORT"},
		{"notificationsEnabled", "NOTIFICATIONS_ENABLED"},
		{"downloadClient.type", "DOWNLOAD_CLIENT__TYPE"},
		{"downloadClient.url", "DOWNLOAD_CLIENT__URL"},
		{"downloadClient.username", "DOWNLOAD_CLIENT__USERNAME"},
		{"downloadClient.basicUsername", "DOWNLOAD_CLIENT__BASIC_USERNAME"},
		{"queueCleaner.enabled", "QUEUE_CLEANER__ENABLED"},
		{"queueCleaner.schedule", "QUEUE_CLEANER__SCHEDULE"},
		{"contentBlocker.enabled", "CONTENT_BLOCKER__ENABLED"},
		{"contentBlocker.schedule", "CONTENT_BLOCKER__SCHEDULE"},
		{"downloadCleaner.enabled", "DOWNLOAD_CLEANER__ENABLED"},
		{"downloadCleaner.schedule", "DOWNLOAD_CLEANER__SCHEDULE"},
	}
	for _, b := range binds {
		if err := c.viper.BindEnv(b.key, envPrefix+b.env); err != nil {
			return fmt.Errorf("bind %s: %w", b.env, err)
		}
	}

	secrets := []struct{ key, env string }{
		{"downloadClient.password", "DOWNLOAD_CLIENT__PASSWORD"},
		{"downloadClient.basicPassword", "DOWNLOAD_CLIENT__BASIC_PASSWORD"},
		{"metricsBasicAuthUsers", "METRICS_BASIC_AUTH_USERS"},
	}
	for _, b := range secrets {
		if err := c.bindOrReadFromFile(b.key, b.env); err != nil {
			return err
		}
	}
	return nil
}

// bindOrReadFromFile prefers SWEEPARR__<NAME>_FILE, holding the path to a
// file with the secret, over SWEEPARR__<NAME>.
func (c *AppConfig) bindOrReadFromFile(key, env string) error {
	if filePath := os.Getenv(envPrefix + env + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("could not read %s_FILE: %w", env, err)
		}
		c.viper.Set(key, strings.TrimSpace(string(content)))
		return nil
	}
	if err := c.viper.BindEnv(key, envPrefix+env); err != nil {
		return fmt.Errorf("bind %s: %w", env, err)
	}
	return nil
}

// WatchConfig reloads the file on change. Only log settings are applied
// live; listeners receive a copy of the reloaded config.
func (c *AppConfig) WatchConfig() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.reload.Do(func() {
			log.Info().Str("file", e.Name).Msg("Config file changed")

			next := &domain.Config{}
			if err := c.viper.Unmarshal(next); err != nil {
				log.Error().Err(err).Msg("Failed to reload configuration")
				return
			}
			next.Version = c.version

			c.Config.LogLevel = next.LogLevel
			c.Config.LogPath = next.LogPath
			c.Config.LogMaxSize = next.LogMaxSize
			c.Config.LogMaxBackups = next.LogMaxBackups
			c.ApplyLogConfig()

			c.notifyListeners(next)
		})
	})
	c.viper.WatchConfig()
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners(cfg *domain.Config) {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	for _, listener := range listeners {
		copied := *cfg
		listener(&copied)
	}
}

// ConfigFileUsed returns the path of the loaded config file.
func (c *AppConfig) ConfigFileUsed() string {
	return c.viper.ConfigFileUsed()
}

const configTemplate = `# config.toml - Auto-generated on first run

# Log level
# Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
logLevel = "{{ .logLevel }}"

# Log file path. Logs go to stderr when unset.
#logPath = "log/sweeparr.log"

# Maximum log file size in megabytes before rotation
#logMaxSize = {{ .logMaxSize }}

# Number of rotated log files to retain (0 keeps all)
#logMaxBackups = {{ .logMaxBackups }}

# Log deletes, file priority changes, searches and notifications instead of performing them
dryRun = {{ .dryRun }}

# Per request timeout in seconds and retry count for every outgoing HTTP call
#httpTimeout = {{ .httpTimeout }}
#httpMaxRetries = {{ .httpMaxRetries }}

# Download hashes no job will ever touch
#ignoredDownloads = []
# Optional YAML file holding a list of hashes, read at startup
#ignoredDownloadsPath = "ignored.yaml"

# Prometheus metrics on a separate listener
#metricsEnabled = false
#metricsHost = "{{ .metricsHost }}"
#metricsPort = {{ .metricsPort }}
# Format: "user:password" or "user1:hash1,user2:hash2". bcrypt hashes are accepted.
#metricsBasicAuthUsers = ""

# Notifications are written to the log. Events: strike_raised, queue_item_deleted, download_cleaned
#notificationsEnabled = false
#notificationEvents = []

[downloadClient]
# qbittorrent, deluge or transmission
type = "{{ .downloadClientType }}"
url = "{{ .downloadClientURL }}"
#username = ""
#password = ""
# Optional HTTP basic auth in front of the web ui (qbittorrent)
#basicUsername = ""
#basicPassword = ""

[sonarr]
enabled = false
# Episode, Season or Series
searchType = "{{ .sonarrSearchType }}"
#[[sonarr.instances]]
#name = "sonarr"
#url = "http://localhost:8989"
#apiKey = ""

[radarr]
enabled = false
#[[radarr.instances]]
#url = "http://localhost:7878"
#apiKey = ""

[lidarr]
enabled = false
#[[lidarr.instances]]
#url = "http://localhost:8686"
#apiKey = ""

[queueCleaner]
enabled = false
schedule = "{{ .queueCleanerSchedule }}"
# Run the content blocker right after every queue cleaner pass
runSequentially = true
# 0 disables a rule
importFailedMaxStrikes = 0
importFailedIgnorePrivate = false
importFailedDeletePrivate = false
importFailedIgnorePatterns = []
stalledMaxStrikes = 0
stalledIgnorePrivate = false
stalledDeletePrivate = false
downloadingMetadataMaxStrikes = 0

[contentBlocker]
enabled = false
schedule = "{{ .contentBlockerSchedule }}"
ignorePrivate = false
deletePrivate = false
# blocklistPath accepts a file path or an http(s) url, blocklistType is blacklist or whitelist
#[contentBlocker.sonarr]
#blocklistPath = "/config/blacklist"
#blocklistType = "blacklist"

[downloadCleaner]
enabled = false
schedule = "{{ .downloadCleanerSchedule }}"
# maxRatio and maxSeedTime (hours) below zero disable that limit
#[[downloadCleaner.categories]]
#name = "tv-sonarr"
#maxRatio = 1.0
#minSeedTime = 0
#maxSeedTime = 240
`

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Str("path", path).Msg("Config file already exists")
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	data := map[string]any{
		"logLevel":                c.viper.GetString("logLevel"),
		"logMaxSize":              c.viper.GetInt("logMaxSize"),
		"logMaxBackups":           c.viper.GetInt("logMaxBackups"),
		"dryRun":                  c.viper.GetBool("dryRun"),
		"httpTimeout":             c.viper.GetInt("httpTimeout"),
		"httpMaxRetries":          c.viper.GetInt("httpMaxRetries"),
		"metricsHost":             c.viper.GetString("metricsHost"),
		"metricsPort":             c.viper.GetInt("metricsPort"),
		"downloadClientType":      c.viper.GetString("downloadClient.type"),
		"downloadClientURL":       c.viper.GetString("downloadClient.url"),
		"sonarrSearchType":        c.viper.GetString("sonarr.searchType"),
		"queueCleanerSchedule":    c.viper.GetString("queueCleaner.schedule"),
		"contentBlockerSchedule":  c.viper.GetString("contentBlocker.schedule"),
		"downloadCleanerSchedule": c.viper.GetString("downloadCleaner.schedule"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", path).Msg("Created default config file")
	return nil
}

// WriteDefaultConfig writes the commented default config to path unless a
// file already exists there.
func WriteDefaultConfig(path string) error {
	c := &AppConfig{viper: viper.New()}
	c.defaults()
	return c.writeDefaultConfig(path)
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// containers mount /config directly
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, defaultConfigDir)
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, defaultConfigDir)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", defaultConfigDir)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", defaultConfigDir)
	}
}

func resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}
	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}
	return filepath.Join(configDirOrPath, "config.toml")
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := baseLogWriter(c.version)

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return os.Stderr
}

// InitDefaultLogger configures zerolog before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}
