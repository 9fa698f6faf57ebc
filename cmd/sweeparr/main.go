// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/sweeparr/internal/buildinfo"
	"github.com/autobrr/sweeparr/internal/config"
	"github.com/autobrr/sweeparr/internal/metrics"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:          "sweeparr",
		Short:        "Keeps arr download queues and download clients clean",
		SilenceUsage: true,
		Version:      buildinfo.Version,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "Config directory or path to config.toml (default: OS config dir)")

	root.AddCommand(
		runServeCommand(&configDir),
		RunJobCommand(&configDir),
		runGenerateConfigCommand(&configDir),
		runVersionCommand(),
	)
	return root
}

func runServeCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled jobs until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(*configDir, buildinfo.Version)
			if err != nil {
				return err
			}
			cfg.ApplyLogConfig()
			cfg.WatchConfig()

			log.Info().Str("version", buildinfo.Version).Str("config", cfg.ConfigFileUsed()).Msg("Starting sweeparr")
			log.Debug().Interface("config", cfg.Config.Redacted()).Msg("Loaded configuration")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var metricsManager *metrics.MetricsManager
			if cfg.Config.MetricsEnabled {
				metricsManager = metrics.NewMetricsManager()
			}

			app, err := newApp(ctx, cfg.Config, metricsManager)
			if err != nil {
				return err
			}

			sched, err := app.scheduler()
			if err != nil {
				return err
			}

			var metricsServer *metrics.MetricsServer
			if metricsManager != nil {
				metricsServer = metrics.NewMetricsServer(metricsManager, cfg.Config.MetricsHost, cfg.Config.MetricsPort, cfg.Config.MetricsBasicAuthUsers)
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("Metrics server stopped")
					}
				}()
			}

			sched.Start(ctx)

			<-ctx.Done()
			log.Info().Msg("Shutting down")

			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Failed to shut down metrics server")
				}
			}

			sched.Wait()
			return nil
		},
	}
}

func runGenerateConfigCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-config",
		Short: "Write a commented default config.toml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := *configDir
			if dir == "" {
				dir = config.GetDefaultConfigDir()
			}

			path := dir
			if filepath.Ext(path) != ".toml" {
				path = filepath.Join(dir, "config.toml")
			}

			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			cmd.Printf("Config written to %s\n", path)
			return nil
		},
	}
}

func runVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				data, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}
			cmd.Print(buildinfo.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
