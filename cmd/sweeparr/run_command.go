// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/autobrr/sweeparr/internal/buildinfo"
	"github.com/autobrr/sweeparr/internal/config"
)

func RunJobCommand(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run a single pass of one job and exit",
		Long:      "Run a single pass of queue-cleaner, content-blocker or download-cleaner, regardless of its schedule.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: jobNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(*configDir, buildinfo.Version)
			if err != nil {
				return err
			}
			cfg.ApplyLogConfig()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cfg.Config, nil)
			if err != nil {
				return err
			}

			job, ok := app.job(args[0])
			if !ok {
				return fmt.Errorf("unknown job %q, expected one of %s", args[0], strings.Join(jobNames, ", "))
			}
			return job.Run(ctx)
		},
	}
}
