// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/kodiguide/internal/daemon"
	klog "github.com/ManuGH/kodiguide/internal/log"
	"github.com/ManuGH/kodiguide/internal/version"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}
}

func runServe(cmd *cobra.Command, cc *commandContext) error {
	// Configure logger with safe defaults until config is loaded
	klog.Configure(klog.Config{Level: "info", Version: version.Version})
	logger := klog.WithComponent("daemon")

	cfg, err := cc.loadConfig()
	if err != nil {
		logger.Error().
			Err(err).
			Str(klog.FieldEvent, "config.load_failed").
			Str(klog.FieldPath, cc.configPath).
			Msg("failed to load configuration")
		return &silentError{err: err}
	}

	klog.Configure(klog.Config{
		Level:   cfg.Log.Level,
		Service: cfg.Log.Service,
		Version: cfg.Version,
	})
	logger = klog.WithComponent("daemon")
	logger.Info().
		Str(klog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.Listen).
		Str(klog.FieldPath, cc.configPath).
		Msg("starting kodiguide")

	ctx := cmd.Context()
	app, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(klog.FieldEvent, "startup.failed").Msg("daemon could not start")
		return &silentError{err: err}
	}
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(klog.FieldEvent, "daemon.exit").Int("exit_code", daemon.ExitCode(err)).Msg("daemon stopped with error")
		return &silentError{err: err}
	}
	return nil
}
