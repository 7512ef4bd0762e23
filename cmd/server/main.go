// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("crm", cfg.CRM.BaseURL).
		Str("queue_backend", cfg.Queue.Backend).
		Str("auth_mode", cfg.Security.AuthMode).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Bool("background", cfg.Sync.BackgroundProcessing).
		Msg("Starting contactsync")

	a, err := newApp(cfg, config.ConfigFilePath())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.close()

	if err := a.store.Watch(); err != nil {
		logging.Warn().Err(err).Msg("Config file watch unavailable, settings changes need a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	a.register(tree)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor stopped with error")
	}

	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop in time")
		}
	}
	logging.Info().Msg("Shutdown complete")
}
