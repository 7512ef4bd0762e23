// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package config

import (
	"sync/atomic"

	"github.com/tomtom215/contactsync/internal/logging"
)

// Store holds the live configuration. Readers always see a complete,
// validated snapshot; Reload swaps the snapshot atomically.
type Store struct {
	current atomic.Pointer[Config]
	path    string
	loader  func(path string) (*Config, error)
}

// NewStore creates a Store seeded with cfg. path is the config file used
// by Reload and Watch; it may be empty.
func NewStore(cfg *Config, path string) *Store {
	s := &Store{path: path, loader: LoadFile}
	s.current.Store(cfg)
	return s
}

// Current returns the active configuration snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Settings returns the active sync settings.
func (s *Store) Settings() SyncSettings {
	return s.current.Load().Sync
}

// Integrations returns the active integration flags.
func (s *Store) Integrations() IntegrationsConfig {
	return s.current.Load().Integrations
}

// APIKey returns the active CRM API key.
func (s *Store) APIKey() string {
	return s.current.Load().CRM.APIKey
}

// Replace swaps in cfg after validating it.
func (s *Store) Replace(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Reload re-reads the configuration. Only the hot-reloadable sections
// (crm.api_key, sync, integrations) are taken from the new load; the rest
// keeps its startup values since servers and stores are already built.
// A failed load leaves the current snapshot in place.
func (s *Store) Reload() error {
	loaded, err := s.loader(s.path)
	if err != nil {
		return err
	}

	next := *s.current.Load()
	next.CRM.APIKey = loaded.CRM.APIKey
	next.Sync = loaded.Sync
	next.Integrations = loaded.Integrations
	s.current.Store(&next)

	logging.Info().
		Bool("sync_enabled", next.Sync.Enabled).
		Bool("background", next.Sync.BackgroundProcessing).
		Str("api_key", logging.SanitizeToken(next.CRM.APIKey)).
		Msg("Sync settings reloaded")
	return nil
}

// Watch reloads settings whenever the config file changes. It is a no-op
// when the store has no file path.
func (s *Store) Watch() error {
	if s.path == "" {
		return nil
	}
	return WatchConfigFile(s.path, func() {
		if err := s.Reload(); err != nil {
			logging.Error().Err(err).Str("path", s.path).Msg("Config reload failed, keeping previous settings")
		}
	})
}
