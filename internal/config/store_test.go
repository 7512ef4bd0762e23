// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package config

import (
	"errors"
	"testing"
)

func TestStoreReloadKeepsStaticSections(t *testing.T) {
	t.Parallel()

	initial := defaultConfig()
	initial.Server.Port = 8080
	initial.Security.AuthMode = "none"

	s := NewStore(initial, "config.yaml")
	s.loader = func(string) (*Config, error) {
		next := defaultConfig()
		next.Server.Port = 9999
		next.CRM.APIKey = "rotated"
		next.Sync.Enabled = true
		next.Integrations.CF7.Enabled = true
		return next, nil
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := s.APIKey(); got != "rotated" {
		t.Errorf("APIKey() = %q, want rotated", got)
	}
	if !s.Settings().Enabled {
		t.Error("Settings().Enabled = false, want true after reload")
	}
	if !s.Integrations().IsEnabled("cf7") {
		t.Error("cf7 integration should be enabled after reload")
	}
	if got := s.Current().Server.Port; got != 8080 {
		t.Errorf("Server.Port = %d, want 8080 (not hot-reloadable)", got)
	}
	if initial.CRM.APIKey != "" {
		t.Error("Reload mutated the previous snapshot")
	}
}

func TestStoreReloadFailureKeepsSnapshot(t *testing.T) {
	t.Parallel()

	initial := defaultConfig()
	initial.CRM.APIKey = "original"

	s := NewStore(initial, "config.yaml")
	s.loader = func(string) (*Config, error) {
		return nil, errors.New("bad yaml")
	}

	if err := s.Reload(); err == nil {
		t.Fatal("Reload() error = nil, want error")
	}
	if got := s.APIKey(); got != "original" {
		t.Errorf("APIKey() = %q, want original", got)
	}
}

func TestStoreWatchWithoutPath(t *testing.T) {
	t.Parallel()

	s := NewStore(defaultConfig(), "")
	if err := s.Watch(); err != nil {
		t.Errorf("Watch() error = %v, want nil for pathless store", err)
	}
}
