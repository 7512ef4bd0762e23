// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

//go:build !nats

package queue

import (
	"errors"
	"testing"
)

func TestNew_NATSRequiresBuildTag(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Queue.Backend = BackendNATS
	if _, err := New(cfg, nil); !errors.Is(err, ErrNATSNotCompiled) {
		t.Errorf("New() error = %v, want ErrNATSNotCompiled", err)
	}
}
