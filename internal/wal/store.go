// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package wal

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
)

// OpenDB opens (or creates) the Badger database described by cfg.
func OpenDB(cfg config.StorageConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("storage path is required unless in_memory is set")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = true
		opts.Compression = options.Snappy
	}

	opts.MemTableSize = 16 << 20
	opts.ValueLogFileSize = 64 << 20
	opts.NumCompactors = 2

	// Badger's own logger is too chatty at info level.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("Storage opened")
	return db, nil
}

// RunGC reclaims value log space until Badger reports nothing to rewrite.
func RunGC(db *badger.DB) error {
	if db.Opts().InMemory {
		return nil
	}
	for {
		err := db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// CloseDB closes db, giving up after timeout.
func CloseDB(db *badger.DB, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	done := make(chan error, 1)
	go func() {
		done <- db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("Storage closed")
		return nil
	case <-time.After(timeout):
		logging.Warn().Dur("timeout", timeout).Msg("BadgerDB close timed out")
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
