// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package wal

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// Publisher republishes a journaled entry.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *Entry) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, entry *Entry) error

// PublishEntry implements Publisher.
func (f PublisherFunc) PublishEntry(ctx context.Context, entry *Entry) error {
	return f(ctx, entry)
}

// RecoveryResult summarizes one RecoverPending run.
type RecoveryResult struct {
	TotalPending int
	Recovered    int
	Failed       int
	Dropped      int
	Errors       []error
	Duration     time.Duration
}

// RecoverPending republishes every entry left pending by a previous run.
// Republished entries stay pending until a worker confirms them; their
// attempt count is incremented so an entry that keeps crashing the worker
// is dropped after MaxAttempts recoveries.
//
// Run it once per process. Entries the current run has in flight may be
// republished too; the consumer side deduplicates them.
func (j *Journal) RecoverPending(ctx context.Context, publisher Publisher) (*RecoveryResult, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}

	start := time.Now()
	result := &RecoveryResult{}

	entries, err := j.GetPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pending entries: %w", err)
	}

	result.TotalPending = len(entries)
	if result.TotalPending == 0 {
		logging.Info().Msg("Journal recovery: no pending entries found")
		result.Duration = time.Since(start)
		return result, nil
	}

	logging.Info().Int("pending_entries", result.TotalPending).Msg("Journal recovery found pending entries")

	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err())
			result.Duration = time.Since(start)
			return result, ctx.Err()
		}
		j.recoverEntry(ctx, entry, publisher, result)
	}

	result.Duration = time.Since(start)

	logging.Info().
		Int("recovered", result.Recovered).
		Int("failed", result.Failed).
		Int("dropped", result.Dropped).
		Dur("duration", result.Duration).
		Msg("Journal recovery complete")

	return result, nil
}

func (j *Journal) recoverEntry(ctx context.Context, entry *Entry, publisher Publisher, result *RecoveryResult) {
	if entry.Attempts >= j.opts.MaxAttempts {
		logging.Warn().
			Str("entry_id", entry.ID).
			Int("attempts", entry.Attempts).
			Str("last_error", entry.LastError).
			Msg("Journal recovery: entry exceeded max attempts, dropping")
		if err := j.DeleteEntry(ctx, entry.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("delete entry %s: %w", entry.ID, err))
		}
		result.Dropped++
		return
	}

	if err := j.UpdateAttempt(ctx, entry.ID, "recovered after restart"); err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("update attempt for %s: %w", entry.ID, err))
	}

	if err := publisher.PublishEntry(ctx, entry); err != nil {
		logging.Error().Err(err).Str("entry_id", entry.ID).Msg("Journal recovery: failed to republish entry")
		result.Failed++
		result.Errors = append(result.Errors, fmt.Errorf("publish entry %s: %w", entry.ID, err))
		return
	}

	metrics.JournalRecovered.Inc()
	result.Recovered++
}
