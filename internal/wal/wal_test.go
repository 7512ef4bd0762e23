// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package wal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/contactsync/internal/config"
)

type testJob struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := OpenDB(config.StorageConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJournal_WriteConfirm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := NewJournal(openTestDB(t), DefaultOptions())

	id, err := j.Write(ctx, testJob{Email: "a@b.com", Source: "woocommerce"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if id == "" {
		t.Fatal("Write() returned empty id")
	}

	pending, err := j.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("GetPending() = %+v", pending)
	}

	var job testJob
	if err := pending[0].UnmarshalPayload(&job); err != nil || job.Email != "a@b.com" {
		t.Errorf("UnmarshalPayload() = %+v, %v", job, err)
	}

	if err := j.Confirm(ctx, id); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	pending, _ = j.GetPending(ctx)
	if len(pending) != 0 {
		t.Errorf("GetPending() after confirm = %d entries, want 0", len(pending))
	}

	stats := j.Stats()
	if stats.PendingCount != 0 || stats.ConfirmedCount != 1 || stats.TotalWrites != 1 || stats.TotalConfirms != 1 {
		t.Errorf("Stats() = %+v", stats)
	}

	if err := j.Confirm(ctx, id); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Confirm() error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournal_InvalidInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := NewJournal(openTestDB(t), DefaultOptions())

	if _, err := j.Write(ctx, nil); !errors.Is(err, ErrNilEvent) {
		t.Errorf("Write(nil) error = %v, want ErrNilEvent", err)
	}
	if err := j.Confirm(ctx, ""); !errors.Is(err, ErrEmptyEntryID) {
		t.Errorf("Confirm(\"\") error = %v, want ErrEmptyEntryID", err)
	}
	if err := j.DeleteEntry(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("DeleteEntry(missing) error = %v, want ErrEntryNotFound", err)
	}
}

func TestJournal_Closed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := NewJournal(openTestDB(t), DefaultOptions())
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := j.Write(ctx, testJob{}); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("Write() error = %v, want ErrJournalClosed", err)
	}
	if _, err := j.GetPending(ctx); !errors.Is(err, ErrJournalClosed) {
		t.Errorf("GetPending() error = %v, want ErrJournalClosed", err)
	}
	if stats := j.Stats(); stats != (Stats{}) {
		t.Errorf("Stats() on closed journal = %+v", stats)
	}
}

func TestJournal_RecoverPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := NewJournal(openTestDB(t), Options{MaxAttempts: 2})

	first, _ := j.Write(ctx, testJob{Email: "one@example.com"})
	second, _ := j.Write(ctx, testJob{Email: "two@example.com"})
	done, _ := j.Write(ctx, testJob{Email: "done@example.com"})
	if err := j.Confirm(ctx, done); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	var published []string
	publisher := PublisherFunc(func(_ context.Context, entry *Entry) error {
		published = append(published, entry.ID)
		return nil
	})

	result, err := j.RecoverPending(ctx, publisher)
	if err != nil {
		t.Fatalf("RecoverPending() error = %v", err)
	}
	if result.TotalPending != 2 || result.Recovered != 2 || result.Dropped != 0 {
		t.Errorf("RecoverPending() = %+v", result)
	}
	if len(published) != 2 {
		t.Errorf("published %v, want both pending entries", published)
	}

	// Entries stay pending until a worker confirms them.
	pending, _ := j.GetPending(ctx)
	if len(pending) != 2 {
		t.Fatalf("pending after recovery = %d, want 2", len(pending))
	}
	for _, e := range pending {
		if e.Attempts != 1 {
			t.Errorf("entry %s attempts = %d, want 1", e.ID, e.Attempts)
		}
	}

	if err := j.Confirm(ctx, first); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	// second crashes the worker again and again
	if _, err := j.RecoverPending(ctx, publisher); err != nil {
		t.Fatalf("RecoverPending() error = %v", err)
	}
	result, err = j.RecoverPending(ctx, publisher)
	if err != nil {
		t.Fatalf("RecoverPending() error = %v", err)
	}
	if result.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1 for %s", result.Dropped, second)
	}
	if pending, _ := j.GetPending(ctx); len(pending) != 0 {
		t.Errorf("pending after drop = %d, want 0", len(pending))
	}
}

func TestJournal_RecoverPublishFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	j := NewJournal(openTestDB(t), DefaultOptions())
	if _, err := j.Write(ctx, testJob{Email: "a@b.com"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	result, err := j.RecoverPending(ctx, PublisherFunc(func(context.Context, *Entry) error {
		return errors.New("broker down")
	}))
	if err != nil {
		t.Fatalf("RecoverPending() error = %v", err)
	}
	if result.Failed != 1 || len(result.Errors) != 1 {
		t.Errorf("RecoverPending() = %+v, want one failure", result)
	}

	if _, err := j.RecoverPending(ctx, nil); err == nil {
		t.Error("RecoverPending(nil) error = nil")
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "badger")

	db, err := OpenDB(config.StorageConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	id, err := NewJournal(db, DefaultOptions()).Write(ctx, testJob{Email: "a@b.com"})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := CloseDB(db, 0); err != nil {
		t.Fatalf("CloseDB() error = %v", err)
	}

	db, err = OpenDB(config.StorageConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer db.Close()

	pending, err := NewJournal(db, DefaultOptions()).GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Errorf("GetPending() after reopen = %+v, want %s", pending, id)
	}
}

func TestOpenDB_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenDB(config.StorageConfig{}); err == nil {
		t.Error("OpenDB() without path error = nil")
	}
}
