// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package activitylog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/wal"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    Level
	}{
		{"Error: API key not found", LevelError},
		{"Warning: Could not find tag ID for 'VIP'", LevelWarning},
		{"Success: Tag 'VIP' created with ID: 7", LevelSuccess},
		{"Info: Creating new contact a@example.com", LevelInfo},
		{"Debug: Prepared contact data: {}", LevelDebug},
		{"plain message", LevelInfo},
		{"error: lowercase is not a prefix", LevelInfo},
	}

	for _, tt := range tests {
		if got := Classify(tt.message); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestMemorySinkKeepsTail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sink := NewMemorySink()
	for i := 0; i < MaxEntries+25; i++ {
		if err := sink.Append(ctx, Entry{Message: fmt.Sprintf("Info: %d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, _ := sink.Entries(ctx)
	if len(entries) != MaxEntries {
		t.Fatalf("len(Entries()) = %d, want %d", len(entries), MaxEntries)
	}
	if entries[0].Message != "Info: 25" {
		t.Errorf("oldest entry = %q, want Info: 25", entries[0].Message)
	}
	if last := entries[len(entries)-1].Message; last != fmt.Sprintf("Info: %d", MaxEntries+24) {
		t.Errorf("newest entry = %q", last)
	}

	if err := sink.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if entries, _ := sink.Entries(ctx); len(entries) != 0 {
		t.Errorf("len(Entries()) after Clear = %d, want 0", len(entries))
	}
}

func TestLoggerPrefixesAndOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewLogger(NewMemorySink(), nil)

	log.Infof(ctx, "Creating new contact %s", "a@example.com")
	log.Errorf(ctx, "Failed to sync customer %s to Systeme.io - %s", "a@example.com", "HTTP 500: boom")
	log.Successf(ctx, "Tag '%s' created with ID: %d", "VIP", 7)
	log.Warnf(ctx, "Could not find tag ID for '%s'", "VIP")

	recent, err := log.Recent(ctx)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}

	want := []struct {
		message string
		level   Level
	}{
		{"Warning: Could not find tag ID for 'VIP'", LevelWarning},
		{"Success: Tag 'VIP' created with ID: 7", LevelSuccess},
		{"Error: Failed to sync customer a@example.com to Systeme.io - HTTP 500: boom", LevelError},
		{"Info: Creating new contact a@example.com", LevelInfo},
	}
	if len(recent) != len(want) {
		t.Fatalf("len(Recent()) = %d, want %d", len(recent), len(want))
	}
	for i, w := range want {
		if recent[i].Message != w.message || recent[i].Level != w.level {
			t.Errorf("Recent()[%d] = {%q, %s}, want {%q, %s}", i, recent[i].Message, recent[i].Level, w.message, w.level)
		}
		if recent[i].Timestamp.IsZero() {
			t.Errorf("Recent()[%d] has zero timestamp", i)
		}
	}
}

func TestLoggerDebugGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var mu sync.Mutex
	debug := false
	log := NewLogger(NewMemorySink(), func() bool {
		mu.Lock()
		defer mu.Unlock()
		return debug
	})

	log.Debugf(ctx, "Raw customer data from %s: %s", "cf7", "{}")
	if entries, _ := log.Recent(ctx); len(entries) != 0 {
		t.Fatalf("debug entry recorded while debug mode is off: %v", entries)
	}

	mu.Lock()
	debug = true
	mu.Unlock()

	log.Debugf(ctx, "Raw customer data from %s: %s", "cf7", "{}")
	entries, _ := log.Recent(ctx)
	if len(entries) != 1 || entries[0].Message != "Debug: Raw customer data from cf7: {}" {
		t.Errorf("entries = %v, want one debug entry", entries)
	}
}

func TestLoggerListeners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewLogger(NewMemorySink(), nil)

	var got []Entry
	log.OnEntry(func(e Entry) { got = append(got, e) })

	log.Successf(ctx, "Customer synced")
	log.Log(ctx, "no prefix")

	if len(got) != 2 {
		t.Fatalf("listener saw %d entries, want 2", len(got))
	}
	if got[0].Level != LevelSuccess || got[1].Level != LevelInfo {
		t.Errorf("levels = %s, %s", got[0].Level, got[1].Level)
	}
}

func TestBadgerSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "badger")

	db, err := wal.OpenDB(config.StorageConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}

	sink, err := NewBadgerSink(db)
	if err != nil {
		t.Fatalf("NewBadgerSink() error = %v", err)
	}
	sink.maxLen = 5

	for i := 0; i < 8; i++ {
		if err := sink.Append(ctx, Entry{Message: fmt.Sprintf("Info: %d", i), Level: LevelInfo}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := sink.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(Entries()) = %d, want 5", len(entries))
	}
	if entries[0].Message != "Info: 3" || entries[4].Message != "Info: 7" {
		t.Errorf("entries = %q .. %q, want Info: 3 .. Info: 7", entries[0].Message, entries[4].Message)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen: entries survive and the sequence continues after the newest key.
	db, err = wal.OpenDB(config.StorageConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sink, err = NewBadgerSink(db)
	if err != nil {
		t.Fatalf("NewBadgerSink() after reopen error = %v", err)
	}
	if sink.seq != 8 {
		t.Errorf("seq after reopen = %d, want 8", sink.seq)
	}
	sink.maxLen = 5

	if err := sink.Append(ctx, Entry{Message: "Info: 8"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	entries, _ = sink.Entries(ctx)
	if len(entries) != 5 || entries[4].Message != "Info: 8" || entries[0].Message != "Info: 4" {
		t.Errorf("entries after reopen = %v", entries)
	}

	if err := sink.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if entries, _ := sink.Entries(ctx); len(entries) != 0 {
		t.Errorf("len(Entries()) after Clear = %d, want 0", len(entries))
	}
}
