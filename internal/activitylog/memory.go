// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package activitylog

import (
	"context"
	"sync"
)

// MemorySink keeps entries in memory. Data is lost on restart.
type MemorySink struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
}

// NewMemorySink creates a sink capped at MaxEntries.
func NewMemorySink() *MemorySink {
	return &MemorySink{maxLen: MaxEntries}
}

// Append implements Sink.
func (s *MemorySink) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = keepTail(append(s.entries, entry), s.maxLen)
	return nil
}

// Entries implements Sink.
func (s *MemorySink) Entries(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...), nil
}

// Clear implements Sink.
func (s *MemorySink) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}
