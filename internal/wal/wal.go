// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// Entry is one journaled job.
type Entry struct {
	ID            string          `json:"id"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	Confirmed     bool            `json:"confirmed"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
}

// UnmarshalPayload deserializes the payload into v.
func (e *Entry) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Stats are journal counters for monitoring.
type Stats struct {
	PendingCount   int64
	ConfirmedCount int64
	TotalWrites    int64
	TotalConfirms  int64
	TotalRetries   int64
}

// Options tune a Journal.
type Options struct {
	// EntryTTL bounds how long an unconfirmed entry is kept.
	EntryTTL time.Duration

	// ConfirmedTTL is how long confirmed entries stay readable.
	ConfirmedTTL time.Duration

	// MaxAttempts is the number of recoveries after which an entry is dropped.
	MaxAttempts int
}

// DefaultOptions returns the production defaults: 7 day entry TTL, 24 hour
// confirmed TTL and 5 recovery attempts.
func DefaultOptions() Options {
	return Options{
		EntryTTL:     7 * 24 * time.Hour,
		ConfirmedTTL: 24 * time.Hour,
		MaxAttempts:  5,
	}
}

// Key prefixes inside the shared database.
const (
	prefixPending   = "journal:pending:"
	prefixConfirmed = "journal:confirmed:"
)

// Errors
var (
	ErrJournalClosed = errors.New("journal is closed")
	ErrNilEvent      = errors.New("event cannot be nil")
	ErrEmptyEntryID  = errors.New("entry ID cannot be empty")
	ErrEntryNotFound = errors.New("entry not found")
)

// Journal is the durable record of queued jobs. It does not own the
// database; Close only stops further use.
type Journal struct {
	db   *badger.DB
	opts Options

	totalWrites   atomic.Int64
	totalConfirms atomic.Int64
	totalRetries  atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewJournal creates a Journal over db.
func NewJournal(db *badger.DB, opts Options) *Journal {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Journal{db: db, opts: opts}
}

func (j *Journal) isClosed() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.closed
}

// Write persists event and returns the new entry ID.
func (j *Journal) Write(ctx context.Context, event interface{}) (string, error) {
	if j.isClosed() {
		return "", ErrJournalClosed
	}
	if event == nil {
		return "", ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	entry := &Entry{
		ID:        uuid.New().String(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal entry: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(prefixPending+entry.ID), data)
		if j.opts.EntryTTL > 0 {
			e = e.WithTTL(j.opts.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return "", fmt.Errorf("write to BadgerDB: %w", err)
	}

	j.totalWrites.Add(1)
	metrics.JournalPending.Inc()
	return entry.ID, nil
}

// Confirm marks an entry as processed.
func (j *Journal) Confirm(ctx context.Context, entryID string) error {
	if j.isClosed() {
		return ErrJournalClosed
	}
	if entryID == "" {
		return ErrEmptyEntryID
	}

	pendingKey := []byte(prefixPending + entryID)
	confirmedKey := []byte(prefixConfirmed + entryID)

	err := j.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntry(txn, pendingKey)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entry.Confirmed = true
		entry.ConfirmedAt = &now

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal confirmed entry: %w", err)
		}

		e := badger.NewEntry(confirmedKey, data)
		if j.opts.ConfirmedTTL > 0 {
			e = e.WithTTL(j.opts.ConfirmedTTL)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set confirmed entry: %w", err)
		}
		if err := txn.Delete(pendingKey); err != nil {
			return fmt.Errorf("delete pending entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.totalConfirms.Add(1)
	metrics.JournalPending.Dec()
	return nil
}

// GetPending returns every unconfirmed entry from a consistent snapshot.
func (j *Journal) GetPending(ctx context.Context) ([]*Entry, error) {
	if j.isClosed() {
		return nil, ErrJournalClosed
	}

	var entries []*Entry

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Journal failed to unmarshal entry")
				continue
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate pending entries: %w", err)
	}

	return entries, nil
}

// UpdateAttempt increments an entry's attempt count and records lastError.
func (j *Journal) UpdateAttempt(ctx context.Context, entryID, lastError string) error {
	if j.isClosed() {
		return ErrJournalClosed
	}

	key := []byte(prefixPending + entryID)

	err := j.db.Update(func(txn *badger.Txn) error {
		entry, err := getEntry(txn, key)
		if err != nil {
			return err
		}

		entry.Attempts++
		entry.LastAttemptAt = time.Now().UTC()
		entry.LastError = lastError

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}

		e := badger.NewEntry(key, data)
		if j.opts.EntryTTL > 0 {
			e = e.WithTTL(j.opts.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return err
	}

	j.totalRetries.Add(1)
	return nil
}

// DeleteEntry permanently removes a pending or confirmed entry.
func (j *Journal) DeleteEntry(ctx context.Context, entryID string) error {
	if j.isClosed() {
		return ErrJournalClosed
	}

	pendingKey := []byte(prefixPending + entryID)
	confirmedKey := []byte(prefixConfirmed + entryID)

	return j.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(pendingKey); err == nil {
			metrics.JournalPending.Dec()
			return txn.Delete(pendingKey)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get pending entry: %w", err)
		}

		if _, err := txn.Get(confirmedKey); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		} else if err != nil {
			return fmt.Errorf("get confirmed entry: %w", err)
		}
		return txn.Delete(confirmedKey)
	})
}

// Stats returns current counters. Pending and confirmed counts are read
// from the database.
func (j *Journal) Stats() Stats {
	if j.isClosed() {
		return Stats{}
	}

	var pendingCount, confirmedCount int64

	if err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		pendingPrefix := []byte(prefixPending)
		for it.Seek(pendingPrefix); it.ValidForPrefix(pendingPrefix); it.Next() {
			pendingCount++
		}

		confirmedPrefix := []byte(prefixConfirmed)
		for it.Seek(confirmedPrefix); it.ValidForPrefix(confirmedPrefix); it.Next() {
			confirmedCount++
		}
		return nil
	}); err != nil {
		logging.Warn().Err(err).Msg("Journal Stats failed to count entries")
	}

	metrics.JournalPending.Set(float64(pendingCount))

	return Stats{
		PendingCount:   pendingCount,
		ConfirmedCount: confirmedCount,
		TotalWrites:    j.totalWrites.Load(),
		TotalConfirms:  j.totalConfirms.Load(),
		TotalRetries:   j.totalRetries.Load(),
	}
}

// Close stops further use of the journal. The database stays open.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed = true
	return nil
}

func getEntry(txn *badger.Txn, key []byte) (*Entry, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}

	var entry Entry
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &entry, nil
}
