// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package activitylog

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const keyPrefix = "activity:"

// BadgerSink persists entries in Badger under "activity:<seq>" keys, where
// seq is a big-endian counter so key order is insertion order.
type BadgerSink struct {
	db     *badger.DB
	maxLen int

	mu  sync.Mutex
	seq uint64
}

// NewBadgerSink opens a sink over db and resumes the sequence after the
// newest stored entry.
func NewBadgerSink(db *badger.DB) (*BadgerSink, error) {
	s := &BadgerSink{db: db, maxLen: MaxEntries}

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past every sequence number.
		seek := append([]byte(keyPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seek)
		if it.ValidForPrefix([]byte(keyPrefix)) {
			s.seq = seqFromKey(it.Item().Key())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log sequence: %w", err)
	}
	return s, nil
}

func entryKey(seq uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], seq)
	return key
}

func seqFromKey(key []byte) uint64 {
	if len(key) != len(keyPrefix)+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(keyPrefix):])
}

// Append implements Sink. Writing the entry and evicting the overflow
// happen in one transaction.
func (s *BadgerSink) Append(_ context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal activity entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.seq + 1
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(next), data); err != nil {
			return err
		}
		return s.evict(txn)
	})
	if err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	s.seq = next
	return nil
}

// evict deletes the oldest keys beyond maxLen.
func (s *BadgerSink) evict(txn *badger.Txn) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	prefix := []byte(keyPrefix)
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for len(keys) > s.maxLen {
		if err := txn.Delete(keys[0]); err != nil {
			return err
		}
		keys = keys[1:]
	}
	return nil
}

// Entries implements Sink.
func (s *BadgerSink) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var entry Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}
	return entries, nil
}

// Clear implements Sink.
func (s *BadgerSink) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("failed to clear activity log: %w", err)
	}
	return nil
}
