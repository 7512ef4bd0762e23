// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package wal provides the durable job journal of the background queue,
// backed by BadgerDB.
//
// Every queued sync job is written to the journal before it is published
// and confirmed only after a worker has processed it:
//
//	Enqueue → Journal Write (ACID) → Publish → Worker → Journal Confirm
//	                                              ↓ (crash, restart)
//	                                        entry still pending
//
// # Usage
//
//	db, err := wal.OpenDB(cfg.Storage)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	journal := wal.NewJournal(db, wal.DefaultOptions())
//	entryID, err := journal.Write(ctx, job)
//	// ... publish, process ...
//	err = journal.Confirm(ctx, entryID)
//
// # Recovery
//
// On startup, entries left pending by a previous run are republished:
//
//	result, err := journal.RecoverPending(ctx, wal.PublisherFunc(republish))
//
// Delivery is at-least-once: a job that was processed but not yet confirmed
// when the process died is processed again.
//
// # Storage
//
// The Badger database is shared with the activity log; the journal owns the
// "journal:" key space only. Confirmed entries are kept for ConfirmedTTL and
// then expire through Badger's native TTL.
package wal
