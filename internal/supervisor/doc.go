// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package supervisor runs the long-lived parts of contactsync under a suture v4
supervisor tree.

The tree has three layers so a crash in one does not take down the others:

	contactsync
	├── data-layer
	│   └── journal-gc          (badger value log GC)
	├── messaging-layer
	│   ├── websocket-hub       (activity log live tail)
	│   └── sync-workers        (watermill router consuming sync jobs)
	└── api-layer
	    └── http-server

Services return ctx.Err() on shutdown and a wrapped error on failure, which
suture answers with a restart subject to the TreeConfig backoff. Supervisor
events are logged through sutureslog into the zerolog-backed slog handler.
*/
package supervisor
