// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Command server runs the contactsync engine.

It loads configuration (defaults, then config.yaml, then environment), opens
the Badger store shared by the job journal and the activity log, and starts
the supervisor tree:

	contactsync
	├── data-layer       journal-gc
	├── messaging-layer  websocket-hub, sync-workers
	└── api-layer        http-server

Sync settings (API key, tag and field modes, integrations) are reloaded when
the config file changes. Everything else needs a restart.

Build with -tags nats to enable the NATS JetStream queue backend:

	go build -tags nats ./cmd/server

SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server drains, the
workers finish their current job and the store is closed.
*/
package main
