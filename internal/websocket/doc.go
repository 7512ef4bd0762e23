// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package websocket streams activity log entries to admin clients.

A Hub fans out messages to every connected Client; each Client owns a read
goroutine (answers application-level pings, detects disconnects) and a write
goroutine (drains the send buffer, sends protocol pings). Clients that cannot
keep up are dropped instead of blocking the broadcaster.

Message types:

  - activity: one activitylog.Entry
  - contact_synced: a completed upsert (email, source, contact id, created)
  - ping / pong: application keepalive

Usage:

	hub := websocket.NewHub()
	go hub.RunWithContext(ctx)
	activityLog.OnEntry(hub.BroadcastEntry)

	http.HandleFunc("/logs/stream", func(w http.ResponseWriter, r *http.Request) {
	    conn, err := upgrader.Upgrade(w, r, nil)
	    ...
	    websocket.NewClient(hub, conn).Start()
	})
*/
package websocket
