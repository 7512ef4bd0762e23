// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package upsert

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/crm"
)

// CompletionEvent describes a successful upsert.
type CompletionEvent struct {
	Email     string             `json:"email"`
	Payload   crm.ContactPayload `json:"payload"`
	Source    string             `json:"source"`
	Response  json.RawMessage    `json:"response,omitempty"`
	ContactID crm.ID             `json:"contact_id,omitempty"`
	Created   bool               `json:"created"`
	SyncedAt  time.Time          `json:"synced_at"`
}

// CompletionHook is notified after every successful upsert. Hooks run
// synchronously on the sync goroutine.
type CompletionHook func(ctx context.Context, event CompletionEvent)

// APICallTracer returns a request hook that writes a Debug entry for every
// CRM call while debug mode is on.
func APICallTracer(log *activitylog.Logger) crm.RequestHook {
	return func(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
		log.Debugf(ctx, "API Call - Method: %s, Endpoint: %s, Status: %d, Duration: %s",
			method, path, statusCode, duration.Round(time.Millisecond))
	}
}
