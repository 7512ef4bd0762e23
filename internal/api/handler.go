// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/auth"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/integrations"
	"github.com/tomtom215/contactsync/internal/websocket"
)

// Dispatcher runs or schedules one contact sync.
type Dispatcher interface {
	Dispatch(ctx context.Context, record contact.Record, source string, tags []string) bool
}

// IntegrationHandler turns a webhook body into syncs.
type IntegrationHandler interface {
	Handle(ctx context.Context, name string, body []byte) (integrations.Outcome, error)
}

// ActivityLog is the operator log.
type ActivityLog interface {
	Log(ctx context.Context, message string)
	Recent(ctx context.Context) ([]activitylog.Entry, error)
	Clear(ctx context.Context) error
}

// Pinger probes the CRM.
type Pinger interface {
	Ping(ctx context.Context) crm.Result
}

// QueueStatus reports whether the background worker is up.
type QueueStatus interface {
	IsRunning() bool
}

// SettingsSource supplies the live configuration.
type SettingsSource interface {
	Current() *config.Config
	Settings() config.SyncSettings
	Integrations() config.IntegrationsConfig
	APIKey() string
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	dispatcher   Dispatcher
	integrations IntegrationHandler
	log          ActivityLog
	crm          Pinger
	queue        QueueStatus
	settings     SettingsSource
	auth         *auth.Middleware
	hub          *websocket.Hub
	startTime    time.Time
}

// Deps lists the handler dependencies. Queue and Hub may be nil.
type Deps struct {
	Dispatcher   Dispatcher
	Integrations IntegrationHandler
	Log          ActivityLog
	CRM          Pinger
	Queue        QueueStatus
	Settings     SettingsSource
	Auth         *auth.Middleware
	Hub          *websocket.Hub
}

// NewHandler creates the handlers over deps.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		dispatcher:   deps.Dispatcher,
		integrations: deps.Integrations,
		log:          deps.Log,
		crm:          deps.CRM,
		queue:        deps.Queue,
		settings:     deps.Settings,
		auth:         deps.Auth,
		hub:          deps.Hub,
		startTime:    time.Now(),
	}
}

// queueBacked reports whether syncs currently go through the queue.
func (h *Handler) queueBacked() bool {
	return h.queue != nil && h.settings.Settings().BackgroundProcessing
}
