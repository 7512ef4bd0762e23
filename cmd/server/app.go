// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/api"
	"github.com/tomtom215/contactsync/internal/auth"
	"github.com/tomtom215/contactsync/internal/authz"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/dispatch"
	"github.com/tomtom215/contactsync/internal/integrations"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/queue"
	"github.com/tomtom215/contactsync/internal/supervisor"
	"github.com/tomtom215/contactsync/internal/supervisor/services"
	"github.com/tomtom215/contactsync/internal/upsert"
	"github.com/tomtom215/contactsync/internal/wal"
	"github.com/tomtom215/contactsync/internal/websocket"
)

// app holds the wired components of a running server.
type app struct {
	cfg        *config.Config
	store      *config.Store
	db         *badger.DB
	journal    *wal.Journal
	log        *activitylog.Logger
	hub        *websocket.Hub
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	server     *http.Server
}

// newApp opens storage and builds every component. On error, whatever was
// opened is closed again.
func newApp(cfg *config.Config, configPath string) (_ *app, err error) {
	a := &app{cfg: cfg, store: config.NewStore(cfg, configPath)}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.db, err = wal.OpenDB(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.journal = wal.NewJournal(a.db, wal.DefaultOptions())

	sink, err := activitylog.NewBadgerSink(a.db)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	a.log = activitylog.NewLogger(sink, func() bool { return a.store.Settings().Debug })

	a.hub = websocket.NewHub()
	a.log.OnEntry(a.hub.BroadcastEntry)

	a.queue, err = queue.New(cfg, a.journal)
	if err != nil {
		return nil, fmt.Errorf("create queue: %w", err)
	}

	client := crm.NewFromConfig(&cfg.CRM,
		crm.WithAPIKeyProvider(a.store.APIKey),
		crm.WithRequestHook(upsert.APICallTracer(a.log)),
	)

	engine := upsert.NewEngine(client, a.log, a.store,
		upsert.WithCompletionHook(a.queue.CompletionHook()),
		upsert.WithCompletionHook(broadcastCompletion(a.hub)),
	)

	a.dispatcher = dispatch.New(engine, a.store, a.log,
		dispatch.WithEnqueuer(a.queue),
		dispatch.WithJobName(cfg.Queue.Topic),
	)
	a.queue.RegisterWorker(a.dispatcher)

	registry := integrations.NewRegistry(a.dispatcher, a.store, a.log)

	authMiddleware, err := auth.NewMiddleware(cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Dispatcher:   a.dispatcher,
		Integrations: registry,
		Log:          a.log,
		CRM:          client,
		Queue:        a.queue,
		Settings:     a.store,
		Auth:         authMiddleware,
		Hub:          a.hub,
	})
	enforcer, err := authz.NewEnforcer(cfg.Security.AuthzPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load authorization policy: %w", err)
	}

	router := api.NewRouter(handler, authMiddleware, authz.NewMiddleware(enforcer),
		api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg.Security)))

	a.server = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	return a, nil
}

func broadcastCompletion(hub *websocket.Hub) upsert.CompletionHook {
	return func(_ context.Context, event upsert.CompletionEvent) {
		hub.BroadcastContactSynced(websocket.ContactSyncedData{
			Email:     event.Email,
			Source:    event.Source,
			ContactID: event.ContactID.String(),
			Created:   event.Created,
		})
	}
}

// register adds the long-running services to tree.
func (a *app) register(tree *supervisor.Tree) {
	db := a.db
	tree.AddDataService(services.NewGCService(func() error { return wal.RunGC(db) }, a.cfg.Storage.GCInterval))
	tree.AddMessagingService(services.NewHubService(a.hub))
	tree.AddMessagingService(services.NewWorkerService(a.queue))
	tree.AddAPIService(services.NewHTTPServerService(a.server, 10*time.Second))

	logging.Info().Str("addr", a.server.Addr).Msg("HTTP server configured")
}

// close releases the queue and storage. It is safe on a partially built app.
func (a *app) close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing queue")
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing journal")
		}
	}
	if a.db != nil {
		if err := wal.CloseDB(a.db, 10*time.Second); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}
}
