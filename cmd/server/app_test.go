// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/queue"
	"github.com/tomtom215/contactsync/internal/supervisor"
	"github.com/tomtom215/contactsync/internal/testinfra"
	"github.com/tomtom215/contactsync/internal/wal"
)

func testAppConfig(crmCfg *config.CRMConfig) *config.Config {
	return &config.Config{
		CRM: *crmCfg,
		Sync: config.SyncSettings{
			Enabled:              true,
			BackgroundProcessing: true,
			DefaultTags:          "Website",
		},
		Queue: config.QueueConfig{
			Backend:              queue.BackendMemory,
			Topic:                "contactsync.sync",
			PoisonTopic:          "contactsync.sync.poison",
			CompletionTopic:      "contactsync.contact.synced",
			RetryCount:           1,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     10 * time.Millisecond,
			DeduplicationEnabled: true,
			DeduplicationTTL:     time.Minute,
			CloseTimeout:         time.Second,
			JournalEnabled:       true,
		},
		Storage:  config.StorageConfig{InMemory: true, GCInterval: time.Hour},
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0, Timeout: 5 * time.Second},
		Security: config.SecurityConfig{AuthMode: "none", RateLimitDisabled: true},
	}
}

func TestApp_BackgroundSync(t *testing.T) {
	mock := testinfra.NewMockCRMServer(t)

	a, err := newApp(testAppConfig(mock.Config()), "")
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{ShutdownTimeout: time.Second})
	a.register(tree)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	defer func() {
		cancel()
		<-errCh
	}()

	select {
	case <-a.queue.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("sync workers did not start")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync",
		strings.NewReader(`{"customer":{"email":"queued@example.com","first_name":"Ada"},"source":"api"}`))
	req.Header.Set("Content-Type", "application/json")
	a.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /sync status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(5 * time.Second)
	for mock.Contact("queued@example.com") == nil {
		if time.Now().After(deadline) {
			t.Fatalf("contact never reached the CRM; calls = %v", mock.Calls())
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := mock.Contact("queued@example.com").FieldValue("first_name"); got != "Ada" {
		t.Errorf("first_name = %q, want Ada", got)
	}
	if !mock.HasTag("Website") {
		t.Error("default tag was not created")
	}

	entries, err := a.log.Recent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 {
		t.Error("activity log is empty after a sync")
	}
}

func TestNewApp_ErrorsReleaseStorage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"jwt without secret", func(cfg *config.Config) { cfg.Security.AuthMode = "jwt" }},
		{"unknown queue backend", func(cfg *config.Config) { cfg.Queue.Backend = "bogus" }},
		{"missing policy file", func(cfg *config.Config) {
			cfg.Security.AuthzPolicyPath = filepath.Join(t.TempDir(), "absent.csv")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := testinfra.NewMockCRMServer(t)
			cfg := testAppConfig(mock.Config())
			cfg.Storage = config.StorageConfig{Path: t.TempDir(), GCInterval: time.Hour}
			tt.mutate(cfg)

			a, err := newApp(cfg, "")
			if err == nil {
				a.close()
				t.Fatal("newApp() error = nil, want error")
			}
			if a != nil {
				t.Errorf("newApp() = %v, want nil app on error", a)
			}

			// Badger locks its directory; reopening only works if newApp closed it.
			db, err := wal.OpenDB(cfg.Storage)
			if err != nil {
				t.Fatalf("storage still held after failed newApp: %v", err)
			}
			_ = db.Close()
		})
	}
}
