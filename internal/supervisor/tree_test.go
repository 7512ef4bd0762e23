// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTree_Defaults(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger(), TreeConfig{FailureBackoff: time.Second})
	got := tree.Config()
	want := DefaultTreeConfig()
	want.FailureBackoff = time.Second
	if got != want {
		t.Errorf("Config() = %+v, want %+v", got, want)
	}
}

func TestTree_StartsEveryLayer(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})
	data := newFakeService("journal-gc", 0)
	messaging := newFakeService("sync-workers", 0)
	api := newFakeService("http-server", 0)
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for data.starts.Load() == 0 || messaging.starts.Load() == 0 || api.starts.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("services were not started")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}

	for _, svc := range []*fakeService{data, messaging, api} {
		if svc.stops.Load() != svc.starts.Load() {
			t.Errorf("%s: starts = %d stops = %d", svc, svc.starts.Load(), svc.stops.Load())
		}
	}
	report, err := tree.UnstoppedServiceReport()
	if err != nil || len(report) != 0 {
		t.Errorf("UnstoppedServiceReport() = %v, %v", report, err)
	}
}

func TestTree_RestartsFailingService(t *testing.T) {
	t.Parallel()

	tree := NewTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	failing := newFakeService("sync-workers", 2)
	stable := newFakeService("http-server", 0)
	tree.AddMessagingService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	for failing.starts.Load() < 3 {
		if ctx.Err() != nil {
			t.Fatalf("failing service started %d times, want 3", failing.starts.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := stable.starts.Load(); n > 1 {
		t.Errorf("stable service restarted, starts = %d", n)
	}

	cancel()
	<-errCh
}
