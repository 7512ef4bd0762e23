// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/testinfra"
)

func newTestClient(t *testing.T) (*Client, *testinfra.MockCRMServer) {
	t.Helper()
	srv := testinfra.NewMockCRMServer(t)
	return NewFromConfig(srv.Config()), srv
}

func TestHTTPClient_Headers(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t)
	ctx := context.Background()

	client.Ping(ctx)
	client.CreateContact(ctx, ContactPayload{Email: "a@b.com", Fields: []FieldValue{}})
	srv.SeedContact("c@d.com", nil)
	lookup := client.FindContactByEmail(ctx, "c@d.com")
	client.UpdateContact(ctx, lookup.ID, ContactPayload{Email: "c@d.com"})

	captures := srv.Captures()
	if len(captures) != 4 {
		t.Fatalf("captured %d requests, want 4", len(captures))
	}

	for _, c := range captures {
		if got := c.Headers.Get("X-API-Key"); got != testinfra.TestAPIKey {
			t.Errorf("%s %s: X-API-Key = %q", c.Method, c.Path, got)
		}
		if got := c.Headers.Get("Accept"); got != "application/json" {
			t.Errorf("%s %s: Accept = %q", c.Method, c.Path, got)
		}
	}

	if got := captures[0].Headers.Get("Content-Type"); got != "" {
		t.Errorf("GET Content-Type = %q, want none", got)
	}
	if len(captures[0].Body) != 0 {
		t.Errorf("GET carried a body: %q", captures[0].Body)
	}
	if got := captures[1].Headers.Get("Content-Type"); got != "application/json" {
		t.Errorf("POST Content-Type = %q, want application/json", got)
	}
	if got := captures[3].Headers.Get("Content-Type"); got != "application/merge-patch+json" {
		t.Errorf("PATCH Content-Type = %q, want application/merge-patch+json", got)
	}
	if captures[3].Method != http.MethodPatch || !strings.HasPrefix(captures[3].Path, "/contacts/") {
		t.Errorf("update = %s %s", captures[3].Method, captures[3].Path)
	}
}

func TestHTTPClient_MissingAPIKey(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := New(NewHTTPClient(&config.CRMConfig{BaseURL: server.URL}))
	res := client.Ping(context.Background())

	if res.Success {
		t.Fatal("Ping() succeeded without an API key")
	}
	if res.Message != "API key not found" {
		t.Errorf("Message = %q, want %q", res.Message, "API key not found")
	}
	if !errors.Is(res.Err, ErrAPIKeyMissing) {
		t.Errorf("Err = %v, want ErrAPIKeyMissing", res.Err)
	}
	if hits.Load() != 0 {
		t.Errorf("server received %d requests, want 0", hits.Load())
	}
}

func TestHTTPClient_APIKeyProvider(t *testing.T) {
	t.Parallel()

	srv := testinfra.NewMockCRMServer(t)
	cfg := srv.Config()
	cfg.APIKey = ""

	var key atomic.Value
	key.Store("")
	client := New(NewHTTPClient(cfg, WithAPIKeyProvider(func() string { return key.Load().(string) })))

	if res := client.Ping(context.Background()); res.Success {
		t.Fatal("Ping() succeeded before a key was provided")
	}

	key.Store(testinfra.TestAPIKey)
	if res := client.Ping(context.Background()); !res.Success {
		t.Fatalf("Ping() after key rotation = %+v", res)
	}
}

func TestHTTPClient_RemoteRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"email: This value is not valid."}`))
	}))
	defer server.Close()

	client := NewHTTPClient(&config.CRMConfig{BaseURL: server.URL, APIKey: "k"})
	res := client.Do(context.Background(), http.MethodPost, "contacts", ContactPayload{Email: "x"})

	if res.Success {
		t.Fatal("Do() succeeded on 422")
	}
	want := `HTTP 422: {"message":"email: This value is not valid."}`
	if res.Message != want {
		t.Errorf("Message = %q, want %q", res.Message, want)
	}
	var rej *RemoteRejection
	if !errors.As(res.Err, &rej) || rej.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Err = %#v, want *RemoteRejection with 422", res.Err)
	}
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", res.StatusCode)
	}
}

func TestHTTPClient_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewHTTPClient(&config.CRMConfig{BaseURL: url, APIKey: "k", Timeout: time.Second})
	res := client.Do(context.Background(), http.MethodGet, "tags", nil)

	if res.Success {
		t.Fatal("Do() succeeded against a closed server")
	}
	var te *TransportError
	if !errors.As(res.Err, &te) {
		t.Fatalf("Err = %#v, want *TransportError", res.Err)
	}
	if res.Message == "" || res.StatusCode != 0 {
		t.Errorf("Result = %+v, want message and no status", res)
	}
}

func TestHTTPClient_RateLimitBackoff(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(&config.CRMConfig{
		BaseURL:        server.URL,
		APIKey:         "k",
		MaxRetries:     5,
		RetryBaseDelay: 10 * time.Millisecond,
	})

	start := time.Now()
	res := client.Do(context.Background(), http.MethodGet, "tags", nil)
	elapsed := time.Since(start)

	if !res.Success {
		t.Fatalf("Do() = %+v, want success after retries", res)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	// 10ms + 20ms
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 30ms of backoff", elapsed)
	}
}

func TestHTTPClient_RateLimitExhausted(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer server.Close()

	client := NewHTTPClient(&config.CRMConfig{BaseURL: server.URL, APIKey: "k", MaxRetries: 2, RetryBaseDelay: time.Hour})
	res := client.Do(context.Background(), http.MethodGet, "tags", nil)

	if res.Success {
		t.Fatal("Do() succeeded on persistent 429")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3 (1 + 2 retries)", got)
	}
	if res.Message != "HTTP 429: slow down" {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestHTTPClient_BackoffHonorsContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(&config.CRMConfig{BaseURL: server.URL, APIKey: "k", MaxRetries: 5, RetryBaseDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := client.Do(ctx, http.MethodGet, "tags", nil)
	if res.Success {
		t.Fatal("Do() succeeded")
	}
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Errorf("Err = %v, want context.DeadlineExceeded", res.Err)
	}
}

func TestHTTPClient_RequestHook(t *testing.T) {
	t.Parallel()

	srv := testinfra.NewMockCRMServer(t)

	var seen []string
	client := New(NewHTTPClient(srv.Config(), WithRequestHook(func(_ context.Context, method, path string, status int, _ time.Duration) {
		seen = append(seen, method+" "+path)
	})))
	client.ListTags(context.Background())

	if len(seen) != 1 || seen[0] != "GET tags" {
		t.Errorf("hook saw %v, want [GET tags]", seen)
	}
}

func TestReadBodyForError(t *testing.T) {
	t.Parallel()

	small := readBodyForError(strings.NewReader("oops"))
	if string(small) != "oops" {
		t.Errorf("readBodyForError(small) = %q", small)
	}

	large := readBodyForError(strings.NewReader(strings.Repeat("x", maxErrorBodySize+10)))
	if !strings.HasSuffix(string(large), "\n... (truncated)") {
		t.Error("large body not marked as truncated")
	}
	if len(large) != maxErrorBodySize+len("\n... (truncated)") {
		t.Errorf("len = %d", len(large))
	}
}
