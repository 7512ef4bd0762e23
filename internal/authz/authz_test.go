// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package authz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/contactsync/internal/auth"
)

func TestEnforcer_BuiltInPolicy(t *testing.T) {
	t.Parallel()

	e, err := NewEnforcer("")
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}

	tests := []struct {
		role, path, action string
		want               bool
	}{
		{auth.RoleAdmin, "/api/v1/sync", ActionWrite, true},
		{auth.RoleAdmin, "/api/v1/admin/logs", ActionDelete, true},
		{auth.RoleAdmin, "/api/v1/admin/logs/stream", ActionRead, true},
		{auth.RoleAPI, "/api/v1/sync", ActionWrite, true},
		{auth.RoleAPI, "/api/v1/sync", ActionRead, false},
		{auth.RoleAPI, "/api/v1/integrations/bookly", ActionWrite, true},
		{auth.RoleAPI, "/api/v1/admin/logs", ActionRead, false},
		{"guest", "/api/v1/sync", ActionWrite, false},
	}
	for _, tt := range tests {
		got, err := e.Enforce(tt.role, tt.path, tt.action)
		if err != nil {
			t.Fatalf("Enforce(%s, %s, %s) error = %v", tt.role, tt.path, tt.action, err)
		}
		if got != tt.want {
			t.Errorf("Enforce(%s, %s, %s) = %v, want %v", tt.role, tt.path, tt.action, got, tt.want)
		}
	}
}

func TestEnforcer_PolicyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "policy.csv")
	policy := "p, auditor, /api/v1/admin/logs, read\ng, api, auditor\n"
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}

	e, err := NewEnforcer(path)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}

	if ok, _ := e.Enforce(auth.RoleAPI, "/api/v1/admin/logs", ActionRead); !ok {
		t.Error("inherited auditor permission not granted")
	}
	if ok, _ := e.Enforce(auth.RoleAPI, "/api/v1/sync", ActionWrite); ok {
		t.Error("custom policy should replace the built-in one")
	}
}

func TestEnforcer_MissingPolicyFile(t *testing.T) {
	t.Parallel()

	if _, err := NewEnforcer(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("NewEnforcer() accepted a missing policy file")
	}
}

func TestMiddleware_AuthorizeRequest(t *testing.T) {
	t.Parallel()

	e, err := NewEnforcer("")
	if err != nil {
		t.Fatal(err)
	}
	h := NewMiddleware(e).AuthorizeRequest(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		method string
		path   string
		claims *auth.Claims
		want   int
	}{
		{"api token sync", http.MethodPost, "/api/v1/sync", &auth.Claims{Role: auth.RoleAPI}, http.StatusNoContent},
		{"api token admin", http.MethodGet, "/api/v1/admin/settings", &auth.Claims{Role: auth.RoleAPI}, http.StatusForbidden},
		{"admin clear logs", http.MethodDelete, "/api/v1/admin/logs", &auth.Claims{Role: auth.RoleAdmin}, http.StatusNoContent},
		{"no claims", http.MethodPost, "/api/v1/sync", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, tt.claims))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
