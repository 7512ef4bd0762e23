// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"fmt"
	"net/http"

	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/logging"
)

// TestSource and TestTag label the sample contact of test-sync.
const (
	TestSource = "manual_test"
	TestTag    = "Test Tag"
)

// sampleContact is synced by test-sync.
func sampleContact() contact.Record {
	return contact.Record{
		"email":     "test@example.com",
		"firstName": "Test",
		"lastName":  "Customer",
		"phone":     "+1234567890",
		"country":   "US",
	}
}

// LogsResponse is the data of GET /admin/logs.
type LogsResponse struct {
	Entries []activitylog.Entry `json:"entries"`
	Count   int                 `json:"count"`
}

// Logs lists the activity log, newest first.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.log.Recent(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to read logs", err)
		return
	}
	if entries == nil {
		entries = []activitylog.Entry{}
	}
	respondSuccess(w, r, http.StatusOK, LogsResponse{Entries: entries, Count: len(entries)})
}

// ClearLogs empties the activity log.
func (h *Handler) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.log.Clear(r.Context()); err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to clear logs", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, SyncOutcome{Success: true, Message: "Logs cleared successfully"})
}

// TestConnection lists one contact with the configured API key.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if h.settings.APIKey() == "" {
		respondError(w, r, http.StatusServiceUnavailable, CodeDisabled, "API key is not set", nil)
		return
	}

	result := h.crm.Ping(r.Context())
	if !result.Success {
		respondJSON(w, r, http.StatusBadGateway, &APIResponse{
			Status: "error",
			Data:   SyncOutcome{Success: false, Message: "Connection failed: " + result.Message},
			Error:  &APIError{Code: CodeUpstream, Message: "Connection failed: " + result.Message},
		})
		return
	}
	respondSuccess(w, r, http.StatusOK, SyncOutcome{Success: true, Message: "Connection successful! API key is valid."})
}

// TestSync syncs a sample contact tagged TestTag.
func (h *Handler) TestSync(w http.ResponseWriter, r *http.Request) {
	if h.settings.Settings().Enabled && h.settings.APIKey() != "" {
		h.log.Log(r.Context(), "Manual Test: Starting manual sync test with sample data")
	}
	h.runSync(w, r, sampleContact(), TestSource, []string{TestTag},
		"Manual sync test completed successfully! Check logs for details.")
}

const redacted = "[REDACTED]"

// Settings returns the effective configuration with secrets masked.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	view, err := redactedSettings(h.settings.Current())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Failed to render settings", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, view)
}

// redactedSettings flattens cfg into its koanf key layout, masking secrets.
func redactedSettings(cfg *config.Config) (map[string]interface{}, error) {
	c := *cfg
	c.CRM.APIKey = logging.SanitizeToken(c.CRM.APIKey)
	c.Integrations.WebhookSecret = mask(c.Integrations.WebhookSecret)
	c.Security.JWTSecret = mask(c.Security.JWTSecret)
	c.Security.AdminPassword = mask(c.Security.AdminPassword)
	c.Security.APITokens = make([]string, len(cfg.Security.APITokens))
	for i := range c.Security.APITokens {
		c.Security.APITokens[i] = redacted
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(c, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load settings view: %w", err)
	}
	return k.Raw(), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
