// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"net/http"

	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/integrations"
)

// SyncRequest is the body of POST /sync.
type SyncRequest struct {
	Customer map[string]integrations.Text `json:"customer" validate:"required,min=1"`
	Source   string                       `json:"source" validate:"omitempty,max=64,source_key"`
	Tags     []string                     `json:"tags" validate:"max=50,dive,required,max=255"`
}

func (req *SyncRequest) record() contact.Record {
	record := make(contact.Record, len(req.Customer))
	for k, v := range req.Customer {
		if s := v.String(); s != "" {
			record[k] = s
		}
	}
	return record
}

// Sync syncs one contact. It answers 202 when the sync was queued.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.runSync(w, r, req.record(), req.Source, req.Tags, "Contact synced")
}

// runSync dispatches record and writes the outcome.
func (h *Handler) runSync(w http.ResponseWriter, r *http.Request, record contact.Record, source string, tags []string, okMessage string) {
	if !h.settings.Settings().Enabled {
		respondError(w, r, http.StatusServiceUnavailable, CodeDisabled,
			"Synchronization is not enabled. Please enable it in settings first.", nil)
		return
	}
	if h.settings.APIKey() == "" {
		respondError(w, r, http.StatusServiceUnavailable, CodeDisabled, "API key is not set", nil)
		return
	}

	queued := h.queueBacked()
	if !h.dispatcher.Dispatch(r.Context(), record, source, tags) {
		respondJSON(w, r, http.StatusUnprocessableEntity, &APIResponse{
			Status: "error",
			Data:   SyncOutcome{Success: false, Message: "Sync failed. Check logs for error details."},
			Error:  &APIError{Code: CodeSyncFailed, Message: "Sync failed"},
		})
		return
	}

	if queued {
		respondSuccess(w, r, http.StatusAccepted, SyncOutcome{Success: true, Queued: true, Message: "Sync scheduled"})
		return
	}
	respondSuccess(w, r, http.StatusOK, SyncOutcome{Success: true, Message: okMessage})
}
