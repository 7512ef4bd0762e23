// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"net/http"
	"time"
)

// HealthLive reports that the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 200 when the service can accept syncs: an API key is
// configured and, with background processing on, the queue worker runs.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	apiKeySet := h.settings.APIKey() != ""
	queueRunning := h.queue != nil && h.queue.IsRunning()
	ready := apiKeySet && (!h.queueBacked() || queueRunning)

	status := http.StatusOK
	label := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		label = "not_ready"
	}

	respondJSON(w, r, status, &APIResponse{
		Status: label,
		Data: map[string]interface{}{
			"api_key_configured":    apiKeySet,
			"background_processing": h.settings.Settings().BackgroundProcessing,
			"queue_running":         queueRunning,
			"sync_enabled":          h.settings.Settings().Enabled,
			"ready_to_serve":        ready,
			"uptime":                time.Since(h.startTime).Seconds(),
		},
	})
}
