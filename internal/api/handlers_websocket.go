// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/websocket"
)

// LogStream upgrades to a websocket that receives every new activity log
// entry and contact_synced event.
func (h *Handler) LogStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Live log stream is not available", nil)
		return
	}

	upgrader := gws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkWebSocketOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	websocket.NewClient(h.hub, conn).Start()
}

// checkWebSocketOrigin admits same-host origins and the configured CORS
// origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.settings.Current().Security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
