// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/contactsync/internal/integrations"
	"github.com/tomtom215/contactsync/internal/logging"
)

// HeaderSignature carries the hex HMAC-SHA256 of the webhook body, keyed
// with integrations.webhook_secret. A "sha256=" prefix is accepted.
const HeaderSignature = "X-Contactsync-Signature"

// Integration handles POST /integrations/{name}.
func (h *Handler) Integration(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := readBody(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large", nil)
			return
		}
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Could not read request body", err)
		return
	}

	if secret := h.settings.Integrations().WebhookSecret; secret != "" {
		if !validSignature(secret, body, r.Header.Get(HeaderSignature)) {
			logging.Ctx(r.Context()).Warn().Str("integration", logging.SanitizeLogValue(name)).
				Msg("rejected webhook with invalid signature")
			respondError(w, r, http.StatusUnauthorized, CodeBadSignature, "Invalid webhook signature", nil)
			return
		}
	}

	outcome, err := h.integrations.Handle(r.Context(), name, body)
	switch {
	case errors.Is(err, integrations.ErrUnknownIntegration):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Unknown integration", nil)
	case errors.Is(err, integrations.ErrIntegrationDisabled):
		respondError(w, r, http.StatusServiceUnavailable, CodeDisabled, "Integration is disabled", nil)
	case errors.Is(err, integrations.ErrMalformedPayload):
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Malformed integration payload", err)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Integration failed", err)
	default:
		respondSuccess(w, r, http.StatusOK, outcome)
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, header string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
