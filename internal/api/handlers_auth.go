// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/contactsync/internal/auth"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,max=256"`
}

// LoginResponse carries the issued token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login exchanges admin credentials for a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, expires, err := h.auth.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrLoginUnavailable):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Token login is not enabled", nil)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid username or password", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, "Login failed", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	respondSuccess(w, r, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expires.UTC()})
}
