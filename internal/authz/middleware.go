// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package authz

import (
	"net/http"

	"github.com/tomtom215/contactsync/internal/auth"
	"github.com/tomtom215/contactsync/internal/logging"
)

// Middleware enforces the role policy on authenticated requests.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a Middleware over enforcer.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// AuthorizeRequest checks the caller's role against the request path and
// the action implied by its method. It must run after an auth middleware.
func (m *Middleware) AuthorizeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "Forbidden: no authentication context", http.StatusForbidden)
			return
		}

		action := methodToAction(r.Method)
		allowed, err := m.enforcer.Enforce(claims.Role, r.URL.Path, action)
		if err != nil {
			logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			logging.Ctx(r.Context()).Warn().
				Str("user", claims.Username).
				Str("role", claims.Role).
				Str("action", action).
				Str("path", r.URL.Path).
				Msg("Request denied by policy")
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return ActionWrite
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}
