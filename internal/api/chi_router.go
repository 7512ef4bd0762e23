// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/contactsync/internal/auth"
	"github.com/tomtom215/contactsync/internal/authz"
	"github.com/tomtom215/contactsync/internal/middleware"
)

// Router wires the handlers to routes.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil authzMiddleware skips the role policy
// and relies on authentication alone.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, authzMiddleware *authz.Middleware, chiMiddleware *ChiMiddleware) *Router {
	return &Router{handler: handler, auth: authMiddleware, authz: authzMiddleware, chiMiddleware: chiMiddleware}
}

func (router *Router) authorize(next http.Handler) http.Handler {
	if router.authz == nil {
		return next
	}
	return router.authz.AuthorizeRequest(next)
}

// webhookAuth admits signed webhooks to the handler, which verifies the
// signature. Without a webhook secret, callers must authenticate like /sync.
func (router *Router) webhookAuth(next http.Handler) http.Handler {
	authenticated := router.auth.RequireSyncCaller(router.authorize(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if router.handler.settings.Integrations().WebhookSecret != "" {
			next.ServeHTTP(w, r)
			return
		}
		authenticated.ServeHTTP(w, r)
	})
}

// SetupChi builds the HTTP handler.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders)

		r.Get("/health/live", router.handler.HealthLive)
		r.Get("/health/ready", router.handler.HealthReady)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.With(router.chiMiddleware.RateLimitLogin()).Post("/auth/login", router.handler.Login)

			r.With(router.auth.RequireSyncCaller, router.authorize).Post("/sync", router.handler.Sync)
			r.With(router.webhookAuth).Post("/integrations/{name}", router.handler.Integration)

			r.Route("/admin", func(r chi.Router) {
				r.Use(router.auth.RequireAdmin, router.authorize)

				r.Get("/logs", router.handler.Logs)
				r.Delete("/logs", router.handler.ClearLogs)
				r.Get("/logs/stream", router.handler.LogStream)
				r.Post("/test-connection", router.handler.TestConnection)
				r.Post("/test-sync", router.handler.TestSync)
				r.Get("/settings", router.handler.Settings)
			})
		})
	})

	return r
}
