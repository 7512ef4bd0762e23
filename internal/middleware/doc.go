// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package middleware provides the infrastructure HTTP middleware shared by
every route: request ids with logging context, and Prometheus request
instrumentation.

Both are plain func(http.Handler) http.Handler values so they slot into a
chi router:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Authentication lives in the auth package.
*/
package middleware
