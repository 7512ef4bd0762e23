// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package authz decides which authenticated roles may call which routes.
//
// Authentication (who is calling) lives in package auth, which puts the
// caller's Claims in the request context. This package maps the claims'
// role, the request path and an action derived from the HTTP method onto a
// Casbin RBAC policy. The built-in policy gives admin every route under
// /api/v1 and the api role (static API tokens) only POST /api/v1/sync.
//
// Operators can supply their own policy CSV, which may also declare role
// inheritance with "g" lines, for example:
//
//	p, admin, /api/v1/*, *
//	p, api, /api/v1/sync, write
//	p, auditor, /api/v1/admin/logs, read
//	g, api, auditor
package authz
