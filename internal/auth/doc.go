// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package auth authenticates callers of the HTTP surface.

Key Components:

  - JWTManager: HS256 admin session tokens (golang-jwt/jwt/v5)
  - BasicAuthManager: admin credentials checked against a bcrypt hash
  - Middleware: RequireAdmin for the admin routes and RequireSyncCaller for
    the sync endpoint, which also accepts static API tokens

Authentication Modes (security.auth_mode):

  - none: every request is treated as the admin
  - basic: HTTP Basic with the admin credentials
  - jwt: Bearer tokens issued by Login; Basic is still accepted so that
    scripts can call the admin API without a login round trip

The admin password may be configured in clear text or as a bcrypt hash
("$2a$", "$2b$" or "$2y$" prefix).
*/
package auth
