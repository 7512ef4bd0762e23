// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package api is the HTTP surface of the sync engine.

Routes (all under /api/v1 except /metrics):

	GET    /health/live                liveness
	GET    /health/ready               readiness (queue running when background processing is on)
	POST   /auth/login                 admin credentials -> JWT
	POST   /sync                       sync one contact (API token or admin)
	POST   /integrations/{name}        integration webhooks, HMAC signature or sync caller auth
	GET    /admin/logs                 activity log, newest first
	DELETE /admin/logs                 clear the activity log
	GET    /admin/logs/stream          websocket live tail
	POST   /admin/test-connection      probe the CRM with the configured API key
	POST   /admin/test-sync            sync a sample contact
	GET    /admin/settings             effective configuration, secrets redacted
	GET    /metrics                    Prometheus

Every JSON response uses the APIResponse envelope. Sync endpoints put the
engine outcome in data as {success, message}.
*/
package api
