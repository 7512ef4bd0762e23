// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package testinfra provides test infrastructure shared by package tests.
//
// # Mock CRM
//
// MockCRMServer is an in-memory, stateful stand-in for the systeme.io REST
// API served over httptest. It stores contacts, tags and custom fields,
// captures every request for later assertions and lets a test override any
// response:
//
//	func TestSync(t *testing.T) {
//	    srv := testinfra.NewMockCRMServer(t)
//	    srv.SeedTag("VIP")
//
//	    client := crm.NewFromConfig(srv.Config())
//	    // ... run the engine against client ...
//
//	    if n := srv.Count(http.MethodPost, "/contacts"); n != 1 {
//	        t.Errorf("create calls = %d, want 1", n)
//	    }
//	}
package testinfra
