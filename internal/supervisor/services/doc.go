// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package services adapts contactsync components to suture.Service.
//
// Each wrapper translates a component lifecycle (ListenAndServe, Run, a
// periodic task) into Serve(ctx) and returns ctx.Err() on shutdown so the
// supervisor does not restart it.
package services
