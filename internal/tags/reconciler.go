// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package tags resolves tag names to CRM tag ids, creates missing tags and
// assigns them to contacts without duplicating existing assignments.
//
// A Reconciler and its cache belong to a single sync call. The cache is
// reloaded from the CRM at the start of every operation that reads it, so
// nothing is shared between calls.
package tags

import (
	"context"
	"strings"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// Cache maps tag names (case-sensitive) to CRM tag ids.
type Cache map[string]crm.ID

// ContactRef identifies the contact tags are assigned to. When ID is empty
// the contact is looked up by Email.
type ContactRef struct {
	ID    crm.ID
	Email string
}

// Reconciler is the per-call tag workflow.
type Reconciler struct {
	api   crm.API
	log   *activitylog.Logger
	cache Cache
}

// NewReconciler creates a Reconciler with an empty cache.
func NewReconciler(api crm.API, log *activitylog.Logger) *Reconciler {
	return &Reconciler{api: api, log: log, cache: make(Cache)}
}

// Lookup returns the cached id of name.
func (r *Reconciler) Lookup(name string) (crm.ID, bool) {
	id, ok := r.cache[name]
	return id, ok
}

// Len returns the number of cached tags.
func (r *Reconciler) Len() int {
	return len(r.cache)
}

// Load replaces the cache with the CRM's current tag list. A failed load
// leaves the cache empty.
func (r *Reconciler) Load(ctx context.Context) {
	r.cache = make(Cache)
	r.log.Debugf(ctx, "Loading tags from Systeme.io")

	list, res := r.api.ListTags(ctx)
	if !res.Success {
		r.log.Warnf(ctx, "Failed to load tags - %s", res.Message)
		return
	}

	for _, tag := range list {
		if tag.Name == "" || tag.ID == "" {
			continue
		}
		r.cache[tag.Name] = tag.ID
	}
	r.log.Debugf(ctx, "Loaded %d tags", len(r.cache))
}

// EnsureExist reloads the cache and creates every name that is missing.
// Failures are logged and do not stop the remaining names.
func (r *Reconciler) EnsureExist(ctx context.Context, names []string) {
	r.Load(ctx)

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.cache[name]; ok {
			continue
		}
		r.create(ctx, name)
	}
}

func (r *Reconciler) create(ctx context.Context, name string) {
	r.log.Debugf(ctx, "Creating tag '%s'", name)

	tag, res := r.api.CreateTag(ctx, name)
	if res.Success {
		if tag.ID != "" {
			r.cache[name] = tag.ID
			metrics.TagsCreated.Inc()
			r.log.Successf(ctx, "Tag '%s' created with ID: %s", name, tag.ID)
		}
		return
	}

	if crm.IsTagConflict(res) {
		// Created concurrently or cached under a stale list: pick up its id.
		r.Load(ctx)
		r.log.Debugf(ctx, "Tag '%s' already exists, reloaded tags", name)
		return
	}

	r.log.Errorf(ctx, "Failed to create tag '%s' - %s", name, res.Message)
}

// Assign makes sure every name exists and is assigned to the contact.
// Names already on the contact are skipped, as are names whose id could not
// be resolved.
func (r *Reconciler) Assign(ctx context.Context, ref ContactRef, names []string) {
	r.EnsureExist(ctx, names)

	contactID := ref.ID
	if contactID == "" {
		lookup := r.api.FindContactByEmail(ctx, ref.Email)
		if !lookup.Exists || lookup.ID == "" {
			r.log.Errorf(ctx, "Could not find contact to assign tags")
			return
		}
		contactID = lookup.ID
	}

	assigned := r.currentTags(ctx, contactID)

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if assigned[name] {
			r.log.Debugf(ctx, "Tag '%s' already assigned to contact, skipping", name)
			metrics.TagAssignments.WithLabelValues("already_assigned").Inc()
			continue
		}

		tagID, ok := r.cache[name]
		if !ok {
			r.log.Warnf(ctx, "Could not find tag ID for '%s'", name)
			metrics.TagAssignments.WithLabelValues("unresolved").Inc()
			continue
		}

		r.log.Debugf(ctx, "Assigning tag '%s' (ID: %s) to contact ID: %s", name, tagID, contactID)

		res := r.api.AssignTag(ctx, contactID, tagID)
		if res.Success {
			r.log.Successf(ctx, "Tag '%s' assigned to contact", name)
			metrics.TagAssignments.WithLabelValues("assigned").Inc()
		} else {
			r.log.Warnf(ctx, "Failed to assign tag '%s' to contact - %s", name, res.Message)
			metrics.TagAssignments.WithLabelValues("failed").Inc()
		}
	}
}

// currentTags returns the names already on the contact. A failed fetch is
// treated as no tags.
func (r *Reconciler) currentTags(ctx context.Context, id crm.ID) map[string]bool {
	contact, res := r.api.GetContact(ctx, id)
	if !res.Success {
		return nil
	}
	names := contact.TagNames()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
