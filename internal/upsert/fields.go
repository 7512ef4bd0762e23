// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package upsert

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/fieldvalue"
)

// fieldCache records which custom-field slugs exist in the CRM. It lives for
// one sync call.
type fieldCache map[string]bool

// loadFields replaces cache with the CRM's field definitions.
func (e *Engine) loadFields(ctx context.Context) fieldCache {
	cache := make(fieldCache)
	e.log.Debugf(ctx, "Loading existing custom fields from Systeme.io")

	list, res := e.api.ListContactFields(ctx)
	if !res.Success {
		e.log.Warnf(ctx, "Failed to load custom fields - %s", res.Message)
		return cache
	}
	for _, f := range list {
		if f.Slug == "" {
			continue
		}
		cache[f.Slug] = true
		e.log.Debugf(ctx, "Found existing field: %s", f.Slug)
	}
	return cache
}

// ensureField makes sure slug is defined, creating it as a text field when
// missing. A create rejected as a duplicate counts as success.
func (e *Engine) ensureField(ctx context.Context, slug string) bool {
	cache := e.loadFields(ctx)
	if cache[slug] {
		e.log.Debugf(ctx, "Custom field '%s' already exists", slug)
		return true
	}

	name := fieldvalue.Titleize(slug)
	if e.log.DebugEnabled() {
		def, _ := json.Marshal(crm.ContactField{Name: name, Slug: slug, Type: crm.FieldTypeText})
		e.log.Debugf(ctx, "Creating custom field: %s", def)
	}

	res := e.api.CreateContactField(ctx, name, slug)
	if res.Success {
		e.log.Successf(ctx, "Custom field '%s' created", slug)
		cache[slug] = true
		return true
	}

	if crm.IsFieldConflict(res) {
		cache[slug] = true
		e.log.Debugf(ctx, "Custom field '%s' already exists (from error message)", slug)
		return true
	}

	e.log.Errorf(ctx, "Failed to create custom field '%s' - %s", slug, res.Message)
	return false
}
