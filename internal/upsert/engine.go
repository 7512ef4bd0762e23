// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package upsert creates or updates one CRM contact from a customer record.
//
// A sync call runs, in order: canonicalize the record, look the contact up
// by email, build the field list (merging the custom-field history when
// enabled), create or patch the contact, then assign tags and notify
// completion hooks. Every decision is written to the activity log. The
// Engine keeps no state between calls; tag and field caches are rebuilt
// inside each call.
package upsert

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/fieldvalue"
	"github.com/tomtom215/contactsync/internal/metrics"
	"github.com/tomtom215/contactsync/internal/tags"
)

// Standard field slugs.
const (
	SlugFirstName = "first_name"
	SlugSurname   = "surname"
	SlugCountry   = "country"
	SlugPhone     = "phone_number"
)

// SettingsSource supplies the live sync settings; config.Store implements it.
type SettingsSource interface {
	Settings() config.SyncSettings
	APIKey() string
}

// Engine performs contact upserts.
type Engine struct {
	api      crm.API
	log      *activitylog.Logger
	settings SettingsSource
	resolver *fieldvalue.Resolver
	hooks    []CompletionHook
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver replaces the custom-field resolver.
func WithResolver(r *fieldvalue.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithCompletionHook registers a completion hook.
func WithCompletionHook(h CompletionHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

// WithClock replaces the clock used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(api crm.API, log *activitylog.Logger, settings SettingsSource, opts ...Option) *Engine {
	e := &Engine{
		api:      api,
		log:      log,
		settings: settings,
		resolver: fieldvalue.NewResolver(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync upserts the contact described by record and reports success. It
// never panics on remote failures; they are logged and yield false.
func (e *Engine) Sync(ctx context.Context, record contact.Record, source string, additionalTags []string) bool {
	start := time.Now()
	settings := e.settings.Settings()

	if e.settings.APIKey() == "" {
		e.log.Errorf(ctx, "API key not found")
		metrics.RecordSyncOperation(source, "invalid", time.Since(start))
		return false
	}

	if e.log.DebugEnabled() {
		raw, _ := json.Marshal(record)
		e.log.Debugf(ctx, "Raw customer data from %s: %s", source, raw)
	}

	canonical, err := contact.Canonicalize(record, settings.DefaultCountry)
	if err != nil {
		e.log.Errorf(ctx, "Email is required but not found in customer data")
		metrics.RecordSyncOperation(source, "invalid", time.Since(start))
		return false
	}

	reconciler := tags.NewReconciler(e.api, e.log)
	if settings.TagModeActive() && len(additionalTags) > 0 {
		reconciler.Load(ctx)
	}

	lookup := e.api.FindContactByEmail(ctx, canonical.Email)
	if e.log.DebugEnabled() {
		e.log.Debugf(ctx, "Get contact by email response: exists=%t id=%s status=%d", lookup.Exists, lookup.ID, lookup.Result.StatusCode)
	}

	var prior string
	if lookup.Exists && settings.CustomFieldModeActive() {
		prior = lookup.Contact.FieldValue(settings.CustomFieldSlug)
		e.log.Debugf(ctx, "Existing contact found with ID: %s and custom field value: %s", lookup.ID, prior)
	}

	payload := crm.ContactPayload{Email: canonical.Email, Fields: standardFields(canonical)}

	if settings.CustomFieldModeActive() {
		if field, ok := e.customField(ctx, settings, source, record, additionalTags, prior); ok {
			payload.Fields = append(payload.Fields, field)
		}
	}

	if e.log.DebugEnabled() {
		body, _ := json.Marshal(payload)
		e.log.Debugf(ctx, "Prepared contact data: %s", body)
	}

	var res crm.Result
	update := lookup.Exists && lookup.ID != ""
	if update {
		e.log.Infof(ctx, "Updating existing contact %s (ID: %s)", canonical.Email, lookup.ID)
		res = e.api.UpdateContact(ctx, lookup.ID, payload)
	} else {
		e.log.Infof(ctx, "Creating new contact %s", canonical.Email)
		res = e.api.CreateContact(ctx, payload)
	}

	if !res.Success {
		e.log.Errorf(ctx, "Failed to sync customer %s to Systeme.io - %s", canonical.Email, res.Message)
		metrics.RecordSyncOperation(source, "failed", time.Since(start))
		return false
	}

	e.log.Successf(ctx, "Customer %s (%s %s) successfully synced from %s",
		canonical.Email, canonical.FirstName, canonical.LastName, source)

	contactID := lookup.ID
	if !update {
		contactID = crm.CreatedID(res)
	}

	if settings.TagModeActive() {
		all := append(settings.DefaultTagList(), additionalTags...)
		if len(all) > 0 {
			reconciler.Assign(ctx, tags.ContactRef{ID: contactID, Email: canonical.Email}, all)
		}
	}

	result := "created"
	if update {
		result = "updated"
	}
	metrics.RecordSyncOperation(source, result, time.Since(start))

	event := CompletionEvent{
		Email:     canonical.Email,
		Payload:   payload,
		Source:    source,
		Response:  res.Data,
		ContactID: contactID,
		Created:   !update,
		SyncedAt:  e.now().UTC(),
	}
	for _, hook := range e.hooks {
		hook(ctx, event)
	}

	return true
}

// standardFields builds first_name, surname, country and phone_number, in
// that order. Country is always present; the others only when non-empty.
func standardFields(c contact.Canonical) []crm.FieldValue {
	fields := make([]crm.FieldValue, 0, 5)
	if c.FirstName != "" {
		fields = append(fields, crm.FieldValue{Slug: SlugFirstName, Value: c.FirstName})
	}
	if c.LastName != "" {
		fields = append(fields, crm.FieldValue{Slug: SlugSurname, Value: c.LastName})
	}
	fields = append(fields, crm.FieldValue{Slug: SlugCountry, Value: c.Country})
	if c.Phone != "" {
		fields = append(fields, crm.FieldValue{Slug: SlugPhone, Value: c.Phone})
	}
	return fields
}

// customField resolves, ensures and merges the custom-field value. ok is
// false when the field must be left out of the payload.
func (e *Engine) customField(ctx context.Context, settings config.SyncSettings, source string,
	record contact.Record, additionalTags []string, prior string) (crm.FieldValue, bool) {
	slug := settings.CustomFieldSlug
	value := e.resolver.Resolve(source, record, additionalTags, settings.CustomFieldMappings)
	if slug == "" || value == "" {
		metrics.CustomFieldMerges.WithLabelValues("skipped").Inc()
		return crm.FieldValue{}, false
	}

	if !e.ensureField(ctx, slug) {
		e.log.Warnf(ctx, "Could not create custom field '%s', proceeding without it", slug)
		metrics.CustomFieldMerges.WithLabelValues("skipped").Inc()
		return crm.FieldValue{}, false
	}

	merged := MergeValue(prior, value)
	switch {
	case prior == "":
		metrics.CustomFieldMerges.WithLabelValues("initial").Inc()
	case merged == prior:
		e.log.Infof(ctx, "Custom field value '%s' already exists, not duplicating", merged)
		metrics.CustomFieldMerges.WithLabelValues("unchanged").Inc()
	default:
		e.log.Infof(ctx, "Appending '%s' to existing custom field value", merged)
		metrics.CustomFieldMerges.WithLabelValues("appended").Inc()
	}

	return crm.FieldValue{Slug: slug, Value: merged}, true
}
