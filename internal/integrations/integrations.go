// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package integrations converts webhook payloads from booking, form,
checkout and registration plugins into customer records for the
dispatcher.

Each Adapter knows one plugin's payload shape and returns zero or more
Events (an Amelia appointment carries one booking per attendee). The
Registry gates adapters on their integrations.<name>.enabled flag, applies
the registration-after-booking suppression, and dispatches every event.
*/
package integrations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// Errors
var (
	ErrUnknownIntegration  = errors.New("unknown integration")
	ErrIntegrationDisabled = errors.New("integration is disabled")
	ErrMalformedPayload    = errors.New("malformed integration payload")
)

// Event is one customer to sync.
type Event struct {
	Record contact.Record
	Source string
	Tags   []string
}

// Adapter turns one plugin's payload into events. Payloads without a
// usable email produce no events.
type Adapter interface {
	// Name is the integration key used in configuration and URLs.
	Name() string
	Events(ctx context.Context, body []byte) ([]Event, error)
}

// Dispatcher is the sync entry point; *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, record contact.Record, source string, tags []string) bool
}

// SettingsSource supplies the live integration flags; config.Store
// implements it.
type SettingsSource interface {
	Integrations() config.IntegrationsConfig
}

// Outcome reports what a webhook delivery did.
type Outcome struct {
	Integration string `json:"integration"`
	Events      int    `json:"events"`
	Synced      int    `json:"synced"`
	Failed      int    `json:"failed"`
	Suppressed  int    `json:"suppressed"`
}

// Registry routes payloads to adapters.
type Registry struct {
	adapters   map[string]Adapter
	dispatcher Dispatcher
	settings   SettingsSource
	log        *activitylog.Logger
	suppressor *Suppressor
}

// NewRegistry creates a registry holding every built-in adapter.
func NewRegistry(dispatcher Dispatcher, settings SettingsSource, log *activitylog.Logger) *Registry {
	r := &Registry{
		adapters:   make(map[string]Adapter),
		dispatcher: dispatcher,
		settings:   settings,
		log:        log,
		suppressor: NewSuppressor(),
	}
	for _, a := range []Adapter{
		WooCommerce{},
		NewCF7(log),
		GravityForms{},
		Amelia{},
		Bookly{},
		EasyAppointments{},
		WCBookings{},
		UserRegistration{},
	} {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Names lists the registered integrations in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Suppressor exposes the registration-after-booking memory.
func (r *Registry) Suppressor() *Suppressor {
	return r.suppressor
}

// Handle converts body with the named adapter and dispatches each event.
func (r *Registry) Handle(ctx context.Context, name string, body []byte) (Outcome, error) {
	out := Outcome{Integration: name}

	adapter, ok := r.adapters[name]
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrUnknownIntegration, name)
	}

	cfg := r.settings.Integrations()
	if !cfg.IsEnabled(name) {
		metrics.IntegrationEvents.WithLabelValues(name, "disabled").Inc()
		return out, fmt.Errorf("%w: %s", ErrIntegrationDisabled, name)
	}

	events, err := adapter.Events(ctx, body)
	if err != nil {
		metrics.IntegrationEvents.WithLabelValues(name, "malformed").Inc()
		return out, err
	}
	out.Events = len(events)
	if len(events) == 0 {
		metrics.IntegrationEvents.WithLabelValues(name, "ignored").Inc()
	}

	for _, ev := range events {
		email := strings.ToLower(strings.TrimSpace(ev.Record.Get("email")))

		if name == NameUserRegistration && cfg.UserRegistration.SuppressAfterBooking &&
			r.suppressor.Recent(email, cfg.UserRegistration.SuppressWindow) {
			r.log.Infof(ctx, "Skipping %s sync for %s, already synced from a booking", name, email)
			metrics.IntegrationEvents.WithLabelValues(name, "suppressed").Inc()
			out.Suppressed++
			continue
		}

		if r.dispatcher.Dispatch(ctx, ev.Record, ev.Source, ev.Tags) {
			out.Synced++
			metrics.IntegrationEvents.WithLabelValues(name, "synced").Inc()
			if isBooking(name) {
				r.suppressor.Mark(email)
			}
		} else {
			out.Failed++
			metrics.IntegrationEvents.WithLabelValues(name, "failed").Inc()
		}
	}
	return out, nil
}

func malformed(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
}
