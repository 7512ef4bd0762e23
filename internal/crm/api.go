// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"context"
	"net/http"

	"github.com/tomtom215/contactsync/internal/config"
)

// API is the set of CRM endpoints used by the sync engine.
type API interface {
	FindContactByEmail(ctx context.Context, email string) Lookup
	GetContact(ctx context.Context, id ID) (*Contact, Result)
	CreateContact(ctx context.Context, payload ContactPayload) Result
	UpdateContact(ctx context.Context, id ID, payload ContactPayload) Result

	ListTags(ctx context.Context) ([]Tag, Result)
	CreateTag(ctx context.Context, name string) (Tag, Result)
	AssignTag(ctx context.Context, contactID, tagID ID) Result

	ListContactFields(ctx context.Context) ([]ContactField, Result)
	CreateContactField(ctx context.Context, name, slug string) Result

	Ping(ctx context.Context) Result
}

// Client implements API on top of a Doer.
type Client struct {
	doer Doer
}

var _ API = (*Client)(nil)

// New creates a Client over doer.
func New(doer Doer) *Client {
	return &Client{doer: doer}
}

// NewFromConfig builds the production stack: HTTP transport, wrapped in a
// circuit breaker when enabled.
func NewFromConfig(cfg *config.CRMConfig, opts ...Option) *Client {
	var doer Doer = NewHTTPClient(cfg, opts...)
	if cfg.CircuitBreakerEnabled {
		doer = NewCircuitBreakerClient(doer)
	}
	return New(doer)
}

// Ping checks connectivity and credentials with the cheapest list call.
func (c *Client) Ping(ctx context.Context) Result {
	return c.doer.Do(ctx, http.MethodGet, "contacts?limit=1", nil)
}
