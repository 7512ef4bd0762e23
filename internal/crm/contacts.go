// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

// FindContactByEmail looks a contact up by email. The CRM answers in one of
// three shapes: {items:[contact,...]}, a direct contact object, or a bare
// array. A failed call is reported as "not found" with the failed Result
// attached.
func (c *Client) FindContactByEmail(ctx context.Context, email string) Lookup {
	res := c.doer.Do(ctx, http.MethodGet, "contacts?email="+url.QueryEscape(email), nil)
	if !res.Success {
		return Lookup{Result: res}
	}

	contact := firstContact(res.Data)
	if contact == nil {
		return Lookup{Result: res}
	}
	return Lookup{Exists: true, ID: contact.ID, Contact: contact, Result: res}
}

// firstContact extracts the first contact from any of the lookup shapes.
// Direct and bare-array shapes only count when they carry an email.
func firstContact(data json.RawMessage) *Contact {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var items []Contact
		if err := json.Unmarshal(trimmed, &items); err != nil || len(items) == 0 || items[0].Email == "" {
			return nil
		}
		return &items[0]
	}

	var probe struct {
		Items []Contact `json:"items"`
		Email string    `json:"email"`
	}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil
	}
	if len(probe.Items) > 0 {
		return &probe.Items[0]
	}
	if probe.Email == "" {
		return nil
	}

	var direct Contact
	if err := json.Unmarshal(trimmed, &direct); err != nil {
		return nil
	}
	return &direct
}

// GetContact fetches one contact, including its tags.
func (c *Client) GetContact(ctx context.Context, id ID) (*Contact, Result) {
	res := c.doer.Do(ctx, http.MethodGet, "contacts/"+url.PathEscape(id.String()), nil)
	if !res.Success {
		return nil, res
	}
	var contact Contact
	if err := res.Decode(&contact); err != nil {
		return nil, res
	}
	return &contact, res
}

// CreateContact creates a contact.
func (c *Client) CreateContact(ctx context.Context, payload ContactPayload) Result {
	return c.doer.Do(ctx, http.MethodPost, "contacts", payload)
}

// UpdateContact patches a contact with merge-patch semantics: fields present
// in payload are replaced, absent fields keep their remote value.
func (c *Client) UpdateContact(ctx context.Context, id ID, payload ContactPayload) Result {
	return c.doer.Do(ctx, http.MethodPatch, "contacts/"+url.PathEscape(id.String()), payload)
}

// CreatedID returns the id carried by a create/update response body, or "".
func CreatedID(res Result) ID {
	if !res.Success || len(res.Data) == 0 {
		return ""
	}
	var body struct {
		ID ID `json:"id"`
	}
	if err := json.Unmarshal(res.Data, &body); err != nil {
		return ""
	}
	return body.ID
}
