// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"context"
	"fmt"
	"net/http"
)

// FieldTypeText is the only custom-field type the engine creates.
const FieldTypeText = "text"

// ListContactFields returns the custom-field definitions.
func (c *Client) ListContactFields(ctx context.Context) ([]ContactField, Result) {
	res := c.doer.Do(ctx, http.MethodGet, "contact_fields", nil)
	if !res.Success {
		return nil, res
	}
	fields, err := decodeList[ContactField](res.Data)
	if err != nil {
		return nil, failure(fmt.Errorf("failed to decode contact field list: %w", err))
	}
	return fields, res
}

// CreateContactField registers a text custom field. A rejection recognized as
// "already exists" is returned with Err set to *ConflictError.
func (c *Client) CreateContactField(ctx context.Context, name, slug string) Result {
	res := c.doer.Do(ctx, http.MethodPost, "contact_fields", ContactField{
		Name: name,
		Slug: slug,
		Type: FieldTypeText,
	})
	if !res.Success && IsFieldConflict(res) {
		res = AsConflict(res)
	}
	return res
}
