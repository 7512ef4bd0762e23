// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListTags returns every tag. Both {items:[...]} and bare arrays are accepted.
func (c *Client) ListTags(ctx context.Context) ([]Tag, Result) {
	res := c.doer.Do(ctx, http.MethodGet, "tags", nil)
	if !res.Success {
		return nil, res
	}
	tags, err := decodeList[Tag](res.Data)
	if err != nil {
		return nil, failure(fmt.Errorf("failed to decode tag list: %w", err))
	}
	return tags, res
}

// CreateTag creates a tag. A rejection recognized as "already exists" is
// returned with Err set to *ConflictError.
func (c *Client) CreateTag(ctx context.Context, name string) (Tag, Result) {
	res := c.doer.Do(ctx, http.MethodPost, "tags", map[string]string{"name": name})
	if !res.Success {
		if IsTagConflict(res) {
			res = AsConflict(res)
		}
		return Tag{}, res
	}

	var tag Tag
	if len(res.Data) > 0 {
		if err := res.Decode(&tag); err != nil {
			return Tag{}, res
		}
	}
	if tag.Name == "" {
		tag.Name = name
	}
	return tag, res
}

// AssignTag attaches an existing tag to a contact.
func (c *Client) AssignTag(ctx context.Context, contactID, tagID ID) Result {
	path := "contacts/" + url.PathEscape(contactID.String()) + "/tags"
	return c.doer.Do(ctx, http.MethodPost, path, map[string]ID{"tagId": tagID})
}
