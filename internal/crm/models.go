// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

// ID is a CRM resource identifier. The CRM uses integers; ID accepts both
// JSON numbers and strings and writes numeric IDs back as numbers.
type ID string

// UnmarshalJSON accepts 123 or "123".
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(data)
	return nil
}

// MarshalJSON writes numeric IDs as JSON numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string {
	return string(id)
}

// FieldValue is one {slug, value} entry of a contact's field list.
type FieldValue struct {
	Slug  string `json:"slug"`
	Value string `json:"value"`
}

// Tag is a CRM tag.
type Tag struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Contact is the remote view of a contact. It is always a fresh snapshot.
type Contact struct {
	ID     ID           `json:"id"`
	Email  string       `json:"email"`
	Fields []FieldValue `json:"fields"`
	Tags   []Tag        `json:"tags"`
}

// FieldValue returns the value stored under slug, or "".
func (c *Contact) FieldValue(slug string) string {
	if c == nil {
		return ""
	}
	for _, f := range c.Fields {
		if f.Slug == slug {
			return f.Value
		}
	}
	return ""
}

// TagNames returns the names of the tags assigned to the contact.
func (c *Contact) TagNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Tags))
	for _, t := range c.Tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

// ContactField is a custom-field definition.
type ContactField struct {
	ID   ID     `json:"id,omitempty"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Type string `json:"type,omitempty"`
}

// ContactPayload is the body of create and update calls.
type ContactPayload struct {
	Email  string       `json:"email"`
	Fields []FieldValue `json:"fields"`
}

// Lookup is the normalized result of a find-by-email call.
type Lookup struct {
	Exists  bool
	ID      ID
	Contact *Contact
	Result  Result
}

// listEnvelope is the items-wrapped list shape.
type listEnvelope[T any] struct {
	Items []T `json:"items"`
}

// decodeList accepts {items:[...]} or a bare [...] array.
func decodeList[T any](data json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var env listEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	return env.Items, nil
}
