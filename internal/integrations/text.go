// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package integrations

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/contact"
)

// Text is a string field that also accepts JSON numbers, booleans and
// null. Plugins are loose about phone numbers and ids.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*t = Text(data)
	default:
		if _, err := strconv.ParseFloat(string(data), 64); err != nil {
			// Objects and arrays carry no scalar value.
			*t = ""
			return nil
		}
		*t = Text(data)
	}
	return nil
}

// String returns the trimmed value.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// named is the {"name": ...} object plugins use for services, events and
// products.
type named struct {
	Name Text `json:"name"`
}

// builder collects record fields, skipping empty values.
type builder struct {
	record contact.Record
}

func newBuilder() *builder {
	return &builder{record: contact.Record{}}
}

func (b *builder) set(key string, value Text) *builder {
	if v := value.String(); v != "" {
		b.record[key] = v
	}
	return b
}

func (b *builder) fullName(value Text) *builder {
	first, last := contact.SplitName(value.String())
	b.set("firstName", Text(first))
	b.set("lastName", Text(last))
	return b
}

func (b *builder) event(source string, tags ...string) Event {
	return Event{Record: b.record, Source: source, Tags: tags}
}

func (b *builder) hasEmail() bool {
	return b.record.Get("email") != ""
}
