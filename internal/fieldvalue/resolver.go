// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package fieldvalue computes the value written to the tracking custom field
// for one source event.
package fieldvalue

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tomtom215/contactsync/internal/contact"
)

// Placeholders understood by templates.
const (
	PlaceholderServiceName  = "{service_name}"
	PlaceholderEventName    = "{event_name}"
	PlaceholderProductName  = "{product_name}"
	PlaceholderFormTitle    = "{form_title}"
	PlaceholderFormName     = "{form_name}"
	PlaceholderSource       = "{source}"
	PlaceholderDate         = "{date}"
	PlaceholderDatetime     = "{datetime}"
	PlaceholderCustomerName = "{customer_name}"
	PlaceholderEmail        = "{email}"
)

// Date layouts for {date} and {datetime}.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04"
)

// fallbackKeys are checked in order when no template applies.
var fallbackKeys = []string{"product", "event", "service", "form_title"}

var unknownPlaceholder = regexp.MustCompile(`\{[^}]+\}`)

// Resolver resolves custom-field values.
type Resolver struct {
	now func() time.Time
}

// NewResolver creates a Resolver using the local wall clock.
func NewResolver() *Resolver {
	return &Resolver{now: time.Now}
}

// NewResolverWithClock creates a Resolver reading time from now.
func NewResolverWithClock(now func() time.Time) *Resolver {
	return &Resolver{now: now}
}

// Resolve picks the value in priority order:
//  1. templates[source], with placeholders substituted
//  2. the record's product, event, service or form_title
//  3. the first additional tag
//  4. the titleized source key
func (r *Resolver) Resolve(source string, record contact.Record, additionalTags []string, templates map[string]string) string {
	if tmpl := templates[source]; tmpl != "" {
		return r.Render(tmpl, source, record)
	}

	if v := contact.Extract(record, fallbackKeys...); v != "" {
		return v
	}

	if len(additionalTags) > 0 && additionalTags[0] != "" {
		return additionalTags[0]
	}

	return Titleize(source)
}

// Render substitutes the known placeholders of tmpl, strips any remaining
// {token} and trims the result.
func (r *Resolver) Render(tmpl, source string, record contact.Record) string {
	now := r.now()

	replacer := strings.NewReplacer(
		PlaceholderServiceName, record.Get("service"),
		PlaceholderEventName, record.Get("event"),
		PlaceholderProductName, record.Get("product"),
		PlaceholderFormTitle, record.Get("form_title"),
		PlaceholderFormName, record.Get("form_name"),
		PlaceholderSource, Titleize(source),
		PlaceholderDate, now.Format(DateLayout),
		PlaceholderDatetime, now.Format(DatetimeLayout),
		PlaceholderCustomerName, customerName(record),
		PlaceholderEmail, contact.Extract(record, contact.EmailKeys...),
	)

	out := replacer.Replace(tmpl)
	out = unknownPlaceholder.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func customerName(record contact.Record) string {
	first := contact.Extract(record, contact.FirstNameKeys...)
	last := contact.Extract(record, contact.LastNameKeys...)
	return strings.TrimSpace(first + " " + last)
}

// Titleize replaces underscores with spaces and uppercases the first letter.
// "contact_form_7" -> "Contact form 7"
func Titleize(source string) string {
	s := strings.ReplaceAll(source, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
