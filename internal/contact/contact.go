// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package contact turns loosely-structured customer records into canonical
// contacts.
//
// Record is the only untyped input of the engine. Every other package reads
// it through Get or Extract, never by indexing the map directly.
package contact

import (
	"strings"
	"unicode/utf8"

	"github.com/tomtom215/contactsync/internal/crm"
)

// Record is a customer record produced by an event source. Keys are
// optional and may use any of several historical spellings:
//
//	email
//	firstName, first_name, name
//	lastName, last_name, surname
//	phone, phoneNumber, phone_number
//	country, country_code
//	product, event, service, form_title, form_name
type Record map[string]string

// Get returns the trimmed value stored under key.
func (r Record) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// Clone returns a shallow copy; nil stays nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Candidate key lists, in priority order.
var (
	EmailKeys     = []string{"email"}
	FirstNameKeys = []string{"firstName", "first_name", "name"}
	LastNameKeys  = []string{"lastName", "last_name", "surname"}
	PhoneKeys     = []string{"phone", "phoneNumber", "phone_number"}
	CountryKeys   = []string{"country", "country_code"}
)

// FallbackCountry is used when neither the record nor the settings carry a
// country.
const FallbackCountry = "ID"

// ErrEmailMissing aborts a sync before any remote call.
var ErrEmailMissing = &crm.ValidationError{Reason: "email missing"}

// Canonical is the normalized contact derived from a Record.
type Canonical struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Country   string
}

// FullName is "first last", trimmed.
func (c Canonical) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Extract returns the first present, non-empty value among keys, trimmed.
func Extract(record Record, keys ...string) string {
	for _, key := range keys {
		if v := record.Get(key); v != "" {
			return v
		}
	}
	return ""
}

// Canonicalize extracts and normalizes every contact field. It returns
// ErrEmailMissing when no email key carries a value.
func Canonicalize(record Record, defaultCountry string) (Canonical, error) {
	c := Canonical{
		Email:     Extract(record, EmailKeys...),
		FirstName: Extract(record, FirstNameKeys...),
		LastName:  Extract(record, LastNameKeys...),
		Phone:     CleanPhone(Extract(record, PhoneKeys...)),
		Country:   NormalizeCountry(Extract(record, CountryKeys...), defaultCountry),
	}

	if c.FirstName != "" && c.LastName == "" {
		c.FirstName, c.LastName = SplitName(c.FirstName)
	}

	if c.Email == "" {
		return c, ErrEmailMissing
	}
	return c, nil
}

// SplitName splits a full name on the first space.
// "Jane Mary Doe" -> ("Jane", "Mary Doe")
func SplitName(full string) (first, last string) {
	first, last, found := strings.Cut(full, " ")
	if !found {
		return full, ""
	}
	return first, last
}

// CleanPhone keeps digits and a single leading '+'.
// "+62 (812) 345-678" -> "+62812345678"
func CleanPhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCountry uppercases the first two characters of country, falling
// back to defaultCountry and then FallbackCountry. The truncation is purely
// mechanical: "indonesia" becomes "IN".
func NormalizeCountry(country, defaultCountry string) string {
	country = strings.TrimSpace(country)
	if country == "" {
		country = strings.TrimSpace(defaultCountry)
	}
	if country == "" {
		return FallbackCountry
	}
	if utf8.RuneCountInString(country) > 2 {
		runes := []rune(country)
		country = string(runes[:2])
	}
	return strings.ToUpper(country)
}
