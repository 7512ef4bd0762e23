// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package integrations

import (
	"context"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/validation"
)

// Contact Form 7 field names, in priority order.
var (
	cf7EmailFields     = []string{"your-email", "email", "email-address", "user_email", "customer_email", "e-mail", "mail"}
	cf7NameFields      = []string{"your-name", "name", "full-name", "fullname", "user_name", "customer_name", "nama"}
	cf7FirstNameFields = []string{"first-name", "firstname", "first_name", "fname"}
	cf7LastNameFields  = []string{"last-name", "lastname", "last_name", "surname", "lname"}
	cf7PhoneFields     = []string{"phone", "your-phone", "phone-number", "phone_number", "tel", "telephone", "mobile", "hp", "telepon"}
)

// CF7 handles Contact Form 7 submissions. Field names vary per form, so
// each value is looked up in a list of common names.
type CF7 struct {
	log *activitylog.Logger
}

// NewCF7 creates the adapter; log receives its debug and warning entries.
func NewCF7(log *activitylog.Logger) CF7 {
	return CF7{log: log}
}

// Name implements Adapter.
func (CF7) Name() string { return NameCF7 }

type cf7Submission struct {
	FormTitle  Text            `json:"form_title"`
	PostedData map[string]Text `json:"posted_data"`
}

// Events implements Adapter.
func (a CF7) Events(ctx context.Context, body []byte) ([]Event, error) {
	var sub cf7Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, malformed(NameCF7, err)
	}
	posted := sub.PostedData
	title := sub.FormTitle.String()

	if a.log != nil && a.log.DebugEnabled() {
		raw, _ := json.Marshal(posted)
		a.log.Debugf(ctx, "CF7 posted data: %s", raw)
		a.log.Debugf(ctx, "CF7 form title: %s", title)
	}

	b := newBuilder().set("form_title", Text(title)).set("form_name", Text(title))

	for _, field := range cf7EmailFields {
		if v := posted[field].String(); v != "" && isEmail(v) {
			b.set("email", Text(v))
			break
		}
	}
	if v := firstPosted(posted, cf7NameFields); v != "" {
		b.fullName(Text(v))
	}
	if v := firstPosted(posted, cf7FirstNameFields); v != "" {
		b.set("firstName", Text(v))
	}
	if v := firstPosted(posted, cf7LastNameFields); v != "" {
		b.set("lastName", Text(v))
	}
	if v := firstPosted(posted, cf7PhoneFields); v != "" {
		b.set("phone", Text(v))
	}

	email := b.record.Get("email")
	if b.record.Get("firstName") == "" && email != "" {
		local, _, _ := strings.Cut(email, "@")
		b.set("firstName", Text(local))
	}

	if email == "" {
		if a.log != nil {
			a.log.Warnf(ctx, "No email found in CF7 submission")
		}
		return nil, nil
	}

	if a.log != nil {
		a.log.Infof(ctx, "Processing CF7 submission from %s (Form: %s)", email, title)
	}
	return []Event{b.event("contact_form_7", "CF7 Lead")}, nil
}

func firstPosted(posted map[string]Text, fields []string) string {
	for _, field := range fields {
		if v := posted[field].String(); v != "" {
			return v
		}
	}
	return ""
}

func isEmail(v string) bool {
	return validation.GetValidator().Var(v, "email") == nil
}

// GravityForms handles Gravity Forms submissions. The first email, name
// and phone typed fields of the form are used; name parts live under the
// ".3" (first) and ".6" (last) sub-ids.
type GravityForms struct{}

// Name implements Adapter.
func (GravityForms) Name() string { return NameGravityForms }

type gfSubmission struct {
	Form struct {
		Title  Text `json:"title"`
		Fields []struct {
			ID   Text `json:"id"`
			Type Text `json:"type"`
		} `json:"fields"`
	} `json:"form"`
	Entry map[string]Text `json:"entry"`
}

// Events implements Adapter.
func (GravityForms) Events(_ context.Context, body []byte) ([]Event, error) {
	var sub gfSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, malformed(NameGravityForms, err)
	}

	b := newBuilder().set("form_title", sub.Form.Title).set("form_name", sub.Form.Title)

	fieldID := func(fieldType string) (string, bool) {
		for _, f := range sub.Form.Fields {
			if f.Type.String() == fieldType {
				return f.ID.String(), true
			}
		}
		return "", false
	}

	if id, ok := fieldID("email"); ok {
		b.set("email", sub.Entry[id])
	}
	if id, ok := fieldID("name"); ok {
		b.set("firstName", sub.Entry[id+".3"])
		b.set("lastName", sub.Entry[id+".6"])
	}
	if id, ok := fieldID("phone"); ok {
		b.set("phone", sub.Entry[id])
	}

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("gravity_forms", "GF Lead")}, nil
}
