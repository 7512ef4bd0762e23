// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"strconv"
	"testing"

	"github.com/goccy/go-json"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestID_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ID
		wantOut string
	}{
		{`123`, "123", `123`},
		{`"456"`, "456", `456`},
		{`"abc-1"`, "abc-1", `"abc-1"`},
		{`null`, "", `""`},
	}

	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if id != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, id, tt.want)
		}
		out, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("Marshal(%q) error = %v", id, err)
		}
		if string(out) != tt.wantOut {
			t.Errorf("Marshal(%q) = %s, want %s", id, out, tt.wantOut)
		}
	}
}

func TestContactHelpers(t *testing.T) {
	t.Parallel()

	c := &Contact{
		Fields: []FieldValue{{Slug: "products", Value: "A"}},
		Tags:   []Tag{{ID: "1", Name: "VIP"}, {ID: "2"}},
	}

	if got := c.FieldValue("products"); got != "A" {
		t.Errorf("FieldValue(products) = %q", got)
	}
	if got := c.FieldValue("missing"); got != "" {
		t.Errorf("FieldValue(missing) = %q", got)
	}
	if got := c.TagNames(); len(got) != 1 || got[0] != "VIP" {
		t.Errorf("TagNames() = %v", got)
	}

	var nilContact *Contact
	if nilContact.FieldValue("x") != "" || nilContact.TagNames() != nil {
		t.Error("nil contact helpers should return zero values")
	}
}

func TestDecodeList(t *testing.T) {
	t.Parallel()

	for _, data := range []string{`{"items":[{"id":1,"name":"A"}]}`, `[{"id":1,"name":"A"}]`} {
		tags, err := decodeList[Tag]([]byte(data))
		if err != nil || len(tags) != 1 || tags[0].Name != "A" || tags[0].ID != "1" {
			t.Errorf("decodeList(%s) = %+v, %v", data, tags, err)
		}
	}

	if tags, err := decodeList[Tag](nil); err != nil || tags != nil {
		t.Errorf("decodeList(nil) = %+v, %v", tags, err)
	}
}
