// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package upsert

import (
	"context"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/testinfra"
)

type staticSettings struct {
	sync config.SyncSettings
	key  string
}

func (s staticSettings) Settings() config.SyncSettings { return s.sync }
func (s staticSettings) APIKey() string                { return s.key }

type harness struct {
	engine *Engine
	srv    *testinfra.MockCRMServer
	log    *activitylog.Logger
	events []CompletionEvent
}

func newHarness(t *testing.T, settings config.SyncSettings) *harness {
	t.Helper()
	if settings.DefaultCountry == "" {
		settings.DefaultCountry = "ID"
	}
	h := &harness{srv: testinfra.NewMockCRMServer(t)}
	h.log = activitylog.NewLogger(activitylog.NewMemorySink(), func() bool { return settings.Debug })
	api := crm.New(crm.NewHTTPClient(h.srv.Config()))
	h.engine = NewEngine(api, h.log, staticSettings{sync: settings, key: testinfra.TestAPIKey},
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }),
		WithCompletionHook(func(_ context.Context, ev CompletionEvent) { h.events = append(h.events, ev) }),
	)
	return h
}

func (h *harness) messages(t *testing.T) []string {
	t.Helper()
	entries, err := h.log.Recent(context.Background())
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	out := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Message)
	}
	return out
}

func (h *harness) hasMessage(t *testing.T, want string) bool {
	t.Helper()
	for _, m := range h.messages(t) {
		if m == want {
			return true
		}
	}
	return false
}

func decodeFields(t *testing.T, c testinfra.CRMCapture) []crm.FieldValue {
	t.Helper()
	var body crm.ContactPayload
	c.JSON(t, &body)
	return body.Fields
}

func TestSyncEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{
		Enabled:              true,
		UseCustomField:       true,
		CustomFieldSlug:      "products",
		UseBothTagsAndFields: true,
	})

	record := contact.Record{"email": "a@b.com", "firstName": "A B", "product": "Widget"}
	if !h.engine.Sync(context.Background(), record, "woocommerce", []string{"WooCommerce Customer"}) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}

	c := h.srv.Contact("a@b.com")
	if c == nil {
		t.Fatal("contact not created")
	}
	contactPath := "/contacts/" + strconv.Itoa(c.ID)

	wantCalls := []string{
		"GET /tags",
		"GET /contacts",
		"GET /contact_fields",
		"POST /contact_fields",
		"POST /contacts",
		"GET /tags",
		"POST /tags",
		"GET " + contactPath,
		"POST " + contactPath + "/tags",
	}
	if got := h.srv.Calls(); !reflect.DeepEqual(got, wantCalls) {
		t.Errorf("calls =\n%v\nwant\n%v", got, wantCalls)
	}

	var create testinfra.CRMCapture
	for _, capture := range h.srv.Captures() {
		if capture.Method == http.MethodPost && capture.Path == "/contacts" {
			create = capture
		}
	}
	wantFields := []crm.FieldValue{
		{Slug: "first_name", Value: "A"},
		{Slug: "surname", Value: "B"},
		{Slug: "country", Value: "ID"},
		{Slug: "products", Value: "Widget"},
	}
	if got := decodeFields(t, create); !reflect.DeepEqual(got, wantFields) {
		t.Errorf("create fields = %+v, want %+v", got, wantFields)
	}
	if ct := create.Headers.Get("Content-Type"); ct != "application/json" {
		t.Errorf("create Content-Type = %q", ct)
	}

	if len(c.Tags) != 1 || c.Tags[0].Name != "WooCommerce Customer" {
		t.Errorf("contact tags = %+v", c.Tags)
	}

	if len(h.events) != 1 {
		t.Fatalf("completion events = %d, want 1", len(h.events))
	}
	ev := h.events[0]
	if ev.Email != "a@b.com" || ev.Source != "woocommerce" || !ev.Created || ev.ContactID != crm.ID(strconv.Itoa(c.ID)) {
		t.Errorf("event = %+v", ev)
	}
	if !ev.SyncedAt.Equal(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("SyncedAt = %v", ev.SyncedAt)
	}

	for _, want := range []string{
		"Info: Creating new contact a@b.com",
		"Success: Custom field 'products' created",
		"Success: Customer a@b.com (A B) successfully synced from woocommerce",
		"Success: Tag 'WooCommerce Customer' assigned to contact",
	} {
		if !h.hasMessage(t, want) {
			t.Errorf("missing log %q in %v", want, h.messages(t))
		}
	}
}

func TestSyncMissingEmailMakesNoCalls(t *testing.T) {
	t.Parallel()

	records := []contact.Record{
		{},
		{"firstName": "Jane", "phone": "123"},
		{"email": "   ", "mail": "a@b.com"},
	}

	for i, record := range records {
		h := newHarness(t, config.SyncSettings{Enabled: true})
		if h.engine.Sync(context.Background(), record, "cf7", []string{"CF7 Lead"}) {
			t.Errorf("case %d: Sync() = true, want false", i)
		}
		if calls := h.srv.Calls(); len(calls) != 0 {
			t.Errorf("case %d: calls = %v, want none", i, calls)
		}
		if !h.hasMessage(t, "Error: Email is required but not found in customer data") {
			t.Errorf("case %d: log = %v", i, h.messages(t))
		}
	}
}

func TestSyncMissingAPIKey(t *testing.T) {
	t.Parallel()

	srv := testinfra.NewMockCRMServer(t)
	log := activitylog.NewLogger(activitylog.NewMemorySink(), nil)
	engine := NewEngine(crm.New(crm.NewHTTPClient(srv.Config())), log, staticSettings{})

	if engine.Sync(context.Background(), contact.Record{"email": "a@b.com"}, "manual", nil) {
		t.Error("Sync() = true without API key")
	}
	if len(srv.Calls()) != 0 {
		t.Errorf("calls = %v", srv.Calls())
	}
	entries, _ := log.Recent(context.Background())
	if len(entries) != 1 || entries[0].Message != "Error: API key not found" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestSyncUpdatesExistingContactAndMerges(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{
		Enabled:         true,
		UseCustomField:  true,
		CustomFieldSlug: "products",
	})
	h.srv.SeedField("products")
	id := h.srv.SeedContact("a@b.com", map[string]string{"products": "A", "first_name": "Old"})

	ctx := context.Background()
	record := contact.Record{"email": "a@b.com", "first_name": "Ann", "product": "C"}

	if !h.engine.Sync(ctx, record, "woocommerce", nil) {
		t.Fatalf("first Sync() = false, log: %v", h.messages(t))
	}
	if got := h.srv.Contact("a@b.com").FieldValue("products"); got != "A, C" {
		t.Errorf("products after first sync = %q, want %q", got, "A, C")
	}

	if !h.engine.Sync(ctx, record, "woocommerce", nil) {
		t.Fatalf("second Sync() = false")
	}
	c := h.srv.Contact("a@b.com")
	if got := c.FieldValue("products"); got != "A, C" {
		t.Errorf("products after second sync = %q, want unchanged %q", got, "A, C")
	}
	if got := c.FieldValue("first_name"); got != "Ann" {
		t.Errorf("first_name = %q, want Ann", got)
	}

	path := "/contacts/" + strconv.Itoa(id)
	if got := h.srv.Count(http.MethodPatch, path); got != 2 {
		t.Errorf("PATCH %s count = %d, want 2", path, got)
	}
	if got := h.srv.Count(http.MethodPost, "/contacts"); got != 0 {
		t.Errorf("POST /contacts count = %d, want 0", got)
	}
	if got := h.srv.Count(http.MethodPost, "/contact_fields"); got != 0 {
		t.Errorf("existing field was recreated %d times", got)
	}
	// Custom-field-only mode: no tag traffic at all.
	if got := h.srv.Count(http.MethodGet, "/tags"); got != 0 {
		t.Errorf("GET /tags count = %d, want 0", got)
	}

	for _, want := range []string{
		"Info: Updating existing contact a@b.com (ID: " + strconv.Itoa(id) + ")",
		"Info: Appending 'A, C' to existing custom field value",
		"Info: Custom field value 'A, C' already exists, not duplicating",
	} {
		if !h.hasMessage(t, want) {
			t.Errorf("missing log %q in %v", want, h.messages(t))
		}
	}

	if len(h.events) != 2 || h.events[0].Created {
		t.Errorf("events = %+v", h.events)
	}
}

func TestSyncSkipsAssignedTags(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true, DefaultTags: "Customer, VIP", Debug: true})
	id := h.srv.SeedContact("a@b.com", nil, "Customer")

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com"}, "bookly", []string{"Bookly Customer"}) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}

	path := "/contacts/" + strconv.Itoa(id) + "/tags"
	if got := h.srv.Count(http.MethodPost, path); got != 2 {
		t.Errorf("assignment calls = %d, want 2", got)
	}
	for _, capture := range h.srv.Captures() {
		if capture.Method != http.MethodPost || capture.Path != path {
			continue
		}
		var body map[string]int
		capture.JSON(t, &body)
		if body["tagId"] == 0 {
			t.Errorf("assignment body = %s", capture.Body)
		}
	}

	names := make([]string, 0, 3)
	for _, tag := range h.srv.Contact("a@b.com").Tags {
		names = append(names, tag.Name)
	}
	if want := []string{"Customer", "VIP", "Bookly Customer"}; !reflect.DeepEqual(names, want) {
		t.Errorf("tags = %v, want %v", names, want)
	}
	if !h.hasMessage(t, "Debug: Tag 'Customer' already assigned to contact, skipping") {
		t.Errorf("log = %v", h.messages(t))
	}
}

func TestSyncExistingContactWithoutIDIsCreated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true})
	h.srv.LookupShape = testinfra.ShapeDirect
	h.srv.ResponseFunc = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodGet && r.URL.Path == "/contacts" {
			testinfra.WriteJSON(w, http.StatusOK, map[string]string{"email": "a@b.com"})
			return true
		}
		return false
	}

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com"}, "manual", nil) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}
	if got := h.srv.Count(http.MethodPost, "/contacts"); got != 1 {
		t.Errorf("POST /contacts count = %d, want 1", got)
	}
}

func TestSyncFailedLookupCreates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true})
	h.srv.ResponseFunc = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodGet && r.URL.Path == "/contacts" {
			testinfra.WriteJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
			return true
		}
		return false
	}

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com"}, "manual", nil) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}
	if h.srv.Contact("a@b.com") == nil {
		t.Error("contact not created after failed lookup")
	}
}

func TestSyncRemoteRejection(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true, DefaultTags: "VIP"})
	h.srv.ResponseFunc = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && r.URL.Path == "/contacts" {
			testinfra.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "email: invalid"})
			return true
		}
		return false
	}

	if h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com"}, "manual", nil) {
		t.Fatal("Sync() = true, want false")
	}

	msgs := h.messages(t)
	last := msgs[len(msgs)-1]
	if !strings.HasPrefix(last, "Error: Failed to sync customer a@b.com to Systeme.io - HTTP 422: ") {
		t.Errorf("last log = %q", last)
	}
	if len(h.events) != 0 {
		t.Errorf("completion hook ran on failure: %+v", h.events)
	}
	if got := h.srv.Count(http.MethodGet, "/tags"); got != 0 {
		t.Errorf("tags touched after failed upsert: %d", got)
	}
}

func TestSyncCustomFieldCreateFailureOmitsField(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true, UseCustomField: true, CustomFieldSlug: "products"})
	h.srv.ResponseFunc = func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && r.URL.Path == "/contact_fields" {
			testinfra.WriteJSON(w, http.StatusForbidden, map[string]string{"message": "plan limit"})
			return true
		}
		return false
	}

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com", "product": "Widget"}, "woocommerce", nil) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}
	if got := h.srv.Contact("a@b.com").FieldValue("products"); got != "" {
		t.Errorf("products = %q, want omitted", got)
	}
	if !h.hasMessage(t, "Warning: Could not create custom field 'products', proceeding without it") {
		t.Errorf("log = %v", h.messages(t))
	}
}

func TestSyncCustomFieldConflictCountsAsCreated(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true, UseCustomField: true, CustomFieldSlug: "products"})
	h.srv.ResponseFunc = func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contact_fields":
			testinfra.WriteJSON(w, http.StatusOK, []interface{}{})
			return true
		case r.Method == http.MethodPost && r.URL.Path == "/contact_fields":
			testinfra.WriteJSON(w, http.StatusConflict, map[string]string{"message": "Slug Already Exists"})
			return true
		}
		return false
	}

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com", "event": "Gala"}, "amelia_event", nil) {
		t.Fatalf("Sync() = false, log: %v", h.messages(t))
	}
	if got := h.srv.Contact("a@b.com").FieldValue("products"); got != "Gala" {
		t.Errorf("products = %q, want Gala", got)
	}
}

func TestSyncUsesTemplate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{
		Enabled:             true,
		UseCustomField:      true,
		CustomFieldSlug:     "bookings",
		CustomFieldMappings: map[string]string{"bookly": "{service_name} {bogus}({date})"},
	})
	h.srv.SeedField("bookings")

	record := contact.Record{"email": "a@b.com", "service": "Massage"}
	if !h.engine.Sync(context.Background(), record, "bookly", nil) {
		t.Fatalf("Sync() = false")
	}
	// The clock only drives completion timestamps; the resolver uses the
	// wall clock, so check the stable prefix.
	got := h.srv.Contact("a@b.com").FieldValue("bookings")
	if !strings.HasPrefix(got, "Massage (") || strings.Contains(got, "{") {
		t.Errorf("bookings = %q", got)
	}
}

func TestSyncDebugEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.SyncSettings{Enabled: true, Debug: true})

	if !h.engine.Sync(context.Background(), contact.Record{"email": "a@b.com", "phone": "+62 812-3456"}, "cf7", nil) {
		t.Fatal("Sync() = false")
	}

	var raw, prepared bool
	for _, m := range h.messages(t) {
		if m == `Debug: Raw customer data from cf7: {"email":"a@b.com","phone":"+62 812-3456"}` {
			raw = true
		}
		if strings.HasPrefix(m, "Debug: Prepared contact data: ") && strings.Contains(m, `"phone_number","value":"+628123456"`) {
			prepared = true
		}
	}
	if !raw || !prepared {
		t.Errorf("debug entries missing (raw=%v prepared=%v): %v", raw, prepared, h.messages(t))
	}
}
