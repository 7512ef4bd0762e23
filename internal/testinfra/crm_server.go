// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package testinfra

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/config"
)

// TestAPIKey is the key MockCRMServer accepts.
const TestAPIKey = "test-api-key"

// Lookup response shapes served by GET /contacts?email=.
const (
	ShapeItems  = "items"
	ShapeDirect = "direct"
	ShapeArray  = "array"
)

// CRMCapture is one captured request.
type CRMCapture struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// JSON decodes the captured body into v; it fails the test on error.
func (c CRMCapture) JSON(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(c.Body, v); err != nil {
		t.Fatalf("failed to decode captured body %q: %v", c.Body, err)
	}
}

// MockField is a stored {slug, value} pair.
type MockField struct {
	Slug  string `json:"slug"`
	Value string `json:"value"`
}

// MockTag is a stored tag.
type MockTag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MockContact is a stored contact.
type MockContact struct {
	ID     int         `json:"id"`
	Email  string      `json:"email"`
	Fields []MockField `json:"fields"`
	Tags   []MockTag   `json:"tags"`
}

// FieldValue returns the stored value of slug.
func (c *MockContact) FieldValue(slug string) string {
	for _, f := range c.Fields {
		if f.Slug == slug {
			return f.Value
		}
	}
	return ""
}

// MockCRMServer is a stateful fake of the CRM REST API.
type MockCRMServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	captures []CRMCapture
	contacts []*MockContact
	tags     []MockTag
	fields   []string
	nextID   int

	// LookupShape selects the contact lookup response shape (default items).
	LookupShape string

	// BareLists serves tag and field lists as bare arrays.
	BareLists bool

	// ResponseFunc, when set, runs first; returning true means the request
	// was fully handled.
	ResponseFunc func(w http.ResponseWriter, r *http.Request) bool
}

// NewMockCRMServer starts a server that is closed with the test.
func NewMockCRMServer(t *testing.T) *MockCRMServer {
	t.Helper()

	m := &MockCRMServer{nextID: 100, LookupShape: ShapeItems}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

// URL returns the API base URL.
func (m *MockCRMServer) URL() string {
	return m.Server.URL
}

// Config returns a CRM configuration pointing at the server with retries
// and the circuit breaker disabled.
func (m *MockCRMServer) Config() *config.CRMConfig {
	return &config.CRMConfig{
		BaseURL:        m.Server.URL,
		APIKey:         TestAPIKey,
		Timeout:        5 * time.Second,
		MaxRetries:     0,
		RetryBaseDelay: 0,
	}
}

// SeedContact stores a contact and returns its id.
func (m *MockCRMServer) SeedContact(email string, fields map[string]string, tagNames ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &MockContact{ID: m.allocID(), Email: email}
	for slug, value := range fields {
		c.Fields = append(c.Fields, MockField{Slug: slug, Value: value})
	}
	for _, name := range tagNames {
		c.Tags = append(c.Tags, m.ensureTag(name))
	}
	m.contacts = append(m.contacts, c)
	return c.ID
}

// SeedTag stores a tag and returns its id.
func (m *MockCRMServer) SeedTag(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureTag(name).ID
}

// SeedField registers a custom field slug.
func (m *MockCRMServer) SeedField(slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields = append(m.fields, slug)
}

// Contact returns a copy of the stored contact for email, or nil.
func (m *MockCRMServer) Contact(email string) *MockContact {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.findByEmail(email); c != nil {
		cp := *c
		cp.Fields = append([]MockField(nil), c.Fields...)
		cp.Tags = append([]MockTag(nil), c.Tags...)
		return &cp
	}
	return nil
}

// HasTag reports whether a tag named name exists.
func (m *MockCRMServer) HasTag(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range m.tags {
		if tag.Name == name {
			return true
		}
	}
	return false
}

// HasField reports whether slug is registered.
func (m *MockCRMServer) HasField(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fields {
		if f == slug {
			return true
		}
	}
	return false
}

// Captures returns a copy of every captured request.
func (m *MockCRMServer) Captures() []CRMCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CRMCapture(nil), m.captures...)
}

// Count returns the number of requests with method and path.
func (m *MockCRMServer) Count(method, path string) int {
	n := 0
	for _, c := range m.Captures() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Calls returns "METHOD /path" for every captured request, in order.
func (m *MockCRMServer) Calls() []string {
	captures := m.Captures()
	out := make([]string, len(captures))
	for i, c := range captures {
		out[i] = c.Method + " " + c.Path
	}
	return out
}

func (m *MockCRMServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	m.mu.Lock()
	m.captures = append(m.captures, CRMCapture{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	m.mu.Unlock()

	if m.ResponseFunc != nil && m.ResponseFunc(w, r) {
		return
	}

	if r.Header.Get("X-API-Key") != TestAPIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}

	segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case len(segments) == 1 && segments[0] == "contacts":
		m.handleContacts(w, r, body)
	case len(segments) == 2 && segments[0] == "contacts":
		m.handleContact(w, r, segments[1], body)
	case len(segments) == 3 && segments[0] == "contacts" && segments[2] == "tags" && r.Method == http.MethodPost:
		m.handleAssignTag(w, segments[1], body)
	case len(segments) == 1 && segments[0] == "tags":
		m.handleTags(w, r, body)
	case len(segments) == 1 && segments[0] == "contact_fields":
		m.handleFields(w, r, body)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func (m *MockCRMServer) handleContacts(w http.ResponseWriter, r *http.Request, body []byte) {
	switch r.Method {
	case http.MethodGet:
		email := r.URL.Query().Get("email")
		if email == "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"items": m.contacts})
			return
		}
		c := m.findByEmail(email)
		switch m.LookupShape {
		case ShapeDirect:
			if c == nil {
				writeJSON(w, http.StatusOK, map[string]interface{}{})
				return
			}
			writeJSON(w, http.StatusOK, c)
		case ShapeArray:
			list := []*MockContact{}
			if c != nil {
				list = append(list, c)
			}
			writeJSON(w, http.StatusOK, list)
		default:
			list := []*MockContact{}
			if c != nil {
				list = append(list, c)
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"items": list})
		}
	case http.MethodPost:
		var payload MockContact
		if err := json.Unmarshal(body, &payload); err != nil || payload.Email == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "email: This value should not be blank."})
			return
		}
		if m.findByEmail(payload.Email) != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "email: This value is already used."})
			return
		}
		c := &MockContact{ID: m.allocID(), Email: payload.Email, Fields: payload.Fields}
		m.contacts = append(m.contacts, c)
		writeJSON(w, http.StatusCreated, c)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockCRMServer) handleContact(w http.ResponseWriter, r *http.Request, rawID string, body []byte) {
	c := m.findByID(rawID)
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Contact not found"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, c)
	case http.MethodPatch:
		if r.Header.Get("Content-Type") != "application/merge-patch+json" {
			writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"message": "Unsupported content type"})
			return
		}
		var payload MockContact
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid JSON"})
			return
		}
		for _, f := range payload.Fields {
			replaced := false
			for i := range c.Fields {
				if c.Fields[i].Slug == f.Slug {
					c.Fields[i].Value = f.Value
					replaced = true
				}
			}
			if !replaced {
				c.Fields = append(c.Fields, f)
			}
		}
		writeJSON(w, http.StatusOK, c)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockCRMServer) handleAssignTag(w http.ResponseWriter, rawID string, body []byte) {
	c := m.findByID(rawID)
	if c == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Contact not found"})
		return
	}
	var payload struct {
		TagID int `json:"tagId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid JSON"})
		return
	}
	for _, tag := range m.tags {
		if tag.ID == payload.TagID {
			c.Tags = append(c.Tags, tag)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Tag not found"})
}

func (m *MockCRMServer) handleTags(w http.ResponseWriter, r *http.Request, body []byte) {
	switch r.Method {
	case http.MethodGet:
		m.writeList(w, m.tags)
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Name == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "name: This value should not be blank."})
			return
		}
		for _, tag := range m.tags {
			if tag.Name == payload.Name {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "name: This value is already used."})
				return
			}
		}
		writeJSON(w, http.StatusCreated, m.ensureTag(payload.Name))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockCRMServer) handleFields(w http.ResponseWriter, r *http.Request, body []byte) {
	switch r.Method {
	case http.MethodGet:
		list := make([]map[string]string, 0, len(m.fields))
		for _, slug := range m.fields {
			list = append(list, map[string]string{"slug": slug, "name": slug, "type": "text"})
		}
		m.writeList(w, list)
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Slug == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "slug: This value should not be blank."})
			return
		}
		for _, slug := range m.fields {
			if slug == payload.Slug {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "slug: This value has already been taken."})
				return
			}
		}
		m.fields = append(m.fields, payload.Slug)
		writeJSON(w, http.StatusCreated, payload)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (m *MockCRMServer) writeList(w http.ResponseWriter, items interface{}) {
	if m.BareLists {
		writeJSON(w, http.StatusOK, items)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// ensureTag must be called with mu held.
func (m *MockCRMServer) ensureTag(name string) MockTag {
	for _, tag := range m.tags {
		if tag.Name == name {
			return tag
		}
	}
	tag := MockTag{ID: m.allocID(), Name: name}
	m.tags = append(m.tags, tag)
	return tag
}

func (m *MockCRMServer) allocID() int {
	m.nextID++
	return m.nextID
}

func (m *MockCRMServer) findByEmail(email string) *MockContact {
	for _, c := range m.contacts {
		if c.Email == email {
			return c
		}
	}
	return nil
}

func (m *MockCRMServer) findByID(raw string) *MockContact {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	for _, c := range m.contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// WriteJSON writes v with status; exported for ResponseFunc overrides.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
