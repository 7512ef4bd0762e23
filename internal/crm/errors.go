// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAPIKeyMissing is returned when a call is attempted without an API key.
var ErrAPIKeyMissing = errors.New("API key not found")

// ValidationError reports input that makes a sync impossible before any
// remote call is made (e.g. a record without an email address).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// TransportError wraps a network-level failure: DNS, connect, timeout,
// cancellation, or a body that could not be read.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteRejection is a non-2xx HTTP answer from the CRM.
type RemoteRejection struct {
	StatusCode int
	Body       string
}

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ConflictError is a RemoteRejection recognized as "the resource already
// exists". Callers treat it as success-equivalent.
type ConflictError struct {
	*RemoteRejection
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.RemoteRejection.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.RemoteRejection
}

// Conflict markers. Tag creation matches case-sensitively on the raw
// message; custom-field creation lowercases first and uses longer phrases.
var (
	tagConflictMarkers   = []string{"already", "duplicate", "taken"}
	fieldConflictMarkers = []string{"already exists", "duplicate", "already been taken"}
)

// IsTagConflict reports whether a failed tag creation means the tag exists.
func IsTagConflict(r Result) bool {
	if r.Success {
		return false
	}
	return containsAny(r.Message, tagConflictMarkers)
}

// IsFieldConflict reports whether a failed custom-field creation means the
// field exists.
func IsFieldConflict(r Result) bool {
	if r.Success {
		return false
	}
	return containsAny(strings.ToLower(r.Message), fieldConflictMarkers)
}

// AsConflict upgrades a rejection into a *ConflictError. It returns r
// unchanged when r carries no RemoteRejection.
func AsConflict(r Result) Result {
	var rej *RemoteRejection
	if errors.As(r.Err, &rej) {
		r.Err = &ConflictError{RemoteRejection: rej}
	}
	return r
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
