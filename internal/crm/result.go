// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Result is the uniform outcome of every CRM call. Failures never surface
// as a panic or a bare error: Success is false, Message carries the
// operator-readable reason and Err the typed cause (*TransportError,
// *RemoteRejection, *ConflictError or *ValidationError).
type Result struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	Err        error           `json:"-"`
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode CRM response: %w", err)
	}
	return nil
}

func failure(err error) Result {
	return Result{Success: false, Message: err.Error(), Err: err}
}
