// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Error codes.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeUnauthorized    = "AUTHENTICATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeDisabled        = "DISABLED"
	CodeSyncFailed      = "SYNC_FAILED"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodeBadSignature    = "INVALID_SIGNATURE"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is the error member of a failed response.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SyncOutcome is the data member of sync responses.
type SyncOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Queued  bool   `json:"queued,omitempty"`
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	response.Metadata.Timestamp = time.Now().UTC()
	if r != nil {
		response.Metadata.RequestID = logging.RequestIDFromContext(r.Context())
	}

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, r, status, &APIResponse{Status: "success", Data: data})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		event := logging.Error()
		if r != nil {
			event = logging.Ctx(r.Context()).Error()
		}
		event.Str("code", code).Str("error", logging.SanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, r, status, &APIResponse{
		Status: "error",
		Error:  &APIError{Code: code, Message: message},
	})
}

// readBody reads at most maxBodyBytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return body, nil
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON reads and decodes the body into v and validates it. It writes
// the error response itself and reports whether the handler may go on.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := readBody(w, r)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large", nil)
		} else {
			respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Could not read request body", err)
		}
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidJSON, "Request body is not valid JSON", nil)
		return false
	}
	if apiErr := validateRequest(v); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &APIResponse{Status: "error", Error: apiErr})
		return false
	}
	return true
}

// validateRequest validates a struct using go-playground/validator.
func validateRequest(v interface{}) *APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}
