// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package crm

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// BreakerName labels the CRM breaker in metrics and logs.
const BreakerName = "crm-api"

// errRemoteUnavailable marks a 5xx answer as a breaker failure.
var errRemoteUnavailable = errors.New("CRM answered with a server error")

// CircuitBreakerClient wraps a Doer with a circuit breaker.
//
// Only transport failures and 5xx answers count as failures. A 4xx answer
// (validation, conflict, missing contact) is a domain answer from a healthy
// CRM and passes through as a success for the breaker.
//
// Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
type CircuitBreakerClient struct {
	next Doer
	cb   *gobreaker.CircuitBreaker[Result]
	name string
}

// NewCircuitBreakerClient wraps next.
func NewCircuitBreakerClient(next Doer) *CircuitBreakerClient {
	name := BreakerName

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}

			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6

			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}

			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()

			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{next: next, cb: cb, name: name}
}

// Do forwards the request unless the circuit is open. A rejected request
// returns a failed Result whose Err wraps gobreaker.ErrOpenState or
// gobreaker.ErrTooManyRequests.
func (c *CircuitBreakerClient) Do(ctx context.Context, method, path string, body interface{}) Result {
	result, err := c.cb.Execute(func() (Result, error) {
		r := c.next.Do(ctx, method, path, body)
		return r, breakerFailure(r)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
			logging.Warn().Err(err).Str("path", path).Msg("[CIRCUIT BREAKER] Request rejected")
			return failure(&TransportError{Method: method, Path: path, Err: err})
		}

		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		counts := c.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(float64(counts.ConsecutiveFailures))
		return result
	}

	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(c.name).Set(0)
	return result
}

// State returns the current breaker state as a string.
func (c *CircuitBreakerClient) State() string {
	return stateToString(c.cb.State())
}

func breakerFailure(r Result) error {
	var transport *TransportError
	if errors.As(r.Err, &transport) {
		return transport
	}
	if r.StatusCode >= 500 {
		return errRemoteUnavailable
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
