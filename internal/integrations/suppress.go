// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package integrations

import (
	"time"

	"github.com/tomtom215/contactsync/internal/cache"
)

// DefaultSuppressWindow applies when the configured window is zero.
const DefaultSuppressWindow = 2 * time.Minute

// bookingIntegrations create a user account as part of the booking flow,
// so a registration event right after one of them is the same person.
var bookingIntegrations = map[string]bool{
	NameAmelia:           true,
	NameBookly:           true,
	NameEasyAppointments: true,
	NameWCBookings:       true,
}

func isBooking(name string) bool {
	return bookingIntegrations[name]
}

// maxSuppressRetention bounds how long a booking is remembered. Longer
// windows are clipped to it.
const maxSuppressRetention = 24 * time.Hour

// Suppressor remembers emails recently synced by a booking integration.
// It is purely time based: nothing is looked up remotely. The window is
// passed per lookup so a reloaded setting applies to bookings already seen.
type Suppressor struct {
	seen *cache.LRUCache
	now  func() time.Time
}

// NewSuppressor creates an empty Suppressor.
func NewSuppressor() *Suppressor {
	return &Suppressor{
		seen: cache.NewLRUCache(cache.DefaultCapacity, maxSuppressRetention),
		now:  time.Now,
	}
}

// Mark records a booking sync for email.
func (s *Suppressor) Mark(email string) {
	if email == "" {
		return
	}
	s.seen.Add(email)
}

// Recent reports whether email was marked within window. A non-positive
// window means DefaultSuppressWindow.
func (s *Suppressor) Recent(email string, window time.Duration) bool {
	if email == "" {
		return false
	}
	if window <= 0 {
		window = DefaultSuppressWindow
	}
	markedAt, ok := s.seen.Get(email)
	return ok && !s.now().After(markedAt.Add(window))
}

// SetClock replaces the time source. Used by tests.
func (s *Suppressor) SetClock(now func() time.Time) {
	s.now = now
	s.seen.SetClock(now)
}
