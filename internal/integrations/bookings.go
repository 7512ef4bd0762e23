// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package integrations

import (
	"context"

	"github.com/goccy/go-json"
)

// Amelia handles Amelia appointment and event bookings.
//
// An appointment payload lists its bookings; every booking customer is
// synced with the appointment's service or event name. A single booking
// payload carries one customer; type "event" marks an event booking.
type Amelia struct{}

// Name implements Adapter.
func (Amelia) Name() string { return NameAmelia }

type ameliaCustomer struct {
	Email           Text `json:"email"`
	FirstName       Text `json:"firstName"`
	LastName        Text `json:"lastName"`
	Phone           Text `json:"phone"`
	PhoneNumber     Text `json:"phoneNumber"`
	CountryPhoneIso Text `json:"countryPhoneIso"`
}

type ameliaBooking struct {
	Customer *ameliaCustomer `json:"customer"`
}

type ameliaPayload struct {
	Type     Text            `json:"type"`
	Bookings []ameliaBooking `json:"bookings"`
	Customer *ameliaCustomer `json:"customer"`
	Service  *named          `json:"service"`
	Event    *named          `json:"event"`
}

// Events implements Adapter.
func (Amelia) Events(_ context.Context, body []byte) ([]Event, error) {
	var p ameliaPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed(NameAmelia, err)
	}

	var events []Event
	if len(p.Bookings) > 0 {
		for _, booking := range p.Bookings {
			if booking.Customer == nil {
				continue
			}
			if b := p.record(booking.Customer); b.hasEmail() {
				events = append(events, b.event("amelia_appointment", "Amelia Customer"))
			}
		}
		return events, nil
	}

	if p.Customer == nil {
		return nil, nil
	}
	b := p.record(p.Customer)
	if !b.hasEmail() {
		return nil, nil
	}
	if p.Type.String() == "event" {
		return []Event{b.event("amelia_event", "Amelia Event")}, nil
	}
	return []Event{b.event("amelia_appointment", "Amelia Customer")}, nil
}

func (p ameliaPayload) record(c *ameliaCustomer) *builder {
	phone := c.Phone
	if phone.String() == "" {
		phone = c.PhoneNumber
	}
	b := newBuilder().
		set("email", c.Email).
		set("firstName", c.FirstName).
		set("lastName", c.LastName).
		set("phone", phone).
		set("country", c.CountryPhoneIso)
	if p.Service != nil {
		b.set("service", p.Service.Name)
	}
	if p.Event != nil {
		b.set("event", p.Event.Name)
	}
	return b
}

// Bookly handles Bookly appointments (customer_* fields) and new Bookly
// customers (plain fields).
type Bookly struct{}

// Name implements Adapter.
func (Bookly) Name() string { return NameBookly }

type booklyPayload struct {
	CustomerEmail Text `json:"customer_email"`
	CustomerName  Text `json:"customer_name"`
	CustomerPhone Text `json:"customer_phone"`
	ServiceName   Text `json:"service_name"`

	Email     Text `json:"email"`
	FirstName Text `json:"first_name"`
	LastName  Text `json:"last_name"`
	Phone     Text `json:"phone"`
}

// Events implements Adapter.
func (Bookly) Events(_ context.Context, body []byte) ([]Event, error) {
	var p booklyPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed(NameBookly, err)
	}

	b := newBuilder()
	if p.CustomerEmail.String() != "" {
		b.set("email", p.CustomerEmail).
			fullName(p.CustomerName).
			set("phone", p.CustomerPhone).
			set("service", p.ServiceName)
	} else {
		b.set("email", p.Email).
			set("firstName", p.FirstName).
			set("lastName", p.LastName).
			set("phone", p.Phone).
			set("service", p.ServiceName)
	}

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("bookly", "Bookly Customer")}, nil
}

// EasyAppointments handles Easy Appointments bookings, with the customer
// either nested or inline.
type EasyAppointments struct{}

// Name implements Adapter.
func (EasyAppointments) Name() string { return NameEasyAppointments }

type easyAppointmentsPayload struct {
	Customer *struct {
		Email       Text `json:"email"`
		FirstName   Text `json:"first_name"`
		LastName    Text `json:"last_name"`
		PhoneNumber Text `json:"phone_number"`
	} `json:"customer"`

	Email Text `json:"email"`
	Name  Text `json:"name"`
	Phone Text `json:"phone"`

	Service     *named `json:"service"`
	ServiceName Text   `json:"service_name"`
}

// Events implements Adapter.
func (EasyAppointments) Events(_ context.Context, body []byte) ([]Event, error) {
	var p easyAppointmentsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed(NameEasyAppointments, err)
	}

	b := newBuilder()
	if c := p.Customer; c != nil {
		b.set("email", c.Email).
			set("firstName", c.FirstName).
			set("lastName", c.LastName).
			set("phone", c.PhoneNumber)
	} else {
		b.set("email", p.Email).
			fullName(p.Name).
			set("phone", p.Phone)
	}

	if p.Service != nil && p.Service.Name.String() != "" {
		b.set("service", p.Service.Name)
	} else {
		b.set("service", p.ServiceName)
	}

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("easy_appointments", "Easy Appointments Customer")}, nil
}
