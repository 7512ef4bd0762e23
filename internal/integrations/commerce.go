// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package integrations

import (
	"context"
	"strings"

	"github.com/goccy/go-json"
)

// Integration names.
const (
	NameWooCommerce      = "woocommerce"
	NameCF7              = "cf7"
	NameGravityForms     = "gravity_forms"
	NameAmelia           = "amelia"
	NameBookly           = "bookly"
	NameEasyAppointments = "easy_appointments"
	NameWCBookings       = "wc_bookings"
	NameUserRegistration = "user_registration"
)

// billing is the WooCommerce order billing block.
type billing struct {
	Email     Text `json:"email"`
	FirstName Text `json:"first_name"`
	LastName  Text `json:"last_name"`
	Phone     Text `json:"phone"`
	Country   Text `json:"country"`
}

func (b billing) apply(rb *builder) {
	rb.set("email", b.Email).
		set("firstName", b.FirstName).
		set("lastName", b.LastName).
		set("phone", b.Phone).
		set("country", b.Country)
}

// WooCommerce handles order.created webhooks.
type WooCommerce struct{}

// Name implements Adapter.
func (WooCommerce) Name() string { return NameWooCommerce }

type wooOrder struct {
	Billing   billing `json:"billing"`
	LineItems []named `json:"line_items"`
}

// Events implements Adapter. Item names are joined into the product.
func (WooCommerce) Events(_ context.Context, body []byte) ([]Event, error) {
	var order wooOrder
	if err := json.Unmarshal(body, &order); err != nil {
		return nil, malformed(NameWooCommerce, err)
	}

	b := newBuilder()
	order.Billing.apply(b)

	products := make([]string, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		if name := item.Name.String(); name != "" {
			products = append(products, name)
		}
	}
	if len(products) > 0 {
		b.set("product", Text(strings.Join(products, ", ")))
	}

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("woocommerce", "WooCommerce Customer")}, nil
}

// WCBookings handles WooCommerce Bookings confirmations. The order billing
// block wins; the booking customer's account is the fallback.
type WCBookings struct{}

// Name implements Adapter.
func (WCBookings) Name() string { return NameWCBookings }

type wcBooking struct {
	Order *struct {
		Billing billing `json:"billing"`
	} `json:"order"`
	Customer *struct {
		Email          Text `json:"email"`
		FirstName      Text `json:"first_name"`
		LastName       Text `json:"last_name"`
		DisplayName    Text `json:"display_name"`
		BillingPhone   Text `json:"billing_phone"`
		BillingCountry Text `json:"billing_country"`
	} `json:"customer"`
	Product *named `json:"product"`
}

// Events implements Adapter.
func (WCBookings) Events(_ context.Context, body []byte) ([]Event, error) {
	var booking wcBooking
	if err := json.Unmarshal(body, &booking); err != nil {
		return nil, malformed(NameWCBookings, err)
	}

	b := newBuilder()
	if booking.Order != nil {
		booking.Order.Billing.apply(b)
	}
	if !b.hasEmail() && booking.Customer != nil {
		c := booking.Customer
		b = newBuilder()
		first := c.FirstName
		if first.String() == "" {
			first = c.DisplayName
		}
		b.set("email", c.Email).
			set("firstName", first).
			set("lastName", c.LastName).
			set("phone", c.BillingPhone).
			set("country", c.BillingCountry)
	}
	if booking.Product != nil {
		b.set("product", booking.Product.Name)
	}

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("wc_bookings", "WooCommerce Booking")}, nil
}

// UserRegistration handles new site accounts.
type UserRegistration struct{}

// Name implements Adapter.
func (UserRegistration) Name() string { return NameUserRegistration }

type registeredUser struct {
	UserEmail      Text `json:"user_email"`
	Email          Text `json:"email"`
	FirstName      Text `json:"first_name"`
	LastName       Text `json:"last_name"`
	DisplayName    Text `json:"display_name"`
	Phone          Text `json:"phone"`
	BillingPhone   Text `json:"billing_phone"`
	BillingCountry Text `json:"billing_country"`
}

// Events implements Adapter. The display name stands in for a missing
// first name and the billing phone for a missing phone.
func (UserRegistration) Events(_ context.Context, body []byte) ([]Event, error) {
	var u registeredUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, malformed(NameUserRegistration, err)
	}

	email := u.UserEmail
	if email.String() == "" {
		email = u.Email
	}
	first := u.FirstName
	if first.String() == "" {
		first = u.DisplayName
	}
	phone := u.Phone
	if phone.String() == "" {
		phone = u.BillingPhone
	}

	b := newBuilder().
		set("email", email).
		set("firstName", first).
		set("lastName", u.LastName).
		set("phone", phone).
		set("country", u.BillingCountry)

	if !b.hasEmail() {
		return nil, nil
	}
	return []Event{b.event("user_registration", "WordPress User")}, nil
}
