// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

//go:build !nats

package queue

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/tomtom215/contactsync/internal/config"
)

// ErrNATSNotCompiled is returned when the nats backend is configured in a
// binary built without the nats tag.
var ErrNATSNotCompiled = errors.New("nats queue backend requires building with -tags nats")

func newNATSBackend(_ *config.Config, _ watermill.LoggerAdapter) (*backend, error) {
	return nil, ErrNATSNotCompiled
}
