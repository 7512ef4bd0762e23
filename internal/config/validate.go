// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/contactsync/internal/validation"
)

// minJWTSecretLength matches the HS256 key size.
const minJWTSecretLength = 32

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateStorage()
}

func (c *Config) validateSecurity() error {
	switch c.Security.AuthMode {
	case "basic":
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required when AUTH_MODE=basic")
		}
	case "jwt":
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required when AUTH_MODE=jwt")
		}
		if len(c.Security.JWTSecret) < minJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
		}
	case "none":
		if c.Server.Environment == "production" {
			return errors.New("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
		}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return errors.New("STORAGE_PATH is required unless STORAGE_IN_MEMORY=true")
	}
	if c.Queue.Backend == "nats" && !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return errors.New("NATS_URL is required for the nats queue backend without an embedded server")
	}
	return nil
}
