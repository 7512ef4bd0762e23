// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is used when hashing a clear-text admin password at startup.
const bcryptCost = 12

// minPasswordLen applies to clear-text admin passwords.
const minPasswordLen = 8

// ErrInvalidCredentials is returned for a wrong username or password.
var ErrInvalidCredentials = errors.New("invalid username or password")

// BasicAuthManager checks the admin credentials.
type BasicAuthManager struct {
	username     string
	passwordHash []byte
}

// NewBasicAuthManager creates a manager for username. password is either a
// bcrypt hash or clear text, which is hashed once here.
func NewBasicAuthManager(username, password string) (*BasicAuthManager, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	if isBcryptHash(password) {
		if _, err := bcrypt.Cost([]byte(password)); err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
		return &BasicAuthManager{username: username, passwordHash: []byte(password)}, nil
	}

	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return &BasicAuthManager{username: username, passwordHash: hash}, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Username returns the configured admin username.
func (m *BasicAuthManager) Username() string {
	return m.username
}

// ValidateCredentials parses an "Authorization: Basic ..." header value and
// returns the username when the credentials match.
func (m *BasicAuthManager) ValidateCredentials(authHeader string) (string, error) {
	encoded, ok := strings.CutPrefix(authHeader, "Basic ")
	if !ok {
		return "", errors.New("invalid authorization header format")
	}

	credentials, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("failed to decode credentials")
	}

	username, password, ok := strings.Cut(string(credentials), ":")
	if !ok {
		return "", errors.New("invalid credentials format")
	}

	if !m.Verify(username, password) {
		return "", ErrInvalidCredentials
	}
	return username, nil
}

// Verify compares username in constant time and password against the
// bcrypt hash. Both comparisons always run.
func (m *BasicAuthManager) Verify(username, password string) bool {
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(m.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}

// GetWWWAuthenticateHeader returns the challenge sent with 401 responses.
func (m *BasicAuthManager) GetWWWAuthenticateHeader() string {
	return `Basic realm="Contactsync", charset="UTF-8"`
}
