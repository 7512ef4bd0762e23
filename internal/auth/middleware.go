// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
)

// AuthMode selects how admin requests are authenticated.
type AuthMode string

// Supported modes.
const (
	AuthModeNone  AuthMode = "none"
	AuthModeBasic AuthMode = "basic"
	AuthModeJWT   AuthMode = "jwt"
)

// Roles carried in Claims.
const (
	RoleAdmin = "admin"
	RoleAPI   = "api"
)

// HeaderAPIToken carries a static API token.
const HeaderAPIToken = "X-API-Token"

type contextKey string

// ClaimsContextKey is the context key of the authenticated *Claims.
const ClaimsContextKey contextKey = "claims"

// ErrLoginUnavailable is returned by Login outside jwt mode.
var ErrLoginUnavailable = errors.New("token login requires auth mode jwt")

// Middleware enforces authentication on the HTTP routes.
type Middleware struct {
	mode      AuthMode
	jwt       *JWTManager
	basic     *BasicAuthManager
	apiTokens [][]byte
}

// NewMiddleware builds the managers the configured mode needs.
func NewMiddleware(cfg config.SecurityConfig) (*Middleware, error) {
	m := &Middleware{mode: AuthMode(cfg.AuthMode)}
	if m.mode == "" {
		m.mode = AuthModeNone
	}

	for _, token := range cfg.APITokens {
		if token = strings.TrimSpace(token); token != "" {
			m.apiTokens = append(m.apiTokens, []byte(token))
		}
	}

	switch m.mode {
	case AuthModeNone:
		return m, nil
	case AuthModeBasic, AuthModeJWT:
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.AuthMode)
	}

	basic, err := NewBasicAuthManager(cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin credentials: %w", err)
	}
	m.basic = basic

	if m.mode == AuthModeJWT {
		jwtManager, err := NewJWTManager(&cfg)
		if err != nil {
			return nil, err
		}
		m.jwt = jwtManager
	}
	return m, nil
}

// Mode returns the active mode.
func (m *Middleware) Mode() AuthMode {
	return m.mode
}

// Login exchanges admin credentials for a JWT.
func (m *Middleware) Login(username, password string) (string, time.Time, error) {
	if m.jwt == nil {
		return "", time.Time{}, ErrLoginUnavailable
	}
	if !m.basic.Verify(username, password) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.jwt.GenerateToken(username, RoleAdmin)
}

// RequireAdmin admits requests carrying admin credentials.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authenticate(r)
		if err != nil {
			m.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
	})
}

// RequireSyncCaller admits requests with a configured API token, falling
// back to admin authentication. Without configured tokens in mode none
// every request is admitted.
func (m *Middleware) RequireSyncCaller(next http.Handler) http.Handler {
	admin := m.RequireAdmin(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.Header.Get(HeaderAPIToken); token != "" {
			if !m.validAPIToken(token) {
				logging.Ctx(r.Context()).Warn().Str("token", logging.SanitizeToken(token)).Msg("rejected api token")
				http.Error(w, "Unauthorized: invalid api token", http.StatusUnauthorized)
				return
			}
			claims := &Claims{Username: "api", Role: RoleAPI}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ClaimsContextKey, claims)))
			return
		}
		admin.ServeHTTP(w, r)
	})
}

func (m *Middleware) validAPIToken(token string) bool {
	match := 0
	for _, want := range m.apiTokens {
		match |= subtle.ConstantTimeCompare([]byte(token), want)
	}
	return match == 1
}

var errMissingCredentials = errors.New("authentication required")

func (m *Middleware) authenticate(r *http.Request) (*Claims, error) {
	if m.mode == AuthModeNone {
		return &Claims{Username: "anonymous", Role: RoleAdmin}, nil
	}

	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Basic "):
		username, err := m.basic.ValidateCredentials(header)
		if err != nil {
			return nil, err
		}
		return &Claims{Username: username, Role: RoleAdmin}, nil

	case strings.HasPrefix(header, "Bearer ") && m.jwt != nil:
		return m.validateJWT(strings.TrimPrefix(header, "Bearer "))

	case header == "" && m.jwt != nil:
		cookie, err := r.Cookie("token")
		if err != nil {
			return nil, errMissingCredentials
		}
		return m.validateJWT(cookie.Value)
	}
	return nil, errMissingCredentials
}

func (m *Middleware) validateJWT(token string) (*Claims, error) {
	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("role %q is not admin", claims.Role)
	}
	return claims, nil
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, err error) {
	message := "Unauthorized: authentication required"
	if !errors.Is(err, errMissingCredentials) {
		logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
		message = "Unauthorized: invalid credentials"
	}
	if m.basic != nil {
		w.Header().Set("WWW-Authenticate", m.basic.GetWWWAuthenticateHeader())
	}
	http.Error(w, message, http.StatusUnauthorized)
}

// ClaimsFromContext returns the authenticated caller, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}
