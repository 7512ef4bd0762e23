// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package config loads Contactsync configuration with Koanf v2.
//
// Loading order (later layers override earlier ones):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config file: optional YAML (CONFIG_PATH, config.yaml, /etc/contactsync/config.yaml)
//  3. Environment variables: explicit mapping table in envTransformFunc
//
// The sync settings (the "sync" and "integrations" sections plus the CRM API
// key) can be hot-reloaded from the config file through Store.
package config

import (
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	CRM          CRMConfig          `koanf:"crm"`
	Sync         SyncSettings       `koanf:"sync"`
	Integrations IntegrationsConfig `koanf:"integrations"`
	Queue        QueueConfig        `koanf:"queue"`
	NATS         NATSConfig         `koanf:"nats"`
	Storage      StorageConfig      `koanf:"storage"`
	Server       ServerConfig       `koanf:"server"`
	Security     SecurityConfig     `koanf:"security"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// CRMConfig configures the remote CRM API client.
type CRMConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	APIKey         string        `koanf:"api_key"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries     int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay" validate:"gte=0"`

	// RateLimitPerSecond caps outbound requests; 0 disables the limiter.
	RateLimitPerSecond float64 `koanf:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst     int     `koanf:"rate_limit_burst" validate:"gte=0"`

	CircuitBreakerEnabled bool `koanf:"circuit_breaker_enabled"`
}

// SyncSettings are the operator-facing switches of the sync engine.
type SyncSettings struct {
	Enabled bool `koanf:"enabled"`

	// DefaultTags is a comma-separated list applied to every synced contact.
	DefaultTags string `koanf:"default_tags"`

	Debug bool `koanf:"debug"`

	UseCustomField       bool   `koanf:"use_custom_field"`
	CustomFieldSlug      string `koanf:"custom_field_slug" validate:"required_if=UseCustomField true,omitempty,source_key"`
	UseBothTagsAndFields bool   `koanf:"use_both_tags_and_fields"`

	// CustomFieldMappings maps a source key to a value template such as
	// "{service_name} - {date}".
	CustomFieldMappings map[string]string `koanf:"custom_field_mappings"`

	BackgroundProcessing bool `koanf:"background_processing"`

	// DefaultCountry is used when a record carries no country.
	DefaultCountry string `koanf:"default_country" validate:"omitempty,len=2"`
}

// TagModeActive reports whether tags are assigned on sync.
func (s SyncSettings) TagModeActive() bool {
	return !s.UseCustomField || s.UseBothTagsAndFields
}

// CustomFieldModeActive reports whether the custom field is written on sync.
func (s SyncSettings) CustomFieldModeActive() bool {
	return s.UseCustomField
}

// DefaultTagList splits DefaultTags on commas, trimming and dropping empties.
func (s SyncSettings) DefaultTagList() []string {
	return SplitList(s.DefaultTags)
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty items.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IntegrationConfig toggles one event-source adapter.
type IntegrationConfig struct {
	Enabled bool `koanf:"enabled"`
}

// UserRegistrationConfig adds booking-flow suppression to the registration adapter.
type UserRegistrationConfig struct {
	Enabled bool `koanf:"enabled"`

	// SuppressAfterBooking skips a registration whose email was synced by a
	// booking adapter within SuppressWindow.
	SuppressAfterBooking bool          `koanf:"suppress_after_booking"`
	SuppressWindow       time.Duration `koanf:"suppress_window" validate:"gte=0"`
}

// IntegrationsConfig holds the per-adapter enable flags.
type IntegrationsConfig struct {
	// WebhookSecret, when set, requires an HMAC-SHA256 signature on inbound
	// integration webhooks instead of caller authentication.
	WebhookSecret string `koanf:"webhook_secret"`

	Amelia           IntegrationConfig      `koanf:"amelia"`
	WooCommerce      IntegrationConfig      `koanf:"woocommerce"`
	CF7              IntegrationConfig      `koanf:"cf7"`
	GravityForms     IntegrationConfig      `koanf:"gravity_forms"`
	Bookly           IntegrationConfig      `koanf:"bookly"`
	WCBookings       IntegrationConfig      `koanf:"wc_bookings"`
	EasyAppointments IntegrationConfig      `koanf:"easy_appointments"`
	UserRegistration UserRegistrationConfig `koanf:"user_registration"`
}

// IsEnabled reports the enable flag of the named integration. Unknown names
// are disabled.
func (c IntegrationsConfig) IsEnabled(name string) bool {
	switch name {
	case "amelia":
		return c.Amelia.Enabled
	case "woocommerce":
		return c.WooCommerce.Enabled
	case "cf7":
		return c.CF7.Enabled
	case "gravity_forms":
		return c.GravityForms.Enabled
	case "bookly":
		return c.Bookly.Enabled
	case "wc_bookings":
		return c.WCBookings.Enabled
	case "easy_appointments":
		return c.EasyAppointments.Enabled
	case "user_registration":
		return c.UserRegistration.Enabled
	default:
		return false
	}
}

// QueueConfig configures the background task queue.
type QueueConfig struct {
	// Backend selects the pub/sub transport: memory (Watermill gochannel) or nats.
	Backend string `koanf:"backend" validate:"oneof=memory nats"`

	Topic           string `koanf:"topic" validate:"required"`
	PoisonTopic     string `koanf:"poison_topic"`
	CompletionTopic string `koanf:"completion_topic"`

	RetryCount           int           `koanf:"retry_count" validate:"gte=0"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval" validate:"gte=0"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval" validate:"gte=0"`
	ThrottlePerSecond    int64         `koanf:"throttle_per_second" validate:"gte=0"`

	DeduplicationEnabled bool          `koanf:"deduplication_enabled"`
	DeduplicationTTL     time.Duration `koanf:"deduplication_ttl" validate:"gte=0"`

	CloseTimeout time.Duration `koanf:"close_timeout" validate:"gte=0"`

	// JournalEnabled persists every job in the Badger journal until it is
	// processed, so queued work survives a restart.
	JournalEnabled bool `koanf:"journal_enabled"`
}

// NATSConfig configures the NATS JetStream queue backend.
type NATSConfig struct {
	URL              string `koanf:"url"`
	EmbeddedServer   bool   `koanf:"embedded_server"`
	StoreDir         string `koanf:"store_dir"`
	MaxMemory        int64  `koanf:"max_memory" validate:"gte=0"`
	MaxStore         int64  `koanf:"max_store" validate:"gte=0"`
	SubscribersCount int    `koanf:"subscribers_count" validate:"gte=1"`
	DurableName      string `koanf:"durable_name"`
	QueueGroup       string `koanf:"queue_group"`
}

// StorageConfig configures the Badger store shared by the job journal and
// the activity log.
type StorageConfig struct {
	Path string `koanf:"path"`

	// InMemory keeps Badger in memory (tests and ephemeral deployments).
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often the value log is garbage collected.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Environment string        `koanf:"environment" validate:"oneof=development production"`
}

// SecurityConfig configures authentication for the HTTP surface.
type SecurityConfig struct {
	// AuthMode: none, basic or jwt.
	AuthMode       string        `koanf:"auth_mode" validate:"oneof=none basic jwt"`
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout" validate:"gt=0"`
	AdminUsername  string        `koanf:"admin_username"`
	AdminPassword  string        `koanf:"admin_password"`

	// APITokens authorize machine callers of the sync endpoint.
	APITokens []string `koanf:"api_tokens"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// AuthzPolicyPath is a Casbin policy CSV replacing the built-in role
	// policy. Empty uses the built-in one.
	AuthzPolicyPath string `koanf:"authz_policy_path"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
