// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/contactsync/config.yaml",
	"/etc/contactsync/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultCRMBaseURL is the systeme.io public API root.
const DefaultCRMBaseURL = "https://api.systeme.io/api"

func defaultConfig() *Config {
	return &Config{
		CRM: CRMConfig{
			BaseURL:               DefaultCRMBaseURL,
			Timeout:               30 * time.Second,
			MaxRetries:            5,
			RetryBaseDelay:        time.Second,
			RateLimitPerSecond:    0,
			RateLimitBurst:        1,
			CircuitBreakerEnabled: true,
		},
		Sync: SyncSettings{
			Enabled:              false,
			DefaultTags:          "",
			Debug:                false,
			UseCustomField:       false,
			CustomFieldSlug:      "products",
			UseBothTagsAndFields: false,
			BackgroundProcessing: false,
			DefaultCountry:       "ID",
		},
		Integrations: IntegrationsConfig{
			UserRegistration: UserRegistrationConfig{
				SuppressWindow: 2 * time.Minute,
			},
		},
		Queue: QueueConfig{
			Backend:              "memory",
			Topic:                "contactsync.sync",
			PoisonTopic:          "contactsync.sync.poison",
			CompletionTopic:      "contactsync.contact.synced",
			RetryCount:           3,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMaxInterval:     30 * time.Second,
			ThrottlePerSecond:    0,
			DeduplicationEnabled: true,
			DeduplicationTTL:     10 * time.Minute,
			CloseTimeout:         30 * time.Second,
			JournalEnabled:       true,
		},
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/contactsync/nats",
			MaxMemory:        256 << 20,
			MaxStore:         1 << 30,
			SubscribersCount: 2,
			DurableName:      "contactsync-worker",
			QueueGroup:       "contactsync",
		},
		Storage: StorageConfig{
			Path:       "/data/contactsync/badger",
			GCInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			AuthMode:        "basic",
			SessionTimeout:  24 * time.Hour,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path; an empty path skips
// the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ConfigFilePath returns the config file Load would use, or "".
func ConfigFilePath() string {
	return findConfigFile()
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are list settings that may arrive as comma-separated
// strings from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.api_tokens",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		items := SplitList(strVal)
		if len(items) == 0 {
			continue
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to config keys.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"crm_base_url":                "crm.base_url",
	"crm_api_key":                 "crm.api_key",
	"systeme_api_key":             "crm.api_key",
	"crm_timeout":                 "crm.timeout",
	"crm_max_retries":             "crm.max_retries",
	"crm_retry_base_delay":        "crm.retry_base_delay",
	"crm_rate_limit":              "crm.rate_limit_per_second",
	"crm_rate_limit_burst":        "crm.rate_limit_burst",
	"crm_circuit_breaker_enabled": "crm.circuit_breaker_enabled",

	"sync_enabled":                  "sync.enabled",
	"sync_default_tags":             "sync.default_tags",
	"sync_debug":                    "sync.debug",
	"sync_use_custom_field":         "sync.use_custom_field",
	"sync_custom_field_slug":        "sync.custom_field_slug",
	"sync_use_both_tags_and_fields": "sync.use_both_tags_and_fields",
	"sync_background":               "sync.background_processing",
	"sync_default_country":          "sync.default_country",

	"integrations_webhook_secret":    "integrations.webhook_secret",
	"enable_amelia":                  "integrations.amelia.enabled",
	"enable_woocommerce":             "integrations.woocommerce.enabled",
	"enable_cf7":                     "integrations.cf7.enabled",
	"enable_gravity_forms":           "integrations.gravity_forms.enabled",
	"enable_bookly":                  "integrations.bookly.enabled",
	"enable_wc_bookings":             "integrations.wc_bookings.enabled",
	"enable_easy_appointments":       "integrations.easy_appointments.enabled",
	"enable_user_registration":       "integrations.user_registration.enabled",
	"user_registration_suppress":     "integrations.user_registration.suppress_after_booking",
	"user_registration_suppress_ttl": "integrations.user_registration.suppress_window",

	"queue_backend":          "queue.backend",
	"queue_topic":            "queue.topic",
	"queue_poison_topic":     "queue.poison_topic",
	"queue_completion_topic": "queue.completion_topic",
	"queue_retry_count":      "queue.retry_count",
	"queue_retry_interval":   "queue.retry_initial_interval",
	"queue_retry_max":        "queue.retry_max_interval",
	"queue_throttle":         "queue.throttle_per_second",
	"queue_dedup_enabled":    "queue.deduplication_enabled",
	"queue_dedup_ttl":        "queue.deduplication_ttl",
	"queue_close_timeout":    "queue.close_timeout",
	"queue_journal_enabled":  "queue.journal_enabled",

	"nats_url":          "nats.url",
	"nats_embedded":     "nats.embedded_server",
	"nats_store_dir":    "nats.store_dir",
	"nats_max_memory":   "nats.max_memory",
	"nats_max_store":    "nats.max_store",
	"nats_subscribers":  "nats.subscribers_count",
	"nats_durable_name": "nats.durable_name",
	"nats_queue_group":  "nats.queue_group",

	"storage_path":        "storage.path",
	"storage_in_memory":   "storage.in_memory",
	"storage_gc_interval": "storage.gc_interval",

	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"auth_mode":           "security.auth_mode",
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"admin_username":      "security.admin_username",
	"admin_password":      "security.admin_password",
	"api_tokens":          "security.api_tokens",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"authz_policy_path":   "security.authz_policy_path",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile invokes callback whenever the file at path changes.
// The caller is responsible for reloading and swapping configuration.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
