// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/contactsync/internal/cache"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/metrics"
)

// RouterConfig holds the worker router's middleware settings.
type RouterConfig struct {
	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// ThrottlePerSecond caps handled messages per second. 0 disables it.
	ThrottlePerSecond int64

	PoisonQueueTopic string

	DeduplicationEnabled bool
	DeduplicationTTL     time.Duration
}

// RouterConfigFrom derives the router settings from the queue config.
func RouterConfigFrom(cfg config.QueueConfig) RouterConfig {
	return RouterConfig{
		CloseTimeout:         cfg.CloseTimeout,
		RetryMaxRetries:      cfg.RetryCount,
		RetryInitialInterval: cfg.RetryInitialInterval,
		RetryMaxInterval:     cfg.RetryMaxInterval,
		RetryMultiplier:      2.0,
		ThrottlePerSecond:    cfg.ThrottlePerSecond,
		PoisonQueueTopic:     cfg.PoisonTopic,
		DeduplicationEnabled: cfg.DeduplicationEnabled,
		DeduplicationTTL:     cfg.DeduplicationTTL,
	}
}

// Deduplicator drops redelivered jobs whose id was seen within the TTL.
type Deduplicator struct {
	cache *cache.LRUCache
}

// NewDeduplicator creates a Deduplicator remembering up to 10000 job ids.
func NewDeduplicator(ttl time.Duration) *Deduplicator {
	return &Deduplicator{cache: cache.NewLRUCache(cache.DefaultCapacity, ttl)}
}

// IsDuplicate implements middleware.ExpiringKeyRepository.
func (d *Deduplicator) IsDuplicate(_ context.Context, key string) (bool, error) {
	dup := d.cache.IsDuplicate(key)
	if dup {
		metrics.QueueJobsDeduplicated.Inc()
	}
	return dup, nil
}

// dedupKey prefers the stable job id; the message UUID changes when a
// journaled job is republished.
func dedupKey(msg *message.Message) (string, error) {
	if id := msg.Metadata.Get(MetadataJobID); id != "" {
		return id, nil
	}
	return msg.UUID, nil
}

// Router wraps the Watermill router with the worker middleware stack.
type Router struct {
	router *message.Router
	config RouterConfig
	logger watermill.LoggerAdapter
	dedup  *Deduplicator
}

// NewRouter builds a router. Middleware runs outermost first:
//
//	Throttle -> Deduplicator -> PoisonQueue -> Retry -> Recoverer -> malformed PoisonQueue -> handler
//
// Deduplication sits outside Retry so retried attempts are not dropped as
// duplicates of themselves. Malformed payloads skip the retries.
func NewRouter(cfg RouterConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = NewLoggerAdapter()
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{router: wmRouter, config: cfg, logger: logger}

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	if cfg.DeduplicationEnabled {
		r.dedup = NewDeduplicator(cfg.DeduplicationTTL)
		dedup := middleware.Deduplicator{
			KeyFactory: dedupKey,
			Repository: r.dedup,
		}
		wmRouter.AddMiddleware(dedup.Middleware)
	}

	poisonEnabled := poisonPublisher != nil && cfg.PoisonQueueTopic != ""
	if poisonEnabled {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(countPoisoned(poisonQueue))
	}

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)
	wmRouter.AddMiddleware(middleware.Recoverer)

	if poisonEnabled {
		malformed, err := middleware.PoisonQueueWithFilter(poisonPublisher, cfg.PoisonQueueTopic, func(err error) bool {
			return errors.Is(err, ErrMalformedJob)
		})
		if err != nil {
			return nil, fmt.Errorf("create malformed job middleware: %w", err)
		}
		wmRouter.AddMiddleware(malformed)
	}

	return r, nil
}

// countPoisoned records a poisoned metric whenever a message leaves the
// stack marked as poisoned, by either poison middleware.
func countPoisoned(poison message.HandlerMiddleware) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		inner := poison(h)
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := inner(msg)
			if err == nil && msg.Metadata.Get(middleware.ReasonForPoisonedKey) != "" {
				metrics.QueueJobsProcessed.WithLabelValues("poisoned").Inc()
			}
			return produced, err
		}
	}
}

// AddConsumerHandler registers a handler that publishes nothing.
func (r *Router) AddConsumerHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler {
	return r.router.AddConsumerHandler(name, topic, subscriber, handler)
}

// Run blocks until ctx is cancelled or the router is closed.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router has started and not closed.
func (r *Router) IsRunning() bool {
	return r.router.IsRunning()
}

// Close stops the router, waiting up to CloseTimeout for handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
