// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

/*
Package queue is the deferred task queue behind background syncs.

Jobs are JSON encoded, written to the Badger journal and then published to
a Watermill topic. A Worker consumes the topic through a Router carrying
throttle, deduplication, retry, recovery and poison-queue middleware, runs
the job and confirms the journal entry. Entries that were never confirmed
(the process died mid-flight) are republished by RecoverPending at the next
start, which gives at-least-once delivery across restarts.

Two transports are available: an in-process GoChannel (default) and NATS
JetStream, compiled in with the nats build tag.
*/
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
	"github.com/tomtom215/contactsync/internal/upsert"
	"github.com/tomtom215/contactsync/internal/wal"
)

// Queue publishes jobs and owns the worker router.
type Queue struct {
	cfg     config.QueueConfig
	backend *backend
	router  *Router
	journal *wal.Journal
	logger  watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// New creates a queue on the configured backend. journal may be nil, in
// which case jobs are not persisted before publishing.
func New(cfg *config.Config, journal *wal.Journal) (*Queue, error) {
	logger := NewLoggerAdapter()

	b, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	router, err := NewRouter(RouterConfigFrom(cfg.Queue), b.publisher, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	if !cfg.Queue.JournalEnabled {
		journal = nil
	}

	return &Queue{
		cfg:     cfg.Queue,
		backend: b,
		router:  router,
		journal: journal,
		logger:  logger,
	}, nil
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Enqueue journals payload and publishes it to the topic jobName. It
// returns once the message is handed to the transport.
func (q *Queue) Enqueue(ctx context.Context, jobName string, payload interface{}) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	env := envelope{Topic: jobName, JobID: jobID(payload), Payload: data}
	if env.JobID == "" {
		env.JobID = uuid.New().String()
	}

	var journalID string
	if q.journal != nil {
		journalID, err = q.journal.Write(ctx, env)
		if err != nil {
			return fmt.Errorf("journal job: %w", err)
		}
	}

	if err := q.publish(ctx, env, journalID); err != nil {
		return err
	}

	metrics.QueueJobsEnqueued.WithLabelValues(jobName).Inc()
	return nil
}

func (q *Queue) publish(ctx context.Context, env envelope, journalID string) error {
	msg := message.NewMessage(uuid.New().String(), message.Payload(env.Payload))
	msg.Metadata.Set(MetadataJobID, env.JobID)
	if journalID != "" {
		msg.Metadata.Set(MetadataJournalID, journalID)
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		middleware.SetCorrelationID(id, msg)
	}

	if err := q.backend.publisher.Publish(env.Topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", env.Topic, err)
	}
	return nil
}

// RecoverPending republishes journal entries left unconfirmed by a previous
// run. Call it after the worker is running.
func (q *Queue) RecoverPending(ctx context.Context) (*wal.RecoveryResult, error) {
	if q.journal == nil {
		return &wal.RecoveryResult{}, nil
	}
	return q.journal.RecoverPending(ctx, wal.PublisherFunc(func(ctx context.Context, entry *wal.Entry) error {
		var env envelope
		if err := entry.UnmarshalPayload(&env); err != nil {
			return fmt.Errorf("decode journal entry: %w", err)
		}
		return q.publish(ctx, env, entry.ID)
	}))
}

// PublishCompletion announces a successful upsert on the completion topic.
func (q *Queue) PublishCompletion(ctx context.Context, event upsert.CompletionEvent) error {
	if q.cfg.CompletionTopic == "" {
		return nil
	}
	if q.isClosed() {
		return ErrQueueClosed
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal completion event: %w", err)
	}
	msg := message.NewMessage(uuid.New().String(), data)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		middleware.SetCorrelationID(id, msg)
	}
	if err := q.backend.publisher.Publish(q.cfg.CompletionTopic, msg); err != nil {
		return fmt.Errorf("publish completion event: %w", err)
	}
	return nil
}

// CompletionHook adapts PublishCompletion to the upsert engine's hook.
func (q *Queue) CompletionHook() upsert.CompletionHook {
	return func(ctx context.Context, event upsert.CompletionEvent) {
		if err := q.PublishCompletion(ctx, event); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("email", logging.SanitizeEmail(event.Email)).
				Msg("failed to publish completion event")
		}
	}
}

// Subscribe exposes the transport's subscriber, e.g. for the completion or
// poison topics.
func (q *Queue) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return q.backend.subscriber.Subscribe(ctx, topic)
}

// Topic returns the sync job topic.
func (q *Queue) Topic() string {
	return q.cfg.Topic
}

// Run blocks running the worker router until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	return q.router.Run(ctx)
}

// Running is closed once every registered handler is subscribed.
func (q *Queue) Running() chan struct{} {
	return q.router.Running()
}

// IsRunning reports whether the worker router is up.
func (q *Queue) IsRunning() bool {
	return q.router.IsRunning()
}

// Close stops the router and the transport. Further Enqueue calls fail
// with ErrQueueClosed.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	routerErr := q.router.Close()
	backendErr := q.backend.Close()
	if routerErr != nil {
		return fmt.Errorf("close router: %w", routerErr)
	}
	return backendErr
}
