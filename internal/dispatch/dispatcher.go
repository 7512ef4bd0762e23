// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

// Package dispatch is the entry point event sources call to sync a
// customer. It decides whether sync is enabled, lets registered transforms
// adjust the payload, and either runs the upsert inline or schedules it on
// the task queue.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/contactsync/internal/activitylog"
	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
	"github.com/tomtom215/contactsync/internal/queue"
)

// DefaultSource is used when a caller passes an empty source key.
const DefaultSource = "unknown"

// DefaultJobName is the queue topic used when none is configured.
const DefaultJobName = "contactsync.sync"

// Syncer runs one upsert; *upsert.Engine implements it.
type Syncer interface {
	Sync(ctx context.Context, record contact.Record, source string, additionalTags []string) bool
}

// SettingsSource supplies the live sync settings.
type SettingsSource interface {
	Settings() config.SyncSettings
}

// Enqueuer schedules deferred work; *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobName string, payload interface{}) error
}

// Payload is what transforms see and may rewrite.
type Payload struct {
	Record contact.Record
	Source string
	Tags   []string
}

// Transform adjusts a payload before it is synced or queued.
type Transform func(ctx context.Context, p *Payload)

// Dispatcher routes sync requests to the engine or the queue.
type Dispatcher struct {
	engine     Syncer
	settings   SettingsSource
	enqueuer   Enqueuer
	log        *activitylog.Logger
	transforms []Transform
	jobName    string
	now        func() time.Time
	newID      func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEnqueuer enables background processing through q.
func WithEnqueuer(q Enqueuer) Option {
	return func(d *Dispatcher) { d.enqueuer = q }
}

// WithTransforms appends payload transforms, run in order.
func WithTransforms(t ...Transform) Option {
	return func(d *Dispatcher) { d.transforms = append(d.transforms, t...) }
}

// WithJobName sets the queue topic for background jobs.
func WithJobName(name string) Option {
	return func(d *Dispatcher) {
		if name != "" {
			d.jobName = name
		}
	}
}

// WithClock replaces the clock stamped on queued jobs.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(engine Syncer, settings SettingsSource, log *activitylog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:   engine,
		settings: settings,
		log:      log,
		jobName:  DefaultJobName,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Use appends a transform. It is not safe to call concurrently with
// Dispatch.
func (d *Dispatcher) Use(t Transform) {
	d.transforms = append(d.transforms, t)
}

// Dispatch syncs record, inline or in the background depending on the
// settings. It reports whether the sync succeeded or, in background mode,
// was scheduled. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, record contact.Record, source string, tags []string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf(ctx, "Unexpected failure while syncing from %s - %v", source, r)
			metrics.DispatchTotal.WithLabelValues("panic").Inc()
			ok = false
		}
	}()

	settings := d.settings.Settings()
	if !settings.Enabled {
		metrics.DispatchTotal.WithLabelValues("disabled").Inc()
		return false
	}

	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}

	if source == "" {
		source = DefaultSource
	}
	p := &Payload{Record: record.Clone(), Source: source, Tags: append([]string(nil), tags...)}
	if p.Record == nil {
		p.Record = contact.Record{}
	}
	for _, t := range d.transforms {
		t(ctx, p)
	}

	if settings.BackgroundProcessing && d.enqueuer != nil {
		return d.schedule(ctx, p)
	}

	metrics.DispatchTotal.WithLabelValues("direct").Inc()
	return d.engine.Sync(ctx, p.Record, p.Source, p.Tags)
}

func (d *Dispatcher) schedule(ctx context.Context, p *Payload) bool {
	job := queue.SyncJob{
		ID:         d.newID(),
		Record:     p.Record,
		Source:     p.Source,
		Tags:       p.Tags,
		EnqueuedAt: d.now().UTC(),
	}
	email := p.Record.Get("email")

	if err := d.enqueuer.Enqueue(ctx, d.jobName, job); err != nil {
		metrics.DispatchTotal.WithLabelValues("enqueue_failed").Inc()
		d.log.Errorf(ctx, "Failed to schedule background sync for %s - %v", email, err)
		return false
	}

	metrics.DispatchTotal.WithLabelValues("queued").Inc()
	d.log.Infof(ctx, "Scheduled background sync for %s", email)
	return true
}

// SyncCustomer is an alias of Dispatch used by booking and checkout sources.
func (d *Dispatcher) SyncCustomer(ctx context.Context, record contact.Record, source string, tags []string) bool {
	return d.Dispatch(ctx, record, source, tags)
}

// SyncContact is an alias of Dispatch used by form sources.
func (d *Dispatcher) SyncContact(ctx context.Context, record contact.Record, source string, tags []string) bool {
	return d.Dispatch(ctx, record, source, tags)
}

// UniversalSync is an alias of Dispatch for sources without an adapter.
func (d *Dispatcher) UniversalSync(ctx context.Context, record contact.Record, source string, tags []string) bool {
	return d.Dispatch(ctx, record, source, tags)
}

// ProcessJob runs a job taken off the queue. The enabled switch is not
// consulted: a job queued while sync was enabled still runs.
func (d *Dispatcher) ProcessJob(ctx context.Context, job queue.SyncJob) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf(ctx, "Unexpected failure in background sync from %s - %v", job.Source, r)
			ok = false
		}
	}()
	return d.engine.Sync(ctx, job.Record, job.Source, job.Tags)
}
