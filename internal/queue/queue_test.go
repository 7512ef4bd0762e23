// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/contact"
	"github.com/tomtom215/contactsync/internal/crm"
	"github.com/tomtom215/contactsync/internal/upsert"
	"github.com/tomtom215/contactsync/internal/wal"
)

const waitTimeout = 5 * time.Second

func testConfig() *config.Config {
	return &config.Config{
		Queue: config.QueueConfig{
			Backend:              BackendMemory,
			Topic:                "contactsync.sync",
			PoisonTopic:          "contactsync.sync.poison",
			CompletionTopic:      "contactsync.contact.synced",
			RetryCount:           1,
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     10 * time.Millisecond,
			DeduplicationEnabled: true,
			DeduplicationTTL:     time.Minute,
			CloseTimeout:         time.Second,
			JournalEnabled:       true,
		},
	}
}

// recorder is a JobProcessor that remembers every job it ran.
type recorder struct {
	mu     sync.Mutex
	jobs   []SyncJob
	result bool
	seen   chan SyncJob
}

func newRecorder(result bool) *recorder {
	return &recorder{result: result, seen: make(chan SyncJob, 16)}
}

func (r *recorder) ProcessJob(_ context.Context, job SyncJob) bool {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	r.seen <- job
	return r.result
}

func (r *recorder) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if j.ID == id {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *recorder) wait(t *testing.T, id string) SyncJob {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case job := <-r.seen:
			if job.ID == id {
				return job
			}
		case <-deadline:
			t.Fatalf("job %s was not processed", id)
			return SyncJob{}
		}
	}
}

// waitCount polls until id was processed at least n times. Delivery order
// across jobs is not guaranteed, so tests wait per job id.
func (r *recorder) waitCount(t *testing.T, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for r.count(id) < n {
		if time.Now().After(deadline) {
			t.Fatalf("job %s processed %d times, want at least %d", id, r.count(id), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// drain keeps the seen channel from filling up in tests that poll counts.
func (r *recorder) drain(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-r.seen:
			case <-done:
				return
			}
		}
	}()
}

const settle = 200 * time.Millisecond

func newJournal(t *testing.T) *wal.Journal {
	t.Helper()
	db, err := wal.OpenDB(config.StorageConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return wal.NewJournal(db, wal.DefaultOptions())
}

// startQueue creates a queue with a registered worker and runs it until
// the test ends.
func startQueue(t *testing.T, journal *wal.Journal, processor JobProcessor) *Queue {
	t.Helper()

	q, err := New(testConfig(), journal)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	q.RegisterWorker(processor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		_ = q.Close()
		<-done
	})

	select {
	case <-q.Running():
	case <-time.After(waitTimeout):
		t.Fatal("router did not start")
	}
	return q
}

func sampleJob(id string) SyncJob {
	return SyncJob{
		ID:         id,
		Record:     contact.Record{"email": "a@b.com", "firstName": "Ann"},
		Source:     "woocommerce",
		Tags:       []string{"VIP"},
		EnqueuedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func waitPending(t *testing.T, journal *wal.Journal, want int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		pending, err := journal.GetPending(context.Background())
		if err != nil {
			t.Fatalf("GetPending() error = %v", err)
		}
		if len(pending) == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending entries = %d, want %d", len(pending), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueue_RoundTrip(t *testing.T) {
	t.Parallel()

	journal := newJournal(t)
	rec := newRecorder(true)
	q := startQueue(t, journal, rec)

	if err := q.Enqueue(context.Background(), q.Topic(), sampleJob("job-1")); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	got := rec.wait(t, "job-1")
	if got.Record.Get("email") != "a@b.com" || got.Source != "woocommerce" || len(got.Tags) != 1 || got.Tags[0] != "VIP" {
		t.Errorf("processed job = %+v", got)
	}
	if !got.EnqueuedAt.Equal(sampleJob("").EnqueuedAt) {
		t.Errorf("EnqueuedAt = %v", got.EnqueuedAt)
	}

	waitPending(t, journal, 0)
}

func TestQueue_DeduplicatesJobID(t *testing.T) {
	t.Parallel()

	rec := newRecorder(true)
	rec.drain(t)
	q := startQueue(t, newJournal(t), rec)
	ctx := context.Background()

	for _, id := range []string{"job-1", "job-1", "job-2"} {
		if err := q.Enqueue(ctx, q.Topic(), sampleJob(id)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", id, err)
		}
	}

	rec.waitCount(t, "job-1", 1)
	rec.waitCount(t, "job-2", 1)
	time.Sleep(settle)

	if n := rec.count("job-1"); n != 1 {
		t.Errorf("job-1 processed %d times, want 1", n)
	}
}

func TestQueue_FalseResultIsNotRetried(t *testing.T) {
	t.Parallel()

	journal := newJournal(t)
	rec := newRecorder(false)
	rec.drain(t)
	q := startQueue(t, journal, rec)

	if err := q.Enqueue(context.Background(), q.Topic(), sampleJob("rejected")); err != nil {
		t.Fatal(err)
	}

	rec.waitCount(t, "rejected", 1)
	waitPending(t, journal, 0)
	time.Sleep(settle)

	if n := rec.count("rejected"); n != 1 {
		t.Errorf("rejected job processed %d times, want 1", n)
	}
}

func TestQueue_MalformedJobGoesToPoisonQueue(t *testing.T) {
	t.Parallel()

	journal := newJournal(t)
	rec := newRecorder(true)
	q := startQueue(t, journal, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poisoned, err := q.Subscribe(ctx, testConfig().Queue.PoisonTopic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := q.Enqueue(ctx, q.Topic(), map[string]string{"email": "a@b.com"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	select {
	case msg := <-poisoned:
		msg.Ack()
		if msg.Metadata.Get(middleware.ReasonForPoisonedKey) == "" {
			t.Errorf("poisoned message has no reason: %v", msg.Metadata)
		}
	case <-time.After(waitTimeout):
		t.Fatal("malformed job not poisoned")
	}

	if n := rec.total(); n != 0 {
		t.Errorf("processor ran %d malformed jobs", n)
	}
	waitPending(t, journal, 0)
}

func TestQueue_RecoverPending(t *testing.T) {
	t.Parallel()

	journal := newJournal(t)
	ctx := context.Background()

	// A job journaled by a run that died before publishing.
	payload, err := json.Marshal(sampleJob("orphan"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := journal.Write(ctx, envelope{Topic: "contactsync.sync", JobID: "orphan", Payload: payload}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	rec := newRecorder(true)
	q := startQueue(t, journal, rec)

	result, err := q.RecoverPending(ctx)
	if err != nil {
		t.Fatalf("RecoverPending() error = %v", err)
	}
	if result.Recovered != 1 {
		t.Errorf("Recovered = %d, want 1", result.Recovered)
	}

	rec.wait(t, "orphan")
	waitPending(t, journal, 0)
}

func TestQueue_WithoutJournal(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Queue.JournalEnabled = false
	q, err := New(cfg, newJournal(t))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = q.Close() }()

	if q.journal != nil {
		t.Error("journal kept although journal_enabled is false")
	}
	result, err := q.RecoverPending(context.Background())
	if err != nil || result.TotalPending != 0 {
		t.Errorf("RecoverPending() = %+v, %v", result, err)
	}
}

func TestQueue_PublishCompletion(t *testing.T) {
	t.Parallel()

	q := startQueue(t, nil, newRecorder(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := q.Subscribe(ctx, testConfig().Queue.CompletionTopic)
	if err != nil {
		t.Fatal(err)
	}

	q.CompletionHook()(ctx, upsert.CompletionEvent{
		Email:     "a@b.com",
		Source:    "bookly",
		ContactID: crm.ID("42"),
		Created:   true,
	})

	select {
	case msg := <-events:
		msg.Ack()
		var got upsert.CompletionEvent
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if got.Email != "a@b.com" || got.ContactID != "42" || !got.Created {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(waitTimeout):
		t.Fatal("completion event not published")
	}
}

func TestQueue_EnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q, err := New(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	err = q.Enqueue(context.Background(), "contactsync.sync", sampleJob("late"))
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue() error = %v, want ErrQueueClosed", err)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Queue.Backend = "kafka"
	if _, err := New(cfg, nil); err == nil {
		t.Error("New() accepted an unknown backend")
	}
}

func TestDecodeJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"id":"1","record":{"email":"a@b.com"},"source":"cf7"}`, false},
		{"not json", `{`, true},
		{"no record", `{"id":"1","source":"cf7"}`, true},
	}

	for _, tt := range tests {
		_, err := decodeJob([]byte(tt.payload))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: decodeJob() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrMalformedJob) {
			t.Errorf("%s: error %v does not wrap ErrMalformedJob", tt.name, err)
		}
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	msg := message.NewMessage("uuid-1", nil)
	if key, _ := dedupKey(msg); key != "uuid-1" {
		t.Errorf("dedupKey() = %q, want message UUID", key)
	}
	msg.Metadata.Set(MetadataJobID, "job-9")
	if key, _ := dedupKey(msg); key != "job-9" {
		t.Errorf("dedupKey() = %q, want job id", key)
	}
}
