// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package queue

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/contactsync/internal/contact"
)

// Metadata keys carried on every queue message.
const (
	MetadataJobID     = "job_id"
	MetadataJournalID = "journal_id"
)

// Errors
var (
	ErrQueueClosed  = errors.New("queue is closed")
	ErrMalformedJob = errors.New("malformed job payload")
)

// SyncJob is the payload of a deferred contact sync.
type SyncJob struct {
	ID         string         `json:"id"`
	Record     contact.Record `json:"record"`
	Source     string         `json:"source"`
	Tags       []string       `json:"tags,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// JobProcessor runs a dequeued job. The boolean is the sync outcome; a false
// result has already been logged by the processor and is not retried.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job SyncJob) bool
}

// JobProcessorFunc adapts a function to JobProcessor.
type JobProcessorFunc func(ctx context.Context, job SyncJob) bool

// ProcessJob implements JobProcessor.
func (f JobProcessorFunc) ProcessJob(ctx context.Context, job SyncJob) bool {
	return f(ctx, job)
}

// envelope is what the journal stores: enough to republish a message to
// its original topic after a restart.
type envelope struct {
	Topic   string          `json:"topic"`
	JobID   string          `json:"job_id"`
	Payload json.RawMessage `json:"payload"`
}

// jobID returns the identity used for deduplication, if the payload has one.
func jobID(payload interface{}) string {
	switch p := payload.(type) {
	case SyncJob:
		return p.ID
	case *SyncJob:
		if p != nil {
			return p.ID
		}
	}
	return ""
}

func decodeJob(payload []byte) (SyncJob, error) {
	var job SyncJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return SyncJob{}, errors.Join(ErrMalformedJob, err)
	}
	if job.Record == nil {
		return SyncJob{}, ErrMalformedJob
	}
	return job, nil
}
