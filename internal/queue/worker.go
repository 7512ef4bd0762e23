// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/metrics"
	"github.com/tomtom215/contactsync/internal/wal"
)

// WorkerHandlerName is the router handler name of the sync worker.
const WorkerHandlerName = "contactsync_sync_worker"

// Worker runs sync jobs taken off the queue.
type Worker struct {
	processor JobProcessor
	journal   *wal.Journal
}

// RegisterWorker subscribes processor to the sync topic. It must be called
// before Run.
func (q *Queue) RegisterWorker(processor JobProcessor) *Worker {
	w := &Worker{processor: processor, journal: q.journal}
	q.router.AddConsumerHandler(WorkerHandlerName, q.cfg.Topic, q.backend.subscriber, w.Handle)
	return w
}

// Handle processes one message. A false sync result is acknowledged like a
// success: the processor logged it and a retry would send the same
// rejected payload again.
func (w *Worker) Handle(msg *message.Message) error {
	ctx := msg.Context()
	if id := middleware.MessageCorrelationID(msg); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	} else {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}

	job, err := decodeJob(msg.Payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("dropping malformed job")
		w.confirm(ctx, msg)
		return err
	}

	ok := w.processor.ProcessJob(ctx, job)
	if ok {
		metrics.QueueJobsProcessed.WithLabelValues("success").Inc()
	} else {
		metrics.QueueJobsProcessed.WithLabelValues("failed").Inc()
	}

	w.confirm(ctx, msg)
	return nil
}

func (w *Worker) confirm(ctx context.Context, msg *message.Message) {
	journalID := msg.Metadata.Get(MetadataJournalID)
	if w.journal == nil || journalID == "" {
		return
	}
	if err := w.journal.Confirm(ctx, journalID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("journal_id", journalID).
			Msg("failed to confirm journal entry")
	}
}
