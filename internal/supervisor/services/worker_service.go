// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/contactsync/internal/logging"
	"github.com/tomtom215/contactsync/internal/wal"
)

// WorkerQueue is satisfied by *queue.Queue.
type WorkerQueue interface {
	Run(ctx context.Context) error
	Running() chan struct{}
	RecoverPending(ctx context.Context) (*wal.RecoveryResult, error)
}

// WorkerService runs the background sync workers. Once the router is
// subscribed for the first time, jobs journaled by a previous process are
// republished.
type WorkerService struct {
	queue     WorkerQueue
	recovered sync.Once
}

// NewWorkerService wraps q.
func NewWorkerService(q WorkerQueue) *WorkerService {
	return &WorkerService{queue: q}
}

// Serve implements suture.Service.
func (s *WorkerService) Serve(ctx context.Context) error {
	s.recovered.Do(func() { go s.recover(ctx) })

	if err := s.queue.Run(ctx); err != nil {
		return fmt.Errorf("sync workers: %w", err)
	}
	return ctx.Err()
}

func (s *WorkerService) recover(ctx context.Context) {
	select {
	case <-s.queue.Running():
	case <-ctx.Done():
		return
	}

	result, err := s.queue.RecoverPending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Recovering journaled sync jobs failed")
		return
	}
	if result != nil && result.TotalPending > 0 {
		logging.Info().
			Int("pending", result.TotalPending).
			Int("recovered", result.Recovered).
			Int("failed", result.Failed).
			Msg("Recovered journaled sync jobs")
	}
}

func (s *WorkerService) String() string {
	return "sync-workers"
}
