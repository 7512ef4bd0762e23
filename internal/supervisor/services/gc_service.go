// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/contactsync/internal/logging"
)

// GCService periodically reclaims storage space, typically via
// wal.RunGC on the shared Badger handle. GC errors are logged and do not
// stop the service.
type GCService struct {
	collect  func() error
	interval time.Duration
}

// NewGCService runs collect every interval. Non-positive intervals
// become ten minutes.
func NewGCService(collect func() error, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{collect: collect, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.collect(); err != nil {
				logging.Warn().Err(err).Msg("Storage garbage collection failed")
				continue
			}
			logging.Debug().Dur("duration", time.Since(start)).Msg("Storage garbage collection finished")
		}
	}
}

func (s *GCService) String() string {
	return "journal-gc"
}
