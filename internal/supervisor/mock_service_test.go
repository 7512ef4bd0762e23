// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// fakeService runs until canceled, optionally failing its first N starts.
type fakeService struct {
	name     string
	failures int32
	starts   atomic.Int32
	stops    atomic.Int32
}

func newFakeService(name string, failures int32) *fakeService {
	return &fakeService{name: name, failures: failures}
}

func (f *fakeService) Serve(ctx context.Context) error {
	n := f.starts.Add(1)
	defer f.stops.Add(1)
	if n <= f.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string {
	return f.name
}
