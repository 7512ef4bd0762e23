// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

package queue

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/contactsync/internal/config"
)

// Backend names accepted in queue.backend.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// backend is a publisher/subscriber pair plus whatever must be torn down
// with them.
type backend struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shutdown   func()
}

func (b *backend) Close() error {
	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if b.subscriber != nil {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if b.shutdown != nil {
		b.shutdown()
	}
	return errors.Join(errs...)
}

func newBackend(cfg *config.Config, logger watermill.LoggerAdapter) (*backend, error) {
	switch cfg.Queue.Backend {
	case "", BackendMemory:
		return newMemoryBackend(logger), nil
	case BackendNATS:
		return newNATSBackend(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

// newMemoryBackend uses one GoChannel as both sides. Messages published
// to a topic nobody subscribes to are dropped; the journal covers jobs
// published before the worker subscribed.
func newMemoryBackend(logger watermill.LoggerAdapter) *backend {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
	return &backend{publisher: pubSub, subscriber: closeOnce(pubSub)}
}

// sharedPubSub lets the same GoChannel serve as publisher and subscriber
// without being closed twice.
type sharedPubSub struct {
	message.Subscriber
}

func (sharedPubSub) Close() error { return nil }

func closeOnce(s message.Subscriber) message.Subscriber {
	return sharedPubSub{Subscriber: s}
}
