// Contactsync - CRM Contact Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/contactsync

//go:build nats

package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/contactsync/internal/config"
	"github.com/tomtom215/contactsync/internal/logging"
)

func newNATSBackend(cfg *config.Config, logger watermill.LoggerAdapter) (*backend, error) {
	url := cfg.NATS.URL
	var shutdown func()

	if cfg.NATS.EmbeddedServer {
		ns, err := startEmbeddedServer(cfg.NATS)
		if err != nil {
			return nil, err
		}
		url = ns.ClientURL()
		shutdown = func() {
			ns.Shutdown()
			ns.WaitForShutdown()
		}
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
		},
	}, logger)
	if err != nil {
		if shutdown != nil {
			shutdown()
		}
		return nil, fmt.Errorf("create NATS publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.NATS.QueueGroup,
		SubscribersCount: cfg.NATS.SubscribersCount,
		AckWaitTimeout:   time.Minute,
		CloseTimeout:     cfg.Queue.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.NATS.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverAll(),
				natsgo.AckExplicit(),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		if shutdown != nil {
			shutdown()
		}
		return nil, fmt.Errorf("create NATS subscriber: %w", err)
	}

	return &backend{
		publisher:  subjectPublisher{pub},
		subscriber: subjectSubscriber{sub},
		shutdown:   shutdown,
	}, nil
}

func startEmbeddedServer(cfg config.NATSConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName:         "contactsync-embedded",
		Host:               "127.0.0.1",
		Port:               server.RANDOM_PORT,
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		NoSigs:             true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within 30s")
	}

	logging.Info().
		Str("url", ns.ClientURL()).
		Str("store_dir", cfg.StoreDir).
		Msg("Embedded NATS server started")
	return ns, nil
}

// JetStream stream names may not contain dots, and AutoProvision names the
// stream after the topic.
func natsTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "_")
}

type subjectPublisher struct {
	message.Publisher
}

func (p subjectPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if id := msg.Metadata.Get(MetadataJobID); id != "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, id+":"+msg.UUID)
		}
	}
	return p.Publisher.Publish(natsTopic(topic), messages...)
}

type subjectSubscriber struct {
	message.Subscriber
}

func (s subjectSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, natsTopic(topic))
}
