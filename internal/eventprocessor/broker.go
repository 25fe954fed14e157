// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/sonograph/internal/config"
	"github.com/tomtom215/sonograph/internal/logging"
)

// Broker owns the NATS side of the pipeline: the optional embedded server,
// the JetStream stream holding both job subjects, and the shared publisher.
// Subscribers are created per consumer.
type Broker struct {
	cfg       config.NATSConfig
	server    *EmbeddedServer
	conn      *natsgo.Conn
	stream    *StreamInitializer
	publisher *Publisher
	url       string
	logger    watermill.LoggerAdapter
	closeOnce sync.Once
}

// StartBroker starts the embedded server if configured, ensures the stream
// exists and connects the publisher. On failure everything already started
// is shut down again.
func StartBroker(ctx context.Context, cfg *config.NATSConfig) (*Broker, error) {
	b := &Broker{
		cfg:    *cfg,
		logger: logging.NewWatermillAdapter(),
	}

	// Step 1: Embedded server or external URL
	if cfg.EmbeddedServer {
		serverCfg := ServerConfigFrom(cfg)
		srv, err := NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, err
		}
		b.server = srv
		b.url = srv.ClientURL()
		logging.Info().Str("url", b.url).Msg("Embedded NATS server started")
	} else {
		b.url = cfg.URL
		logging.Info().Str("url", b.url).Msg("Using external NATS server")
	}

	// Step 2: Connect and initialize the stream
	nc, err := natsgo.Connect(b.url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		b.Close(context.Background())
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		b.Close(context.Background())
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	streamCfg := StreamConfigFrom(cfg)
	initializer, err := NewStreamInitializer(js, &streamCfg)
	if err != nil {
		b.Close(context.Background())
		return nil, fmt.Errorf("create stream initializer: %w", err)
	}
	b.stream = initializer

	stream, err := initializer.EnsureStream(ctx)
	if err != nil {
		b.Close(context.Background())
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	info := stream.CachedInfo()
	logging.Info().
		Str("name", info.Config.Name).
		Strs("subjects", info.Config.Subjects).
		Dur("max_age", info.Config.MaxAge).
		Msg("JetStream stream ready")

	// Step 3: Publisher with circuit breaker
	pubCfg := DefaultPublisherConfig(b.url)
	pubCfg.PublishAckTimeout = cfg.PublishAckTimeout
	publisher, err := NewPublisher(pubCfg, b.logger)
	if err != nil {
		b.Close(context.Background())
		return nil, err
	}
	publisher.SetCircuitBreaker(NewCircuitBreaker(DefaultCircuitBreakerConfig("nats-publisher")))
	b.publisher = publisher

	return b, nil
}

// URL returns the client URL of the broker.
func (b *Broker) URL() string {
	return b.url
}

// Config returns the broker settings.
func (b *Broker) Config() config.NATSConfig {
	return b.cfg
}

// Publisher returns the shared publisher.
func (b *Broker) Publisher() *Publisher {
	return b.publisher
}

// NewIngestorSubscriber creates the durable, strictly sequential subscriber
// of the result subject.
func (b *Broker) NewIngestorSubscriber() (*Subscriber, error) {
	subCfg := IngestorSubscriberConfig(b.url, &b.cfg)
	return NewSubscriber(&subCfg, b.logger)
}

// NewBridgeSubscriber creates the request subscriber of the analysis bridge
// with one concurrent consumer per worker.
func (b *Broker) NewBridgeSubscriber(workers int) (*Subscriber, error) {
	subCfg := BridgeSubscriberConfig(b.url, &b.cfg, workers)
	return NewSubscriber(&subCfg, b.logger)
}

// Logger returns the watermill logger shared by broker components.
func (b *Broker) Logger() watermill.LoggerAdapter {
	return b.logger
}

// Healthy reports whether the connection is up and the stream answers.
func (b *Broker) Healthy(ctx context.Context) bool {
	if b.conn == nil || !b.conn.IsConnected() {
		return false
	}
	return b.stream != nil && b.stream.IsHealthy(ctx)
}

// Close stops the publisher, the connection and the embedded server. It is
// safe to call more than once.
func (b *Broker) Close(ctx context.Context) error {
	var errs []error
	b.closeOnce.Do(func() {
		if b.publisher != nil {
			if err := b.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		if b.conn != nil {
			b.conn.Close()
		}
		if b.server != nil {
			if err := b.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown NATS server: %w", err))
			}
		}
		logging.Info().Msg("NATS broker stopped")
	})
	return errors.Join(errs...)
}
