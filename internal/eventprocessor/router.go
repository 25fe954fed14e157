// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sonograph/internal/config"
)

// RouterConfig holds configuration for the Watermill Router.
type RouterConfig struct {
	// CloseTimeout is how long to wait for handlers to finish when closing.
	CloseTimeout time.Duration

	// Retry configuration
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonQueue configuration
	PoisonQueueTopic string

	// PoisonFilter decides which failed messages go to the poison topic.
	// Messages it rejects are only nacked. Nil poisons every failure.
	PoisonFilter func(err error) bool
}

// DefaultRouterConfig returns production defaults for the Router.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 100 * time.Millisecond,
		RetryMaxInterval:     10 * time.Second,
		RetryMultiplier:      2.0,
		PoisonQueueTopic:     "analysis.poison",
	}
}

// RouterConfigFrom maps application settings onto the router.
func RouterConfigFrom(cfg *config.NATSConfig) RouterConfig {
	r := DefaultRouterConfig()
	r.CloseTimeout = cfg.RouterCloseTimeout
	r.RetryMaxRetries = cfg.RouterRetryCount
	r.RetryInitialInterval = cfg.RouterRetryInitialInterval
	r.PoisonQueueTopic = cfg.PoisonSubject
	return r
}

// Router wraps the Watermill Router with pre-configured middleware.
// It provides automatic Ack/Nack handling, retry logic, panic recovery,
// and poison queue routing for failed messages.
type Router struct {
	router    *message.Router
	config    RouterConfig
	logger    watermill.LoggerAdapter
	poisonPub message.Publisher
	running   atomic.Bool
}

// NewRouter creates a new Watermill Router with pre-configured middleware.
// The router handles:
//   - Automatic Ack/Nack based on handler success/failure
//   - Panic recovery with stack trace logging
//   - Exponential backoff retry for transient failures
//   - Poison queue routing for permanent failures
func NewRouter(
	cfg *RouterConfig,
	poisonPublisher message.Publisher,
	logger watermill.LoggerAdapter,
) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	if cfg == nil {
		defaultCfg := DefaultRouterConfig()
		cfg = &defaultCfg
	}

	routerCfg := message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}

	wmRouter, err := message.NewRouter(routerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	r := &Router{
		router:    wmRouter,
		config:    *cfg,
		logger:    logger,
		poisonPub: poisonPublisher,
	}

	// Middleware order (outer to inner): PoisonQueue, Retry, Recoverer.
	// The poison queue only sees errors that survived every retry, and a
	// panic in a handler becomes an ordinary, retryable error.
	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		filter := cfg.PoisonFilter
		if filter == nil {
			filter = func(error) bool { return true }
		}
		poisonQueue, err := middleware.PoisonQueueWithFilter(renamingPublisher{poisonPublisher}, cfg.PoisonQueueTopic, filter)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	retryMiddleware := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retryMiddleware.Middleware)

	wmRouter.AddMiddleware(middleware.Recoverer)

	return r, nil
}

// AddHandler registers a handler for processing messages from a topic.
// The handler function should process the message and return any output messages.
// Errors trigger retry logic; permanent failures go to the poison queue.
//
// Parameters:
//   - name: Unique handler name for logging and metrics
//   - subscribeTopic: NATS subject to subscribe to
//   - subscriber: Watermill Subscriber for the input topic
//   - publishTopic: NATS subject to publish output messages (empty string if no output)
//   - publisher: Watermill Publisher for output (nil if no output)
//   - handler: Function that processes messages
func (r *Router) AddHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	publishTopic string,
	publisher message.Publisher,
	handler message.HandlerFunc,
) *message.Handler {
	return r.router.AddHandler(
		name,
		subscribeTopic,
		subscriber,
		publishTopic,
		publisher,
		handler,
	)
}

// AddConsumerHandler registers a handler that doesn't produce output messages.
// This is a convenience wrapper for consumers that only read and process messages.
// Note: This replaces the deprecated AddNoPublisherHandler.
func (r *Router) AddConsumerHandler(
	name string,
	subscribeTopic string,
	subscriber message.Subscriber,
	handler message.NoPublishHandlerFunc,
) *message.Handler {
	return r.router.AddConsumerHandler(
		name,
		subscribeTopic,
		subscriber,
		handler,
	)
}

// Run starts the router and blocks until context cancellation or Close().
// All registered handlers begin processing messages.
func (r *Router) Run(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)
	return r.router.Run(ctx)
}

// Running returns a channel that closes when the router is running.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close gracefully stops the router.
// Waits for in-flight messages to complete up to CloseTimeout.
func (r *Router) Close() error {
	return r.router.Close()
}

// IsRunning returns whether the router is currently processing messages.
func (r *Router) IsRunning() bool {
	return r.running.Load()
}

// MetadataOriginalUUID holds the UUID of the message a poisoned copy was
// made from.
const MetadataOriginalUUID = "original_message_uuid"

// renamingPublisher republishes messages under a fresh UUID. The stream
// deduplicates on Nats-Msg-Id, so a poisoned copy carrying the original
// UUID would be dropped as a duplicate of the request it came from.
type renamingPublisher struct {
	message.Publisher
}

func (p renamingPublisher) Publish(topic string, msgs ...*message.Message) error {
	out := make([]*message.Message, len(msgs))
	for i, msg := range msgs {
		m := message.NewMessage(watermill.NewUUID(), msg.Payload)
		for k, v := range msg.Metadata {
			if k != natsgo.MsgIdHdr {
				m.Metadata.Set(k, v)
			}
		}
		m.Metadata.Set(MetadataOriginalUUID, msg.UUID)
		out[i] = m
	}
	return p.Publisher.Publish(topic, out...)
}
