// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"time"

	"github.com/tomtom215/sonograph/internal/config"
)

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int // -1 picks a random free port
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   1 << 30,  // 1GB
		JetStreamMaxStore: 10 << 30, // 10GB
	}
}

// ServerConfigFrom maps application settings onto the embedded server.
func ServerConfigFrom(cfg *config.NATSConfig) ServerConfig {
	s := DefaultServerConfig()
	s.StoreDir = cfg.StoreDir
	if cfg.EmbeddedPort != 0 {
		s.Port = cfg.EmbeddedPort
	}
	if cfg.MaxMemory > 0 {
		s.JetStreamMaxMem = cfg.MaxMemory
	}
	if cfg.MaxStore > 0 {
		s.JetStreamMaxStore = cfg.MaxStore
	}
	return s
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions

	// PublishAckTimeout bounds the wait for the stream's PubAck.
	PublishAckTimeout time.Duration
}

// DefaultPublisherConfig returns production defaults for publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:               url,
		MaxReconnects:     -1, // Unlimited
		ReconnectWait:     2 * time.Second,
		ReconnectBuffer:   8 * 1024 * 1024, // 8MB
		EnableTrackMsgID:  true,
		PublishAckTimeout: 5 * time.Second,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL              string
	DurableName      string
	QueueGroup       string
	SubscribersCount int
	AckWaitTimeout   time.Duration
	MaxDeliver       int
	MaxAckPending    int
	CloseTimeout     time.Duration
	MaxReconnects    int
	ReconnectWait    time.Duration
	// StreamName is the name of the JetStream stream to bind to.
	// When set, AutoProvision is disabled and the subscriber binds to
	// an existing stream using nats.BindStream(). Both job subjects live
	// in one stream, so AutoProvision would create a stream per subject.
	StreamName string

	// DeliverAll starts a new durable consumer at the beginning of the
	// stream instead of at new messages.
	DeliverAll bool
}

// DefaultSubscriberConfig returns production defaults for subscriber.
// SubscribersCount is 1: result messages are applied strictly one at a time.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "result-ingestor",
		QueueGroup:       "ingestors",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,
		MaxAckPending:    1,
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
	}
}

// IngestorSubscriberConfig maps application settings onto the result
// subscriber.
func IngestorSubscriberConfig(url string, cfg *config.NATSConfig) SubscriberConfig {
	s := DefaultSubscriberConfig(url)
	s.DurableName = cfg.DurableName
	s.QueueGroup = cfg.QueueGroup
	s.AckWaitTimeout = cfg.AckWait
	s.CloseTimeout = cfg.RouterCloseTimeout
	s.StreamName = cfg.StreamName
	s.DeliverAll = true
	// JetStream stops redelivering at MaxDeliver; the ingestor dead-letters
	// on its own count first, so the server limit sits one above it.
	s.MaxDeliver = cfg.MaxDeliver + 1
	return s
}

// BridgeSubscriberConfig maps application settings onto the request
// subscriber of the analysis bridge. Requests run concurrently, one per
// worker.
func BridgeSubscriberConfig(url string, cfg *config.NATSConfig, workers int) SubscriberConfig {
	s := DefaultSubscriberConfig(url)
	s.DurableName = "analysis-bridge"
	s.QueueGroup = "analysis-bridge"
	s.SubscribersCount = workers
	s.MaxAckPending = workers
	s.CloseTimeout = cfg.RouterCloseTimeout
	s.StreamName = cfg.StreamName
	s.DeliverAll = true
	// A request can take as long as one analysis; keep the ack window wide
	// enough that JetStream does not redeliver work in progress.
	s.AckWaitTimeout = 15 * time.Minute
	return s
}

// StreamConfig defines the analysis stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
	InMemory        bool
}

// DefaultStreamConfig returns production stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name: "ANALYSIS",
		Subjects: []string{
			"analysis.requests",
			"analysis.results",
			"analysis.poison",
		},
		MaxAge:          7 * 24 * time.Hour,     // 7 days
		MaxBytes:        1 * 1024 * 1024 * 1024, // 1GB
		MaxMsgs:         -1,                     // Unlimited
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1,
	}
}

// StreamConfigFrom maps application settings onto the stream.
func StreamConfigFrom(cfg *config.NATSConfig) StreamConfig {
	s := DefaultStreamConfig()
	s.Name = cfg.StreamName
	s.Subjects = []string{cfg.RequestSubject, cfg.ResultSubject, cfg.PoisonSubject}
	if cfg.StreamRetention > 0 {
		s.MaxAge = cfg.StreamRetention
	}
	return s
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// IngestorConfig holds result ingestor settings.
type IngestorConfig struct {
	Topic string

	// ReceiveTimeout is the idle heartbeat. When no message arrives within
	// it, the loop logs and keeps waiting.
	ReceiveTimeout time.Duration

	// MaxAttempts is how many times a message may fail to apply before it
	// is dead-lettered and acked.
	MaxAttempts int
}

// IngestorConfigFrom maps application settings onto the ingestor.
func IngestorConfigFrom(cfg *config.NATSConfig) IngestorConfig {
	return IngestorConfig{
		Topic:          cfg.ResultSubject,
		ReceiveTimeout: cfg.ReceiveTimeout,
		MaxAttempts:    cfg.MaxDeliver,
	}
}
