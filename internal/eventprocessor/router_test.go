// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/sonograph/internal/config"
)

func testRouterConfig() RouterConfig {
	cfg := DefaultRouterConfig()
	cfg.CloseTimeout = 2 * time.Second
	cfg.RetryMaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	return cfg
}

func runRouter(t *testing.T, r *Router) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil {
			t.Errorf("router run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-r.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
}

func TestRouter_PoisonQueueGetsRenamedCopy(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
	defer pubSub.Close()

	cfg := testRouterConfig()
	r, err := NewRouter(&cfg, pubSub, logger)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	var calls atomic.Int32
	r.AddConsumerHandler("always-fails", "analysis.requests", pubSub, func(*message.Message) error {
		calls.Add(1)
		return errors.New("analyzer unavailable")
	})

	poison, err := pubSub.Subscribe(context.Background(), cfg.PoisonQueueTopic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	runRouter(t, r)

	orig := message.NewMessage("orig-uuid", []byte(`{"id":"x"}`))
	orig.Metadata.Set(natsgo.MsgIdHdr, "orig-uuid")
	orig.Metadata.Set(MetadataEnvelopeID, "x")
	if err := pubSub.Publish("analysis.requests", orig); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-poison:
		got.Ack()
		if got.UUID == "orig-uuid" {
			t.Error("Expected poisoned copy to carry a fresh UUID")
		}
		if got.Metadata.Get(MetadataOriginalUUID) != "orig-uuid" {
			t.Errorf("Expected original uuid metadata, got %q", got.Metadata.Get(MetadataOriginalUUID))
		}
		if got.Metadata.Get(natsgo.MsgIdHdr) != "" {
			t.Error("Expected dedupe header to be dropped from the copy")
		}
		if got.Metadata.Get(MetadataEnvelopeID) != "x" {
			t.Error("Expected other metadata to be kept")
		}
		if string(got.Payload) != `{"id":"x"}` {
			t.Errorf("Unexpected payload %s", got.Payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no message reached the poison queue")
	}

	if n := calls.Load(); n != int32(cfg.RetryMaxRetries+1) {
		t.Errorf("Expected %d handler calls, got %d", cfg.RetryMaxRetries+1, n)
	}
}

func TestRouter_PoisonFilterNacksInstead(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
	defer pubSub.Close()

	errInterrupted := errors.New("interrupted")
	cfg := testRouterConfig()
	cfg.PoisonFilter = func(err error) bool { return !errors.Is(err, errInterrupted) }
	r, err := NewRouter(&cfg, pubSub, logger)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	// Fails through every retry of the first delivery, then succeeds on
	// redelivery after the nack.
	failures := int32(cfg.RetryMaxRetries + 1)
	var calls atomic.Int32
	handled := make(chan struct{})
	r.AddConsumerHandler("interrupted-once", "analysis.requests", pubSub, func(*message.Message) error {
		if calls.Add(1) <= failures {
			return errInterrupted
		}
		close(handled)
		return nil
	})

	poison, err := pubSub.Subscribe(context.Background(), cfg.PoisonQueueTopic)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	runRouter(t, r)

	if err := pubSub.Publish("analysis.requests", message.NewMessage(watermill.NewUUID(), []byte("{}"))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("nacked message was not redelivered")
	}

	select {
	case got := <-poison:
		got.Ack()
		t.Error("filtered error must not reach the poison queue")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
	defer pubSub.Close()

	cfg := testRouterConfig()
	r, err := NewRouter(&cfg, pubSub, logger)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	var calls atomic.Int32
	handled := make(chan struct{})
	r.AddConsumerHandler("panics-once", "analysis.requests", pubSub, func(*message.Message) error {
		if calls.Add(1) == 1 {
			panic("worker crashed")
		}
		close(handled)
		return nil
	})
	runRouter(t, r)

	if err := pubSub.Publish("analysis.requests", message.NewMessage(watermill.NewUUID(), []byte("{}"))); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not retried after the panic")
	}
	if !r.IsRunning() {
		t.Error("Expected router to keep running after a panic")
	}
}

func TestRouterConfigFrom(t *testing.T) {
	cfg := RouterConfigFrom(&config.NATSConfig{
		PoisonSubject:              "jobs.poison",
		RouterRetryCount:           7,
		RouterRetryInitialInterval: time.Second,
		RouterCloseTimeout:         3 * time.Second,
	})

	if cfg.PoisonQueueTopic != "jobs.poison" || cfg.RetryMaxRetries != 7 {
		t.Errorf("Unexpected router config: %+v", cfg)
	}
	if cfg.RetryInitialInterval != time.Second || cfg.CloseTimeout != 3*time.Second {
		t.Errorf("Unexpected router timings: %+v", cfg)
	}
	if cfg.RetryMultiplier != 2.0 {
		t.Errorf("Expected default multiplier to be kept, got %v", cfg.RetryMultiplier)
	}
}
