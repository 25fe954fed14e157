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

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/database"
	"github.com/tomtom215/sonograph/internal/deadletter"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
	"github.com/tomtom215/sonograph/internal/models"
)

// ResultStore applies analysis responses. Each method runs one transaction
// and returns database.ErrNotFound for an unknown recording.
type ResultStore interface {
	ApplyRecordingMetrics(ctx context.Context, id uuid.UUID, msg models.RecordingMetrics) (bool, error)
	InsertChannel(ctx context.Context, recordingID uuid.UUID, msg models.ChannelMetrics) (uuid.UUID, bool, error)
	ApplyProgress(ctx context.Context, id uuid.UUID, msg models.ProgressMsg) (bool, error)
	ApplyError(ctx context.Context, id uuid.UUID, msg models.ErrorMsg) (bool, error)
}

// DeadLetterSink keeps messages that cannot be applied.
type DeadLetterSink interface {
	Save(ctx context.Context, e *deadletter.Entry) error
}

// ChangeNotifier is told about every recording whose state changed.
type ChangeNotifier interface {
	Notify(recordingID uuid.UUID)
}

// MessageSource yields messages for a topic; *Subscriber satisfies it.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Ingestor is the single consumer of analysis responses. It applies one
// message at a time and acks only after the change is committed, so the
// broker never delivers the next message while one is in flight.
type Ingestor struct {
	source     MessageSource
	store      ResultStore
	deadLetter DeadLetterSink
	config     IngestorConfig
	notifier   ChangeNotifier

	// recvMu is held only while waiting for the next message.
	recvMu sync.Mutex

	// attempts counts failed applies per message UUID until the message is
	// acked or dead-lettered. Only the Run goroutine touches it.
	attempts map[string]int

	running sync.Mutex
}

// NewIngestor creates an ingestor. deadLetter may be nil, in which case
// messages that would be dead-lettered are only logged.
func NewIngestor(source MessageSource, store ResultStore, deadLetter DeadLetterSink, cfg IngestorConfig) (*Ingestor, error) {
	if source == nil || store == nil {
		return nil, fmt.Errorf("%w: ingestor needs a source and a store", ErrInvalidConfig)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: ingestor topic is empty", ErrInvalidConfig)
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Ingestor{
		source:     source,
		store:      store,
		deadLetter: deadLetter,
		config:     cfg,
		attempts:   make(map[string]int),
	}, nil
}

// SetNotifier registers n for applied changes. Call it before Run.
func (i *Ingestor) SetNotifier(n ChangeNotifier) {
	i.notifier = n
}

// Run consumes until ctx is cancelled or the subscription closes. Only one
// Run may be active at a time.
func (i *Ingestor) Run(ctx context.Context) error {
	if !i.running.TryLock() {
		return fmt.Errorf("ingestor is already running")
	}
	defer i.running.Unlock()

	messages, err := i.source.Subscribe(ctx, i.config.Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", i.config.Topic, err)
	}

	logging.Info().Str("topic", i.config.Topic).Msg("Result ingestor started")
	for {
		msg, ok := i.receive(ctx, messages)
		if !ok {
			logging.Info().Str("topic", i.config.Topic).Msg("Result ingestor stopped")
			return ctx.Err()
		}
		i.handle(ctx, msg)
	}
}

// receive waits for the next message. An idle period of ReceiveTimeout is
// logged and the wait continues.
func (i *Ingestor) receive(ctx context.Context, messages <-chan *message.Message) (*message.Message, bool) {
	i.recvMu.Lock()
	defer i.recvMu.Unlock()

	timer := time.NewTimer(i.config.ReceiveTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case msg, ok := <-messages:
			return msg, ok
		case <-timer.C:
			logging.Debug().
				Str("topic", i.config.Topic).
				Dur("idle", i.config.ReceiveTimeout).
				Msg("No analysis results received")
			timer.Reset(i.config.ReceiveTimeout)
		}
	}
}

// handle applies one message and settles it with exactly one Ack or Nack.
func (i *Ingestor) handle(ctx context.Context, msg *message.Message) {
	env, err := DecodeResponse(msg.Payload)
	if err != nil {
		logging.Warn().
			Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Undecodable analysis result")
		if dlErr := i.deadLetterMessage(ctx, msg, deadletter.ReasonDecode, err, 1); dlErr != nil {
			metrics.RecordIngest("unknown", metrics.OutcomeRetry)
			msg.Nack()
			return
		}
		metrics.RecordIngest("unknown", metrics.OutcomeDecode)
		msg.Ack()
		return
	}

	kind := string(env.Data.Payload.Kind())
	logCtx := logging.ContextWithCorrelationID(logging.ContextWithRecordingID(ctx, env.ID.String()), msg.UUID)

	start := time.Now()
	applied, err := i.apply(logCtx, env)
	metrics.RecordIngestApply(kind, time.Since(start))

	switch {
	case errors.Is(err, database.ErrNotFound):
		logging.Ctx(logCtx).Debug().
			Str("kind", kind).
			Msg("Result for unknown recording skipped")
		metrics.RecordIngest(kind, metrics.OutcomeUnknown)
		i.settle(msg)

	case err != nil:
		i.attempts[msg.UUID]++
		attempt := i.attempts[msg.UUID]
		if attempt >= i.config.MaxAttempts {
			logging.Ctx(logCtx).Error().
				Err(err).
				Str("kind", kind).
				Str("message_uuid", msg.UUID).
				Int("attempts", attempt).
				Msg("Giving up on analysis result")
			if dlErr := i.deadLetterMessage(ctx, msg, deadletter.ReasonRetryBudget, err, attempt); dlErr != nil {
				// The attempt count stays, so the redelivery goes straight
				// back to the dead-letter write.
				metrics.RecordIngest(kind, metrics.OutcomeRetry)
				msg.Nack()
				return
			}
			metrics.RecordIngest(kind, metrics.OutcomeDead)
			i.settle(msg)
			return
		}
		logging.Ctx(logCtx).Error().
			Err(err).
			Str("kind", kind).
			Str("message_uuid", msg.UUID).
			Int("attempt", attempt).
			Msg("Failed to apply analysis result, requesting redelivery")
		metrics.RecordIngest(kind, metrics.OutcomeRetry)
		msg.Nack()

	case !applied:
		metrics.RecordIngest(kind, metrics.OutcomeStale)
		i.settle(msg)

	default:
		logging.Ctx(logCtx).Debug().Str("kind", kind).Msg("Analysis result applied")
		metrics.RecordIngest(kind, metrics.OutcomeApplied)
		if i.notifier != nil {
			i.notifier.Notify(env.ID)
		}
		i.settle(msg)
	}
}

func (i *Ingestor) settle(msg *message.Message) {
	delete(i.attempts, msg.UUID)
	msg.Ack()
}

func (i *Ingestor) apply(ctx context.Context, env *models.ResponseEnvelope) (bool, error) {
	switch p := env.Data.Payload.(type) {
	case models.RecordingMetrics:
		return i.store.ApplyRecordingMetrics(ctx, env.ID, p)
	case models.ChannelMetrics:
		_, inserted, err := i.store.InsertChannel(ctx, env.ID, p)
		return inserted, err
	case models.ProgressMsg:
		return i.store.ApplyProgress(ctx, env.ID, p)
	case models.ErrorMsg:
		return i.store.ApplyError(ctx, env.ID, p)
	default:
		return false, fmt.Errorf("%w: %T", models.ErrUnknownResponseKind, p)
	}
}

// deadLetterMessage stores msg in the dead-letter sink. A non-nil error
// means nothing durable was written and the message must not be acked.
func (i *Ingestor) deadLetterMessage(ctx context.Context, msg *message.Message, reason string, cause error, attempts int) error {
	if i.deadLetter == nil {
		delete(i.attempts, msg.UUID)
		return nil
	}

	meta := make(map[string]string, len(msg.Metadata))
	for k, v := range msg.Metadata {
		meta[k] = v
	}
	entry := &deadletter.Entry{
		ID:       msg.UUID,
		Subject:  i.config.Topic,
		Reason:   reason,
		Error:    cause.Error(),
		Attempts: attempts,
		Payload:  append([]byte(nil), msg.Payload...),
		Metadata: meta,
	}
	if err := i.deadLetter.Save(ctx, entry); err != nil {
		logging.Error().
			Err(err).
			Str("message_uuid", msg.UUID).
			Str("reason", reason).
			Msg("Failed to write dead-letter entry, requesting redelivery")
		return fmt.Errorf("save dead-letter entry: %w", err)
	}
	delete(i.attempts, msg.UUID)
	return nil
}
