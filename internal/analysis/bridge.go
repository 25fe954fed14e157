// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/eventprocessor"
	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
	"github.com/tomtom215/sonograph/internal/models"
	"github.com/tomtom215/sonograph/internal/workerpool"
)

// Analysis stages, reported in ErrorMsg.
const (
	StageFetch      = "fetch"
	StageTranscribe = "transcribe"
	StageParse      = "parse"
)

// ErrInterrupted marks a request given back to the broker because this
// process is shutting down. It is redelivered, never poisoned.
var ErrInterrupted = errors.New("analysis interrupted")

// ErrFetchUnavailable marks a request whose download failed in a way that
// may clear up, such as a 5xx or an open breaker. It is retried and then
// poisoned, and the recording is left untouched.
var ErrFetchUnavailable = errors.New("media temporarily unavailable")

// Dispatcher runs one analysis on a local file; *workerpool.Pool
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, path string) ([]byte, error)
}

// Fetcher downloads a recording to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (path string, cleanup func(), err error)
}

// ResponsePublisher publishes result envelopes; *eventprocessor.Publisher
// satisfies it.
type ResponsePublisher interface {
	PublishResponse(ctx context.Context, topic string, env *models.ResponseEnvelope) error
}

// Bridge turns analysis requests into worker pool commands and the
// results into response envelopes.
type Bridge struct {
	dispatcher Dispatcher
	fetcher    Fetcher
	publisher  ResponsePublisher
	topic      string
}

// NewBridge creates a bridge that publishes results on topic.
func NewBridge(dispatcher Dispatcher, fetcher Fetcher, publisher ResponsePublisher, topic string) (*Bridge, error) {
	if dispatcher == nil || fetcher == nil || publisher == nil {
		return nil, fmt.Errorf("bridge needs a dispatcher, a fetcher and a publisher")
	}
	if topic == "" {
		return nil, fmt.Errorf("bridge result topic is empty")
	}
	return &Bridge{
		dispatcher: dispatcher,
		fetcher:    fetcher,
		publisher:  publisher,
		topic:      topic,
	}, nil
}

// Handle processes one request message. An analysis failure is reported to
// the recording as an ErrorMsg and the request is acked. A returned error
// nacks the request: it is retried by the router and, once retries run
// out, moved to the poison subject. Retryable download failures take that
// path too.
func (b *Bridge) Handle(msg *message.Message) error {
	ctx := msg.Context()
	start := time.Now()

	req, err := eventprocessor.DecodeRequest(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Undecodable analysis request")
		return err
	}
	ctx = logging.ContextWithRecordingID(ctx, req.ID.String())
	ctx = logging.ContextWithCorrelationID(ctx, msg.UUID)

	if err := b.publish(ctx, req.ID, progress(0, nil, "queued")); err != nil {
		return err
	}

	transcript, stage, err := b.analyze(ctx, req.Data)
	if err != nil {
		if requeue(ctx, err) {
			metrics.RecordAnalysis("requeued", time.Since(start))
			logging.Ctx(ctx).Info().Err(err).Msg("Analysis interrupted, request will be redelivered")
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		if stage == StageFetch && Retryable(err) {
			metrics.RecordAnalysis("fetch_retry", time.Since(start))
			logging.Ctx(ctx).Warn().Err(err).Msg("Download failed, request will be retried")
			return fmt.Errorf("%w: %w", ErrFetchUnavailable, err)
		}
		metrics.RecordAnalysis("failed", time.Since(start))
		logging.Ctx(ctx).Warn().Err(err).Str("stage", stage).Msg("Analysis failed")
		return b.publish(ctx, req.ID, failure(stage, err))
	}

	channel := 0
	for _, payload := range []models.ResponsePayload{
		progress(90, &channel, "transcribed"),
		transcript.ChannelMetrics(),
		transcript.RecordingMetrics(),
	} {
		if err := b.publish(ctx, req.ID, payload); err != nil {
			return err
		}
	}

	metrics.RecordAnalysis("transcribed", time.Since(start))
	logging.Ctx(ctx).Info().
		Int("segments", len(transcript.Segments)).
		Str("language", transcript.Language).
		Dur("elapsed", time.Since(start)).
		Msg("Recording transcribed")
	return nil
}

// analyze produces the transcript of one request. A supplied transcript is
// used as is and the audio is not analyzed.
func (b *Bridge) analyze(ctx context.Context, req models.RequestPayload) (*Transcript, string, error) {
	if req.TranscriptURL != nil {
		return b.supplied(ctx, *req.TranscriptURL)
	}

	local, cleanup, err := b.fetcher.Fetch(ctx, req.DownloadURL)
	if err != nil {
		return nil, StageFetch, err
	}
	defer cleanup()

	reply, err := b.dispatcher.Dispatch(ctx, local)
	if err != nil {
		return nil, StageTranscribe, err
	}

	transcript, err := ParseTranscript(reply)
	if err != nil {
		return nil, StageParse, err
	}
	return transcript, "", nil
}

func (b *Bridge) supplied(ctx context.Context, rawURL string) (*Transcript, string, error) {
	local, cleanup, err := b.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, StageFetch, err
	}
	defer cleanup()

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, StageFetch, fmt.Errorf("read transcript: %w", err)
	}
	transcript, err := ParseTranscript(data)
	if err != nil {
		return nil, StageParse, err
	}
	return transcript, "", nil
}

func (b *Bridge) publish(ctx context.Context, id uuid.UUID, payload models.ResponsePayload) error {
	env := models.NewResponseEnvelope(id, payload)
	if err := b.publisher.PublishResponse(ctx, b.topic, &env); err != nil {
		return fmt.Errorf("publish %s for %s: %w", payload.Kind(), id, err)
	}
	return nil
}

// requeue reports whether the request should go back to the broker rather
// than fail the recording, which is the case while this process shuts down.
func requeue(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, workerpool.ErrPoolClosed)
}

func progress(percent int, channel *int, description string) models.ProgressMsg {
	return models.ProgressMsg{
		PercentDone: &percent,
		Channel:     channel,
		Description: &description,
	}
}

// failure describes err for the recording. A worker error carries the
// analyzer's own output as the trace.
func failure(stage string, err error) models.ErrorMsg {
	var ce *workerpool.CommandError
	if errors.As(err, &ce) {
		return models.ErrorMsg{Error: stage + " failed", Trace: ce.Message}
	}
	return models.ErrorMsg{Error: stage + " failed", Trace: err.Error()}
}
