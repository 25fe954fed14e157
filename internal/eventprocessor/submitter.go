// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"context"
	"fmt"

	"github.com/tomtom215/sonograph/internal/logging"
	"github.com/tomtom215/sonograph/internal/metrics"
	"github.com/tomtom215/sonograph/internal/models"
)

// URLSigner resolves a blob key to a time-bounded download URL.
type URLSigner interface {
	URL(key string) (string, error)
}

// RequestPublisher publishes request envelopes; *Publisher satisfies it.
type RequestPublisher interface {
	PublishRequest(ctx context.Context, topic string, env *models.RequestEnvelope) error
}

// Submitter sends analysis requests. It never retries: a failure is
// returned to the caller, which decides whether to roll back.
type Submitter struct {
	publisher RequestPublisher
	signer    URLSigner
	topic     string
}

// NewSubmitter creates a submitter that publishes on topic.
func NewSubmitter(publisher RequestPublisher, signer URLSigner, topic string) (*Submitter, error) {
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if signer == nil || topic == "" {
		return nil, fmt.Errorf("%w: submitter needs a signer and a topic", ErrInvalidConfig)
	}
	return &Submitter{publisher: publisher, signer: signer, topic: topic}, nil
}

// Submit signs the job's blobs and publishes the request. It returns once
// the broker has acknowledged the message.
func (s *Submitter) Submit(ctx context.Context, job models.RecordingJob) (err error) {
	defer func() { metrics.RecordSubmit(err) }()

	env, err := s.buildRequest(job)
	if err != nil {
		return err
	}
	if err := s.publisher.PublishRequest(ctx, s.topic, env); err != nil {
		return fmt.Errorf("submit recording %s: %w", job.ID, err)
	}

	logging.Ctx(ctx).Info().
		Str("recording_id", job.ID.String()).
		Bool("has_transcript", job.TranscriptKey != nil).
		Msg("Analysis requested")
	return nil
}

func (s *Submitter) buildRequest(job models.RecordingJob) (*models.RequestEnvelope, error) {
	downloadURL, err := s.signer.URL(job.SourceKey)
	if err != nil {
		return nil, fmt.Errorf("sign source of %s: %w", job.ID, err)
	}

	payload := models.RequestPayload{
		DownloadURL:  downloadURL,
		ForceDiarize: job.ForceDiarize,
	}
	if job.TranscriptKey != nil {
		transcriptURL, err := s.signer.URL(*job.TranscriptKey)
		if err != nil {
			return nil, fmt.Errorf("sign transcript of %s: %w", job.ID, err)
		}
		payload.TranscriptURL = &transcriptURL
	}

	return &models.RequestEnvelope{ID: job.ID, Data: payload}, nil
}
