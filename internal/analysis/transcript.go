// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package analysis

import (
	"bytes"
	"errors"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/sonograph/internal/models"
)

// Provider names the metric collections produced by the bridge.
const Provider = "transcription"

// ErrEmptyTranscript is returned for a worker reply with no content.
var ErrEmptyTranscript = errors.New("empty transcript")

// Transcript is a whisper-style transcription result.
type Transcript struct {
	Text     string              `json:"text"`
	Language string              `json:"language"`
	Segments []TranscriptSegment `json:"segments"`
}

// TranscriptSegment is one timed span of text, in seconds.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ParseTranscript reads a worker reply. A JSON object is read as whisper
// output; anything else becomes a single untimed segment holding the whole
// reply.
func ParseTranscript(data []byte) (*Transcript, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyTranscript
	}

	if trimmed[0] == '{' {
		var t Transcript
		if err := json.Unmarshal(trimmed, &t); err == nil {
			t.normalize()
			return &t, nil
		}
	}

	text := string(trimmed)
	return &Transcript{
		Text:     text,
		Segments: []TranscriptSegment{{Text: text}},
	}, nil
}

// normalize makes every segment valid for the result protocol: times are
// non-negative and no segment ends before it starts.
func (t *Transcript) normalize() {
	t.Text = strings.TrimSpace(t.Text)
	t.Language = strings.TrimSpace(t.Language)

	for i := range t.Segments {
		s := &t.Segments[i]
		s.Text = strings.TrimSpace(s.Text)
		if s.Start < 0 {
			s.Start = 0
		}
		if s.End < s.Start {
			s.End = s.Start
		}
	}

	if len(t.Segments) == 0 && t.Text != "" {
		t.Segments = []TranscriptSegment{{Text: t.Text}}
	}
}

// Duration is the end of the last segment.
func (t *Transcript) Duration() float64 {
	var d float64
	for _, s := range t.Segments {
		if s.End > d {
			d = s.End
		}
	}
	return d
}

// ChannelMetrics reports the transcript as channel 0.
func (t *Transcript) ChannelMetrics() models.ChannelMetrics {
	segments := make([]models.Segment, len(t.Segments))
	for i, s := range t.Segments {
		segments[i] = models.Segment{
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
			Metrics: []models.MetricCollection{},
		}
	}

	return models.ChannelMetrics{
		Idx: 0,
		Metrics: []models.MetricCollection{{
			Provider: Provider,
			Metrics: []models.Metric{
				t.languageMetric(),
				models.IntMetric("segment_count", int64(len(t.Segments))),
			},
		}},
		Segments: segments,
	}
}

// RecordingMetrics reports the recording-level summary.
func (t *Transcript) RecordingMetrics() models.RecordingMetrics {
	return models.RecordingMetrics{
		Metrics: []models.MetricCollection{{
			Provider: Provider,
			Metrics: []models.Metric{
				t.languageMetric(),
				models.FloatMetric("duration", t.Duration()).
					WithUnit("s").
					WithDescription("end of the last segment"),
				models.IntMetric("segment_count", int64(len(t.Segments))),
			},
		}},
	}
}

// languageMetric has no value when the analyzer did not detect a language.
func (t *Transcript) languageMetric() models.Metric {
	if t.Language == "" {
		return models.EmptyMetric(models.MetricString, "language")
	}
	return models.StringMetric("language", t.Language)
}
