// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ResponseKind is the value of the "_kind" tag on a response payload.
type ResponseKind string

const (
	KindRecordingMetrics ResponseKind = "RecordingMetrics"
	KindChannelMetrics   ResponseKind = "ChannelMetrics"
	KindProgress         ResponseKind = "ProgressMsg"
	KindError            ResponseKind = "ErrorMsg"
)

// Response decoding errors.
var (
	ErrMissingResponseKind = errors.New("response payload has no _kind")
	ErrUnknownResponseKind = errors.New("unknown response _kind")
	ErrEmptyResponse       = errors.New("response has no payload")
)

// ResponsePayload is implemented by the four response variants.
type ResponsePayload interface {
	Kind() ResponseKind
}

// RecordingMetrics carries the recording-level results. It is the terminal
// success signal for a job.
type RecordingMetrics struct {
	Metrics []MetricCollection `json:"metrics" validate:"dive"`
}

// ChannelMetrics carries one audio channel with all of its segments.
type ChannelMetrics struct {
	Idx      int                `json:"idx" validate:"min=0"`
	Metrics  []MetricCollection `json:"metrics" validate:"dive"`
	Segments []Segment          `json:"segments" validate:"dive"`
}

// Segment is a time span of a channel, usually one utterance.
type Segment struct {
	Start   float64            `json:"start" validate:"min=0"`
	End     float64            `json:"end" validate:"gtefield=Start"`
	Text    string             `json:"text"`
	Metrics []MetricCollection `json:"metrics" validate:"dive"`
}

// ProgressMsg reports partial completion. All fields are optional on the wire.
type ProgressMsg struct {
	PercentDone *int    `json:"percent_done,omitempty" validate:"omitempty,min=0,max=100"`
	Channel     *int    `json:"channel,omitempty" validate:"omitempty,min=0"`
	Description *string `json:"description,omitempty"`
}

// ErrorMsg reports that analysis failed.
type ErrorMsg struct {
	Error string `json:"error"`
	Trace string `json:"trace"`
}

func (RecordingMetrics) Kind() ResponseKind { return KindRecordingMetrics }
func (ChannelMetrics) Kind() ResponseKind   { return KindChannelMetrics }
func (ProgressMsg) Kind() ResponseKind      { return KindProgress }
func (ErrorMsg) Kind() ResponseKind         { return KindError }

// Render formats the error and trace for storage.
func (e ErrorMsg) Render() string {
	if e.Trace == "" {
		return e.Error
	}
	return e.Error + "\n" + e.Trace
}

// Response holds exactly one ResponsePayload and encodes it with an explicit
// "_kind" tag next to the variant's own fields:
//
//	{"_kind":"ProgressMsg","percent_done":40}
//
// Decoding never guesses the kind from the shape of the object.
type Response struct {
	Payload ResponsePayload
}

type kindTag struct {
	Kind ResponseKind `json:"_kind"`
}

// MarshalJSON writes the payload's fields with the "_kind" tag first.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, ErrEmptyResponse
	}

	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", r.Payload.Kind(), err)
	}
	tag, err := json.Marshal(kindTag{Kind: r.Payload.Kind()})
	if err != nil {
		return nil, err
	}

	// body is a JSON object; splice its fields in after the tag.
	if len(body) <= 2 {
		return tag, nil
	}
	out := make([]byte, 0, len(tag)+len(body))
	out = append(out, tag[:len(tag)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalJSON reads the "_kind" tag, then decodes the matching variant.
func (r *Response) UnmarshalJSON(data []byte) error {
	var tag kindTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("decode response tag: %w", err)
	}

	var payload ResponsePayload
	switch tag.Kind {
	case "":
		return ErrMissingResponseKind
	case KindRecordingMetrics:
		var v RecordingMetrics
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", tag.Kind, err)
		}
		payload = v
	case KindChannelMetrics:
		var v ChannelMetrics
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", tag.Kind, err)
		}
		payload = v
	case KindProgress:
		var v ProgressMsg
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", tag.Kind, err)
		}
		payload = v
	case KindError:
		var v ErrorMsg
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode %s: %w", tag.Kind, err)
		}
		payload = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownResponseKind, tag.Kind)
	}

	r.Payload = payload
	return nil
}
