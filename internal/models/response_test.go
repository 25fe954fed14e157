// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func TestResponse_DecodeByTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		kind  ResponseKind
	}{
		{"recording metrics", `{"_kind":"RecordingMetrics","metrics":[]}`, KindRecordingMetrics},
		{"channel metrics", `{"_kind":"ChannelMetrics","idx":0,"metrics":[],"segments":[{"start":0,"end":1,"text":"hi","metrics":[]}]}`, KindChannelMetrics},
		{"progress", `{"_kind":"ProgressMsg","percent_done":40}`, KindProgress},
		{"error", `{"_kind":"ErrorMsg","error":"oom","trace":"at step 2"}`, KindError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var r Response
			if err := json.Unmarshal([]byte(tt.input), &r); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if r.Payload.Kind() != tt.kind {
				t.Errorf("kind = %s, want %s", r.Payload.Kind(), tt.kind)
			}
		})
	}
}

func TestResponse_ChannelMetricsFields(t *testing.T) {
	t.Parallel()

	var r Response
	input := `{"_kind":"ChannelMetrics","idx":1,"metrics":[{"provider":"asr","metrics":[{"type":"str","name":"language","value":"en"}]}],
		"segments":[{"start":0.5,"end":2,"text":"hello","metrics":[]}]}`
	if err := json.Unmarshal([]byte(input), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	cm, ok := r.Payload.(ChannelMetrics)
	if !ok {
		t.Fatalf("payload type = %T", r.Payload)
	}
	if cm.Idx != 1 || len(cm.Segments) != 1 || cm.Segments[0].Text != "hello" || cm.Segments[0].Start != 0.5 {
		t.Errorf("unexpected channel metrics: %+v", cm)
	}
	if lang, _ := cm.Metrics[0].Metrics[0].Str(); lang != "en" {
		t.Errorf("language = %q", lang)
	}
}

func TestResponse_RejectsUntagged(t *testing.T) {
	t.Parallel()

	var r Response
	err := json.Unmarshal([]byte(`{"percent_done":40}`), &r)
	if !errors.Is(err, ErrMissingResponseKind) {
		t.Errorf("expected ErrMissingResponseKind, got %v", err)
	}

	err = json.Unmarshal([]byte(`{"_kind":"Heartbeat"}`), &r)
	if !errors.Is(err, ErrUnknownResponseKind) {
		t.Errorf("expected ErrUnknownResponseKind, got %v", err)
	}
}

func TestResponse_MarshalWritesTag(t *testing.T) {
	t.Parallel()

	pct := 40
	id := uuid.MustParse("6f1c2c8e-9a57-4c1e-9d0e-0b6f8e7e2a11")
	data, err := json.Marshal(NewResponseEnvelope(id, ProgressMsg{PercentDone: &pct}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	out := string(data)
	if !strings.Contains(out, `"id":"6f1c2c8e-9a57-4c1e-9d0e-0b6f8e7e2a11"`) {
		t.Errorf("missing id in %s", out)
	}
	if !strings.Contains(out, `"data":{"_kind":"ProgressMsg","percent_done":40}`) {
		t.Errorf("unexpected data encoding: %s", out)
	}

	data, err = json.Marshal(Response{Payload: RecordingMetrics{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"_kind":"RecordingMetrics","metrics":null}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	if _, err := json.Marshal(Response{}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestResponseEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	want := NewResponseEnvelope(id, ErrorMsg{Error: "decoder crashed", Trace: "frame 3"})

	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ResponseEnvelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != id {
		t.Errorf("id = %s, want %s", got.ID, id)
	}
	em, ok := got.Data.Payload.(ErrorMsg)
	if !ok || em.Render() != "decoder crashed\nframe 3" {
		t.Errorf("unexpected payload: %#v", got.Data.Payload)
	}
}

func TestAnalysisStatus_Terminal(t *testing.T) {
	t.Parallel()

	for status, want := range map[AnalysisStatus]bool{
		StatusPending: false,
		StatusRunning: false,
		StatusDone:    true,
		StatusError:   true,
	} {
		if status.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, status.Terminal(), want)
		}
	}
}
