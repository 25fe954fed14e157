// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package workerpool

import (
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
)

// Message kinds on the worker pipes. Each message is one JSON object per
// line.
const (
	// parent -> child
	KindTranscribe = "transcribe"
	KindExit       = "exit"

	// child -> parent
	KindReady  = "ready"
	KindResult = "result"
	KindError  = "error"
)

// Command is sent from the pool to a worker.
type Command struct {
	Kind string `json:"kind"`
	ID   uint64 `json:"id,omitempty"`
	Path string `json:"path,omitempty"`
}

// Reply is sent from a worker to the pool. ID echoes the command it answers.
type Reply struct {
	Kind  string `json:"kind"`
	ID    uint64 `json:"id,omitempty"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// lineWriter writes JSON lines. Encode appends the newline.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &lineWriter{enc: enc}
}

func (w *lineWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}
