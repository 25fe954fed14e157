// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package eventprocessor

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/sonograph/internal/models"
	"github.com/tomtom215/sonograph/internal/validation"
)

// EncodeRequest validates and marshals a request envelope.
func EncodeRequest(env *models.RequestEnvelope) ([]byte, error) {
	if env.ID == uuid.Nil {
		return nil, fmt.Errorf("validate request: empty id")
	}
	if err := validation.ValidateStruct(&env.Data); err != nil {
		return nil, fmt.Errorf("validate request: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return data, nil
}

// DecodeRequest unmarshals and validates a request envelope.
func DecodeRequest(data []byte) (*models.RequestEnvelope, error) {
	var env models.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty id", ErrDecode)
	}
	if err := validation.ValidateStruct(&env.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &env, nil
}

// EncodeResponse validates and marshals a response envelope.
func EncodeResponse(env *models.ResponseEnvelope) ([]byte, error) {
	if env.Data.Payload == nil {
		return nil, fmt.Errorf("validate response: %w", models.ErrEmptyResponse)
	}
	if err := validation.ValidateStruct(env.Data.Payload); err != nil {
		return nil, fmt.Errorf("validate %s: %w", env.Data.Payload.Kind(), err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return data, nil
}

// DecodeResponse unmarshals a response envelope and validates its payload.
// Every failure wraps ErrDecode: malformed JSON, a missing or unknown
// "_kind", a metric whose value does not match its type, or a payload that
// breaks a rule such as percent_done outside 0..100.
func DecodeResponse(data []byte) (*models.ResponseEnvelope, error) {
	var env models.ResponseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty id", ErrDecode)
	}
	if env.Data.Payload == nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, models.ErrEmptyResponse)
	}
	if err := validation.ValidateStruct(env.Data.Payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, env.Data.Payload.Kind(), err)
	}
	return &env, nil
}
