// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package models

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// MetricType is the wire tag of a Metric. It fixes the Go type of the value.
type MetricType string

const (
	MetricInt    MetricType = "int"
	MetricFloat  MetricType = "float"
	MetricString MetricType = "str"
	MetricBool   MetricType = "bool"
)

// ErrUnknownMetricType is returned when a metric's "type" tag is missing or
// not one of int, float, str, bool.
var ErrUnknownMetricType = errors.New("unknown metric type")

// Metric is one named analysis value. The value is optional: a metric with no
// value is different from one whose value is 0, "" or false.
//
//	{"type":"float","name":"rms","value":0.12,"unit":"dBFS"}
//	{"type":"int","name":"speakers","value":null}
type Metric struct {
	Type        MetricType `json:"type"`
	Name        string     `json:"name" validate:"required"`
	Description *string    `json:"description,omitempty"`
	Unit        *string    `json:"unit,omitempty"`

	intValue   *int64
	floatValue *float64
	strValue   *string
	boolValue  *bool
}

// IntMetric returns an int metric holding v.
func IntMetric(name string, v int64) Metric {
	return Metric{Type: MetricInt, Name: name, intValue: &v}
}

// FloatMetric returns a float metric holding v.
func FloatMetric(name string, v float64) Metric {
	return Metric{Type: MetricFloat, Name: name, floatValue: &v}
}

// StringMetric returns a str metric holding v.
func StringMetric(name, v string) Metric {
	return Metric{Type: MetricString, Name: name, strValue: &v}
}

// BoolMetric returns a bool metric holding v.
func BoolMetric(name string, v bool) Metric {
	return Metric{Type: MetricBool, Name: name, boolValue: &v}
}

// EmptyMetric returns a metric of type t with no value.
func EmptyMetric(t MetricType, name string) Metric {
	return Metric{Type: t, Name: name}
}

// WithUnit returns a copy of m with unit set.
func (m Metric) WithUnit(unit string) Metric {
	m.Unit = &unit
	return m
}

// WithDescription returns a copy of m with description set.
func (m Metric) WithDescription(description string) Metric {
	m.Description = &description
	return m
}

// HasValue reports whether the metric carries a value.
func (m Metric) HasValue() bool {
	return m.intValue != nil || m.floatValue != nil || m.strValue != nil || m.boolValue != nil
}

// Int returns the value of an int metric.
func (m Metric) Int() (int64, bool) {
	if m.intValue == nil {
		return 0, false
	}
	return *m.intValue, true
}

// Float returns the value of a float metric.
func (m Metric) Float() (float64, bool) {
	if m.floatValue == nil {
		return 0, false
	}
	return *m.floatValue, true
}

// Str returns the value of a str metric.
func (m Metric) Str() (string, bool) {
	if m.strValue == nil {
		return "", false
	}
	return *m.strValue, true
}

// Bool returns the value of a bool metric.
func (m Metric) Bool() (value, ok bool) {
	if m.boolValue == nil {
		return false, false
	}
	return *m.boolValue, true
}

// Value returns the value as an interface, or nil when absent.
func (m Metric) Value() interface{} {
	switch {
	case m.intValue != nil:
		return *m.intValue
	case m.floatValue != nil:
		return *m.floatValue
	case m.strValue != nil:
		return *m.strValue
	case m.boolValue != nil:
		return *m.boolValue
	default:
		return nil
	}
}

type metricWire struct {
	Type        MetricType      `json:"type"`
	Name        string          `json:"name"`
	Value       json.RawMessage `json:"value"`
	Description *string         `json:"description,omitempty"`
	Unit        *string         `json:"unit,omitempty"`
}

var jsonNull = []byte("null")

// MarshalJSON writes the metric with its type tag. An absent value is written
// as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.Type.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetricType, m.Type)
	}

	value := jsonNull
	if v := m.Value(); v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal metric %s value: %w", m.Name, err)
		}
		value = b
	}

	return json.Marshal(metricWire{
		Type:        m.Type,
		Name:        m.Name,
		Value:       value,
		Description: m.Description,
		Unit:        m.Unit,
	})
}

// UnmarshalJSON decodes a tagged metric. The value must match the tag exactly:
// a str metric with 3, or a bool metric with "yes", is an error.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var w metricWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode metric: %w", err)
	}
	if !w.Type.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMetricType, w.Type)
	}

	out := Metric{Type: w.Type, Name: w.Name, Description: w.Description, Unit: w.Unit}
	if len(w.Value) > 0 && !bytes.Equal(bytes.TrimSpace(w.Value), jsonNull) {
		var err error
		switch w.Type {
		case MetricInt:
			out.intValue = new(int64)
			err = json.Unmarshal(w.Value, out.intValue)
		case MetricFloat:
			out.floatValue = new(float64)
			err = json.Unmarshal(w.Value, out.floatValue)
		case MetricString:
			out.strValue = new(string)
			err = json.Unmarshal(w.Value, out.strValue)
		case MetricBool:
			out.boolValue = new(bool)
			err = json.Unmarshal(w.Value, out.boolValue)
		}
		if err != nil {
			return fmt.Errorf("decode %s metric %q value: %w", w.Type, w.Name, err)
		}
	}

	*m = out
	return nil
}

func (t MetricType) valid() bool {
	switch t {
	case MetricInt, MetricFloat, MetricString, MetricBool:
		return true
	}
	return false
}

// MetricCollection groups the metrics produced by one analysis provider.
type MetricCollection struct {
	Provider    string   `json:"provider" validate:"required"`
	Metrics     []Metric `json:"metrics" validate:"dive"`
	Description *string  `json:"description,omitempty"`
}
