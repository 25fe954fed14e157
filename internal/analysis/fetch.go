// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/sonograph/internal/logging"
)

const fetchBreakerName = "media-fetch"

// DefaultMaxDownloadBytes caps a download when no limit is configured.
const DefaultMaxDownloadBytes int64 = 2 << 30

var (
	// ErrDownloadTooLarge is returned for a body larger than the limit.
	ErrDownloadTooLarge = errors.New("download exceeds size limit")

	// ErrUnsupportedURL is returned for a URL that is not http or https.
	ErrUnsupportedURL = errors.New("unsupported download url")
)

// StatusError is a download answered with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download failed: HTTP %d", e.StatusCode)
}

// Permanent reports whether retrying the same URL cannot succeed, e.g. an
// expired signature or a deleted recording.
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Retryable reports whether a failed Fetch may succeed later. A 4xx answer,
// an oversized body and a bad URL are final.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) && se.Permanent() {
		return false
	}
	return !errors.Is(err, ErrDownloadTooLarge) && !errors.Is(err, ErrUnsupportedURL)
}

// HTTPFetcher downloads signed recording URLs into a scratch directory.
// Downloads go through a circuit breaker so a dead media server fails fast
// instead of tying up every worker slot.
type HTTPFetcher struct {
	client   *http.Client
	cb       *gobreaker.CircuitBreaker[interface{}]
	dir      string
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. An empty dir uses the system temp
// directory. Bodies larger than maxBytes are rejected; <= 0 uses
// DefaultMaxDownloadBytes.
func NewHTTPFetcher(dir string, timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        fetchBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A 4xx or an oversized body is an answer from a healthy server.
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		cb:       cb,
		dir:      dir,
		maxBytes: maxBytes,
	}
}

// Fetch downloads rawURL and returns the local path. The caller removes the
// file with the returned cleanup func, which is never nil.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, func(), error) {
	noop := func() {}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %w", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", noop, fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}

	result, err := f.cb.Execute(func() (interface{}, error) {
		return f.download(ctx, u)
	})
	if err != nil {
		return "", noop, err
	}

	local, ok := result.(string)
	if !ok {
		return "", noop, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return local, func() { _ = os.Remove(local) }, nil
}

func (f *HTTPFetcher) download(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return "", fmt.Errorf("%w: %d bytes announced, limit %d", ErrDownloadTooLarge, resp.ContentLength, f.maxBytes)
	}

	// Keep the extension so the analyzer can detect the container format.
	out, err := os.CreateTemp(f.dir, "recording-*"+path.Ext(u.Path))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}

	// Read one byte past the limit to tell a full-sized body from a longer one.
	n, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	if err == nil && n > f.maxBytes {
		err = fmt.Errorf("%w: limit %d", ErrDownloadTooLarge, f.maxBytes)
	} else if err != nil {
		err = fmt.Errorf("write scratch file: %w", err)
	}
	if err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return out.Name(), nil
}

// State returns the breaker state for health reporting.
func (f *HTTPFetcher) State() string {
	return f.cb.State().String()
}
