// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package services

import (
	"context"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// ProgressHubService supervises the progress hub. While it runs the hub
// accepts subscriptions; when it stops every open stream is told to close.
type ProgressHubService struct {
	hub  ContextHub
	name string
}

// NewProgressHubService wraps hub.
func NewProgressHubService(hub ContextHub) *ProgressHubService {
	return &ProgressHubService{
		hub:  hub,
		name: "progress-hub",
	}
}

// Serve implements suture.Service.
func (p *ProgressHubService) Serve(ctx context.Context) error {
	return p.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer.
func (p *ProgressHubService) String() string {
	return p.name
}
