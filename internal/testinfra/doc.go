// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package testinfra provides test infrastructure for integration testing with containers.
//
// The unit tests of eventprocessor run against the embedded JetStream
// server. This package covers the other deployment shape, where the
// service connects to an external NATS server, using testcontainers-go.
//
// # NATS Container
//
//	func TestSomething(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//
//	    ctx := context.Background()
//	    nats, err := testinfra.NewNATSContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    testinfra.TerminateOnCleanup(t, nats.Container)
//
//	    cfg.NATS.EmbeddedServer = false
//	    cfg.NATS.URL = nats.URL
//	    broker, err := eventprocessor.StartBroker(ctx, &cfg.NATS)
//	    // ...
//	}
//
// # Media Server
//
// MediaServer is an httptest server standing in for the signed media
// endpoint, so the analysis bridge can download recordings without the
// full API.
//
// # Running
//
// Everything except this doc is behind the integration build tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// Tests skip when Docker is unavailable or in short mode. The first run
// pulls the NATS image.
package testinfra
