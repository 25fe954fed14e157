// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package deadletter keeps analysis result messages that the ingestor could
// not apply: payloads that do not decode, and messages whose retry budget ran
// out. Entries are keyed by the message UUID and stored in BadgerDB.
//
// Usage:
//
//	store, err := deadletter.Open(&cfg.DeadLetter)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	entries, err := store.List(ctx, 50)
package deadletter
