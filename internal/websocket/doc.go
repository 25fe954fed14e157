// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package websocket streams analysis progress to browsers.

The result ingestor calls Hub.Notify after every applied change. Each
connected Client holds a Subscription for one recording; a notification
wakes it, it rereads the progress row and sends it when something changed.

	┌──────────┐  Notify(id)  ┌──────────┐  wake  ┌──────────┐
	│ Ingestor │ ───────────▶ │   Hub    │ ─────▶ │  Client  │ ──▶ browser
	└──────────┘              └──────────┘        └──────────┘
	                                                   │ GetProgress
	                                                   ▼
	                                                DuckDB

Wake-ups carry no data and coalesce, so a burst of results costs a client
one read. The stream ends with a normal close once the status is done or
error.

Message format:

	{"type": "progress", "data": {"status": "running", "percent": 40, ...}}

Clients may send {"type": "ping"} and get {"type": "pong"} back; protocol
level pings are sent every 54 seconds.
*/
package websocket
