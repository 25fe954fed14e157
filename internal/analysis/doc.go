// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

/*
Package analysis connects the request subject to the worker pool.

For each request envelope the bridge:

 1. publishes ProgressMsg{0, "queued"}
 2. downloads download_url into the scratch directory
 3. dispatches the local path to a worker
 4. parses the reply as whisper output, or as plain text
 5. publishes ProgressMsg{90}, ChannelMetrics for channel 0 and
    RecordingMetrics

A failed download, analysis or parse is reported as an ErrorMsg and the
request is acked; the recording can be resubmitted. When the process is
shutting down the request is nacked instead, so another run picks it up.

The handler runs under the eventprocessor router: panics are recovered,
errors are retried with backoff and requests that still fail are copied
to the poison subject.
*/
package analysis
