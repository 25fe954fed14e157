// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package workerpool runs analysis in child processes.
//
// A Pool starts Size workers, by default by re-executing the current binary
// with the hidden _worker command. Each worker talks to the pool over two
// pipes carrying one JSON object per line:
//
//	pool -> worker   {"kind":"transcribe","id":7,"path":"/tmp/rec.wav"}
//	                 {"kind":"exit"}
//	worker -> pool   {"kind":"ready"}
//	                 {"kind":"result","id":7,"data":"..."}
//	                 {"kind":"error","id":7,"error":"..."}
//
// A worker handles one command at a time and the pool never sends a second
// command before the first is answered. A worker that stops answering is
// terminated and replaced. Replacements beyond Size in a burst are spaced
// by RespawnInterval.
//
// Termination sends exit and closes the command pipe, then SIGTERM, polls
// ten times at 100ms and finally sends SIGKILL. On Linux workers also get
// Pdeathsig so they die with the pool's process.
//
//	pool, err := workerpool.New(workerpool.ConfigFrom(&cfg.Workers))
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Shutdown(context.Background())
//
//	out, err := pool.Dispatch(ctx, downloadURL)
package workerpool
