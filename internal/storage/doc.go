// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package storage holds uploaded recordings on the local filesystem and hands
// out signed, time-bounded URLs for them.
//
// A download URL has the form
//
//	{public_url}/api/v1/media/{key}?token={jwt}
//
// where the token is an HS256 JWT whose "key" claim names the blob. The media
// handler calls Verify before serving the file, so a URL cannot be reused for
// another key or after it expires.
package storage
