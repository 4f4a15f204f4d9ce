// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream is the non-interactive transport: one agent tool
// subprocess per user message, run in stream-json output mode. The
// package parses the child's newline-delimited JSON into typed events,
// carries the continuation identifier and usage totals across
// requests, buffers partial-text deltas for batched delivery, and
// formats a status snapshot for the presentation layer.
//
// Unlike the pty package there is no persistent child process; a
// Session is "busy" exactly while a per-request subprocess is running,
// and a second message during that window is rejected with ErrBusy.
package stream
