// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the orchestration layer: one live session per
// user identity, started on demand and owned exclusively by a manager.
// Two manager variants share one contract. PTYManager keeps a
// long-lived interactive child on a pseudo-terminal and delivers
// screen-reconstructed output; StreamManager runs one subprocess per
// message in stream-json mode and delivers formatted chunks plus a
// status snapshot.
//
// Delivery is observer-based: the manager knows nothing about the
// presentation transport, it only invokes the registered observer with
// the user id and new content. Observer errors are logged and never
// abort a read loop.
//
// A background sweep stops sessions that are dead or idle past the
// session timeout. Workspaces persist across sessions; stopping a
// session never removes the user's workspace directory.
package session
