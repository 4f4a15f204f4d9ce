// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pty owns a pseudo-terminal pair and the child process
// attached to it. It provides non-blocking writes, poll-bounded reads,
// and an idle-bounded asynchronous read stream, plus the terminal
// control operations an interactive session needs: resize, interrupt
// and EOF keystrokes, and a graduated terminate that escalates from
// SIGTERM to SIGKILL after a grace period.
//
// A Transport moves through a fixed lifecycle: unstarted, running,
// then terminated (stopped by the caller) or crashed (the child exited
// on its own). The master descriptor is released exactly once no
// matter how the transport ends.
package pty
