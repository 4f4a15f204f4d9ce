// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox composes isolated execution command lines for
// per-user agent sessions using bubblewrap (bwrap) Linux namespaces.
//
// The central type is [Builder], which assembles a bwrap invocation
// from a user's workspace path and a fixed isolation profile: new
// mount, PID, UTS, and cgroup namespaces; read-only binds of the
// system directories the agent tool needs (libraries, binaries, the
// SSL trust store, DNS resolution files, and the Node.js runtime with
// its global module tree when present); the user workspace as the sole
// read-write bind and working directory; tmpfs /tmp and /home that
// vanish with the sandbox; network retained for API access; an
// explicitly allow-listed environment; and --die-with-parent so an
// orphaned sandbox cannot outlive the engine.
//
// The package only composes command descriptions; it never spawns
// anything. Process lifecycle belongs to the pty and stream transports.
// [Builder.CheckRequirements] probes the host for everything a session
// start needs so failures surface before a child is launched.
package sandbox
