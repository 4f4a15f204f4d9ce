// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"time"

	"github.com/bureau-foundation/workbench/stream"
	"github.com/bureau-foundation/workbench/term"
)

var (
	// ErrNoSession is returned by operations that need a live session
	// when the user has none, it has died, or it has expired.
	ErrNoSession = errors.New("no active session")

	// ErrNoCredentials is returned by StartSession when neither
	// per-user OAuth credentials nor a shared API key is available.
	ErrNoCredentials = errors.New("no authentication configured")
)

// CommandBuilder prepares the sandboxed command a session runs.
// sandbox.Builder is the production implementation; tests substitute
// plain host commands.
type CommandBuilder interface {
	// Setup ensures the user's workspace exists and returns its path.
	Setup(userID string) (string, error)

	// Command returns the full argv for a session in the given
	// workspace, with extraArgs appended to the tool's arguments.
	Command(workspacePath string, extraArgs ...string) ([]string, error)
}

// OutputObserver receives screen-reconstructed output from PTY
// sessions. A returned error is logged; it never stops the read loop.
type OutputObserver interface {
	HandleOutput(userID string, output term.ParsedOutput) error
}

// OutputObserverFunc adapts a function to OutputObserver.
type OutputObserverFunc func(userID string, output term.ParsedOutput) error

func (f OutputObserverFunc) HandleOutput(userID string, output term.ParsedOutput) error {
	return f(userID, output)
}

// ChunkObserver receives formatted chunks from streaming sessions.
// The status pointer is non-nil only when a result event refreshed the
// snapshot during this delivery.
type ChunkObserver interface {
	HandleChunks(userID string, chunks []string, status *stream.Status) error
}

// ChunkObserverFunc adapts a function to ChunkObserver.
type ChunkObserverFunc func(userID string, chunks []string, status *stream.Status) error

func (f ChunkObserverFunc) HandleChunks(userID string, chunks []string, status *stream.Status) error {
	return f(userID, chunks, status)
}

// Info describes a live session for presentation.
type Info struct {
	UserID    string
	Workspace string
	CreatedAt time.Time
	Uptime    time.Duration
	Idle      time.Duration
	Alive     bool

	// Busy is meaningful for streaming sessions only.
	Busy bool

	// Statusbar is the PTY variant's heuristic status line, "" when
	// none was detected.
	Statusbar string

	// Usage carries the streaming variant's accumulated totals and
	// continuation identity; zero for PTY sessions.
	Usage stream.Status
}

// Manager is the contract shared by both session manager variants.
type Manager interface {
	// StartSession creates a session for userID, tearing down any
	// prior one. A non-empty resumeID continues a previous
	// conversation. Fails with ErrNoCredentials when the user cannot
	// authenticate.
	StartSession(userID, resumeID string) error

	// StopSession stops and removes the user's session. Idempotent;
	// the workspace directory is left in place.
	StopSession(userID string) error

	// HasSession reports whether userID has a live, unexpired session.
	HasSession(userID string) bool

	// SendMessage delivers user text to the session.
	SendMessage(userID, text string) error

	// SendSlashCommand delivers a tool slash command such as "/clear".
	SendSlashCommand(userID, command string) error

	// CancelRequest interrupts in-flight work: the interrupt keystroke
	// on the PTY variant, request cancellation on the streaming one.
	CancelRequest(userID string) error

	// Info returns a snapshot of the user's session, if live.
	Info(userID string) (*Info, bool)

	// Close stops the sweep and every session.
	Close() error
}
