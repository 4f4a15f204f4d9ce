// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/workbench/lib/clock"
)

// ErrBusy is returned by SendMessage while a prior request on the same
// session is still running.
var ErrBusy = errors.New("session busy with another request")

const defaultCancelGrace = 5 * time.Second

// Session runs the agent tool once per message and carries the
// continuation identifier and usage totals across requests.
type Session struct {
	// UserID is the owning user's opaque identity.
	UserID string

	// Workspace is the working directory for every request. The agent
	// tool keeps its credential and session state under it.
	Workspace string

	// Command is the argv prefix each request is appended to. For a
	// sandboxed session this is the full bubblewrap command ending in
	// the agent tool path; a bare tool path also works.
	Command []string

	// APIKey, when set, is exported to the child environment.
	APIKey string

	// CancelGrace bounds how long Cancel waits between SIGTERM and
	// SIGKILL. Zero means 5 seconds.
	CancelGrace time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger

	mu             sync.Mutex
	process        *exec.Cmd
	requestDone    chan struct{}
	continuationID string
	createdAt      time.Time
	lastActivity   time.Time
	totals         Status
}

func (s *Session) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Busy reports whether a request subprocess is currently running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.process != nil
}

// Totals returns the accumulated usage across all completed requests.
func (s *Session) Totals() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// ContinuationID returns the identifier the agent tool assigned to
// this logical conversation, or "" before the first result.
func (s *Session) ContinuationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.continuationID
}

// LastActivity returns the time of the most recent request event.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// CreatedAt returns when the first request started, or the zero time.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// Resume seeds the continuation identifier so the next request picks
// up a previous conversation.
func (s *Session) Resume(continuationID string) {
	s.mu.Lock()
	s.continuationID = continuationID
	s.mu.Unlock()
}

func (s *Session) buildArgv(message string) []string {
	argv := append([]string{}, s.Command...)
	argv = append(argv,
		"-p", message,
		"--output-format", "stream-json",
		"--dangerously-skip-permissions",
	)
	if s.continuationID != "" {
		argv = append(argv, "--resume", s.continuationID)
	}
	return argv
}

// SendMessage spawns one agent tool subprocess for message and returns
// a channel of parsed events. The channel closes once the child's
// output ends; non-empty stderr is surfaced as a trailing error event.
// Returns ErrBusy while a prior request is still running.
func (s *Session) SendMessage(ctx context.Context, message string) (<-chan Event, error) {
	if len(s.Command) == 0 {
		return nil, fmt.Errorf("session has no command configured")
	}

	s.mu.Lock()
	if s.process != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	requestID := uuid.NewString()
	argv := s.buildArgv(message)
	command := exec.Command(argv[0], argv[1:]...)
	command.Dir = s.Workspace
	command.Env = os.Environ()
	if s.APIKey != "" {
		command.Env = append(command.Env, "ANTHROPIC_API_KEY="+s.APIKey)
	}

	stdout, err := command.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Start(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("starting request: %w", err)
	}

	now := s.clock().Now()
	if s.createdAt.IsZero() {
		s.createdAt = now
	}
	s.lastActivity = now
	s.process = command
	s.requestDone = make(chan struct{})
	done := s.requestDone
	s.mu.Unlock()

	s.logger().Debug("request started",
		"user", s.UserID,
		"request", requestID,
		"pid", command.Process.Pid)

	events := make(chan Event)
	go func() {
		defer close(events)

		scanner := bufio.NewScanner(stdout)
		// Tool results can carry large file contents on one line.
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			event, ok := ParseLine(line)
			if !ok {
				s.logger().Debug("dropped unparseable line",
					"request", requestID)
				continue
			}
			s.recordEvent(event)
			select {
			case events <- event:
			case <-ctx.Done():
				// Keep draining so Wait does not block on a full pipe.
				continue
			}
		}

		waitErr := command.Wait()

		s.mu.Lock()
		s.process = nil
		s.mu.Unlock()
		close(done)

		s.logger().Debug("request finished",
			"user", s.UserID,
			"request", requestID,
			"error", waitErr)

		if trailing := bytes.TrimSpace(stderr.Bytes()); len(trailing) > 0 {
			errorEvent := Event{Type: EventError, Content: string(trailing)}
			select {
			case events <- errorEvent:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// recordEvent folds result metadata into the session's running totals
// and refreshes the activity timestamp.
func (s *Session) recordEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.clock().Now()
	if event.Type != EventResult {
		return
	}
	if event.SessionID != "" {
		s.continuationID = event.SessionID
		s.totals.SessionID = event.SessionID
	}
	if event.Model != "" {
		s.totals.Model = event.Model
	}
	s.totals.InputTokens += event.InputTokens
	s.totals.OutputTokens += event.OutputTokens
	s.totals.CostUSD += event.CostUSD
}

// Cancel stops the in-flight request, if any: SIGTERM first, SIGKILL
// after the grace period. The session remains usable for the next
// message either way.
func (s *Session) Cancel() error {
	s.mu.Lock()
	process := s.process
	done := s.requestDone
	s.mu.Unlock()
	if process == nil {
		return nil
	}

	grace := s.CancelGrace
	if grace <= 0 {
		grace = defaultCancelGrace
	}

	process.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-s.clock().After(grace):
		s.logger().Debug("request ignored SIGTERM, killing",
			"user", s.UserID)
		process.Process.Kill()
		<-done
	}
	return nil
}
