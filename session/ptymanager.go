// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/workbench/lib/clock"
	"github.com/bureau-foundation/workbench/lib/credential"
	"github.com/bureau-foundation/workbench/pty"
	"github.com/bureau-foundation/workbench/sandbox"
	"github.com/bureau-foundation/workbench/term"
)

// PTYManagerConfig carries the collaborators and operational
// parameters for a PTYManager. Zero durations fall back to defaults.
type PTYManagerConfig struct {
	Builder     CommandBuilder
	Credentials *credential.Resolver
	Observer    OutputObserver

	// Cols and Rows set the terminal geometry for new sessions.
	Cols uint16
	Rows uint16

	// SessionTimeout is the idle span after which the sweep stops a
	// session. Zero means one hour.
	SessionTimeout time.Duration

	// ReadChunkTimeout bounds each poll of the PTY master. Zero means
	// 100ms.
	ReadChunkTimeout time.Duration

	// ReadIdleTimeout ends a read loop with no output. Zero means
	// five minutes.
	ReadIdleTimeout time.Duration

	// SweepInterval is the cadence of the background sweep. Zero
	// means one minute.
	SweepInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *PTYManagerConfig) applyDefaults() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = time.Hour
	}
	if c.ReadChunkTimeout <= 0 {
		c.ReadChunkTimeout = 100 * time.Millisecond
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ptySession pairs the transport with its screen buffer and read loop.
type ptySession struct {
	userID    string
	workspace string
	transport *pty.Transport
	buffer    *term.OutputBuffer
	createdAt time.Time

	cancelRead context.CancelFunc
}

var _ Manager = (*PTYManager)(nil)

// PTYManager owns at most one interactive PTY session per user.
type PTYManager struct {
	config PTYManagerConfig

	mu       sync.Mutex
	sessions map[string]*ptySession

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewPTYManager creates the manager and starts its background sweep.
func NewPTYManager(config PTYManagerConfig) *PTYManager {
	config.applyDefaults()
	manager := &PTYManager{
		config:    config,
		sessions:  make(map[string]*ptySession),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go manager.sweep()
	return manager
}

// StartSession starts an interactive session for userID, replacing any
// prior one. A non-empty resumeID is passed to the tool as a
// conversation to continue.
func (m *PTYManager) StartSession(userID, resumeID string) error {
	m.StopSession(userID)

	if m.config.Credentials.Resolve(userID) == credential.MethodNone {
		return ErrNoCredentials
	}

	workspacePath, err := m.config.Builder.Setup(userID)
	if err != nil {
		return fmt.Errorf("setting up workspace: %w", err)
	}

	var extraArgs []string
	if resumeID != "" {
		extraArgs = append(extraArgs, "--resume", resumeID)
	}
	argv, err := m.config.Builder.Command(workspacePath, extraArgs...)
	if err != nil {
		return fmt.Errorf("composing session command: %w", err)
	}

	transport := &pty.Transport{
		Cols:   m.config.Cols,
		Rows:   m.config.Rows,
		Clock:  m.config.Clock,
		Logger: m.config.Logger,
	}
	if err := transport.Start(argv); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	cols, rows := int(m.config.Cols), int(m.config.Rows)
	if cols == 0 {
		cols = 120
	}
	if rows == 0 {
		rows = 40
	}

	readContext, cancelRead := context.WithCancel(context.Background())
	newSession := &ptySession{
		userID:     userID,
		workspace:  workspacePath,
		transport:  transport,
		buffer:     term.NewOutputBuffer(cols, rows),
		createdAt:  m.config.Clock.Now(),
		cancelRead: cancelRead,
	}

	m.mu.Lock()
	m.sessions[userID] = newSession
	m.mu.Unlock()

	go m.readLoop(readContext, newSession)

	m.config.Logger.Info("session started",
		"user", userID,
		"workspace", workspacePath,
		"pid", transport.Pid())
	return nil
}

// readLoop drains the PTY, feeds the screen buffer, and hands new
// content to the observer. Observer failures are logged and skipped.
func (m *PTYManager) readLoop(ctx context.Context, s *ptySession) {
	stream := s.transport.ReadStream(ctx, m.config.ReadChunkTimeout, m.config.ReadIdleTimeout)
	for data := range stream {
		parsed := s.buffer.Feed(data)
		if m.config.Observer == nil {
			continue
		}
		if parsed.Content == "" && parsed.Statusbar == "" {
			continue
		}
		if err := m.config.Observer.HandleOutput(s.userID, parsed); err != nil {
			m.config.Logger.Warn("output observer failed",
				"user", s.userID,
				"error", err)
		}
	}
}

// StopSession stops and removes the user's session. Calling it with no
// session is a no-op. The workspace directory survives; only its
// temporary state is cleaned.
func (m *PTYManager) StopSession(userID string) error {
	m.mu.Lock()
	existing, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	existing.cancelRead()
	existing.transport.Terminate()
	existing.buffer.Clear()
	if err := sandbox.CleanTemporary(existing.workspace); err != nil {
		m.config.Logger.Warn("workspace temp cleanup failed",
			"user", userID,
			"error", err)
	}

	m.config.Logger.Info("session stopped", "user", userID)
	return nil
}

// liveSession returns the user's session only if it is alive and not
// idle-expired.
func (m *PTYManager) liveSession(userID string) (*ptySession, bool) {
	m.mu.Lock()
	existing, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if !existing.transport.Alive() {
		return nil, false
	}
	if m.expired(existing) {
		return nil, false
	}
	return existing, true
}

func (m *PTYManager) expired(s *ptySession) bool {
	idle := m.config.Clock.Now().Sub(s.transport.LastActivity())
	return idle > m.config.SessionTimeout
}

// HasSession reports whether userID has a live, unexpired session.
func (m *PTYManager) HasSession(userID string) bool {
	_, ok := m.liveSession(userID)
	return ok
}

// SendMessage writes user text to the session's terminal, followed by
// the Enter keystroke.
func (m *PTYManager) SendMessage(userID, text string) error {
	existing, ok := m.liveSession(userID)
	if !ok {
		return ErrNoSession
	}
	return existing.transport.WriteLine(text)
}

// SendSlashCommand sends a tool slash command. Slash commands are
// ordinary terminal input to the interactive tool.
func (m *PTYManager) SendSlashCommand(userID, command string) error {
	return m.SendMessage(userID, command)
}

// CancelRequest delivers the interrupt keystroke to the session.
func (m *PTYManager) CancelRequest(userID string) error {
	existing, ok := m.liveSession(userID)
	if !ok {
		return ErrNoSession
	}
	return existing.transport.SendInterrupt()
}

// Resize changes the terminal geometry of a live session.
func (m *PTYManager) Resize(userID string, cols, rows uint16) error {
	existing, ok := m.liveSession(userID)
	if !ok {
		return ErrNoSession
	}
	return existing.transport.Resize(cols, rows)
}

// Info returns a snapshot of the user's live session.
func (m *PTYManager) Info(userID string) (*Info, bool) {
	existing, ok := m.liveSession(userID)
	if !ok {
		return nil, false
	}
	now := m.config.Clock.Now()
	info := &Info{
		UserID:    userID,
		Workspace: existing.workspace,
		CreatedAt: existing.createdAt,
		Uptime:    now.Sub(existing.createdAt),
		Idle:      now.Sub(existing.transport.LastActivity()),
		Alive:     true,
	}
	if statusbar, ok := existing.buffer.Statusbar(); ok {
		info.Statusbar = statusbar
	}
	return info, true
}

// sweep periodically stops sessions that are dead or idle-expired.
func (m *PTYManager) sweep() {
	defer close(m.sweepDone)
	ticker := m.config.Clock.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *PTYManager) sweepOnce() {
	m.mu.Lock()
	var stale []string
	for userID, existing := range m.sessions {
		if !existing.transport.Alive() || m.expired(existing) {
			stale = append(stale, userID)
		}
	}
	m.mu.Unlock()

	for _, userID := range stale {
		m.config.Logger.Info("sweeping session", "user", userID)
		m.StopSession(userID)
	}
}

// Close stops the sweep and every live session.
func (m *PTYManager) Close() error {
	m.closeOnce.Do(func() { close(m.sweepStop) })
	<-m.sweepDone

	m.mu.Lock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.Unlock()

	for _, userID := range users {
		m.StopSession(userID)
	}
	return nil
}
