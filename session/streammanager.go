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
	"github.com/bureau-foundation/workbench/sandbox"
	"github.com/bureau-foundation/workbench/stream"
)

// StreamManagerConfig carries the collaborators and operational
// parameters for a StreamManager.
type StreamManagerConfig struct {
	Builder     CommandBuilder
	Credentials *credential.Resolver
	Observer    ChunkObserver

	// MessageLimit is the per-chunk size ceiling for delivered text.
	// Zero means 2000.
	MessageLimit int

	// FlushThreshold is the delta buffer size that triggers delivery.
	// Zero means 500.
	FlushThreshold int

	// SessionTimeout is the idle span after which the sweep removes a
	// session. Zero means one hour.
	SessionTimeout time.Duration

	// SweepInterval is the cadence of the background sweep. Zero
	// means one minute.
	SweepInterval time.Duration

	// CancelGrace bounds request cancellation. Zero means 5 seconds.
	CancelGrace time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c *StreamManagerConfig) applyDefaults() {
	if c.MessageLimit <= 0 {
		c.MessageLimit = 2000
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 500
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = time.Hour
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

// streamSession pairs the per-message transport with its formatter.
type streamSession struct {
	session   *stream.Session
	workspace string
	createdAt time.Time

	// formatterMu serializes formatter access between delivery
	// goroutines of consecutive requests.
	formatterMu sync.Mutex
	formatter   *stream.Formatter
}

var _ Manager = (*StreamManager)(nil)

// StreamManager owns at most one streaming session per user. Sessions
// have no persistent child process; a request subprocess exists only
// while a message is being handled.
type StreamManager struct {
	config StreamManagerConfig

	mu       sync.Mutex
	sessions map[string]*streamSession

	sweepStop chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
}

// NewStreamManager creates the manager and starts its background sweep.
func NewStreamManager(config StreamManagerConfig) *StreamManager {
	config.applyDefaults()
	manager := &StreamManager{
		config:    config,
		sessions:  make(map[string]*streamSession),
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go manager.sweep()
	return manager
}

// StartSession creates a streaming session for userID, replacing any
// prior one. A non-empty resumeID seeds the continuation identifier so
// the first request picks up the old conversation.
func (m *StreamManager) StartSession(userID, resumeID string) error {
	m.StopSession(userID)

	method := m.config.Credentials.Resolve(userID)
	if method == credential.MethodNone {
		return ErrNoCredentials
	}

	workspacePath, err := m.config.Builder.Setup(userID)
	if err != nil {
		return fmt.Errorf("setting up workspace: %w", err)
	}
	argv, err := m.config.Builder.Command(workspacePath)
	if err != nil {
		return fmt.Errorf("composing session command: %w", err)
	}

	var apiKey string
	if method == credential.MethodAPIKey {
		apiKey = m.config.Credentials.APIKey
	}

	newSession := &streamSession{
		session: &stream.Session{
			UserID:      userID,
			Workspace:   workspacePath,
			Command:     argv,
			APIKey:      apiKey,
			CancelGrace: m.config.CancelGrace,
			Clock:       m.config.Clock,
			Logger:      m.config.Logger,
		},
		workspace: workspacePath,
		createdAt: m.config.Clock.Now(),
		formatter: &stream.Formatter{
			Limit:          m.config.MessageLimit,
			FlushThreshold: m.config.FlushThreshold,
		},
	}
	if resumeID != "" {
		newSession.session.Resume(resumeID)
	}

	m.mu.Lock()
	m.sessions[userID] = newSession
	m.mu.Unlock()

	m.config.Logger.Info("streaming session started",
		"user", userID,
		"workspace", workspacePath,
		"auth", string(method))
	return nil
}

// StopSession cancels any in-flight request and removes the session.
// Idempotent; the workspace directory is left in place.
func (m *StreamManager) StopSession(userID string) error {
	m.mu.Lock()
	existing, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	existing.session.Cancel()
	if err := sandbox.CleanTemporary(existing.workspace); err != nil {
		m.config.Logger.Warn("workspace temp cleanup failed",
			"user", userID,
			"error", err)
	}

	m.config.Logger.Info("streaming session stopped", "user", userID)
	return nil
}

func (m *StreamManager) liveSession(userID string) (*streamSession, bool) {
	m.mu.Lock()
	existing, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if m.expired(existing) {
		return nil, false
	}
	return existing, true
}

func (m *StreamManager) expired(s *streamSession) bool {
	last := s.session.LastActivity()
	if last.IsZero() {
		last = s.createdAt
	}
	return m.config.Clock.Now().Sub(last) > m.config.SessionTimeout
}

// HasSession reports whether userID has an unexpired session.
func (m *StreamManager) HasSession(userID string) bool {
	_, ok := m.liveSession(userID)
	return ok
}

// SendMessage runs one request for the user's message and delivers the
// formatted output to the observer as it arrives. Returns
// stream.ErrBusy while a prior request is still running.
func (m *StreamManager) SendMessage(userID, text string) error {
	existing, ok := m.liveSession(userID)
	if !ok {
		return ErrNoSession
	}

	events, err := existing.session.SendMessage(context.Background(), text)
	if err != nil {
		return err
	}

	go m.deliver(userID, existing, events)
	return nil
}

// deliver pumps one request's events through the formatter and hands
// the resulting chunks to the observer. Observer failures abort only
// the current delivery, never the session.
func (m *StreamManager) deliver(userID string, s *streamSession, events <-chan stream.Event) {
	s.formatterMu.Lock()
	defer s.formatterMu.Unlock()

	for event := range events {
		chunks := s.formatter.Feed(event)
		if len(chunks) == 0 {
			continue
		}
		var status *stream.Status
		if event.Type == stream.EventResult {
			snapshot := s.formatter.Status()
			status = &snapshot
		}
		if m.config.Observer == nil {
			continue
		}
		if err := m.config.Observer.HandleChunks(userID, chunks, status); err != nil {
			m.config.Logger.Warn("chunk observer failed",
				"user", userID,
				"error", err)
		}
	}

	// A cancelled or crashed request can leave buffered deltas.
	if remainder := s.formatter.Flush(); len(remainder) > 0 && m.config.Observer != nil {
		if err := m.config.Observer.HandleChunks(userID, remainder, nil); err != nil {
			m.config.Logger.Warn("chunk observer failed",
				"user", userID,
				"error", err)
		}
	}
}

// SendSlashCommand passes a tool slash command through as a message.
func (m *StreamManager) SendSlashCommand(userID, command string) error {
	return m.SendMessage(userID, command)
}

// CancelRequest stops the in-flight request, leaving the session ready
// for the next message.
func (m *StreamManager) CancelRequest(userID string) error {
	existing, ok := m.liveSession(userID)
	if !ok {
		return ErrNoSession
	}
	return existing.session.Cancel()
}

// Info returns a snapshot of the user's session including accumulated
// usage and the continuation identifier.
func (m *StreamManager) Info(userID string) (*Info, bool) {
	existing, ok := m.liveSession(userID)
	if !ok {
		return nil, false
	}
	now := m.config.Clock.Now()
	last := existing.session.LastActivity()
	if last.IsZero() {
		last = existing.createdAt
	}
	return &Info{
		UserID:    userID,
		Workspace: existing.workspace,
		CreatedAt: existing.createdAt,
		Uptime:    now.Sub(existing.createdAt),
		Idle:      now.Sub(last),
		Alive:     true,
		Busy:      existing.session.Busy(),
		Usage:     existing.session.Totals(),
	}, true
}

// sweep periodically removes idle-expired sessions.
func (m *StreamManager) sweep() {
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

func (m *StreamManager) sweepOnce() {
	m.mu.Lock()
	var stale []string
	for userID, existing := range m.sessions {
		if m.expired(existing) {
			stale = append(stale, userID)
		}
	}
	m.mu.Unlock()

	for _, userID := range stale {
		m.config.Logger.Info("sweeping streaming session", "user", userID)
		m.StopSession(userID)
	}
}

// Close stops the sweep and every session.
func (m *StreamManager) Close() error {
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
