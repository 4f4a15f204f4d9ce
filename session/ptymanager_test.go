// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/workbench/lib/clock"
	"github.com/bureau-foundation/workbench/lib/credential"
	"github.com/bureau-foundation/workbench/lib/workspace"
	"github.com/bureau-foundation/workbench/term"
)

// hostBuilder runs plain host commands instead of a sandbox.
type hostBuilder struct {
	workspaces *workspace.Provider
	argv       []string

	mu       sync.Mutex
	commands [][]string
}

func (b *hostBuilder) Setup(userID string) (string, error) {
	return b.workspaces.Ensure(userID)
}

func (b *hostBuilder) Command(workspacePath string, extraArgs ...string) ([]string, error) {
	argv := append([]string{}, b.argv...)
	argv = append(argv, extraArgs...)
	b.mu.Lock()
	b.commands = append(b.commands, argv)
	b.mu.Unlock()
	return argv, nil
}

// outputRecorder collects observer deliveries.
type outputRecorder struct {
	mu      sync.Mutex
	outputs []term.ParsedOutput
	fail    bool
}

func (r *outputRecorder) HandleOutput(userID string, output term.ParsedOutput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, output)
	if r.fail {
		return errors.New("delivery failed")
	}
	return nil
}

func (r *outputRecorder) combined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var builder strings.Builder
	for _, output := range r.outputs {
		builder.WriteString(output.Content)
	}
	return builder.String()
}

func newPTYTestManager(t *testing.T, argv []string, observer OutputObserver) (*PTYManager, *hostBuilder) {
	t.Helper()
	workspaces := workspace.NewProvider(t.TempDir())
	builder := &hostBuilder{workspaces: workspaces, argv: argv}
	manager := NewPTYManager(PTYManagerConfig{
		Builder:          builder,
		Credentials:      &credential.Resolver{Workspaces: workspaces, APIKey: "test-key"},
		Observer:         observer,
		ReadChunkTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { manager.Close() })
	return manager, builder
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func waitForCondition(t *testing.T, deadline time.Duration, condition func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", deadline)
}

func TestPTYStartSessionRequiresCredentials(t *testing.T) {
	workspaces := workspace.NewProvider(t.TempDir())
	manager := NewPTYManager(PTYManagerConfig{
		Builder:     &hostBuilder{workspaces: workspaces, argv: []string{"/bin/cat"}},
		Credentials: &credential.Resolver{Workspaces: workspaces},
	})
	defer manager.Close()

	if err := manager.StartSession("alice", ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("StartSession: %v, want ErrNoCredentials", err)
	}
	if manager.HasSession("alice") {
		t.Errorf("session exists after failed start")
	}
}

func TestPTYStartSessionCreatesLiveSession(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !manager.HasSession("alice") {
		t.Fatalf("HasSession false after start")
	}
	info, ok := manager.Info("alice")
	if !ok {
		t.Fatalf("Info returned no session")
	}
	if !info.Alive || info.UserID != "alice" || info.Workspace == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestPTYStartSessionReplacesPrior(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	manager.mu.Lock()
	first := manager.sessions["alice"]
	manager.mu.Unlock()

	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("second StartSession: %v", err)
	}

	manager.mu.Lock()
	count := len(manager.sessions)
	second := manager.sessions["alice"]
	manager.mu.Unlock()
	if count != 1 {
		t.Fatalf("%d sessions after double start, want 1", count)
	}
	if first == second {
		t.Fatalf("session not replaced")
	}
	if first.transport.Alive() {
		t.Errorf("first transport still alive after replacement")
	}
	if !second.transport.Alive() {
		t.Errorf("replacement transport not alive")
	}
}

func TestPTYStartSessionPassesResume(t *testing.T) {
	manager, builder := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", "prior-session"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	builder.mu.Lock()
	defer builder.mu.Unlock()
	if len(builder.commands) != 1 {
		t.Fatalf("%d composed commands, want 1", len(builder.commands))
	}
	joined := strings.Join(builder.commands[0], " ")
	if !strings.Contains(joined, "--resume prior-session") {
		t.Errorf("argv %q missing resume flag", joined)
	}
}

func TestPTYSendMessageNoSession(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.SendMessage("nobody", "hello"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("SendMessage: %v, want ErrNoSession", err)
	}
	if err := manager.CancelRequest("nobody"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("CancelRequest: %v, want ErrNoSession", err)
	}
}

func TestPTYOutputReachesObserver(t *testing.T) {
	recorder := &outputRecorder{}
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, recorder)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.SendMessage("alice", "observable text"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		return strings.Contains(recorder.combined(), "observable text")
	})
}

func TestPTYObserverFailureKeepsLoopAlive(t *testing.T) {
	recorder := &outputRecorder{fail: true}
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, recorder)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.SendMessage("alice", "first"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		return strings.Contains(recorder.combined(), "first")
	})

	if err := manager.SendMessage("alice", "second"); err != nil {
		t.Fatalf("SendMessage after observer failure: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		return strings.Contains(recorder.combined(), "second")
	})
}

func TestPTYStopSessionIdempotent(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.StopSession("alice"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if manager.HasSession("alice") {
		t.Fatalf("session live after stop")
	}
	if err := manager.StopSession("alice"); err != nil {
		t.Fatalf("second StopSession: %v", err)
	}
}

func TestPTYStopSessionKeepsWorkspace(t *testing.T) {
	manager, builder := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	workspacePath, err := builder.workspaces.Path("alice")
	if err != nil {
		t.Fatalf("workspace path: %v", err)
	}
	if err := manager.StopSession("alice"); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if _, err := builder.workspaces.Path("alice"); err != nil {
		t.Fatalf("workspace path after stop: %v", err)
	}
	if !dirExists(workspacePath) {
		t.Errorf("workspace %q removed by StopSession", workspacePath)
	}
}

func TestPTYSweepRemovesDeadSession(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/sh", "-c", "exit 0"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		manager.mu.Lock()
		defer manager.mu.Unlock()
		existing, ok := manager.sessions["alice"]
		return ok && !existing.transport.Alive()
	})

	manager.sweepOnce()

	if manager.HasSession("alice") {
		t.Fatalf("dead session still reported live")
	}
	manager.mu.Lock()
	_, present := manager.sessions["alice"]
	manager.mu.Unlock()
	if present {
		t.Errorf("dead session still in table after sweep")
	}
}

func TestPTYSweepRemovesExpiredSession(t *testing.T) {
	workspaces := workspace.NewProvider(t.TempDir())
	fake := clock.Fake(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	manager := NewPTYManager(PTYManagerConfig{
		Builder:        &hostBuilder{workspaces: workspaces, argv: []string{"/bin/cat"}},
		Credentials:    &credential.Resolver{Workspaces: workspaces, APIKey: "test-key"},
		SessionTimeout: time.Hour,
		Clock:          fake,
	})
	defer manager.Close()

	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !manager.HasSession("alice") {
		t.Fatalf("session not live after start")
	}

	fake.Advance(2 * time.Hour)

	if manager.HasSession("alice") {
		t.Fatalf("expired session still reported live")
	}
	manager.sweepOnce()
	manager.mu.Lock()
	_, present := manager.sessions["alice"]
	manager.mu.Unlock()
	if present {
		t.Errorf("expired session still in table after sweep")
	}
}

func TestPTYCloseStopsSessions(t *testing.T) {
	manager, _ := newPTYTestManager(t, []string{"/bin/cat"}, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if manager.HasSession("alice") {
		t.Errorf("session live after Close")
	}
}
