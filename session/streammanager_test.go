// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/workbench/lib/clock"
	"github.com/bureau-foundation/workbench/lib/credential"
	"github.com/bureau-foundation/workbench/lib/workspace"
	"github.com/bureau-foundation/workbench/stream"
)

const fakeResultLine = `{"type":"result","result":"done","session_id":"sess-1",` +
	`"model":"test-model","usage":{"input_tokens":10,"output_tokens":5},"cost_usd":0.01}`

// writeScript installs an executable shell script and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// chunkRecorder collects observer deliveries.
type chunkRecorder struct {
	mu       sync.Mutex
	chunks   []string
	statuses []stream.Status
}

func (r *chunkRecorder) HandleChunks(userID string, chunks []string, status *stream.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunks...)
	if status != nil {
		r.statuses = append(r.statuses, *status)
	}
	return nil
}

func (r *chunkRecorder) combined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.chunks, "\n")
}

func (r *chunkRecorder) statusCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

func newStreamTestManager(t *testing.T, agentScript string, observer ChunkObserver) *StreamManager {
	t.Helper()
	workspaces := workspace.NewProvider(t.TempDir())
	manager := NewStreamManager(StreamManagerConfig{
		Builder:     &hostBuilder{workspaces: workspaces, argv: []string{agentScript}},
		Credentials: &credential.Resolver{Workspaces: workspaces, APIKey: "test-key"},
		Observer:    observer,
		CancelGrace: time.Second,
	})
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestStreamStartSessionRequiresCredentials(t *testing.T) {
	workspaces := workspace.NewProvider(t.TempDir())
	manager := NewStreamManager(StreamManagerConfig{
		Builder:     &hostBuilder{workspaces: workspaces, argv: []string{"/bin/true"}},
		Credentials: &credential.Resolver{Workspaces: workspaces},
	})
	defer manager.Close()

	if err := manager.StartSession("alice", ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("StartSession: %v, want ErrNoCredentials", err)
	}
}

func TestStreamSendMessageDeliversChunksAndStatus(t *testing.T) {
	agent := writeScript(t, `
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"the answer"}]}}'
echo '`+fakeResultLine+`'`)
	recorder := &chunkRecorder{}
	manager := newStreamTestManager(t, agent, recorder)

	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.SendMessage("alice", "question"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	waitForCondition(t, 10*time.Second, func() bool {
		return strings.Contains(recorder.combined(), "the answer") &&
			recorder.statusCount() > 0
	})

	recorder.mu.Lock()
	status := recorder.statuses[0]
	recorder.mu.Unlock()
	if status.Model != "test-model" || status.SessionID != "sess-1" {
		t.Errorf("status = %+v", status)
	}
}

func TestStreamSendMessageNoSession(t *testing.T) {
	manager := newStreamTestManager(t, "/bin/true", nil)
	if err := manager.SendMessage("nobody", "hello"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("SendMessage: %v, want ErrNoSession", err)
	}
}

func TestStreamSendMessageWhileBusy(t *testing.T) {
	agent := writeScript(t, `exec sleep 30`)
	manager := newStreamTestManager(t, agent, nil)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	if err := manager.SendMessage("alice", "first"); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		info, ok := manager.Info("alice")
		return ok && info.Busy
	})

	if err := manager.SendMessage("alice", "second"); !errors.Is(err, stream.ErrBusy) {
		t.Fatalf("second SendMessage: %v, want ErrBusy", err)
	}

	if err := manager.CancelRequest("alice"); err != nil {
		t.Fatalf("CancelRequest: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		info, ok := manager.Info("alice")
		return ok && !info.Busy
	})
}

func TestStreamInfoReportsUsage(t *testing.T) {
	agent := writeScript(t, `echo '`+fakeResultLine+`'`)
	recorder := &chunkRecorder{}
	manager := newStreamTestManager(t, agent, recorder)
	if err := manager.StartSession("alice", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := manager.SendMessage("alice", "question"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	waitForCondition(t, 10*time.Second, func() bool {
		info, ok := manager.Info("alice")
		return ok && info.Usage.SessionID == "sess-1"
	})

	info, ok := manager.Info("alice")
	if !ok {
		t.Fatalf("Info returned no session")
	}
	if info.Usage.InputTokens != 10 || info.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", info.Usage)
	}
	if info.Usage.Model != "test-model" {
		t.Errorf("model = %q", info.Usage.Model)
	}
}

func TestStreamStartSessionReplacesPrior(t *testing.T) {
	manager := newStreamTestManager(t, "/bin/true", nil)
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
	second := manager.sessions["alice"]
	count := len(manager.sessions)
	manager.mu.Unlock()
	if count != 1 || first == second {
		t.Fatalf("session table after double start: count=%d replaced=%v", count, first != second)
	}
}

func TestStreamResumeSeedsContinuation(t *testing.T) {
	manager := newStreamTestManager(t, "/bin/true", nil)
	if err := manager.StartSession("alice", "prior-session"); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	manager.mu.Lock()
	existing := manager.sessions["alice"]
	manager.mu.Unlock()
	if existing.session.ContinuationID() != "prior-session" {
		t.Errorf("continuation id = %q", existing.session.ContinuationID())
	}
}

func TestStreamStopSessionIdempotent(t *testing.T) {
	manager := newStreamTestManager(t, "/bin/true", nil)
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

func TestStreamSweepRemovesExpiredSession(t *testing.T) {
	workspaces := workspace.NewProvider(t.TempDir())
	fake := clock.Fake(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	manager := NewStreamManager(StreamManagerConfig{
		Builder:        &hostBuilder{workspaces: workspaces, argv: []string{"/bin/true"}},
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
