// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/workbench/lib/workspace"
)

// Builder composes bubblewrap command lines that run the agent tool
// inside a per-user sandbox. It never spawns processes itself; callers
// pass the returned argv to their own process or PTY machinery.
type Builder struct {
	// BwrapPath is the bubblewrap binary, typically /usr/bin/bwrap.
	BwrapPath string

	// AgentPath is the agent tool binary to run inside the sandbox.
	AgentPath string

	// AgentArgs are appended after AgentPath in the sandboxed command.
	AgentArgs []string

	// APIKey, when set, is exported as ANTHROPIC_API_KEY inside the
	// sandbox. When empty the tool falls back to stored OAuth
	// credentials in the workspace.
	APIKey string

	// Workspaces resolves and creates per-user workspace directories.
	Workspaces *workspace.Provider

	Logger *slog.Logger
}

// Setup ensures the user's workspace exists (including the .claude
// directory the agent tool stores credentials and state in) and
// returns its host path.
func (b *Builder) Setup(userID string) (string, error) {
	workspacePath, err := b.Workspaces.Ensure(userID)
	if err != nil {
		return "", fmt.Errorf("ensure workspace: %w", err)
	}
	stateDirectory := filepath.Join(workspacePath, ".claude")
	if err := os.MkdirAll(stateDirectory, 0o700); err != nil {
		return "", fmt.Errorf("create agent state directory: %w", err)
	}
	return workspacePath, nil
}

// Command builds the full bubblewrap argv for the given workspace
// path, with extraArgs appended to the agent tool's arguments.
func (b *Builder) Command(workspacePath string, extraArgs ...string) ([]string, error) {
	if b.BwrapPath == "" {
		return nil, fmt.Errorf("bwrap path is required")
	}
	if b.AgentPath == "" {
		return nil, fmt.Errorf("agent path is required")
	}

	builder := newBwrapBuilder(b.BwrapPath)
	builder.addNamespaces()
	builder.addSystemMounts()
	moduleDirectory := builder.addRuntimeMounts()
	builder.addWorkspaceMount(workspacePath)

	builder.setEnv("HOME", "/workspace")
	builder.setEnv("USER", "user")
	builder.setEnv("TERM", "xterm-256color")
	builder.setEnv("PATH", "/usr/local/bin:/usr/bin:/bin")
	if moduleDirectory != "" {
		builder.setEnv("NODE_PATH", moduleDirectory)
	}
	if b.APIKey != "" {
		builder.setEnv("ANTHROPIC_API_KEY", b.APIKey)
	}

	command := append([]string{b.AgentPath}, b.AgentArgs...)
	command = append(command, extraArgs...)

	argv, err := builder.finish(command)
	if err != nil {
		return nil, err
	}
	if b.Logger != nil {
		b.Logger.Debug("composed sandbox command",
			"workspace", workspacePath,
			"argument_count", len(argv))
	}
	return argv, nil
}

// CleanTemporary removes leftover temporary files from a workspace
// without touching the user's own files or agent state. Session
// teardown calls this; workspaces themselves persist across sessions.
func CleanTemporary(workspacePath string) error {
	temporaryDirectory := filepath.Join(workspacePath, "tmp")
	if err := os.RemoveAll(temporaryDirectory); err != nil {
		return fmt.Errorf("remove workspace tmp: %w", err)
	}
	return nil
}
