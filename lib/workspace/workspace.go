// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace maps opaque user identities to stable on-disk
// workspace directories. The workspace is the only read-write mount a
// sandboxed session sees, and it persists across session restarts: the
// engine never removes it implicitly.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves per-user workspace directories under a fixed root.
type Provider struct {
	// Root is the base directory for all user workspaces.
	Root string
}

// NewProvider creates a Provider rooted at root.
func NewProvider(root string) *Provider {
	return &Provider{Root: root}
}

// Sanitize reduces a user identity to a filesystem-safe directory name.
// Only alphanumerics, '-', and '_' survive; everything else is dropped.
func Sanitize(userID string) string {
	var builder strings.Builder
	builder.Grow(len(userID))
	for _, r := range userID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// Path returns the workspace directory for userID without creating it.
func (p *Provider) Path(userID string) (string, error) {
	safe := Sanitize(userID)
	if safe == "" {
		return "", fmt.Errorf("user id %q sanitizes to an empty directory name", userID)
	}
	return filepath.Join(p.Root, safe), nil
}

// Ensure returns the workspace directory for userID, creating it (and
// the root) if needed. The directory is owner-only: it holds the user's
// files and the sandboxed tool's session and credential state.
func (p *Provider) Ensure(userID string) (string, error) {
	path, err := p.Path(userID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return "", fmt.Errorf("creating workspace %s: %w", path, err)
	}
	return path, nil
}

// Remove deletes the entire workspace directory for userID, including
// the sandboxed tool's persisted session state. Only explicit removal
// goes through here; session stop never does.
func (p *Provider) Remove(userID string) error {
	path, err := p.Path(userID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing workspace %s: %w", path, err)
	}
	return nil
}
