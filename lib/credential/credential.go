// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential resolves how a user's sandboxed session
// authenticates against the model API. Two methods exist: per-user
// OAuth credentials stored inside the user's workspace (written there
// by the user, read by the sandboxed tool itself), and a process-wide
// API key. Resolution prefers per-user OAuth; a user with neither is
// refused a session.
//
// The engine never transmits or refreshes credentials itself. It only
// validates that a stored bundle has the structure the sandboxed tool
// expects, so that session start can fail early instead of spawning a
// child that immediately exits unauthenticated.
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/workbench/lib/workspace"
)

// Method is the authentication method selected for a session.
type Method string

const (
	// MethodOAuth means per-user OAuth credentials exist in the
	// user's workspace.
	MethodOAuth Method = "oauth"
	// MethodAPIKey means the process-wide API key is used.
	MethodAPIKey Method = "api_key"
	// MethodNone means no authentication is available; session start
	// must fail.
	MethodNone Method = "none"
)

// credentialsFile is the tool's credential bundle location relative to
// the workspace root.
const credentialsFile = ".claude/.credentials.json"

// oauthBundle mirrors the structure the sandboxed tool persists.
type oauthBundle struct {
	OAuth *oauthEntry `json:"claudeAiOauth"`
}

type oauthEntry struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	ExpiresAt    json.RawMessage `json:"expiresAt"`
}

// Resolver determines the authentication method for a user.
type Resolver struct {
	// Workspaces locates per-user workspace directories.
	Workspaces *workspace.Provider

	// APIKey is the process-wide API key, empty when unset.
	APIKey string
}

// Path returns the location of the user's credential bundle.
func (r *Resolver) Path(userID string) (string, error) {
	root, err := r.Workspaces.Path(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, credentialsFile), nil
}

// Resolve picks the authentication method for userID. Per-user OAuth
// credentials win over the shared API key.
func (r *Resolver) Resolve(userID string) Method {
	path, err := r.Path(userID)
	if err == nil {
		data, err := os.ReadFile(path)
		if err == nil && Validate(data) == nil {
			return MethodOAuth
		}
	}
	if r.APIKey != "" {
		return MethodAPIKey
	}
	return MethodNone
}

// Validate checks that data is a credential bundle with the structure
// the sandboxed tool expects: a claudeAiOauth object carrying
// non-empty access and refresh tokens and a numeric expiry.
func Validate(data []byte) error {
	var bundle oauthBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parsing credential bundle: %w", err)
	}
	if bundle.OAuth == nil {
		return fmt.Errorf("credential bundle missing claudeAiOauth")
	}
	if bundle.OAuth.AccessToken == "" {
		return fmt.Errorf("credential bundle missing accessToken")
	}
	if bundle.OAuth.RefreshToken == "" {
		return fmt.Errorf("credential bundle missing refreshToken")
	}
	var expiresAt float64
	if err := json.Unmarshal(bundle.OAuth.ExpiresAt, &expiresAt); err != nil {
		return fmt.Errorf("credential bundle expiresAt is not numeric")
	}
	return nil
}

// Store validates and writes a credential bundle into the user's
// workspace with owner-only permissions. Returns the path written.
func (r *Resolver) Store(userID string, data []byte) (string, error) {
	if err := Validate(data); err != nil {
		return "", err
	}
	if _, err := r.Workspaces.Ensure(userID); err != nil {
		return "", err
	}
	path, err := r.Path(userID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating credential directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("writing credential bundle: %w", err)
	}
	return path, nil
}

// Delete removes the user's stored credential bundle. Returns true
// when a bundle existed.
func (r *Resolver) Delete(userID string) (bool, error) {
	path, err := r.Path(userID)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("removing credential bundle: %w", err)
	}
	return true, nil
}
