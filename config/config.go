// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the workbench
// engine.
//
// Configuration is loaded from a single file specified by:
//   - WORKBENCH_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; defaults only fill fields the file
// leaves unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration unmarshals from yaml strings like "30m" or "500ms".
type Duration time.Duration

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the master configuration for the workbench engine.
type Config struct {
	// Workspace configures per-user workspace storage.
	Workspace WorkspaceConfig `yaml:"workspace"`

	// Sandbox configures the bubblewrap sandbox.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// PTY configures the interactive transport.
	PTY PTYConfig `yaml:"pty"`

	// Stream configures the per-message streaming transport.
	Stream StreamConfig `yaml:"stream"`

	// Session configures the session managers.
	Session SessionConfig `yaml:"session"`
}

// WorkspaceConfig configures per-user workspace storage.
type WorkspaceConfig struct {
	// Root is the base directory for all user workspaces.
	// Default: ~/.cache/workbench/workspaces
	Root string `yaml:"root"`
}

// SandboxConfig configures the bubblewrap sandbox.
type SandboxConfig struct {
	// BwrapPath is the bubblewrap binary.
	// Default: /usr/bin/bwrap
	BwrapPath string `yaml:"bwrap_path"`

	// AgentPath is the agent tool binary run inside the sandbox.
	// Default: claude
	AgentPath string `yaml:"agent_path"`

	// APIKeyEnv names the environment variable holding the shared API
	// key. Default: ANTHROPIC_API_KEY
	APIKeyEnv string `yaml:"api_key_env"`
}

// PTYConfig configures the interactive transport.
type PTYConfig struct {
	// Cols and Rows set the terminal geometry.
	// Default: 120x40
	Cols uint16 `yaml:"cols"`
	Rows uint16 `yaml:"rows"`

	// ReadChunkTimeout bounds each poll of the PTY master.
	// Default: 100ms
	ReadChunkTimeout Duration `yaml:"read_chunk_timeout"`

	// ReadIdleTimeout ends a read loop that produced no output.
	// Default: 5m
	ReadIdleTimeout Duration `yaml:"read_idle_timeout"`
}

// StreamConfig configures the per-message streaming transport.
type StreamConfig struct {
	// FlushThreshold is the delta buffer size that triggers delivery.
	// Default: 500
	FlushThreshold int `yaml:"flush_threshold"`

	// CancelGrace bounds request cancellation between SIGTERM and
	// SIGKILL. Default: 5s
	CancelGrace Duration `yaml:"cancel_grace"`
}

// SessionConfig configures the session managers.
type SessionConfig struct {
	// MessageLimit is the per-chunk size ceiling for delivered text.
	// Default: 2000
	MessageLimit int `yaml:"message_limit"`

	// IdleTimeout is the idle span after which the sweep stops a
	// session. Default: 1h
	IdleTimeout Duration `yaml:"idle_timeout"`

	// SweepInterval is the cadence of the background sweep.
	// Default: 1m
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Default returns the default configuration, used as the base before
// the file is merged in.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	return &Config{
		Workspace: WorkspaceConfig{
			Root: filepath.Join(homeDirectory, ".cache", "workbench", "workspaces"),
		},
		Sandbox: SandboxConfig{
			BwrapPath: "/usr/bin/bwrap",
			AgentPath: "claude",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		PTY: PTYConfig{
			Cols:             120,
			Rows:             40,
			ReadChunkTimeout: Duration(100 * time.Millisecond),
			ReadIdleTimeout:  Duration(5 * time.Minute),
		},
		Stream: StreamConfig{
			FlushThreshold: 500,
			CancelGrace:    Duration(5 * time.Second),
		},
		Session: SessionConfig{
			MessageLimit:  2000,
			IdleTimeout:   Duration(time.Hour),
			SweepInterval: Duration(time.Minute),
		},
	}
}

// Load loads configuration from the WORKBENCH_CONFIG environment
// variable. Fails if the variable is unset; there is no discovery.
func Load() (*Config, error) {
	configPath := os.Getenv("WORKBENCH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WORKBENCH_CONFIG environment variable not set; " +
			"set it to the path of your workbench.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return cfg, nil
}

// APIKey reads the configured API key environment variable.
func (c *Config) APIKey() string {
	if c.Sandbox.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Sandbox.APIKeyEnv)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Workspace.Root == "" {
		errs = append(errs, fmt.Errorf("workspace.root is required"))
	}
	if c.Sandbox.BwrapPath == "" {
		errs = append(errs, fmt.Errorf("sandbox.bwrap_path is required"))
	}
	if c.Sandbox.AgentPath == "" {
		errs = append(errs, fmt.Errorf("sandbox.agent_path is required"))
	}
	if c.PTY.Cols == 0 || c.PTY.Rows == 0 {
		errs = append(errs, fmt.Errorf("pty geometry must be non-zero"))
	}
	if c.PTY.ReadChunkTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pty.read_chunk_timeout must be positive"))
	}
	if c.PTY.ReadIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pty.read_idle_timeout must be positive"))
	}
	if c.Stream.FlushThreshold <= 0 {
		errs = append(errs, fmt.Errorf("stream.flush_threshold must be positive"))
	}
	if c.Session.MessageLimit <= 0 {
		errs = append(errs, fmt.Errorf("session.message_limit must be positive"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("session.sweep_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
