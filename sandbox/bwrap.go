// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// bwrapBuilder accumulates bubblewrap command-line arguments.
type bwrapBuilder struct {
	args []string
	env  map[string]string
}

func newBwrapBuilder(bwrapPath string) *bwrapBuilder {
	return &bwrapBuilder{
		args: []string{bwrapPath},
		env:  make(map[string]string),
	}
}

// addNamespaces unshares everything except the network namespace: the
// sandboxed tool needs outbound API access.
func (b *bwrapBuilder) addNamespaces() {
	b.args = append(b.args,
		"--unshare-user",
		"--unshare-pid",
		"--unshare-uts",
		"--unshare-cgroup",
		"--share-net",
	)
}

// systemMounts are the read-only host paths the agent tool needs to
// run: standard libraries and binaries, the SSL trust store, and DNS
// resolution files. Paths absent on the host are skipped.
var systemMounts = []string{
	"/usr",
	"/lib",
	"/lib64",
	"/bin",
	"/etc/ssl",
	"/etc/resolv.conf",
	"/etc/hosts",
}

func (b *bwrapBuilder) addSystemMounts() {
	for _, path := range systemMounts {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		b.args = append(b.args, "--ro-bind", path, path)
	}
}

// addRuntimeMounts exposes the Node.js runtime and its global module
// directory when present. The agent tool is a Node program; without
// these binds it cannot start.
func (b *bwrapBuilder) addRuntimeMounts() string {
	nodePath, err := exec.LookPath("node")
	if err != nil {
		return ""
	}
	nodeDirectory := filepath.Dir(nodePath)
	b.args = append(b.args, "--ro-bind", nodeDirectory, nodeDirectory)

	// Global modules live under <prefix>/lib/node_modules where the
	// node binary is <prefix>/bin/node.
	moduleDirectory := filepath.Join(filepath.Dir(nodeDirectory), "lib", "node_modules")
	if _, err := os.Stat(moduleDirectory); err != nil {
		return ""
	}
	b.args = append(b.args, "--ro-bind", moduleDirectory, moduleDirectory)
	return moduleDirectory
}

// addWorkspaceMount binds the user workspace read-write at /workspace
// and makes it the working directory. /tmp and /home are tmpfs:
// writable inside the sandbox, discarded with it.
func (b *bwrapBuilder) addWorkspaceMount(workspacePath string) {
	b.args = append(b.args,
		"--bind", workspacePath, "/workspace",
		"--tmpfs", "/tmp",
		"--tmpfs", "/home",
		"--chdir", "/workspace",
		"--dev", "/dev",
		"--proc", "/proc",
	)
}

func (b *bwrapBuilder) setEnv(key, value string) {
	b.env[key] = value
}

// finish appends the environment (sorted for deterministic argv), the
// die-with-parent guarantee, and the sandboxed command itself.
func (b *bwrapBuilder) finish(command []string) ([]string, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("sandbox command is required")
	}

	envKeys := make([]string, 0, len(b.env))
	for key := range b.env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		b.args = append(b.args, "--setenv", key, b.env[key])
	}

	b.args = append(b.args, "--die-with-parent", "--")
	b.args = append(b.args, command...)
	return b.args, nil
}
