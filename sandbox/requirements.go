// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os/exec"
)

// Requirements reports which host-side prerequisites for sandboxed
// sessions are satisfied.
type Requirements struct {
	// Bwrap is true when the bubblewrap binary is present and
	// executable.
	Bwrap bool

	// Agent is true when the agent tool binary is present.
	Agent bool

	// Node is true when a Node.js runtime is on the host PATH.
	Node bool

	// Problems lists a human-readable line per missing requirement.
	Problems []string
}

// Satisfied reports whether sandboxed sessions can start at all.
func (r *Requirements) Satisfied() bool {
	return r.Bwrap && r.Agent
}

// CheckRequirements probes the host for everything a sandboxed session
// needs. It never returns an error: missing pieces are reported in the
// result so the caller can decide whether to degrade or refuse.
func (b *Builder) CheckRequirements() *Requirements {
	requirements := &Requirements{}

	if _, err := exec.LookPath(b.BwrapPath); err == nil {
		requirements.Bwrap = true
	} else {
		requirements.Problems = append(requirements.Problems,
			fmt.Sprintf("bubblewrap not found at %q", b.BwrapPath))
	}

	if _, err := exec.LookPath(b.AgentPath); err == nil {
		requirements.Agent = true
	} else {
		requirements.Problems = append(requirements.Problems,
			fmt.Sprintf("agent tool not found at %q", b.AgentPath))
	}

	if _, err := exec.LookPath("node"); err == nil {
		requirements.Node = true
	} else {
		requirements.Problems = append(requirements.Problems,
			"node runtime not found on PATH")
	}

	return requirements
}
