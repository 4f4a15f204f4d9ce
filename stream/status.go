// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"strings"
)

// Status is the externally visible snapshot of a session's identity
// and usage, updated from result events.
type Status struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	SessionID    string
}

// Statusline renders the snapshot as "model | N tokens | $cost".
// Zero-valued parts are omitted; an empty Status renders as "".
func (s Status) Statusline() string {
	var parts []string
	if s.Model != "" {
		parts = append(parts, s.Model)
	}
	if total := s.InputTokens + s.OutputTokens; total > 0 {
		parts = append(parts, fmt.Sprintf("%d tokens", total))
	}
	if s.CostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.4f", s.CostUSD))
	}
	return strings.Join(parts, " | ")
}
