// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package term

import "github.com/charmbracelet/x/ansi"

// StripANSI removes ANSI escape sequences (cursor movement, styling,
// operating-system commands) from text. Use this when plain
// sequence removal is enough and full screen reconstruction via
// [Screen] is unnecessary (log lines, one-shot command output).
func StripANSI(text string) string {
	return ansi.Strip(text)
}
