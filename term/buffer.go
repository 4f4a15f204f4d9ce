// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package term

import "strings"

// ParsedOutput is one read cycle's worth of reconstructed output.
type ParsedOutput struct {
	// Content is the newly visible text since the previous feed,
	// cleaned of control sequences and surrounding whitespace.
	Content string

	// Statusbar is the trailing status line, empty when the bottom
	// row does not look like one.
	Statusbar string

	// Raw is the original byte chunk that produced this output.
	Raw []byte
}

// OutputBuffer accumulates a PTY stream through a [Screen] and reports
// incremental output: each Feed returns only the suffix that extends
// the previously reported content. When the screen content no longer
// extends the old content as a prefix (the tool cleared or redrew the
// screen), the full new content is reported instead.
type OutputBuffer struct {
	screen      *Screen
	lastContent string
}

// NewOutputBuffer creates a buffer over a screen with the given
// geometry.
func NewOutputBuffer(cols, rows int) *OutputBuffer {
	return &OutputBuffer{screen: NewScreen(cols, rows)}
}

// Feed interprets data and returns the delta since the previous feed
// plus the current status line.
func (b *OutputBuffer) Feed(data []byte) ParsedOutput {
	b.screen.Feed(data)

	current := b.screen.Content()
	delta := current
	if strings.HasPrefix(current, b.lastContent) {
		delta = current[len(b.lastContent):]
	}
	b.lastContent = current

	statusbar, _ := b.screen.Statusbar()
	return ParsedOutput{
		Content:   strings.TrimSpace(delta),
		Statusbar: statusbar,
		Raw:       data,
	}
}

// FullContent returns the complete reconstructed screen content as of
// the last feed.
func (b *OutputBuffer) FullContent() string {
	return b.lastContent
}

// Statusbar returns the current status line, if the bottom screen row
// looks like one.
func (b *OutputBuffer) Statusbar() (string, bool) {
	return b.screen.Statusbar()
}

// Clear resets the screen and delta state.
func (b *OutputBuffer) Clear() {
	b.screen.Reset()
	b.lastContent = ""
}
