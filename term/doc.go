// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package term reconstructs the visible state of a terminal from a raw
// PTY byte stream. Interactive tools repaint their screen constantly
// (cursor jumps, partial-line overwrites, full redraws), so a literal
// transcript of the byte stream is unreadable. [Screen] is a fixed-size
// virtual display with an embedded escape-sequence interpreter: feeding
// it the raw stream collapses all repainting into a stable 2-D
// character grid, from which the visible text and a trailing status
// line can be recovered.
//
// [OutputBuffer] layers delta computation on top: each Feed reports
// only the text that extends what was previously reported, so repeated
// redraws of unchanged content are not re-delivered downstream.
//
// The interpreter covers the sequences that matter for text recovery
// (cursor motion, erase, scroll, save/restore) and ignores
// styling (SGR), mode switches, and operating-system commands. It is
// not a full terminal emulator. [StripANSI] serves the cases where
// screen reconstruction is unnecessary and plain sequence removal
// suffices.
package term
