// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits arbitrarily long text into transport-size-limited
// pieces at content-aware boundaries. Chat transports cap message length;
// naive splitting tears fenced code blocks apart and produces chunks that
// render badly on their own. Split keeps every delivered chunk
// independently well-formed: an unterminated fence at a split point is
// closed in the outgoing chunk and reopened in the next one.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// fence is the fenced-code-block marker.
const fence = "```"

// minRepairLimit is the smallest limit at which fence repair can make
// forward progress: a repaired chunk carries a closing "\n```" and the
// remainder is reopened with "```\n", so each pass must consume more
// than those four runes. Below this, chunks are cut without repair;
// pieces this small cannot hold a balanced fence pair anyway.
const minRepairLimit = 2*(len(fence)+1) + 1

// Split divides text into ordered chunks of at most limit characters.
//
// The split point for each chunk is searched backward from the limit:
// fenced-code-block boundary first, then blank-line paragraph break,
// then line break, then word break. A candidate is accepted only when
// it lies past the chunk's halfway point; otherwise the chunk is cut
// hard at the limit.
//
// When a chunk would end inside a fenced block, a closing fence is
// appended to it and an opening fence is prepended to the remainder,
// so concatenating the chunks with those repair markers removed
// reproduces the input exactly.
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	remaining := []rune(text)

	for len(remaining) > 0 {
		if len(remaining) <= limit {
			chunks = append(chunks, string(remaining))
			break
		}

		split := splitPoint(remaining, limit)

		if limit < minRepairLimit {
			chunks = append(chunks, string(remaining[:split]))
			remaining = remaining[split:]
			continue
		}

		// If the chunk leaves a fence open, the repair suffix needs
		// room. Back the split off until the closing fence fits;
		// cutting can change fence parity, so recheck each time.
		for {
			candidate := string(remaining[:split])
			if strings.Count(candidate, fence)%2 == 0 {
				chunks = append(chunks, candidate)
				remaining = remaining[split:]
				break
			}
			if split > limit-len(fence)-1 {
				split = limit - len(fence) - 1
				if split < 1 {
					split = 1
				}
				continue
			}
			chunks = append(chunks, candidate+"\n"+fence)
			reopened := make([]rune, 0, len(fence)+1+len(remaining)-split)
			reopened = append(reopened, []rune(fence+"\n")...)
			reopened = append(reopened, remaining[split:]...)
			remaining = reopened
			break
		}
	}

	return chunks
}

// splitPoint finds the rune index to cut a chunk at, given that
// len(remaining) > limit. Boundaries are searched from the limit
// backward and accepted only past the halfway point.
func splitPoint(remaining []rune, limit int) int {
	window := string(remaining[:limit])

	if index := strings.LastIndex(window, fence+"\n"); index >= 0 {
		point := utf8.RuneCountInString(window[:index]) + len(fence) + 1
		if point > limit/2 {
			return point
		}
	}
	if index := strings.LastIndex(window, "\n\n"); index >= 0 {
		point := utf8.RuneCountInString(window[:index]) + 2
		if point > limit/2 {
			return point
		}
	}
	if index := strings.LastIndex(window, "\n"); index >= 0 {
		point := utf8.RuneCountInString(window[:index]) + 1
		if point > limit/2 {
			return point
		}
	}
	if index := strings.LastIndex(window, " "); index >= 0 {
		point := utf8.RuneCountInString(window[:index]) + 1
		if point > limit/2 {
			return point
		}
	}
	return limit
}

// terminalPrefixes mark lines that look like shell or REPL transcript
// output rather than prose.
var terminalPrefixes = []string{"$", ">", "#"}

// Wrap formats reconstructed terminal output for chat display. Text
// that already starts with a fence is passed through; text that looks
// like a terminal transcript (prompt-prefixed lines, or more than a
// few lines) is wrapped in a fenced block so it renders monospaced.
func Wrap(text string) string {
	if text == "" {
		return ""
	}
	if strings.HasPrefix(text, fence) {
		return text
	}

	lines := strings.Split(text, "\n")
	looksLikeTerminal := false
	for i, line := range lines {
		if i >= 5 {
			break
		}
		for _, prefix := range terminalPrefixes {
			if strings.HasPrefix(line, prefix) {
				looksLikeTerminal = true
			}
		}
	}

	if looksLikeTerminal || len(lines) > 3 {
		return fence + "\n" + text + "\n" + fence
	}
	return text
}
