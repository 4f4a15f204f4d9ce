// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/workbench/chunk"
)

const defaultFlushThreshold = 500

// Formatter turns a sequence of events into ready-to-send text chunks
// plus a status snapshot. Partial deltas accumulate until the buffer
// crosses the flush threshold; a complete assistant message supersedes
// any buffered deltas; the final result flushes whatever remains.
type Formatter struct {
	// Limit is the per-chunk size ceiling passed to the chunker.
	// Zero disables chunking (content is emitted whole).
	Limit int

	// FlushThreshold is the delta buffer size that triggers a flush.
	// Zero means 500.
	FlushThreshold int

	pending strings.Builder
	status  Status
}

func (f *Formatter) threshold() int {
	if f.FlushThreshold <= 0 {
		return defaultFlushThreshold
	}
	return f.FlushThreshold
}

func (f *Formatter) split(content string) []string {
	if f.Limit <= 0 {
		return []string{content}
	}
	return chunk.Split(content, f.Limit)
}

// Feed processes one event and returns zero or more chunks to send.
func (f *Formatter) Feed(event Event) []string {
	var chunks []string

	// Tool invocations are announced separately, never merged into the
	// text buffer.
	if len(event.ToolUses) > 0 {
		quoted := make([]string, len(event.ToolUses))
		for i, name := range event.ToolUses {
			quoted[i] = "`" + name + "`"
		}
		chunks = append(chunks, fmt.Sprintf("*Using tools: %s*", strings.Join(quoted, ", ")))
	}

	switch event.Type {
	case EventAssistant:
		// The complete message supersedes any buffered deltas.
		f.pending.Reset()
		if event.Content != "" {
			chunks = append(chunks, f.split(event.Content)...)
		}

	case EventDelta:
		f.pending.WriteString(event.Content)
		if f.pending.Len() >= f.threshold() {
			chunks = append(chunks, f.flush()...)
		}

	case EventResult:
		if f.pending.Len() > 0 {
			chunks = append(chunks, f.flush()...)
		}
		f.status = Status{
			Model:        event.Model,
			InputTokens:  event.InputTokens,
			OutputTokens: event.OutputTokens,
			CostUSD:      event.CostUSD,
			SessionID:    event.SessionID,
		}

	case EventError:
		chunks = append(chunks, "**Error:** "+event.Content)
	}

	return chunks
}

func (f *Formatter) flush() []string {
	content := f.pending.String()
	f.pending.Reset()
	return f.split(content)
}

// Flush forces out any buffered delta content.
func (f *Formatter) Flush() []string {
	if f.pending.Len() == 0 {
		return nil
	}
	return f.flush()
}

// Pending returns buffered content that has not been emitted yet.
func (f *Formatter) Pending() string {
	return f.pending.String()
}

// Status returns the snapshot from the most recent result event.
func (f *Formatter) Status() Status {
	return f.status
}

// Reset clears buffered content for a new response. The status
// snapshot is kept; it reflects the conversation, not one response.
func (f *Formatter) Reset() {
	f.pending.Reset()
}
