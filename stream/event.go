// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
)

// EventType tags a parsed stream-json event.
type EventType string

const (
	// EventAssistant carries a complete assistant message.
	EventAssistant EventType = "assistant"

	// EventDelta carries an incremental text fragment.
	EventDelta EventType = "content_block_delta"

	// EventUser echoes user input back.
	EventUser EventType = "user"

	// EventResult is the final event of a request, with usage metadata.
	EventResult EventType = "result"

	// EventError carries an error message.
	EventError EventType = "error"

	// EventSystem carries an informational notice.
	EventSystem EventType = "system"
)

// Event is one parsed line of the agent tool's stream-json output.
// The metadata fields are populated only for EventResult.
type Event struct {
	Type    EventType
	Content string

	// ToolUses lists tool names invoked by an assistant message.
	ToolUses []string

	SessionID    string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// envelope mirrors the wire shape of a stream-json line. Fields that
// vary by event type stay raw until the type is known.
type envelope struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	Delta     *deltaBody      `json:"delta"`
	Result    string          `json:"result"`
	Error     json.RawMessage `json:"error"`
	SessionID string          `json:"session_id"`
	Model     string          `json:"model"`
	Usage     *usageBody      `json:"usage"`
	CostUSD   float64         `json:"cost_usd"`
}

type deltaBody struct {
	Text string `json:"text"`
}

type usageBody struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messageBody struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

type errorBody struct {
	Message string `json:"message"`
}

// ParseLine parses one stdout line into an Event. Lines that are not
// valid JSON objects return ok=false; callers drop them without
// failing the stream.
func ParseLine(line []byte) (Event, bool) {
	var raw envelope
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, false
	}
	if raw.Type == "" {
		return Event{}, false
	}

	event := Event{Type: EventType(raw.Type)}
	switch event.Type {
	case EventAssistant:
		event.Content, event.ToolUses = parseAssistantMessage(raw.Message)
	case EventDelta:
		if raw.Delta != nil {
			event.Content = raw.Delta.Text
		}
	case EventResult:
		event.Content = raw.Result
		event.SessionID = raw.SessionID
		event.Model = raw.Model
		event.CostUSD = raw.CostUSD
		if raw.Usage != nil {
			event.InputTokens = raw.Usage.InputTokens
			event.OutputTokens = raw.Usage.OutputTokens
		}
	case EventError:
		event.Content = parseErrorMessage(raw.Error)
	case EventSystem:
		// System notices put the text in "message" as a plain string.
		var notice string
		if json.Unmarshal(raw.Message, &notice) == nil {
			event.Content = notice
		}
	}
	return event, true
}

// parseAssistantMessage concatenates the text blocks of an assistant
// message and collects the names of its tool-use blocks. The message
// field is occasionally a bare string rather than a structured body.
func parseAssistantMessage(raw json.RawMessage) (string, []string) {
	if len(raw) == 0 {
		return "", nil
	}

	var body messageBody
	if err := json.Unmarshal(raw, &body); err == nil {
		var text string
		var tools []string
		for _, block := range body.Content {
			switch block.Type {
			case "text":
				text += block.Text
			case "tool_use":
				name := block.Name
				if name == "" {
					name = "unknown"
				}
				tools = append(tools, name)
			}
		}
		return text, tools
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil
	}
	return "", nil
}

// parseErrorMessage handles both {"message": "..."} and bare-string
// error payloads.
func parseErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return string(raw)
}
