// Package streamparser dispatches an agent's newline-delimited JSON
// stdout into the engine's event vocabulary (spec.md §4.7), and scans
// result text for structured Findings.
package streamparser

import (
	"encoding/json"
	"strings"
)

// ContentBlock is one element of an assistant message's content array.
type ContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type assistantMessage struct {
	Content []ContentBlock `json:"content"`
}

// rawLine is the subset of the agent wire format this parser cares
// about (spec.md §9 Open Questions: "type", "message.content[].type",
// "result" are the keys pinned against the target agent binary).
type rawLine struct {
	Type    string           `json:"type"`
	Message assistantMessage `json:"message"`
	Result  string           `json:"result"`
}

// EventKind classifies a parsed line for the caller (the Dynamic Agent
// Scheduler's launcher).
type EventKind string

const (
	EventOutput    EventKind = "output"
	EventToolUse   EventKind = "tool-use"
	EventSpawnUse  EventKind = "spawn-use"
	EventOpaque    EventKind = "opaque"
	EventIgnored   EventKind = "ignored"
)

// ToolUse describes a parsed tool-use block relevant to file-activity
// bookkeeping (spec.md §4.6).
type ToolUse struct {
	Name  string
	Input map[string]any
}

// Parsed is one dispatched unit of work derived from a single stdout
// line. A line can yield zero or more output lines and zero or more
// tool uses; Parse returns both.
type Parsed struct {
	Kind      EventKind
	Output    []string
	ToolUses  []ToolUse
	IsResult  bool
}

// Parse dispatches a single stdout line. Malformed JSON is never
// fatal — it is returned as an opaque output line (spec.md §4.3,
// §4.7, §7 StreamParseError).
func Parse(line string) Parsed {
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return Parsed{Kind: EventIgnored}
	}

	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Parsed{Kind: EventOpaque, Output: []string{line}}
	}

	switch raw.Type {
	case "assistant":
		return parseAssistant(raw.Message)
	case "result":
		return Parsed{
			Kind:     EventOutput,
			Output:   splitNonEmpty(raw.Result),
			IsResult: true,
		}
	default:
		return Parsed{Kind: EventIgnored}
	}
}

func parseAssistant(msg assistantMessage) Parsed {
	var out []string
	var uses []ToolUse
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out = append(out, splitNonEmpty(block.Text)...)
		case "tool_use":
			var input map[string]any
			_ = json.Unmarshal(block.Input, &input)
			uses = append(uses, ToolUse{Name: block.Name, Input: input})
		}
	}
	kind := EventOutput
	for _, u := range uses {
		if strings.Contains(u.Name, "spawn_agent") {
			kind = EventSpawnUse
		}
	}
	return Parsed{Kind: kind, Output: out, ToolUses: uses}
}

func splitNonEmpty(text string) []string {
	if text == "" {
		return nil
	}
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FileAffectingAction maps a tool name to the file-activity action it
// implies, per spec.md §4.6: "read, grep, glob -> read; edit -> edit;
// write -> create". Returns ok=false for tools with no file-activity
// meaning (e.g. Bash).
func FileAffectingAction(toolName string) (action string, ok bool) {
	switch toolName {
	case "Read", "Glob", "Grep":
		return "read", true
	case "Edit":
		return "edit", true
	case "Write":
		return "create", true
	default:
		return "", false
	}
}

// ToolFilePath extracts the file path a tool-use block targeted,
// checking the common field names the agent binary uses.
func ToolFilePath(input map[string]any) string {
	if v, ok := input["file_path"].(string); ok && v != "" {
		return v
	}
	if v, ok := input["path"].(string); ok && v != "" {
		return v
	}
	if v, ok := input["pattern"].(string); ok && v != "" {
		return v
	}
	return ""
}
