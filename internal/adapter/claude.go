package adapter

import (
	"encoding/json"
	"strings"

	"agentdeck/internal/event"
)

// ClaudeAdapter speaks the Claude CLI's stream-json format: one JSON object
// per line, with system/assistant/user/result message types and nested
// content blocks.
type ClaudeAdapter struct{}

// NewClaudeAdapter returns the adapter for the claude CLI.
func NewClaudeAdapter() *ClaudeAdapter {
	return &ClaudeAdapter{}
}

func (a *ClaudeAdapter) Name() string { return "claude" }

func (a *ClaudeAdapter) Capabilities() Capabilities {
	return Capabilities{
		Streaming:     true,
		ToolUse:       true,
		FileEditing:   true,
		SessionResume: true,
		MultiTurn:     true,
		ResumeOnExit:  true,
	}
}

func (a *ClaudeAdapter) BuildInteractiveArgs(spec LaunchSpec) []string {
	args := []string{
		"--resume", spec.SessionID,
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
	}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	if spec.Mode != "" {
		args = append(args, "--permission-mode", spec.Mode)
	}
	return args
}

// claudeMessage mirrors the subset of the stream-json schema the parser
// consumes. Unknown fields are ignored by encoding/json.
type claudeMessage struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Message   struct {
		Content []claudeContent `json:"content"`
		Usage   *claudeUsage    `json:"usage"`
	} `json:"message"`
	Result string       `json:"result"`
	Error  string       `json:"error"`
	Usage  *claudeUsage `json:"usage"`
}

type claudeContent struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (a *ClaudeAdapter) ParseChunk(data []byte, st *ParseState) []event.Event {
	var events []event.Event
	for _, line := range st.splitLines(data) {
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		// Non-JSON lines show up with --verbose; keep them as raw output
		// rather than dropping or failing.
		if !strings.HasPrefix(trimmed, "{") {
			events = append(events, event.Raw(trimmed))
			continue
		}

		var msg claudeMessage
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil || msg.Type == "" {
			events = append(events, event.Raw(trimmed))
			continue
		}
		events = append(events, a.convert(&msg, st)...)
	}
	return events
}

func (a *ClaudeAdapter) convert(msg *claudeMessage, st *ParseState) []event.Event {
	var events []event.Event

	switch msg.Type {
	case "text":
		// Bare text records show up in some CLI builds alongside the full
		// assistant envelope; accept both.
		if msg.Content != "" {
			events = append(events, event.Text(msg.Content))
		}

	case "system":
		if msg.Subtype == "init" {
			ev := event.New(event.TypeSessionStart)
			ev.SessionID = msg.SessionID
			events = append(events, ev)
		}

	case "assistant":
		for _, c := range msg.Message.Content {
			switch c.Type {
			case "text":
				if c.Text != "" {
					events = append(events, event.Text(c.Text))
				}
			case "thinking":
				if c.Thinking != "" {
					ev := event.New(event.TypeThinking)
					ev.Content = c.Thinking
					events = append(events, ev)
				}
			case "tool_use":
				ev := event.New(event.TypeToolUseStart)
				ev.ToolID = c.ID
				ev.ToolName = c.Name
				ev.ToolInput = compactJSON(c.Input)
				annotateToolUse(&ev, c.Name, c.Input)
				st.trackStart(ev.ToolID)
				events = append(events, ev)
			}
		}
		if msg.Message.Usage != nil {
			events = append(events, usageEvent(msg.Message.Usage))
		}

	case "user":
		// User messages in stream-json carry tool results.
		for _, c := range msg.Message.Content {
			if c.Type != "tool_result" && c.ToolUseID == "" {
				continue
			}
			ev := event.New(event.TypeToolUseResult)
			ev.ToolID = c.ToolUseID
			ev.Content = flattenResultContent(c.Content)
			ev.IsError = c.IsError
			ev.Orphaned = !st.resolveResult(c.ToolUseID)
			events = append(events, ev)
		}

	case "result":
		if msg.Subtype != "" && msg.Subtype != "success" {
			ev := event.New(event.TypeError)
			ev.Content = msg.Error
			if ev.Content == "" {
				ev.Content = msg.Result
			}
			events = append(events, ev)
		}
		if msg.Usage != nil {
			events = append(events, usageEvent(msg.Usage))
		}
	}

	return events
}

func (a *ClaudeAdapter) DetectApprovalRequest(string) *event.Event {
	// Claude's stream-json surfaces approvals structurally; no heuristics.
	return nil
}

func usageEvent(u *claudeUsage) event.Event {
	ev := event.New(event.TypeUsage)
	ev.InputTokens = u.InputTokens
	ev.OutputTokens = u.OutputTokens
	return ev
}

// annotateToolUse specializes well-known tools into richer event types'
// payload fields so clients can render file and command activity without
// re-parsing tool input.
func annotateToolUse(ev *event.Event, name string, input json.RawMessage) {
	if len(input) == 0 {
		return
	}
	var fields struct {
		FilePath string `json:"file_path"`
		Command  string `json:"command"`
	}
	if err := json.Unmarshal(input, &fields); err != nil {
		return
	}
	switch name {
	case "Read":
		ev.FilePath = fields.FilePath
	case "Edit", "Write":
		ev.FilePath = fields.FilePath
	case "Bash":
		ev.Command = fields.Command
	}
}

// flattenResultContent renders tool_result content, which may be a plain
// string or an array of content blocks, as one string.
func flattenResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
