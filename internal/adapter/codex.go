package adapter

import (
	"encoding/json"
	"strings"

	"agentdeck/internal/event"
)

// CodexAdapter speaks the codex proto format: one JSON object per line
// wrapping a typed msg payload.
type CodexAdapter struct{}

// NewCodexAdapter returns the adapter for the codex CLI.
func NewCodexAdapter() *CodexAdapter {
	return &CodexAdapter{}
}

func (a *CodexAdapter) Name() string { return "codex" }

func (a *CodexAdapter) Capabilities() Capabilities {
	return Capabilities{
		Streaming:     true,
		ToolUse:       true,
		FileEditing:   true,
		SessionResume: true,
		MultiTurn:     true,
		ResumeOnExit:  true,
	}
}

func (a *CodexAdapter) BuildInteractiveArgs(spec LaunchSpec) []string {
	args := []string{"proto", "resume", spec.SessionID}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	return args
}

type codexLine struct {
	ID  string `json:"id"`
	Msg struct {
		Type      string          `json:"type"`
		Message   string          `json:"message"`
		Delta     string          `json:"delta"`
		CallID    string          `json:"call_id"`
		RawCmd    json.RawMessage `json:"command"`
		ExitCode  *int            `json:"exit_code"`
		Stdout    string          `json:"stdout"`
		Stderr    string          `json:"stderr"`
		Path      string          `json:"path"`
		Reason    string          `json:"reason"`
		Info      *codexTokenInfo `json:"info"`
		LastAgent string          `json:"last_agent_message"`
	} `json:"msg"`
}

type codexTokenInfo struct {
	TotalTokenUsage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"total_token_usage"`
}

func (a *CodexAdapter) ParseChunk(data []byte, st *ParseState) []event.Event {
	var events []event.Event
	for _, line := range st.splitLines(data) {
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "{") {
			events = append(events, event.Raw(trimmed))
			continue
		}

		var msg codexLine
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil || msg.Msg.Type == "" {
			events = append(events, event.Raw(trimmed))
			continue
		}
		events = append(events, a.convert(&msg, st)...)
	}
	return events
}

func (a *CodexAdapter) convert(msg *codexLine, st *ParseState) []event.Event {
	m := &msg.Msg
	var events []event.Event

	switch m.Type {
	case "session_configured":
		ev := event.New(event.TypeSessionStart)
		ev.SessionID = msg.ID
		events = append(events, ev)

	case "agent_message_delta":
		if m.Delta != "" {
			events = append(events, event.Text(m.Delta))
		}

	case "agent_message":
		if m.Message != "" {
			events = append(events, event.Text(m.Message))
		}

	case "agent_reasoning", "agent_reasoning_delta":
		body := m.Message
		if body == "" {
			body = m.Delta
		}
		if body != "" {
			ev := event.New(event.TypeThinking)
			ev.Content = body
			events = append(events, ev)
		}

	case "exec_command_begin":
		ev := event.New(event.TypeCommandRun)
		ev.ToolID = m.CallID
		ev.Command = joinCommand(m.RawCmd)
		st.trackStart(ev.ToolID)
		events = append(events, ev)

	case "exec_command_end":
		ev := event.New(event.TypeCommandOutput)
		ev.ToolID = m.CallID
		ev.Content = m.Stdout
		if m.Stderr != "" && m.Stdout == "" {
			ev.Content = m.Stderr
		}
		ev.ExitCode = m.ExitCode
		ev.IsError = m.ExitCode != nil && *m.ExitCode != 0
		ev.Orphaned = !st.resolveResult(m.CallID)
		events = append(events, ev)

	case "patch_apply_begin":
		ev := event.New(event.TypeFileEdit)
		ev.FilePath = m.Path
		events = append(events, ev)

	case "exec_approval_request", "apply_patch_approval_request":
		ev := event.New(event.TypeApprovalRequest)
		ev.Prompt = m.Reason
		if ev.Prompt == "" {
			ev.Prompt = joinCommand(m.RawCmd)
		}
		ev.Options = []string{"approve", "deny"}
		events = append(events, ev)

	case "error":
		ev := event.New(event.TypeError)
		ev.Content = m.Message
		events = append(events, ev)

	case "token_count":
		if m.Info != nil {
			ev := event.New(event.TypeUsage)
			ev.InputTokens = m.Info.TotalTokenUsage.InputTokens
			ev.OutputTokens = m.Info.TotalTokenUsage.OutputTokens
			events = append(events, ev)
		}

	case "task_complete":
		ev := event.New(event.TypeProgress)
		ev.Content = "task complete"
		events = append(events, ev)
	}

	return events
}

func (a *CodexAdapter) DetectApprovalRequest(string) *event.Event {
	// Approvals arrive as structured *_approval_request messages.
	return nil
}

// joinCommand renders the command field, which may be an array of argv
// strings or a single string.
func joinCommand(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var argv []string
	if err := json.Unmarshal(raw, &argv); err == nil {
		return strings.Join(argv, " ")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
