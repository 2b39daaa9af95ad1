// Package event defines the normalized, tool-agnostic representation of
// agent output. Every adapter parses its CLI's wire format into this one
// tagged union so the rest of the system never sees raw tool output.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the normalized event union.
type Type string

const (
	TypeText            Type = "text"
	TypeThinking        Type = "thinking"
	TypeToolUseStart    Type = "tool_use_start"
	TypeToolUseResult   Type = "tool_use_result"
	TypeFileRead        Type = "file_read"
	TypeFileEdit        Type = "file_edit"
	TypeCommandRun      Type = "command_run"
	TypeCommandOutput   Type = "command_output"
	TypeApprovalRequest Type = "approval_request"
	TypeInputRequest    Type = "input_request"
	TypeError           Type = "error"
	TypeProgress        Type = "progress"
	TypeCodeBlock       Type = "code_block"
	TypeRaw             Type = "raw"
	TypeSessionStart    Type = "session_start"
	TypeSessionEnd      Type = "session_end"
	TypeUsage           Type = "usage"
)

// Event is one normalized unit of agent output. Only the fields relevant
// to the Type are populated; everything else stays at its zero value and
// is omitted on the wire.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`

	// Text-like payloads (text, thinking, raw, error, progress, code_block).
	Content  string `json:"content,omitempty"`
	Language string `json:"language,omitempty"`

	// Tool use correlation (tool_use_start, tool_use_result).
	ToolID    string `json:"toolId,omitempty"`
	ToolName  string `json:"toolName,omitempty"`
	ToolInput string `json:"toolInput,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
	// Orphaned marks a tool_use_result whose ToolID never had a matching
	// tool_use_start. Such results are kept, never dropped.
	Orphaned bool `json:"orphaned,omitempty"`

	// File operations (file_read, file_edit).
	FilePath string `json:"filePath,omitempty"`

	// Command execution (command_run, command_output).
	Command  string `json:"command,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`

	// Prompting (approval_request, input_request).
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options,omitempty"`

	// Session lifecycle (session_start, session_end).
	SessionID string `json:"sessionId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Suspended bool   `json:"suspended,omitempty"`

	// Token accounting (usage).
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
}

// New creates an event of the given type with a fresh ID and UTC timestamp.
func New(t Type) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      t,
	}
}

// Text creates a text event carrying content.
func Text(content string) Event {
	ev := New(TypeText)
	ev.Content = content
	return ev
}

// Raw creates a raw event preserving output that could not be decoded.
func Raw(content string) Event {
	ev := New(TypeRaw)
	ev.Content = content
	return ev
}
