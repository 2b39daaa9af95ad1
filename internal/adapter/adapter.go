// Package adapter holds the per-tool strategies that translate between the
// generic orchestration contract and each CLI's launch arguments and output
// format. Adapters are pure with respect to parsing: all carry-over state
// lives in ParseState, owned by the caller.
package adapter

import (
	"errors"

	"agentdeck/internal/event"
)

// ErrUnsupportedTool is returned when no adapter is registered for a tool name.
var ErrUnsupportedTool = errors.New("unsupported tool")

// LaunchSpec carries everything an adapter needs to build resumable
// interactive arguments. SessionID doubles as the agent's own session
// identifier so the CLI resumes the exact logical conversation.
type LaunchSpec struct {
	SessionID     string
	WorkspacePath string
	Model         string
	Mode          string
}

// Capabilities declares what a tool's CLI can do. ResumeOnExit controls
// whether an unexpected process exit leaves the session resumable
// (suspended) or terminal (ended).
type Capabilities struct {
	Streaming     bool
	ToolUse       bool
	FileEditing   bool
	SessionResume bool
	MultiTurn     bool
	ResumeOnExit  bool
}

// Adapter is the per-tool strategy contract.
type Adapter interface {
	// Name returns the tool name the adapter is registered under.
	Name() string

	// BuildInteractiveArgs returns the argument list that launches the CLI
	// in interactive streaming mode, resuming the session in spec.
	BuildInteractiveArgs(spec LaunchSpec) []string

	// Capabilities reports the tool's declared capabilities.
	Capabilities() Capabilities

	// ParseChunk decodes one chunk of raw process output into zero or more
	// normalized events, carrying incomplete records over in st. It never
	// fails: undecodable records become raw events.
	ParseChunk(data []byte, st *ParseState) []event.Event

	// DetectApprovalRequest inspects one plain-text line for a confirmation
	// prompt and synthesizes an approval_request event, or returns nil.
	// Used for tools without structured approval events.
	DetectApprovalRequest(line string) *event.Event
}

// Registry maps tool names to adapters. It is populated once at process
// start and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, skipping nils.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

// DefaultRegistry returns a registry with all built-in tool adapters.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewClaudeAdapter(),
		NewCodexAdapter(),
		NewGeminiAdapter(),
	)
}

// Get returns the adapter for tool, or ErrUnsupportedTool.
func (r *Registry) Get(tool string) (Adapter, error) {
	a, ok := r.adapters[tool]
	if !ok {
		return nil, ErrUnsupportedTool
	}
	return a, nil
}

// Tools returns the registered tool names.
func (r *Registry) Tools() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
