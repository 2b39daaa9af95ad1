package adapter

import (
	"regexp"
	"strings"

	"agentdeck/internal/event"
)

// GeminiAdapter handles the gemini CLI, which streams plain text rather
// than structured records. Lines become text events and confirmation
// prompts are detected heuristically.
type GeminiAdapter struct{}

// NewGeminiAdapter returns the adapter for the gemini CLI.
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) Capabilities() Capabilities {
	return Capabilities{
		Streaming:     true,
		ToolUse:       false,
		FileEditing:   true,
		SessionResume: true,
		MultiTurn:     true,
		ResumeOnExit:  false,
	}
}

func (a *GeminiAdapter) BuildInteractiveArgs(spec LaunchSpec) []string {
	args := []string{"--resume", spec.SessionID}
	if spec.Model != "" {
		args = append(args, "--model", spec.Model)
	}
	return args
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// stripANSI removes terminal escape sequences before pattern matching.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

var approvalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[y/n\]`),
	regexp.MustCompile(`(?i)allow execution`),
	regexp.MustCompile(`(?i)apply this change\?`),
	regexp.MustCompile(`(?i)do you want to proceed`),
	regexp.MustCompile(`(?i)confirm\? \(`),
}

var inputPrompt = regexp.MustCompile(`^\s*>\s*$`)

func (a *GeminiAdapter) ParseChunk(data []byte, st *ParseState) []event.Event {
	var events []event.Event
	for _, line := range st.splitLines(data) {
		text := stripANSI(string(line))
		if strings.TrimSpace(text) == "" {
			continue
		}
		if ev := a.DetectApprovalRequest(text); ev != nil {
			events = append(events, *ev)
			continue
		}
		if inputPrompt.MatchString(text) {
			ev := event.New(event.TypeInputRequest)
			ev.Prompt = strings.TrimSpace(text)
			events = append(events, ev)
			continue
		}
		events = append(events, event.Text(text))
	}
	return events
}

func (a *GeminiAdapter) DetectApprovalRequest(line string) *event.Event {
	clean := stripANSI(line)
	for _, pat := range approvalPatterns {
		if pat.MatchString(clean) {
			ev := event.New(event.TypeApprovalRequest)
			ev.Prompt = strings.TrimSpace(clean)
			ev.Options = []string{"y", "n"}
			return &ev
		}
	}
	return nil
}
