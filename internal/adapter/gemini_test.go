package adapter

import (
	"testing"

	"agentdeck/internal/event"
)

func TestGemini_PlainTextLines(t *testing.T) {
	a := NewGeminiAdapter()
	events := parseAll(t, a, "first line\nsecond line\n")

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != event.TypeText || events[0].Content != "first line" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestGemini_StripsANSI(t *testing.T) {
	a := NewGeminiAdapter()
	events := parseAll(t, a, "\x1b[32mcolored output\x1b[0m\n")

	if len(events) != 1 || events[0].Content != "colored output" {
		t.Fatalf("expected escape codes stripped, got %+v", events)
	}
}

func TestGemini_BlankLinesSkipped(t *testing.T) {
	a := NewGeminiAdapter()
	events := parseAll(t, a, "\n   \n\x1b[2K\nreal\n")

	if len(events) != 1 || events[0].Content != "real" {
		t.Fatalf("expected only the non-blank line, got %+v", events)
	}
}

func TestGemini_ApprovalHeuristics(t *testing.T) {
	a := NewGeminiAdapter()
	lines := []string{
		"Allow execution of 'rm -rf build'? [y/n]",
		"Apply this change?",
		"\x1b[33mDo you want to proceed with the edit\x1b[0m",
	}
	for _, line := range lines {
		ev := a.DetectApprovalRequest(line)
		if ev == nil {
			t.Errorf("expected approval detection for %q", line)
			continue
		}
		if ev.Type != event.TypeApprovalRequest || len(ev.Options) != 2 {
			t.Errorf("unexpected approval event for %q: %+v", line, ev)
		}
	}

	if ev := a.DetectApprovalRequest("just printing yes/no stats"); ev != nil {
		t.Errorf("unexpected approval detection: %+v", ev)
	}
}

func TestGemini_ApprovalInStream(t *testing.T) {
	a := NewGeminiAdapter()
	events := parseAll(t, a, "working...\nAllow execution of 'ls'? [y/n]\n")

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Type != event.TypeApprovalRequest {
		t.Errorf("expected approval event, got %+v", events[1])
	}
}

func TestGemini_InputPrompt(t *testing.T) {
	a := NewGeminiAdapter()
	events := parseAll(t, a, "> \n")

	if len(events) != 1 || events[0].Type != event.TypeInputRequest {
		t.Fatalf("expected input request, got %+v", events)
	}
}

func TestGemini_NotResumableOnExit(t *testing.T) {
	a := NewGeminiAdapter()
	if a.Capabilities().ResumeOnExit {
		t.Error("gemini processes do not survive clean exits as resumable")
	}
}
