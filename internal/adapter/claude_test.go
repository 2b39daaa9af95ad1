package adapter

import (
	"testing"

	"agentdeck/internal/event"
)

func parseAll(t *testing.T, a Adapter, chunks ...string) []event.Event {
	t.Helper()
	st := NewParseState()
	var events []event.Event
	for _, c := range chunks {
		events = append(events, a.ParseChunk([]byte(c), st)...)
	}
	return events
}

func TestClaude_SystemInit(t *testing.T) {
	a := NewClaudeAdapter()
	events := parseAll(t, a, `{"type":"system","subtype":"init","session_id":"sess-1"}`+"\n")

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != event.TypeSessionStart || events[0].SessionID != "sess-1" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestClaude_AssistantTextAndThinking(t *testing.T) {
	a := NewClaudeAdapter()
	line := `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"hello"}]}}` + "\n"
	events := parseAll(t, a, line)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != event.TypeThinking || events[0].Content != "hmm" {
		t.Errorf("unexpected thinking event %+v", events[0])
	}
	if events[1].Type != event.TypeText || events[1].Content != "hello" {
		t.Errorf("unexpected text event %+v", events[1])
	}
}

func TestClaude_SplitChunkInvariance(t *testing.T) {
	// The same record must yield the same events no matter where the
	// chunk boundaries fall.
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"split me"}]}}` + "\n"

	for cut := 1; cut < len(line)-1; cut += 7 {
		a := NewClaudeAdapter()
		events := parseAll(t, a, line[:cut], line[cut:])
		if len(events) != 1 {
			t.Fatalf("cut at %d: expected 1 event, got %d", cut, len(events))
		}
		if events[0].Type != event.TypeText || events[0].Content != "split me" {
			t.Errorf("cut at %d: unexpected event %+v", cut, events[0])
		}
	}
}

func TestClaude_IncompleteLineHeldBack(t *testing.T) {
	a := NewClaudeAdapter()
	st := NewParseState()

	events := a.ParseChunk([]byte(`{"type":"text","con`), st)
	if len(events) != 0 {
		t.Fatalf("partial line must produce no events, got %d", len(events))
	}

	events = a.ParseChunk([]byte(`tent":"Hi"}`+"\n"), st)
	if len(events) != 1 || events[0].Content != "Hi" {
		t.Fatalf("expected completed text event, got %+v", events)
	}
}

func TestClaude_MalformedLineBecomesRaw(t *testing.T) {
	a := NewClaudeAdapter()
	events := parseAll(t, a, "{\"type\":\"assistant\",broken\nplain terminal noise\n")

	if len(events) != 2 {
		t.Fatalf("expected 2 raw events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Type != event.TypeRaw {
			t.Errorf("expected raw event, got %+v", ev)
		}
	}
}

func TestClaude_ToolUseCorrelation(t *testing.T) {
	a := NewClaudeAdapter()
	st := NewParseState()

	start := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu-1","name":"Bash","input":{"command":"ls -la"}}]}}` + "\n"
	events := a.ParseChunk([]byte(start), st)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != event.TypeToolUseStart || events[0].ToolID != "tu-1" {
		t.Fatalf("unexpected start event %+v", events[0])
	}
	if events[0].Command != "ls -la" {
		t.Errorf("expected Bash input annotated as command, got %+v", events[0])
	}
	if st.PendingCount() != 1 {
		t.Errorf("expected 1 pending tool use, got %d", st.PendingCount())
	}

	result := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu-1","content":"total 0","is_error":false}]}}` + "\n"
	events = a.ParseChunk([]byte(result), st)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != event.TypeToolUseResult || ev.ToolID != "tu-1" || ev.Content != "total 0" {
		t.Errorf("unexpected result event %+v", ev)
	}
	if ev.Orphaned {
		t.Error("matched result must not be orphaned")
	}
	if st.PendingCount() != 0 {
		t.Errorf("expected pending set drained, got %d", st.PendingCount())
	}
}

func TestClaude_OrphanedResult(t *testing.T) {
	a := NewClaudeAdapter()
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"never-started","content":"?"}]}}` + "\n"
	events := parseAll(t, a, line)

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].Orphaned {
		t.Errorf("result without a start must be flagged orphaned, got %+v", events[0])
	}
}

func TestClaude_FileToolAnnotation(t *testing.T) {
	a := NewClaudeAdapter()
	line := `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"tu-2","name":"Edit","input":{"file_path":"/src/main.go"}}]}}` + "\n"
	events := parseAll(t, a, line)

	if len(events) != 1 || events[0].FilePath != "/src/main.go" {
		t.Fatalf("expected file path annotation, got %+v", events)
	}
}

func TestClaude_ResultError(t *testing.T) {
	a := NewClaudeAdapter()
	line := `{"type":"result","subtype":"error_during_execution","error":"boom","usage":{"input_tokens":10,"output_tokens":3}}` + "\n"
	events := parseAll(t, a, line)

	if len(events) != 2 {
		t.Fatalf("expected error plus usage, got %d events", len(events))
	}
	if events[0].Type != event.TypeError || events[0].Content != "boom" {
		t.Errorf("unexpected error event %+v", events[0])
	}
	if events[1].Type != event.TypeUsage || events[1].InputTokens != 10 || events[1].OutputTokens != 3 {
		t.Errorf("unexpected usage event %+v", events[1])
	}
}

func TestClaude_ResultToolContentBlocks(t *testing.T) {
	a := NewClaudeAdapter()
	st := NewParseState()
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tu-3","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}]}}` + "\n"
	events := a.ParseChunk([]byte(line), st)

	if len(events) != 1 || events[0].Content != "a\nb" {
		t.Fatalf("expected flattened block content, got %+v", events)
	}
}

func TestClaude_InteractiveArgs(t *testing.T) {
	a := NewClaudeAdapter()
	args := a.BuildInteractiveArgs(LaunchSpec{SessionID: "conv-1", Model: "opus"})

	want := []string{"--resume", "conv-1", "--input-format", "stream-json",
		"--output-format", "stream-json", "--verbose", "--model", "opus"}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %v", len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %s, got %s", i, want[i], args[i])
		}
	}
}
