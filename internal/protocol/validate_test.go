package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	payload := AttachedPayload{
		ConversationID: "conv-1",
		Tool:           "claude",
		IsNew:          true,
	}

	msg, err := NewMessage(TypeAttached, payload)
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}

	if msg.Type != TypeAttached {
		t.Errorf("expected type %s, got %s", TypeAttached, msg.Type)
	}

	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero timestamp")
	}

	var p AttachedPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ConversationID != "conv-1" || !p.IsNew {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestValidateClientMessage_ValidAuth(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeAuth,
		"payload":   map[string]interface{}{"token": "secret"},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	result, err := ValidateClientMessage(data)
	if err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
	if result.Type != TypeAuth {
		t.Errorf("expected type %s, got %s", TypeAuth, result.Type)
	}
}

func TestValidateClientMessage_ValidAttach(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeAttach,
		"payload":   map[string]interface{}{"conversationId": "conv-1", "tool": "claude", "workspacePath": "/tmp/ws"},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	if _, err := ValidateClientMessage(data); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_AttachWithoutTool(t *testing.T) {
	// Tool and workspace are optional on attach; suspended conversations
	// resume them from the store.
	msg := map[string]interface{}{
		"type":      TypeAttach,
		"payload":   map[string]interface{}{"conversationId": "conv-1"},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	if _, err := ValidateClientMessage(data); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_ValidUserMessage(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeMessage,
		"payload":   map[string]interface{}{"conversationId": "conv-1", "content": "hello"},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	if _, err := ValidateClientMessage(data); err != nil {
		t.Fatalf("expected valid message, got error: %v", err)
	}
}

func TestValidateClientMessage_InvalidJSON(t *testing.T) {
	_, err := ValidateClientMessage([]byte("not json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestValidateClientMessage_MissingType(t *testing.T) {
	msg := map[string]interface{}{
		"payload":   map[string]interface{}{},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestValidateClientMessage_UnknownType(t *testing.T) {
	msg := map[string]interface{}{
		"type":      "unknown.action",
		"payload":   map[string]interface{}{},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestValidateClientMessage_ServerTypeRejected(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeContentBlocks,
		"payload":   map[string]interface{}{},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for server-originated type")
	}
}

func TestValidateClientMessage_MissingPayload(t *testing.T) {
	data := []byte(`{"type":"attach","timestamp":"2024-01-01T00:00:00.000Z"}`)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing payload")
	}
}

func TestValidateClientMessage_MissingToken(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeAuth,
		"payload":   map[string]interface{}{},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestValidateClientMessage_MissingConversationID(t *testing.T) {
	for _, typ := range []string{TypeAttach, TypeDetach, TypeCancel} {
		msg := map[string]interface{}{
			"type":      typ,
			"payload":   map[string]interface{}{},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		data, _ := json.Marshal(msg)

		if _, err := ValidateClientMessage(data); err == nil {
			t.Errorf("%s: expected error for missing conversationId", typ)
		}
	}
}

func TestValidateClientMessage_MissingContent(t *testing.T) {
	msg := map[string]interface{}{
		"type":      TypeMessage,
		"payload":   map[string]interface{}{"conversationId": "conv-1"},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)

	_, err := ValidateClientMessage(data)
	if err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("conv-1", ErrSessionNotFound, "conversation conv-1 not found")
	if err != nil {
		t.Fatalf("NewErrorMessage failed: %v", err)
	}
	if msg.Type != TypeError {
		t.Errorf("expected type %s, got %s", TypeError, msg.Type)
	}

	var p ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Code != ErrSessionNotFound {
		t.Errorf("expected code %s, got %s", ErrSessionNotFound, p.Code)
	}
	if p.ConversationID != "conv-1" {
		t.Errorf("expected conversation id on error, got %q", p.ConversationID)
	}
}
