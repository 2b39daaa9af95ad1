// Package protocol defines the JSON messages exchanged with clients over
// the persistent connection. A type field discriminates; payloads are
// typed per message.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"agentdeck/internal/event"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Client → Server message types.
const (
	TypeAuth    = "auth"
	TypeAttach  = "attach"
	TypeDetach  = "detach"
	TypeMessage = "message"
	TypeCancel  = "cancel"
)

// Server → Client message types.
const (
	TypeAttached         = "attached"
	TypeContentBlocks    = "contentBlocks"
	TypeSessionSuspended = "sessionSuspended"
	TypeSessionEnded     = "sessionEnded"
	TypeCancelled        = "cancelled"
	TypeError            = "error"
)

// Error codes.
const (
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrInvalidMessage    = "INVALID_MESSAGE"
	ErrUnsupportedTool   = "UNSUPPORTED_TOOL"
	ErrSessionNotFound   = "SESSION_NOT_FOUND"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrSpawnFailed       = "SPAWN_FAILED"
)

// Client → Server payloads.

type AuthPayload struct {
	Token string `json:"token"`
}

type AttachPayload struct {
	ConversationID string `json:"conversationId"`
	Tool           string `json:"tool,omitempty"`
	WorkspacePath  string `json:"workspacePath,omitempty"`
}

type DetachPayload struct {
	ConversationID string `json:"conversationId"`
}

type MessagePayload struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type CancelPayload struct {
	ConversationID string `json:"conversationId"`
}

// Server → Client payloads.

type AttachedPayload struct {
	ConversationID string `json:"conversationId"`
	Tool           string `json:"tool"`
	IsNew          bool   `json:"isNew"`
	WorkspacePath  string `json:"workspacePath"`
}

type ContentBlocksPayload struct {
	ConversationID string        `json:"conversationId"`
	Blocks         []event.Event `json:"blocks"`
}

type SessionSuspendedPayload struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

type SessionEndedPayload struct {
	ConversationID string `json:"conversationId"`
	Reason         string `json:"reason"`
}

type CancelledPayload struct {
	ConversationID string `json:"conversationId"`
}

type ErrorPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// NewErrorMessage creates an error message ready to send to a client.
func NewErrorMessage(conversationID, code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		ConversationID: conversationID,
		Code:           code,
		Message:        message,
	})
}
