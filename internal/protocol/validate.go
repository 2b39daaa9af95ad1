package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeAuth:    true,
	TypeAttach:  true,
	TypeDetach:  true,
	TypeMessage: true,
	TypeCancel:  true,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	// Validate required payload fields per type.
	switch msg.Type {
	case TypeAuth:
		var p AuthPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.Token == "" {
			return nil, fmt.Errorf("missing required field 'token' in %s payload", msg.Type)
		}

	case TypeAttach:
		var p AttachPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.ConversationID == "" {
			return nil, fmt.Errorf("missing required field 'conversationId' in %s payload", msg.Type)
		}

	case TypeMessage:
		var p MessagePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.ConversationID == "" {
			return nil, fmt.Errorf("missing required field 'conversationId' in %s payload", msg.Type)
		}
		if p.Content == "" {
			return nil, fmt.Errorf("missing required field 'content' in %s payload", msg.Type)
		}

	case TypeDetach, TypeCancel:
		var p DetachPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.ConversationID == "" {
			return nil, fmt.Errorf("missing required field 'conversationId' in %s payload", msg.Type)
		}
	}

	return &msg, nil
}
