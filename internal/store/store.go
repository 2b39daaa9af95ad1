// Package store defines the persistence contract the orchestrator uses to
// record session lifecycles across process restarts, plus concrete
// implementations.
package store

import (
	"context"
	"time"
)

// Record is what survives of a session outside the orchestrator: enough
// to list it, resume it, and explain why it stopped.
type Record struct {
	State         string    `json:"state"`
	Tool          string    `json:"tool"`
	WorkspacePath string    `json:"workspacePath"`
	LastSessionAt time.Time `json:"lastSessionAt"`
	SuspendReason string    `json:"suspendReason,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	State string
	Tool  string
	Limit int
}

// Store is the external persistence contract.
type Store interface {
	// Load returns the record for a conversation, or nil when none exists.
	Load(ctx context.Context, conversationID string) (*Record, error)
	// Save upserts the record for a conversation.
	Save(ctx context.Context, conversationID string, rec Record) error
	// List returns records matching the filter, most recent first.
	List(ctx context.Context, f Filter) (map[string]Record, error)
}
