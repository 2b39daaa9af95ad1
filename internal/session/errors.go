package session

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceExhausted means the concurrent-session limit is reached.
	ErrResourceExhausted = errors.New("maximum concurrent sessions reached")
	// ErrNotFound means no session (live or resumable) exists for the
	// conversation, or resuming it is disabled.
	ErrNotFound = errors.New("session not found")
	// ErrSessionEnded means the session reached a terminal state.
	ErrSessionEnded = errors.New("session ended")
)

// SpawnError wraps a failure to launch the agent process. The attempt is
// fatal but the conversation stays absent/resumable.
type SpawnError struct {
	Tool string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Tool, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
