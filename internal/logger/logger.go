// Package logger provides the process-wide structured logger. Components
// take child loggers via WithComponent or WithConversation so every entry
// carries its origin.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu       sync.Mutex
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
)

// Init points the root logger at w. Safe to call more than once; later
// calls replace the handler.
func Init(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// SetDebug toggles debug-level output.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// Get returns the root logger.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	}
	return root
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// WithConversation returns a logger tagged with a conversation ID.
func WithConversation(conversationID string) *slog.Logger {
	return Get().With("conversationId", conversationID)
}
