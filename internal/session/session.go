package session

import (
	"sync"
	"time"

	"agentdeck/internal/adapter"
	"agentdeck/internal/event"
)

// State is the lifecycle state of a session.
type State string

const (
	StateStarting  State = "starting"
	StateActive    State = "active"
	StateSuspended State = "suspended"
	StateEnded     State = "ended"
)

// Description identifies a session to clients.
type Description struct {
	ConversationID string
	Tool           string
	WorkspacePath  string
}

// Status is the read-only view of a session for the management surface.
type Status struct {
	ConversationID  string    `json:"conversationId"`
	Tool            string    `json:"tool"`
	WorkspacePath   string    `json:"workspacePath"`
	State           State     `json:"state"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
	AttachedClients int       `json:"attachedClients"`
	Pid             int       `json:"pid,omitempty"`
}

const emitQueueCap = 256

// Session binds one conversation ID to at most one live agent process,
// its parser state, its replay buffer, and its attached clients. All
// mutation goes through the Manager.
type Session struct {
	conversationID string
	tool           string
	workspacePath  string

	// parseMu serializes parser access across a respawn, where the old
	// process's read loop may still be flushing while the new one starts.
	parseMu sync.Mutex

	mu           sync.Mutex
	state        State
	process      Process
	gen          int // spawn generation; stale exit notifications are ignored
	parse        *adapter.ParseState
	lastActivity time.Time
	timer        *time.Timer
	timeout      time.Duration
	buf          *RingBuffer
	subscribers  map[string]chan event.Event
	emit         chan event.Event
	closed       chan struct{}
	removed      bool
}

func newSession(conversationID, tool, workspacePath string, bufSize int) *Session {
	s := &Session{
		conversationID: conversationID,
		tool:           tool,
		workspacePath:  workspacePath,
		state:          StateStarting,
		parse:          adapter.NewParseState(),
		lastActivity:   time.Now().UTC(),
		buf:            NewRingBuffer(bufSize),
		subscribers:    make(map[string]chan event.Event),
		emit:           make(chan event.Event, emitQueueCap),
		closed:         make(chan struct{}),
	}
	go s.pump()
	return s
}

// enqueue hands an event to the session's ordered emit queue. A full
// queue blocks the producer (the process read loop), which back-pressures
// the PTY rather than reordering or dropping.
func (s *Session) enqueue(ev event.Event) {
	s.mu.Lock()
	removed := s.removed
	s.mu.Unlock()
	if removed {
		return
	}
	select {
	case s.emit <- ev:
	case <-s.closed:
	}
}

// pump is the single consumer of the emit queue and the only goroutine
// that delivers to or closes subscriber channels. Buffer write and fan-out
// happen under the session lock, so a client attaching mid-stream sees a
// replay snapshot perfectly contiguous with its live feed. On close the
// pump drains whatever is still queued (the final session_end included)
// before closing the subscriber channels.
func (s *Session) pump() {
	for {
		select {
		case ev := <-s.emit:
			s.deliver(ev)
		case <-s.closed:
			for {
				select {
				case ev := <-s.emit:
					s.deliver(ev)
				default:
					s.mu.Lock()
					for id, ch := range s.subscribers {
						close(ch)
						delete(s.subscribers, id)
					}
					s.mu.Unlock()
					return
				}
			}
		}
	}
}

func (s *Session) deliver(ev event.Event) {
	s.mu.Lock()
	s.buf.Write(ev)
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber not keeping up; drop for that client rather
			// than stall every other client of this session.
		}
	}
	s.mu.Unlock()
}

// close tears the session down. New enqueues are refused and the pump
// drains and closes subscriber channels. Caller must not hold s.mu.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return
	}
	s.removed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.closed)
}

// Describe returns the session's immutable identity.
func (s *Session) Describe() Description {
	return Description{
		ConversationID: s.conversationID,
		Tool:           s.tool,
		WorkspacePath:  s.workspacePath,
	}
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ConversationID:  s.conversationID,
		Tool:            s.tool,
		WorkspacePath:   s.workspacePath,
		State:           s.state,
		LastActivityAt:  s.lastActivity,
		AttachedClients: len(s.subscribers),
	}
	if s.process != nil && s.state == StateActive {
		st.Pid = s.process.Pid()
	}
	return st
}

// touch records activity and pushes the inactivity deadline out.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	if s.timer != nil {
		s.timer.Reset(s.timeout)
	}
	s.mu.Unlock()
}
