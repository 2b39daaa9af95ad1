// Package session orchestrates the lifecycle of agent CLI sessions: one
// live process per conversation at most, suspended on inactivity, resumed
// transparently, with ordered event fan-out to every attached client.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentdeck/internal/adapter"
	"agentdeck/internal/config"
	"agentdeck/internal/event"
	"agentdeck/internal/logger"
	"agentdeck/internal/proc"
	"agentdeck/internal/store"
)

const (
	defaultGracefulTimeout = 5 * time.Second
	subscriberBufCap       = 256
	persistTimeout         = 5 * time.Second
)

// Manager owns the conversation→Session map. It is the single source of
// truth for which processes are live and enforces the concurrency limit.
type Manager struct {
	cfg      *config.Provider
	registry *adapter.Registry
	store    store.Store
	spawn    SpawnFunc
	grace    time.Duration
	log      *slog.Logger

	timeoutOverride time.Duration

	mu        sync.Mutex
	sessions  map[string]*Session
	locks     map[string]*sync.Mutex // per-conversation creation locks
	liveCount int                    // sessions in starting/active
}

// Option configures a Manager.
type Option func(*Manager)

// WithSpawnFunc overrides how processes are launched. Tests inject fakes
// through this.
func WithSpawnFunc(fn SpawnFunc) Option {
	return func(m *Manager) { m.spawn = fn }
}

// WithGracePeriod overrides the graceful-termination window.
func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithInactivityTimeout bypasses the configured inactivity timeout.
// Embedders and tests use this; zero keeps config-driven behavior.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeoutOverride = d }
}

// NewManager creates a session manager with injected config and store.
func NewManager(cfg *config.Provider, registry *adapter.Registry, st store.Store, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		registry: registry,
		store:    st,
		spawn:    DefaultSpawn,
		grace:    defaultGracefulTimeout,
		log:      logger.WithComponent("session"),
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// creationLock returns the per-conversation lock, creating it on first use.
// Locks are never removed; the set is bounded by distinct conversations.
func (m *Manager) creationLock(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

func (m *Manager) get(conversationID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[conversationID]
}

// GetOrCreate returns the session for a conversation, spawning or resuming
// its process as needed. isNew reports whether a process spawn happened.
// Two concurrent calls for the same conversation never double-spawn: the
// per-conversation creation lock serializes them and the second call finds
// the session already active.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID, tool, workspacePath string) (s *Session, isNew bool, err error) {
	lock := m.creationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	if s = m.get(conversationID); s != nil {
		s.mu.Lock()
		state := s.state
		s.mu.Unlock()
		if state == StateActive || state == StateStarting {
			s.touch()
			return s, false, nil
		}
		// Suspended: fall through to respawn with resume arguments.
	}

	s, err = m.spawnSession(ctx, s, conversationID, tool, workspacePath)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// spawnSession launches (or relaunches) the agent process for a
// conversation. Caller holds the conversation's creation lock.
func (m *Manager) spawnSession(ctx context.Context, existing *Session, conversationID, tool, workspacePath string) (*Session, error) {
	cfg := m.cfg.Get()

	// A suspended session already knows its tool and workspace; an unknown
	// conversation may still be resumable from the persistence store.
	if existing != nil {
		if tool == "" {
			tool = existing.tool
		}
		if workspacePath == "" {
			workspacePath = existing.workspacePath
		}
	} else if m.store != nil {
		rec, err := m.store.Load(ctx, conversationID)
		if err != nil {
			m.log.Warn("store load failed", "conversationId", conversationID, "error", err)
		} else if rec != nil {
			if tool == "" {
				tool = rec.Tool
			}
			if workspacePath == "" {
				workspacePath = rec.WorkspacePath
			}
		}
	}

	// A concurrent Terminate holds the creation lock too, but Shutdown
	// does not; refuse to respawn onto a session that was closed.
	if existing != nil {
		existing.mu.Lock()
		removed := existing.removed
		existing.mu.Unlock()
		if removed {
			return nil, ErrSessionEnded
		}
	}

	ad, err := m.registry.Get(tool)
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(workspacePath); err != nil || !info.IsDir() {
		return nil, &SpawnError{Tool: tool, Err: fmt.Errorf("workspace is not a directory: %s", workspacePath)}
	}

	// Capacity check and increment are one critical section, so racing
	// creations for different conversations cannot both pass at the limit.
	m.mu.Lock()
	if m.liveCount >= cfg.MaxConcurrentSessions {
		m.mu.Unlock()
		return nil, ErrResourceExhausted
	}
	m.liveCount++
	s := existing
	created := false
	if s == nil {
		s = newSession(conversationID, tool, workspacePath, cfg.ReplayBufferSize)
		m.sessions[conversationID] = s
		created = true
	}
	m.mu.Unlock()

	args := ad.BuildInteractiveArgs(adapter.LaunchSpec{
		SessionID:     conversationID,
		WorkspacePath: workspacePath,
	})

	sink := func(chunk []byte) { m.handleChunk(s, ad, chunk) }
	p, err := m.spawn(proc.Spec{
		Command:    tool,
		Args:       args,
		WorkingDir: workspacePath,
	}, sink)
	if err != nil {
		m.mu.Lock()
		m.liveCount--
		if created {
			delete(m.sessions, conversationID)
		}
		m.mu.Unlock()
		if created {
			s.close()
		}
		return nil, &SpawnError{Tool: tool, Err: err}
	}

	timeout := time.Duration(cfg.InactivityTimeoutMs) * time.Millisecond
	if m.timeoutOverride > 0 {
		timeout = m.timeoutOverride
	}

	s.mu.Lock()
	s.process = p
	s.gen++
	gen := s.gen
	s.state = StateActive
	s.lastActivity = time.Now().UTC()
	s.timeout = timeout
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(timeout, func() { m.onInactivityTimeout(conversationID, gen) })
	s.mu.Unlock()

	m.persist(conversationID, store.Record{
		State:         string(StateActive),
		Tool:          tool,
		WorkspacePath: workspacePath,
		LastSessionAt: time.Now().UTC(),
	})

	caps := ad.Capabilities()
	go m.watchExit(conversationID, s, p, gen, caps)

	m.log.Info("session started", "conversationId", conversationID, "tool", tool, "pid", p.Pid(), "resumed", existing != nil)
	return s, nil
}

// handleChunk runs the adapter's incremental parser over one chunk of raw
// process output and enqueues the resulting events in decode order. Called
// from the process read loop, one goroutine per process.
func (m *Manager) handleChunk(s *Session, ad adapter.Adapter, chunk []byte) {
	s.parseMu.Lock()
	events := ad.ParseChunk(chunk, s.parse)
	s.parseMu.Unlock()
	if len(events) == 0 {
		return
	}
	s.touch()
	for _, ev := range events {
		if ev.Orphaned {
			m.log.Warn("orphaned tool result", "conversationId", s.conversationID, "toolId", ev.ToolID)
		}
		s.enqueue(ev)
	}
}

// SendInput writes newline-terminated content to the session's stdin,
// transparently resuming a suspended session when auto-resume is enabled.
func (m *Manager) SendInput(ctx context.Context, conversationID, content string) error {
	s := m.get(conversationID)
	if s == nil {
		return ErrNotFound
	}

	s.mu.Lock()
	state := s.state
	p := s.process
	s.mu.Unlock()

	if state == StateSuspended {
		if !m.cfg.Get().AutoResumeEnabled {
			return ErrNotFound
		}
		var err error
		s, _, err = m.GetOrCreate(ctx, conversationID, "", "")
		if err != nil {
			return err
		}
		s.mu.Lock()
		p = s.process
		s.mu.Unlock()
	}

	if p == nil {
		return ErrNotFound
	}
	if err := p.Write([]byte(content + "\n")); err != nil {
		return fmt.Errorf("write input: %w", err)
	}
	s.touch()
	return nil
}

// Attach registers a client for the session's events. The returned history
// is the replay buffer snapshot; every event after the snapshot arrives on
// the channel, with no gap and no overlap between the two.
func (m *Manager) Attach(conversationID string) (handleID string, ch <-chan event.Event, history []event.Event, err error) {
	s := m.get(conversationID)
	if s == nil {
		return "", nil, nil, ErrNotFound
	}

	handleID = uuid.New().String()
	sub := make(chan event.Event, subscriberBufCap)

	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return "", nil, nil, ErrSessionEnded
	}
	history = s.buf.ReadAll()
	s.subscribers[handleID] = sub
	s.mu.Unlock()

	return handleID, sub, history, nil
}

// Detach removes a client. The process keeps running: only the inactivity
// timer suspends sessions.
func (m *Manager) Detach(conversationID, handleID string) {
	s := m.get(conversationID)
	if s == nil {
		return
	}
	s.mu.Lock()
	if ch, ok := s.subscribers[handleID]; ok {
		delete(s.subscribers, handleID)
		close(ch)
	}
	s.mu.Unlock()
}

// Cancel delivers the Ctrl-C equivalent to the agent process. Session
// state is unchanged.
func (m *Manager) Cancel(conversationID string) error {
	s := m.get(conversationID)
	if s == nil {
		return ErrNotFound
	}
	s.mu.Lock()
	p := s.process
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Interrupt()
}

// Terminate explicitly ends a session: the process is stopped (graceful,
// then forced), the record leaves the map, and clients see session_end.
// The agent's own on-disk history is untouched. The creation lock
// serializes termination against a concurrent spawn or resume, so a
// terminate can never strand a process spawned onto a closed session.
func (m *Manager) Terminate(conversationID string) error {
	lock := m.creationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	s := m.sessions[conversationID]
	if s == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, conversationID)
	m.mu.Unlock()

	s.mu.Lock()
	wasLive := s.state == StateActive || s.state == StateStarting
	p := s.process
	s.process = nil
	s.state = StateEnded
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	if wasLive {
		m.mu.Lock()
		m.liveCount--
		m.mu.Unlock()
	}

	if p != nil {
		p.Terminate(m.grace)
	}

	ev := event.New(event.TypeSessionEnd)
	ev.Reason = "terminated"
	s.enqueue(ev)
	s.close()

	m.persist(conversationID, store.Record{
		State:         string(StateEnded),
		Tool:          s.tool,
		WorkspacePath: s.workspacePath,
		LastSessionAt: time.Now().UTC(),
	})
	m.log.Info("session terminated", "conversationId", conversationID)
	return nil
}

// onInactivityTimeout suspends a session whose timer fired: the process
// is stopped but the session record, replay buffer, and attached clients
// all survive for a later resume.
func (m *Manager) onInactivityTimeout(conversationID string, gen int) {
	s := m.get(conversationID)
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	p := s.process
	s.process = nil
	s.state = StateSuspended
	s.mu.Unlock()

	m.mu.Lock()
	m.liveCount--
	m.mu.Unlock()

	if p != nil {
		p.Terminate(m.grace)
	}

	ev := event.New(event.TypeSessionEnd)
	ev.Reason = "inactivity"
	ev.Suspended = true
	s.enqueue(ev)

	m.persist(conversationID, store.Record{
		State:         string(StateSuspended),
		Tool:          s.tool,
		WorkspacePath: s.workspacePath,
		LastSessionAt: time.Now().UTC(),
		SuspendReason: "inactivity",
	})
	m.log.Info("session suspended", "conversationId", conversationID, "reason", "inactivity")
}

// watchExit handles the process ending on its own. A clean exit from a
// tool that supports exit-then-resume suspends the session; anything else
// ends it. Deliberate stops (suspend, terminate, resume respawn) bump the
// generation or leave the active state first, so they are ignored here.
func (m *Manager) watchExit(conversationID string, s *Session, p Process, gen int, caps adapter.Capabilities) {
	status := <-p.Done()

	s.mu.Lock()
	if s.gen != gen || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	failed := status.Code != 0 || status.Signal
	next := StateEnded
	if !failed && caps.ResumeOnExit {
		next = StateSuspended
	}
	s.process = nil
	s.state = next
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	m.mu.Lock()
	m.liveCount--
	if next == StateEnded {
		delete(m.sessions, conversationID)
	}
	m.mu.Unlock()

	reason := fmt.Sprintf("process exited with code %d", status.Code)
	if status.Signal {
		reason = "process killed by signal"
	}

	ev := event.New(event.TypeSessionEnd)
	ev.Reason = reason
	ev.Suspended = next == StateSuspended
	s.enqueue(ev)

	rec := store.Record{
		State:         string(next),
		Tool:          s.tool,
		WorkspacePath: s.workspacePath,
		LastSessionAt: time.Now().UTC(),
	}
	if next == StateSuspended {
		rec.SuspendReason = "process_exit"
	} else {
		s.close()
	}
	m.persist(conversationID, rec)
	m.log.Warn("process exited unexpectedly", "conversationId", conversationID, "code", status.Code, "next", string(next))
}

// Status returns the live view of one session.
func (m *Manager) Status(conversationID string) (Status, error) {
	s := m.get(conversationID)
	if s == nil {
		return Status{}, ErrNotFound
	}
	return s.status(), nil
}

// List returns the status of every session in the map.
func (m *Manager) List() []Status {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.status())
	}
	return out
}

// ListResumable returns persisted records of sessions that can be resumed.
func (m *Manager) ListResumable(ctx context.Context) (map[string]store.Record, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List(ctx, store.Filter{State: string(StateSuspended)})
}

// Tool reports which adapter a live session uses.
func (m *Manager) Tool(conversationID string) (string, error) {
	s := m.get(conversationID)
	if s == nil {
		return "", ErrNotFound
	}
	return s.tool, nil
}

// Shutdown suspends every live session so the server can restart without
// losing resumability.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make(map[string]*Session, len(m.sessions))
	for id, s := range m.sessions {
		sessions[id] = s
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, s := range sessions {
		s.mu.Lock()
		live := s.state == StateActive || s.state == StateStarting
		p := s.process
		s.process = nil
		if live {
			s.state = StateSuspended
			s.gen++
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()

		if !live {
			continue
		}
		m.mu.Lock()
		m.liveCount--
		m.mu.Unlock()

		wg.Add(1)
		go func(id string, s *Session, p Process) {
			defer wg.Done()
			if p != nil {
				p.Terminate(m.grace)
			}
			m.persist(id, store.Record{
				State:         string(StateSuspended),
				Tool:          s.tool,
				WorkspacePath: s.workspacePath,
				LastSessionAt: time.Now().UTC(),
				SuspendReason: "shutdown",
			})
		}(id, s, p)
	}
	wg.Wait()
}

func (m *Manager) persist(conversationID string, rec store.Record) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.Save(ctx, conversationID, rec); err != nil {
		m.log.Warn("persist failed", "conversationId", conversationID, "error", err)
	}
}
