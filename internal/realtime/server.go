// Package realtime accepts persistent client connections, translates
// protocol messages into session manager calls, and relays normalized
// events back to clients in emission order.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"agentdeck/internal/adapter"
	"agentdeck/internal/config"
	"agentdeck/internal/event"
	"agentdeck/internal/logger"
	"agentdeck/internal/protocol"
	"agentdeck/internal/session"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBufCap    = 256
)

// TokenValidator checks a client's auth token. Token issuance and
// validation live outside this core.
type TokenValidator interface {
	Validate(token string) error
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Clients connect from app origins; auth is the gate.
	},
}

// Server is the real-time hub: it owns the WebSocket endpoint, the
// management REST surface, and the per-connection bookkeeping.
type Server struct {
	manager *session.Manager
	cfg     *config.Provider
	auth    TokenValidator
	log     *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*client]bool
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server

	mu          sync.Mutex
	authed      bool
	closed      bool
	attachments map[string]string // conversationID → manager handle ID
}

// enqueue hands data to the client's writer. Drops when the client is
// gone or not keeping up. All sends on c.send go through here, so the
// closed check makes closing the channel in removeClient safe even with
// relay goroutines still draining events.
func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// New creates the hub.
func New(manager *session.Manager, cfg *config.Provider, auth TokenValidator) *Server {
	return &Server{
		manager: manager,
		cfg:     cfg,
		auth:    auth,
		log:     logger.WithComponent("realtime"),
		clients: make(map[*client]bool),
	}
}

// Handler returns an http.Handler with the WebSocket endpoint and the
// management API mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/api/", s.restRouter())
	return mux
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:        conn,
		send:        make(chan []byte, sendBufCap),
		server:      s,
		attachments: make(map[string]string),
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warn("websocket read error", "error", err)
			}
			return
		}
		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient detaches a disconnected client from every conversation it
// was attached to. Other clients and session processes are unaffected.
// The closed flag is set before the send channel closes, so relays that
// are still draining a detached subscription drop their events instead
// of panicking on a closed channel.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	attachments := c.attachments
	c.attachments = make(map[string]string)
	c.mu.Unlock()

	for conversationID, handleID := range attachments {
		s.manager.Detach(conversationID, handleID)
	}

	close(c.send)
}

// handleMessage processes one client message. Every session operation
// requires a prior successful auth on this connection.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, "", protocol.ErrInvalidMessage, err.Error())
		return
	}

	if msg.Type == protocol.TypeAuth {
		s.handleAuth(c, msg)
		return
	}

	c.mu.Lock()
	authed := c.authed
	c.mu.Unlock()
	if !authed {
		s.sendError(c, "", protocol.ErrUnauthorized, "authenticate first")
		return
	}

	switch msg.Type {
	case protocol.TypeAttach:
		s.handleAttach(c, msg)
	case protocol.TypeDetach:
		s.handleDetach(c, msg)
	case protocol.TypeMessage:
		s.handleClientMessage(c, msg)
	case protocol.TypeCancel:
		s.handleCancel(c, msg)
	}
}

func (s *Server) handleAuth(c *client, msg *protocol.Message) {
	var payload protocol.AuthPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.auth.Validate(payload.Token); err != nil {
		s.sendError(c, "", protocol.ErrUnauthorized, "invalid token")
		return
	}
	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()
}

func (s *Server) handleAttach(c *client, msg *protocol.Message) {
	var payload protocol.AttachPayload
	json.Unmarshal(msg.Payload, &payload)

	sess, isNew, err := s.manager.GetOrCreate(
		context.Background(), payload.ConversationID, payload.Tool, payload.WorkspacePath)
	if err != nil {
		s.sendError(c, payload.ConversationID, errorCode(err), err.Error())
		return
	}

	c.mu.Lock()
	_, already := c.attachments[payload.ConversationID]
	c.mu.Unlock()
	if already {
		s.sendAttached(c, sess.Describe(), isNew)
		return
	}

	handleID, events, history, err := s.manager.Attach(payload.ConversationID)
	if err != nil {
		s.sendError(c, payload.ConversationID, errorCode(err), err.Error())
		return
	}

	c.mu.Lock()
	c.attachments[payload.ConversationID] = handleID
	c.mu.Unlock()

	s.sendAttached(c, sess.Describe(), isNew)

	// Replay first, then the live feed: the manager guarantees history and
	// the channel are contiguous, so order to the client matches emission.
	if len(history) > 0 {
		s.sendMessage(c, protocol.TypeContentBlocks, protocol.ContentBlocksPayload{
			ConversationID: payload.ConversationID,
			Blocks:         history,
		})
	}

	go s.relay(c, payload.ConversationID, events)
}

// relay forwards one session's events to one client until the channel
// closes (detach or session end).
func (s *Server) relay(c *client, conversationID string, events <-chan event.Event) {
	for ev := range events {
		if ev.Type == event.TypeSessionEnd {
			if ev.Suspended {
				s.sendMessage(c, protocol.TypeSessionSuspended, protocol.SessionSuspendedPayload{
					ConversationID: conversationID,
					Reason:         ev.Reason,
				})
				continue // Clients stay attached through suspension.
			}
			s.sendMessage(c, protocol.TypeSessionEnded, protocol.SessionEndedPayload{
				ConversationID: conversationID,
				Reason:         ev.Reason,
			})
			continue
		}
		s.sendMessage(c, protocol.TypeContentBlocks, protocol.ContentBlocksPayload{
			ConversationID: conversationID,
			Blocks:         []event.Event{ev},
		})
	}

	c.mu.Lock()
	delete(c.attachments, conversationID)
	c.mu.Unlock()
}

func (s *Server) handleDetach(c *client, msg *protocol.Message) {
	var payload protocol.DetachPayload
	json.Unmarshal(msg.Payload, &payload)

	c.mu.Lock()
	handleID, ok := c.attachments[payload.ConversationID]
	delete(c.attachments, payload.ConversationID)
	c.mu.Unlock()

	if ok {
		s.manager.Detach(payload.ConversationID, handleID)
	}
}

func (s *Server) handleClientMessage(c *client, msg *protocol.Message) {
	var payload protocol.MessagePayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.manager.SendInput(context.Background(), payload.ConversationID, payload.Content); err != nil {
		s.sendError(c, payload.ConversationID, errorCode(err), err.Error())
	}
}

func (s *Server) handleCancel(c *client, msg *protocol.Message) {
	var payload protocol.CancelPayload
	json.Unmarshal(msg.Payload, &payload)

	if err := s.manager.Cancel(payload.ConversationID); err != nil {
		s.sendError(c, payload.ConversationID, errorCode(err), err.Error())
		return
	}
	s.sendMessage(c, protocol.TypeCancelled, protocol.CancelledPayload{
		ConversationID: payload.ConversationID,
	})
}

func (s *Server) sendAttached(c *client, desc session.Description, isNew bool) {
	s.sendMessage(c, protocol.TypeAttached, protocol.AttachedPayload{
		ConversationID: desc.ConversationID,
		Tool:           desc.Tool,
		IsNew:          isNew,
		WorkspacePath:  desc.WorkspacePath,
	})
}

func (s *Server) sendMessage(c *client, msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

func (s *Server) sendError(c *client, conversationID, code, message string) {
	msg, _ := protocol.NewErrorMessage(conversationID, code, message)
	data, _ := json.Marshal(msg)
	c.enqueue(data)
}

// errorCode maps orchestration errors onto protocol error codes.
func errorCode(err error) string {
	var spawnErr *session.SpawnError
	switch {
	case errors.Is(err, session.ErrResourceExhausted):
		return protocol.ErrResourceExhausted
	case errors.Is(err, adapter.ErrUnsupportedTool):
		return protocol.ErrUnsupportedTool
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrSessionEnded):
		return protocol.ErrSessionNotFound
	case errors.As(err, &spawnErr):
		return protocol.ErrSpawnFailed
	default:
		return protocol.ErrInvalidMessage
	}
}
