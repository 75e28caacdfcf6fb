// Package fanout keeps the live connections of each session and relays
// events to them.
package fanout

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// Event types sent to clients.
const (
	EventGMResponse = "gm_response"
	EventDiceResult = "dice_result"
	EventUserTyping = "user_typing"
	EventError      = "error"
)

var ErrHubClosed = errors.New("hub closed")

// Event is one outbound frame.
type Event struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ string, payload any) Event {
	return Event{
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Conn is a live client connection. Send must be safe for concurrent use.
type Conn interface {
	Send(ctx context.Context, ev Event) error
	UserID() domain.UserID
	Close() error
}

type Hub struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]map[Conn]struct{}
	closed   bool
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[domain.SessionID]map[Conn]struct{})}
}

// Join adds conn to the members of sessionID. Joining twice is a no-op.
func (h *Hub) Join(conn Conn, sessionID domain.SessionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	members, ok := h.sessions[sessionID]
	if !ok {
		members = make(map[Conn]struct{})
		h.sessions[sessionID] = members
	}
	members[conn] = struct{}{}
	return nil
}

// Leave removes conn from sessionID. It reports whether conn was a member.
func (h *Hub) Leave(conn Conn, sessionID domain.SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(conn, sessionID)
}

func (h *Hub) leaveLocked(conn Conn, sessionID domain.SessionID) bool {
	members, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := members[conn]; !ok {
		return false
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.sessions, sessionID)
	}
	return true
}

// LeaveAll removes conn from every session it joined.
func (h *Hub) LeaveAll(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid := range h.sessions {
		h.leaveLocked(conn, sid)
	}
}

// Broadcast sends ev to every member of sessionID except exclude and returns
// the number of successful deliveries. Members whose Send fails are removed
// and closed; delivery to the others continues.
func (h *Hub) Broadcast(ctx context.Context, sessionID domain.SessionID, ev Event, exclude Conn) int {
	members := h.Members(sessionID)

	delivered := 0
	for _, conn := range members {
		if exclude != nil && conn == exclude {
			continue
		}
		if err := conn.Send(ctx, ev); err != nil {
			observability.LoggerFromContext(ctx).Warn("dropping connection after failed send",
				"session_id", sessionID,
				"user_id", conn.UserID(),
				"event", ev.Type,
				"error", err,
			)
			h.Leave(conn, sessionID)
			_ = conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

// Members returns a snapshot of the connections joined to sessionID.
func (h *Hub) Members(sessionID domain.SessionID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.sessions[sessionID]
	out := make([]Conn, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// ActiveUsers lists the distinct users with at least one live connection.
func (h *Hub) ActiveUsers(sessionID domain.SessionID) []domain.UserID {
	var users []domain.UserID
	for _, conn := range h.Members(sessionID) {
		if !slices.Contains(users, conn.UserID()) {
			users = append(users, conn.UserID())
		}
	}
	slices.Sort(users)
	return users
}

// IsOnline reports whether userID holds a live connection to sessionID.
func (h *Hub) IsOnline(sessionID domain.SessionID, userID domain.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.sessions[sessionID] {
		if conn.UserID() == userID {
			return true
		}
	}
	return false
}

// Kick removes and closes every connection userID holds on sessionID and
// returns how many were dropped.
func (h *Hub) Kick(sessionID domain.SessionID, userID domain.UserID) int {
	return h.drop(sessionID, func(c Conn) bool { return c.UserID() == userID })
}

// Disband removes and closes every connection on sessionID.
func (h *Hub) Disband(sessionID domain.SessionID) int {
	return h.drop(sessionID, func(Conn) bool { return true })
}

func (h *Hub) drop(sessionID domain.SessionID, match func(Conn) bool) int {
	h.mu.Lock()
	var dropped []Conn
	for conn := range h.sessions[sessionID] {
		if match(conn) {
			dropped = append(dropped, conn)
		}
	}
	for _, conn := range dropped {
		h.leaveLocked(conn, sessionID)
	}
	h.mu.Unlock()

	for _, conn := range dropped {
		_ = conn.Close()
	}
	return len(dropped)
}

// Close drops every membership and closes the connections. Later joins fail.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[domain.SessionID]map[Conn]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, members := range sessions {
		for conn := range members {
			_ = conn.Close()
		}
	}
}
