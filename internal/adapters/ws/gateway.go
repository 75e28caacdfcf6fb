// Package ws is the real-time gateway: one websocket per player per session,
// relaying actions, dice rolls and typing indicators through the fan-out hub.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/app/dice"
	"github.com/PabloGalante/ttrpg-gm/internal/app/fanout"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

// Inbound message types.
const (
	TypeGameAction = "game_action"
	TypeDiceRoll   = "dice_roll"
	TypeTyping     = "typing"
)

var errGenerationUnavailable = errors.New("generation unavailable")

type Sessions interface {
	Access(ctx context.Context, actor domain.UserID, id domain.SessionID, perm session.Permission) (*domain.Session, error)
}

type Turns interface {
	ProcessAction(ctx context.Context, sessionID domain.SessionID, action turn.Action) (*turn.Result, error)
}

type Dice interface {
	Roll(ctx context.Context, sessionID domain.SessionID, spec domain.DiceSpec, opts dice.RollOptions) (domain.DiceOutcome, error)
}

type Gateway struct {
	hub      *fanout.Hub
	sessions Sessions
	turns    Turns
	dice     Dice
	verifier identity.Verifier
	upgrader websocket.Upgrader
}

// NewGateway builds a gateway. allowedOrigins empty or containing "*"
// accepts any origin.
func NewGateway(hub *fanout.Hub, sessions Sessions, turns Turns, dice Dice, verifier identity.Verifier, allowedOrigins []string) *Gateway {
	g := &Gateway{
		hub:      hub,
		sessions: sessions,
		turns:    turns,
		dice:     dice,
		verifier: verifier,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return g
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// BearerToken reads the token from the Authorization header or the token
// query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// Serve authenticates the caller, checks it may connect to sessionID,
// upgrades the request and runs the receive loop until the socket closes.
func (g *Gateway) Serve(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID) {
	ctx := r.Context()
	log := observability.LoggerFromContext(ctx).With("session_id", sessionID)

	ident, err := g.verifier.Verify(BearerToken(r))
	if err != nil {
		writeReject(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if _, err := g.sessions.Access(ctx, ident.UserID, sessionID, session.PermConnect); err != nil {
		status, msg := rejectStatus(err)
		writeReject(w, status, msg)
		return
	}

	wsConn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newConn(wsConn, ident.UserID)
	if err := g.hub.Join(c, sessionID); err != nil {
		log.Warn("hub join refused", "error", err)
		_ = c.Close()
		return
	}
	log = log.With("user_id", ident.UserID)
	log.Info("websocket connected")

	g.run(context.WithoutCancel(ctx), c, sessionID, log)

	g.hub.Leave(c, sessionID)
	_ = c.Close()
	log.Info("websocket disconnected")
}

func (g *Gateway) run(ctx context.Context, c *conn, sessionID domain.SessionID, log *slog.Logger) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go g.keepAlive(c, done)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", "error", err)
			}
			return
		}
		g.handle(ctx, c, sessionID, data, log)
	}
}

func (g *Gateway) keepAlive(c *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// handle processes one inbound frame. A panic is contained to the frame.
func (g *Gateway) handle(ctx context.Context, c *conn, sessionID domain.SessionID, data []byte, log *slog.Logger) {
	ctx = observability.WithRequestID(ctx, uuid.NewString())
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic while handling websocket message", "panic", fmt.Sprint(rec))
			g.sendError(ctx, c, "internal error")
		}
	}()

	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		g.sendError(ctx, c, "malformed message")
		return
	}

	switch msg.Type {
	case TypeGameAction:
		g.handleAction(ctx, c, sessionID, msg.Payload, log)
	case TypeDiceRoll:
		g.handleDice(ctx, c, sessionID, msg.Payload, log)
	case TypeTyping:
		if !g.allowed(ctx, c, sessionID, session.PermConnect) {
			return
		}
		// relayed as sent
		g.hub.Broadcast(ctx, sessionID, fanout.NewEvent(fanout.EventUserTyping, msg.Payload), c)
	default:
		g.sendError(ctx, c, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (g *Gateway) handleAction(ctx context.Context, c *conn, sessionID domain.SessionID, raw json.RawMessage, log *slog.Logger) {
	var req ActionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		g.sendError(ctx, c, "malformed game_action payload")
		return
	}
	if !g.allowed(ctx, c, sessionID, session.PermPlay) {
		return
	}

	res, err := g.turns.ProcessAction(ctx, sessionID, req.ToAction(c.UserID()))
	if err != nil {
		var turnErr *turn.Error
		if !errors.As(err, &turnErr) && !errors.Is(err, domain.ErrUnavailable) {
			g.sendError(ctx, c, err.Error())
			return
		}
		log.Warn("sending fallback reply", "error", err)
		res = turn.Fallback(sessionID, req.Action, errGenerationUnavailable)
	}
	g.hub.Broadcast(ctx, sessionID, fanout.NewEvent(fanout.EventGMResponse, ToGMResponse(res)), nil)
}

func (g *Gateway) handleDice(ctx context.Context, c *conn, sessionID domain.SessionID, raw json.RawMessage, log *slog.Logger) {
	var req DiceRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			g.sendError(ctx, c, "malformed dice_roll payload")
			return
		}
	}
	if !g.allowed(ctx, c, sessionID, session.PermConnect) {
		return
	}
	out, err := g.dice.Roll(ctx, sessionID, req.Spec(), dice.RollOptions{Record: true, UserID: c.UserID()})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			g.sendError(ctx, c, err.Error())
			return
		}
		// the roll happened; only recording it failed
		log.Warn("dice roll not recorded", "error", err)
	}
	g.hub.Broadcast(ctx, sessionID, fanout.NewEvent(fanout.EventDiceResult, ToDiceResult(out)), nil)
}

// allowed re-checks access for one event, since membership and status can
// change while the socket is open. A refusal is reported to the sender.
func (g *Gateway) allowed(ctx context.Context, c *conn, sessionID domain.SessionID, perm session.Permission) bool {
	if _, err := g.sessions.Access(ctx, c.UserID(), sessionID, perm); err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			g.sendError(ctx, c, "session unavailable")
		} else {
			g.sendError(ctx, c, err.Error())
		}
		return false
	}
	return true
}

func (g *Gateway) sendError(ctx context.Context, c *conn, msg string) {
	if err := c.Send(ctx, fanout.NewEvent(fanout.EventError, errorPayload{Message: msg})); err != nil {
		observability.LoggerFromContext(ctx).Debug("error frame not delivered", "error", err)
	}
}

func rejectStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusServiceUnavailable, "session unavailable"
}

func writeReject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
