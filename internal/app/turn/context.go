package turn

import (
	"context"
	"strings"
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type ContextEntry struct {
	Role      domain.Role
	Content   string
	Timestamp time.Time
}

type SessionContext struct {
	SessionID     domain.SessionID
	MessageCount  int
	History       []ContextEntry
	ContextLength int
	LastUpdated   time.Time
}

// SessionContext returns the transcript exactly as it would be sent to the model.
func (s *Service) SessionContext(ctx context.Context, sessionID domain.SessionID) (*SessionContext, error) {
	history, err := s.recorder.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := &SessionContext{
		SessionID:    sessionID,
		MessageCount: len(history),
		History:      make([]ContextEntry, 0, len(history)),
		LastUpdated:  s.now().UTC(),
	}
	for _, m := range history {
		out.History = append(out.History, ContextEntry{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
		out.ContextLength += len(m.Content)
	}
	if n := len(history); n > 0 {
		out.LastUpdated = history[n-1].CreatedAt
	}
	return out, nil
}

// ResetContext deletes the whole transcript and returns how many entries went.
func (s *Service) ResetContext(ctx context.Context, sessionID domain.SessionID) (int, error) {
	n, err := s.recorder.Store().DeleteSessionMessages(ctx, sessionID)
	if err != nil {
		return 0, domain.Unavailable("delete messages", err)
	}
	return n, nil
}

type Stats struct {
	SessionID       domain.SessionID
	TotalMessages   int
	TotalActions    int
	TotalDiceRolls  int
	DurationMinutes int
	CreatedAt       time.Time
	LastActivity    time.Time
}

// Stats summarises the transcript of a session.
func (s *Service) Stats(ctx context.Context, sessionID domain.SessionID) (*Stats, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.Unavailable("get session", err)
	}
	history, err := s.recorder.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		SessionID:     sessionID,
		TotalMessages: len(history),
		CreatedAt:     sess.CreatedAt,
		LastActivity:  s.now().UTC(),
	}
	for _, m := range history {
		switch {
		case m.Role == domain.RoleUser:
			st.TotalActions++
		case m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, "Rolled "):
			st.TotalDiceRolls++
		}
	}
	if n := len(history); n > 0 {
		first, last := history[0].CreatedAt, history[n-1].CreatedAt
		st.DurationMinutes = int(last.Sub(first).Minutes())
		st.LastActivity = last
	}
	return st, nil
}

type GameState struct {
	SessionID     domain.SessionID
	Status        domain.SessionStatus
	CurrentScene  string
	LastAction    string
	ActivePlayers []domain.UserID
	Timestamp     time.Time
}

// GameState derives the current scene and last action from the latest entries.
func (s *Service) GameState(ctx context.Context, sessionID domain.SessionID) (*GameState, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, domain.Unavailable("get session", err)
	}

	state := &GameState{
		SessionID:     sessionID,
		Status:        sess.Status,
		ActivePlayers: []domain.UserID{},
		Timestamp:     s.now().UTC(),
	}
	if s.presence != nil {
		if users := s.presence.ActiveUsers(sessionID); users != nil {
			state.ActivePlayers = users
		}
	}

	store := s.recorder.Store()
	scene, _, err := store.ListMessages(ctx, sessionID, domain.MessageQuery{Role: domain.RoleModel, Descending: true, Limit: 1})
	if err != nil {
		return nil, domain.Unavailable("list messages", err)
	}
	if len(scene) > 0 {
		state.CurrentScene = truncateScene(scene[0].Content)
	}

	last, _, err := store.ListMessages(ctx, sessionID, domain.MessageQuery{Role: domain.RoleUser, Descending: true, Limit: 1})
	if err != nil {
		return nil, domain.Unavailable("list messages", err)
	}
	if len(last) > 0 {
		state.LastAction = last[0].Content
	}
	return state, nil
}

func truncateScene(s string) string {
	r := []rune(s)
	if len(r) <= sceneLimit {
		return s
	}
	return string(r[:sceneLimit]) + "..."
}
