package httpadapter

import (
	"time"

	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/turn"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type authResponse struct {
	User         *userResponse `json:"user,omitempty"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
}

type createSessionRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	MaxPlayers  *int   `json:"max_players,omitempty"`
}

type updateSessionRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

type sessionResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	MaxPlayers  int       `json:"max_players"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type createSessionResponse struct {
	Session  sessionResponse `json:"session"`
	Greeting string          `json:"initial_response"`
}

type sessionDetailsResponse struct {
	sessionResponse
	MessageCount     int        `json:"message_count"`
	ParticipantCount int        `json:"participant_count"`
	LastActivity     *time.Time `json:"last_activity"`
}

type sessionListResponse struct {
	Sessions []sessionResponse `json:"sessions"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

type participantResponse struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
	IsOwner  bool      `json:"is_creator"`
	IsOnline bool      `json:"is_online"`
}

type createMessageRequest struct {
	Content string `json:"content"`
	Role    string `json:"role,omitempty"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    *string   `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type messageListResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []messageResponse `json:"messages"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PerPage   int               `json:"per_page"`
}

type promptRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

type promptResponse struct {
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokens_used"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
}

type contextEntryResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionContextResponse struct {
	SessionID     string                 `json:"session_id"`
	MessageCount  int                    `json:"message_count"`
	History       []contextEntryResponse `json:"history"`
	ContextLength int                    `json:"context_length"`
	LastUpdated   time.Time              `json:"last_updated"`
}

type statsResponse struct {
	SessionID       string    `json:"session_id"`
	TotalMessages   int       `json:"total_messages"`
	TotalActions    int       `json:"total_actions"`
	TotalDiceRolls  int       `json:"total_dice_rolls"`
	DurationMinutes int       `json:"session_duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

type gameStateResponse struct {
	SessionID     string    `json:"session_id"`
	Status        string    `json:"status"`
	CurrentScene  string    `json:"current_scene"`
	LastAction    string    `json:"last_action"`
	ActivePlayers []string  `json:"active_players"`
	Timestamp     time.Time `json:"timestamp"`
}

type statusChangeResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type initializeResponse struct {
	SessionID       string    `json:"session_id"`
	InitialResponse string    `json:"initial_response"`
	Timestamp       time.Time `json:"timestamp"`
}

// ─────────────────────────────────────────────
// Conversion Helpers
// ─────────────────────────────────────────────

func toUserResponse(u *domain.User) *userResponse {
	return &userResponse{
		ID:        string(u.ID),
		Email:     u.Email,
		Username:  u.Username,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toAuthResponse(user *domain.User, t account.Tokens) authResponse {
	resp := authResponse{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(t.ExpiresIn.Seconds()),
	}
	if user != nil {
		resp.User = toUserResponse(user)
	}
	return resp
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:          string(s.ID),
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		MaxPlayers:  s.MaxPlayers,
		CreatorID:   string(s.OwnerID),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toSessionDetailsResponse(d *session.Details) sessionDetailsResponse {
	return sessionDetailsResponse{
		sessionResponse:  toSessionResponse(d.Session),
		MessageCount:     d.MessageCount,
		ParticipantCount: d.ParticipantCount,
		LastActivity:     d.LastActivity,
	}
}

func toParticipantsResponse(views []session.ParticipantView) []participantResponse {
	out := make([]participantResponse, 0, len(views))
	for _, v := range views {
		out = append(out, participantResponse{
			UserID:   string(v.UserID),
			Username: v.Username,
			JoinedAt: v.JoinedAt,
			IsOwner:  v.IsOwner,
			IsOnline: v.IsOnline,
		})
	}
	return out
}

func toMessageResponse(m *domain.Message) messageResponse {
	var userID *string
	if m.UserID != nil {
		u := string(*m.UserID)
		userID = &u
	}
	return messageResponse{
		ID:        string(m.ID),
		SessionID: string(m.SessionID),
		UserID:    userID,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

func toSessionContextResponse(sc *turn.SessionContext) sessionContextResponse {
	history := make([]contextEntryResponse, 0, len(sc.History))
	for _, e := range sc.History {
		history = append(history, contextEntryResponse{Role: string(e.Role), Content: e.Content, Timestamp: e.Timestamp})
	}
	return sessionContextResponse{
		SessionID:     string(sc.SessionID),
		MessageCount:  sc.MessageCount,
		History:       history,
		ContextLength: sc.ContextLength,
		LastUpdated:   sc.LastUpdated,
	}
}

func toStatsResponse(s *turn.Stats) statsResponse {
	return statsResponse{
		SessionID:       string(s.SessionID),
		TotalMessages:   s.TotalMessages,
		TotalActions:    s.TotalActions,
		TotalDiceRolls:  s.TotalDiceRolls,
		DurationMinutes: s.DurationMinutes,
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity,
	}
}

func toGameStateResponse(g *turn.GameState) gameStateResponse {
	players := make([]string, 0, len(g.ActivePlayers))
	for _, p := range g.ActivePlayers {
		players = append(players, string(p))
	}
	return gameStateResponse{
		SessionID:     string(g.SessionID),
		Status:        string(g.Status),
		CurrentScene:  g.CurrentScene,
		LastAction:    g.LastAction,
		ActivePlayers: players,
		Timestamp:     g.Timestamp,
	}
}
