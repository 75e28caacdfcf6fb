package domain

import (
	"context"
	"iter"
)

// Turn is one (role, text) pair of generation context.
type Turn struct {
	Role Role
	Text string
}

// GenerateRequest is the full input of one generation call.
type GenerateRequest struct {
	Turns       []Turn
	System      string
	Temperature float64
	MaxTokens   int // 0 means no ceiling
}

// Generation is a completed model reply.
type Generation struct {
	Text       string
	Model      string
	TokensUsed int
}

// Generator defines how the application talks to a hosted text-generation model.
// Implementations keep no session state.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
	Stream(ctx context.Context, req GenerateRequest) iter.Seq2[string, error]
	Model() string
}

// SessionQuery filters session listings.
type SessionQuery struct {
	// MemberOf restricts results to sessions owned by this user or listed in SessionIDs.
	MemberOf   UserID
	SessionIDs []SessionID
	Status     SessionStatus
	Search     string
	Offset     int
	Limit      int
}

// MessageQuery filters transcript listings. Zero value lists everything in
// creation order.
type MessageQuery struct {
	Role       Role
	Search     string
	Offset     int
	Limit      int
	Descending bool
}

// SessionStore defines session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	UpdateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id SessionID) (*Session, error)
	DeleteSession(ctx context.Context, id SessionID) error
	ListSessions(ctx context.Context, q SessionQuery) ([]*Session, int, error)
}

// MessageStore defines transcript persistence.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, sessionID SessionID, q MessageQuery) ([]*Message, int, error)
	GetMessage(ctx context.Context, sessionID SessionID, id MessageID) (*Message, error)
	DeleteMessage(ctx context.Context, sessionID SessionID, id MessageID) error
	DeleteSessionMessages(ctx context.Context, sessionID SessionID) (int, error)
}

// ParticipantStore records which users belong to which sessions.
type ParticipantStore interface {
	// AddParticipant fails with ErrConflict when the user is already a member
	// or the session already holds capacity members.
	AddParticipant(ctx context.Context, p *Participant, capacity int) error
	RemoveParticipant(ctx context.Context, sessionID SessionID, userID UserID) error
	ListParticipants(ctx context.Context, sessionID SessionID) ([]*Participant, error)
	ListUserSessionIDs(ctx context.Context, userID UserID) ([]SessionID, error)
	DeleteSessionParticipants(ctx context.Context, sessionID SessionID) error
}

// UserStore defines account persistence.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
