package domain

import "time"

// Message is one transcript entry. Entries are append-only and ordered by
// CreatedAt, with Seq breaking ties between entries created in the same instant.
type Message struct {
	ID        MessageID
	SessionID SessionID
	UserID    *UserID // nil for system and model entries
	Role      Role
	Content   string
	CreatedAt Timestamp
	Seq       int64
}

// Session is one running game with a single owner and a transcript.
type Session struct {
	ID          SessionID
	OwnerID     UserID
	Title       string
	Description string
	Status      SessionStatus
	MaxPlayers  int
	CreatedAt   Timestamp
	UpdatedAt   Timestamp
}

// Participant records a user's membership in a session.
type Participant struct {
	SessionID SessionID
	UserID    UserID
	JoinedAt  time.Time
}

// User is a platform account.
type User struct {
	ID           UserID
	Email        string
	Username     string
	Role         UserRole
	PasswordHash string
	CreatedAt    Timestamp
}

// Before reports whether m sorts before other in transcript order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
