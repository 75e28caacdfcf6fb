package domain

import "time"

type SessionID string
type UserID string
type MessageID string

// Role tags who authored a transcript entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleSystem:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a game session.
// completed is terminal.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s == next {
		return s != StatusCompleted
	}
	switch s {
	case StatusActive:
		return next == StatusPaused || next == StatusCompleted
	case StatusPaused:
		return next == StatusActive || next == StatusCompleted
	}
	return false
}

// UserRole is the platform-wide role of an account.
type UserRole string

const (
	UserRolePlayer UserRole = "player"
	UserRoleGM     UserRole = "gm"
	UserRoleAdmin  UserRole = "admin"
)

type Timestamp = time.Time

const (
	DefaultMaxPlayers = 4
	MinPlayers        = 1
	MaxPlayers        = 10
)
