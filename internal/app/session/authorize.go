package session

import "github.com/PabloGalante/ttrpg-gm/internal/domain"

// Permission is what an actor wants to do with a session.
type Permission int

const (
	// PermView covers reading the session and its transcript.
	PermView Permission = iota
	// PermConnect covers opening a live connection.
	PermConnect
	// PermPlay covers submitting actions, rolls and messages.
	PermPlay
	// PermManage covers owner-only changes.
	PermManage
)

func (p Permission) String() string {
	switch p {
	case PermView:
		return "view"
	case PermConnect:
		return "connect"
	case PermPlay:
		return "play"
	case PermManage:
		return "manage"
	}
	return "unknown"
}

// Authorize is the single access rule for sessions. isParticipant reports
// whether actor is recorded as a member of sess.
func Authorize(actor domain.UserID, sess *domain.Session, isParticipant bool, perm Permission) error {
	isOwner := actor != "" && actor == sess.OwnerID

	if perm == PermManage {
		if !isOwner {
			return domain.NewError(domain.ErrForbidden, "only the session owner can do this")
		}
		return nil
	}

	if !isOwner && !isParticipant {
		return domain.NewError(domain.ErrForbidden, "access denied")
	}

	switch perm {
	case PermConnect:
		if sess.Status == domain.StatusCompleted {
			return domain.NewError(domain.ErrInvalidInput, "session is completed")
		}
	case PermPlay:
		if sess.Status != domain.StatusActive {
			return domain.NewError(domain.ErrInvalidInput, "cannot perform actions in inactive session")
		}
	}
	return nil
}
