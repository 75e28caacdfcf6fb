// Package message exposes the transcript of a session as chat messages.
package message

import (
	"context"
	"errors"
	"strings"

	"github.com/PabloGalante/ttrpg-gm/internal/app/session"
	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 100
)

type Service struct {
	sessions *session.Service
	recorder *transcript.Recorder
}

func NewService(sessions *session.Service, recorder *transcript.Recorder) *Service {
	return &Service{sessions: sessions, recorder: recorder}
}

type ListInput struct {
	Role    domain.Role
	Search  string
	Page    int
	PerPage int
}

type ListOutput struct {
	Messages []*domain.Message
	Total    int
	Page     int
	PerPage  int
}

func (s *Service) List(ctx context.Context, actor domain.UserID, sessionID domain.SessionID, in ListInput) (*ListOutput, error) {
	if _, err := s.sessions.Access(ctx, actor, sessionID, session.PermView); err != nil {
		return nil, err
	}
	if in.Role != "" && !in.Role.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "unknown role %q", in.Role)
	}
	page, perPage := in.Page, in.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, MaxPerPage)

	msgs, total, err := s.recorder.Store().ListMessages(ctx, sessionID, domain.MessageQuery{
		Role:   in.Role,
		Search: strings.TrimSpace(in.Search),
		Offset: (page - 1) * perPage,
		Limit:  perPage,
	})
	if err != nil {
		return nil, domain.Unavailable("list messages", err)
	}
	return &ListOutput{Messages: msgs, Total: total, Page: page, PerPage: perPage}, nil
}

type CreateInput struct {
	Content string
	Role    domain.Role
}

// Create appends a message authored by actor. Only the owner may write
// model or system entries.
func (s *Service) Create(ctx context.Context, actor domain.UserID, sessionID domain.SessionID, in CreateInput) (*domain.Message, error) {
	sess, err := s.sessions.Access(ctx, actor, sessionID, session.PermView)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.StatusCompleted {
		return nil, domain.NewError(domain.ErrInvalidInput, "cannot add messages to completed session")
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "content is required")
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "unknown role %q", role)
	}
	if role != domain.RoleUser && actor != sess.OwnerID {
		return nil, domain.NewError(domain.ErrForbidden, "only the session owner can write non-player messages")
	}

	author := actor
	msg, err := s.recorder.Append(ctx, sessionID, role, in.Content, &author)
	if err != nil {
		return nil, err
	}
	observability.LoggerFromContext(ctx).Info("message created", "session_id", sessionID, "message_id", msg.ID)
	return msg, nil
}

func (s *Service) Get(ctx context.Context, actor domain.UserID, sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	if _, err := s.sessions.Access(ctx, actor, sessionID, session.PermView); err != nil {
		return nil, err
	}
	return s.get(ctx, sessionID, id)
}

func (s *Service) get(ctx context.Context, sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	msg, err := s.recorder.Store().GetMessage(ctx, sessionID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, domain.Unavailable("get message", err)
	}
	return msg, nil
}

// Delete removes one message. Authors may delete their own messages and
// owners any message of their session.
func (s *Service) Delete(ctx context.Context, actor domain.UserID, sessionID domain.SessionID, id domain.MessageID) error {
	sess, err := s.sessions.Access(ctx, actor, sessionID, session.PermView)
	if err != nil {
		return err
	}
	msg, err := s.get(ctx, sessionID, id)
	if err != nil {
		return err
	}
	isAuthor := msg.UserID != nil && *msg.UserID == actor
	if !isAuthor && actor != sess.OwnerID {
		return domain.NewError(domain.ErrForbidden, "can only delete your own messages or messages in your sessions")
	}
	if err := s.recorder.Store().DeleteMessage(ctx, sessionID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrMessageNotFound
		}
		return domain.Unavailable("delete message", err)
	}
	observability.LoggerFromContext(ctx).Info("message deleted", "session_id", sessionID, "message_id", id)
	return nil
}

// Clear deletes the whole transcript. Owner only.
func (s *Service) Clear(ctx context.Context, actor domain.UserID, sessionID domain.SessionID) (int, error) {
	if _, err := s.sessions.Access(ctx, actor, sessionID, session.PermManage); err != nil {
		return 0, err
	}
	n, err := s.recorder.Store().DeleteSessionMessages(ctx, sessionID)
	if err != nil {
		return 0, domain.Unavailable("delete messages", err)
	}
	observability.LoggerFromContext(ctx).Info("messages cleared", "session_id", sessionID, "count", n)
	return n, nil
}
