// Package session manages game sessions: lifecycle, membership and access.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/ttrpg-gm/internal/app/transcript"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100

	CompletionMessage = "The adventure has been completed. Thank you for playing!"
)

// Initializer opens a new session with the Game Master.
type Initializer interface {
	InitializeSession(ctx context.Context, sessionID domain.SessionID) string
}

// Presence reports and drops live connections.
type Presence interface {
	IsOnline(sessionID domain.SessionID, userID domain.UserID) bool
	Kick(sessionID domain.SessionID, userID domain.UserID) int
	Disband(sessionID domain.SessionID) int
}

type Service struct {
	sessions     domain.SessionStore
	participants domain.ParticipantStore
	users        domain.UserStore
	recorder     *transcript.Recorder
	initializer  Initializer
	presence     Presence
	now          func() time.Time
}

func NewService(
	sessions domain.SessionStore,
	participants domain.ParticipantStore,
	users domain.UserStore,
	recorder *transcript.Recorder,
	initializer Initializer,
	presence Presence,
) *Service {
	return &Service{
		sessions:     sessions,
		participants: participants,
		users:        users,
		recorder:     recorder,
		initializer:  initializer,
		presence:     presence,
		now:          time.Now,
	}
}

// Access loads a session and checks that actor holds perm on it.
func (s *Service) Access(ctx context.Context, actor domain.UserID, id domain.SessionID, perm Permission) (*domain.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	member := false
	if actor != sess.OwnerID {
		member, err = s.isParticipant(ctx, id, actor)
		if err != nil {
			return nil, err
		}
	}
	if err := Authorize(actor, sess, member, perm); err != nil {
		observability.LoggerFromContext(ctx).Info("session access denied",
			"session_id", id, "user_id", actor, "permission", perm.String(), "reason", err)
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.Unavailable("get session", err)
	}
	return sess, nil
}

func (s *Service) isParticipant(ctx context.Context, id domain.SessionID, user domain.UserID) (bool, error) {
	list, err := s.participants.ListParticipants(ctx, id)
	if err != nil {
		return false, domain.Unavailable("list participants", err)
	}
	return slices.ContainsFunc(list, func(p *domain.Participant) bool { return p.UserID == user }), nil
}

// ─────────────────────────────────────────
// Create / read
// ─────────────────────────────────────────

type CreateInput struct {
	Title       string
	Description string
	MaxPlayers  *int
}

type CreateOutput struct {
	Session  *domain.Session
	Greeting string
}

func (s *Service) Create(ctx context.Context, owner domain.UserID, in CreateInput) (*CreateOutput, error) {
	maxPlayers := domain.DefaultMaxPlayers
	if in.MaxPlayers != nil {
		maxPlayers = *in.MaxPlayers
	}
	if maxPlayers < domain.MinPlayers || maxPlayers > domain.MaxPlayers {
		return nil, domain.Errorf(domain.ErrInvalidInput, "max_players must be between %d and %d", domain.MinPlayers, domain.MaxPlayers)
	}

	id := uuid.NewString()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Game Session " + id[:8]
	}
	now := s.now().UTC()

	log := observability.LoggerFromContext(ctx).With("user_id", owner)
	log.Info("creating session")

	sess := &domain.Session{
		ID:          domain.SessionID(id),
		OwnerID:     owner,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.StatusActive,
		MaxPlayers:  maxPlayers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, domain.Unavailable("create session", err)
	}
	if err := s.participants.AddParticipant(ctx, &domain.Participant{
		SessionID: sess.ID, UserID: owner, JoinedAt: now,
	}, maxPlayers); err != nil {
		log.Error("failed to record owner as participant", "error", err)
		return nil, domain.Unavailable("add participant", err)
	}

	greeting := s.initializer.InitializeSession(ctx, sess.ID)

	log.Info("session created", "session_id", sess.ID)
	return &CreateOutput{Session: sess, Greeting: greeting}, nil
}

type ListInput struct {
	Status  domain.SessionStatus
	Search  string
	Page    int
	PerPage int
}

type ListOutput struct {
	Sessions []*domain.Session
	Total    int
	Page     int
	PerPage  int
}

// List returns the sessions actor owns or participates in, newest first.
func (s *Service) List(ctx context.Context, actor domain.UserID, in ListInput) (*ListOutput, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "unknown status %q", in.Status)
	}
	page, perPage := Paging(in.Page, in.PerPage)

	ids, err := s.participants.ListUserSessionIDs(ctx, actor)
	if err != nil {
		return nil, domain.Unavailable("list user sessions", err)
	}
	sessions, total, err := s.sessions.ListSessions(ctx, domain.SessionQuery{
		MemberOf:   actor,
		SessionIDs: ids,
		Status:     in.Status,
		Search:     strings.TrimSpace(in.Search),
		Offset:     (page - 1) * perPage,
		Limit:      perPage,
	})
	if err != nil {
		return nil, domain.Unavailable("list sessions", err)
	}
	return &ListOutput{Sessions: sessions, Total: total, Page: page, PerPage: perPage}, nil
}

// Paging clamps page and per-page values to their defaults and bounds.
func Paging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

type Details struct {
	Session          *domain.Session
	MessageCount     int
	ParticipantCount int
	LastActivity     *time.Time
}

func (s *Service) Get(ctx context.Context, actor domain.UserID, id domain.SessionID) (*Details, error) {
	sess, err := s.Access(ctx, actor, id, PermView)
	if err != nil {
		return nil, err
	}

	latest, count, err := s.recorder.Store().ListMessages(ctx, id, domain.MessageQuery{Descending: true, Limit: 1})
	if err != nil {
		return nil, domain.Unavailable("list messages", err)
	}
	members, err := s.participants.ListParticipants(ctx, id)
	if err != nil {
		return nil, domain.Unavailable("list participants", err)
	}

	d := &Details{Session: sess, MessageCount: count, ParticipantCount: len(members)}
	if len(latest) > 0 {
		at := latest[0].CreatedAt
		d.LastActivity = &at
	}
	return d, nil
}

// ─────────────────────────────────────────
// Update / lifecycle
// ─────────────────────────────────────────

type UpdateInput struct {
	Title       *string
	Description *string
	Status      *domain.SessionStatus
}

func (s *Service) Update(ctx context.Context, actor domain.UserID, id domain.SessionID, in UpdateInput) (*domain.Session, error) {
	sess, err := s.Access(ctx, actor, id, PermManage)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, domain.NewError(domain.ErrInvalidInput, "title cannot be empty")
		}
		sess.Title = title
	}
	if in.Description != nil {
		sess.Description = strings.TrimSpace(*in.Description)
	}
	if in.Status != nil {
		return s.transition(ctx, sess, *in.Status)
	}
	return s.save(ctx, sess)
}

func (s *Service) Pause(ctx context.Context, actor domain.UserID, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.Access(ctx, actor, id, PermManage)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.StatusActive {
		return nil, domain.NewError(domain.ErrInvalidInput, "session is not active")
	}
	return s.transition(ctx, sess, domain.StatusPaused)
}

func (s *Service) Resume(ctx context.Context, actor domain.UserID, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.Access(ctx, actor, id, PermManage)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.StatusPaused {
		return nil, domain.NewError(domain.ErrInvalidInput, "session is not paused")
	}
	return s.transition(ctx, sess, domain.StatusActive)
}

func (s *Service) Complete(ctx context.Context, actor domain.UserID, id domain.SessionID) (*domain.Session, error) {
	sess, err := s.Access(ctx, actor, id, PermManage)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, sess, domain.StatusCompleted)
}

func (s *Service) transition(ctx context.Context, sess *domain.Session, next domain.SessionStatus) (*domain.Session, error) {
	if !next.Valid() {
		return nil, domain.Errorf(domain.ErrInvalidInput, "unknown status %q", next)
	}
	if !sess.Status.CanTransition(next) {
		return nil, domain.Errorf(domain.ErrInvalidInput, "cannot move session from %s to %s", sess.Status, next)
	}
	prev := sess.Status
	sess.Status = next

	saved, err := s.save(ctx, sess)
	if err != nil {
		return nil, err
	}
	if next == domain.StatusCompleted && prev != domain.StatusCompleted {
		if _, err := s.recorder.Append(ctx, sess.ID, domain.RoleSystem, CompletionMessage, nil); err != nil {
			observability.LoggerFromContext(ctx).Error("failed to record completion", "session_id", sess.ID, "error", err)
		}
		// completed sessions accept no connections
		if s.presence != nil {
			s.presence.Disband(sess.ID)
		}
	}
	observability.LoggerFromContext(ctx).Info("session status changed",
		"session_id", sess.ID, "from", prev, "to", next)
	return saved, nil
}

func (s *Service) save(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	sess.UpdatedAt = s.now().UTC()
	if err := s.sessions.UpdateSession(ctx, sess); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.Unavailable("update session", err)
	}
	return sess, nil
}

// Delete removes the transcript, the memberships and then the session.
func (s *Service) Delete(ctx context.Context, actor domain.UserID, id domain.SessionID) error {
	if _, err := s.Access(ctx, actor, id, PermManage); err != nil {
		return err
	}
	if _, err := s.recorder.Store().DeleteSessionMessages(ctx, id); err != nil {
		return domain.Unavailable("delete messages", err)
	}
	if err := s.participants.DeleteSessionParticipants(ctx, id); err != nil {
		return domain.Unavailable("delete participants", err)
	}
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrSessionNotFound
		}
		return domain.Unavailable("delete session", err)
	}
	if s.presence != nil {
		s.presence.Disband(id)
	}
	observability.LoggerFromContext(ctx).Info("session deleted", "session_id", id, "user_id", actor)
	return nil
}

// ─────────────────────────────────────────
// Participants
// ─────────────────────────────────────────

// Join records actor as a participant. Joining again is a no-op.
func (s *Service) Join(ctx context.Context, actor domain.UserID, id domain.SessionID) (*domain.Participant, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != domain.StatusActive {
		return nil, domain.NewError(domain.ErrInvalidInput, "cannot join inactive session")
	}

	list, err := s.participants.ListParticipants(ctx, id)
	if err != nil {
		return nil, domain.Unavailable("list participants", err)
	}
	if i := slices.IndexFunc(list, func(p *domain.Participant) bool { return p.UserID == actor }); i >= 0 {
		return list[i], nil
	}

	p := &domain.Participant{SessionID: id, UserID: actor, JoinedAt: s.now().UTC()}
	if err := s.participants.AddParticipant(ctx, p, sess.MaxPlayers); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		return nil, domain.Unavailable("add participant", err)
	}
	observability.LoggerFromContext(ctx).Info("user joined session", "session_id", id, "user_id", actor)
	return p, nil
}

func (s *Service) Leave(ctx context.Context, actor domain.UserID, id domain.SessionID) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if sess.OwnerID == actor {
		return domain.NewError(domain.ErrInvalidInput, "session owners cannot leave their own sessions")
	}
	if err := s.participants.RemoveParticipant(ctx, id, actor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Unavailable("remove participant", err)
	}
	if s.presence != nil {
		s.presence.Kick(id, actor)
	}
	observability.LoggerFromContext(ctx).Info("user left session", "session_id", id, "user_id", actor)
	return nil
}

type ParticipantView struct {
	UserID   domain.UserID
	Username string
	JoinedAt time.Time
	IsOwner  bool
	IsOnline bool
}

func (s *Service) Participants(ctx context.Context, actor domain.UserID, id domain.SessionID) ([]ParticipantView, error) {
	sess, err := s.Access(ctx, actor, id, PermView)
	if err != nil {
		return nil, err
	}
	list, err := s.participants.ListParticipants(ctx, id)
	if err != nil {
		return nil, domain.Unavailable("list participants", err)
	}

	out := make([]ParticipantView, 0, len(list))
	for _, p := range list {
		v := ParticipantView{
			UserID:   p.UserID,
			JoinedAt: p.JoinedAt,
			IsOwner:  p.UserID == sess.OwnerID,
		}
		if u, err := s.users.GetUser(ctx, p.UserID); err == nil {
			v.Username = u.Username
		}
		if s.presence != nil {
			v.IsOnline = s.presence.IsOnline(id, p.UserID)
		}
		out = append(out, v)
	}
	return out, nil
}
