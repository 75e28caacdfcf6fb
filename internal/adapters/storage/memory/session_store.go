package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionID]*domain.Session),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return domain.NewError(domain.ErrConflict, "session already exists")
	}

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *SessionStore) UpdateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; !exists {
		return domain.ErrSessionNotFound
	}

	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id domain.SessionID) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	cp := *sess
	return &cp, nil
}

func (s *SessionStore) DeleteSession(_ context.Context, id domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *SessionStore) ListSessions(_ context.Context, q domain.SessionQuery) ([]*domain.Session, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Session
	for _, sess := range s.sessions {
		if !MatchSession(sess, q) {
			continue
		}
		cp := *sess
		result = append(result, &cp)
	}
	SortNewestFirst(result)
	return Page(result, q.Offset, q.Limit), len(result), nil
}

// MatchSession applies every SessionQuery filter except pagination.
func MatchSession(sess *domain.Session, q domain.SessionQuery) bool {
	if q.MemberOf != "" && sess.OwnerID != q.MemberOf && !slices.Contains(q.SessionIDs, sess.ID) {
		return false
	}
	if q.Status != "" && sess.Status != q.Status {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(sess.Title), needle) &&
			!strings.Contains(strings.ToLower(sess.Description), needle) {
			return false
		}
	}
	return true
}

// SortNewestFirst orders sessions by creation time, newest first.
func SortNewestFirst(sessions []*domain.Session) {
	slices.SortFunc(sessions, func(a, b *domain.Session) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
