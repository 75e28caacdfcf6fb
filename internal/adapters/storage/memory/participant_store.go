package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type ParticipantStore struct {
	mu      sync.RWMutex
	members map[domain.SessionID][]*domain.Participant
}

func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		members: make(map[domain.SessionID][]*domain.Participant),
	}
}

func (s *ParticipantStore) AddParticipant(_ context.Context, p *domain.Participant, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.members[p.SessionID]
	if slices.ContainsFunc(list, func(m *domain.Participant) bool { return m.UserID == p.UserID }) {
		return domain.NewError(domain.ErrConflict, "already a participant")
	}
	if capacity > 0 && len(list) >= capacity {
		return domain.NewError(domain.ErrConflict, "session is full")
	}

	cp := *p
	s.members[p.SessionID] = append(list, &cp)
	return nil
}

func (s *ParticipantStore) RemoveParticipant(_ context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.members[sessionID]
	i := slices.IndexFunc(list, func(m *domain.Participant) bool { return m.UserID == userID })
	if i < 0 {
		return domain.NewError(domain.ErrNotFound, "not a participant")
	}
	s.members[sessionID] = slices.Delete(list, i, i+1)
	return nil
}

func (s *ParticipantStore) ListParticipants(_ context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Participant, 0, len(s.members[sessionID]))
	for _, m := range s.members[sessionID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *ParticipantStore) ListUserSessionIDs(_ context.Context, userID domain.UserID) ([]domain.SessionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []domain.SessionID
	for sid, list := range s.members {
		if slices.ContainsFunc(list, func(m *domain.Participant) bool { return m.UserID == userID }) {
			ids = append(ids, sid)
		}
	}
	return ids, nil
}

func (s *ParticipantStore) DeleteSessionParticipants(_ context.Context, sessionID domain.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members, sessionID)
	return nil
}
