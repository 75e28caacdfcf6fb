package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type MessageStore struct {
	mu       sync.RWMutex
	messages map[domain.SessionID][]*domain.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{
		messages: make(map[domain.SessionID][]*domain.Message),
	}
}

func (s *MessageStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	msgs := s.messages[msg.SessionID]
	// keep (created_at, seq) order even if writers race
	i := sort.Search(len(msgs), func(i int) bool { return cp.Before(msgs[i]) })
	s.messages[msg.SessionID] = slices.Insert(msgs, i, &cp)
	return nil
}

func (s *MessageStore) ListMessages(_ context.Context, sessionID domain.SessionID, q domain.MessageQuery) ([]*domain.Message, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var matched []*domain.Message
	for _, m := range s.messages[sessionID] {
		if q.Role != "" && m.Role != q.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Content), search) {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}
	if q.Descending {
		slices.Reverse(matched)
	}
	return Page(matched, q.Offset, q.Limit), len(matched), nil
}

func (s *MessageStore) GetMessage(_ context.Context, sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages[sessionID] {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrMessageNotFound
}

func (s *MessageStore) DeleteMessage(_ context.Context, sessionID domain.SessionID, id domain.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[sessionID]
	i := slices.IndexFunc(msgs, func(m *domain.Message) bool { return m.ID == id })
	if i < 0 {
		return domain.ErrMessageNotFound
	}
	s.messages[sessionID] = slices.Delete(msgs, i, i+1)
	return nil
}

func (s *MessageStore) DeleteSessionMessages(_ context.Context, sessionID domain.SessionID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.messages[sessionID])
	delete(s.messages, sessionID)
	return n, nil
}

// Page slices items for offset/limit pagination. A limit of 0 means no limit.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
