package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type UserStore struct {
	mu      sync.RWMutex
	users   map[domain.UserID]*domain.User
	byEmail map[string]domain.UserID
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:   make(map[domain.UserID]*domain.User),
		byEmail: make(map[string]domain.UserID),
	}
}

func (s *UserStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return domain.NewError(domain.ErrConflict, "email already registered")
	}
	if _, exists := s.users[user.ID]; exists {
		return domain.NewError(domain.ErrConflict, "user already exists")
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	email := strings.ToLower(user.Email)
	if owner, taken := s.byEmail[email]; taken && owner != user.ID {
		return domain.NewError(domain.ErrConflict, "email already registered")
	}

	delete(s.byEmail, strings.ToLower(prev.Email))
	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) GetUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}
