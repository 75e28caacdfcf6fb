// Package rediscache keeps session records in Redis in front of a SessionStore.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const keyPrefix = "ttrpg:session:"

// SessionStore is a read-through cache for single session lookups. Writes go
// to the backing store first and then drop the cached copy. Listings are
// never cached.
type SessionStore struct {
	next   domain.SessionStore
	client Client
	ttl    time.Duration
}

// Client is the part of the redis API the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

func NewSessionStore(next domain.SessionStore, client Client, ttl time.Duration) *SessionStore {
	return &SessionStore{next: next, client: client, ttl: ttl}
}

// NewClient connects to addr and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func key(id domain.SessionID) string { return keyPrefix + string(id) }

type cachedSession struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	MaxPlayers  int       `json:"max_players"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func encode(s *domain.Session) ([]byte, error) {
	return json.Marshal(cachedSession{
		ID:          string(s.ID),
		OwnerID:     string(s.OwnerID),
		Title:       s.Title,
		Description: s.Description,
		Status:      string(s.Status),
		MaxPlayers:  s.MaxPlayers,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	})
}

func decode(b []byte) (*domain.Session, error) {
	var c cachedSession
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &domain.Session{
		ID:          domain.SessionID(c.ID),
		OwnerID:     domain.UserID(c.OwnerID),
		Title:       c.Title,
		Description: c.Description,
		Status:      domain.SessionStatus(c.Status),
		MaxPlayers:  c.MaxPlayers,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	return s.next.CreateSession(ctx, session)
}

func (s *SessionStore) UpdateSession(ctx context.Context, session *domain.Session) error {
	if err := s.next.UpdateSession(ctx, session); err != nil {
		return err
	}
	s.invalidate(ctx, session.ID)
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if err := s.next.DeleteSession(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// GetSession serves from Redis when possible. Cache errors fall through to
// the backing store.
func (s *SessionStore) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	log := observability.LoggerFromContext(ctx)

	b, err := s.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		if sess, derr := decode(b); derr == nil {
			return sess, nil
		}
		log.Warn("dropping undecodable cached session", "session_id", id)
	case errors.Is(err, redis.Nil):
	default:
		log.Warn("session cache read failed", "session_id", id, "error", err)
	}

	sess, err := s.next.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, err := encode(sess); err == nil {
		if err := s.client.Set(ctx, key(id), b, s.ttl).Err(); err != nil {
			log.Warn("session cache write failed", "session_id", id, "error", err)
		}
	}
	return sess, nil
}

func (s *SessionStore) ListSessions(ctx context.Context, q domain.SessionQuery) ([]*domain.Session, int, error) {
	return s.next.ListSessions(ctx, q)
}

func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SessionStore) invalidate(ctx context.Context, id domain.SessionID) {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		observability.LoggerFromContext(ctx).Warn("session cache invalidation failed", "session_id", id, "error", err)
	}
}
