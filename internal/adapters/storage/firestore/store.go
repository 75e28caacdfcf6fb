package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store.
// Uses the project passed (TTRPG_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads at most one session document.
func (s *Store) Ping(ctx context.Context) error {
	it := s.sessionsCol().Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("sessions")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

func (s *Store) messageDoc(sessionID domain.SessionID, msgID domain.MessageID) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(string(msgID))
}

func (s *Store) participantsCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("participants")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// deleteAll removes every document a query yields and returns how many went.
func (s *Store) deleteAll(ctx context.Context, q firestore.Query) (int, error) {
	it := q.Documents(ctx)
	defer it.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return 0, err
		}
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, err
		}
	}
	return len(jobs), nil
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	OwnerID     string    `firestore:"owner_id"`
	Title       string    `firestore:"title"`
	Description string    `firestore:"description"`
	Status      string    `firestore:"status"`
	MaxPlayers  int       `firestore:"max_players"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SessionID string    `firestore:"session_id"`
	UserID    *string   `firestore:"user_id"`
	Role      string    `firestore:"role"`
	Content   string    `firestore:"content"`
	CreatedAt time.Time `firestore:"created_at"`
	Seq       int64     `firestore:"seq"`
}

func toSessionDoc(sess *domain.Session) sessionDoc {
	return sessionDoc{
		OwnerID:     string(sess.OwnerID),
		Title:       sess.Title,
		Description: sess.Description,
		Status:      string(sess.Status),
		MaxPlayers:  sess.MaxPlayers,
		CreatedAt:   sess.CreatedAt,
		UpdatedAt:   sess.UpdatedAt,
	}
}

func (d sessionDoc) toDomain(id string) *domain.Session {
	return &domain.Session{
		ID:          domain.SessionID(id),
		OwnerID:     domain.UserID(d.OwnerID),
		Title:       d.Title,
		Description: d.Description,
		Status:      domain.SessionStatus(d.Status),
		MaxPlayers:  d.MaxPlayers,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func (d messageDoc) toDomain(id string) *domain.Message {
	var userID *domain.UserID
	if d.UserID != nil {
		u := domain.UserID(*d.UserID)
		userID = &u
	}
	return &domain.Message{
		ID:        domain.MessageID(id),
		SessionID: domain.SessionID(d.SessionID),
		UserID:    userID,
		Role:      domain.Role(d.Role),
		Content:   d.Content,
		CreatedAt: d.CreatedAt,
		Seq:       d.Seq,
	}
}

// ─────────────────────────────────────────
// SessionStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.Session) error {
	_, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session))
	if err != nil {
		if isAlreadyExists(err) {
			return domain.NewError(domain.ErrConflict, "session already exists")
		}
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.Session) error {
	doc := toSessionDoc(session)
	_, err := s.sessionDoc(session.ID).Update(ctx, []firestore.Update{
		{Path: "owner_id", Value: doc.OwnerID},
		{Path: "title", Value: doc.Title},
		{Path: "description", Value: doc.Description},
		{Path: "status", Value: doc.Status},
		{Path: "max_players", Value: doc.MaxPlayers},
		{Path: "updated_at", Value: doc.UpdatedAt},
	})
	if err != nil {
		if isNotFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if _, err := s.sessionDoc(id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("firestore DeleteSession: %w", err)
	}
	return nil
}

// ListSessions reads the owned sessions plus the listed memberships, then
// filters and pages in process. Firestore cannot do substring search.
func (s *Store) ListSessions(ctx context.Context, q domain.SessionQuery) ([]*domain.Session, int, error) {
	var candidates []*domain.Session
	seen := make(map[domain.SessionID]bool)
	add := func(sess *domain.Session) {
		if !seen[sess.ID] && memory.MatchSession(sess, q) {
			seen[sess.ID] = true
			candidates = append(candidates, sess)
		}
	}

	query := s.sessionsCol().Query
	if q.MemberOf != "" {
		query = query.Where("owner_id", "==", string(q.MemberOf))
	}
	if q.Status != "" {
		query = query.Where("status", "==", string(q.Status))
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, 0, fmt.Errorf("firestore ListSessions: %w", err)
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode sessionDoc: %w", err)
		}
		add(doc.toDomain(snap.Ref.ID))
	}

	if q.MemberOf != "" && len(q.SessionIDs) > 0 {
		refs := make([]*firestore.DocumentRef, 0, len(q.SessionIDs))
		for _, id := range q.SessionIDs {
			refs = append(refs, s.sessionDoc(id))
		}
		snaps, err := s.client.GetAll(ctx, refs)
		if err != nil {
			return nil, 0, fmt.Errorf("firestore ListSessions members: %w", err)
		}
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			var doc sessionDoc
			if err := snap.DataTo(&doc); err != nil {
				return nil, 0, fmt.Errorf("decode sessionDoc: %w", err)
			}
			add(doc.toDomain(snap.Ref.ID))
		}
	}

	memory.SortNewestFirst(candidates)
	return memory.Page(candidates, q.Offset, q.Limit), len(candidates), nil
}

// ─────────────────────────────────────────
// MessageStore implementation
// ─────────────────────────────────────────

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	var userID *string
	if msg.UserID != nil {
		v := string(*msg.UserID)
		userID = &v
	}

	doc := messageDoc{
		SessionID: string(msg.SessionID),
		UserID:    userID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Seq:       msg.Seq,
	}

	_, err := s.messageDoc(msg.SessionID, msg.ID).Set(ctx, doc)
	if err != nil {
		return fmt.Errorf("firestore AppendMessage: %w", err)
	}
	return nil
}

// ListMessages orders on (created_at, seq) server side. Role and search
// filters run in process so no composite index is needed.
func (s *Store) ListMessages(ctx context.Context, sessionID domain.SessionID, q domain.MessageQuery) ([]*domain.Message, int, error) {
	dir := firestore.Asc
	if q.Descending {
		dir = firestore.Desc
	}
	iter := s.messagesCol(sessionID).OrderBy("created_at", dir).OrderBy("seq", dir).Documents(ctx)
	defer iter.Stop()

	search := strings.ToLower(q.Search)
	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, 0, fmt.Errorf("firestore ListMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode messageDoc: %w", err)
		}
		if q.Role != "" && domain.Role(doc.Role) != q.Role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(doc.Content), search) {
			continue
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return memory.Page(out, q.Offset, q.Limit), len(out), nil
}

func (s *Store) GetMessage(ctx context.Context, sessionID domain.SessionID, id domain.MessageID) (*domain.Message, error) {
	snap, err := s.messageDoc(sessionID, id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("firestore GetMessage: %w", err)
	}
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode messageDoc: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (s *Store) DeleteMessage(ctx context.Context, sessionID domain.SessionID, id domain.MessageID) error {
	if _, err := s.messageDoc(sessionID, id).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return domain.ErrMessageNotFound
		}
		return fmt.Errorf("firestore DeleteMessage: %w", err)
	}
	return nil
}

func (s *Store) DeleteSessionMessages(ctx context.Context, sessionID domain.SessionID) (int, error) {
	n, err := s.deleteAll(ctx, s.messagesCol(sessionID).Query)
	if err != nil {
		return 0, fmt.Errorf("firestore DeleteSessionMessages: %w", err)
	}
	return n, nil
}
