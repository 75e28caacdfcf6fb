package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

type participantDoc struct {
	SessionID string    `firestore:"session_id"`
	UserID    string    `firestore:"user_id"`
	JoinedAt  time.Time `firestore:"joined_at"`
}

// AddParticipant checks membership and capacity inside one transaction so
// concurrent joins cannot overfill a session.
func (s *Store) AddParticipant(ctx context.Context, p *domain.Participant, capacity int) error {
	col := s.participantsCol(p.SessionID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(col).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if snap.Ref.ID == string(p.UserID) {
				return domain.NewError(domain.ErrConflict, "already a participant")
			}
		}
		if capacity > 0 && len(snaps) >= capacity {
			return domain.NewError(domain.ErrConflict, "session is full")
		}
		return tx.Create(col.Doc(string(p.UserID)), participantDoc{
			SessionID: string(p.SessionID),
			UserID:    string(p.UserID),
			JoinedAt:  p.JoinedAt,
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		return fmt.Errorf("firestore AddParticipant: %w", err)
	}
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, sessionID domain.SessionID, userID domain.UserID) error {
	if _, err := s.participantsCol(sessionID).Doc(string(userID)).Delete(ctx, firestore.Exists); err != nil {
		if isNotFound(err) {
			return domain.NewError(domain.ErrNotFound, "not a participant")
		}
		return fmt.Errorf("firestore RemoveParticipant: %w", err)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	iter := s.participantsCol(sessionID).OrderBy("joined_at", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Participant
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListParticipants: %w", err)
		}
		var doc participantDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode participantDoc: %w", err)
		}
		out = append(out, &domain.Participant{
			SessionID: sessionID,
			UserID:    domain.UserID(doc.UserID),
			JoinedAt:  doc.JoinedAt,
		})
	}
	return out, nil
}

// ListUserSessionIDs runs a collection group query over every session's
// participants.
func (s *Store) ListUserSessionIDs(ctx context.Context, userID domain.UserID) ([]domain.SessionID, error) {
	iter := s.client.CollectionGroup("participants").Where("user_id", "==", string(userID)).Documents(ctx)
	defer iter.Stop()

	var ids []domain.SessionID
	for {
		snap, err := iter.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("firestore ListUserSessionIDs: %w", err)
		}
		var doc participantDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode participantDoc: %w", err)
		}
		ids = append(ids, domain.SessionID(doc.SessionID))
	}
	return ids, nil
}

func (s *Store) DeleteSessionParticipants(ctx context.Context, sessionID domain.SessionID) error {
	if _, err := s.deleteAll(ctx, s.participantsCol(sessionID).Query); err != nil {
		return fmt.Errorf("firestore DeleteSessionParticipants: %w", err)
	}
	return nil
}
