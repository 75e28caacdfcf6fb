package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// Emails are unique through a second collection keyed by the lower-cased
// address, written in the same transaction as the user.

type userDoc struct {
	Email        string    `firestore:"email"`
	Username     string    `firestore:"username"`
	Role         string    `firestore:"role"`
	PasswordHash string    `firestore:"password_hash"`
	CreatedAt    time.Time `firestore:"created_at"`
}

type emailDoc struct {
	UserID string `firestore:"user_id"`
}

func (s *Store) userDoc(id domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(id))
}

func (s *Store) emailDoc(email string) *firestore.DocumentRef {
	return s.client.Collection("user_emails").Doc(strings.ToLower(email))
}

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		Email:        strings.ToLower(u.Email),
		Username:     u.Username,
		Role:         string(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func (d userDoc) toDomain(id string) *domain.User {
	return &domain.User{
		ID:           domain.UserID(id),
		Email:        d.Email,
		Username:     d.Username,
		Role:         domain.UserRole(d.Role),
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

var errEmailTaken = domain.NewError(domain.ErrConflict, "email already registered")

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(s.emailDoc(user.Email)); err == nil {
			return errEmailTaken
		} else if !isNotFound(err) {
			return err
		}
		if err := tx.Create(s.userDoc(user.ID), toUserDoc(user)); err != nil {
			return err
		}
		return tx.Create(s.emailDoc(user.Email), emailDoc{UserID: string(user.ID)})
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return err
		}
		if isAlreadyExists(err) {
			return domain.NewError(domain.ErrConflict, "user already exists")
		}
		return fmt.Errorf("firestore CreateUser: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(s.userDoc(user.ID))
		if err != nil {
			if isNotFound(err) {
				return domain.ErrUserNotFound
			}
			return err
		}
		var prev userDoc
		if err := snap.DataTo(&prev); err != nil {
			return err
		}

		next := toUserDoc(user)
		if next.Email != prev.Email {
			owner, err := tx.Get(s.emailDoc(next.Email))
			if err == nil {
				var e emailDoc
				if err := owner.DataTo(&e); err != nil {
					return err
				}
				if e.UserID != string(user.ID) {
					return errEmailTaken
				}
			} else if !isNotFound(err) {
				return err
			}
			if err := tx.Delete(s.emailDoc(prev.Email)); err != nil {
				return err
			}
			if err := tx.Set(s.emailDoc(next.Email), emailDoc{UserID: string(user.ID)}); err != nil {
				return err
			}
		}
		return tx.Set(s.userDoc(user.ID), next)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("firestore UpdateUser: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	snap, err := s.userDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("firestore GetUser: %w", err)
	}
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode userDoc: %w", err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	snap, err := s.emailDoc(email).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("firestore GetUserByEmail: %w", err)
	}
	var e emailDoc
	if err := snap.DataTo(&e); err != nil {
		return nil, fmt.Errorf("decode emailDoc: %w", err)
	}
	return s.GetUser(ctx, domain.UserID(e.UserID))
}
