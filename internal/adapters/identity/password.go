package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

// Hasher hashes and checks passwords with bcrypt.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Check returns an unauthenticated error when password does not match hash.
func (h *Hasher) Check(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.NewError(domain.ErrUnauthenticated, "invalid email or password")
	}
	if err != nil {
		return fmt.Errorf("check password: %w", err)
	}
	return nil
}
