package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/adapters/storage/memory"
	"github.com/PabloGalante/ttrpg-gm/internal/app/account"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

func newService() (*account.Service, *identity.JWTService) {
	tokens := identity.NewJWTService("secret", "test", time.Minute, time.Hour)
	return account.NewService(memory.NewUserStore(), tokens, identity.NewHasher(bcrypt.MinCost)), tokens
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newService()

	out, err := svc.Register(ctx, account.RegisterInput{Email: "  Alice@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", out.User.Email)
	assert.Equal(t, "alice", out.User.Username)
	assert.Equal(t, domain.UserRolePlayer, out.User.Role)

	id, err := tokens.Verify(out.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, id.UserID)

	login, err := svc.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, out.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "alice@example.com", "nope")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = svc.Login(ctx, "bob@example.com", "secret1")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	_, err := svc.Register(ctx, account.RegisterInput{Email: "no-at-sign", Password: "secret1"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Register(ctx, account.RegisterInput{Email: "a@b.c", Password: "12345"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Register(ctx, account.RegisterInput{Email: "a@b.c", Password: "123456", Role: domain.UserRoleAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Register(ctx, account.RegisterInput{Email: "a@b.c", Password: "123456"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, account.RegisterInput{Email: "A@B.C", Password: "123456"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	svc, tokens := newService()
	out, err := svc.Register(ctx, account.RegisterInput{Email: "a@b.c", Password: "123456"})
	require.NoError(t, err)

	fresh, err := svc.Refresh(ctx, out.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = tokens.Verify(fresh.AccessToken)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, out.Tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()
	out, err := svc.Register(ctx, account.RegisterInput{Email: "a@b.c", Password: "123456"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, out.User.ID, "wrong1", "abcdef"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.ChangePassword(ctx, out.User.ID, "123456", "abc"), domain.ErrInvalidInput)
	require.NoError(t, svc.ChangePassword(ctx, out.User.ID, "123456", "abcdef"))

	_, err = svc.Login(ctx, "a@b.c", "123456")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = svc.Login(ctx, "a@b.c", "abcdef")
	require.NoError(t, err)
}
