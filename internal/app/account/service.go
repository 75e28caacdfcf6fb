package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/ttrpg-gm/internal/adapters/identity"
	"github.com/PabloGalante/ttrpg-gm/internal/domain"
	"github.com/PabloGalante/ttrpg-gm/internal/observability"
)

const MinPasswordLength = 6

type Service struct {
	users  domain.UserStore
	tokens *identity.JWTService
	hasher *identity.Hasher
	now    func() time.Time
}

func NewService(users domain.UserStore, tokens *identity.JWTService, hasher *identity.Hasher) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
	Role     domain.UserRole
}

// Tokens is the pair handed out on login.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type AuthOutput struct {
	User   *domain.User
	Tokens Tokens
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return "", domain.NewError(domain.ErrInvalidInput, "invalid email")
	}
	return email, nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthOutput, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < MinPasswordLength {
		return nil, domain.Errorf(domain.ErrInvalidInput, "password must be at least %d characters", MinPasswordLength)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}
	role := in.Role
	switch role {
	case "":
		role = domain.UserRolePlayer
	case domain.UserRolePlayer, domain.UserRoleGM:
	default:
		return nil, domain.Errorf(domain.ErrInvalidInput, "role %q cannot be self-assigned", role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		Username:     username,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.NewError(domain.ErrConflict, "email already registered")
		}
		return nil, domain.Unavailable("create user", err)
	}

	observability.LoggerFromContext(ctx).Info("user registered", "user_id", user.ID)
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (*AuthOutput, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.NewError(domain.ErrUnauthenticated, "invalid email or password")
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewError(domain.ErrUnauthenticated, "invalid email or password")
		}
		return nil, domain.Unavailable("get user", err)
	}
	if err := s.hasher.Check(user.PasswordHash, password); err != nil {
		return nil, err
	}

	observability.LoggerFromContext(ctx).Info("user logged in", "user_id", user.ID)
	return s.issue(user)
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	id, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return Tokens{}, err
	}
	user, err := s.users.GetUser(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Tokens{}, domain.NewError(domain.ErrUnauthenticated, "user no longer exists")
		}
		return Tokens{}, domain.Unavailable("get user", err)
	}
	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:  access.Value,
		RefreshToken: refreshToken,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

func (s *Service) Me(ctx context.Context, id domain.UserID) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Unavailable("get user", err)
	}
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, id domain.UserID, current, next string) error {
	if len(next) < MinPasswordLength {
		return domain.Errorf(domain.ErrInvalidInput, "password must be at least %d characters", MinPasswordLength)
	}
	user, err := s.Me(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Check(user.PasswordHash, current); err != nil {
		return domain.NewError(domain.ErrInvalidInput, "current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return domain.Unavailable("update user", err)
	}
	observability.LoggerFromContext(ctx).Info("password changed", "user_id", id)
	return nil
}

func (s *Service) issue(user *domain.User) (*AuthOutput, error) {
	access, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{
		User: user,
		Tokens: Tokens{
			AccessToken:  access.Value,
			RefreshToken: refresh.Value,
			ExpiresIn:    s.tokens.AccessTTL(),
		},
	}, nil
}
