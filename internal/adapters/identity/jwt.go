// Package identity issues and verifies the bearer tokens used by the HTTP
// and real-time APIs, and hashes account passwords.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PabloGalante/ttrpg-gm/internal/domain"
)

const (
	subjectAccess  = "access"
	subjectRefresh = "refresh"
)

// Identity is the caller proven by a token.
type Identity struct {
	UserID domain.UserID
	Email  string
	Role   domain.UserRole
}

// Verifier validates access tokens.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type JWTService struct {
	secretKey         []byte
	issuer            string
	expirationAccess  time.Duration
	expirationRefresh time.Duration
	now               func() time.Time
}

var _ Verifier = (*JWTService)(nil)

func NewJWTService(secretKey, issuer string, expirationAccess, expirationRefresh time.Duration) *JWTService {
	return &JWTService{
		secretKey:         []byte(secretKey),
		issuer:            issuer,
		expirationAccess:  expirationAccess,
		expirationRefresh: expirationRefresh,
		now:               time.Now,
	}
}

func (j *JWTService) GenerateAccessToken(u *domain.User) (Token, error) {
	return j.generate(u, subjectAccess, j.expirationAccess)
}

func (j *JWTService) GenerateRefreshToken(u *domain.User) (Token, error) {
	return j.generate(u, subjectRefresh, j.expirationRefresh)
}

// AccessTTL is the lifetime of access tokens.
func (j *JWTService) AccessTTL() time.Duration { return j.expirationAccess }

func (j *JWTService) generate(u *domain.User, subject string, ttl time.Duration) (Token, error) {
	now := j.now()
	claims := &Claims{
		UserID: string(u.ID),
		Email:  u.Email,
		Role:   string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   subject,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(j.secretKey)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", subject, err)
	}
	return Token{Value: tokenStr, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify accepts access tokens only.
func (j *JWTService) Verify(tokenStr string) (*Identity, error) {
	return j.validate(tokenStr, subjectAccess)
}

// VerifyRefresh accepts refresh tokens only.
func (j *JWTService) VerifyRefresh(tokenStr string) (*Identity, error) {
	return j.validate(tokenStr, subjectRefresh)
}

func (j *JWTService) validate(tokenStr, subject string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return j.secretKey, nil
		},
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, domain.Errorf(domain.ErrUnauthenticated, "invalid token: %v", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, domain.NewError(domain.ErrUnauthenticated, "invalid token")
	}
	if claims.Subject != subject {
		return nil, domain.NewError(domain.ErrUnauthenticated, "invalid token type")
	}
	return &Identity{
		UserID: domain.UserID(claims.UserID),
		Email:  claims.Email,
		Role:   domain.UserRole(claims.Role),
	}, nil
}
