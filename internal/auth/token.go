// Package auth issues session tokens and gates routes by identity and role.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/ariefcatur/plantnet/internal/apperr"
)

var (
	ErrNoToken      = apperr.New(apperr.Unauthenticated, "unauthorized access")
	ErrInvalidToken = apperr.New(apperr.Unauthenticated, "invalid or expired session")
	ErrEmailMissing = apperr.New(apperr.InvalidArgument, "email is required")
)

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (t *Tokens) Issue(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailMissing
	}
	now := t.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	return s, errors.Wrap(err, "sign token")
}

// Parse verifies raw and returns the email it carries.
func (t *Tokens) Parse(raw string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.Now))
	if err != nil || claims.Email == "" {
		return "", ErrInvalidToken
	}
	return claims.Email, nil
}
