package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the lifetime of a session token and its cookie.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims is the compact claim set carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
}

func (c *SessionClaims) AccountID() string {
	return c.Subject
}

// TokenCodec signs and verifies HS256 session tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source used for issuance and validation.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

func (c *TokenCodec) Issue(accountID string) (string, time.Time, error) {
	issued := c.now()
	expires := issued.Add(c.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

func (c *TokenCodec) Parse(raw string) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	token, err := parser.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
