package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, expired, or malformed claims. Handlers map it to 401 without
// leaking which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Verifier validates the HS256 bearer tokens issued for gateway access.
// The website signs them with the same shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared signing secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("JWT secret must be at least 32 bytes")
	}
	return &Verifier{secret: secret}, nil
}

// Verify parses and validates a token, returning its subject. Tokens must
// carry an expiry; non-expiring tokens are rejected.
func (v *Verifier) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return "", fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issue mints a token for the given subject. Used by the CLI and tests;
// production tokens come from the website with the same shared secret.
func Issue(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
