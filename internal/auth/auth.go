// Package auth implements the Gateway's bearer-token authentication from
// spec.md §4.1: a single opaque token compared in constant time, plus an
// optional signed-token mode for deployments that want per-connection
// claims instead of one shared secret.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a presented token does not match.
var ErrInvalidToken = errors.New("invalid or missing auth token")

// Service authenticates requests against a single configured bearer token.
// When the token is empty and JWT mode is not enabled, authentication is
// disabled and every request is allowed (matching spec.md: "if an auth
// token is configured").
type Service struct {
	token     string
	jwtSecret []byte
	jwtExpiry time.Duration
}

// NewService builds an auth Service for the given static bearer token.
// An empty token disables authentication unless WithJWT is also called.
func NewService(token string) *Service {
	return &Service{token: token}
}

// WithJWT enables an additional signed-token mode: tokens that parse as a
// valid HS256 JWT signed with secret are also accepted, independent of
// the static bearer token.
func (s *Service) WithJWT(secret string, expiry time.Duration) *Service {
	s.jwtSecret = []byte(secret)
	s.jwtExpiry = expiry
	return s
}

// Enabled reports whether the Gateway should require authentication.
func (s *Service) Enabled() bool {
	return s != nil && (s.token != "" || len(s.jwtSecret) > 0)
}

// Authenticate checks presented against the configured token(s) in
// constant time, returning ErrInvalidToken on any mismatch.
func (s *Service) Authenticate(presented string) error {
	if !s.Enabled() {
		return nil
	}
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return ErrInvalidToken
	}
	if s.token != "" && constantTimeEqual(presented, s.token) {
		return nil
	}
	if len(s.jwtSecret) > 0 {
		if _, err := s.parseJWT(presented); err == nil {
			return nil
		}
	}
	return ErrInvalidToken
}

func (s *Service) parseJWT(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueJWT signs a short-lived token for subject, for deployments using
// WithJWT. It is not required by spec.md's bearer-token contract but
// gives operators a rotation-friendly alternative to the shared secret.
func (s *Service) IssueJWT(subject string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("jwt mode not enabled")
	}
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.jwtExpiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison of equal length to avoid an obvious
		// early length-based timing signal for short-token guesses.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
