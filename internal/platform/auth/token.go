package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultClockSkew is the leeway applied when checking the exp claim.
const DefaultClockSkew = 2 * time.Minute

// TokenSource yields the bearer token for an outgoing request. An empty token
// with a nil error means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f(ctx).
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Claims holds the registered claims of a JWT bearer token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now, allowing skew.
// Tokens without an exp claim never expire.
func (c Claims) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt.Add(skew))
}

// LooksLikeJWT reports whether token has the three dot-separated segments of
// a compact JWS.
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// Inspect decodes the registered claims of a JWT without verifying its
// signature.
func Inspect(token string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &jwt.RegisteredClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	registered, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// StaticTokenSource serves a configured token. The token can be replaced at
// runtime, e.g. after a config reload.
type StaticTokenSource struct {
	mu        sync.RWMutex
	token     string
	claims    *Claims
	required  bool
	clockSkew time.Duration
	timeFunc  func() time.Time
}

// Option configures a StaticTokenSource.
type Option func(*StaticTokenSource)

// WithRequired makes Token fail with ErrMissingToken when no token is set.
func WithRequired() Option {
	return func(s *StaticTokenSource) { s.required = true }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *StaticTokenSource) { s.timeFunc = now }
}

// NewStaticTokenSource creates a token source for token.
func NewStaticTokenSource(token string, opts ...Option) *StaticTokenSource {
	s := &StaticTokenSource{
		clockSkew: DefaultClockSkew,
		timeFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Set(token)
	return s
}

// Set replaces the token.
func (s *StaticTokenSource) Set(token string) {
	token = strings.TrimSpace(token)

	var claims *Claims
	if LooksLikeJWT(token) {
		// Opaque tokens that happen to contain two dots are passed through.
		claims, _ = Inspect(token)
	}

	s.mu.Lock()
	s.token = token
	s.claims = claims
	s.mu.Unlock()
}

// Claims returns the decoded claims of the current token, if it is a JWT.
func (s *StaticTokenSource) Claims() (Claims, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return Claims{}, false
	}
	return *s.claims, true
}

// Token implements TokenSource.
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	token, claims := s.token, s.claims
	s.mu.RUnlock()

	if token == "" {
		if s.required {
			return "", ErrMissingToken
		}
		return "", nil
	}
	if claims != nil && claims.Expired(s.timeFunc(), s.clockSkew) {
		return "", fmt.Errorf("%w at %s", ErrExpiredToken, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return token, nil
}

// IsAuthError reports whether err originates from a token source.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrExpiredToken) || errors.Is(err, ErrInvalidToken)
}
