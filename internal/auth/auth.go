package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrMissingAPIKey   = errors.New("missing authorization header")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrAuthUnavailable = errors.New("auth backend unavailable")
)

// Caller is the authenticated client of the inspection API.
type Caller struct {
	ID   string
	Name string
}

// Authenticator validates a bearer token and returns its caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Caller, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	token := strings.TrimSpace(header)
	if token == "" {
		return "", ErrMissingAPIKey
	}
	// RFC 6750: the "Bearer" scheme is case-insensitive.
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		return "", ErrMissingAPIKey
	}
	return token, nil
}

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller, or nil.
func CallerFrom(ctx context.Context) *Caller {
	c, _ := ctx.Value(callerKey{}).(*Caller)
	return c
}
