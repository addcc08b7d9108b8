package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// StaticAuthenticator accepts a fixed set of API keys, typically from
// INSPECTION_API_KEYS. Comparison is constant-time.
type StaticAuthenticator struct {
	keys [][sha256.Size]byte
}

func NewStaticAuthenticator(keys []string) *StaticAuthenticator {
	a := &StaticAuthenticator{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			a.keys = append(a.keys, sha256.Sum256([]byte(k)))
		}
	}
	return a
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Caller, error) {
	if token == "" {
		return nil, ErrMissingAPIKey
	}
	sum := sha256.Sum256([]byte(token))
	match := 0
	for i := range a.keys {
		match |= subtle.ConstantTimeCompare(sum[:], a.keys[i][:])
	}
	if match != 1 {
		return nil, ErrInvalidAPIKey
	}
	id := "static-" + hex.EncodeToString(sum[:4])
	return &Caller{ID: id, Name: id}, nil
}
