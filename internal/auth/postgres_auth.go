package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/triage-ai/inspection/internal/store"
)

// CallerStore abstracts DB queries for testability.
type CallerStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*store.Caller, error)
}

// PostgresAuthenticator validates API keys against the callers table.
// Uses CallerCache with stale-while-revalidate to avoid DB + bcrypt on the hot path.
type PostgresAuthenticator struct {
	store  CallerStore
	cache  *CallerCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	Store    CallerStore
	CacheTTL time.Duration // Default: 30s
	Logger   *zap.Logger
}

func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresAuthenticator{
		store:  cfg.Store,
		cache:  NewCallerCache(ttl),
		logger: logger,
	}
}

// Authenticate validates the API key against the database.
//
// Flow:
//  1. Cache lookup (stale-while-revalidate):
//     - Fresh hit: return immediately
//     - Stale hit: return stale caller, spawn background refresh
//     - Miss: do full DB + bcrypt lookup synchronously
//  2. Unknown prefix or hash mismatch: ErrInvalidAPIKey
//  3. DB failure: ErrAuthUnavailable
func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Caller, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	result := a.cache.Get(apiKey)
	if result.Hit {
		if result.NeedsRefresh {
			go a.backgroundRefresh(apiKey)
		}
		return result.Caller, nil
	}

	caller, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		return nil, a.handleLookupError(err)
	}

	a.cache.Set(apiKey, caller)
	return caller, nil
}

// backgroundRefresh re-verifies a stale key. On failure the entry is dropped
// so the next request does a synchronous lookup.
func (a *PostgresAuthenticator) backgroundRefresh(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	caller, err := a.lookupAndVerify(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background cache refresh failed", zap.Error(err))
		a.cache.Delete(apiKey)
		return
	}

	a.cache.Set(apiKey, caller)
}

func (a *PostgresAuthenticator) lookupAndVerify(ctx context.Context, apiKey string) (*Caller, error) {
	if len(apiKey) < store.KeyPrefixLength {
		return nil, ErrInvalidAPIKey
	}

	row, err := a.store.LookupByPrefix(ctx, apiKey[:store.KeyPrefixLength])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("lookupAndVerify: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrInvalidAPIKey
	}

	return &Caller{ID: row.ID, Name: row.Name}, nil
}

func (a *PostgresAuthenticator) handleLookupError(lookupErr error) error {
	if errors.Is(lookupErr, ErrInvalidAPIKey) {
		return ErrInvalidAPIKey
	}
	a.logger.Warn("auth DB unreachable", zap.Error(lookupErr))
	return fmt.Errorf("%w: %v", ErrAuthUnavailable, lookupErr)
}
