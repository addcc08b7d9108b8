package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLength is how many leading characters of an API key are stored
// in clear for lookup.
const KeyPrefixLength = 16

// Caller represents a row in the callers table.
type Caller struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	Disabled     bool
	CreatedAt    time.Time
}

// GenerateAPIKey creates a new tsk_ API key with its bcrypt hash and prefix.
// Returns (fullKey, hash, prefix, error). The fullKey is shown to the user once.
func GenerateAPIKey() (string, string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := "tsk_" + hex.EncodeToString(raw) // 68 chars total

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}

	return fullKey, string(hashBytes), fullKey[:KeyPrefixLength], nil
}

// CreateCaller registers a caller and returns it with its plaintext API key
// (shown once).
func (s *Store) CreateCaller(ctx context.Context, name string) (*Caller, string, error) {
	fullKey, keyHash, keyPrefix, err := GenerateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("CreateCaller: %w", err)
	}

	var c Caller
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO callers (name, api_key_hash, api_key_prefix)
		VALUES ($1, $2, $3)
		RETURNING id, name, api_key_hash, api_key_prefix, disabled, created_at`,
		name, keyHash, keyPrefix,
	).Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.Disabled, &c.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("CreateCaller: %w", err)
	}
	return &c, fullKey, nil
}

// ListCallers returns all callers ordered by created_at DESC.
func (s *Store) ListCallers(ctx context.Context) ([]*Caller, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, disabled, created_at
		FROM callers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListCallers: %w", err)
	}
	defer rows.Close()

	var callers []*Caller
	for rows.Next() {
		var c Caller
		if err := rows.Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.Disabled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListCallers: %w", err)
		}
		callers = append(callers, &c)
	}
	return callers, rows.Err()
}

// LookupByPrefix returns the enabled caller owning an API key prefix.
func (s *Store) LookupByPrefix(ctx context.Context, prefix string) (*Caller, error) {
	var c Caller
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, disabled, created_at
		FROM callers WHERE api_key_prefix = $1 AND NOT disabled`,
		prefix,
	).Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.Disabled, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("LookupByPrefix: %w", err)
	}
	return &c, nil
}

// DisableCaller revokes a caller's key.
func (s *Store) DisableCaller(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE callers SET disabled = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DisableCaller: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DisableCaller: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
