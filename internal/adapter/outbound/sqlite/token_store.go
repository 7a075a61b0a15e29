// Package sqlite persists the credential token in a SQLite database, for
// hosts that already keep client state in one.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

const schema = `
	CREATE TABLE IF NOT EXISTS credentials (
		key      TEXT PRIMARY KEY,
		token    TEXT NOT NULL,
		saved_at TEXT NOT NULL
	)
`

// TokenStore keeps the credential token in the credentials table under
// session.TokenKey.
type TokenStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ session.TokenStore = (*TokenStore)(nil)

// NewTokenStore opens (creating if needed) the database at dbPath and
// ensures the schema exists.
func NewTokenStore(ctx context.Context, dbPath string, logger *slog.Logger) (*TokenStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the busy_timeout pragma in effect for every query.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &TokenStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Load returns the stored token, or "" when none is stored.
func (s *TokenStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM credentials WHERE key = ?`, session.TokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query token: %w", err)
	}
	return token, nil
}

// SavedAt returns when the current token was written, or the zero time.
func (s *TokenStore) SavedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT saved_at FROM credentials WHERE key = ?`, session.TokenKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query token: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse saved_at: %w", err)
	}
	return t, nil
}

// Save upserts token.
func (s *TokenStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to save an empty token")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (key, token, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET token = excluded.token, saved_at = excluded.saved_at
	`, session.TokenKey, token, s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	s.logger.Debug("credential saved", "store", "sqlite")
	return nil
}

// Delete removes the token. Deleting a missing token is not an error.
func (s *TokenStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE key = ?`, session.TokenKey); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	s.logger.Debug("credential removed", "store", "sqlite")
	return nil
}

// Close closes the database.
func (s *TokenStore) Close() error {
	return s.db.Close()
}
