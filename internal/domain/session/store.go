package session

import "context"

// TokenKey is the fixed key under which the credential token is persisted.
const TokenKey = "token"

// TokenStore persists the single credential token across process restarts.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (default), sqlite, in-memory (tests, ephemeral runs).
type TokenStore interface {
	// Load returns the stored token, or "" with a nil error if none is stored.
	Load(ctx context.Context) (string, error)

	// Save replaces the stored token.
	Save(ctx context.Context, token string) error

	// Delete discards the stored token. Deleting an absent token is not an error.
	Delete(ctx context.Context) error
}
