// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/storefront-dev/storefront/internal/domain/session"
)

// TokenStore implements session.TokenStore with a guarded string.
// Thread-safe for concurrent access. The token dies with the process, so
// it suits tests and one-shot runs with token.store set to memory.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

var _ session.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// NewTokenStoreWith creates a store already holding token.
func NewTokenStoreWith(token string) *TokenStore {
	return &TokenStore{token: token}
}

// Load returns the stored token, or "" when none is stored.
func (s *TokenStore) Load(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Save replaces the stored token.
func (s *TokenStore) Save(_ context.Context, token string) error {
	if token == "" {
		return errors.New("refusing to save an empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Delete clears the stored token.
func (s *TokenStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
