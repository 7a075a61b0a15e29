// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Set by the CLI to a logger carrying the command name; the API client logs with it.
type LoggerKey struct{}

// RequestIDKey is the context key type for a caller-chosen request ID.
// When present, the API client sends it as X-Request-ID instead of minting one.
type RequestIDKey struct{}
