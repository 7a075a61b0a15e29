// Package state persists the credential token in a local JSON file.
package state

import "time"

// currentVersion is the schema version written by this build.
const currentVersion = "1"

// TokenState is the on-disk shape of the credential file.
type TokenState struct {
	// Version is the schema version of the file.
	Version string `json:"version"`

	// Token is the opaque bearer token issued by the storefront API.
	Token string `json:"token"`

	// SavedAt is when the token was first written by a login or register.
	SavedAt time.Time `json:"saved_at"`

	// UpdatedAt is when the file was last written.
	UpdatedAt time.Time `json:"updated_at"`
}
