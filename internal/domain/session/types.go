// Package session holds the authenticated identity of the storefront client.
package session

// User is the identity record returned by the remote auth service.
type User struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// AuthResponse is the payload of a successful login or registration.
type AuthResponse struct {
	// Message is the human-readable status sent by the server.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	// Token is the opaque bearer credential. It is never logged.
	Token string `json:"token" yaml:"-"`
	// User is the authenticated identity.
	User User `json:"user" yaml:"user"`
}

// State is a point-in-time view of the session.
type State struct {
	// User is set iff the session is authenticated.
	User *User
	// Initializing is true only while the stored token is being validated at startup.
	Initializing bool
}

// IsAuthenticated reports whether a user is logged in.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	if s.User == nil {
		return s
	}
	u := *s.User
	return State{User: &u, Initializing: s.Initializing}
}

// Transition describes a change of session state delivered to observers.
type Transition struct {
	Previous State
	Current  State
}

// Authenticated reports whether the transition ends in an authenticated state.
func (t Transition) Authenticated() bool {
	return t.Current.IsAuthenticated()
}

// Unauthenticated reports whether the transition ends a logged-in session.
func (t Transition) Unauthenticated() bool {
	return t.Previous.IsAuthenticated() && !t.Current.IsAuthenticated()
}

// Changed reports whether the authenticated identity differs between the two
// states. Initializing-only changes are not identity changes.
func (t Transition) Changed() bool {
	prev, cur := t.Previous.User, t.Current.User
	switch {
	case prev == nil && cur == nil:
		return false
	case prev == nil || cur == nil:
		return true
	default:
		return *prev != *cur
	}
}
