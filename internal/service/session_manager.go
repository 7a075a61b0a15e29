package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/metrics"
	"github.com/storefront-dev/storefront/internal/port/inbound"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// SessionObserver is notified after every change of authenticated identity.
// It runs synchronously on the goroutine that caused the change and must
// not call Login, Register or Logout.
type SessionObserver func(ctx context.Context, t session.Transition)

// SessionManager owns the authenticated identity and the persisted token.
// It is the only writer of the token store.
type SessionManager struct {
	auth    outbound.AuthGateway
	tokens  session.TokenStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	// transMu serializes transitions so observers see them in order.
	transMu sync.Mutex

	mu    sync.RWMutex
	state session.State
	// epoch counts applied transitions, including no-op ones. Initialize
	// uses it to drop a profile answer overtaken by a login or logout.
	epoch uint64

	initOnce  sync.Once
	observers observerList[SessionObserver]
}

var _ inbound.Session = (*SessionManager)(nil)

// SessionOption configures SessionManager.
type SessionOption func(*SessionManager)

// WithSessionMetrics records the authenticated gauge.
func WithSessionMetrics(m *metrics.Metrics) SessionOption {
	return func(s *SessionManager) {
		s.metrics = m
	}
}

// NewSessionManager creates a SessionManager in the initializing state.
func NewSessionManager(auth outbound.AuthGateway, tokens session.TokenStore, logger *slog.Logger, opts ...SessionOption) *SessionManager {
	s := &SessionManager{
		auth:   auth,
		tokens: tokens,
		logger: logger,
		state:  session.State{Initializing: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recordGauge(s.state)
	return s
}

// Initialize restores the session from the persisted token. It never fails:
// a missing token leaves the session anonymous, and a token the server
// rejects is deleted. Initializing() is false once it returns. Only the
// first call does any work.
func (s *SessionManager) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		s.initialize(ctx)
	})
}

func (s *SessionManager) initialize(ctx context.Context) {
	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to read stored credential, starting anonymous", "error", err)
		s.finishInit(ctx, epoch, nil)
		return
	}
	if token == "" {
		s.logger.Debug("no stored credential")
		s.finishInit(ctx, epoch, nil)
		return
	}

	user, err := s.auth.Profile(ctx)
	if err != nil {
		s.logger.Warn("stored credential rejected, discarding it", "error", err)
		if !s.finishInit(ctx, epoch, nil) {
			return
		}
		// A login may have stored a fresh token meanwhile; keep that one.
		if cur, lerr := s.tokens.Load(ctx); lerr == nil && cur == token {
			if derr := s.tokens.Delete(ctx); derr != nil {
				s.logger.Warn("failed to delete rejected credential", "error", derr)
			}
		}
		return
	}

	if s.finishInit(ctx, epoch, user) {
		s.logger.Info("session restored", "user_id", user.ID)
	}
}

// finishInit clears Initializing and, unless another transition happened
// since epoch, installs user. It reports whether user was applied.
func (s *SessionManager) finishInit(ctx context.Context, epoch uint64, user *session.User) bool {
	applied := false
	s.apply(ctx, func(st *session.State, current uint64) {
		st.Initializing = false
		if current != epoch {
			return
		}
		st.User = user
		applied = true
	})
	return applied
}

// Login exchanges credentials for a token, persists it, then marks the
// session authenticated. Gateway errors are returned unchanged and leave
// the session as it was.
func (s *SessionManager) Login(ctx context.Context, email, password string) (*session.AuthResponse, error) {
	resp, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.establish(ctx, resp); err != nil {
		return nil, err
	}
	s.logger.Info("logged in", "user_id", resp.User.ID)
	return resp, nil
}

// Register creates an account and logs it in, like Login.
func (s *SessionManager) Register(ctx context.Context, name, email, password string) (*session.AuthResponse, error) {
	resp, err := s.auth.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.establish(ctx, resp); err != nil {
		return nil, err
	}
	s.logger.Info("registered", "user_id", resp.User.ID)
	return resp, nil
}

func (s *SessionManager) establish(ctx context.Context, resp *session.AuthResponse) error {
	if err := s.tokens.Save(ctx, resp.Token); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	user := resp.User
	s.apply(ctx, func(st *session.State, _ uint64) {
		st.User = &user
	})
	return nil
}

// Logout deletes the persisted token and clears the identity. It never
// fails; a token store error is logged.
func (s *SessionManager) Logout(ctx context.Context) {
	if err := s.tokens.Delete(ctx); err != nil {
		s.logger.Warn("failed to delete stored credential", "error", err)
	}
	s.apply(ctx, func(st *session.State, _ uint64) {
		st.User = nil
	})
	s.logger.Info("logged out")
}

// CurrentUser returns a copy of the logged-in user, or nil.
func (s *SessionManager) CurrentUser() *session.User {
	return s.State().User
}

// IsAuthenticated reports whether a user is logged in.
func (s *SessionManager) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated()
}

// Initializing reports whether the startup validation is still pending.
func (s *SessionManager) Initializing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Initializing
}

// State returns a copy of the current state.
func (s *SessionManager) State() session.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Subscribe registers fn for identity transitions and returns its remover.
func (s *SessionManager) Subscribe(fn func(context.Context, session.Transition)) func() {
	return s.observers.add(fn)
}

// apply mutates the state under lock, then notifies observers when the
// identity changed. fn receives the epoch before this transition.
func (s *SessionManager) apply(ctx context.Context, fn func(st *session.State, epoch uint64)) {
	s.transMu.Lock()
	defer s.transMu.Unlock()

	s.mu.Lock()
	prev := s.state.Clone()
	fn(&s.state, s.epoch)
	cur := s.state.Clone()
	s.epoch++
	s.mu.Unlock()

	t := session.Transition{Previous: prev, Current: cur}
	s.recordGauge(cur)
	if !t.Changed() {
		return
	}
	for _, obs := range s.observers.snapshot() {
		obs(ctx, t)
	}
}

func (s *SessionManager) recordGauge(st session.State) {
	if s.metrics == nil {
		return
	}
	if st.IsAuthenticated() {
		s.metrics.SessionAuthenticated.Set(1)
	} else {
		s.metrics.SessionAuthenticated.Set(0)
	}
}
