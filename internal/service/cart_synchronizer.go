package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/metrics"
	"github.com/storefront-dev/storefront/internal/port/inbound"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// Ordering selects how concurrent snapshot-replacing calls are applied.
type Ordering string

const (
	// OrderingSerial runs calls one at a time in submission order, each
	// waiting for the previous response.
	OrderingSerial Ordering = "serial"

	// OrderingLastResponseWins runs calls concurrently; whichever response
	// lands last becomes the snapshot.
	OrderingLastResponseWins Ordering = "last-response-wins"
)

// ParseOrdering converts a config value to an Ordering. Empty means serial.
func ParseOrdering(s string) (Ordering, error) {
	switch Ordering(s) {
	case "", OrderingSerial:
		return OrderingSerial, nil
	case OrderingLastResponseWins:
		return OrderingLastResponseWins, nil
	default:
		return "", fmt.Errorf("unknown cart ordering %q", s)
	}
}

var (
	// ErrSessionChanged is returned by a cart call whose session ended or
	// changed identity before its response could be applied. The response
	// is discarded.
	ErrSessionChanged = errors.New("session changed during cart operation")

	// ErrClosed is returned by cart calls after Close.
	ErrClosed = errors.New("cart synchronizer closed")
)

const (
	opRefresh = "refresh"
	opAdd     = "add"
	opUpdate  = "update"
	opRemove  = "remove"
	opClear   = "clear"
)

// CartObserver receives a copy of each new snapshot. It may be called from
// the worker goroutine and must not call cart operations synchronously.
type CartObserver func(c *cart.Cart)

// sessionSource is the part of the session manager the cart follows.
type sessionSource interface {
	Subscribe(fn func(context.Context, session.Transition)) func()
	IsAuthenticated() bool
}

type cartCall func(ctx context.Context) (*cart.Cart, error)

type cartJob struct {
	ctx        context.Context
	op         string
	generation uint64
	call       cartCall
	result     chan error
}

// CartSynchronizer holds the client's copy of the authenticated user's cart.
// The snapshot is only ever replaced wholesale by a server response.
type CartSynchronizer struct {
	gateway  outbound.CartGateway
	logger   *slog.Logger
	metrics  *metrics.Metrics
	ordering Ordering

	// notifyMu orders snapshot replacement together with observer delivery.
	notifyMu   sync.Mutex
	mu         sync.RWMutex
	snapshot   *cart.Cart
	generation uint64

	pending atomic.Int64

	jobs    chan *cartJob
	done    chan struct{}
	wg      sync.WaitGroup
	lifeMu  sync.Mutex
	started bool
	closed  bool
	detach  func()
	session sessionSource

	observers observerList[CartObserver]
}

var _ inbound.Cart = (*CartSynchronizer)(nil)

// CartOption configures CartSynchronizer.
type CartOption func(*CartSynchronizer)

// WithOrdering sets the ordering policy. The default is OrderingSerial.
func WithOrdering(o Ordering) CartOption {
	return func(s *CartSynchronizer) {
		s.ordering = o
	}
}

// WithCartMetrics records operation outcomes, pending depth and item count.
func WithCartMetrics(m *metrics.Metrics) CartOption {
	return func(s *CartSynchronizer) {
		s.metrics = m
	}
}

// NewCartSynchronizer creates a synchronizer with an absent snapshot.
// In serial mode the worker starts on Start or on the first call.
func NewCartSynchronizer(gateway outbound.CartGateway, logger *slog.Logger, opts ...CartOption) *CartSynchronizer {
	s := &CartSynchronizer{
		gateway:  gateway,
		logger:   logger,
		ordering: OrderingSerial,
		jobs:     make(chan *cartJob),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ordering returns the configured ordering policy.
func (s *CartSynchronizer) Ordering() Ordering {
	return s.ordering
}

// Start launches the serial worker. It is a no-op in last-response-wins
// mode, after the first call, and after Close. Cancelling ctx closes the
// synchronizer.
func (s *CartSynchronizer) Start(ctx context.Context) {
	if s.ordering != OrderingSerial {
		return
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true
	s.wg.Add(1)
	go s.worker(ctx)
}

// Attach subscribes the synchronizer to sess so the snapshot follows the
// logged-in identity, and makes Refresh consult sess before any network
// call. Close detaches it.
func (s *CartSynchronizer) Attach(sess sessionSource) {
	unsubscribe := sess.Subscribe(s.OnSessionChange)
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.detach != nil {
		s.detach()
	}
	s.detach = unsubscribe
	s.session = sess
}

// authenticated reports whether the attached session has a user. An
// unattached synchronizer leaves the check to its caller.
func (s *CartSynchronizer) authenticated() bool {
	s.lifeMu.Lock()
	sess := s.session
	s.lifeMu.Unlock()
	return sess == nil || sess.IsAuthenticated()
}

// Close stops accepting calls, fails queued ones with ErrClosed, waits for
// the in-flight call to finish and detaches from the session.
func (s *CartSynchronizer) Close() {
	s.markClosed()
	s.wg.Wait()

	s.lifeMu.Lock()
	detach := s.detach
	s.detach = nil
	s.lifeMu.Unlock()
	if detach != nil {
		detach()
	}
}

func (s *CartSynchronizer) markClosed() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *CartSynchronizer) isClosed() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.closed
}

// worker executes queued calls one at a time.
func (s *CartSynchronizer) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case job := <-s.jobs:
			job.result <- s.execute(job.ctx, job.op, job.generation, job.call)
		case <-ctx.Done():
			s.markClosed()
			return
		case <-s.done:
			return
		}
	}
}

// OnSessionChange is the session observer. Any identity change discards the
// snapshot at once and invalidates every call still in flight; a change
// that ends authenticated then refreshes from the server.
func (s *CartSynchronizer) OnSessionChange(ctx context.Context, t session.Transition) {
	s.replace(func(_ *cart.Cart, gen uint64) (*cart.Cart, uint64, bool) {
		return nil, gen + 1, true
	})

	if !t.Authenticated() {
		s.logger.Debug("session ended, cart cleared")
		return
	}
	if err := s.Refresh(ctx); err != nil {
		switch {
		case errors.Is(err, ErrSessionChanged), errors.Is(err, ErrClosed):
			s.logger.Debug("cart refresh after login skipped", "error", err)
		default:
			s.logger.Warn("cart refresh after login failed", "user_id", t.Current.User.ID, "error", err)
		}
	}
}

// Refresh replaces the snapshot with the server's cart. On failure the
// snapshot becomes absent and the error is returned. With no user logged
// in the snapshot becomes absent without a network call.
func (s *CartSynchronizer) Refresh(ctx context.Context) error {
	if !s.authenticated() {
		s.replace(func(_ *cart.Cart, gen uint64) (*cart.Cart, uint64, bool) {
			return nil, gen, true
		})
		s.observe(opRefresh, "anonymous")
		return nil
	}
	return s.do(ctx, opRefresh, s.gateway.GetCart)
}

// AddToCart adds quantity units of itemID. quantity must be at least 1.
func (s *CartSynchronizer) AddToCart(ctx context.Context, itemID string, quantity int) error {
	if err := s.validate(opAdd, itemID, quantity); err != nil {
		return err
	}
	return s.do(ctx, opAdd, func(ctx context.Context) (*cart.Cart, error) {
		return s.gateway.AddItem(ctx, itemID, quantity)
	})
}

// UpdateCartItem sets the quantity of the line for itemID. quantity must be
// at least 1; use RemoveFromCart to drop a line.
func (s *CartSynchronizer) UpdateCartItem(ctx context.Context, itemID string, quantity int) error {
	if err := s.validate(opUpdate, itemID, quantity); err != nil {
		return err
	}
	return s.do(ctx, opUpdate, func(ctx context.Context) (*cart.Cart, error) {
		return s.gateway.UpdateItem(ctx, itemID, quantity)
	})
}

// RemoveFromCart drops the line for itemID.
func (s *CartSynchronizer) RemoveFromCart(ctx context.Context, itemID string) error {
	if err := cart.ValidateItemID(itemID); err != nil {
		s.observe(opRemove, "invalid")
		return err
	}
	return s.do(ctx, opRemove, func(ctx context.Context) (*cart.Cart, error) {
		return s.gateway.RemoveItem(ctx, itemID)
	})
}

// ClearCart empties the cart.
func (s *CartSynchronizer) ClearCart(ctx context.Context) error {
	return s.do(ctx, opClear, s.gateway.Clear)
}

// Snapshot returns a deep copy of the held cart, or nil when absent.
func (s *CartSynchronizer) Snapshot() *cart.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// ItemsCount returns the sum of quantities in the held cart, 0 when absent.
func (s *CartSynchronizer) ItemsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cart.ItemsCount(s.snapshot)
}

// Busy reports whether any call is queued or in flight. It is advisory;
// calls are never rejected because of it.
func (s *CartSynchronizer) Busy() bool {
	return s.pending.Load() > 0
}

// Subscribe registers fn for snapshot replacements and returns its remover.
func (s *CartSynchronizer) Subscribe(fn func(*cart.Cart)) func() {
	return s.observers.add(fn)
}

func (s *CartSynchronizer) validate(op, itemID string, quantity int) error {
	if err := cart.ValidateItemID(itemID); err != nil {
		s.observe(op, "invalid")
		return err
	}
	if err := cart.ValidateQuantity(quantity); err != nil {
		s.observe(op, "invalid")
		return err
	}
	return nil
}

// do runs call under the configured ordering policy.
func (s *CartSynchronizer) do(ctx context.Context, op string, call cartCall) error {
	if s.isClosed() {
		s.observe(op, "closed")
		return ErrClosed
	}

	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	s.addPending(1)

	if s.ordering != OrderingSerial {
		return s.execute(ctx, op, gen, call)
	}

	s.Start(context.Background())

	job := &cartJob{ctx: ctx, op: op, generation: gen, call: call, result: make(chan error, 1)}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		s.addPending(-1)
		s.observe(op, "error")
		return ctx.Err()
	case <-s.done:
		s.addPending(-1)
		s.observe(op, "closed")
		return ErrClosed
	}

	// A caller that stops waiting leaves the job to finish on the worker
	// with its cancelled context.
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute performs one call and applies its response if the session has
// not changed since submission. It always releases one pending slot.
func (s *CartSynchronizer) execute(ctx context.Context, op string, gen uint64, call cartCall) error {
	defer s.addPending(-1)

	if s.stale(gen) {
		s.observe(op, "stale")
		return ErrSessionChanged
	}

	c, err := call(ctx)

	var applyErr error
	s.replace(func(cur *cart.Cart, curGen uint64) (*cart.Cart, uint64, bool) {
		switch {
		case curGen != gen:
			applyErr = ErrSessionChanged
			return cur, curGen, false
		case err != nil && op == opRefresh:
			return nil, curGen, true
		case err != nil:
			return cur, curGen, false
		default:
			return c, curGen, true
		}
	})

	switch {
	case applyErr != nil:
		s.logger.Debug("discarded cart response from previous session", "op", op)
		s.observe(op, "stale")
		return applyErr
	case err != nil:
		s.logger.Debug("cart operation failed", "op", op, "error", err)
		s.observe(op, "error")
		return err
	}
	s.observe(op, "ok")
	return nil
}

func (s *CartSynchronizer) stale(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation != gen
}

// replace swaps the snapshot under lock using fn, then notifies observers
// if the value changed. fn may also advance the generation.
func (s *CartSynchronizer) replace(fn func(cur *cart.Cart, gen uint64) (*cart.Cart, uint64, bool)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	prev := s.snapshot
	next, gen, ok := fn(prev, s.generation)
	s.generation = gen
	if ok {
		s.snapshot = next
	}
	changed := ok && !cart.Equal(prev, next)
	out := s.snapshot.Clone()
	count := cart.ItemsCount(s.snapshot)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CartItems.Set(float64(count))
	}
	if !changed {
		return
	}
	for _, obs := range s.observers.snapshot() {
		obs(out.Clone())
	}
}

func (s *CartSynchronizer) addPending(delta int64) {
	n := s.pending.Add(delta)
	if s.metrics != nil {
		s.metrics.CartPending.Set(float64(n))
	}
}

func (s *CartSynchronizer) observe(op, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CartOperations.WithLabelValues(op, result).Inc()
}
