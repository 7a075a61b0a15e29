package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// ---------------------------------------------------------------------------
// Auth gateway
// ---------------------------------------------------------------------------

// mockAuthGateway implements outbound.AuthGateway with canned answers.
type mockAuthGateway struct {
	mu sync.Mutex

	loginResp    *session.AuthResponse
	loginErr     error
	registerResp *session.AuthResponse
	registerErr  error
	profile      *session.User
	profileErr   error

	// profileGate, when set, blocks Profile until closed.
	profileGate    chan struct{}
	profileEntered chan struct{}

	profileCalls int
	loginCalls   int
}

func (m *mockAuthGateway) Register(_ context.Context, _, _, _ string) (*session.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	r := *m.registerResp
	return &r, nil
}

func (m *mockAuthGateway) Login(_ context.Context, _, _ string) (*session.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginCalls++
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	r := *m.loginResp
	return &r, nil
}

func (m *mockAuthGateway) Profile(_ context.Context) (*session.User, error) {
	m.mu.Lock()
	m.profileCalls++
	gate, entered := m.profileGate, m.profileEntered
	m.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profileErr != nil {
		return nil, m.profileErr
	}
	u := *m.profile
	return &u, nil
}

func (m *mockAuthGateway) ProfileCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileCalls
}

// ---------------------------------------------------------------------------
// Token store
// ---------------------------------------------------------------------------

// mockTokenStore is a TokenStore whose operations can be made to fail.
type mockTokenStore struct {
	mu        sync.Mutex
	token     string
	loadErr   error
	saveErr   error
	deleteErr error
	deletes   int
}

func (m *mockTokenStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.loadErr
}

func (m *mockTokenStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token = token
	return nil
}

func (m *mockTokenStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.token = ""
	return nil
}

func (m *mockTokenStore) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// ---------------------------------------------------------------------------
// Cart gateway
// ---------------------------------------------------------------------------

// cartReply is one scripted answer of mockCartGateway.
type cartReply struct {
	cart *cart.Cart
	err  error
	// gate, when set, holds the reply until closed.
	gate chan struct{}
	// entered, when set, is closed as the call starts.
	entered chan struct{}
}

// mockCartGateway answers calls from a FIFO script regardless of operation.
type mockCartGateway struct {
	mu      sync.Mutex
	replies []cartReply
	calls   []string
}

func (m *mockCartGateway) script(replies ...cartReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

func (m *mockCartGateway) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockCartGateway) next(ctx context.Context, call string) (*cart.Cart, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	if len(m.replies) == 0 {
		m.mu.Unlock()
		return nil, errors.New("unexpected call: " + call)
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	m.mu.Unlock()

	if r.entered != nil {
		close(r.entered)
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.cart.Clone(), r.err
}

func (m *mockCartGateway) GetCart(ctx context.Context) (*cart.Cart, error) {
	return m.next(ctx, "get")
}

func (m *mockCartGateway) AddItem(ctx context.Context, itemID string, _ int) (*cart.Cart, error) {
	return m.next(ctx, "add:"+itemID)
}

func (m *mockCartGateway) UpdateItem(ctx context.Context, itemID string, _ int) (*cart.Cart, error) {
	return m.next(ctx, "update:"+itemID)
}

func (m *mockCartGateway) RemoveItem(ctx context.Context, itemID string) (*cart.Cart, error) {
	return m.next(ctx, "remove:"+itemID)
}

func (m *mockCartGateway) Clear(ctx context.Context) (*cart.Cart, error) {
	return m.next(ctx, "clear")
}

// makeCart builds a cart whose lines hold the given item ids and quantities.
func makeCart(id string, lines ...any) *cart.Cart {
	c := &cart.Cart{ID: id, User: "u1", Items: []cart.Line{}}
	for i := 0; i+1 < len(lines); i += 2 {
		itemID := lines[i].(string)
		qty := lines[i+1].(int)
		c.Items = append(c.Items, cart.Line{
			ID:       "line-" + itemID,
			Item:     catalog.Item{ID: itemID, Name: itemID, Price: 1},
			Quantity: qty,
		})
		c.TotalAmount += float64(qty)
	}
	return c
}

// ---------------------------------------------------------------------------
// Catalog gateway
// ---------------------------------------------------------------------------

// mockCatalogGateway serves a fixed item list.
type mockCatalogGateway struct {
	mu        sync.Mutex
	items     []catalog.Item
	listCalls int
	getCalls  int
	// gate, when set, blocks ListItems until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (m *mockCatalogGateway) ListItems(_ context.Context, f catalog.Filter) (*catalog.Page, error) {
	m.mu.Lock()
	m.listCalls++
	gate, entered := m.gate, m.entered
	m.entered = nil
	items := make([]catalog.Item, 0, len(m.items))
	for _, it := range m.items {
		if f.Category == "" || it.Category == f.Category {
			items = append(items, it)
		}
	}
	m.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	return &catalog.Page{
		Items:      items,
		Pagination: catalog.Pagination{CurrentPage: 1, TotalPages: 1, TotalItems: len(items)},
	}, nil
}

func (m *mockCatalogGateway) GetItem(_ context.Context, id string) (*catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, it := range m.items {
		if it.ID == id {
			out := it
			return &out, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockCatalogGateway) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}
