package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/storefront-dev/storefront/internal/adapter/outbound/state"
	"github.com/storefront-dev/storefront/internal/apitest"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T, srv *apitest.Server, store, path string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		API:   config.APIConfig{BaseURL: srv.BaseURL(), Timeout: "5s"},
		Token: config.TokenConfig{Store: store, Path: path},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, opts ...Option) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, testLogger(), prometheus.NewRegistry(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	a.Start(context.Background())
	return a
}

func TestApp_SessionSurvivesRestart(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.AddUser("Alice", "alice@example.com", "secret1")
	path := filepath.Join(t.TempDir(), "session.json")
	cfg := testConfig(t, srv, config.TokenStoreFile, path)
	ctx := context.Background()

	first := startApp(t, cfg)
	if first.Session.IsAuthenticated() {
		t.Fatal("fresh install should start anonymous")
	}
	if first.Cart.Snapshot() != nil {
		t.Fatal("anonymous client should have no cart")
	}

	if _, err := first.Session.Login(ctx, "alice@example.com", "secret1"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if first.Cart.Snapshot() == nil {
		t.Fatal("login should load the cart")
	}
	if err := first.Cart.AddToCart(ctx, "item-mug", 2); err != nil {
		t.Fatalf("AddToCart() error: %v", err)
	}
	if got := first.Cart.ItemsCount(); got != 2 {
		t.Fatalf("ItemsCount() = %d, want 2", got)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	second := startApp(t, cfg)
	if u := second.Session.CurrentUser(); u == nil || u.Email != "alice@example.com" {
		t.Fatalf("restored user = %+v, want alice", u)
	}
	if second.Session.Initializing() {
		t.Error("Initializing() should be false after Start")
	}
	if got := second.Cart.ItemsCount(); got != 2 {
		t.Errorf("restored cart ItemsCount() = %d, want 2", got)
	}

	second.Session.Logout(ctx)
	if second.Cart.Snapshot() != nil {
		t.Error("logout should clear the cart")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("token file should be removed on logout, stat err = %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	third := startApp(t, cfg)
	defer third.Close()
	if third.Session.IsAuthenticated() {
		t.Error("client should start anonymous after logout")
	}
}

func TestApp_RejectedTokenIsDiscarded(t *testing.T) {
	srv := apitest.NewServer(t)
	path := filepath.Join(t.TempDir(), "session.json")
	if err := state.NewFileTokenStore(path, testLogger()).Save(context.Background(), "tok-expired"); err != nil {
		t.Fatal(err)
	}

	a := startApp(t, testConfig(t, srv, config.TokenStoreFile, path))
	defer a.Close()

	if a.Session.IsAuthenticated() {
		t.Fatal("rejected token must not authenticate")
	}
	if a.Session.Initializing() {
		t.Error("Initializing() should be false after a failed restore")
	}
	tok, err := a.Tokens.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "" {
		t.Errorf("rejected token should be deleted, still have %q", tok)
	}
	if n := srv.Hits(apitest.RouteGetCart); n != 0 {
		t.Errorf("no cart fetch expected for an anonymous client, got %d", n)
	}
}

func TestApp_SQLiteTokenStore(t *testing.T) {
	srv := apitest.NewServer(t)
	srv.AddUser("Bob", "bob@example.com", "hunter22")
	cfg := testConfig(t, srv, config.TokenStoreSQLite, filepath.Join(t.TempDir(), "session.db"))

	first := startApp(t, cfg)
	if _, err := first.Session.Login(context.Background(), "bob@example.com", "hunter22"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	second := startApp(t, cfg)
	defer second.Close()
	if u := second.Session.CurrentUser(); u == nil || u.Name != "Bob" {
		t.Errorf("restored user = %+v, want Bob", u)
	}
}

func TestApp_MetricsAndTracing(t *testing.T) {
	srv := apitest.NewServer(t)
	cfg := testConfig(t, srv, config.TokenStoreMemory, "")

	var spans bytes.Buffer
	tp, err := NewTracerProvider(&spans, "test")
	if err != nil {
		t.Fatalf("NewTracerProvider() error: %v", err)
	}

	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), cfg, testLogger(), reg, WithTracerProvider(tp))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	a.Start(context.Background())
	defer a.Close()

	if _, err := a.Catalog.ListItems(context.Background(), catalog.Filter{Category: "home"}); err != nil {
		t.Fatalf("ListItems() error: %v", err)
	}
	if _, err := a.Catalog.ListItems(context.Background(), catalog.Filter{Category: "home"}); err != nil {
		t.Fatalf("ListItems() error: %v", err)
	}
	if err := ShutdownTracer(context.Background(), tp); err != nil {
		t.Fatalf("ShutdownTracer() error: %v", err)
	}

	if n := srv.Hits(apitest.RouteListItems); n != 1 {
		t.Errorf("second listing should be cached, got %d hits", n)
	}
	if v := testutil.ToFloat64(a.Metrics.GatewayRequests.WithLabelValues("GET /items", "200")); v != 1 {
		t.Errorf("gateway_requests_total{GET /items,200} = %v, want 1", v)
	}
	if !strings.Contains(spans.String(), `"Name":"GET /items"`) {
		t.Errorf("exported spans should include GET /items, got:\n%s", spans.String())
	}
}

func TestApp_InvalidOrdering(t *testing.T) {
	srv := apitest.NewServer(t)
	cfg := testConfig(t, srv, config.TokenStoreMemory, "")
	cfg.Cart.Ordering = "parallel"

	if _, err := New(context.Background(), cfg, testLogger(), nil); err == nil {
		t.Fatal("New() should reject an unknown ordering")
	}
}
