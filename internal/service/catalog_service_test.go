package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/storefront-dev/storefront/internal/adapter/outbound/cel"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/metrics"
)

func testCatalogItems() []catalog.Item {
	return []catalog.Item{
		{ID: "mug", Name: "Ceramic Mug", Category: "kitchen", Price: 8.5, Stock: 40},
		{ID: "kettle", Name: "Electric Kettle", Category: "kitchen", Price: 39.99, Stock: 0},
		{ID: "lamp", Name: "Desk Lamp", Category: "home", Price: 24, Stock: 3},
	}
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCatalog(gw *mockCatalogGateway, opts ...CatalogOption) (*CatalogService, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewCatalogService(gw, testLogger(), opts...)
	s.now = clock.Now
	return s, clock
}

func TestCatalogService_ListItems_CachesWithinTTL(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	s, clock := newTestCatalog(gw, WithCacheTTL(30*time.Second), WithCatalogMetrics(m))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		page, err := s.ListItems(ctx, catalog.Filter{Category: "kitchen"})
		if err != nil {
			t.Fatalf("ListItems() error: %v", err)
		}
		if len(page.Items) != 2 {
			t.Fatalf("expected 2 kitchen items, got %d", len(page.Items))
		}
	}
	if n := gw.ListCalls(); n != 1 {
		t.Errorf("expected 1 gateway call within TTL, got %d", n)
	}
	if v := testutil.ToFloat64(m.CatalogCacheHits); v != 2 {
		t.Errorf("cache hits = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.CatalogCacheMisses); v != 1 {
		t.Errorf("cache misses = %v, want 1", v)
	}

	clock.Advance(31 * time.Second)
	if _, err := s.ListItems(ctx, catalog.Filter{Category: "kitchen"}); err != nil {
		t.Fatal(err)
	}
	if n := gw.ListCalls(); n != 2 {
		t.Errorf("expected refetch after TTL, got %d calls", n)
	}
}

func TestCatalogService_ListItems_NormalizedFiltersShareEntry(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)
	ctx := context.Background()

	for _, f := range []catalog.Filter{{}, {Category: "all"}, {Category: " All ", Search: "  "}} {
		if _, err := s.ListItems(ctx, f); err != nil {
			t.Fatalf("ListItems(%+v) error: %v", f, err)
		}
	}
	if n := gw.ListCalls(); n != 1 {
		t.Errorf("equivalent filters should share one cache entry, got %d calls", n)
	}
}

func TestCatalogService_ListItems_TTLZeroDisablesCache(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw, WithCacheTTL(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.ListItems(ctx, catalog.Filter{}); err != nil {
			t.Fatal(err)
		}
	}
	if n := gw.ListCalls(); n != 3 {
		t.Errorf("expected 3 gateway calls without cache, got %d", n)
	}
}

func TestCatalogService_ListItems_InvalidFilter(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)

	_, err := s.ListItems(context.Background(), catalog.Filter{MinPrice: 50, MaxPrice: 10})
	if !errors.Is(err, catalog.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if gw.ListCalls() != 0 {
		t.Error("invalid filter reached the gateway")
	}
}

func TestCatalogService_ListItems_ReturnsCopies(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)
	ctx := context.Background()

	page, err := s.ListItems(ctx, catalog.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	page.Items[0].Name = "tampered"

	again, err := s.ListItems(ctx, catalog.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Items[0].Name == "tampered" {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestCatalogService_Eviction(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, clock := newTestCatalog(gw, WithCacheMaxSize(2))
	ctx := context.Background()

	for _, cat := range []string{"kitchen", "home", "garden"} {
		if _, err := s.ListItems(ctx, catalog.Filter{Category: cat}); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}
	if n := len(s.cache); n != 2 {
		t.Fatalf("cache size = %d, want 2", n)
	}

	// "kitchen" was oldest and evicted; "home" is still cached.
	if _, err := s.ListItems(ctx, catalog.Filter{Category: "home"}); err != nil {
		t.Fatal(err)
	}
	if n := gw.ListCalls(); n != 3 {
		t.Errorf("home should be a cache hit, got %d calls", n)
	}
	if _, err := s.ListItems(ctx, catalog.Filter{Category: "kitchen"}); err != nil {
		t.Fatal(err)
	}
	if n := gw.ListCalls(); n != 4 {
		t.Errorf("kitchen should have been evicted, got %d calls", n)
	}
}

func TestCatalogService_ConcurrentMissesShareOneCall(t *testing.T) {
	gate, entered := make(chan struct{}), make(chan struct{})
	gw := &mockCatalogGateway{items: testCatalogItems(), gate: gate, entered: entered}
	s, _ := newTestCatalog(gw)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	run := func() {
		defer wg.Done()
		if _, err := s.ListItems(ctx, catalog.Filter{}); err != nil {
			errs <- err
		}
	}

	wg.Add(1)
	go run()
	<-entered
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run()
	}
	// Give the followers time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("ListItems() error: %v", err)
	}
	if n := gw.ListCalls(); n != 1 {
		t.Errorf("expected 1 gateway call for concurrent misses, got %d", n)
	}
}

func TestCatalogService_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	gate, entered := make(chan struct{}), make(chan struct{})
	gw := &mockCatalogGateway{items: testCatalogItems(), gate: gate, entered: entered}
	s, _ := newTestCatalog(gw)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := s.ListItems(leaderCtx, catalog.Filter{})
		leaderErr <- err
	}()
	<-entered

	type result struct {
		page *catalog.Page
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		page, err := s.ListItems(context.Background(), catalog.Filter{})
		follower <- result{page, err}
	}()
	// Give the follower time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	close(gate)

	res := <-follower
	if res.err != nil {
		t.Fatalf("follower error = %v, want the shared page", res.err)
	}
	if len(res.page.Items) != 3 {
		t.Errorf("follower got %d items, want 3", len(res.page.Items))
	}
	if n := gw.ListCalls(); n != 1 {
		t.Errorf("expected 1 gateway call, got %d", n)
	}
}

func TestCatalogService_Invalidate(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)
	ctx := context.Background()

	if _, err := s.ListItems(ctx, catalog.Filter{}); err != nil {
		t.Fatal(err)
	}
	s.Invalidate()
	if _, err := s.ListItems(ctx, catalog.Filter{}); err != nil {
		t.Fatal(err)
	}
	if n := gw.ListCalls(); n != 2 {
		t.Errorf("expected refetch after Invalidate, got %d calls", n)
	}
}

func TestCatalogService_GetItem(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)

	item, err := s.GetItem(context.Background(), "lamp")
	if err != nil {
		t.Fatalf("GetItem() error: %v", err)
	}
	if item.Name != "Desk Lamp" {
		t.Errorf("GetItem().Name = %q", item.Name)
	}
}

func TestCatalogService_Search(t *testing.T) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw, WithItemFilter(eval))
	ctx := context.Background()

	page, err := s.Search(ctx, catalog.Filter{Category: "kitchen"}, `in_stock && price < 20.0`)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "mug" {
		t.Errorf("Search() items = %+v, want only mug", page.Items)
	}
	if page.Pagination.TotalItems != 2 {
		t.Errorf("pagination should describe the unfiltered page, got %+v", page.Pagination)
	}

	// The filtered result must not poison the cache.
	full, err := s.ListItems(ctx, catalog.Filter{Category: "kitchen"})
	if err != nil {
		t.Fatal(err)
	}
	if len(full.Items) != 2 {
		t.Errorf("cached page was modified by Search: %d items", len(full.Items))
	}
}

func TestCatalogService_Search_InvalidExpression(t *testing.T) {
	eval, err := cel.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw, WithItemFilter(eval))

	_, err = s.Search(context.Background(), catalog.Filter{}, `price >`)
	if !errors.Is(err, cel.ErrInvalidExpression) {
		t.Fatalf("expected ErrInvalidExpression, got %v", err)
	}
	if gw.ListCalls() != 0 {
		t.Error("invalid expression reached the gateway")
	}
}

func TestCatalogService_Search_WithoutFilterEngine(t *testing.T) {
	gw := &mockCatalogGateway{items: testCatalogItems()}
	s, _ := newTestCatalog(gw)

	if _, err := s.Search(context.Background(), catalog.Filter{}, `in_stock`); err == nil {
		t.Fatal("expected error when no filter engine is configured")
	}
	page, err := s.Search(context.Background(), catalog.Filter{}, "")
	if err != nil {
		t.Fatalf("empty expression should list: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(page.Items))
	}
}
