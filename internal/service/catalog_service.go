package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/metrics"
	"github.com/storefront-dev/storefront/internal/port/inbound"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

// DefaultCatalogCacheTTL is how long a listing page is served from cache.
const DefaultCatalogCacheTTL = 30 * time.Second

// DefaultCatalogCacheSize bounds the number of cached listing pages.
const DefaultCatalogCacheSize = 500

// pageEntry is a cached listing page with expiry.
type pageEntry struct {
	page      *catalog.Page
	expiresAt time.Time
	createdAt time.Time
}

// CatalogService serves the read-only product listing. Listings are cached
// briefly and identical concurrent misses share one request.
type CatalogService struct {
	gateway outbound.CatalogGateway
	filter  outbound.ItemFilter
	logger  *slog.Logger
	metrics *metrics.Metrics

	cacheTTL     time.Duration
	cacheMaxSize int
	now          func() time.Time

	mu    sync.Mutex
	cache map[uint64]*pageEntry

	group singleflight.Group
}

var _ inbound.Catalog = (*CatalogService)(nil)

// CatalogOption configures CatalogService.
type CatalogOption func(*CatalogService)

// WithCacheTTL sets the listing cache TTL. Zero disables caching.
func WithCacheTTL(ttl time.Duration) CatalogOption {
	return func(s *CatalogService) {
		s.cacheTTL = ttl
	}
}

// WithCacheMaxSize bounds the number of cached pages.
func WithCacheMaxSize(n int) CatalogOption {
	return func(s *CatalogService) {
		s.cacheMaxSize = n
	}
}

// WithItemFilter sets the predicate engine used by Search.
func WithItemFilter(f outbound.ItemFilter) CatalogOption {
	return func(s *CatalogService) {
		s.filter = f
	}
}

// WithCatalogMetrics records cache hits and misses.
func WithCatalogMetrics(m *metrics.Metrics) CatalogOption {
	return func(s *CatalogService) {
		s.metrics = m
	}
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(gateway outbound.CatalogGateway, logger *slog.Logger, opts ...CatalogOption) *CatalogService {
	s := &CatalogService{
		gateway:      gateway,
		logger:       logger,
		cacheTTL:     DefaultCatalogCacheTTL,
		cacheMaxSize: DefaultCatalogCacheSize,
		now:          time.Now,
		cache:        make(map[uint64]*pageEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListItems returns one page of the filtered listing.
func (s *CatalogService) ListItems(ctx context.Context, filter catalog.Filter) (*catalog.Page, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()
	key := pageKey(filter)

	if page, ok := s.getFromCache(key); ok {
		s.countCache(true)
		return page, nil
	}
	s.countCache(false)

	// The shared call outlives any one caller's cancellation; the API
	// client's timeout still bounds it.
	ch := s.group.DoChan(strconv.FormatUint(key, 16), func() (any, error) {
		page, err := s.gateway.ListItems(context.WithoutCancel(ctx), filter)
		if err != nil {
			return nil, err
		}
		s.putInCache(key, page)
		return page, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("item listing shared with concurrent caller")
		}
		return clonePage(res.Val.(*catalog.Page)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetItem returns one item. Item detail is not cached.
func (s *CatalogService) GetItem(ctx context.Context, id string) (*catalog.Item, error) {
	return s.gateway.GetItem(ctx, id)
}

// Search lists one page and keeps the items matching expr. Pagination
// describes the unfiltered page.
func (s *CatalogService) Search(ctx context.Context, filter catalog.Filter, expr string) (*catalog.Page, error) {
	if expr == "" {
		return s.ListItems(ctx, filter)
	}
	if s.filter == nil {
		return nil, fmt.Errorf("item expressions are not enabled")
	}
	if err := s.filter.ValidateExpression(expr); err != nil {
		return nil, err
	}

	page, err := s.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.filter.Filter(ctx, expr, page.Items)
	if err != nil {
		return nil, err
	}
	page.Items = items
	return page, nil
}

// Invalidate drops every cached page.
func (s *CatalogService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
}

// pageKey hashes the normalized listing query.
func pageKey(f catalog.Filter) uint64 {
	return xxhash.Sum64String(f.Query().Encode())
}

func (s *CatalogService) getFromCache(key uint64) (*catalog.Page, bool) {
	if s.cacheTTL <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.cache, key)
		return nil, false
	}
	return clonePage(entry.page), true
}

// putInCache stores a page, evicting expired entries first and then the
// oldest one when the cache is full.
func (s *CatalogService) putInCache(key uint64, page *catalog.Page) {
	if s.cacheTTL <= 0 || s.cacheMaxSize <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.cache[key]; !exists && len(s.cache) >= s.cacheMaxSize {
		for k, e := range s.cache {
			if now.After(e.expiresAt) {
				delete(s.cache, k)
			}
		}
		if len(s.cache) >= s.cacheMaxSize {
			var oldestKey uint64
			var oldest time.Time
			for k, e := range s.cache {
				if oldest.IsZero() || e.createdAt.Before(oldest) {
					oldest = e.createdAt
					oldestKey = k
				}
			}
			delete(s.cache, oldestKey)
		}
	}

	s.cache[key] = &pageEntry{
		page:      clonePage(page),
		expiresAt: now.Add(s.cacheTTL),
		createdAt: now,
	}
}

func (s *CatalogService) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CatalogCacheHits.Inc()
	} else {
		s.metrics.CatalogCacheMisses.Inc()
	}
}

func clonePage(p *catalog.Page) *catalog.Page {
	out := *p
	out.Items = make([]catalog.Item, len(p.Items))
	copy(out.Items, p.Items)
	return &out
}
