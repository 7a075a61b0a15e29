// Package app assembles the storefront client from configuration: token
// store, API client, session manager, cart synchronizer and catalog service.
// One App is one client; nothing here is package-level state.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/storefront/internal/adapter/outbound/api"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/cel"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/memory"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/sqlite"
	"github.com/storefront-dev/storefront/internal/adapter/outbound/state"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/domain/session"
	"github.com/storefront-dev/storefront/internal/metrics"
	"github.com/storefront-dev/storefront/internal/service"
)

// App holds the wired client components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Tokens  session.TokenStore
	Client  *api.Client
	Session *service.SessionManager
	Cart    *service.CartSynchronizer
	Catalog *service.CatalogService

	tracer  trace.TracerProvider
	closers []func() error
}

// Option customizes New.
type Option func(*App)

// WithTracerProvider sets the provider for API client spans.
// Defaults to the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *App) {
		a.tracer = tp
	}
}

// New builds an App from a validated config. Metrics register with reg;
// a nil reg uses a private registry.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, opts ...Option) (*App, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewMetrics(reg),
	}
	for _, opt := range opts {
		opt(a)
	}

	timeout, err := cfg.APITimeout()
	if err != nil {
		return nil, err
	}
	cacheTTL, err := cfg.CatalogCacheTTL()
	if err != nil {
		return nil, err
	}
	ordering, err := service.ParseOrdering(cfg.Cart.Ordering)
	if err != nil {
		return nil, err
	}

	tokens, closeTokens, err := openTokenStore(ctx, cfg.Token, logger)
	if err != nil {
		return nil, err
	}
	a.Tokens = tokens
	if closeTokens != nil {
		a.closers = append(a.closers, closeTokens)
	}

	clientOpts := []api.Option{
		api.WithBaseURL(cfg.API.BaseURL),
		api.WithTimeout(timeout),
		api.WithUserAgent(cfg.API.UserAgent),
		api.WithTokenSource(tokens),
		api.WithLogger(logger),
		api.WithMetrics(a.Metrics),
	}
	if a.tracer != nil {
		clientOpts = append(clientOpts, api.WithTracerProvider(a.tracer))
	}
	a.Client = api.NewClient(clientOpts...)
	a.closers = append(a.closers, func() error {
		a.Client.CloseIdleConnections()
		return nil
	})

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("item filter: %w", err)
	}

	a.Session = service.NewSessionManager(a.Client, tokens, logger,
		service.WithSessionMetrics(a.Metrics))
	a.Cart = service.NewCartSynchronizer(a.Client, logger,
		service.WithOrdering(ordering),
		service.WithCartMetrics(a.Metrics))
	a.Catalog = service.NewCatalogService(a.Client, logger,
		service.WithCacheTTL(cacheTTL),
		service.WithCacheMaxSize(cfg.Catalog.CacheMaxSize),
		service.WithItemFilter(evaluator),
		service.WithCatalogMetrics(a.Metrics))

	return a, nil
}

// Start runs the cart worker, subscribes the cart to session transitions and
// restores the persisted session. Start returns once initialization is done;
// a stored token that the server rejects leaves the client anonymous.
func (a *App) Start(ctx context.Context) {
	a.Cart.Start(ctx)
	a.Cart.Attach(a.Session)
	a.Session.Initialize(ctx)
	a.Logger.Debug("storefront client started",
		"authenticated", a.Session.IsAuthenticated(),
		"ordering", a.Cart.Ordering(),
	)
}

// Close stops the cart worker and releases the token store, in reverse
// order of construction.
func (a *App) Close() error {
	if a.Cart != nil {
		a.Cart.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openTokenStore builds the configured TokenStore. The returned close func
// is nil when the store holds no resources.
func openTokenStore(ctx context.Context, cfg config.TokenConfig, logger *slog.Logger) (session.TokenStore, func() error, error) {
	switch cfg.Store {
	case config.TokenStoreFile, "":
		return state.NewFileTokenStore(cfg.Path, logger), nil, nil
	case config.TokenStoreSQLite:
		s, err := sqlite.NewTokenStore(ctx, cfg.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open token database: %w", err)
		}
		return s, s.Close, nil
	case config.TokenStoreMemory:
		return memory.NewTokenStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store %q", cfg.Store)
	}
}
