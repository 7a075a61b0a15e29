// Package inbound defines the inbound port interfaces for the storefront core.
// Inbound adapters (CLI commands, the interactive shell) call these interfaces.
package inbound

import (
	"context"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

// Session is the inbound port of the session manager.
type Session interface {
	Login(ctx context.Context, email, password string) (*session.AuthResponse, error)
	Register(ctx context.Context, name, email, password string) (*session.AuthResponse, error)
	Logout(ctx context.Context)
	CurrentUser() *session.User
	IsAuthenticated() bool
	Subscribe(fn func(context.Context, session.Transition)) (unsubscribe func())
}

// Cart is the inbound port of the cart synchronizer.
type Cart interface {
	Refresh(ctx context.Context) error
	AddToCart(ctx context.Context, itemID string, quantity int) error
	UpdateCartItem(ctx context.Context, itemID string, quantity int) error
	RemoveFromCart(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) error
	Snapshot() *cart.Cart
	ItemsCount() int
	Busy() bool
	Subscribe(fn func(*cart.Cart)) (unsubscribe func())
}

// Catalog is the inbound port of the catalog service.
type Catalog interface {
	ListItems(ctx context.Context, filter catalog.Filter) (*catalog.Page, error)
	GetItem(ctx context.Context, id string) (*catalog.Item, error)
	Search(ctx context.Context, filter catalog.Filter, expr string) (*catalog.Page, error)
}
