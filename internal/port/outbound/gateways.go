// Package outbound defines the outbound port interfaces for reaching the
// remote storefront API.
package outbound

import (
	"context"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

// AuthGateway is the outbound port for the remote auth endpoints.
type AuthGateway interface {
	// Register creates an account and returns its credential token.
	Register(ctx context.Context, name, email, password string) (*session.AuthResponse, error)

	// Login exchanges credentials for a token.
	Login(ctx context.Context, email, password string) (*session.AuthResponse, error)

	// Profile returns the identity owning the currently attached token.
	Profile(ctx context.Context) (*session.User, error)
}

// CartGateway is the outbound port for the remote cart endpoints.
// Every method returns the complete cart as the server holds it after the call.
type CartGateway interface {
	GetCart(ctx context.Context) (*cart.Cart, error)
	AddItem(ctx context.Context, itemID string, quantity int) (*cart.Cart, error)
	UpdateItem(ctx context.Context, itemID string, quantity int) (*cart.Cart, error)
	RemoveItem(ctx context.Context, itemID string) (*cart.Cart, error)
	Clear(ctx context.Context) (*cart.Cart, error)
}

// CatalogGateway is the outbound port for the product listing endpoints.
type CatalogGateway interface {
	ListItems(ctx context.Context, filter catalog.Filter) (*catalog.Page, error)
	GetItem(ctx context.Context, id string) (*catalog.Item, error)
}

// TokenSource supplies the bearer token attached to outgoing requests.
// session.TokenStore satisfies it.
type TokenSource interface {
	Load(ctx context.Context) (string, error)
}

// ItemFilter narrows a page of catalog items with a client-side predicate.
type ItemFilter interface {
	// ValidateExpression reports whether expr compiles within the safety limits.
	ValidateExpression(expr string) error

	// Filter returns the items for which expr evaluates to true, in order.
	Filter(ctx context.Context, expr string, items []catalog.Item) ([]catalog.Item, error)
}
