package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/storefront-dev/storefront/internal/domain/cart"
)

type lineRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// cartEnvelope is the body of every cart mutation response.
type cartEnvelope struct {
	Message string     `json:"message,omitempty"`
	Cart    *cart.Cart `json:"cart"`
}

// GetCart calls GET /cart. The body is the bare cart.
func (c *Client) GetCart(ctx context.Context) (*cart.Cart, error) {
	var out cart.Cart
	if err := c.doRequest(ctx, http.MethodGet, "/cart", "/cart", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddItem calls POST /cart/add.
func (c *Client) AddItem(ctx context.Context, itemID string, quantity int) (*cart.Cart, error) {
	return c.mutate(ctx, http.MethodPost, "/cart/add", "/cart/add", lineRequest{ItemID: itemID, Quantity: quantity})
}

// UpdateItem calls PUT /cart/update.
func (c *Client) UpdateItem(ctx context.Context, itemID string, quantity int) (*cart.Cart, error) {
	return c.mutate(ctx, http.MethodPut, "/cart/update", "/cart/update", lineRequest{ItemID: itemID, Quantity: quantity})
}

// RemoveItem calls DELETE /cart/remove/{itemId}.
func (c *Client) RemoveItem(ctx context.Context, itemID string) (*cart.Cart, error) {
	return c.mutate(ctx, http.MethodDelete, "/cart/remove/{itemId}", "/cart/remove/"+url.PathEscape(itemID), nil)
}

// Clear calls DELETE /cart/clear.
func (c *Client) Clear(ctx context.Context) (*cart.Cart, error) {
	return c.mutate(ctx, http.MethodDelete, "/cart/clear", "/cart/clear", nil)
}

func (c *Client) mutate(ctx context.Context, method, route, path string, body any) (*cart.Cart, error) {
	var env cartEnvelope
	if err := c.doRequest(ctx, method, route, path, body, &env); err != nil {
		return nil, err
	}
	if env.Cart == nil {
		return nil, fmt.Errorf("%s %s: %w: missing cart", method, path, ErrMalformedResponse)
	}
	return env.Cart, nil
}
