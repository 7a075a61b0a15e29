package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
)

// ListItems calls GET /items with the normalized filter as query parameters.
func (c *Client) ListItems(ctx context.Context, filter catalog.Filter) (*catalog.Page, error) {
	path := "/items"
	if q := filter.Query().Encode(); q != "" {
		path += "?" + q
	}
	var page catalog.Page
	if err := c.doRequest(ctx, http.MethodGet, "/items", path, nil, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []catalog.Item{}
	}
	return &page, nil
}

// GetItem calls GET /items/{id}. The body is the bare item.
func (c *Client) GetItem(ctx context.Context, id string) (*catalog.Item, error) {
	var item catalog.Item
	if err := c.doRequest(ctx, http.MethodGet, "/items/{id}", "/items/"+url.PathEscape(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
