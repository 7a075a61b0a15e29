// Package catalog describes the read-only product reference data served by
// the storefront API.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// CategoryAll is the pseudo-category meaning "no category filter".
const CategoryAll = "all"

// Item is a product. The server owns it; the client only displays it and
// references it by ID.
type Item struct {
	ID          string    `json:"_id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Price       float64   `json:"price" yaml:"price"`
	Category    string    `json:"category" yaml:"category"`
	Image       string    `json:"image,omitempty" yaml:"image,omitempty"`
	Stock       int       `json:"stock" yaml:"stock"`
	Rating      float64   `json:"rating" yaml:"rating"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updated_at"`
}

// InStock reports whether at least one unit is available.
func (i Item) InStock() bool {
	return i.Stock > 0
}

// Pagination is the paging envelope of a listing response.
type Pagination struct {
	CurrentPage int  `json:"currentPage" yaml:"current_page"`
	TotalPages  int  `json:"totalPages" yaml:"total_pages"`
	TotalItems  int  `json:"totalItems" yaml:"total_items"`
	HasNext     bool `json:"hasNext" yaml:"has_next"`
	HasPrev     bool `json:"hasPrev" yaml:"has_prev"`
}

// Page is one page of a filtered item listing.
type Page struct {
	Items      []Item     `json:"items" yaml:"items"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
}

// Filter narrows an item listing. Zero values mean "unset".
type Filter struct {
	Category string  `validate:"omitempty,max=64"`
	MinPrice float64 `validate:"gte=0"`
	MaxPrice float64 `validate:"gte=0"`
	Search   string  `validate:"omitempty,max=256"`
	Page     int     `validate:"gte=0"`
	Limit    int     `validate:"gte=0,lte=100"`
}

// ErrInvalidFilter is returned by Validate for a filter the server would reject.
var ErrInvalidFilter = errors.New("invalid filter")

var filterValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the min/max price relation.
func (f Filter) Validate() error {
	if err := filterValidator.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s failed %s=%s", ErrInvalidFilter, strings.ToLower(e.Field()), e.Tag(), e.Param())
		}
		return fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if f.MinPrice > 0 && f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return fmt.Errorf("%w: min price %.2f exceeds max price %.2f", ErrInvalidFilter, f.MinPrice, f.MaxPrice)
	}
	return nil
}

// Normalize drops the fields the listing endpoint treats as unset: the "all"
// category, blank search, and zero prices or paging values.
func (f Filter) Normalize() Filter {
	f.Category = strings.TrimSpace(f.Category)
	if strings.EqualFold(f.Category, CategoryAll) {
		f.Category = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Query encodes the normalized filter as listing query parameters.
// url.Values encodes in key order, so equal filters yield equal query strings.
func (f Filter) Query() url.Values {
	f = f.Normalize()
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.MinPrice > 0 {
		q.Set("minPrice", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		q.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}
