// Package cart models the server-authoritative shopping cart snapshot.
package cart

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
)

var (
	// ErrInvalidQuantity is returned for a line quantity below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrInvalidItemID is returned for a blank item reference.
	ErrInvalidItemID = errors.New("item id is required")
)

// Line is one product entry of a cart.
type Line struct {
	// ID is the server-computed line identity.
	ID       string       `json:"_id" yaml:"id"`
	Item     catalog.Item `json:"item" yaml:"item"`
	Quantity int          `json:"quantity" yaml:"quantity"`
}

// Cart is a complete snapshot as returned by the server. The client never
// builds or patches one; it only replaces the snapshot it holds.
type Cart struct {
	ID    string `json:"_id" yaml:"id"`
	User  string `json:"user" yaml:"user"`
	Items []Line `json:"items" yaml:"items"`
	// TotalAmount is computed by the server and never recomputed locally.
	TotalAmount float64   `json:"totalAmount" yaml:"total_amount"`
	CreatedAt   time.Time `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"updated_at"`
}

// ItemsCount returns the sum of line quantities, or 0 for a nil cart.
func ItemsCount(c *Cart) int {
	if c == nil {
		return 0
	}
	n := 0
	for _, l := range c.Items {
		n += l.Quantity
	}
	return n
}

// Clone returns a deep copy of c. Clone of nil is nil.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Items != nil {
		out.Items = make([]Line, len(c.Items))
		copy(out.Items, c.Items)
	}
	return &out
}

// Line returns the line referencing itemID, if any.
func (c *Cart) Line(itemID string) (Line, bool) {
	if c == nil {
		return Line{}, false
	}
	for _, l := range c.Items {
		if l.Item.ID == itemID {
			return l, true
		}
	}
	return Line{}, false
}

// Equal reports whether two snapshots are equal by value. Two nil carts are equal.
func Equal(a, b *Cart) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.User != b.User || a.TotalAmount != b.TotalAmount ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) ||
		len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		la, lb := a.Items[i], b.Items[i]
		if la.ID != lb.ID || la.Quantity != lb.Quantity || !itemEqual(la.Item, lb.Item) {
			return false
		}
	}
	return true
}

func itemEqual(a, b catalog.Item) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Description == b.Description &&
		a.Price == b.Price && a.Category == b.Category && a.Image == b.Image &&
		a.Stock == b.Stock && a.Rating == b.Rating &&
		a.CreatedAt.Equal(b.CreatedAt) && a.UpdatedAt.Equal(b.UpdatedAt)
}

// ValidateQuantity rejects quantities below 1. Removal is a separate operation.
func ValidateQuantity(q int) error {
	if q < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, q)
	}
	return nil
}

// ValidateItemID rejects blank item references.
func ValidateItemID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidItemID
	}
	return nil
}
