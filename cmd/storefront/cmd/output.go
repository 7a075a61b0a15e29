package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

// render writes v in the selected --output format. text is used for the
// human-readable form.
func render(w io.Writer, v any, text func(io.Writer) error) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return text(w)
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}
}

func writeUser(w io.Writer, u *session.User) error {
	if u == nil {
		_, err := fmt.Fprintln(w, "Not logged in.")
		return err
	}
	_, err := fmt.Fprintf(w, "%s <%s>\n  id: %s\n", u.Name, u.Email, u.ID)
	return err
}

func writeCart(w io.Writer, c *cart.Cart) error {
	if c == nil {
		_, err := fmt.Fprintln(w, "No cart loaded.")
		return err
	}
	if len(c.Items) == 0 {
		_, err := fmt.Fprintln(w, "Your cart is empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tNAME\tQTY\tPRICE")
	for _, l := range c.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", l.Item.ID, l.Item.Name, l.Quantity, money(l.Item.Price))
	}
	fmt.Fprintf(tw, "\t\t%d\t%s\n", cart.ItemsCount(c), money(c.TotalAmount))
	return tw.Flush()
}

func writePage(w io.Writer, p *catalog.Page) error {
	if len(p.Items) == 0 {
		_, err := fmt.Fprintln(w, "No items found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, it := range p.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", it.ID, it.Name, it.Category, money(it.Price), it.Stock)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	pg := p.Pagination
	_, err := fmt.Fprintf(w, "page %d of %d (%d items)\n", pg.CurrentPage, pg.TotalPages, pg.TotalItems)
	return err
}

func writeItem(w io.Writer, it *catalog.Item) error {
	_, err := fmt.Fprintf(w, "%s\n  id:       %s\n  category: %s\n  price:    %s\n  stock:    %d\n  rating:   %.1f\n  %s\n",
		it.Name, it.ID, it.Category, money(it.Price), it.Stock, it.Rating, it.Description)
	return err
}

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}
