package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/storefront-dev/storefront/internal/domain/catalog"
)

var (
	listFilter catalog.Filter
	listWhere  string
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse the product catalog",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items",
	Long: `List one page of the catalog. Browsing does not require a login.

--where narrows the fetched page with a boolean expression over the item
fields name, description, category, price, stock, rating and in_stock, plus
glob(pattern, s). Paging still describes the unfiltered page.

Examples:
  storefront items list --category electronics --max-price 100
  storefront items list --where 'in_stock && rating >= 4.5'
  storefront items list --where 'glob("*Lamp*", name)'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		page, err := c.Catalog.Search(cmd.Context(), listFilter, listWhere)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), page, func(w io.Writer) error {
			return writePage(w, page)
		})
	},
}

var itemsGetCmd = &cobra.Command{
	Use:   "get <item-id>",
	Short: "Show one item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		item, err := c.Catalog.GetItem(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), item, func(w io.Writer) error {
			return writeItem(w, item)
		})
	},
}

func init() {
	f := itemsListCmd.Flags()
	f.StringVar(&listFilter.Category, "category", "", `category name ("all" for every category)`)
	f.Float64Var(&listFilter.MinPrice, "min-price", 0, "minimum price")
	f.Float64Var(&listFilter.MaxPrice, "max-price", 0, "maximum price")
	f.StringVar(&listFilter.Search, "search", "", "free-text search")
	f.IntVar(&listFilter.Page, "page", 0, "page number (1-based)")
	f.IntVar(&listFilter.Limit, "limit", 0, "items per page")
	f.StringVar(&listWhere, "where", "", "client-side item predicate")

	itemsCmd.AddCommand(itemsListCmd, itemsGetCmd)
	rootCmd.AddCommand(itemsCmd)
}
