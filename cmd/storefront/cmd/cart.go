package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

var addQuantity int

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show and change your cart",
	Long: `Show and change the server-side cart of the logged-in user.

Every change returns the complete cart as the server now holds it.

Examples:
  storefront cart show
  storefront cart add item-123 --quantity 2
  storefront cart update item-123 5
  storefront cart remove item-123
  storefront cart clear`,
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cart",
	Args:  cobra.NoArgs,
	RunE: withCart(func(*cobra.Command, *client, []string) error {
		return nil
	}),
}

var cartAddCmd = &cobra.Command{
	Use:   "add <item-id>",
	Short: "Add an item",
	Args:  cobra.ExactArgs(1),
	RunE: withCart(func(cmd *cobra.Command, c *client, args []string) error {
		return c.Cart.AddToCart(cmd.Context(), args[0], addQuantity)
	}),
}

var cartUpdateCmd = &cobra.Command{
	Use:   "update <item-id> <quantity>",
	Short: "Set the quantity of an item",
	Args:  cobra.ExactArgs(2),
	RunE: withCart(func(cmd *cobra.Command, c *client, args []string) error {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity %q is not a number", args[1])
		}
		return c.Cart.UpdateCartItem(cmd.Context(), args[0], qty)
	}),
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove <item-id>",
	Short: "Remove an item",
	Args:  cobra.ExactArgs(1),
	RunE: withCart(func(cmd *cobra.Command, c *client, args []string) error {
		return c.Cart.RemoveFromCart(cmd.Context(), args[0])
	}),
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every item",
	Args:  cobra.NoArgs,
	RunE: withCart(func(cmd *cobra.Command, c *client, _ []string) error {
		return c.Cart.ClearCart(cmd.Context())
	}),
}

var cartCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the total item quantity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireLogin(c.Session); err != nil {
			return err
		}

		n := c.Cart.ItemsCount()
		return render(cmd.OutOrStdout(), map[string]int{"items_count": n}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, n)
			return err
		})
	},
}

// withCart starts a logged-in client, runs op and prints the resulting cart.
// The cart is loaded by the session restore, so op may be a no-op.
func withCart(op func(cmd *cobra.Command, c *client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := startClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := requireLogin(c.Session); err != nil {
			return err
		}

		if err := op(cmd, c, args); err != nil {
			return err
		}
		snap := c.Cart.Snapshot()
		if snap == nil {
			if err := c.Cart.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("load cart: %w", err)
			}
			snap = c.Cart.Snapshot()
		}
		return render(cmd.OutOrStdout(), snap, func(w io.Writer) error {
			return writeCart(w, snap)
		})
	}
}

func init() {
	cartAddCmd.Flags().IntVarP(&addQuantity, "quantity", "q", 1, "number of units to add")

	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartUpdateCmd, cartRemoveCmd, cartClearCmd, cartCountCmd)
	rootCmd.AddCommand(cartCmd)
}
