package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	httpinbound "github.com/storefront-dev/storefront/internal/adapter/inbound/http"
	"github.com/storefront-dev/storefront/internal/domain/cart"
	"github.com/storefront-dev/storefront/internal/domain/catalog"
	"github.com/storefront-dev/storefront/internal/domain/session"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session",
	Long: `Start an interactive session that keeps the client running.

Cart changes are sent in the background, the way clicks in a storefront UI
are, so several can be in flight at once. Session and cart changes are
printed as they happen. Type "help" for commands.

When telemetry.metrics_addr is set, /metrics and /health are served there
for the lifetime of the shell.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

const shellHelp = `Commands:
  login <email> <password>            log in
  register <name> <email> <password>  create an account
  logout                              log out
  whoami                              show the user
  items [category]                    list items
  cart                                print the cart
  count                               print the item quantity
  add <item-id> [qty]                 add to cart (background)
  update <item-id> <qty>              set quantity (background)
  remove <item-id>                    remove from cart (background)
  clear                               empty the cart (background)
  refresh                             reload the cart (background)
  wait                                wait for background operations
  busy                                report whether operations are pending
  quit                                exit`

// syncWriter serializes writes from observers and background operations.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// shell dispatches input lines to the client.
type shell struct {
	c   *client
	out *syncWriter
	wg  sync.WaitGroup
}

func runShell(cmd *cobra.Command, _ []string) error {
	c, err := startClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sh := &shell{c: c, out: &syncWriter{w: cmd.OutOrStdout()}}

	unsubSession := c.Session.Subscribe(func(_ context.Context, t session.Transition) {
		if u := t.Current.User; u != nil {
			sh.out.printf("[session] logged in as %s <%s>\n", u.Name, u.Email)
		} else {
			sh.out.printf("[session] logged out\n")
		}
	})
	defer unsubSession()
	unsubCart := c.Cart.Subscribe(func(snap *cart.Cart) {
		if snap == nil {
			sh.out.printf("[cart] cleared\n")
			return
		}
		sh.out.printf("[cart] %d items, total %s\n", cart.ItemsCount(snap), money(snap.TotalAmount))
	})
	defer unsubCart()

	if addr := c.Config.Telemetry.MetricsAddr; addr != "" {
		srv := httpinbound.NewServer(c.registry,
			httpinbound.WithAddr(addr),
			httpinbound.WithHealthChecker(httpinbound.NewHealthChecker(c.Session, c.Cart, Version)),
			httpinbound.WithLogger(c.Logger),
		)
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Start(srvCtx); err != nil {
				c.Logger.Warn("metrics server failed", "addr", addr, "error", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	if u := c.Session.CurrentUser(); u != nil {
		sh.out.printf("Logged in as %s. Type \"help\" for commands.\n", u.Name)
	} else {
		sh.out.printf("Not logged in. Type \"help\" for commands.\n")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			sh.wg.Wait()
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			break
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			break
		}
		if err := sh.dispatch(ctx, fields[0], fields[1:]); err != nil {
			sh.out.printf("error: %v\n", err)
		}
	}
	sh.wg.Wait()
	return nil
}

// dispatch runs one command. Cart mutations return immediately and report
// failures when they finish.
func (sh *shell) dispatch(ctx context.Context, name string, args []string) error {
	c := sh.c
	switch name {
	case "help":
		sh.out.printf("%s\n", shellHelp)
		return nil

	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <email> <password>")
		}
		_, err := c.Session.Login(ctx, args[0], args[1])
		return err

	case "register":
		if len(args) != 3 {
			return errors.New("usage: register <name> <email> <password>")
		}
		_, err := c.Session.Register(ctx, args[0], args[1], args[2])
		return err

	case "logout":
		c.Session.Logout(ctx)
		return nil

	case "whoami":
		return writeUser(sh.out, c.Session.CurrentUser())

	case "items":
		var f catalog.Filter
		if len(args) > 0 {
			f.Category = args[0]
		}
		page, err := c.Catalog.ListItems(ctx, f)
		if err != nil {
			return err
		}
		return writePage(sh.out, page)

	case "cart":
		if err := requireLogin(c.Session); err != nil {
			return err
		}
		return writeCart(sh.out, c.Cart.Snapshot())

	case "count":
		if err := requireLogin(c.Session); err != nil {
			return err
		}
		sh.out.printf("%d\n", c.Cart.ItemsCount())
		return nil

	case "busy":
		sh.out.printf("%t\n", c.Cart.Busy())
		return nil

	case "wait":
		sh.wg.Wait()
		return nil

	case "add":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: add <item-id> [qty]")
		}
		qty := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q is not a number", args[1])
			}
			qty = n
		}
		return sh.background(ctx, name, func(ctx context.Context) error {
			return c.Cart.AddToCart(ctx, args[0], qty)
		})

	case "update":
		if len(args) != 2 {
			return errors.New("usage: update <item-id> <qty>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity %q is not a number", args[1])
		}
		return sh.background(ctx, name, func(ctx context.Context) error {
			return c.Cart.UpdateCartItem(ctx, args[0], qty)
		})

	case "remove":
		if len(args) != 1 {
			return errors.New("usage: remove <item-id>")
		}
		return sh.background(ctx, name, func(ctx context.Context) error {
			return c.Cart.RemoveFromCart(ctx, args[0])
		})

	case "clear":
		return sh.background(ctx, name, c.Cart.ClearCart)

	case "refresh":
		return sh.background(ctx, name, c.Cart.Refresh)

	default:
		return fmt.Errorf("unknown command %q (type \"help\")", name)
	}
}

// background runs a cart operation without blocking the prompt.
func (sh *shell) background(ctx context.Context, name string, op func(context.Context) error) error {
	if err := requireLogin(sh.c.Session); err != nil {
		return err
	}
	sh.wg.Add(1)
	go func() {
		defer sh.wg.Done()
		if err := op(ctx); err != nil {
			sh.out.printf("[%s] failed: %v\n", name, err)
		}
	}()
	return nil
}
