// Package cmd provides the CLI commands for the storefront client.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/storefront-dev/storefront/internal/app"
	"github.com/storefront-dev/storefront/internal/config"
	"github.com/storefront-dev/storefront/internal/ctxkey"
	"github.com/storefront-dev/storefront/internal/port/inbound"
)

// ErrNotLoggedIn is returned by cart commands run without a session.
var ErrNotLoggedIn = errors.New("not logged in: run 'storefront login' first")

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Storefront - command-line shop client",
	Long: `Storefront is a command-line client for the storefront REST API.

It keeps you logged in between runs, shows the product catalog and manages
your server-side shopping cart.

Quick start:
  1. storefront register --name Ada --email ada@example.com --password ...
  2. storefront items list --category electronics
  3. storefront cart add <item-id> --quantity 2

Configuration:
  Config is loaded from storefront.yaml in the current directory,
  $HOME/.storefront/, or /etc/storefront/.

  Environment variables can override config values with the STOREFRONT_ prefix.
  Example: STOREFRONT_API_BASE_URL=http://localhost:5000/api`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./storefront.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// client is a started App plus the process-level telemetry it owns.
type client struct {
	*app.App
	registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
}

// Close stops the app and flushes spans.
func (c *client) Close() {
	if err := c.App.Close(); err != nil {
		c.Logger.Warn("shutdown failed", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownTracer(ctx, c.tracer); err != nil {
		c.Logger.Warn("failed to flush spans", "error", err)
	}
}

// loadConfig reads configuration and applies CLI overrides before validation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger on stderr.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.EffectiveLogLevel())}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// startClient loads config, builds the App and restores the saved session.
func startClient(cmd *cobra.Command) (*client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	if f := config.ConfigFileUsed(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	c := &client{registry: prometheus.NewRegistry()}
	var opts []app.Option
	if cfg.Telemetry.Trace {
		tp, err := app.NewTracerProvider(cmd.ErrOrStderr(), Version)
		if err != nil {
			return nil, err
		}
		c.tracer = tp
		opts = append(opts, app.WithTracerProvider(tp))
	}

	a, err := app.New(cmd.Context(), cfg, logger, c.registry, opts...)
	if err != nil {
		_ = app.ShutdownTracer(context.Background(), c.tracer)
		return nil, err
	}
	c.App = a

	// API calls made for this command log with its name.
	cmd.SetContext(context.WithValue(cmd.Context(), ctxkey.LoggerKey{}, logger.With("command", cmd.CommandPath())))
	a.Start(cmd.Context())
	return c, nil
}

// requireLogin rejects cart access for anonymous sessions before the core is invoked.
func requireLogin(s inbound.Session) error {
	if !s.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	return nil
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
