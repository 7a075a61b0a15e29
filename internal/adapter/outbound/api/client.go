// Package api is the REST client for the remote storefront API. A single
// Client implements the auth, cart and catalog gateways.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/storefront-dev/storefront/internal/ctxkey"
	"github.com/storefront-dev/storefront/internal/metrics"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

const (
	// DefaultBaseURL is the public storefront backend.
	DefaultBaseURL = "https://ecommerce-backend-spdi.onrender.com/api"

	// DefaultTimeout bounds a single round-trip.
	DefaultTimeout = 30 * time.Second

	// maxResponseBodySize caps how much of a response body is read.
	maxResponseBodySize = 10 * 1024 * 1024 // 10MB

	tracerName = "github.com/storefront-dev/storefront/internal/adapter/outbound/api"
)

// Client talks to the storefront REST API.
type Client struct {
	baseURL        string
	userAgent      string
	timeout        time.Duration
	httpClient     *http.Client
	tokens         outbound.TokenSource
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

var (
	_ outbound.AuthGateway    = (*Client)(nil)
	_ outbound.CartGateway    = (*Client)(nil)
	_ outbound.CatalogGateway = (*Client)(nil)
)

// NewClient creates a storefront API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: "storefront-client",
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.tracerProvider == nil {
		c.tracerProvider = otel.GetTracerProvider()
	}
	c.tracer = c.tracerProvider.Tracer(tracerName)

	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// doRequest performs one JSON round-trip. route is the low-cardinality label
// used for spans and metrics; path is the concrete request path.
func (c *Client) doRequest(ctx context.Context, method, route, path string, body any, result any) (err error) {
	requestID, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := c.loggerFrom(ctx).With("request_id", requestID)

	ctx, span := c.tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.String("storefront.request_id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		c.observe(method+" "+route, status, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		logger.Debug("storefront api call",
			"method", method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"error", err,
		)
	}()

	url := strings.TrimRight(c.baseURL, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(ctx, logger); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, path, err)
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize+1))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(respBody) > maxResponseBodySize {
		return fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return newError(httpResp.StatusCode, method, path, requestID, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// token reads the bearer token. A failing token source downgrades the call
// to anonymous; the server then answers protected routes with 401.
func (c *Client) token(ctx context.Context, logger *slog.Logger) string {
	if c.tokens == nil {
		return ""
	}
	tok, err := c.tokens.Load(ctx)
	if err != nil {
		logger.Warn("failed to read credential token, sending request without it", "error", err)
		return ""
	}
	return tok
}

func (c *Client) loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return c.logger
}

func (c *Client) observe(route string, status int, d time.Duration) {
	if c.metrics == nil {
		return
	}
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	c.metrics.GatewayRequests.WithLabelValues(route, label).Inc()
	c.metrics.GatewayRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
