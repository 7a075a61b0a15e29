// Package http serves the diagnostic endpoints of a long-running storefront
// client (the interactive shell).
//
// # Usage
//
//	srv := http.NewServer(reg,
//	    http.WithAddr("127.0.0.1:9102"),
//	    http.WithHealthChecker(http.NewHealthChecker(sess, cart, version)),
//	    http.WithLogger(logger),
//	)
//	err := srv.Start(ctx) // blocks until ctx is done
//
// # Endpoints
//
//	GET /metrics - Prometheus exposition of the client registry
//	GET /health  - JSON summary of session and cart state
package http
