package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "initializing"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// SessionStatus is the part of the session manager the health check reads.
type SessionStatus interface {
	IsAuthenticated() bool
	Initializing() bool
}

// CartStatus is the part of the cart synchronizer the health check reads.
type CartStatus interface {
	Busy() bool
	ItemsCount() int
}

// HealthChecker reports client component state.
type HealthChecker struct {
	session SessionStatus
	cart    CartStatus
	version string
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't available.
func NewHealthChecker(session SessionStatus, cart CartStatus, version string) *HealthChecker {
	return &HealthChecker{
		session: session,
		cart:    cart,
		version: version,
	}
}

// Check reads the state of all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	status := "healthy"

	if h.session != nil {
		switch {
		case h.session.Initializing():
			checks["session"] = "initializing"
			status = "initializing"
		case h.session.IsAuthenticated():
			checks["session"] = "authenticated"
		default:
			checks["session"] = "anonymous"
		}
	} else {
		checks["session"] = "not configured"
	}

	if h.cart != nil {
		state := "idle"
		if h.cart.Busy() {
			state = "busy"
		}
		checks["cart"] = fmt.Sprintf("%s: %d items", state, h.cart.ItemsCount())
	} else {
		checks["cart"] = "not configured"
	}

	checks["goroutines"] = strconv.Itoa(runtime.NumGoroutine())

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
