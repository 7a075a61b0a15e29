package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	if m.GatewayRequests == nil {
		t.Error("GatewayRequests not initialized")
	}
	if m.GatewayRequestDuration == nil {
		t.Error("GatewayRequestDuration not initialized")
	}
	if m.CartOperations == nil {
		t.Error("CartOperations not initialized")
	}
	if m.CartPending == nil || m.CartItems == nil {
		t.Error("cart gauges not initialized")
	}
	if m.SessionAuthenticated == nil {
		t.Error("SessionAuthenticated not initialized")
	}
	if m.CatalogCacheHits == nil || m.CatalogCacheMisses == nil {
		t.Error("catalog cache counters not initialized")
	}
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.CartOperations.WithLabelValues("add", "ok").Inc()
	if got := testutil.ToFloat64(m.CartOperations.WithLabelValues("add", "ok")); got != 1 {
		t.Errorf("CartOperations = %v, want 1", got)
	}

	m.CartItems.Set(5)
	if got := testutil.ToFloat64(m.CartItems); got != 5 {
		t.Errorf("CartItems = %v, want 5", got)
	}

	m.GatewayRequestDuration.WithLabelValues("GET /cart").Observe(0.1)
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "gateway_request_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("gateway_request_duration histogram not found in gathered metrics")
	}
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering metrics twice on one registry should panic")
		}
	}()
	NewMetrics(reg)
}
