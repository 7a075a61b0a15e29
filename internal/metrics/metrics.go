// Package metrics defines the Prometheus metrics of the storefront client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the storefront client.
// Pass to components that need to record metrics; a nil *Metrics disables recording.
type Metrics struct {
	GatewayRequests        *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec
	CartOperations         *prometheus.CounterVec
	CartPending            prometheus.Gauge
	CartItems              prometheus.Gauge
	SessionAuthenticated   prometheus.Gauge
	CatalogCacheHits       prometheus.Counter
	CatalogCacheMisses     prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		GatewayRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Name:      "gateway_requests_total",
				Help:      "Total number of requests sent to the storefront API",
			},
			[]string{"route", "status"}, // route=POST /cart/add, status=200/error
		),
		GatewayRequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "storefront",
				Name:      "gateway_request_duration_seconds",
				Help:      "Storefront API round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		CartOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Name:      "cart_operations_total",
				Help:      "Cart synchronizer operations by outcome",
			},
			[]string{"op", "result"}, // result=ok/error/stale/invalid
		),
		CartPending: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "storefront",
				Name:      "cart_pending_operations",
				Help:      "Cart operations queued or in flight",
			},
		),
		CartItems: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "storefront",
				Name:      "cart_items",
				Help:      "Sum of quantities in the held cart snapshot",
			},
		),
		SessionAuthenticated: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "storefront",
				Name:      "session_authenticated",
				Help:      "1 while a user is logged in, 0 otherwise",
			},
		),
		CatalogCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Name:      "catalog_cache_hits_total",
				Help:      "Item listings served from the local cache",
			},
		),
		CatalogCacheMisses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Name:      "catalog_cache_misses_total",
				Help:      "Item listings fetched from the API",
			},
		),
	}
}
