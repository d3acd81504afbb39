// Package metrics exposes prometheus instrumentation for the HTTP surface
// and the remote gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts handled requests by method, route, and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdesk_http_requests_total",
		Help: "HTTP requests processed, partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crewdesk_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Logins counts completed login flows by outcome.
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdesk_logins_total",
		Help: "OAuth login flows completed, by outcome.",
	}, []string{"outcome"})

	// TokenRefreshes counts access token refresh attempts.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewdesk_token_refreshes_total",
		Help: "Access token refresh attempts, by outcome.",
	}, []string{"outcome"})

	// CSRFRejections counts requests blocked by the CSRF guard.
	CSRFRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crewdesk_csrf_rejections_total",
		Help: "Requests rejected for a missing or mismatched CSRF token.",
	})

	// ActiveSessions tracks live sessions in the store.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crewdesk_active_sessions",
		Help: "Sessions currently held in the session store.",
	})
)

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
