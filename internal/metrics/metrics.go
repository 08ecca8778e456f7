// Package metrics holds the Prometheus collectors for authorization,
// session and HTTP activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthzDecisionsTotal counts guard decisions by outcome (granted/denied).
	AuthzDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostworks_authz_decisions_total",
			Help: "Authorization guard decisions",
		},
		[]string{"outcome"},
	)

	// TokenRefreshTotal counts refresh attempts by ledger result.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostworks_token_refresh_total",
			Help: "Refresh token rotations",
		},
		[]string{"result"},
	)

	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostworks_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"bucket"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostworks_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghostworks_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		AuthzDecisionsTotal,
		TokenRefreshTotal,
		RateLimitRejectedTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
