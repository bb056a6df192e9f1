package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kdd_gateway", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kdd_gateway", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	TenantLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kdd_gateway", Name: "tenant_lookups_total", Help: "Number of tenant domain lookups by outcome (cache|lookup|error)."},
		[]string{"outcome"},
	)
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kdd_gateway", Name: "token_refreshes_total", Help: "Number of access-token refresh attempts by outcome (ok|failed)."},
		[]string{"outcome"},
	)
	ProxiedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "kdd_gateway", Name: "proxied_requests_total", Help: "Number of requests forwarded to the backend API by method and status class."},
		[]string{"method", "status"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(TenantLookups)
	reg.MustRegister(TokenRefreshes)
	reg.MustRegister(ProxiedRequests)
}
