package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotes_issued_total",
		Help: "Total number of quotes issued with inventory reserved",
	})

	QuotesRedeemedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quotes_redeemed_total",
		Help: "Total number of quotes redeemed into provider transactions",
	})

	QuotesReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotes_released_total",
		Help: "Total number of quote reservations released back to stock",
	}, []string{"reason"})

	QuotesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotes_rejected_total",
		Help: "Total number of rejected quote operations",
	}, []string{"stage", "code"})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_reserve_latency_seconds",
		Help:    "Latency of the atomic reserve-and-insert transaction",
		Buckets: prometheus.DefBuckets,
	})

	SweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_sweep_latency_seconds",
		Help:    "Latency of expiry sweep passes",
		Buckets: prometheus.DefBuckets,
	})

	ProviderAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_transaction_attempts_total",
		Help: "Total number of payment provider transaction attempts",
	})

	ProviderFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provider_transaction_failed_total",
		Help: "Total number of failed payment provider transactions",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redemptions_rate_limited_total",
		Help: "Total number of redemption attempts rejected by the rate limiter",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
