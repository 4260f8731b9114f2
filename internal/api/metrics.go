package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	claimsFiledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "claims_filed_total",
		Help:      "Claims accepted for filing.",
	})

	fraudFlagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "fraud_flags_total",
		Help:      "Fraud flags created, by rule code.",
	}, []string{"rule_code"})

	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "fraud_evaluations_total",
		Help:      "Fraud evaluation runs.",
	})

	reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "reconciliations_total",
		Help:      "Reconciliation runs, by whether the status changed.",
	}, []string{"changed"})
)

func observeRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
