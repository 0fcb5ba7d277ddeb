// Package metrics exposes prometheus collectors for the fetch router and
// enrichment pipeline.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchAttempts counts tier attempts by tier and outcome
	// (success, soft_failure, transport_failure).
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrich",
		Subsystem: "fetch",
		Name:      "attempts_total",
		Help:      "Fetch attempts by tier and outcome.",
	}, []string{"tier", "outcome"})

	// Escalations counts tier escalations by machine-readable reason.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrich",
		Subsystem: "fetch",
		Name:      "escalations_total",
		Help:      "Tier escalations by reason.",
	}, []string{"reason"})

	// FetchLatency observes per-attempt latency by tier.
	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "enrich",
		Subsystem: "fetch",
		Name:      "latency_seconds",
		Help:      "Per-attempt fetch latency by tier.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"tier"})

	// Sessions counts finished enrichment sessions by final status and
	// stop reason.
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enrich",
		Subsystem: "session",
		Name:      "finished_total",
		Help:      "Enrichment sessions by final status and stop reason.",
	}, []string{"status", "stop"})
)

// ObserveAttempt records one tier attempt.
func ObserveAttempt(tier int, outcome string, seconds float64) {
	t := strconv.Itoa(tier)
	FetchAttempts.WithLabelValues(t, outcome).Inc()
	FetchLatency.WithLabelValues(t).Observe(seconds)
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }
