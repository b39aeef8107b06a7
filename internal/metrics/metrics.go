package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all collector metrics
var Registry = prometheus.NewRegistry()

var (
	// PassesTotal counts collection passes by outcome
	PassesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haproxy_collector",
		Name:      "passes_total",
		Help:      "Number of collection passes, partitioned by outcome.",
	}, []string{"outcome"})

	// LastPassEntries reports the number of entries resolved by the last
	// successful pass
	LastPassEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "haproxy_collector",
		Name:      "last_pass_entries",
		Help:      "Resolved (domain, server) entries in the last successful pass.",
	})

	// PassDuration observes collection pass durations
	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "haproxy_collector",
		Name:      "pass_duration_seconds",
		Help:      "Duration of collection passes.",
		Buckets:   prometheus.DefBuckets,
	})

	// APIRequestsTotal counts Data Plane API requests by endpoint and outcome
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "haproxy_collector",
		Name:      "api_requests_total",
		Help:      "Data Plane API requests, partitioned by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})
)

func init() {
	Registry.MustRegister(
		PassesTotal,
		LastPassEntries,
		PassDuration,
		APIRequestsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler returns an HTTP handler exposing the collector registry
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
