package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_gateway_requests_total",
			Help: "Backend gateway calls by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	GatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compass_gateway_request_duration_seconds",
			Help:    "Backend gateway call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"op"},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_events_published_total",
			Help: "State events broadcast on the bus",
		},
		[]string{"kind"},
	)

	StaleDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compass_stale_results_discarded_total",
			Help: "Late results dropped because a newer generation was already applied",
		},
		[]string{"op"},
	)

	CachedCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "compass_cached_calls",
			Help: "Records held in the persisted analysis store",
		},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "compass_bus_subscribers",
			Help: "Active event bus subscribers",
		},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayRequests,
		GatewayDuration,
		EventsPublished,
		StaleDiscarded,
		CachedCalls,
		Subscribers,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
