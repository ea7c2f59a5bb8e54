package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and gauges for the geolocation layer.
type Metrics struct {
	// Callback bridge metrics.
	CallbacksDispatched *prometheus.CounterVec // labels: kind={success,error}
	DecodeFailures      *prometheus.CounterVec // labels: kind={success,error}
	CallbackPanics      prometheus.Counter

	// Request and watch lifecycle metrics.
	Requests           *prometheus.CounterVec // labels: outcome={issued,unsupported}
	WatchStarts        *prometheus.CounterVec // labels: outcome={active,unsupported,failed}
	ActiveWatches      prometheus.Gauge
	WatchCancellations *prometheus.CounterVec // labels: reason={explicit,context,released}

	// Relay metrics.
	PositionsPublished prometheus.Counter
	PositionsDropped   prometheus.Counter
	PublishErrors      prometheus.Counter
	PositionErrors     *prometheus.CounterVec // labels: code
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.CallbacksDispatched,
		m.DecodeFailures,
		m.CallbackPanics,
		m.Requests,
		m.WatchStarts,
		m.ActiveWatches,
		m.WatchCancellations,
		m.PositionsPublished,
		m.PositionsDropped,
		m.PublishErrors,
		m.PositionErrors,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CallbacksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "callbacks_dispatched_total",
			Help:      "Host callback invocations delivered to consumer callbacks.",
		}, []string{"kind"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "decode_failures_total",
			Help:      "Host payloads that could not be decoded.",
		}, []string{"kind"}),
		CallbackPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "callback_panics_total",
			Help:      "Panics recovered while dispatching a host callback.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "requests_total",
			Help:      "One-shot position requests by outcome.",
		}, []string{"outcome"}),
		WatchStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "watch_starts_total",
			Help:      "Watch start attempts by outcome.",
		}, []string{"outcome"}),
		ActiveWatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geolocation",
			Name:      "active_watches",
			Help:      "Watch subscriptions that have not been cancelled.",
		}),
		WatchCancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "watch_cancellations_total",
			Help:      "Watch subscriptions cancelled, by the path that cancelled them.",
		}, []string{"reason"}),
		PositionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "positions_published_total",
			Help:      "Positions written to the sink.",
		}),
		PositionsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "positions_dropped_total",
			Help:      "Positions dropped by the publish rate limit.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "publish_errors_total",
			Help:      "Failed sink writes.",
		}),
		PositionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geolocation",
			Name:      "position_errors_total",
			Help:      "Position errors delivered to the relay, by code.",
		}, []string{"code"}),
	}
}
