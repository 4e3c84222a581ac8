package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for availability queries. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	queriesTotal       *prometheus.CounterVec
	cacheTotal         *prometheus.CounterVec
	durationFallbacks  prometheus.Counter
	invalidationsTotal *prometheus.CounterVec
	resolveLatency     *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotengine",
			Subsystem: "availability",
			Name:      "queries_total",
			Help:      "Availability queries by kind and outcome (available, error, none_available or the unavailable reason)",
		}, []string{"kind", "outcome"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotengine",
			Subsystem: "availability",
			Name:      "cache_total",
			Help:      "Result cache lookups by result",
		}, []string{"result"}),
		durationFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slotengine",
			Subsystem: "availability",
			Name:      "duration_fallback_total",
			Help:      "Service durations that could not be parsed and used the default",
		}),
		invalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotengine",
			Subsystem: "availability",
			Name:      "cache_invalidations_total",
			Help:      "Cached results dropped, by trigger",
		}, []string{"source"}),
		resolveLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotengine",
			Subsystem: "availability",
			Name:      "resolve_seconds",
			Help:      "Latency of availability queries including data fetches",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.queriesTotal, m.cacheTotal, m.durationFallbacks, m.invalidationsTotal, m.resolveLatency)
	return m
}

func (m *Metrics) ObserveQuery(kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues(kind, outcome).Inc()
	m.resolveLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDurationFallback() {
	if m == nil {
		return
	}
	m.durationFallbacks.Inc()
}

func (m *Metrics) ObserveInvalidation(source string, keys int) {
	if m == nil || keys <= 0 {
		return
	}
	m.invalidationsTotal.WithLabelValues(source).Add(float64(keys))
}
