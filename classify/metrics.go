package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a Filter. A nil *Metrics records nothing.
type Metrics struct {
	Decisions     *prometheus.CounterVec
	Completions   *prometheus.CounterVec
	Pending       prometheus.Gauge
	CheckDuration prometheus.Histogram
	Invalidations prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicomscan_classify_decisions_total",
				Help: "Filter decisions by the rule that produced them",
			},
			[]string{"rule"},
		),

		Completions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicomscan_classify_completions_total",
				Help: "Asynchronous classification results by outcome",
			},
			[]string{"outcome"},
		),

		Pending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dicomscan_classify_pending",
				Help: "Asynchronous classification jobs in flight",
			},
		),

		CheckDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dicomscan_classify_check_duration_seconds",
				Help:    "Time spent in synchronous signature checks",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),

		Invalidations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dicomscan_classify_invalidations_total",
				Help: "Cache invalidations caused by mode or deep check changes",
			},
		),
	}
}

// Rules reported in the decisions counter.
const (
	ruleDirectory = "directory"
	ruleIndexFile = "index_file"
	ruleName      = "name"
	ruleDisabled  = "deep_check_disabled"
	ruleCacheHit  = "cache_hit"
	ruleSync      = "sync_check"
	ruleSubmitted = "async_submitted"
	rulePending   = "async_pending"
	ruleSaturated = "async_saturated"
)

func (m *Metrics) decision(rule string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(rule).Inc()
}

func (m *Metrics) completion(outcome string) {
	if m == nil {
		return
	}
	m.Completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) pending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *Metrics) observeCheck(seconds float64) {
	if m == nil {
		return
	}
	m.CheckDuration.Observe(seconds)
}

func (m *Metrics) invalidated() {
	if m == nil {
		return
	}
	m.Invalidations.Inc()
}
