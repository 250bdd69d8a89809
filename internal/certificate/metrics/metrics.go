package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Fetch latency by mode ("owner", "recent", "single")
	FetchLatency *prometheus.HistogramVec

	// Items dropped from a batch because their lookup failed
	SkippedItems *prometheus.CounterVec

	// Normalization outcomes: "ok", "empty", "metadata_missing", "error"
	NormalizeOutcome *prometheus.CounterVec

	// Cache lookups by result: "hit", "miss", "error"
	CacheLookups *prometheus.CounterVec

	// Revocation outcomes by kind ("ok" or a failure kind)
	RevocationOutcome *prometheus.CounterVec

	// Revocations currently awaiting confirmation
	RevocationsInFlight prometheus.Gauge
}

// New registers the certificate metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the certificate metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certledger_fetch_duration_seconds",
			Help:    "Duration of certificate fetches by mode",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),

		SkippedItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_fetch_skipped_total",
			Help: "Certificates skipped during batch fetches because their lookup failed",
		}, []string{"mode"}),

		NormalizeOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_normalize_total",
			Help: "Certificate normalizations by outcome",
		}, []string{"outcome"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_cache_lookups_total",
			Help: "Certificate cache lookups by result",
		}, []string{"result"}),

		RevocationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_revocations_total",
			Help: "Revocation attempts by outcome",
		}, []string{"outcome"}),

		RevocationsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "certledger_revocations_in_flight",
			Help: "Revocations submitted and awaiting confirmation",
		}),
	}
}

// ObserveFetch records the duration of a fetch.
func (m *Metrics) ObserveFetch(mode string, d time.Duration) {
	if m != nil {
		m.FetchLatency.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// IncrementSkipped records a skipped batch item.
func (m *Metrics) IncrementSkipped(mode string) {
	if m != nil {
		m.SkippedItems.WithLabelValues(mode).Inc()
	}
}

// IncrementNormalize records a normalization outcome.
func (m *Metrics) IncrementNormalize(outcome string) {
	if m != nil {
		m.NormalizeOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// IncrementRevocation records a revocation outcome.
func (m *Metrics) IncrementRevocation(outcome string) {
	if m != nil {
		m.RevocationOutcome.WithLabelValues(outcome).Inc()
	}
}

// RevocationStarted and RevocationFinished track in-flight revocations.
func (m *Metrics) RevocationStarted() {
	if m != nil {
		m.RevocationsInFlight.Inc()
	}
}

func (m *Metrics) RevocationFinished() {
	if m != nil {
		m.RevocationsInFlight.Dec()
	}
}
