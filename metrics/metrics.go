// Package metrics exposes simulation counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filament"

// Metrics holds the simulation collectors. A nil *Metrics ignores every
// record call.
type Metrics struct {
	// Ticks counts completed simulation steps.
	Ticks prometheus.Counter

	// Compactions counts store compactions.
	// Labels: system
	Compactions *prometheus.CounterVec

	// RecordsRemoved counts records physically removed by compaction.
	// Labels: system
	RecordsRemoved *prometheus.CounterVec

	// Particles tracks the stored record count after each step.
	// Labels: system
	Particles *prometheus.GaugeVec

	// RemeshInserted counts particles inserted by remeshing.
	RemeshInserted prometheus.Counter

	// DarbouxApplied counts rings advanced by the doubly-discrete update.
	DarbouxApplied prometheus.Counter

	// DarbouxFailures counts skipped rings.
	// Labels: stage (reference, forward, backward)
	DarbouxFailures *prometheus.CounterVec

	// StepDuration measures wall time per step.
	StepDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed simulation steps",
		}),
		Compactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "compactions_total",
			Help:      "Store compactions by system",
		}, []string{"system"}),
		RecordsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records_removed_total",
			Help:      "Records removed by compaction by system",
		}, []string{"system"}),
		Particles: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records",
			Help:      "Stored records by system",
		}, []string{"system"}),
		RemeshInserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filament",
			Name:      "remesh_inserted_total",
			Help:      "Particles inserted by remeshing",
		}),
		DarbouxApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filament",
			Name:      "darboux_applied_total",
			Help:      "Rings advanced by the doubly-discrete update",
		}),
		DarbouxFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filament",
			Name:      "darboux_failures_total",
			Help:      "Rings skipped by the doubly-discrete update by stage",
		}, []string{"stage"}),
		StepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Simulation step duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
	}
}

// RecordCompaction records one compaction of system that removed n records.
func (m *Metrics) RecordCompaction(system string, removed int) {
	if m == nil {
		return
	}
	m.Compactions.WithLabelValues(system).Inc()
	m.RecordsRemoved.WithLabelValues(system).Add(float64(removed))
}

// RecordStep records a completed step.
func (m *Metrics) RecordStep(d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.StepDuration.Observe(d.Seconds())
}

// SetParticles sets the record gauge of system.
func (m *Metrics) SetParticles(system string, n int) {
	if m == nil {
		return
	}
	m.Particles.WithLabelValues(system).Set(float64(n))
}

// RecordRemesh records inserted particles.
func (m *Metrics) RecordRemesh(inserted int) {
	if m == nil || inserted == 0 {
		return
	}
	m.RemeshInserted.Add(float64(inserted))
}

// RecordDarboux records applied rings and one failure per entry of
// failedStages.
func (m *Metrics) RecordDarboux(applied int, failedStages ...string) {
	if m == nil {
		return
	}
	m.DarbouxApplied.Add(float64(applied))
	for _, s := range failedStages {
		m.DarbouxFailures.WithLabelValues(s).Inc()
	}
}
