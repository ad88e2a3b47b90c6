// Package metrics exposes Prometheus collectors for the retention loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dev-tams/cachesweep/internal/retention"
)

// SweepMetrics records retention sweep outcomes. It implements retention.Recorder.
type SweepMetrics struct {
	// Sweeps counts sweep attempts by outcome status.
	Sweeps *prometheus.CounterVec

	// DeletedObjects counts cache objects removed across all sweeps.
	DeletedObjects prometheus.Counter

	// Duration observes how long completed and failed sweeps took.
	Duration prometheus.Histogram

	// NextSweep is the unix time the next sweep is due.
	NextSweep prometheus.Gauge

	// LastSuccess is the unix time of the last completed sweep.
	LastSuccess prometheus.Gauge
}

// NewSweepMetricsWithRegistry registers the collectors with reg.
func NewSweepMetricsWithRegistry(reg prometheus.Registerer) *SweepMetrics {
	factory := promauto.With(reg)
	return &SweepMetrics{
		Sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cachesweep",
				Subsystem: "retention",
				Name:      "sweeps_total",
				Help:      "Retention sweep attempts by status.",
			},
			[]string{"status"},
		),
		DeletedObjects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cachesweep",
				Subsystem: "retention",
				Name:      "deleted_objects_total",
				Help:      "Expired cache objects deleted.",
			},
		),
		Duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "cachesweep",
				Subsystem: "retention",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of retention sweeps that reached the store.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),
		NextSweep: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cachesweep",
				Subsystem: "retention",
				Name:      "next_sweep_timestamp_seconds",
				Help:      "Unix time the next retention sweep is due.",
			},
		),
		LastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "cachesweep",
				Subsystem: "retention",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last completed retention sweep.",
			},
		),
	}
}

func (m *SweepMetrics) ObserveSweep(status retention.Status, deleted int, took time.Duration) {
	m.Sweeps.WithLabelValues(string(status)).Inc()
	if deleted > 0 {
		m.DeletedObjects.Add(float64(deleted))
	}

	switch status {
	case retention.StatusCompleted:
		m.Duration.Observe(took.Seconds())
		m.LastSuccess.SetToCurrentTime()
	case retention.StatusFailed, retention.StatusCanceled:
		m.Duration.Observe(took.Seconds())
	}
}

func (m *SweepMetrics) SetNextDue(t time.Time) {
	m.NextSweep.Set(float64(t.Unix()))
}

var _ retention.Recorder = (*SweepMetrics)(nil)
