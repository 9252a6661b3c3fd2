// Package metrics holds the Prometheus collectors of the monitor. A nil
// Registerer yields working but unregistered collectors, which tests use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hamed0406/pingwatch/internal/domain"
)

const namespace = "pingwatch"

type Metrics struct {
	Probes         *prometheus.CounterVec
	ProbeLatency   prometheus.Histogram
	ProbesInFlight prometheus.Gauge
	Ticks          *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	Transitions    *prometheus.CounterVec
	TargetStatus   *prometheus.GaugeVec
	Deliveries     *prometheus.CounterVec
	Pruned         prometheus.Counter
	PersistErrors  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Probes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_total",
			Help: "Probes run, by result.",
		}, []string{"result"}),
		ProbeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_duration_seconds",
			Help:    "Wall time of a single probe.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}),
		ProbesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "probes_in_flight",
			Help: "Probes currently holding a concurrency slot.",
		}),
		Ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Monitor ticks, by outcome (done, skipped).",
		}, []string{"outcome"}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time of a completed tick, notifications included.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "transitions_total",
			Help: "Status transitions, by new status and whether an alert was sent.",
		}, []string{"to", "alerted"}),
		TargetStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "target_status",
			Help: "1 for the current status of each target, 0 otherwise.",
		}, []string{"target", "status"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Notification delivery attempts, by result (sent, retry, failed).",
		}, []string{"result"}),
		Pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "subscribers_pruned_total",
			Help: "Recipients removed after exhausting delivery attempts.",
		}),
		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persistence_errors_total",
			Help: "Failed persistence operations, by operation.",
		}, []string{"op"}),
	}
}

var statuses = []domain.Status{domain.StatusUnknown, domain.StatusUp, domain.StatusDown}

// SetStatus flips the one-hot status gauge of a target.
func (m *Metrics) SetStatus(target string, st domain.Status) {
	for _, s := range statuses {
		v := 0.0
		if s == st {
			v = 1
		}
		m.TargetStatus.WithLabelValues(target, string(s)).Set(v)
	}
}

// ForgetTarget drops the status series of a purged target.
func (m *Metrics) ForgetTarget(target string) {
	for _, s := range statuses {
		m.TargetStatus.DeleteLabelValues(target, string(s))
	}
}
