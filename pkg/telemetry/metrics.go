package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exported by opsforge.
type Metrics struct {
	WorkflowsStarted   prometheus.Counter
	WorkflowsCompleted prometheus.Counter
	WorkflowsFailed    prometheus.Counter
	StageDuration      *prometheus.HistogramVec
	TasksTotal         *prometheus.CounterVec
	ProbeAttempts      prometheus.Counter
	AdHocHosts         *prometheus.CounterVec
}

// NewMetrics registers and returns the opsforge collectors on the given
// registerer. Pass prometheus.DefaultRegisterer in production code.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WorkflowsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "workflow",
			Name:      "started_total",
			Help:      "Number of provisioning workflows started.",
		}),
		WorkflowsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "workflow",
			Name:      "completed_total",
			Help:      "Number of provisioning workflows that reached the completed stage.",
		}),
		WorkflowsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "workflow",
			Name:      "failed_total",
			Help:      "Number of provisioning workflows that terminated as failed.",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "opsforge",
			Subsystem: "workflow",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of each workflow stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "task",
			Name:      "total",
			Help:      "Number of tracked ad-hoc/script tasks by terminal status.",
		}, []string{"status"}),
		ProbeAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "ssh",
			Name:      "probe_attempts_total",
			Help:      "Number of SSH reachability probe attempts.",
		}),
		AdHocHosts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "opsforge",
			Subsystem: "adhoc",
			Name:      "hosts_total",
			Help:      "Number of per-host ad-hoc command outcomes by bucket.",
		}, []string{"outcome"}),
	}
}
