// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AllocationsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_completed_total",
			Help: "Total number of completed case allocations",
		},
		[]string{"outcome"},
	)

	AllocationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "allocation_failed_total",
			Help: "Total number of failed case allocations",
		},
		[]string{"error_code"},
	)

	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "case_state_transitions_total",
			Help: "Total number of case state transitions",
		},
		[]string{"from", "to"},
	)

	SLABreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sla_breaches_total",
			Help: "Total number of SLA breaches detected",
		},
		[]string{"dca_id"},
	)

	SweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sweep_duration_seconds",
			Help: "Duration of scheduled sweeps in seconds",
		},
		[]string{"sweep"},
	)

	DCAUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dca_capacity_utilization",
			Help: "Current capacity utilization per DCA (0-100)",
		},
		[]string{"dca_id"},
	)
)
