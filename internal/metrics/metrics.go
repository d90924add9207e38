// Package metrics exports gate outcomes to Prometheus.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// Outcome label values
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

// Metrics holds the trunkgate collectors. It implements the orchestrator
// notifier interface so every attempt is counted as it is recorded.
//
// Metrics:
//   - trunkgate_gate_results_total{phase,outcome}
//   - trunkgate_violations_total{phase,kind}
//   - trunkgate_phase_duration_seconds{phase}
//   - trunkgate_blocked_tasks
type Metrics struct {
	GateResultsTotal *prometheus.CounterVec
	ViolationsTotal  *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec
	BlockedTasks     prometheus.Gauge

	mu      sync.Mutex
	blocked map[string]bool
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GateResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trunkgate_gate_results_total",
				Help: "Total number of gate evaluations",
			},
			[]string{"phase", "outcome"},
		),
		ViolationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trunkgate_violations_total",
				Help: "Total number of gate violations",
			},
			[]string{"phase", "kind"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trunkgate_phase_duration_seconds",
				Help:    "Duration of phase attempts in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1800},
			},
			[]string{"phase"},
		),
		BlockedTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trunkgate_blocked_tasks",
			Help: "Number of tasks whose last attempt failed",
		}),
		blocked: make(map[string]bool),
	}
}

// Notify records one attempt
func (m *Metrics) Notify(_ context.Context, task types.Task, attempt types.Attempt) error {
	res := attempt.Result
	phase := string(res.Phase)

	outcome := OutcomePassed
	if !res.Passed {
		outcome = OutcomeFailed
	}
	m.GateResultsTotal.WithLabelValues(phase, outcome).Inc()
	for _, v := range res.Violations {
		m.ViolationsTotal.WithLabelValues(phase, string(v.Kind)).Inc()
	}
	if d := attempt.Duration(); d > 0 {
		m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if res.Passed {
		delete(m.blocked, task.ID())
	} else {
		m.blocked[task.ID()] = true
	}
	m.BlockedTasks.Set(float64(len(m.blocked)))
	return nil
}

// Forget drops a task from the blocked gauge, for abandoned tasks
func (m *Metrics) Forget(task types.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocked, task.ID())
	m.BlockedTasks.Set(float64(len(m.blocked)))
}
