package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinArb/internal/domain/models"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	attemptsTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
	planDepth      *prometheus.HistogramVec
	resolveLatency *prometheus.HistogramVec
	circuitState   *prometheus.GaugeVec
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		attemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finarb_source_attempts_total",
				Help: "Source fetch attempts by outcome",
			},
			[]string{"source", "capability", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finarb_engine_errors_total",
				Help: "Engine-level terminal failures",
			},
			[]string{"type"},
		),
		conflictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finarb_merge_conflicts_total",
				Help: "Field-level merge conflicts detected",
			},
			[]string{"capability", "field"},
		),
		planDepth: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finarb_plan_depth",
				Help:    "Number of sources selected per plan",
				Buckets: []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"capability"},
		),
		resolveLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finarb_resolve_duration_seconds",
				Help:    "End-to-end resolve latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability", "mode"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finarb_circuit_state",
				Help: "Circuit state per source/capability (0 closed, 1 half-open, 2 open)",
			},
			[]string{"source", "capability"},
		),
	}
}

// RecordAttempt records one source fetch attempt.
func (r *Recorder) RecordAttempt(source string, capability models.Capability, outcome string) {
	r.attemptsTotal.WithLabelValues(source, string(capability), outcome).Inc()
}

// RecordResolve records end-to-end resolve latency in seconds.
func (r *Recorder) RecordResolve(capability models.Capability, mode string, seconds float64) {
	r.resolveLatency.WithLabelValues(string(capability), mode).Observe(seconds)
}

// RecordPlanDepth records the selected plan size.
func (r *Recorder) RecordPlanDepth(capability models.Capability, depth int) {
	r.planDepth.WithLabelValues(string(capability)).Observe(float64(depth))
}

// RecordConflict records a field-level merge conflict.
func (r *Recorder) RecordConflict(capability models.Capability, field string) {
	r.conflictsTotal.WithLabelValues(string(capability), field).Inc()
}

// RecordCircuit records a circuit state transition.
func (r *Recorder) RecordCircuit(source string, capability models.Capability, state models.CircuitState) {
	var v float64
	switch state {
	case models.CircuitHalfOpen:
		v = 1
	case models.CircuitOpen:
		v = 2
	}
	r.circuitState.WithLabelValues(source, string(capability)).Set(v)
}

// RecordError records an engine-level error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
