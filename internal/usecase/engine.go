package usecase

import (
	"context"
	"fmt"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/sources"
	applogger "FinArb/pkg/logger"
)

// Engine is the data arbitration core: plan, execute, merge. Each
// instance owns its health tracker and circuit breaker, so independent
// engines (and tests) never share reliability state.
type Engine struct {
	registry *sources.Registry
	builder  *PlanBuilder
	executor *Executor
	merger   *Merger
	tracker  *health.Tracker
	circuit  *breaker.Breaker
	metrics  repository.Metrics
	audit    repository.AuditSink
	logger   *applogger.Logger
}

func NewEngine(
	registry *sources.Registry,
	builder *PlanBuilder,
	executor *Executor,
	merger *Merger,
	tracker *health.Tracker,
	circuit *breaker.Breaker,
	metrics repository.Metrics,
	audit repository.AuditSink,
	logger *applogger.Logger,
) *Engine {
	return &Engine{
		registry: registry,
		builder:  builder,
		executor: executor,
		merger:   merger,
		tracker:  tracker,
		circuit:  circuit,
		metrics:  metrics,
		audit:    audit,
		logger:   logger,
	}
}

// Resolve is the primary entry point: one request in, one canonical
// provenance-tagged result out, or a typed failure. Per-source failures
// are absorbed into health signal; only the terminal conditions
// propagate.
func (e *Engine) Resolve(ctx context.Context, req models.Request) (*models.CanonicalResult, error) {
	start := time.Now()
	mode := "fallback"
	if req.Fusion {
		mode = "fusion"
	}

	capable := e.registry.Capable(req.Capability)
	if len(capable) == 0 {
		e.metrics.RecordError("no_capable_source")
		return nil, fmt.Errorf("%w: capability %s", models.ErrNoCapableSource, req.Capability)
	}

	plan, err := e.builder.Build(req, capable)
	if err != nil {
		e.metrics.RecordError("no_capable_source")
		return nil, err
	}
	e.metrics.RecordPlanDepth(req.Capability, len(plan.Entries))

	attempts := e.executor.Execute(ctx, plan)
	if err := e.audit.RecordAttempts(ctx, attempts); err != nil {
		e.logger.Warn("attempt audit failed", applogger.Error(err))
	}

	scores := make(map[string]float64, len(plan.Entries))
	for _, entry := range plan.Entries {
		scores[entry.Source.ID] = entry.Score
	}

	result, err := e.merger.Merge(attempts, scores)
	if err != nil {
		e.metrics.RecordError("all_sources_failed")
		e.logger.Warn("all planned sources failed",
			applogger.String("capability", string(req.Capability)),
			applogger.String("entity", req.Entity),
			applogger.Int("attempts", len(attempts)))
		return nil, &models.AllSourcesFailedError{Attempts: attempts}
	}

	// fusion partial failures (and fallback attempts before the winner)
	// ride along in the audit trail, they are not errors
	for _, a := range attempts {
		if a.Failure != nil {
			result.Failures = append(result.Failures, *a.Failure)
		}
	}
	for name, f := range result.Fields {
		if f.Conflict {
			e.metrics.RecordConflict(req.Capability, name)
		}
	}
	result.ResolvedAt = time.Now()
	e.metrics.RecordResolve(req.Capability, mode, time.Since(start).Seconds())
	return result, nil
}

// PairHealth is one entry of the diagnostics snapshot.
type PairHealth struct {
	Source     string              `json:"source"`
	Capability models.Capability   `json:"capability"`
	Profile    health.Profile      `json:"profile"`
	Circuit    models.CircuitState `json:"circuit"`
}

// HealthSnapshot reports derived metrics and circuit state for every
// registered (source, capability) pair, tried or not.
func (e *Engine) HealthSnapshot() map[string]PairHealth {
	out := make(map[string]PairHealth)
	for _, reg := range e.registry.All() {
		for _, c := range reg.Source.Capabilities {
			key := reg.Source.ID + "/" + string(c)
			out[key] = PairHealth{
				Source:     reg.Source.ID,
				Capability: c,
				Profile:    e.tracker.Profile(reg.Source.ID, c),
				Circuit:    e.circuit.State(reg.Source.ID, c),
			}
		}
	}
	return out
}
