package usecase

import (
	"fmt"
	"sort"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/scoring"
)

// PlanBuilder turns a request plus the capable source set into an
// ordered execution plan. For a fixed health/circuit snapshot and fixed
// request the output is deterministic.
type PlanBuilder struct {
	scorer  *scoring.Scorer
	tracker *health.Tracker
	circuit *breaker.Breaker

	defaultDepth int
	fusionK      int
	planDeadline time.Duration
	now          func() time.Time
}

type PlanOption func(*PlanBuilder)

// WithDefaultDepth sets the fallback depth used when the request leaves
// it zero.
func WithDefaultDepth(n int) PlanOption {
	return func(b *PlanBuilder) {
		if n > 0 {
			b.defaultDepth = n
		}
	}
}

// WithFusionFanOut sets the top-K retained for fusion mode.
func WithFusionFanOut(k int) PlanOption {
	return func(b *PlanBuilder) {
		if k >= 1 {
			b.fusionK = k
		}
	}
}

// WithPlanDeadline sets the overall execution deadline stamped onto
// every plan.
func WithPlanDeadline(d time.Duration) PlanOption {
	return func(b *PlanBuilder) {
		if d > 0 {
			b.planDeadline = d
		}
	}
}

// WithPlanClock overrides the time source, for tests.
func WithPlanClock(now func() time.Time) PlanOption {
	return func(b *PlanBuilder) { b.now = now }
}

func NewPlanBuilder(scorer *scoring.Scorer, tracker *health.Tracker, circuit *breaker.Breaker, opts ...PlanOption) *PlanBuilder {
	b := &PlanBuilder{
		scorer:       scorer,
		tracker:      tracker,
		circuit:      circuit,
		defaultDepth: 3,
		fusionK:      3,
		planDeadline: 10 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build filters, scores, and orders the capable sources for the request.
// Returns models.ErrNoCapableSource when nothing survives filtering;
// that is terminal for the request, not retried here.
func (b *PlanBuilder) Build(req models.Request, capable []models.Source) (*models.ExecutionPlan, error) {
	plan := &models.ExecutionPlan{
		Capability: req.Capability,
		Entity:     req.Entity,
		Fields:     req.Fields,
		Fusion:     req.Fusion,
		Deadline:   b.now().Add(b.planDeadline),
	}

	entries := make([]models.PlanEntry, 0, len(capable))
	for _, src := range capable {
		if !src.Serves(req.Capability) {
			continue
		}
		if src.Disabled {
			plan.Excluded = append(plan.Excluded, models.PlanExclusion{SourceID: src.ID, Reason: "disabled"})
			continue
		}
		if !b.circuit.Eligible(src.ID, req.Capability) {
			plan.Excluded = append(plan.Excluded, models.PlanExclusion{SourceID: src.ID, Reason: "circuit_open"})
			continue
		}
		profile := b.tracker.Profile(src.ID, req.Capability)
		entries = append(entries, models.PlanEntry{
			Source: src,
			Score:  b.scorer.Score(src, profile, req),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: capability %s", models.ErrNoCapableSource, req.Capability)
	}

	sort.SliceStable(entries, func(i, j int) bool { return scoring.Less(entries[i], entries[j]) })

	limit := b.defaultDepth
	if req.MaxFallbackDepth > 0 {
		limit = req.MaxFallbackDepth
	}
	if req.Fusion {
		limit = b.fusionK
	}
	if limit > len(entries) {
		limit = len(entries)
	}
	for _, e := range entries[limit:] {
		plan.Excluded = append(plan.Excluded, models.PlanExclusion{SourceID: e.Source.ID, Reason: "beyond_depth"})
	}
	plan.Entries = entries[:limit]
	return plan, nil
}
