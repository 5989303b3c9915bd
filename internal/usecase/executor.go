package usecase

import (
	"context"
	"sync"
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/domain/repository"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/retrypolicy"
	"FinArb/internal/service/sources"
	applogger "FinArb/pkg/logger"
)

// Executor consumes an execution plan, drives the source adapters, and
// feeds every outcome back into the health tracker and circuit breaker.
// Fallback mode walks the plan sequentially; fusion mode fans out
// concurrently under the plan deadline.
type Executor struct {
	registry *sources.Registry
	tracker  *health.Tracker
	circuit  *breaker.Breaker
	policy   retrypolicy.Policy
	metrics  repository.Metrics
	logger   *applogger.Logger

	perSourceTimeout time.Duration
}

type ExecOption func(*Executor)

// WithPerSourceTimeout bounds each individual fetch attempt.
func WithPerSourceTimeout(d time.Duration) ExecOption {
	return func(e *Executor) {
		if d > 0 {
			e.perSourceTimeout = d
		}
	}
}

// WithRetryPolicy sets the per-source retry/backoff policy.
func WithRetryPolicy(p retrypolicy.Policy) ExecOption {
	return func(e *Executor) { e.policy = p }
}

func NewExecutor(
	registry *sources.Registry,
	tracker *health.Tracker,
	circuit *breaker.Breaker,
	metrics repository.Metrics,
	logger *applogger.Logger,
	opts ...ExecOption,
) *Executor {
	e := &Executor{
		registry:         registry,
		tracker:          tracker,
		circuit:          circuit,
		policy:           retrypolicy.Default(),
		metrics:          metrics,
		logger:           logger,
		perSourceTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the plan and returns every attempt result, successes and
// failures alike. The caller decides what exhaustion means.
func (e *Executor) Execute(ctx context.Context, plan *models.ExecutionPlan) []models.AttemptResult {
	if !plan.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, plan.Deadline)
		defer cancel()
	}
	if plan.Fusion {
		return e.executeFusion(ctx, plan)
	}
	return e.executeFallback(ctx, plan)
}

func (e *Executor) executeFallback(ctx context.Context, plan *models.ExecutionPlan) []models.AttemptResult {
	results := make([]models.AttemptResult, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		if ctx.Err() != nil {
			results = append(results, deadlineResult(entry.Source.ID, plan))
			continue
		}
		res := e.attempt(ctx, entry.Source.ID, plan)
		results = append(results, res)
		if res.OK() {
			// a success short-circuits the remaining chain
			break
		}
	}
	return results
}

func (e *Executor) executeFusion(ctx context.Context, plan *models.ExecutionPlan) []models.AttemptResult {
	resCh := make(chan models.AttemptResult, len(plan.Entries))
	var wg sync.WaitGroup
	for _, entry := range plan.Entries {
		wg.Add(1)
		go func(sourceID string) {
			defer wg.Done()
			resCh <- e.attempt(ctx, sourceID, plan)
		}(entry.Source.ID)
	}
	go func() { wg.Wait(); close(resCh) }()

	results := make([]models.AttemptResult, 0, len(plan.Entries))
	settled := make(map[string]bool, len(plan.Entries))
	for len(results) < len(plan.Entries) {
		select {
		case res, ok := <-resCh:
			if !ok {
				return results
			}
			settled[res.SourceID] = true
			results = append(results, res)
		case <-ctx.Done():
			// sources still pending at the deadline become timeout
			// failures here; their goroutines settle shortly after and
			// feed the tracker themselves.
			for _, entry := range plan.Entries {
				if !settled[entry.Source.ID] {
					results = append(results, deadlineResult(entry.Source.ID, plan))
				}
			}
			return results
		}
	}
	return results
}

// attempt runs one plan entry, including per-source retries, and feeds
// the outcome into health and circuit state before returning.
func (e *Executor) attempt(ctx context.Context, sourceID string, plan *models.ExecutionPlan) models.AttemptResult {
	result := models.AttemptResult{
		SourceID:   sourceID,
		Capability: plan.Capability,
		Entity:     plan.Entity,
		StartedAt:  time.Now(),
	}

	if !e.circuit.Allow(sourceID, plan.Capability) {
		// refused locally, no wire call: not a health signal
		result.Failure = &models.AttemptFailure{
			SourceID: sourceID, Kind: models.FailureTransient, Reason: "circuit_open",
		}
		e.metrics.RecordAttempt(sourceID, plan.Capability, "circuit_refused")
		return result
	}

	fetcher, ok := e.registry.FetcherFor(sourceID)
	if !ok {
		result.Failure = &models.AttemptFailure{
			SourceID: sourceID, Kind: models.FailurePermanent, Reason: "unregistered",
		}
		return result
	}

	var (
		payload *models.SuccessPayload
		err     error
	)
	for n := 1; n <= e.policy.Attempts(); n++ {
		payload, err = fetcher.Fetch(ctx, plan.Capability, plan.Entity, plan.Fields, e.perSourceTimeout)
		if err == nil && ctx.Err() != nil {
			// canceled mid-flight: a late payload never counts as a
			// success
			payload, err = nil, models.Transient("deadline", ctx.Err())
		}
		if err == nil || !e.policy.Retryable(models.Classify(err)) {
			break
		}
		if n < e.policy.Attempts() {
			select {
			case <-ctx.Done():
			case <-time.After(e.policy.Backoff(n)):
			}
		}
	}
	result.Latency = time.Since(result.StartedAt)

	if err != nil {
		kind := models.Classify(err)
		result.Failure = &models.AttemptFailure{
			SourceID: sourceID, Kind: kind, Reason: models.FailureReason(err),
		}
		e.tracker.Record(sourceID, plan.Capability, health.Outcome{
			Permanent:       kind == models.FailurePermanent,
			Latency:         result.Latency,
			FieldsRequested: len(plan.Fields),
		})
		e.circuit.OnFailure(sourceID, plan.Capability, kind)
		e.metrics.RecordAttempt(sourceID, plan.Capability, string(kind))
		e.logger.Debug("attempt failed",
			applogger.String("source", sourceID),
			applogger.String("capability", string(plan.Capability)),
			applogger.String("kind", string(kind)),
			applogger.Error(err))
		return result
	}

	result.Payload = payload
	requested := len(plan.Fields)
	if requested == 0 {
		requested = len(payload.Fields)
	}
	e.tracker.Record(sourceID, plan.Capability, health.Outcome{
		Success:         true,
		Latency:         result.Latency,
		DataAge:         dataAge(payload, result.StartedAt),
		FieldsServed:    len(payload.Fields),
		FieldsRequested: requested,
	})
	e.circuit.OnSuccess(sourceID, plan.Capability)
	e.metrics.RecordAttempt(sourceID, plan.Capability, "success")
	return result
}

func deadlineResult(sourceID string, plan *models.ExecutionPlan) models.AttemptResult {
	return models.AttemptResult{
		SourceID:   sourceID,
		Capability: plan.Capability,
		Entity:     plan.Entity,
		StartedAt:  time.Now(),
		Failure: &models.AttemptFailure{
			SourceID: sourceID, Kind: models.FailureTransient, Reason: "deadline",
		},
	}
}

func dataAge(p *models.SuccessPayload, at time.Time) time.Duration {
	var freshest time.Time
	for _, fv := range p.Fields {
		if fv.AsOf.After(freshest) {
			freshest = fv.AsOf
		}
	}
	if freshest.IsZero() {
		return 0
	}
	if age := at.Sub(freshest); age > 0 {
		return age
	}
	return 0
}
