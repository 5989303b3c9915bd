package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinArb/internal/domain/models"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/retrypolicy"
	"FinArb/internal/service/sources"
	applogger "FinArb/pkg/logger"
)

type fetchFunc func(ctx context.Context, capability models.Capability, entity string, fields []string, timeout time.Duration) (*models.SuccessPayload, error)

func (f fetchFunc) Fetch(ctx context.Context, capability models.Capability, entity string, fields []string, timeout time.Duration) (*models.SuccessPayload, error) {
	return f(ctx, capability, entity, fields, timeout)
}

// nopMetrics satisfies repository.Metrics without a Prometheus registry.
type nopMetrics struct{}

func (nopMetrics) RecordAttempt(string, models.Capability, string)              {}
func (nopMetrics) RecordResolve(models.Capability, string, float64)             {}
func (nopMetrics) RecordPlanDepth(models.Capability, int)                       {}
func (nopMetrics) RecordConflict(models.Capability, string)                     {}
func (nopMetrics) RecordCircuit(string, models.Capability, models.CircuitState) {}
func (nopMetrics) RecordError(string)                                           {}

func payloadWith(price float64) *models.SuccessPayload {
	return &models.SuccessPayload{Fields: map[string]models.FieldValue{
		"price": {Value: price, AsOf: time.Now()},
	}}
}

func testRegistry(t *testing.T, fetchers map[string]fetchFunc) *sources.Registry {
	t.Helper()
	entries := make([]sources.Registered, 0, len(fetchers))
	for id, f := range fetchers {
		entries = append(entries, sources.Registered{
			Source: models.Source{
				ID:           id,
				Capabilities: []models.Capability{models.CapEquityPrice},
				Trust:        0.5,
			},
			Fetcher: f,
		})
	}
	reg, err := sources.NewRegistry(entries)
	require.NoError(t, err)
	return reg
}

func planFor(ids []string, fusion bool, deadline time.Duration) *models.ExecutionPlan {
	plan := &models.ExecutionPlan{
		Capability: models.CapEquityPrice,
		Entity:     "AAPL",
		Fields:     []string{"price"},
		Fusion:     fusion,
	}
	if deadline > 0 {
		plan.Deadline = time.Now().Add(deadline)
	}
	for _, id := range ids {
		plan.Entries = append(plan.Entries, models.PlanEntry{Source: models.Source{ID: id, Trust: 0.5}, Score: 0.5})
	}
	return plan
}

func TestFallbackShortCircuitsOnSuccess(t *testing.T) {
	var gammaCalls int32
	tracker := health.NewTracker()
	circuit := breaker.New()
	reg := testRegistry(t, map[string]fetchFunc{
		"alpha": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return nil, models.Transient("server_error", errors.New("boom"))
		},
		"beta": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return payloadWith(101), nil
		},
		"gamma": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			atomic.AddInt32(&gammaCalls, 1)
			return payloadWith(102), nil
		},
	})
	e := NewExecutor(reg, tracker, circuit, nopMetrics{}, applogger.Nop())

	results := e.Execute(context.Background(), planFor([]string{"alpha", "beta", "gamma"}, false, 0))

	require.Len(t, results, 2)
	require.NotNil(t, results[0].Failure)
	assert.Equal(t, models.FailureTransient, results[0].Failure.Kind)
	assert.True(t, results[1].OK())
	assert.Equal(t, int32(0), atomic.LoadInt32(&gammaCalls), "a success ends the chain")

	// both attempts fed the tracker
	assert.Equal(t, 1.0, tracker.Profile("alpha", models.CapEquityPrice).ErrorRate)
	assert.Equal(t, 1.0, tracker.Profile("beta", models.CapEquityPrice).UptimeRatio)
}

func TestFallbackExhaustsChain(t *testing.T) {
	fail := func(reason string) fetchFunc {
		return func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return nil, models.Transient(reason, nil)
		}
	}
	reg := testRegistry(t, map[string]fetchFunc{"alpha": fail("a"), "beta": fail("b")})
	e := NewExecutor(reg, health.NewTracker(), breaker.New(), nopMetrics{}, applogger.Nop())

	results := e.Execute(context.Background(), planFor([]string{"alpha", "beta"}, false, 0))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK())
	}
}

func TestOpenCircuitRefusesWithoutFetching(t *testing.T) {
	var calls int32
	tracker := health.NewTracker()
	circuit := breaker.New(breaker.WithThreshold(1))
	circuit.OnFailure("alpha", models.CapEquityPrice, models.FailureTransient)

	reg := testRegistry(t, map[string]fetchFunc{
		"alpha": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			atomic.AddInt32(&calls, 1)
			return payloadWith(1), nil
		},
	})
	e := NewExecutor(reg, tracker, circuit, nopMetrics{}, applogger.Nop())

	results := e.Execute(context.Background(), planFor([]string{"alpha"}, false, 0))

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Failure)
	assert.Equal(t, "circuit_open", results[0].Failure.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	// a local refusal is not a health observation
	assert.Equal(t, 0, tracker.Profile("alpha", models.CapEquityPrice).Observations)
}

func TestFusionCollectsAllResults(t *testing.T) {
	reg := testRegistry(t, map[string]fetchFunc{
		"alpha": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return payloadWith(100), nil
		},
		"beta": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return payloadWith(101), nil
		},
		"gamma": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return nil, models.Permanent("unknown_entity", nil)
		},
	})
	e := NewExecutor(reg, health.NewTracker(), breaker.New(), nopMetrics{}, applogger.Nop())

	results := e.Execute(context.Background(), planFor([]string{"alpha", "beta", "gamma"}, true, 0))

	require.Len(t, results, 3)
	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	assert.Equal(t, 2, ok)
}

func TestFusionDeadlineSettlesPendingSources(t *testing.T) {
	reg := testRegistry(t, map[string]fetchFunc{
		"fast": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			return payloadWith(100), nil
		},
		"slow": func(ctx context.Context, _ models.Capability, _ string, _ []string, _ time.Duration) (*models.SuccessPayload, error) {
			<-ctx.Done()
			return nil, models.Transient("timeout", ctx.Err())
		},
	})
	e := NewExecutor(reg, health.NewTracker(), breaker.New(), nopMetrics{}, applogger.Nop())

	results := e.Execute(context.Background(), planFor([]string{"fast", "slow"}, true, 50*time.Millisecond))

	require.Len(t, results, 2)
	byID := map[string]models.AttemptResult{}
	for _, r := range results {
		byID[r.SourceID] = r
	}
	assert.True(t, byID["fast"].OK())
	require.NotNil(t, byID["slow"].Failure)
	assert.Equal(t, models.FailureTransient, byID["slow"].Failure.Kind)
}

func TestRetryPolicyRetriesTransients(t *testing.T) {
	var calls int32
	reg := testRegistry(t, map[string]fetchFunc{
		"alpha": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			if atomic.AddInt32(&calls, 1) < 3 {
				return nil, models.Transient("server_error", nil)
			}
			return payloadWith(100), nil
		},
	})
	e := NewExecutor(reg, health.NewTracker(), breaker.New(), nopMetrics{}, applogger.Nop(),
		WithRetryPolicy(retrypolicy.Policy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}))

	results := e.Execute(context.Background(), planFor([]string{"alpha"}, false, 0))

	require.Len(t, results, 1)
	assert.True(t, results[0].OK())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryPolicyStopsOnPermanent(t *testing.T) {
	var calls int32
	reg := testRegistry(t, map[string]fetchFunc{
		"alpha": func(context.Context, models.Capability, string, []string, time.Duration) (*models.SuccessPayload, error) {
			atomic.AddInt32(&calls, 1)
			return nil, models.Permanent("auth", nil)
		},
	})
	e := NewExecutor(reg, health.NewTracker(), breaker.New(), nopMetrics{}, applogger.Nop(),
		WithRetryPolicy(retrypolicy.Policy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}))

	results := e.Execute(context.Background(), planFor([]string{"alpha"}, false, 0))

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Failure)
	assert.Equal(t, models.FailurePermanent, results[0].Failure.Kind)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "permanent failures are not retried")
}
