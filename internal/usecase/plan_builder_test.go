package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinArb/internal/domain/models"
	"FinArb/internal/service/breaker"
	"FinArb/internal/service/health"
	"FinArb/internal/service/scoring"
)

func testScorer() *scoring.Scorer {
	return scoring.New(scoring.Weights{Freshness: 0.25, Latency: 0.15, Uptime: 0.3, Completeness: 0.15, Trust: 0.15})
}

func testSources(n int) []models.Source {
	names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	out := make([]models.Source, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Source{
			ID:           names[i],
			Capabilities: []models.Capability{models.CapEquityPrice},
			Trust:        0.5,
		})
	}
	return out
}

func TestBuildNoCapableSource(t *testing.T) {
	b := NewPlanBuilder(testScorer(), health.NewTracker(), breaker.New())

	srcs := testSources(2)
	for i := range srcs {
		srcs[i].Disabled = true
	}
	_, err := b.Build(models.Request{Capability: models.CapEquityPrice, Entity: "AAPL"}, srcs)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoCapableSource)
}

func TestBuildExcludesDisabledAndOpenCircuits(t *testing.T) {
	circuit := breaker.New(breaker.WithThreshold(1))
	b := NewPlanBuilder(testScorer(), health.NewTracker(), circuit)

	srcs := testSources(3)
	srcs[1].Disabled = true
	circuit.OnFailure("gamma", models.CapEquityPrice, models.FailureTransient)

	plan, err := b.Build(models.Request{Capability: models.CapEquityPrice, Entity: "AAPL"}, srcs)
	require.NoError(t, err)

	require.Len(t, plan.Entries, 1)
	assert.Equal(t, "alpha", plan.Entries[0].Source.ID)
	require.Len(t, plan.Excluded, 2)
	assert.Equal(t, models.PlanExclusion{SourceID: "beta", Reason: "disabled"}, plan.Excluded[0])
	assert.Equal(t, models.PlanExclusion{SourceID: "gamma", Reason: "circuit_open"}, plan.Excluded[1])
}

func TestBuildTruncatesToRequestedDepth(t *testing.T) {
	b := NewPlanBuilder(testScorer(), health.NewTracker(), breaker.New())

	plan, err := b.Build(models.Request{
		Capability:       models.CapEquityPrice,
		Entity:           "AAPL",
		MaxFallbackDepth: 2,
	}, testSources(5))
	require.NoError(t, err)

	assert.Len(t, plan.Entries, 2)
	beyond := 0
	for _, x := range plan.Excluded {
		if x.Reason == "beyond_depth" {
			beyond++
		}
	}
	assert.Equal(t, 3, beyond)
}

func TestBuildFusionFanOut(t *testing.T) {
	b := NewPlanBuilder(testScorer(), health.NewTracker(), breaker.New(), WithFusionFanOut(3))

	plan, err := b.Build(models.Request{
		Capability: models.CapEquityPrice,
		Entity:     "AAPL",
		Fusion:     true,
	}, testSources(5))
	require.NoError(t, err)

	assert.Len(t, plan.Entries, 3)
	assert.True(t, plan.Fusion)
}

func TestBuildDeterministicTieBreak(t *testing.T) {
	b := NewPlanBuilder(testScorer(), health.NewTracker(), breaker.New())
	req := models.Request{Capability: models.CapEquityPrice, Entity: "AAPL"}

	// identical scores and trust: lexical id order, stable across runs
	first, err := b.Build(req, testSources(5))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := b.Build(req, testSources(5))
		require.NoError(t, err)
		assert.Equal(t, first.Entries, again.Entries)
	}
	assert.Equal(t, "alpha", first.Entries[0].Source.ID)
}

func TestBuildRanksHealthierSourceFirst(t *testing.T) {
	tracker := health.NewTracker()
	b := NewPlanBuilder(testScorer(), tracker, breaker.New())

	// beta has a clean record, alpha keeps failing
	for i := 0; i < 10; i++ {
		tracker.Record("alpha", models.CapEquityPrice, health.Outcome{})
		tracker.Record("beta", models.CapEquityPrice, health.Outcome{
			Success: true, FieldsServed: 1, FieldsRequested: 1,
		})
	}

	plan, err := b.Build(models.Request{Capability: models.CapEquityPrice, Entity: "AAPL"}, testSources(2))
	require.NoError(t, err)

	require.Len(t, plan.Entries, 2)
	assert.Equal(t, "beta", plan.Entries[0].Source.ID)
	assert.Greater(t, plan.Entries[0].Score, plan.Entries[1].Score)
}

func TestBuildStampsDeadline(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewPlanBuilder(testScorer(), health.NewTracker(), breaker.New(),
		WithPlanDeadline(10*time.Second),
		WithPlanClock(func() time.Time { return now }),
	)

	plan, err := b.Build(models.Request{Capability: models.CapEquityPrice, Entity: "AAPL"}, testSources(1))
	require.NoError(t, err)

	assert.Equal(t, now.Add(10*time.Second), plan.Deadline)
}
