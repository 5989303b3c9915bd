package usecase

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinArb/internal/domain/models"
)

func attempt(source string, fields map[string]models.FieldValue) models.AttemptResult {
	return models.AttemptResult{
		SourceID:   source,
		Capability: models.CapEquityPrice,
		Entity:     "AAPL",
		Payload:    &models.SuccessPayload{Fields: fields},
	}
}

func failedAttempt(source string) models.AttemptResult {
	return models.AttemptResult{
		SourceID:   source,
		Capability: models.CapEquityPrice,
		Entity:     "AAPL",
		Failure:    &models.AttemptFailure{SourceID: source, Kind: models.FailureTransient, Reason: "timeout"},
	}
}

func TestMergeNothingToMerge(t *testing.T) {
	m := NewMerger()

	_, err := m.Merge([]models.AttemptResult{failedAttempt("alpha"), failedAttempt("beta")}, nil)

	assert.Error(t, err)
}

func TestMergeSinglePassThrough(t *testing.T) {
	m := NewMerger()
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := m.Merge([]models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 101, AsOf: asOf}}),
		failedAttempt("beta"),
	}, map[string]float64{"alpha": 0.87})
	require.NoError(t, err)

	require.Contains(t, res.Fields, "price")
	assert.Equal(t, 101.0, res.Fields["price"].Value)
	assert.Equal(t, "alpha", res.Fields["price"].SourceID)
	assert.False(t, res.Fields["price"].Conflict)
	assert.InDelta(t, 0.87, res.Confidence, 1e-9)
	assert.Equal(t, []string{"alpha"}, res.Sources)
}

func TestMergeFreshnessRuleWins(t *testing.T) {
	m := NewMerger(WithStalenessTolerance(10 * time.Second))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// beta is 30s fresher than alpha: freshness beats alpha's higher score
	res, err := m.Merge([]models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 100, AsOf: now.Add(-31 * time.Second)}}),
		attempt("beta", map[string]models.FieldValue{"price": {Value: 105, AsOf: now.Add(-1 * time.Second)}}),
	}, map[string]float64{"alpha": 0.95, "beta": 0.6})
	require.NoError(t, err)

	assert.Equal(t, 105.0, res.Fields["price"].Value)
	assert.Equal(t, "beta", res.Fields["price"].SourceID)
	assert.False(t, res.Fields["price"].Conflict)
}

func TestMergeScoreRuleWithinTolerance(t *testing.T) {
	m := NewMerger(WithStalenessTolerance(10 * time.Second))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 3s apart: inside the staleness tolerance, so the score decides
	res, err := m.Merge([]models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 100, AsOf: now.Add(-4 * time.Second)}}),
		attempt("beta", map[string]models.FieldValue{"price": {Value: 100.2, AsOf: now.Add(-1 * time.Second)}}),
	}, map[string]float64{"alpha": 0.9, "beta": 0.6})
	require.NoError(t, err)

	assert.Equal(t, "alpha", res.Fields["price"].SourceID)
}

func TestMergeConflictOnScoreTieWithDisagreement(t *testing.T) {
	m := NewMerger(
		WithStalenessTolerance(10*time.Second),
		WithScoreEpsilon(0.02),
		WithValueEpsilon(0.005),
	)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := m.Merge([]models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 101.0, AsOf: now.Add(-5 * time.Second)}}),
		attempt("beta", map[string]models.FieldValue{"price": {Value: 101.0, AsOf: now.Add(-2 * time.Second)}}),
		attempt("gamma", map[string]models.FieldValue{"price": {Value: 98.5, AsOf: now.Add(-1 * time.Second)}}),
	}, map[string]float64{"alpha": 0.90, "beta": 0.88, "gamma": 0.89})
	require.NoError(t, err)

	fr := res.Fields["price"]
	assert.Equal(t, 101.0, fr.Value, "highest score still wins")
	assert.Equal(t, "alpha", fr.SourceID)
	assert.True(t, fr.Conflict, "gamma ties alpha within epsilon but disagrees on value")
	require.Len(t, fr.Losers, 1)
	assert.Equal(t, "gamma", fr.Losers[0].SourceID)
	assert.Equal(t, 98.5, fr.Losers[0].Value)
	assert.True(t, res.Conflicted())
}

func TestMergeConflictReducesConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attempts := func() []models.AttemptResult {
		return []models.AttemptResult{
			attempt("alpha", map[string]models.FieldValue{"price": {Value: 100, AsOf: now}}),
			attempt("beta", map[string]models.FieldValue{"price": {Value: 90, AsOf: now}}),
		}
	}
	scores := map[string]float64{"alpha": 0.8, "beta": 0.8}

	clean, err := NewMerger(WithValueEpsilon(0.5)).Merge(attempts(), scores)
	require.NoError(t, err)
	conflicted, err := NewMerger(WithValueEpsilon(0.005)).Merge(attempts(), scores)
	require.NoError(t, err)

	assert.False(t, clean.Conflicted())
	assert.True(t, conflicted.Conflicted())
	assert.Less(t, conflicted.Confidence, clean.Confidence)
}

func TestMergeMissingFieldIsNotConflict(t *testing.T) {
	m := NewMerger()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := m.Merge([]models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 100, AsOf: now}, "volume": {Value: 5000, AsOf: now}}),
		attempt("beta", map[string]models.FieldValue{"price": {Value: 100, AsOf: now}}),
	}, map[string]float64{"alpha": 0.8, "beta": 0.8})
	require.NoError(t, err)

	assert.False(t, res.Conflicted())
	assert.Equal(t, "alpha", res.Fields["volume"].SourceID)
}

func TestMergeCommutative(t *testing.T) {
	m := NewMerger()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	attempts := []models.AttemptResult{
		attempt("alpha", map[string]models.FieldValue{"price": {Value: 101.0, AsOf: now.Add(-5 * time.Second)}}),
		attempt("beta", map[string]models.FieldValue{"price": {Value: 101.0, AsOf: now.Add(-2 * time.Second)}}),
		attempt("gamma", map[string]models.FieldValue{"price": {Value: 98.5, AsOf: now.Add(-1 * time.Second)}}),
	}
	scores := map[string]float64{"alpha": 0.90, "beta": 0.88, "gamma": 0.89}

	want, err := m.Merge(attempts, scores)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.AttemptResult(nil), attempts...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := m.Merge(shuffled, scores)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
