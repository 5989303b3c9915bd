package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"FinArb/internal/domain/models"
)

const capEq = models.CapEquityPrice

func TestOpensAfterConsecutiveTransients(t *testing.T) {
	b := New(WithThreshold(3))

	for i := 0; i < 2; i++ {
		b.OnFailure("alpha", capEq, models.FailureTransient)
	}
	assert.Equal(t, models.CircuitClosed, b.State("alpha", capEq))
	assert.True(t, b.Allow("alpha", capEq))

	b.OnFailure("alpha", capEq, models.FailureTransient)
	assert.Equal(t, models.CircuitOpen, b.State("alpha", capEq))
	assert.False(t, b.Allow("alpha", capEq))
}

func TestPermanentFailuresNeverOpen(t *testing.T) {
	b := New(WithThreshold(2))

	for i := 0; i < 10; i++ {
		b.OnFailure("alpha", capEq, models.FailurePermanent)
	}
	assert.Equal(t, models.CircuitClosed, b.State("alpha", capEq))
	assert.True(t, b.Allow("alpha", capEq))
}

func TestSuccessResetsStreak(t *testing.T) {
	b := New(WithThreshold(3))

	b.OnFailure("alpha", capEq, models.FailureTransient)
	b.OnFailure("alpha", capEq, models.FailureTransient)
	b.OnSuccess("alpha", capEq)
	b.OnFailure("alpha", capEq, models.FailureTransient)
	b.OnFailure("alpha", capEq, models.FailureTransient)

	assert.Equal(t, models.CircuitClosed, b.State("alpha", capEq))
}

func TestHalfOpenAdmitsOneProbe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(1),
		WithCooldown(30*time.Second, 10*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	b.OnFailure("alpha", capEq, models.FailureTransient)
	assert.False(t, b.Allow("alpha", capEq))

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow("alpha", capEq), "first caller after cooldown gets the probe")
	assert.Equal(t, models.CircuitHalfOpen, b.State("alpha", capEq))
	assert.False(t, b.Allow("alpha", capEq), "second caller refused while probe in flight")

	b.OnSuccess("alpha", capEq)
	assert.Equal(t, models.CircuitClosed, b.State("alpha", capEq))
	assert.True(t, b.Allow("alpha", capEq))
}

func TestFailedProbeDoublesCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(1),
		WithCooldown(30*time.Second, 10*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	b.OnFailure("alpha", capEq, models.FailureTransient)
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow("alpha", capEq))
	b.OnFailure("alpha", capEq, models.FailureTransient)
	assert.Equal(t, models.CircuitOpen, b.State("alpha", capEq))

	// original cooldown is not enough anymore
	now = now.Add(31 * time.Second)
	assert.False(t, b.Allow("alpha", capEq))
	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow("alpha", capEq))
}

func TestCooldownCapped(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(1),
		WithCooldown(30*time.Second, time.Minute),
		WithClock(func() time.Time { return now }),
	)

	b.OnFailure("alpha", capEq, models.FailureTransient)
	for i := 0; i < 5; i++ {
		now = now.Add(2 * time.Minute)
		assert.True(t, b.Allow("alpha", capEq))
		b.OnFailure("alpha", capEq, models.FailureTransient)
	}

	// cooldown never exceeds the cap
	now = now.Add(61 * time.Second)
	assert.True(t, b.Allow("alpha", capEq))
}

func TestEligibleAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(1),
		WithCooldown(30*time.Second, 10*time.Minute),
		WithClock(func() time.Time { return now }),
	)

	assert.True(t, b.Eligible("alpha", capEq), "untracked pair is eligible")

	b.OnFailure("alpha", capEq, models.FailureTransient)
	assert.False(t, b.Eligible("alpha", capEq), "open and cooling")

	// still open, but plannable so the probe can fire
	now = now.Add(31 * time.Second)
	assert.True(t, b.Eligible("alpha", capEq))
	assert.Equal(t, models.CircuitOpen, b.State("alpha", capEq))

	assert.True(t, b.Allow("alpha", capEq))
	assert.Equal(t, models.CircuitHalfOpen, b.State("alpha", capEq))
	assert.True(t, b.Eligible("alpha", capEq), "half-open stays plannable")
}

func TestPairsIsolated(t *testing.T) {
	b := New(WithThreshold(1))

	b.OnFailure("alpha", capEq, models.FailureTransient)
	assert.Equal(t, models.CircuitOpen, b.State("alpha", capEq))
	assert.Equal(t, models.CircuitClosed, b.State("alpha", models.CapFxRate))
	assert.Equal(t, models.CircuitClosed, b.State("beta", capEq))
}

func TestTransitionHook(t *testing.T) {
	var states []models.CircuitState
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New(
		WithThreshold(1),
		WithCooldown(time.Second, time.Minute),
		WithClock(func() time.Time { return now }),
		WithTransitionHook(func(_ string, _ models.Capability, s models.CircuitState) {
			states = append(states, s)
		}),
	)

	b.OnFailure("alpha", capEq, models.FailureTransient) // closed -> open
	now = now.Add(2 * time.Second)
	b.Allow("alpha", capEq)     // open -> half-open
	b.OnSuccess("alpha", capEq) // half-open -> closed

	assert.Equal(t, []models.CircuitState{
		models.CircuitOpen, models.CircuitHalfOpen, models.CircuitClosed,
	}, states)
}
