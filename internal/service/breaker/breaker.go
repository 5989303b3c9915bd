package breaker

import (
	"sync"
	"time"

	"FinArb/internal/domain/models"
)

// Breaker implements the per-(source, capability) circuit state machine:
// closed -> open after a run of consecutive transient failures, open ->
// half-open after the cooldown elapses (one probe allowed), half-open ->
// closed on probe success or back to open with a doubled cooldown on
// probe failure. Permanent failures never move the circuit.
type Breaker struct {
	mu       sync.Mutex
	circuits map[pairKey]*circuit

	threshold   int
	cooldown    time.Duration
	maxCooldown time.Duration
	now         func() time.Time

	onTransition func(source string, capability models.Capability, state models.CircuitState)
}

type pairKey struct {
	source     string
	capability models.Capability
}

type circuit struct {
	state          models.CircuitState
	consecFailures int
	openedAt       time.Time
	cooldown       time.Duration
	probing        bool
}

type Option func(*Breaker)

// WithThreshold sets the consecutive-transient-failure count that opens
// a circuit.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets the initial open cooldown and its doubling cap.
func WithCooldown(initial, max time.Duration) Option {
	return func(b *Breaker) {
		if initial > 0 {
			b.cooldown = initial
		}
		if max > 0 {
			b.maxCooldown = max
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook installs a callback invoked on every state change.
func WithTransitionHook(fn func(string, models.Capability, models.CircuitState)) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

func New(opts ...Option) *Breaker {
	b := &Breaker{
		circuits:    make(map[pairKey]*circuit),
		threshold:   5,
		cooldown:    30 * time.Second,
		maxCooldown: 10 * time.Minute,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) get(key pairKey) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{state: models.CircuitClosed, cooldown: b.cooldown}
		b.circuits[key] = c
	}
	return c
}

// Allow reports whether an attempt against the pair may proceed. An open
// circuit whose cooldown has elapsed moves to half-open and admits
// exactly one probe; further callers are refused until that probe
// settles.
func (b *Breaker) Allow(source string, capability models.Capability) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(pairKey{source, capability})
	switch c.state {
	case models.CircuitClosed:
		return true
	case models.CircuitOpen:
		if b.now().Sub(c.openedAt) < c.cooldown {
			return false
		}
		c.state = models.CircuitHalfOpen
		c.probing = true
		b.notify(source, capability, c.state)
		return true
	case models.CircuitHalfOpen:
		if c.probing {
			return false
		}
		c.probing = true
		return true
	}
	return false
}

// OnSuccess records a successful attempt: the circuit closes and the
// failure streak and cooldown reset.
func (b *Breaker) OnSuccess(source string, capability models.Capability) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(pairKey{source, capability})
	prev := c.state
	c.state = models.CircuitClosed
	c.consecFailures = 0
	c.cooldown = b.cooldown
	c.probing = false
	if prev != c.state {
		b.notify(source, capability, c.state)
	}
}

// OnFailure records a failed attempt. Transient failures extend the
// streak and may open the circuit; a failed half-open probe reopens with
// a doubled cooldown, capped. Permanent failures leave the circuit
// untouched.
func (b *Breaker) OnFailure(source string, capability models.Capability, kind models.FailureKind) {
	if kind == models.FailurePermanent {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.get(pairKey{source, capability})
	switch c.state {
	case models.CircuitHalfOpen:
		c.state = models.CircuitOpen
		c.openedAt = b.now()
		c.cooldown *= 2
		if c.cooldown > b.maxCooldown {
			c.cooldown = b.maxCooldown
		}
		c.probing = false
		b.notify(source, capability, c.state)
	case models.CircuitClosed:
		c.consecFailures++
		if c.consecFailures >= b.threshold {
			c.state = models.CircuitOpen
			c.openedAt = b.now()
			b.notify(source, capability, c.state)
		}
	}
}

// Eligible reports whether the pair may be planned: false only for an
// open circuit still inside its cooldown. An open circuit past its
// cooldown is plannable again so its probe can fire; the open ->
// half-open transition itself stays in Allow, which admits the single
// probe.
func (b *Breaker) Eligible(source string, capability models.Capability) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[pairKey{source, capability}]
	if !ok || c.state != models.CircuitOpen {
		return true
	}
	return b.now().Sub(c.openedAt) >= c.cooldown
}

// State returns the current circuit state for the pair.
func (b *Breaker) State(source string, capability models.Capability) models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[pairKey{source, capability}]
	if !ok {
		return models.CircuitClosed
	}
	// Expired cooldowns still report open; the transition to half-open
	// happens on the next Allow so probe accounting stays in one place.
	return c.state
}

func (b *Breaker) notify(source string, capability models.Capability, state models.CircuitState) {
	if b.onTransition != nil {
		b.onTransition(source, capability, state)
	}
}
