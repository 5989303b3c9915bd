package retrypolicy

import (
	"time"

	"FinArb/internal/domain/models"
)

// Policy is the executor's retry/backoff behavior, isolated from plan
// and merge logic so it is testable on its own. MaxAttempts covers the
// per-source attempts within one plan entry; advancing to the next plan
// entry is the plan builder's fallback chain, not a retry.
type Policy struct {
	MaxAttempts int           `yaml:"max_attempts" default:"1"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
}

// Default is the stock policy: one attempt per plan entry, so the
// fallback chain itself is the retry mechanism.
func Default() Policy {
	return Policy{MaxAttempts: 1, BackoffMin: 100 * time.Millisecond, BackoffMax: 2 * time.Second}
}

// Attempts returns the effective attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay before retry attempt n (n starts at 1 for
// the first retry): exponential from BackoffMin, capped at BackoffMax.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := p.BackoffMin
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Retryable reports whether a failure kind warrants another attempt at
// the same source. Permanent failures never do: the data is not there.
func (p Policy) Retryable(kind models.FailureKind) bool {
	return kind == models.FailureTransient
}
