package repository

import (
	"context"
	"time"

	"FinArb/internal/domain/models"
)

// Fetcher is the uniform fetch capability every source adapter exposes.
// Implementations must be safe for concurrent use and must honor the
// timeout, returning a transient failure on expiry rather than hanging.
type Fetcher interface {
	Fetch(ctx context.Context, capability models.Capability, entity string, fields []string, timeout time.Duration) (*models.SuccessPayload, error)
}

// AuditSink receives attempt summaries for offline reliability analysis.
type AuditSink interface {
	RecordAttempts(ctx context.Context, attempts []models.AttemptResult) error
	Close() error
}

// ResultPublisher publishes canonical results to downstream consumers.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res *models.CanonicalResult) error
	Close() error
}

// ResultCache caches canonical results keyed by (capability, entity).
type ResultCache interface {
	Get(ctx context.Context, capability models.Capability, entity string) (*models.CanonicalResult, bool)
	Set(ctx context.Context, res *models.CanonicalResult, ttl time.Duration) error
}

// Metrics records arbitration observability signals.
type Metrics interface {
	RecordAttempt(source string, capability models.Capability, outcome string)
	RecordResolve(capability models.Capability, mode string, seconds float64)
	RecordPlanDepth(capability models.Capability, depth int)
	RecordConflict(capability models.Capability, field string)
	RecordCircuit(source string, capability models.Capability, state models.CircuitState)
	RecordError(kind string)
}
