package models

import (
	"time"
)

// Capability is a class of data an upstream source can serve.
type Capability string

const (
	CapEquityPrice  Capability = "equity-price"
	CapCryptoPrice  Capability = "crypto-price"
	CapFxRate       Capability = "fx-rate"
	CapFundamentals Capability = "fundamentals"
)

// Source describes one registered upstream data origin. Sources are
// registered at engine construction and never destroyed; a misbehaving
// source is excluded via its circuit, not removed.
type Source struct {
	ID           string
	Capabilities []Capability
	Trust        float64 // static trust weight in [0,1]
	Disabled     bool
}

// Serves reports whether the source declares the capability.
func (s Source) Serves(c Capability) bool {
	for _, sc := range s.Capabilities {
		if sc == c {
			return true
		}
	}
	return false
}

// Request is one arbitration request against the engine.
type Request struct {
	Capability Capability
	Entity     string   // target entity identifier, e.g. ticker symbol
	Fields     []string // requested fields; empty means source default set
	// MaxStaleness is the caller's freshness requirement; zero means no
	// requirement.
	MaxStaleness time.Duration
	// Fusion selects multi-source merge instead of single-best fallback.
	Fusion bool
	// MaxFallbackDepth bounds the fallback chain; zero means the engine
	// default.
	MaxFallbackDepth int
}

// FieldValue is one field observation with its own freshness timestamp.
type FieldValue struct {
	Value float64   `json:"value"`
	AsOf  time.Time `json:"as_of"`
}

// SuccessPayload is a successful fetch outcome from one source.
type SuccessPayload struct {
	Fields map[string]FieldValue
}

// PlanEntry is one source selected for execution, with the score that
// earned its position.
type PlanEntry struct {
	Source Source
	Score  float64
}

// PlanExclusion records a capable source left out of the plan and why.
type PlanExclusion struct {
	SourceID string
	Reason   string
}

// ExecutionPlan is the ordered source selection for one request.
// Immutable once built.
type ExecutionPlan struct {
	Capability Capability
	Entity     string
	Fields     []string
	Entries    []PlanEntry
	Excluded   []PlanExclusion
	Fusion     bool
	Deadline   time.Time
}

// AttemptResult is one source's outcome for one request. Exactly one of
// Payload and Failure is set.
type AttemptResult struct {
	SourceID   string
	Capability Capability
	Entity     string
	Latency    time.Duration
	StartedAt  time.Time
	Payload    *SuccessPayload
	Failure    *AttemptFailure
}

// OK reports whether the attempt produced a payload.
func (a AttemptResult) OK() bool { return a.Payload != nil && a.Failure == nil }

// AttemptFailure is a typed per-source failure record.
type AttemptFailure struct {
	SourceID string      `json:"source_id"`
	Kind     FailureKind `json:"kind"`
	Reason   string      `json:"reason"`
}

// Disagreement is one losing value recorded for a conflicted field.
type Disagreement struct {
	SourceID string    `json:"source_id"`
	Value    float64   `json:"value"`
	AsOf     time.Time `json:"as_of"`
}

// FieldResult is the canonical per-field outcome with provenance.
type FieldResult struct {
	Value    float64        `json:"value"`
	AsOf     time.Time      `json:"as_of"`
	SourceID string         `json:"source_id"`
	Conflict bool           `json:"conflict,omitempty"`
	Losers   []Disagreement `json:"disagreements,omitempty"`
}

// CanonicalResult is the engine's single merged, provenance-annotated
// answer to a request. Immutable once constructed.
type CanonicalResult struct {
	Capability Capability             `json:"capability"`
	Entity     string                 `json:"entity"`
	Fields     map[string]FieldResult `json:"fields"`
	Confidence float64                `json:"confidence"`
	Sources    []string               `json:"sources"`
	// Failures carries per-source failures absorbed during execution
	// (fusion partial failures, fallback attempts before the winner).
	Failures   []AttemptFailure `json:"failures,omitempty"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// Conflicted reports whether any field carries a conflict annotation.
func (r *CanonicalResult) Conflicted() bool {
	for _, f := range r.Fields {
		if f.Conflict {
			return true
		}
	}
	return false
}

// CircuitState is the failure-isolation state for one (source, capability)
// pair.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)
