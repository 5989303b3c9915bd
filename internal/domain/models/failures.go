package models

import (
	"errors"
	"fmt"
)

// FailureKind classifies a per-source failure.
type FailureKind string

const (
	// FailureTransient covers timeouts, rate limiting, and transient
	// server errors. Counts against the source's uptime and can trip its
	// circuit.
	FailureTransient FailureKind = "transient"
	// FailurePermanent means the entity or fields are not servable by
	// that source. Counts against completeness, never trips the circuit.
	FailurePermanent FailureKind = "permanent"
)

// SourceError is the error shape source adapters return from Fetch.
type SourceError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Transient wraps an error as a transient source failure.
func Transient(reason string, err error) *SourceError {
	return &SourceError{Kind: FailureTransient, Reason: reason, Err: err}
}

// Permanent wraps an error as a permanent source failure.
func Permanent(reason string, err error) *SourceError {
	return &SourceError{Kind: FailurePermanent, Reason: reason, Err: err}
}

// Classify maps an arbitrary fetch error to a failure kind. Unknown
// errors and context expiry count as transient: the source may well serve
// the next request.
func Classify(err error) FailureKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return FailureTransient
}

// FailureReason extracts a short human-readable reason from a fetch error.
func FailureReason(err error) string {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Reason
	}
	return err.Error()
}

// ErrNoCapableSource is returned when no registered source can serve the
// requested capability, or all candidates are circuit-open.
var ErrNoCapableSource = errors.New("no capable source")

// AllSourcesFailedError is the terminal fallback-mode failure; it carries
// every attempt for diagnosis.
type AllSourcesFailedError struct {
	Attempts []AttemptResult
}

func (e *AllSourcesFailedError) Error() string {
	return fmt.Sprintf("all %d planned sources failed", len(e.Attempts))
}

// Failures lists the per-source failure records of the failed attempts.
func (e *AllSourcesFailedError) Failures() []AttemptFailure {
	out := make([]AttemptFailure, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Failure != nil {
			out = append(out, *a.Failure)
		}
	}
	return out
}
