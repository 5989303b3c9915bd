package health

import (
	"sort"
	"sync"
	"time"

	"FinArb/internal/domain/models"
)

// Outcome is one attempt summary fed back into the tracker.
type Outcome struct {
	At        time.Time
	Success   bool
	Permanent bool // only meaningful when Success is false
	Latency   time.Duration
	// DataAge is how old the returned data was at fetch time; only
	// meaningful on success.
	DataAge time.Duration
	// FieldsServed/FieldsRequested feed the completeness metric.
	FieldsServed    int
	FieldsRequested int
}

// Profile is a derived metrics snapshot for one (source, capability)
// pair. Computed on read from the window; never drifts independently.
type Profile struct {
	Observations int           `json:"observations"`
	ErrorRate    float64       `json:"error_rate"`   // failures of any kind / attempts
	UptimeRatio  float64       `json:"uptime_ratio"` // successes / (successes + transient failures)
	Completeness float64       `json:"completeness"` // mean served/requested over successes
	MeanLatency  time.Duration `json:"mean_latency"`
	P95Latency   time.Duration `json:"p95_latency"`
	LastSuccess  time.Time     `json:"last_success"`
	// Staleness estimates how old this pair's freshest known datum is.
	Staleness time.Duration `json:"staleness"`
}

// Neutral is the optimistic default profile for a never-tried pair, so a
// newly registered source is still eligible for plans.
func Neutral() Profile {
	return Profile{UptimeRatio: 1, Completeness: 1}
}

type pairKey struct {
	source     string
	capability models.Capability
}

type window struct {
	outcomes []Outcome // oldest first
}

// Tracker maintains bounded sliding windows of attempt outcomes per
// (source, capability) pair. Safe for concurrent use; each engine owns
// its own instance.
type Tracker struct {
	mu       sync.RWMutex
	windows  map[pairKey]*window
	maxCount int
	horizon  time.Duration
	now      func() time.Time
}

type Option func(*Tracker)

// WithWindow bounds the per-pair window by entry count and age horizon;
// whichever bounds first wins.
func WithWindow(maxCount int, horizon time.Duration) Option {
	return func(t *Tracker) {
		if maxCount > 0 {
			t.maxCount = maxCount
		}
		if horizon > 0 {
			t.horizon = horizon
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		windows:  make(map[pairKey]*window),
		maxCount: 200,
		horizon:  15 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends an outcome to the pair's window and evicts entries
// beyond the count bound or older than the horizon.
func (t *Tracker) Record(source string, capability models.Capability, o Outcome) {
	if o.At.IsZero() {
		o.At = t.now()
	}
	key := pairKey{source, capability}

	t.mu.Lock()
	w, ok := t.windows[key]
	if !ok {
		w = &window{}
		t.windows[key] = w
	}
	w.outcomes = append(w.outcomes, o)
	t.evictLocked(w)
	t.mu.Unlock()
}

func (t *Tracker) evictLocked(w *window) {
	cutoff := t.now().Add(-t.horizon)
	i := 0
	for i < len(w.outcomes) && w.outcomes[i].At.Before(cutoff) {
		i++
	}
	if over := len(w.outcomes) - i - t.maxCount; over > 0 {
		i += over
	}
	if i > 0 {
		w.outcomes = append(w.outcomes[:0], w.outcomes[i:]...)
	}
}

// Profile returns the derived metrics snapshot for the pair, computed
// from an immutable copy of the window taken under the lock. A pair with
// no observations gets the neutral profile.
func (t *Tracker) Profile(source string, capability models.Capability) Profile {
	key := pairKey{source, capability}

	t.mu.RLock()
	w, ok := t.windows[key]
	var outcomes []Outcome
	if ok {
		outcomes = make([]Outcome, len(w.outcomes))
		copy(outcomes, w.outcomes)
	}
	t.mu.RUnlock()

	if len(outcomes) == 0 {
		return Neutral()
	}
	return derive(outcomes, t.now())
}

// Pairs lists every tracked (source, capability) pair, for diagnostics.
func (t *Tracker) Pairs() []struct {
	Source     string
	Capability models.Capability
} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]struct {
		Source     string
		Capability models.Capability
	}, 0, len(t.windows))
	for k := range t.windows {
		out = append(out, struct {
			Source     string
			Capability models.Capability
		}{k.source, k.capability})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Capability < out[j].Capability
	})
	return out
}

func derive(outcomes []Outcome, now time.Time) Profile {
	var (
		successes  int
		transients int
		permanents int
		latencies  []time.Duration
		latencySum time.Duration
		complSum   float64
		complN     int
		lastOK     time.Time
		freshest   time.Time
	)
	for _, o := range outcomes {
		latencies = append(latencies, o.Latency)
		latencySum += o.Latency
		switch {
		case o.Success:
			successes++
			if o.At.After(lastOK) {
				lastOK = o.At
			}
			if asOf := o.At.Add(-o.DataAge); asOf.After(freshest) {
				freshest = asOf
			}
			if o.FieldsRequested > 0 {
				complSum += float64(o.FieldsServed) / float64(o.FieldsRequested)
				complN++
			}
		case o.Permanent:
			// permanent failures count toward error rate and
			// completeness, not uptime
			permanents++
			complN++
		default:
			transients++
		}
	}

	p := Profile{
		Observations: len(outcomes),
		ErrorRate:    float64(transients+permanents) / float64(len(outcomes)),
		LastSuccess:  lastOK,
		MeanLatency:  latencySum / time.Duration(len(outcomes)),
	}
	if n := successes + transients; n > 0 {
		p.UptimeRatio = float64(successes) / float64(n)
	} else {
		p.UptimeRatio = 1
	}
	if complN > 0 {
		p.Completeness = complSum / float64(complN)
	} else {
		p.Completeness = 1
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	p.P95Latency = latencies[(len(latencies)*95)/100]
	if !freshest.IsZero() {
		p.Staleness = now.Sub(freshest)
	}
	return p
}
