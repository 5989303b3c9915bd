package scoring

import (
	"time"

	"FinArb/internal/domain/models"
	"FinArb/internal/service/health"
)

// Weights holds the relative importance of each scoring factor. Weights
// are configuration, not policy baked into the function; defaults favor
// uptime and freshness.
type Weights struct {
	Freshness    float64 `yaml:"freshness" default:"0.25"`
	Latency      float64 `yaml:"latency" default:"0.15"`
	Uptime       float64 `yaml:"uptime" default:"0.3"`
	Completeness float64 `yaml:"completeness" default:"0.15"`
	Trust        float64 `yaml:"trust" default:"0.15"`
}

func (w Weights) total() float64 {
	return w.Freshness + w.Latency + w.Uptime + w.Completeness + w.Trust
}

// Scorer maps (source, profile, request) to a scalar composite score in
// [0, 1]. Pure and deterministic given its inputs; every factor is
// normalized to [0, 1] and the composite is monotonic in each factor's
// favorable direction.
type Scorer struct {
	weights Weights
	// latencyBaseline normalizes the latency factor: a mean latency
	// equal to the baseline scores 0.5.
	latencyBaseline time.Duration
	// freshnessHalfLife controls the inverse decay of the freshness
	// factor: data this old scores 0.5.
	freshnessHalfLife time.Duration
}

type Option func(*Scorer)

func WithLatencyBaseline(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.latencyBaseline = d
		}
	}
}

func WithFreshnessHalfLife(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.freshnessHalfLife = d
		}
	}
}

func New(weights Weights, opts ...Option) *Scorer {
	s := &Scorer{
		weights:           weights,
		latencyBaseline:   500 * time.Millisecond,
		freshnessHalfLife: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the composite score for one candidate. A request's
// freshness requirement tightens the freshness decay: data older than
// the requirement scores zero on that factor.
func (s *Scorer) Score(src models.Source, profile health.Profile, req models.Request) float64 {
	total := s.weights.total()
	if total <= 0 {
		return clamp01(src.Trust)
	}

	sum := s.weights.Freshness*s.freshness(profile, req) +
		s.weights.Latency*s.latency(profile) +
		s.weights.Uptime*clamp01(profile.UptimeRatio) +
		s.weights.Completeness*clamp01(profile.Completeness) +
		s.weights.Trust*clamp01(src.Trust)
	return sum / total
}

// Less is the deterministic total order over scored candidates: higher
// score first, then higher static trust, then lexical source id. Plan
// generation sorts with it so identical inputs always yield identical
// plans.
func Less(a, b models.PlanEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Source.Trust != b.Source.Trust {
		return a.Source.Trust > b.Source.Trust
	}
	return a.Source.ID < b.Source.ID
}

func (s *Scorer) freshness(p health.Profile, req models.Request) float64 {
	if p.Observations == 0 || p.Staleness <= 0 {
		// never tried, or fresh-as-of-now: optimistic
		return 1
	}
	if req.MaxStaleness > 0 && p.Staleness > req.MaxStaleness {
		return 0
	}
	// inverse decay: 1 at age 0, 0.5 at the half-life
	return 1 / (1 + float64(p.Staleness)/float64(s.freshnessHalfLife))
}

func (s *Scorer) latency(p health.Profile) float64 {
	if p.MeanLatency <= 0 {
		return 1
	}
	return 1 / (1 + float64(p.MeanLatency)/float64(s.latencyBaseline))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
