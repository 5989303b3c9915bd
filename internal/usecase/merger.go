package usecase

import (
	"errors"
	"math"
	"sort"
	"time"

	"FinArb/internal/domain/models"
)

var errNothingToMerge = errors.New("no successful results to merge")

// Merger reconciles successful attempt results into one canonical
// record. Deterministic for identical inputs: the result never depends
// on attempt completion order beyond the documented policy.
type Merger struct {
	// stalenessTol is the timestamp gap beyond which the fresher value
	// wins outright.
	stalenessTol time.Duration
	// scoreEpsilon is the band within which two source scores count as
	// tied.
	scoreEpsilon float64
	// valueEpsilon is the relative difference beyond which two numeric
	// values disagree.
	valueEpsilon float64
	// conflictPenalty scales confidence down when any field conflicts.
	conflictPenalty float64
}

type MergeOption func(*Merger)

func WithStalenessTolerance(d time.Duration) MergeOption {
	return func(m *Merger) {
		if d > 0 {
			m.stalenessTol = d
		}
	}
}

func WithScoreEpsilon(eps float64) MergeOption {
	return func(m *Merger) {
		if eps > 0 {
			m.scoreEpsilon = eps
		}
	}
}

func WithValueEpsilon(eps float64) MergeOption {
	return func(m *Merger) {
		if eps > 0 {
			m.valueEpsilon = eps
		}
	}
}

func WithConflictPenalty(p float64) MergeOption {
	return func(m *Merger) {
		if p > 0 && p <= 1 {
			m.conflictPenalty = p
		}
	}
}

func NewMerger(opts ...MergeOption) *Merger {
	m := &Merger{
		stalenessTol:    10 * time.Second,
		scoreEpsilon:    0.02,
		valueEpsilon:    0.005, // 0.5% relative
		conflictPenalty: 0.5,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type candidate struct {
	sourceID string
	value    float64
	asOf     time.Time
	score    float64
}

// Merge combines the successful subset of attempts into one canonical
// result. scores carries the current per-source scores from the plan.
func (m *Merger) Merge(attempts []models.AttemptResult, scores map[string]float64) (*models.CanonicalResult, error) {
	successes := make([]models.AttemptResult, 0, len(attempts))
	for _, a := range attempts {
		if a.OK() {
			successes = append(successes, a)
		}
	}
	if len(successes) == 0 {
		return nil, errNothingToMerge
	}
	// canonical input order: merging must commute over attempt order
	sort.Slice(successes, func(i, j int) bool { return successes[i].SourceID < successes[j].SourceID })

	res := &models.CanonicalResult{
		Capability: successes[0].Capability,
		Entity:     successes[0].Entity,
		Fields:     make(map[string]models.FieldResult),
	}
	for _, s := range successes {
		res.Sources = append(res.Sources, s.SourceID)
	}

	if len(successes) == 1 {
		only := successes[0]
		for name, fv := range only.Payload.Fields {
			res.Fields[name] = models.FieldResult{Value: fv.Value, AsOf: fv.AsOf, SourceID: only.SourceID}
		}
		res.Confidence = clamp01(scores[only.SourceID])
		return res, nil
	}

	byField := make(map[string][]candidate)
	for _, s := range successes {
		for name, fv := range s.Payload.Fields {
			byField[name] = append(byField[name], candidate{
				sourceID: s.SourceID,
				value:    fv.Value,
				asOf:     fv.AsOf,
				score:    scores[s.SourceID],
			})
		}
	}

	var (
		confSum   float64
		conflicts bool
	)
	for name, cands := range byField {
		fr := m.resolveField(cands)
		if fr.Conflict {
			conflicts = true
		}
		res.Fields[name] = fr
		confSum += clamp01(scoreOf(cands, fr.SourceID))
	}
	res.Confidence = confSum / float64(len(res.Fields))
	if conflicts {
		res.Confidence *= m.conflictPenalty
	}
	return res, nil
}

// resolveField applies the resolution policy in order: freshest wins
// when the timestamp gap exceeds the staleness tolerance; otherwise the
// higher-score source wins; a score tie with a real value disagreement
// is flagged as a conflict but still yields the higher-score value.
// A field missing from some sources is not a conflict.
func (m *Merger) resolveField(cands []candidate) models.FieldResult {
	if len(cands) == 1 {
		c := cands[0]
		return models.FieldResult{Value: c.value, AsOf: c.asOf, SourceID: c.sourceID}
	}

	// (a) freshness rule
	byAge := append([]candidate(nil), cands...)
	sort.Slice(byAge, func(i, j int) bool {
		if !byAge[i].asOf.Equal(byAge[j].asOf) {
			return byAge[i].asOf.After(byAge[j].asOf)
		}
		return byAge[i].sourceID < byAge[j].sourceID
	})
	if byAge[0].asOf.Sub(byAge[1].asOf) > m.stalenessTol {
		w := byAge[0]
		return models.FieldResult{Value: w.value, AsOf: w.asOf, SourceID: w.sourceID}
	}

	// (b) score rule
	byScore := append([]candidate(nil), cands...)
	sort.Slice(byScore, func(i, j int) bool {
		if byScore[i].score != byScore[j].score {
			return byScore[i].score > byScore[j].score
		}
		return byScore[i].sourceID < byScore[j].sourceID
	})
	winner := byScore[0]
	fr := models.FieldResult{Value: winner.value, AsOf: winner.asOf, SourceID: winner.sourceID}

	// (c) tied scores with disagreeing values: conflict
	for _, c := range byScore[1:] {
		if math.Abs(winner.score-c.score) <= m.scoreEpsilon && relDiff(winner.value, c.value) > m.valueEpsilon {
			fr.Conflict = true
			break
		}
	}
	if fr.Conflict {
		for _, c := range byScore {
			if c.sourceID == winner.sourceID {
				continue
			}
			if relDiff(winner.value, c.value) > m.valueEpsilon {
				fr.Losers = append(fr.Losers, models.Disagreement{SourceID: c.sourceID, Value: c.value, AsOf: c.asOf})
			}
		}
	}
	return fr
}

func scoreOf(cands []candidate, sourceID string) float64 {
	for _, c := range cands {
		if c.sourceID == sourceID {
			return c.score
		}
	}
	return 0
}

// relDiff compares floats by relative difference, never exact equality.
func relDiff(a, b float64) float64 {
	if a == b {
		return 0
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
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
