package mastery

import (
	"fmt"
	"math"
	"time"
)

// stabilityAlpha weights the latest observation in the stability average.
const stabilityAlpha = 0.3

// Model updates mastery estimates with Bayesian Knowledge Tracing.
// It holds no mutable state and is safe for concurrent use.
type Model struct {
	cfg Config
}

// NewModel validates cfg and returns a model bound to it.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// MustNewModel is like NewModel but panics on an invalid configuration.
func MustNewModel(cfg Config) *Model {
	m, err := NewModel(cfg)
	if err != nil {
		panic(fmt.Sprintf("mastery: %v", err))
	}
	return m
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config {
	return m.cfg
}

// Seed returns the initial state of a unit that has never been practiced.
// Out-of-range parameters are clamped.
func (m *Model) Seed(unitID string, p Params) UnitMastery {
	pKnow := clamp01(p.PInit)
	return UnitMastery{
		UnitID:   unitID,
		PKnow:    pKnow,
		PSlip:    clamp01(p.PSlip),
		PGuess:   clamp01(p.PGuess),
		PTransit: clamp01(p.PTransit),
		Color:    ColorFor(pKnow, m.cfg.Thresholds),
	}
}

// SeedDefault seeds a unit with the configured default parameters.
func (m *Model) SeedDefault(unitID string) UnitMastery {
	return m.Seed(unitID, m.cfg.Defaults)
}

// Color maps a mastery probability to its badge using the configured thresholds.
func (m *Model) Color(pKnow float64) Color {
	return ColorFor(pKnow, m.cfg.Thresholds)
}

// Update returns the state after observing one correct or incorrect answer
// at now. The returned transition is nil unless the color changed.
func (m *Model) Update(prev UnitMastery, correct bool, now time.Time) (UnitMastery, *StateTransition) {
	prior := clamp01(prev.PKnow)
	slip := clamp01(prev.PSlip)
	guess := clamp01(prev.PGuess)
	transit := clamp01(prev.PTransit)

	post := Posterior(prior, slip, guess, correct)
	pKnow := Learn(post, transit)

	next := prev
	next.PKnow = pKnow
	next.PSlip = slip
	next.PGuess = guess
	next.PTransit = transit
	next.Delta = pKnow - prior
	next.Stability = clamp01((1-stabilityAlpha)*clamp01(prev.Stability) + stabilityAlpha*(1-math.Abs(next.Delta)))
	next.Color = ColorFor(pKnow, m.cfg.Thresholds)
	next.ReviewCount = prev.ReviewCount + 1
	reviewedAt := now
	next.LastReviewAt = &reviewedAt

	from := prev.Color
	if from == "" {
		from = ColorFor(prior, m.cfg.Thresholds)
	}
	if from == next.Color {
		return next, nil
	}
	return next, &StateTransition{UnitID: prev.UnitID, From: from, To: next.Color}
}

// Posterior applies Bayes' rule to pKnow given one observed answer.
// When the evidence has zero probability the prior is returned unchanged.
func Posterior(pKnow, pSlip, pGuess float64, correct bool) float64 {
	var num, den float64
	if correct {
		num = pKnow * (1 - pSlip)
		den = num + (1-pKnow)*pGuess
	} else {
		num = pKnow * pSlip
		den = num + (1-pKnow)*(1-pGuess)
	}
	if den <= 0 {
		return clamp01(pKnow)
	}
	return clamp01(num / den)
}

// Learn applies the learning transition after one practice opportunity.
func Learn(posterior, pTransit float64) float64 {
	return clamp01(posterior + (1-posterior)*pTransit)
}

func clamp01(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(math.Max(p, 0), 1)
}
