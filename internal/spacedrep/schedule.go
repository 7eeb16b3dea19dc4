package spacedrep

import (
	"errors"
	"fmt"
	"math"
)

// DefaultWeights are the FSRS v4 default weights.
//
//	w[0..3]   initial stability per grade
//	w[4..7]   difficulty (initial, grade slope, update slope, mean reversion)
//	w[8..10]  recall stability
//	w[11..14] forget stability
//	w[15]     hard penalty
//	w[16]     easy bonus
var DefaultWeights = [17]float64{
	0.4, 0.6, 2.4, 5.8,
	4.93, 0.94, 0.86, 0.01,
	1.49, 0.14, 0.94,
	2.18, 0.05, 0.34, 1.26,
	0.29,
	2.61,
}

// DefaultTargetRetention is the recall probability intervals are scheduled for.
const DefaultTargetRetention = 0.9

// MaxIntervalDays caps scheduled intervals at 100 years.
const MaxIntervalDays = 36500

const (
	// The forgetting curve R(t, S) = (1 + t/(9S))^-1 has decay -1 and
	// factor 0.9^(1/decay) - 1 = 1/9.
	curveDecay  = -1.0
	curveFactor = 1.0 / 9.0

	minDifficulty = 1.0
	maxDifficulty = 10.0

	// MinStability is the floor applied to every stability the model produces.
	MinStability = 0.1
)

// ErrInvalidParams is returned when a parameter set cannot drive the scheduler.
var ErrInvalidParams = errors.New("spacedrep: invalid parameters")

// Params is the fixed configuration shared by every scheduling computation.
type Params struct {
	Weights         [17]float64
	TargetRetention float64
	MaximumInterval int
}

// DefaultParams returns the FSRS v4 defaults with 90% target retention.
func DefaultParams() Params {
	return Params{
		Weights:         DefaultWeights,
		TargetRetention: DefaultTargetRetention,
		MaximumInterval: MaxIntervalDays,
	}
}

// Validate checks that p describes a usable model.
func (p Params) Validate() error {
	for i, w := range p.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: w[%d] is not finite", ErrInvalidParams, i)
		}
	}
	for i := 0; i < 4; i++ {
		if p.Weights[i] <= 0 {
			return fmt.Errorf("%w: initial stability w[%d] = %f must be positive", ErrInvalidParams, i, p.Weights[i])
		}
	}
	if p.TargetRetention <= 0 || p.TargetRetention >= 1 {
		return fmt.Errorf("%w: target retention %f outside (0, 1)", ErrInvalidParams, p.TargetRetention)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("%w: maximum interval %d < 1", ErrInvalidParams, p.MaximumInterval)
	}
	return nil
}
