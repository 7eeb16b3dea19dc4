package spacedrep

import (
	"fmt"
	"math"
	"time"
)

// Scheduler computes the next memory state of a card after a review.
// It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	p Params
	// d0Good is the initial difficulty for a Good grade, the mean-reversion target.
	d0Good float64
}

// NewScheduler validates p and returns a scheduler bound to it.
func NewScheduler(p Params) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{p: p}
	s.d0Good = s.initDifficulty(Good)
	return s, nil
}

// MustNewScheduler is like NewScheduler but panics on invalid parameters.
func MustNewScheduler(p Params) *Scheduler {
	s, err := NewScheduler(p)
	if err != nil {
		panic(fmt.Sprintf("spacedrep: %v", err))
	}
	return s
}

// Params returns the parameters the scheduler was built with.
func (s *Scheduler) Params() Params {
	return s.p
}

// Next returns the memory state after grading prev with g at now.
// The result depends only on its arguments.
func (s *Scheduler) Next(prev MemoryState, g Grade, now time.Time) MemoryState {
	g = clampGrade(g)
	elapsed := elapsedDays(prev.LastReviewAt, now)

	next := prev
	interval := 0

	if prev.Lifecycle == New {
		next.Difficulty = s.initDifficulty(g)
		next.Stability = math.Max(s.p.Weights[g-1], MinStability)
		if g == Again {
			next.Lifecycle = Relearning
		} else {
			next.Lifecycle = Review
			interval = s.nextInterval(next.Stability)
		}
	} else {
		stability := math.Max(prev.Stability, MinStability)
		r := retrievability(elapsed, stability)
		d := s.nextDifficulty(prev.Difficulty, g)

		if g == Again {
			next.Stability = s.forgetStability(d, stability, r)
			if prev.Lifecycle == Review {
				next.Lifecycle = Relearning
			} else {
				next.Lifecycle = Learning
			}
		} else {
			next.Stability = s.recallStability(d, stability, r, g)
			next.Lifecycle = Review
		}
		next.Stability = math.Max(next.Stability, MinStability)
		next.Difficulty = d
		interval = s.nextInterval(next.Stability)
	}

	reviewedAt := now
	next.LastReviewAt = &reviewedAt
	next.ElapsedDays = elapsed
	next.ScheduledDays = interval
	next.DueAt = now.Add(time.Duration(interval) * 24 * time.Hour)
	next.Reps = prev.Reps + 1
	if g == Again {
		next.Lapses = prev.Lapses + 1
	}
	return next
}

// Retrievability returns R(t, S) for a card last reviewed t days ago.
func (s *Scheduler) Retrievability(elapsedDays, stability float64) float64 {
	return retrievability(elapsedDays, stability)
}

// Interval returns the scheduled interval in days for the given stability.
func (s *Scheduler) Interval(stability float64) int {
	return s.nextInterval(stability)
}

// initDifficulty returns D0(G) = clamp(w[4] - (G-3)*w[5], 1, 10).
func (s *Scheduler) initDifficulty(g Grade) float64 {
	w := &s.p.Weights
	return clampDifficulty(w[4] - float64(g-3)*w[5])
}

// nextDifficulty returns D' = clamp(w[7]*D0(Good) + (1-w[7])*(D - w[6]*(G-3)), 1, 10).
func (s *Scheduler) nextDifficulty(d float64, g Grade) float64 {
	w := &s.p.Weights
	return clampDifficulty(w[7]*s.d0Good + (1-w[7])*(d-w[6]*float64(g-3)))
}

// forgetStability computes the stability after a lapse.
// S'_f = w[11] * D^(-w[12]) * ((S+1)^w[13] - 1) * e^((1-R)*w[14])
func (s *Scheduler) forgetStability(d, stability, r float64) float64 {
	w := &s.p.Weights
	return w[11] *
		math.Pow(d, -w[12]) *
		(math.Pow(stability+1, w[13]) - 1) *
		math.Exp((1-r)*w[14])
}

// recallStability computes the stability after a successful recall.
// S'_r = S * (1 + e^w[8] * (11-D) * S^(-w[9]) * (e^((1-R)*w[10]) - 1) * hardPenalty * easyBonus)
func (s *Scheduler) recallStability(d, stability, r float64, g Grade) float64 {
	w := &s.p.Weights
	hardPenalty := 1.0
	if g == Hard {
		hardPenalty = w[15]
	}
	easyBonus := 1.0
	if g == Easy {
		easyBonus = w[16]
	}
	return stability * (1 + math.Exp(w[8])*
		(11-d)*
		math.Pow(stability, -w[9])*
		(math.Exp((1-r)*w[10])-1)*
		hardPenalty*easyBonus)
}

// nextInterval returns I = round((S / w[0]) * (R*^(1/w[0]) - 1)),
// clamped to [1, maximum].
func (s *Scheduler) nextInterval(stability float64) int {
	w0 := s.p.Weights[0]
	return s.clampInterval(stability / w0 * (math.Pow(s.p.TargetRetention, 1/w0) - 1))
}

// clampInterval rounds a raw interval in days into [1, maximum].
func (s *Scheduler) clampInterval(days float64) int {
	if math.IsNaN(days) {
		return 1
	}
	rounded := math.Round(days)
	if rounded < 1 {
		return 1
	}
	if rounded > float64(s.p.MaximumInterval) {
		return s.p.MaximumInterval
	}
	return int(rounded)
}

// retrievability computes R(t, S) = (1 + factor*t/S)^decay, or 0 for S <= 0.
func retrievability(elapsed, stability float64) float64 {
	if stability <= 0 {
		return 0
	}
	r := math.Pow(1+curveFactor*elapsed/stability, curveDecay)
	return math.Min(math.Max(r, 0), 1)
}

func elapsedDays(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 0
	}
	d := now.Sub(*last).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}

func clampGrade(g Grade) Grade {
	if g < Again {
		return Again
	}
	if g > Easy {
		return Easy
	}
	return g
}
