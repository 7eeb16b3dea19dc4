package mastery

import "time"

// UnitMastery holds the mastery estimate of one student for one knowledge unit.
type UnitMastery struct {
	UnitID       string     `json:"unitId"`
	PKnow        float64    `json:"pKnow"`
	PSlip        float64    `json:"pSlip"`
	PGuess       float64    `json:"pGuess"`
	PTransit     float64    `json:"pTransit"`
	Stability    float64    `json:"stability"`
	Delta        float64    `json:"delta"`
	Color        Color      `json:"color"`
	LastReviewAt *time.Time `json:"lastReviewAt,omitempty"`
	ReviewCount  int        `json:"reviewCount"`
}

// Params returns the unit's fixed BKT parameters with pKnow as PInit.
func (um *UnitMastery) Params() Params {
	return Params{
		PInit:    um.PKnow,
		PSlip:    um.PSlip,
		PGuess:   um.PGuess,
		PTransit: um.PTransit,
	}
}

// Reviewed reports whether the unit has been practiced at least once.
func (um *UnitMastery) Reviewed() bool {
	return um.ReviewCount > 0
}
