package mastery

import (
	"errors"
	"fmt"
	"math"
)

// Color is the discrete mastery badge shown for a knowledge unit.
type Color string

const (
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorYellow Color = "yellow"
	ColorGreen  Color = "green"
)

// Rank orders colors from red (0) to green (3). Unknown colors rank -1.
func (c Color) Rank() int {
	switch c {
	case ColorRed:
		return 0
	case ColorOrange:
		return 1
	case ColorYellow:
		return 2
	case ColorGreen:
		return 3
	}
	return -1
}

// StateTransition records a color change for display and event logging.
type StateTransition struct {
	UnitID string
	From   Color
	To     Color
}

// Improved reports whether the transition moved toward green.
func (t *StateTransition) Improved() bool {
	return t.To.Rank() > t.From.Rank()
}

// ErrInvalidConfig is returned when a mastery configuration is unusable.
var ErrInvalidConfig = errors.New("mastery: invalid configuration")

// Params are the per-unit Bayesian Knowledge Tracing parameters.
type Params struct {
	PInit    float64 `json:"p_init" yaml:"p_init"`
	PSlip    float64 `json:"p_slip" yaml:"p_slip"`
	PGuess   float64 `json:"p_guess" yaml:"p_guess"`
	PTransit float64 `json:"p_transit" yaml:"p_transit"`
}

// DefaultParams are the seed parameters for units that do not carry their own.
func DefaultParams() Params {
	return Params{
		PInit:    0.2,
		PSlip:    0.1,
		PGuess:   0.2,
		PTransit: 0.15,
	}
}

// Validate checks that every probability lies in [0, 1].
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"p_init", p.PInit},
		{"p_slip", p.PSlip},
		{"p_guess", p.PGuess},
		{"p_transit", p.PTransit},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s = %v outside [0, 1]", ErrInvalidConfig, f.name, f.v)
		}
	}
	return nil
}

// Thresholds are the lower bounds of the orange, yellow and green buckets.
type Thresholds struct {
	Orange float64 `json:"orange" yaml:"orange"`
	Yellow float64 `json:"yellow" yaml:"yellow"`
	Green  float64 `json:"green" yaml:"green"`
}

// DefaultThresholds splits [0, 1] into four equal buckets.
func DefaultThresholds() Thresholds {
	return Thresholds{Orange: 0.25, Yellow: 0.5, Green: 0.75}
}

// Validate checks 0 <= Orange <= Yellow <= Green <= 1.
func (t Thresholds) Validate() error {
	if !(0 <= t.Orange && t.Orange <= t.Yellow && t.Yellow <= t.Green && t.Green <= 1) {
		return fmt.Errorf("%w: thresholds %+v are not ordered within [0, 1]", ErrInvalidConfig, t)
	}
	return nil
}

// Config is the immutable configuration of a Model.
type Config struct {
	Defaults   Params
	Thresholds Thresholds
}

// DefaultConfig returns the default seed parameters and thresholds.
func DefaultConfig() Config {
	return Config{Defaults: DefaultParams(), Thresholds: DefaultThresholds()}
}

// Validate checks both the defaults and the thresholds.
func (c Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return err
	}
	return c.Thresholds.Validate()
}
