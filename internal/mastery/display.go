package mastery

// Trend is the direction indicator shown next to a mastery badge.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// trendEpsilon is the smallest change in pKnow shown as movement.
const trendEpsilon = 0.005

// ColorFor maps pKnow into its color bucket:
// [0, Orange) red, [Orange, Yellow) orange, [Yellow, Green) yellow, [Green, 1] green.
func ColorFor(pKnow float64, t Thresholds) Color {
	switch {
	case pKnow >= t.Green:
		return ColorGreen
	case pKnow >= t.Yellow:
		return ColorYellow
	case pKnow >= t.Orange:
		return ColorOrange
	default:
		return ColorRed
	}
}

// TrendOf classifies a signed delta for UI trend arrows.
func TrendOf(delta float64) Trend {
	switch {
	case delta > trendEpsilon:
		return TrendUp
	case delta < -trendEpsilon:
		return TrendDown
	default:
		return TrendFlat
	}
}
