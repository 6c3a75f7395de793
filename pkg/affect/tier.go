package affect

// Tier is a three-level discretization of a 0-1 metric.
type Tier string

const (
	TierLow      Tier = "low"
	TierModerate Tier = "moderate"
	TierHigh     Tier = "high"
)

// Metric tier thresholds.
const (
	LowThreshold  = 0.35
	HighThreshold = 0.7
)

// ClassifyTier maps a metric value to its tier.
// v < 0.35 is low, v < 0.7 is moderate, anything else is high.
func ClassifyTier(v float64) Tier {
	switch {
	case v < LowThreshold:
		return TierLow
	case v < HighThreshold:
		return TierModerate
	default:
		return TierHigh
	}
}

// IntensityLevel describes how strongly an emotion is expressed.
type IntensityLevel string

const (
	IntensityMild     IntensityLevel = "mild"
	IntensityModerate IntensityLevel = "moderate"
	IntensityStrong   IntensityLevel = "strong"
)

// ClassifyIntensity maps an emotion intensity to mild (<0.4),
// moderate (<0.7) or strong.
func ClassifyIntensity(v float64) IntensityLevel {
	switch {
	case v < 0.4:
		return IntensityMild
	case v < 0.7:
		return IntensityModerate
	default:
		return IntensityStrong
	}
}
