package stats

import (
	"fmt"
	"math"
)

// Interval bounds in minutes.
const (
	MinInterval     = 5
	MaxInterval     = 1440
	DefaultInterval = 30

	// minDataPoints is the history size below which the controller
	// refuses to guess and returns DefaultInterval.
	minDataPoints = 5
)

// Weights blend the three interval factors. These are tuning defaults,
// overridable from configuration.
type Weights struct {
	Base        float64
	Engagement  float64
	Reliability float64
}

// DefaultWeights returns the stock factor weighting.
func DefaultWeights() Weights {
	return Weights{Base: 0.5, Engagement: 0.3, Reliability: 0.2}
}

// ComputeInterval recommends a refresh interval in minutes for a source
// with the given statistics and consecutive-error count, together with a
// human-readable reason. The result is always within
// [MinInterval, MaxInterval].
func ComputeInterval(snap Snapshot, errorCount int, w Weights) (int, string) {
	if snap.Total < minDataPoints {
		return DefaultInterval, "insufficient data"
	}
	if w.Base == 0 && w.Engagement == 0 && w.Reliability == 0 {
		w = DefaultWeights()
	}

	base, freqLabel := frequencyBase(snap.AvgPerDay)
	engMult, engLabel := engagementMultiplier(snap.EngagementRate)
	relMult, relLabel := reliabilityMultiplier(errorCount)

	interval := base * (w.Base + w.Engagement*engMult + w.Reliability*relMult)

	minutes := int(math.Round(interval))
	if minutes < MinInterval {
		minutes = MinInterval
	}
	if minutes > MaxInterval {
		minutes = MaxInterval
	}

	reason := fmt.Sprintf("%s, %s, %s", freqLabel, engLabel, relLabel)
	return minutes, reason
}

// frequencyBase maps items/day onto a base interval. Within each tier
// the position decreases linearly as frequency rises.
func frequencyBase(perDay float64) (float64, string) {
	switch {
	case perDay >= 20:
		// 5-15 min; anything past 60/day sits on the floor.
		f := math.Min(perDay, 60)
		return 15 - (f-20)/40*10, "very high frequency"
	case perDay >= 5:
		return 60 - (perDay-5)/15*45, "high frequency"
	case perDay >= 1:
		return 180 - (perDay-1)/4*120, "daily"
	case perDay >= 0.14:
		return 720 - (perDay-0.14)/0.86*540, "weekly"
	default:
		return MaxInterval, "rare"
	}
}

// engagementMultiplier rewards sources the user actually interacts with.
func engagementMultiplier(rate float64) (float64, string) {
	switch {
	case rate >= 0.20:
		return 0.5, "high engagement"
	case rate >= 0.10:
		return 0.75, "medium engagement"
	case rate >= 0.03:
		return 1.0, "normal engagement"
	default:
		return 1.5, "low engagement"
	}
}

// reliabilityMultiplier throttles sources by their consecutive-error
// count. Monotonically non-decreasing; one successful fetch resets the
// counter and drops it back to the lowest tier.
func reliabilityMultiplier(errorCount int) (float64, string) {
	switch {
	case errorCount <= 0:
		return 1.0, "healthy"
	case errorCount <= 3:
		return 1.5, "flaky"
	case errorCount <= 10:
		return 2.0, "unreliable"
	default:
		return 4.0, "broken"
	}
}
