// Package scoring holds the pure numeric models that turn raw view counters
// into comparable scores. Nothing here touches the network or any shared
// state.
package scoring

import (
	"math"
	"sort"
)

const (
	// MaturityHours is the age at which a video is assumed to have reached
	// its expected view plateau (one week).
	MaturityHours = 168

	// MinExpectedViews floors the expected-view estimate so score division
	// never blows up for brand-new channels.
	MinExpectedViews = 100

	// timeFactorFloor keeps minutes-old videos from reporting implausibly
	// inflated scores purely from a tiny time denominator.
	timeFactorFloor = 0.3

	// FeedVelocityFloorHours is the hour floor for the general feed.
	FeedVelocityFloorHours = 1.0

	// SpikeVelocityFloorHours is the hour floor for spike detection.
	SpikeVelocityFloorHours = 0.5
)

// TimeFactor models how far along its view-accrual curve a video is. Views
// accrue with decreasing marginal rate after publish; the square-root shape
// captures fast-then-slow growth. The result is always within [0.3, 1.0]
// for any non-negative age.
func TimeFactor(hoursSinceUpload float64) float64 {
	if hoursSinceUpload < 0 {
		hoursSinceUpload = 0
	}
	f := math.Sqrt(hoursSinceUpload / MaturityHours)
	if f < timeFactorFloor {
		return timeFactorFloor
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

// ExpectedViews is the time-adjusted view level a video of this age on this
// channel should have. Always at least MinExpectedViews.
func ExpectedViews(baselineAvgViews, hoursSinceUpload float64) float64 {
	expected := baselineAvgViews * TimeFactor(hoursSinceUpload)
	if expected < MinExpectedViews {
		return MinExpectedViews
	}
	return expected
}

// ViralScore is observed views over expected views, to one decimal place.
// 1.0 means "as expected", above 1.0 means over-performing.
func ViralScore(currentViews, expectedViews float64) float64 {
	if expectedViews <= 0 {
		return 0
	}
	return math.Round(currentViews/expectedViews*10) / 10
}

// Velocity is views per hour of age. floorHours guards against division
// spikes on seconds-old items; it varies by pipeline (0.5h for spike
// detection, 1h for the general feed).
func Velocity(currentViews, hoursSinceUpload, floorHours float64) float64 {
	h := hoursSinceUpload
	if h < floorHours {
		h = floorHours
	}
	return currentViews / h
}

// FreshnessBonus is a step function of age rewarding genuinely recent
// spikes over merely high-velocity old hits.
func FreshnessBonus(hoursSinceUpload float64) float64 {
	switch {
	case hoursSinceUpload < 24:
		return 2.0
	case hoursSinceUpload < 72:
		return 1.5
	default:
		return 1.0
	}
}

// SpikeScore surfaces rapidly-accelerating content ahead of its expected
// plateau. The log dampens runaway performance-ratio outliers.
func SpikeScore(currentViews, hoursSinceUpload, baselineAvgViews float64) float64 {
	velocity := Velocity(currentViews, hoursSinceUpload, SpikeVelocityFloorHours)

	denom := baselineAvgViews
	if denom < MinExpectedViews {
		denom = MinExpectedViews
	}
	ratio := currentViews / denom

	return velocity * math.Log10(ratio+2) * FreshnessBonus(hoursSinceUpload)
}

// Median returns the median of values, averaging the two middle values for
// even counts. Preferred over the mean for channel baselines because one
// outlier viral upload would otherwise skew the whole channel's average.
// Returns 0 for an empty slice. The input is not modified.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
