package pipeline

import (
	"context"

	"github.com/vidpulse/vidpulse/pkg/model"
)

// detectThreshold is the viral score above which a chart video counts as a
// detected outlier.
const detectThreshold = 2.0

// AutoDetect scans the region's chart for videos already over-performing
// their channel baseline and returns them ranked by velocity. It reuses
// the trending pipeline (and its cache entry) and filters the output, so a
// detect pass after a trending fetch costs no extra budget.
func (e *Engine) AutoDetect(ctx context.Context, params model.SearchParams, saved []model.SavedChannel) ([]model.ScoredVideo, error) {
	params.Strategy = model.StrategyMostPopular

	scored, err := e.Trending(ctx, params, saved)
	if err != nil {
		return nil, err
	}

	detected := make([]model.ScoredVideo, 0, len(scored))
	for _, s := range scored {
		if s.Derived.ViralScore >= detectThreshold {
			detected = append(detected, s)
		}
	}
	sortBy(detected, func(s model.ScoredVideo) float64 { return s.Derived.Velocity })
	return detected, nil
}
