package pipeline

import (
	"context"
	"time"

	"github.com/vidpulse/vidpulse/pkg/cache"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/scoring"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

// Trending assembles the region's trending feed ranked by viral score.
// Identical queries inside the cache TTL cost zero budget.
func (e *Engine) Trending(ctx context.Context, params model.SearchParams, saved []model.SavedChannel) ([]model.ScoredVideo, error) {
	key := cache.Fingerprint(opFeed, params)
	if payload, ok := e.cache.Get(ctx, key); ok {
		e.logger.Debug("trending served from cache", "key", key)
		return payload, nil
	}

	minCost := youtube.UnitCostList
	if params.Strategy == model.StrategySearch {
		minCost = youtube.UnitCostSearch
	}
	if err := e.gate(ctx, minCost); err != nil {
		return nil, err
	}

	videos, err := e.discover(ctx, params)
	e.noteQuota(ctx, err)
	if err != nil && len(videos) == 0 {
		return nil, err
	}
	fetchErr := err

	videos = withinLookback(videos, params.LookbackHours, e.now())

	baselines, err := e.enricher.Baselines(ctx, channelIDs(videos), e.savedBaselines(saved))
	e.noteQuota(ctx, err)

	scored := e.score(videos, baselines, scoring.FeedVelocityFloorHours, false)
	sortBy(scored, func(s model.ScoredVideo) float64 { return s.Derived.ViralScore })
	scored = truncate(scored, params.MaxResults)

	if fetchErr == nil && err == nil {
		e.cache.Put(ctx, key, scored)
	}
	return scored, nil
}

// discover finds candidate videos by the configured strategy: the cheap
// chart endpoint, or a 100-unit free-text search resolved to full videos.
func (e *Engine) discover(ctx context.Context, params model.SearchParams) ([]model.Video, error) {
	if params.Strategy == model.StrategySearch && params.Query != "" {
		var publishedAfter time.Time
		if params.LookbackHours > 0 {
			publishedAfter = e.now().Add(-time.Duration(params.LookbackHours) * time.Hour)
		}
		hits, err := e.api.SearchVideos(ctx, params.Query, youtube.SearchOptions{
			PublishedAfter: publishedAfter,
			Order:          "viewCount",
			MaxResults:     youtube.MaxIDsPerCall,
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(hits))
		for _, hit := range hits {
			ids = append(ids, hit.VideoID)
		}
		return e.fetchVideosByID(ctx, ids)
	}

	return e.api.MostPopular(ctx, params.Region, params.CategoryID, params.MaxResults)
}
