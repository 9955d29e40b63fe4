// Package pipeline sequences the end-to-end flows: cache lookup, quota
// gate, batched fetch, channel enrichment, scoring, sort, cache write.
// Pipelines return the best-effort result set they could assemble; only an
// upstream quota exhaustion or an unresolvable seed channel surfaces as a
// hard error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vidpulse/vidpulse/pkg/fetch"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/quota"
	"github.com/vidpulse/vidpulse/pkg/scoring"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

// radarLimit caps the radar result set after per-channel deduplication.
const radarLimit = 50

// Cache key namespaces. Trending, detect, and materials produce the same
// payload shape and deliberately share opFeed entries; radar payloads are
// spike-sorted and channel-deduped, so they get their own namespace.
const (
	opFeed  = "feed"
	opRadar = "radar"
)

// API is the slice of the upstream client the pipelines drive directly.
type API interface {
	MostPopular(ctx context.Context, region, categoryID string, maxResults int) ([]model.Video, error)
	SearchVideos(ctx context.Context, query string, opts youtube.SearchOptions) ([]youtube.SearchHit, error)
	VideosList(ctx context.Context, ids []string) ([]model.Video, error)
	PlaylistItems(ctx context.Context, playlistID string, maxResults int) ([]string, error)
	ResolveChannel(ctx context.Context, identifier string) (youtube.Channel, error)
}

// Baseliner resolves channel baselines; satisfied by enrich.Enricher.
type Baseliner interface {
	Baselines(ctx context.Context, channelIDs []string, known map[string]model.ChannelBaseline) (map[string]model.ChannelBaseline, error)
}

// Ledger is the quota surface the pipelines gate on; satisfied by
// quota.Ledger.
type Ledger interface {
	Available(ctx context.Context, units int) (bool, error)
	MarkExceeded(ctx context.Context) error
}

// ResultCache is the cache surface; satisfied by cache.ResultCache.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]model.ScoredVideo, bool)
	Put(ctx context.Context, key string, payload []model.ScoredVideo)
}

// Engine wires the shared components into runnable pipelines. One engine
// per API credential.
type Engine struct {
	api      API
	enricher Baseliner
	cache    ResultCache
	ledger   Ledger
	logger   *slog.Logger

	now func() time.Time
}

// NewEngine creates a pipeline engine.
func NewEngine(api API, enricher Baseliner, resultCache ResultCache, ledger Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		api:      api,
		enricher: enricher,
		cache:    resultCache,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
	}
}

// gate refuses to start network work the ledger cannot cover. The caller
// passes the cheapest unit cost the pipeline is certain to spend.
func (e *Engine) gate(ctx context.Context, units int) error {
	ok, err := e.ledger.Available(ctx, units)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}
	if !ok {
		return quota.ErrBudgetSpent
	}
	return nil
}

// noteQuota marks the ledger when an upstream call confirmed exhaustion.
func (e *Engine) noteQuota(ctx context.Context, err error) {
	if err == nil || !errors.Is(err, youtube.ErrQuotaExceeded) {
		return
	}
	if markErr := e.ledger.MarkExceeded(ctx); markErr != nil {
		e.logger.Error("mark quota exceeded", "error", markErr)
	}
}

func isQuota(err error) bool { return errors.Is(err, youtube.ErrQuotaExceeded) }

// savedBaselines converts caller-supplied saved channels into baseline
// seeds for the enricher. A channel carrying a custom average is stamped
// fresh so the enricher trusts it instead of fetching stats for it.
func (e *Engine) savedBaselines(saved []model.SavedChannel) map[string]model.ChannelBaseline {
	if len(saved) == 0 {
		return nil
	}
	now := e.now()
	known := make(map[string]model.ChannelBaseline, len(saved))
	for _, s := range saved {
		b := model.ChannelBaseline{
			ChannelID:      s.ChannelID,
			Title:          s.Title,
			CustomAvgViews: s.CustomAvgViews,
		}
		if s.CustomAvgViews > 0 {
			b.LastRefreshed = now
		}
		known[s.ChannelID] = b
	}
	return known
}

// fetchVideosByID resolves hit IDs to full videos in 50-ID chunks. Skipped
// chunks degrade to missing entries; a quota error is returned with
// whatever was fetched first.
func (e *Engine) fetchVideosByID(ctx context.Context, ids []string) ([]model.Video, error) {
	videos, skipped, err := fetch.Chunks(ctx, ids, fetch.Options{IsFatal: isQuota},
		func(ctx context.Context, batch []string) ([]model.Video, error) {
			return e.api.VideosList(ctx, batch)
		})
	if skipped > 0 {
		e.logger.Warn("video chunks skipped", "skipped", skipped)
	}
	return videos, err
}

// score joins videos with their baselines and computes the derived scores.
// Videos whose channel has no baseline still score against the expected-
// views floor.
func (e *Engine) score(videos []model.Video, baselines map[string]model.ChannelBaseline, velocityFloor float64, withSpike bool) []model.ScoredVideo {
	now := e.now()
	scored := make([]model.ScoredVideo, 0, len(videos))

	for _, v := range videos {
		baseline := baselines[v.ChannelID]
		hours := v.HoursSince(now)
		avg := baseline.AverageViews()
		views := float64(v.ViewCount)

		derived := model.Derived{
			ExpectedViews: scoring.ExpectedViews(avg, hours),
			Velocity:      scoring.Velocity(views, hours, velocityFloor),
		}
		derived.ViralScore = scoring.ViralScore(views, derived.ExpectedViews)
		if withSpike {
			derived.SpikeScore = scoring.SpikeScore(views, hours, avg)
		}

		scored = append(scored, model.ScoredVideo{Video: v, Baseline: baseline, Derived: derived})
	}
	return scored
}

// sortBy orders descending by the selected score. Stable, so equal scores
// retain fetch order.
func sortBy(scored []model.ScoredVideo, key func(model.ScoredVideo) float64) {
	sort.SliceStable(scored, func(i, j int) bool {
		return key(scored[i]) > key(scored[j])
	})
}

// dedupeByChannel keeps the first (highest ranked) video per channel.
func dedupeByChannel(scored []model.ScoredVideo) []model.ScoredVideo {
	seen := make(map[string]struct{}, len(scored))
	out := scored[:0]
	for _, s := range scored {
		if _, ok := seen[s.Video.ChannelID]; ok {
			continue
		}
		seen[s.Video.ChannelID] = struct{}{}
		out = append(out, s)
	}
	return out
}

func truncate(scored []model.ScoredVideo, limit int) []model.ScoredVideo {
	if limit > 0 && len(scored) > limit {
		return scored[:limit]
	}
	return scored
}

func channelIDs(videos []model.Video) []string {
	seen := make(map[string]struct{}, len(videos))
	var ids []string
	for _, v := range videos {
		if v.ChannelID == "" {
			continue
		}
		if _, ok := seen[v.ChannelID]; ok {
			continue
		}
		seen[v.ChannelID] = struct{}{}
		ids = append(ids, v.ChannelID)
	}
	return ids
}

// withinLookback filters out videos older than the window. A zero window
// keeps everything.
func withinLookback(videos []model.Video, lookbackHours int, now time.Time) []model.Video {
	if lookbackHours <= 0 {
		return videos
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	out := videos[:0]
	for _, v := range videos {
		if v.PublishedAt.After(cutoff) {
			out = append(out, v)
		}
	}
	return out
}
