package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vidpulse/vidpulse/pkg/cache"
	"github.com/vidpulse/vidpulse/pkg/fetch"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/scoring"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

// Phase names one stage of a radar scan. failed is terminal and reachable
// from every other phase; there is no automatic retry of a failed run.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAnalyzingBaseChannel Phase = "analyzing-base-channel"
	PhaseSearchingCandidates  Phase = "searching-candidates"
	PhaseFetchingVideos       Phase = "fetching-videos"
	PhaseScoring              Phase = "scoring"
	PhaseDone                 Phase = "done"
	PhaseFailed               Phase = "failed"
)

// ProgressFunc observes phase transitions of one radar run.
type ProgressFunc func(Phase)

// RadarParams configures a channel-radar scan.
type RadarParams struct {
	// SeedChannel is a UC… ID or @handle whose niche is scanned.
	SeedChannel string
	Region      string
	// LookbackHours bounds candidate age; zero means 72h.
	LookbackHours int
}

func (p RadarParams) lookback() int {
	if p.LookbackHours <= 0 {
		return 72
	}
	return p.LookbackHours
}

// Radar scans the seed channel's niche for spiking videos: it extracts the
// channel's keyword profile, searches for recent candidates, and ranks
// them by spike score with at most one representative video per channel.
//
// The seed channel failing to resolve is the one hard pipeline error; an
// upstream quota cutoff mid-run returns whatever was scored before it,
// alongside the error.
func (e *Engine) Radar(ctx context.Context, params RadarParams, saved []model.SavedChannel, progress ProgressFunc) ([]model.ScoredVideo, error) {
	report := func(p Phase) {
		if progress != nil {
			progress(p)
		}
	}
	fail := func(err error) ([]model.ScoredVideo, error) {
		report(PhaseFailed)
		return nil, err
	}
	report(PhaseIdle)

	fingerprint := cache.Fingerprint(opRadar, model.SearchParams{
		Region:        params.Region,
		Query:         params.SeedChannel,
		LookbackHours: params.lookback(),
		Strategy:      model.StrategySearch,
	})
	if payload, ok := e.cache.Get(ctx, fingerprint); ok {
		e.logger.Debug("radar served from cache", "seed", params.SeedChannel)
		report(PhaseDone)
		return payload, nil
	}

	// A scan always spends at least one search call.
	if err := e.gate(ctx, youtube.UnitCostSearch); err != nil {
		return fail(err)
	}

	report(PhaseAnalyzingBaseChannel)
	seed, err := e.api.ResolveChannel(ctx, params.SeedChannel)
	if err != nil {
		e.noteQuota(ctx, err)
		return fail(fmt.Errorf("resolve seed channel: %w", err))
	}
	keywords := e.seedKeywords(ctx, seed)

	report(PhaseSearchingCandidates)
	hits, err := e.searchCandidates(ctx, keywords, params)
	e.noteQuota(ctx, err)
	if len(hits) == 0 {
		if err != nil {
			return fail(err)
		}
		report(PhaseDone)
		return nil, nil
	}

	report(PhaseFetchingVideos)
	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.VideoID]; ok {
			continue
		}
		seen[hit.VideoID] = struct{}{}
		ids = append(ids, hit.VideoID)
	}
	videos, fetchErr := e.fetchVideosByID(ctx, ids)
	e.noteQuota(ctx, fetchErr)
	if len(videos) == 0 && fetchErr != nil {
		return fail(fetchErr)
	}
	videos = withinLookback(videos, params.lookback(), e.now())

	report(PhaseScoring)
	baselines, enrichErr := e.enricher.Baselines(ctx, channelIDs(videos), e.savedBaselines(saved))
	e.noteQuota(ctx, enrichErr)

	scored := e.score(videos, baselines, scoring.SpikeVelocityFloorHours, true)
	sortBy(scored, func(s model.ScoredVideo) float64 { return s.Derived.SpikeScore })
	scored = dedupeByChannel(scored)
	scored = truncate(scored, radarLimit)

	if fetchErr == nil && enrichErr == nil {
		e.cache.Put(ctx, fingerprint, scored)
	}
	report(PhaseDone)
	return scored, nil
}

// seedKeywords profiles the seed channel from its recent upload titles and
// tags. Sampling failures degrade to the channel title: radar seeding must
// always produce at least one query.
func (e *Engine) seedKeywords(ctx context.Context, seed youtube.Channel) []string {
	var titles []string
	var tags []string

	if seed.UploadsPlaylist != "" {
		if ids, err := e.api.PlaylistItems(ctx, seed.UploadsPlaylist, 20); err == nil && len(ids) > 0 {
			if videos, err := e.api.VideosList(ctx, ids); err == nil {
				for _, v := range videos {
					titles = append(titles, v.Title)
					tags = append(tags, v.Tags...)
				}
			}
		}
	}

	return scoring.TopKeywords(titles, tags, seed.Title)
}

// searchCandidates runs one 100-unit search per keyword under group
// concurrency. Failed keywords degrade to empty contributions.
func (e *Engine) searchCandidates(ctx context.Context, keywords []string, params RadarParams) ([]youtube.SearchHit, error) {
	publishedAfter := e.now().Add(-time.Duration(params.lookback()) * time.Hour)

	results, err := fetch.Groups(ctx, keywords, fetch.Options{IsFatal: isQuota},
		func(ctx context.Context, keyword string) ([]youtube.SearchHit, error) {
			return e.api.SearchVideos(ctx, keyword, youtube.SearchOptions{
				PublishedAfter: publishedAfter,
				Order:          "viewCount",
				MaxResults:     youtube.MaxIDsPerCall,
			})
		})

	var hits []youtube.SearchHit
	for _, r := range results {
		if r.Skipped {
			continue
		}
		hits = append(hits, r.Value...)
	}
	return hits, err
}
