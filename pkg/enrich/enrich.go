// Package enrich resolves channel-level baselines (expected per-video view
// levels) used to normalize video performance. It fetches only channels
// that are missing or stale and prefers a sampled "custom average" over
// lifetime totals.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vidpulse/vidpulse/pkg/fetch"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/scoring"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

const (
	// BaselineTTL: an already-known baseline younger than this is reused
	// without any network call.
	BaselineTTL = time.Hour

	// sampleSize caps how many recent uploads feed the custom average.
	sampleSize = 20
)

// API is the subset of the upstream client the enricher needs.
type API interface {
	ChannelsList(ctx context.Context, ids []string) ([]youtube.Channel, error)
	PlaylistItems(ctx context.Context, playlistID string, maxResults int) ([]string, error)
	VideosList(ctx context.Context, ids []string) ([]model.Video, error)
	SearchVideos(ctx context.Context, query string, opts youtube.SearchOptions) ([]youtube.SearchHit, error)
}

// Enricher resolves ChannelBaselines for sets of channel IDs.
type Enricher struct {
	api    API
	logger *slog.Logger

	now func() time.Time
}

// New creates an enricher over the given API client.
func New(api API, logger *slog.Logger) *Enricher {
	return &Enricher{api: api, logger: logger, now: time.Now}
}

func isQuota(err error) bool { return errors.Is(err, youtube.ErrQuotaExceeded) }

// Baselines returns a baseline per requested channel ID. Entries in known
// that are fresh (younger than BaselineTTL) are reused as-is. For the rest
// it fetches channel statistics in 50-ID chunks and, unless the caller
// already supplied a non-zero custom average, samples recent uploads for a
// median-based custom average.
//
// The returned map is always usable; a non-nil error is only ever the
// upstream quota-exceeded condition, reported so the caller can mark the
// ledger while keeping whatever was resolved before the cutoff.
func (e *Enricher) Baselines(ctx context.Context, channelIDs []string, known map[string]model.ChannelBaseline) (map[string]model.ChannelBaseline, error) {
	now := e.now()
	out := make(map[string]model.ChannelBaseline, len(channelIDs))

	var missing []string
	for _, id := range channelIDs {
		if id == "" {
			continue
		}
		if baseline, ok := known[id]; ok && baseline.FreshWithin(now, BaselineTTL) {
			out[id] = baseline
			continue
		}
		missing = append(missing, id)
	}
	missing = dedupe(missing)
	if len(missing) == 0 {
		return out, nil
	}

	channels, skipped, err := fetch.Chunks(ctx, missing, fetch.Options{IsFatal: isQuota},
		func(ctx context.Context, batch []string) ([]youtube.Channel, error) {
			return e.api.ChannelsList(ctx, batch)
		})
	if skipped > 0 {
		e.logger.Warn("channel stat chunks skipped", "skipped", skipped)
	}

	// Build stat-only baselines first so a later sampling cutoff still
	// leaves every fetched channel with at least a global average.
	fetched := make([]model.ChannelBaseline, 0, len(channels))
	for _, ch := range channels {
		baseline := statsBaseline(ch, now)
		if prior, ok := known[ch.ID]; ok && prior.CustomAvgViews > 0 {
			// Caller-supplied custom average wins; skip sampling.
			baseline.CustomAvgViews = prior.CustomAvgViews
		}
		out[ch.ID] = baseline
		if baseline.CustomAvgViews == 0 {
			fetched = append(fetched, baseline)
		}
	}
	if err != nil {
		return out, err
	}

	// Sample recent uploads per channel under group concurrency.
	results, err := fetch.Groups(ctx, fetched, fetch.Options{IsFatal: isQuota},
		func(ctx context.Context, baseline model.ChannelBaseline) (model.ChannelBaseline, error) {
			avg, sampleErr := e.sampleAverage(ctx, baseline)
			if sampleErr != nil {
				return model.ChannelBaseline{}, sampleErr
			}
			baseline.CustomAvgViews = avg
			return baseline, nil
		})
	for _, r := range results {
		if r.Skipped {
			continue // stat-only baseline already in out
		}
		out[r.Value.ChannelID] = r.Value
	}

	return out, err
}

// sampleAverage computes the median viewcount of up to sampleSize recent
// uploads. The uploads playlist is the cheap route (2 list units); an
// empty or inaccessible playlist falls back to a date-ordered search of
// the channel. No obtainable sample means 0, deferring to the global
// average.
func (e *Enricher) sampleAverage(ctx context.Context, baseline model.ChannelBaseline) (float64, error) {
	var ids []string
	var err error

	if baseline.UploadsPlaylist != "" {
		ids, err = e.api.PlaylistItems(ctx, baseline.UploadsPlaylist, sampleSize)
		if err != nil && isQuota(err) {
			return 0, err
		}
	}

	if len(ids) == 0 {
		hits, searchErr := e.api.SearchVideos(ctx, "", youtube.SearchOptions{
			ChannelID:  baseline.ChannelID,
			Order:      "date",
			MaxResults: sampleSize,
		})
		if searchErr != nil {
			if isQuota(searchErr) {
				return 0, searchErr
			}
			e.logger.Debug("upload sample unavailable", "channel", baseline.ChannelID, "error", searchErr)
			return 0, nil
		}
		for _, hit := range hits {
			ids = append(ids, hit.VideoID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > sampleSize {
		ids = ids[:sampleSize]
	}

	videos, err := e.api.VideosList(ctx, ids)
	if err != nil {
		if isQuota(err) {
			return 0, err
		}
		e.logger.Debug("sample video fetch failed", "channel", baseline.ChannelID, "error", err)
		return 0, nil
	}

	views := make([]float64, 0, len(videos))
	for _, v := range videos {
		views = append(views, float64(v.ViewCount))
	}
	return scoring.Median(views), nil
}

func statsBaseline(ch youtube.Channel, now time.Time) model.ChannelBaseline {
	videoCount := ch.VideoCount
	if videoCount < 1 {
		videoCount = 1
	}
	joinDate, _ := time.Parse(time.RFC3339, ch.JoinDate)

	return model.ChannelBaseline{
		ChannelID:       ch.ID,
		Title:           ch.Title,
		GlobalAvgViews:  float64(ch.ViewCount) / float64(videoCount),
		SubscriberCount: ch.SubscriberCount,
		TotalViews:      ch.ViewCount,
		VideoCount:      ch.VideoCount,
		UploadsPlaylist: ch.UploadsPlaylist,
		JoinDate:        joinDate,
		Country:         ch.Country,
		LastRefreshed:   now,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
