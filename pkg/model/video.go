package model

import "time"

// Video holds the raw metadata for a single YouTube video as returned by
// the upstream API, before any scoring is applied.
type Video struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	PublishedAt     time.Time `json:"published_at"`
	ViewCount       int64     `json:"view_count"`
	LikeCount       int64     `json:"like_count"`
	CommentCount    int64     `json:"comment_count"`
	DurationSeconds int64     `json:"duration_seconds"`
	CategoryID      string    `json:"category_id"`
	Tags            []string  `json:"tags,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
}

// HoursSince returns the video age in hours relative to now, floored at 0.
func (v Video) HoursSince(now time.Time) float64 {
	h := now.Sub(v.PublishedAt).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// ChannelBaseline is a channel's expected per-video view level, used to
// normalize an individual video's performance. CustomAvgViews (sampled from
// recent uploads) takes precedence over the lifetime global average whenever
// it is present and non-zero.
type ChannelBaseline struct {
	ChannelID       string    `json:"channel_id"`
	Title           string    `json:"title"`
	CustomAvgViews  float64   `json:"custom_avg_views"`
	GlobalAvgViews  float64   `json:"global_avg_views"`
	SubscriberCount int64     `json:"subscriber_count"`
	TotalViews      int64     `json:"total_views"`
	VideoCount      int64     `json:"video_count"`
	UploadsPlaylist string    `json:"uploads_playlist,omitempty"`
	JoinDate        time.Time `json:"join_date"`
	Country         string    `json:"country,omitempty"`
	LastRefreshed   time.Time `json:"last_refreshed"`
}

// AverageViews returns the effective baseline average for scoring.
func (b ChannelBaseline) AverageViews() float64 {
	if b.CustomAvgViews > 0 {
		return b.CustomAvgViews
	}
	return b.GlobalAvgViews
}

// FreshWithin reports whether the baseline was refreshed less than maxAge ago.
func (b ChannelBaseline) FreshWithin(now time.Time, maxAge time.Duration) bool {
	return !b.LastRefreshed.IsZero() && now.Sub(b.LastRefreshed) < maxAge
}

// Derived holds the scores computed for one video against its baseline.
type Derived struct {
	ExpectedViews float64 `json:"expected_views"`
	ViralScore    float64 `json:"viral_score"`
	Velocity      float64 `json:"velocity"`
	SpikeScore    float64 `json:"spike_score,omitempty"`
}

// ScoredVideo is an immutable pipeline output value: a video joined with the
// baseline it was scored against and the derived scores. Never mutated after
// creation.
type ScoredVideo struct {
	Video    Video           `json:"video"`
	Baseline ChannelBaseline `json:"baseline"`
	Derived  Derived         `json:"derived"`
}
