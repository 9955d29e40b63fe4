package model

// FetchStrategy selects how a pipeline discovers candidate videos.
type FetchStrategy string

const (
	// StrategyMostPopular uses the chart endpoint (list-family pricing).
	StrategyMostPopular FetchStrategy = "most_popular"
	// StrategySearch uses free-text search (search-family pricing).
	StrategySearch FetchStrategy = "search"
)

// SearchParams carries every parameter that affects result identity for a
// pipeline run. All of them feed the cache fingerprint.
type SearchParams struct {
	Region        string        `json:"region"`
	Query         string        `json:"query"`
	CategoryID    string        `json:"category_id"`
	LookbackHours int           `json:"lookback_hours"`
	ChannelIDs    []string      `json:"channel_ids,omitempty"`
	Strategy      FetchStrategy `json:"strategy"`
	MaxResults    int           `json:"max_results"`
}

// SavedChannel is a caller-supplied baseline for an already-known channel.
// Passing these in short-circuits network enrichment for fresh entries.
type SavedChannel struct {
	ChannelID      string  `yaml:"channel_id" json:"channel_id"`
	Title          string  `yaml:"title" json:"title"`
	CustomAvgViews float64 `yaml:"custom_avg_views" json:"custom_avg_views"`
}
