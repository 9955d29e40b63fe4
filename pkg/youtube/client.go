// Package youtube is a minimal Data API v3 client for the endpoints the
// scoring engine needs. Every call is billed against a usage recorder at
// the API's unit prices: list-family calls cost 1 unit regardless of how
// many IDs they carry (up to 50), search-family calls cost a flat 100.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidpulse/vidpulse/pkg/model"
)

const (
	defaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// MaxIDsPerCall is the upstream cap on comma-joined IDs per list call.
	MaxIDsPerCall = 50

	// UnitCostList and UnitCostSearch are the upstream unit prices.
	UnitCostList   = 1
	UnitCostSearch = 100

	// rateLimitWait is how long to pause after an upstream throttle signal
	// before letting the caller drop the call and move on.
	rateLimitWait = 2 * time.Second
)

// UsageRecorder bills units for each upstream call. Satisfied by
// quota.Ledger.
type UsageRecorder interface {
	Record(ctx context.Context, category model.UsageCategory, units int, note string) (model.UsageRecord, error)
}

// Config holds client settings.
type Config struct {
	APIKey string
	// BaseURL overrides the public endpoint, used by tests.
	BaseURL string
	// QueriesPerSecond bounds the overall request rate. Zero selects a
	// conservative default.
	QueriesPerSecond float64
}

// Client calls the upstream REST API.
type Client struct {
	cfg      Config
	http     *http.Client
	limiter  *rate.Limiter
	recorder UsageRecorder
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client. recorder may be nil, in which case calls are
// not billed (tests only; production always wires the ledger).
func NewClient(cfg Config, recorder UsageRecorder, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.QueriesPerSecond <= 0 {
		cfg.QueriesPerSecond = 8
	}
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), 1),
		recorder: recorder,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do issues one GET, bills it, and decodes the response into out. Upstream
// errors come back as *APIError; a throttle signal is waited out here so
// the caller can simply drop the call.
func (c *Client) do(ctx context.Context, endpoint string, params url.Values, category model.UsageCategory, note string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// The upstream bills the call whether or not it succeeds.
	c.bill(ctx, category, note)

	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp)
		if apiErr.Reason == "rateLimitExceeded" || apiErr.Reason == "userRateLimitExceeded" {
			c.logger.Debug("upstream rate limit, backing off", "endpoint", endpoint, "wait", rateLimitWait)
			if sleepErr := c.sleep(ctx, rateLimitWait); sleepErr != nil {
				return sleepErr
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) bill(ctx context.Context, category model.UsageCategory, note string) {
	if c.recorder == nil {
		return
	}
	units := UnitCostList
	if category == model.CategorySearch {
		units = UnitCostSearch
	}
	if _, err := c.recorder.Record(ctx, category, units, note); err != nil {
		c.logger.Error("record usage failed", "note", note, "error", err)
	}
}

func parseAPIError(resp *http.Response) *APIError {
	var body errorResponse
	apiErr := &APIError{Code: resp.StatusCode, Message: resp.Status}
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error.Code != 0 {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		if len(body.Error.Errors) > 0 {
			apiErr.Reason = body.Error.Errors[0].Reason
		}
	}
	return apiErr
}

// VideosList fetches full metadata for up to MaxIDsPerCall video IDs in a
// single 1-unit call.
func (c *Client) VideosList(ctx context.Context, ids []string) ([]model.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxIDsPerCall {
		ids = ids[:MaxIDsPerCall]
	}

	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", strings.Join(ids, ","))
	params.Set("maxResults", strconv.Itoa(MaxIDsPerCall))

	var resp videoListResponse
	if err := c.do(ctx, "videos", params, model.CategoryList, "videos.list", &resp); err != nil {
		return nil, err
	}
	return decodeVideos(resp.Items), nil
}

// MostPopular fetches the region's chart videos (list-family pricing).
func (c *Client) MostPopular(ctx context.Context, region, categoryID string, maxResults int) ([]model.Video, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("chart", "mostPopular")
	params.Set("regionCode", region)
	if categoryID != "" {
		params.Set("videoCategoryId", categoryID)
	}
	params.Set("maxResults", strconv.Itoa(clampMax(maxResults)))

	var resp videoListResponse
	if err := c.do(ctx, "videos", params, model.CategoryList, "videos.mostPopular", &resp); err != nil {
		return nil, err
	}
	return decodeVideos(resp.Items), nil
}

// SearchOptions narrows a video search.
type SearchOptions struct {
	ChannelID      string
	PublishedAfter time.Time
	Order          string // relevance, date, viewCount
	MaxResults     int
}

// SearchVideos runs a free-text search. Costs a flat 100 units per call, so
// callers should exhaust cheaper list-family routes first.
func (c *Client) SearchVideos(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	if query != "" {
		params.Set("q", query)
	}
	if opts.ChannelID != "" {
		params.Set("channelId", opts.ChannelID)
	}
	if !opts.PublishedAfter.IsZero() {
		params.Set("publishedAfter", opts.PublishedAfter.UTC().Format(time.RFC3339))
	}
	if opts.Order != "" {
		params.Set("order", opts.Order)
	}
	params.Set("maxResults", strconv.Itoa(clampMax(opts.MaxResults)))

	var resp searchListResponse
	if err := c.do(ctx, "search", params, model.CategorySearch, "search.list", &resp); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		hits = append(hits, SearchHit{
			VideoID:      item.ID.VideoID,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			Title:        item.Snippet.Title,
		})
	}
	return hits, nil
}

// ChannelsList fetches statistics for up to MaxIDsPerCall channel IDs in
// one 1-unit call.
func (c *Client) ChannelsList(ctx context.Context, ids []string) ([]Channel, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxIDsPerCall {
		ids = ids[:MaxIDsPerCall]
	}

	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", strings.Join(ids, ","))

	var resp channelListResponse
	if err := c.do(ctx, "channels", params, model.CategoryList, "channels.list", &resp); err != nil {
		return nil, err
	}
	return decodeChannels(resp.Items), nil
}

// ResolveChannel looks up a channel by raw UC… ID or by @handle. A miss is
// ErrChannelNotFound, the one lookup failure pipelines surface as a hard
// error.
func (c *Client) ResolveChannel(ctx context.Context, identifier string) (Channel, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")

	if strings.HasPrefix(identifier, "UC") && len(identifier) == 24 {
		params.Set("id", identifier)
	} else {
		params.Set("forHandle", strings.TrimPrefix(identifier, "@"))
	}

	var resp channelListResponse
	if err := c.do(ctx, "channels", params, model.CategoryList, "channels.list", &resp); err != nil {
		return Channel{}, err
	}
	if len(resp.Items) == 0 {
		return Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, identifier)
	}
	return decodeChannels(resp.Items)[0], nil
}

// PlaylistItems returns up to maxResults video IDs from a playlist (one
// 1-unit call). Used to sample a channel's recent uploads.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, maxResults int) ([]string, error) {
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(clampMax(maxResults)))

	var resp playlistItemsResponse
	if err := c.do(ctx, "playlistItems", params, model.CategoryList, "playlistItems.list", &resp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ContentDetails.VideoID != "" {
			ids = append(ids, item.ContentDetails.VideoID)
		}
	}
	return ids, nil
}

func clampMax(n int) int {
	if n <= 0 || n > MaxIDsPerCall {
		return MaxIDsPerCall
	}
	return n
}

func decodeVideos(items []videoItem) []model.Video {
	videos := make([]model.Video, 0, len(items))
	for _, item := range items {
		publishedAt, _ := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		videos = append(videos, model.Video{
			ID:              item.ID,
			Title:           item.Snippet.Title,
			ChannelID:       item.Snippet.ChannelID,
			ChannelTitle:    item.Snippet.ChannelTitle,
			PublishedAt:     publishedAt,
			ViewCount:       parseCount(item.Statistics.ViewCount),
			LikeCount:       parseCount(item.Statistics.LikeCount),
			CommentCount:    parseCount(item.Statistics.CommentCount),
			DurationSeconds: parseISODuration(item.ContentDetails.Duration),
			CategoryID:      item.Snippet.CategoryID,
			Tags:            item.Snippet.Tags,
			Thumbnail:       item.Snippet.Thumbnails.Medium.URL,
		})
	}
	return videos
}

func decodeChannels(items []channelItem) []Channel {
	channels := make([]Channel, 0, len(items))
	for _, item := range items {
		channels = append(channels, Channel{
			ID:              item.ID,
			Title:           item.Snippet.Title,
			SubscriberCount: parseCount(item.Statistics.SubscriberCount),
			ViewCount:       parseCount(item.Statistics.ViewCount),
			VideoCount:      parseCount(item.Statistics.VideoCount),
			UploadsPlaylist: item.ContentDetails.RelatedPlaylists.Uploads,
			JoinDate:        item.Snippet.PublishedAt,
			Country:         item.Snippet.Country,
		})
	}
	return channels
}

// parseCount reads the API's string-typed counters. Missing or malformed
// counts read as 0 rather than failing the fetch.
func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
