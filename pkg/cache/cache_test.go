package cache

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/storage"
)

func newTestCache(t *testing.T) (*ResultCache, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(store, DefaultTTL, 0, logger), store
}

func sampleVideos() []model.ScoredVideo {
	return []model.ScoredVideo{
		{
			Video:   model.Video{ID: "v1", Title: "first", ViewCount: 1000},
			Derived: model.Derived{ExpectedViews: 500, ViralScore: 2.0},
		},
		{
			Video:   model.Video{ID: "v2", Title: "second", ViewCount: 300},
			Derived: model.Derived{ExpectedViews: 600, ViralScore: 0.5},
		},
	}
}

func TestResultCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Put(ctx, "k1", sampleVideos())

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, sampleVideos(), got)
}

func TestResultCache_MissWhenNeverWritten(t *testing.T) {
	c, _ := newTestCache(t)

	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestResultCache_ExpiryTreatedAsAbsent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put(ctx, "k1", sampleVideos())

	c.now = func() time.Time { return base.Add(DefaultTTL - time.Minute) }
	_, ok := c.Get(ctx, "k1")
	assert.True(t, ok)

	// Exactly at the TTL boundary the entry is already absent.
	c.now = func() time.Time { return base.Add(DefaultTTL) }
	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestResultCache_L2SurvivesL1Loss(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store := storage.NewMemory()
	ctx := context.Background()

	first := New(store, DefaultTTL, 0, logger)
	first.Put(ctx, "k1", sampleVideos())

	// A new cache over the same store simulates a restart.
	second := New(store, DefaultTTL, 0, logger)
	got, ok := second.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, sampleVideos(), got)
}

func TestResultCache_CorruptBlobIsAbsent(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, keyPrefix+"k1", []byte("{corrupt")))

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestResultCache_CapacityEviction(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c := New(storage.NewMemory(), DefaultTTL, 2, logger)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put(ctx, "a", sampleVideos())
	c.now = func() time.Time { return base.Add(time.Minute) }
	c.Put(ctx, "b", sampleVideos())
	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	c.Put(ctx, "c", sampleVideos())

	count := 0
	c.l1.Range(func(_, _ any) bool { count++; return true })
	assert.LessOrEqual(t, count, 2)

	// Oldest L1 entry went first, but L2 still serves it.
	_, ok := c.l1.Load("a")
	assert.False(t, ok)
	got, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestFingerprint_TaggedDimensions(t *testing.T) {
	base := model.SearchParams{
		Region:        "US",
		Query:         "synth",
		CategoryID:    "10",
		LookbackHours: 72,
		MaxResults:    25,
		Strategy:      model.StrategySearch,
	}

	same := Fingerprint("feed", base)
	assert.Equal(t, same, Fingerprint("feed", base))

	variants := []model.SearchParams{base, base, base, base, base, base}
	variants[0].Region = "KR"
	variants[1].Query = "synthwave"
	variants[2].CategoryID = "20"
	variants[3].LookbackHours = 24
	variants[4].Strategy = model.StrategyMostPopular
	variants[5].MaxResults = 50

	for _, v := range variants {
		assert.NotEqual(t, Fingerprint("feed", base), Fingerprint("feed", v))
	}
}

func TestFingerprint_OperationNamespace(t *testing.T) {
	// A radar scan seeded with a handle and a free-text search for the
	// same handle share every query dimension; only the operation tag
	// keeps their entries apart.
	params := model.SearchParams{
		Region:        "US",
		Query:         "@foo",
		LookbackHours: 72,
		Strategy:      model.StrategySearch,
	}

	assert.NotEqual(t, Fingerprint("feed", params), Fingerprint("radar", params))
}

func TestFingerprint_ChannelSetOrderInsensitive(t *testing.T) {
	a := model.SearchParams{ChannelIDs: []string{"UC1", "UC2", "UC3"}}
	b := model.SearchParams{ChannelIDs: []string{"UC3", "UC1", "UC2"}}
	c := model.SearchParams{ChannelIDs: []string{"UC1", "UC2"}}

	assert.Equal(t, Fingerprint("feed", a), Fingerprint("feed", b))
	assert.NotEqual(t, Fingerprint("feed", a), Fingerprint("feed", c))
}
