package quota

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

func newTestLedger(t *testing.T) (*Ledger, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	l := NewLedger(store, "test-key", 10000, nil, logger)
	return l, store
}

func TestLedger_State_FreshRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Used)
	assert.Equal(t, 10000, rec.TotalBudget)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "system reset", rec.Events[0].Note)
	assert.False(t, rec.Exceeded)
}

func TestLedger_State_MalformedBlobResets(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, l.storageKey(), []byte("{not json")))

	rec, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Used)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "system reset", rec.Events[0].Note)
}

func TestLedger_Record_ListCost(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := l.Record(ctx, model.CategoryList, 3, "videos.list")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Used)
	assert.Equal(t, 3, rec.ByCategory["list"])
}

func TestLedger_Record_SearchCostIsFlat(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// Unit count passed by the caller is ignored for search calls.
	rec, err := l.Record(ctx, model.CategorySearch, 1, "search.list")
	require.NoError(t, err)
	assert.Equal(t, SearchCost, rec.Used)
	assert.Equal(t, SearchCost, rec.ByCategory["search"])
}

func TestLedger_Record_CoalescesRapidEvents(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return base }

	rec, err := l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)
	logLen := len(rec.Events)

	l.now = func() time.Time { return base.Add(500 * time.Millisecond) }
	rec, err = l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)

	// Same category and note within 2s: merged, not appended.
	assert.Len(t, rec.Events, logLen)
	assert.Equal(t, 2, rec.Used)
	assert.Equal(t, 2, rec.Events[0].Units)
}

func TestLedger_Record_NoCoalesceAfterWindow(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return base }

	rec, err := l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)
	logLen := len(rec.Events)

	l.now = func() time.Time { return base.Add(3 * time.Second) }
	rec, err = l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)
	assert.Len(t, rec.Events, logLen+1)
}

func TestLedger_Record_NoCoalesceDifferentNote(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return base }

	rec, err := l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)
	logLen := len(rec.Events)

	rec, err = l.Record(ctx, model.CategoryList, 1, "channels.list")
	require.NoError(t, err)
	assert.Len(t, rec.Events, logLen+1)
}

func TestLedger_DayRolloverResets(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	evening := time.Date(2026, 3, 10, 23, 50, 0, 0, time.Local)
	l.now = func() time.Time { return evening }

	_, err := l.Record(ctx, model.CategorySearch, 1, "search.list")
	require.NoError(t, err)
	require.NoError(t, l.MarkExceeded(ctx))

	// 20 minutes later but past local midnight: full reset, even at capacity.
	l.now = func() time.Time { return evening.Add(20 * time.Minute) }

	rec, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Used)
	assert.False(t, rec.Exceeded)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, "system reset", rec.Events[0].Note)
}

func TestLedger_MarkExceeded_Sticky(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	exceeded, err := l.Exceeded(ctx)
	require.NoError(t, err)
	assert.False(t, exceeded)

	require.NoError(t, l.MarkExceeded(ctx))

	exceeded, err = l.Exceeded(ctx)
	require.NoError(t, err)
	assert.True(t, exceeded)

	// The local counter is untouched; the flag alone gates spending.
	ok, err := l.Available(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_Available(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	ok, err := l.Available(ctx, SearchCost)
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 100; i++ {
		_, err := l.Record(ctx, model.CategorySearch, 1, "search.list")
		require.NoError(t, err)
	}

	ok, err = l.Available(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_Subscribe(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	var seen []int
	l.Subscribe(func(rec model.UsageRecord) { seen = append(seen, rec.Used) })

	_, err := l.Record(ctx, model.CategoryList, 1, "videos.list")
	require.NoError(t, err)
	_, err = l.Record(ctx, model.CategoryList, 2, "channels.list")
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, seen)
}

func TestLedger_Reset_ClearsUsageAndExceeded(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Record(ctx, model.CategorySearch, 0, "search.list")
	require.NoError(t, err)
	require.NoError(t, l.MarkExceeded(ctx))

	rec, err := l.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Used)
	assert.False(t, rec.Exceeded)

	exceeded, err := l.Exceeded(ctx)
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestLedger_Subscribe_ObserverMayReenterLedger(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// An observer reading ledger state from inside the callback must not
	// deadlock: dispatch happens with the ledger lock released.
	var seen []int
	l.Subscribe(func(rec model.UsageRecord) {
		state, err := l.State(ctx)
		require.NoError(t, err)
		seen = append(seen, state.Used)
	})

	_, err := l.Record(ctx, model.CategoryList, 5, "videos.list")
	require.NoError(t, err)
	require.NoError(t, l.MarkExceeded(ctx))
	_, err = l.Reset(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int{5, 5, 0}, seen)
}
