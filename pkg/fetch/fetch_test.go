package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFatal = errors.New("quota exceeded")

func countingOpts(pauses *int) Options {
	return Options{
		sleep: func(context.Context, time.Duration) error {
			*pauses++
			return nil
		},
	}
}

func TestGroups_SevenItemsThreePerGroup(t *testing.T) {
	var pauses int
	opts := countingOpts(&pauses)

	var mu sync.Mutex
	var groups [][]int
	var current []int

	// Record which items ran between pauses by tracking group boundaries:
	// the executor joins each group before pausing, so a pause closes one.
	origSleep := opts.sleep
	opts.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		groups = append(groups, current)
		current = nil
		mu.Unlock()
		return origSleep(ctx, d)
	}

	items := []int{1, 2, 3, 4, 5, 6, 7}
	results, err := Groups(context.Background(), items, opts, func(_ context.Context, n int) (int, error) {
		mu.Lock()
		current = append(current, n)
		mu.Unlock()
		return n * 10, nil
	})
	require.NoError(t, err)

	mu.Lock()
	groups = append(groups, current)
	mu.Unlock()

	// 7 items at group size 3: groups of 3, 3, 1 and exactly 2 pauses.
	assert.Equal(t, 2, pauses)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 3)
	assert.Len(t, groups[2], 1)

	require.Len(t, results, 7)
	for i, r := range results {
		assert.False(t, r.Skipped)
		assert.Equal(t, items[i]*10, r.Value)
	}
}

func TestGroups_SingleFailureStillYieldsAllResults(t *testing.T) {
	var pauses int
	items := []string{"a", "b", "c", "d", "e", "f", "g"}

	results, err := Groups(context.Background(), items, countingOpts(&pauses), func(_ context.Context, s string) (string, error) {
		if s == "d" {
			return "", fmt.Errorf("network: connection reset")
		}
		return s + "!", nil
	})
	require.NoError(t, err)
	require.Len(t, results, 7)

	skipped := 0
	for _, r := range results {
		if r.Skipped {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
	assert.True(t, results[3].Skipped)
	assert.Error(t, results[3].Err)
	assert.Equal(t, "e!", results[4].Value)
}

func TestGroups_FatalShortCircuits(t *testing.T) {
	var pauses int
	opts := countingOpts(&pauses)
	opts.IsFatal = func(err error) bool { return errors.Is(err, errFatal) }

	var calls int
	var mu sync.Mutex
	items := []int{1, 2, 3, 4, 5, 6, 7}

	results, err := Groups(context.Background(), items, opts, func(_ context.Context, n int) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if n == 2 {
			return 0, errFatal
		}
		return n, nil
	})
	require.ErrorIs(t, err, errFatal)
	require.Len(t, results, 7)

	// Only the first group ran; the rest were marked skipped unprocessed.
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, results[0].Value)
	assert.True(t, results[1].Skipped)
	for _, r := range results[3:] {
		assert.True(t, r.Skipped)
		assert.ErrorIs(t, r.Err, errFatal)
	}
}

func TestGroups_Empty(t *testing.T) {
	var pauses int
	results, err := Groups(context.Background(), nil, countingOpts(&pauses), func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, pauses)
}

func TestChunks_SplitsAtFifty(t *testing.T) {
	var pauses int
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}

	var batchSizes []int
	out, skipped, err := Chunks(context.Background(), ids, countingOpts(&pauses), func(_ context.Context, batch []string) ([]string, error) {
		batchSizes = append(batchSizes, len(batch))
		return batch, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Len(t, out, 120)
	assert.Equal(t, []int{50, 50, 20}, batchSizes)
	assert.Equal(t, 2, pauses)
}

func TestChunks_FailedChunkRetainsPriorResults(t *testing.T) {
	var pauses int
	ids := make([]string, 120)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}

	call := 0
	out, skipped, err := Chunks(context.Background(), ids, countingOpts(&pauses), func(_ context.Context, batch []string) ([]string, error) {
		call++
		if call == 2 {
			return nil, fmt.Errorf("malformed response")
		}
		return batch, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Len(t, out, 70) // chunks 1 and 3 retained
}

func TestChunks_FatalStopsButKeepsFetched(t *testing.T) {
	var pauses int
	opts := countingOpts(&pauses)
	opts.IsFatal = func(err error) bool { return errors.Is(err, errFatal) }

	ids := make([]string, 150)
	for i := range ids {
		ids[i] = fmt.Sprintf("id%d", i)
	}

	call := 0
	out, skipped, err := Chunks(context.Background(), ids, opts, func(_ context.Context, batch []string) ([]string, error) {
		call++
		if call == 2 {
			return nil, errFatal
		}
		return batch, nil
	})
	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, skipped)
	assert.Len(t, out, 50) // first chunk retained, third never issued
	assert.Equal(t, 2, call)
}
