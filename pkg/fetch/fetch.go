// Package fetch provides the two concurrency disciplines used against the
// upstream API: small-group concurrency for per-item endpoints (bounds
// queries per second while overlapping latency) and large ID-batching for
// endpoints that accept up to 50 IDs per call (minimizes unit cost).
//
// Partial failure is the expected steady state here: a failed item or
// chunk degrades to an empty contribution and the run continues. Only an
// error the caller classifies as fatal (upstream quota exhaustion) may
// short-circuit remaining work.
package fetch

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultGroupSize items run concurrently per group; groups run
	// strictly sequentially.
	DefaultGroupSize = 3

	// DefaultGroupPause separates consecutive groups.
	DefaultGroupPause = 300 * time.Millisecond

	// DefaultChunkSize is the upstream cap on IDs per list call.
	DefaultChunkSize = 50

	// DefaultChunkPause separates consecutive chunk calls.
	DefaultChunkPause = 50 * time.Millisecond
)

// Result is the per-item outcome of a batched run. A skipped item carries
// the error that caused it; skips never abort the run.
type Result[T any] struct {
	Value   T
	Err     error
	Skipped bool
}

// Options tunes an executor run. Zero values select the defaults above.
type Options struct {
	GroupSize int
	ChunkSize int
	Pause     time.Duration

	// IsFatal classifies errors that must short-circuit the run instead
	// of degrading to a skip. Nil means nothing is fatal.
	IsFatal func(error) bool

	sleep func(context.Context, time.Duration) error
}

func (o Options) groupSize() int {
	if o.GroupSize <= 0 {
		return DefaultGroupSize
	}
	return o.GroupSize
}

func (o Options) chunkSize() int {
	if o.ChunkSize <= 0 || o.ChunkSize > DefaultChunkSize {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

func (o Options) pause(fallback time.Duration) time.Duration {
	if o.Pause > 0 {
		return o.Pause
	}
	return fallback
}

func (o Options) doSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if o.sleep != nil {
		return o.sleep(ctx, d)
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o Options) fatal(err error) bool {
	return o.IsFatal != nil && o.IsFatal(err)
}

// Groups runs fn over items in fixed-size groups: groups execute strictly
// in submission order with a pause between them, items within a group run
// concurrently and are joined before the next group starts.
//
// The returned slice always has one Result per item, in input order. A
// fatal error stops remaining groups, marks unprocessed items skipped, and
// is returned alongside the partial results already collected.
func Groups[T, R any](ctx context.Context, items []T, opts Options, fn func(context.Context, T) (R, error)) ([]Result[R], error) {
	results := make([]Result[R], len(items))
	size := opts.groupSize()
	pause := opts.pause(DefaultGroupPause)

	var fatalErr error

	for start := 0; start < len(items); start += size {
		if start > 0 {
			if err := opts.doSleep(ctx, pause); err != nil {
				fatalErr = err
				markSkipped(results[start:], err)
				break
			}
		}

		end := start + size
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value, err := fn(ctx, items[i])
				if err != nil {
					results[i] = Result[R]{Err: err, Skipped: true}
					return
				}
				results[i] = Result[R]{Value: value}
			}(i)
		}
		wg.Wait() // join-all barrier before the next group

		for i := start; i < end; i++ {
			if results[i].Err != nil && opts.fatal(results[i].Err) {
				fatalErr = results[i].Err
				break
			}
		}
		if fatalErr != nil {
			markSkipped(results[end:], fatalErr)
			break
		}
	}

	return results, fatalErr
}

// Chunks splits ids into batches of up to ChunkSize and issues each batch
// as one call, with a short pause between batches. Results from successful
// chunks are always retained; a failed chunk contributes nothing and
// increments the skip count. A fatal error stops remaining chunks but
// returns what was already fetched.
func Chunks[R any](ctx context.Context, ids []string, opts Options, fn func(context.Context, []string) ([]R, error)) ([]R, int, error) {
	size := opts.chunkSize()
	pause := opts.pause(DefaultChunkPause)

	var out []R
	skipped := 0

	for start := 0; start < len(ids); start += size {
		if start > 0 {
			if err := opts.doSleep(ctx, pause); err != nil {
				return out, skipped, err
			}
		}

		end := start + size
		if end > len(ids) {
			end = len(ids)
		}

		batch, err := fn(ctx, ids[start:end])
		if err != nil {
			skipped++
			if opts.fatal(err) {
				return out, skipped, err
			}
			continue
		}
		out = append(out, batch...)
	}

	return out, skipped, nil
}

func markSkipped[R any](tail []Result[R], err error) {
	for i := range tail {
		tail[i] = Result[R]{Err: err, Skipped: true}
	}
}
