package ledger

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/afroash/ledger-monitor/internal/models"
)

// Result is one successful fetch.
type Result struct {
	Series    models.Series
	FetchedAt time.Time
}

// Reader rebuilds the full reading series from a ReadingStore and keeps the
// last complete one.
type Reader struct {
	concurrency int
	logger      zerolog.Logger
	current     atomic.Pointer[Result]
}

// NewReader creates a reader issuing at most concurrency index reads at a
// time. A concurrency of 1 reads strictly in increasing index order.
func NewReader(concurrency int, logger zerolog.Logger) *Reader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reader{
		concurrency: concurrency,
		logger:      logger,
	}
}

// fetchIndices yields 0..n-1. Each range over it starts again from 0.
func fetchIndices(n uint64) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for i := uint64(0); i < n; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// MaxReadings bounds the count accepted from the store. A larger count is
// reported as a FetchError before any reading is requested.
const MaxReadings = 1 << 20

// FetchAll reads the current count and every reading below it. Any failed
// read aborts the whole fetch; no partial series is returned. When several
// reads fail the error names the lowest failing index: reads below a failure
// still complete, reads above it are skipped.
func (r *Reader) FetchAll(ctx context.Context, store ReadingStore) (models.Series, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	if n > MaxReadings {
		return nil, &FetchError{Err: fmt.Errorf("reading count %d exceeds limit %d", n, MaxReadings)}
	}

	series := make(models.Series, n)
	if n == 0 {
		return series, nil
	}

	var (
		g       errgroup.Group
		mu      sync.Mutex
		failure *FetchError
	)
	g.SetLimit(r.concurrency)

	failedBelow := func(i uint64) bool {
		mu.Lock()
		defer mu.Unlock()
		return failure != nil && failure.Index < i
	}

	for i := range fetchIndices(n) {
		if ctx.Err() != nil || failedBelow(i) {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil || failedBelow(i) {
				return nil
			}
			raw, err := store.ReadingAt(ctx, i)
			if err != nil {
				mu.Lock()
				if failure == nil || i < failure.Index {
					failure = &FetchError{Index: i, HasIndex: true, Err: err}
				}
				mu.Unlock()
				return nil
			}
			series[i] = raw.Decode(i)
			return nil
		})
	}
	_ = g.Wait()

	if failure != nil {
		return nil, failure
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch cancelled: %w", err)
	}

	return series, nil
}

// Refresh fetches and, on success only, replaces the current series.
func (r *Reader) Refresh(ctx context.Context, store ReadingStore) (Result, error) {
	start := time.Now()
	series, err := r.FetchAll(ctx, store)
	if err != nil {
		r.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Fetch failed, keeping previous series")
		return Result{}, err
	}

	res := &Result{Series: series, FetchedAt: time.Now()}
	r.current.Store(res)

	r.logger.Debug().
		Int("count", len(series)).
		Dur("elapsed", time.Since(start)).
		Msg("Series refreshed")
	return *res, nil
}

// Current returns the last complete fetch. ok is false before the first
// successful refresh.
func (r *Reader) Current() (Result, bool) {
	res := r.current.Load()
	if res == nil {
		return Result{}, false
	}
	return *res, true
}
