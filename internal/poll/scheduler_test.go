package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a RefreshFunc that tracks concurrency and triggers.
type recorder struct {
	mu       sync.Mutex
	triggers []Trigger

	running    atomic.Int32
	maxRunning atomic.Int32
	calls      atomic.Int32

	hold chan struct{}
	err  error
}

func (r *recorder) refresh(ctx context.Context, trigger Trigger) error {
	r.calls.Add(1)
	n := r.running.Add(1)
	defer r.running.Add(-1)
	if n > r.maxRunning.Load() {
		r.maxRunning.Store(n)
	}

	r.mu.Lock()
	r.triggers = append(r.triggers, trigger)
	r.mu.Unlock()

	if r.hold != nil {
		select {
		case <-r.hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.err
}

func (r *recorder) seen() []Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Trigger(nil), r.triggers...)
}

func TestScheduler_ImmediateAndTimer(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec.refresh, Config{Interval: 20 * time.Millisecond, Immediate: true}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return rec.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	seen := rec.seen()
	assert.Equal(t, TriggerStart, seen[0])
	assert.Equal(t, TriggerTimer, seen[1])
}

func TestScheduler_StartTwice(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec.refresh, Config{Interval: time.Hour}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_ManualDuringTimerFetchIsCoalesced(t *testing.T) {
	rec := &recorder{hold: make(chan struct{})}
	s := NewScheduler(rec.refresh, Config{Interval: time.Hour, Immediate: true}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, s.RefreshNow(TriggerManual), ErrBusy)
	}
	assert.Equal(t, int32(1), rec.running.Load())

	close(rec.hold)
	require.Eventually(t, func() bool { return !s.InFlight() }, time.Second, time.Millisecond)

	require.NoError(t, s.RefreshNow(TriggerManual))
	assert.Equal(t, int32(1), rec.maxRunning.Load())
	assert.Equal(t, []Trigger{TriggerStart, TriggerManual}, rec.seen())
}

func TestScheduler_ConcurrentManualTriggers(t *testing.T) {
	rec := &recorder{hold: make(chan struct{})}
	s := NewScheduler(rec.refresh, Config{Interval: time.Hour}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var wg sync.WaitGroup
	var busy atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(s.RefreshNow(TriggerManual), ErrBusy) {
				busy.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return busy.Load() == 9 }, time.Second, time.Millisecond)
	close(rec.hold)
	wg.Wait()

	assert.Equal(t, int32(1), rec.calls.Load())
	assert.Equal(t, int32(1), rec.maxRunning.Load())
}

func TestScheduler_RefreshNowWhenNotRunning(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec.refresh, Config{Interval: time.Hour}, zerolog.Nop())

	assert.ErrorIs(t, s.RefreshNow(TriggerManual), ErrStopped)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	assert.ErrorIs(t, s.RefreshNow(TriggerManual), ErrStopped)
	assert.Zero(t, rec.calls.Load())
}

func TestScheduler_StartAfterStop(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(rec.refresh, Config{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())
	s.Stop()

	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rec.calls.Load())
	assert.ErrorIs(t, s.RefreshNow(TriggerManual), ErrStopped)
}

func TestScheduler_StopCancelsInFlight(t *testing.T) {
	rec := &recorder{hold: make(chan struct{})}
	s := NewScheduler(rec.refresh, Config{Interval: 10 * time.Millisecond, Immediate: true}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)
	s.Stop()

	calls := rec.calls.Load()
	assert.False(t, s.InFlight())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, rec.calls.Load())
}

func TestScheduler_Backoff(t *testing.T) {
	s := NewScheduler(nil, Config{Interval: time.Second, MaxBackoff: 5 * time.Second}, zerolog.Nop())
	failure := errors.New("node down")

	s.recordResult(failure)
	assert.Equal(t, 2*time.Second, s.CurrentDelay())
	s.recordResult(failure)
	assert.Equal(t, 4*time.Second, s.CurrentDelay())
	s.recordResult(failure)
	assert.Equal(t, 5*time.Second, s.CurrentDelay())

	s.recordResult(nil)
	assert.Equal(t, time.Second, s.CurrentDelay())
}

func TestScheduler_BackoffDisabled(t *testing.T) {
	s := NewScheduler(nil, Config{Interval: time.Second}, zerolog.Nop())
	s.recordResult(errors.New("node down"))
	assert.Equal(t, time.Second, s.CurrentDelay())
}

func TestScheduler_FailureKeepsArmed(t *testing.T) {
	rec := &recorder{err: errors.New("fetch failed")}
	s := NewScheduler(rec.refresh, Config{Interval: 10 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool { return rec.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestClock(t *testing.T) {
	var ticks atomic.Int32
	c := NewClock(5*time.Millisecond, func(time.Time) { ticks.Add(1) })
	c.Start(context.Background())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	c.Stop()
	c.Stop()

	n := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, ticks.Load())
}
