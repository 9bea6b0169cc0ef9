package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrBusy is returned by RefreshNow while another refresh is running.
	ErrBusy = errors.New("refresh already in progress")
	// ErrStopped is returned by RefreshNow before Start or after Stop, and by
	// Start after Stop.
	ErrStopped = errors.New("scheduler not running")
)

// Trigger records what started a refresh.
type Trigger string

const (
	TriggerStart  Trigger = "start"
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
	TriggerEvent  Trigger = "event"
)

// RefreshFunc performs one poll cycle. ctx is cancelled when the scheduler
// stops.
type RefreshFunc func(ctx context.Context, trigger Trigger) error

// Config controls the timer cadence.
type Config struct {
	Interval time.Duration
	// MaxBackoff caps the timer delay after consecutive failures. Backoff is
	// off when it is not greater than Interval.
	MaxBackoff time.Duration
	// Immediate runs one refresh as soon as Start is called.
	Immediate bool
}

// Scheduler runs refreshes on a timer and on demand, never more than one
// at a time.
type Scheduler struct {
	refresh RefreshFunc
	cfg     Config
	logger  zerolog.Logger

	inFlight atomic.Bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
	delay   time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(refresh RefreshFunc, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Scheduler{
		refresh: refresh,
		cfg:     cfg,
		logger:  logger,
		delay:   cfg.Interval,
	}
}

// Start arms the timer. The scheduler runs until Stop or until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop(s.ctx)

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("max_backoff", s.cfg.MaxBackoff).
		Msg("Poll scheduler started")
	return nil
}

// Stop cancels any refresh in flight and waits for it to return. No refresh
// starts after Stop returns.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.logger.Info().Msg("Poll scheduler stopped")
	})
}

// InFlight reports whether a refresh is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// CurrentDelay returns the wait before the next timer refresh.
func (s *Scheduler) CurrentDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// RefreshNow runs a refresh in the caller's goroutine and returns its error.
// It returns ErrBusy without waiting if a refresh is already running; the
// running one will pick up the same ledger state.
func (s *Scheduler) RefreshNow(trigger Trigger) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.logger.Debug().Str("trigger", string(trigger)).Msg("Refresh coalesced")
		return ErrBusy
	}
	s.wg.Add(1)
	ctx := s.ctx
	s.mu.Unlock()

	defer s.wg.Done()
	return s.run(ctx, trigger)
}

// run executes one refresh. The caller holds the in-flight gate.
func (s *Scheduler) run(ctx context.Context, trigger Trigger) error {
	defer s.inFlight.Store(false)

	err := s.refresh(ctx, trigger)
	if ctx.Err() == nil {
		s.recordResult(err)
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.cfg.Immediate {
		s.tick(ctx, TriggerStart)
	}

	timer := time.NewTimer(s.CurrentDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx, TriggerTimer)
			timer.Reset(s.CurrentDelay())
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Str("trigger", string(trigger)).Msg("Refresh still running, skipping tick")
		return
	}
	if err := s.run(ctx, trigger); err != nil {
		s.logger.Warn().Err(err).Str("trigger", string(trigger)).Msg("Refresh failed")
	}
}

// recordResult resets the delay on success and doubles it, up to
// MaxBackoff, on failure.
func (s *Scheduler) recordResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil || s.cfg.MaxBackoff <= s.cfg.Interval {
		s.delay = s.cfg.Interval
		return
	}
	s.delay *= 2
	if s.delay > s.cfg.MaxBackoff {
		s.delay = s.cfg.MaxBackoff
	}
	s.logger.Info().Dur("delay", s.delay).Msg("Backing off before next refresh")
}
