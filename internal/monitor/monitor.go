package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/ledger-monitor/internal/ledger"
	"github.com/afroash/ledger-monitor/internal/metrics"
	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/observability"
	"github.com/afroash/ledger-monitor/internal/poll"
	"github.com/afroash/ledger-monitor/internal/setpoint"
	"github.com/afroash/ledger-monitor/internal/storage"
)

// Journal records finished poll cycles.
type Journal interface {
	Record(rec *models.RefreshRecord) bool
	Recent(limit int) ([]*models.RefreshRecord, error)
	InRange(start, end time.Time, limit int) ([]*models.RefreshRecord, error)
	Stats() storage.RecorderStats
}

var _ Journal = (*storage.Recorder)(nil)

// Config holds the monitor's tunables.
type Config struct {
	Poll             poll.Config
	ClockInterval    time.Duration
	FetchConcurrency int
	Setpoints        models.Setpoints
	// WatchEvents refreshes on ledger append events in addition to the timer.
	WatchEvents bool
}

// Options are the collaborators of a Monitor. Provider may be nil, in which
// case every connect fails with ledger.ErrProviderUnavailable. Journal and
// Metrics are optional.
type Options struct {
	Provider ledger.Provider
	Info     *models.MonitorInfo
	Journal  Journal
	Metrics  *observability.Metrics
	Config   Config
}

const subscriberBuffer = 16

// Monitor owns the one ledger connection and poll loop of the process.
type Monitor struct {
	info        *models.MonitorInfo
	conn        *ledger.Connection
	reader      *ledger.Reader
	setpoints   *setpoint.Store
	scheduler   *poll.Scheduler
	clock       *poll.Clock
	journal     Journal
	metrics     *observability.Metrics
	logger      zerolog.Logger
	watchEvents bool
	now         func() time.Time

	mu          sync.RWMutex
	statusText  string
	lastError   string
	lastRefresh time.Time

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int

	lifeMu    sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	watchOnce sync.Once
	watchWG   sync.WaitGroup
	closeOnce sync.Once
}

// New creates a stopped monitor. Call Start to begin polling.
func New(opts Options, logger zerolog.Logger) *Monitor {
	cfg := opts.Config
	if cfg.Setpoints == (models.Setpoints{}) {
		cfg.Setpoints = models.DefaultSetpoints()
	}
	info := opts.Info
	if info == nil {
		info = models.NewMonitorInfo("dev", "", "")
	}

	m := &Monitor{
		info:        info,
		conn:        ledger.NewConnection(opts.Provider, logger.With().Str("component", "connection").Logger()),
		reader:      ledger.NewReader(cfg.FetchConcurrency, logger.With().Str("component", "reader").Logger()),
		setpoints:   setpoint.NewStore(cfg.Setpoints, logger.With().Str("component", "setpoints").Logger()),
		journal:     opts.Journal,
		metrics:     opts.Metrics,
		logger:      logger,
		watchEvents: cfg.WatchEvents,
		now:         time.Now,
		statusText:  StatusNotConnected,
		subs:        make(map[int]chan Update),
	}
	m.scheduler = poll.NewScheduler(m.refresh, cfg.Poll, logger.With().Str("component", "scheduler").Logger())
	m.clock = poll.NewClock(cfg.ClockInterval, m.tick)
	m.metrics.SetConnectionState(int(ledger.StateDisconnected))
	return m
}

// Start arms the poll timer and the elapsed-time clock.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.lifeMu.Unlock()

	if err := m.scheduler.Start(runCtx); err != nil {
		return err
	}
	m.clock.Start(runCtx)
	m.logger.Info().
		Str("endpoint", m.info.Endpoint).
		Str("contract", m.info.ContractAddress).
		Msg("Monitor started")
	return nil
}

// Close stops polling, waits for in-flight work, closes subscriber channels
// and releases the ledger connection.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.lifeMu.Lock()
		if m.cancel != nil {
			m.cancel()
		}
		m.lifeMu.Unlock()

		m.scheduler.Stop()
		m.clock.Stop()
		m.watchWG.Wait()

		m.subMu.Lock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.subMu.Unlock()

		err = m.conn.Close()
		m.logger.Info().Msg("Monitor closed")
	})
	return err
}

// Connect establishes the ledger connection without fetching.
func (m *Monitor) Connect(ctx context.Context) (string, error) {
	id, err := m.connect(ctx)
	m.publishSnapshot()
	return id, err
}

func (m *Monitor) connect(ctx context.Context) (string, error) {
	if id, ok := m.connectedIdentity(); ok {
		return id, nil
	}

	m.setStatus(StatusConnecting, "")
	id, err := m.conn.Connect(ctx)
	m.metrics.SetConnectionState(int(m.conn.Status().State))
	if err != nil {
		// A cancelled handshake still leaves the connection failed.
		if m.conn.Status().State == ledger.StateFailed {
			m.setStatus(StatusConnectFailed, err.Error())
		}
		return "", err
	}
	m.setStatus(connectedStatus(id), "")
	if session := m.conn.Session(); session != nil {
		m.startWatcher(session)
	}
	return id, nil
}

func (m *Monitor) connectedIdentity() (string, bool) {
	st := m.conn.Status()
	return st.Identity, st.State == ledger.StateConnected
}

// RefreshNow runs a manual poll cycle. It returns poll.ErrBusy when a cycle
// is already running and poll.ErrStopped outside Start/Close.
func (m *Monitor) RefreshNow() error {
	return m.scheduler.RefreshNow(poll.TriggerManual)
}

// refresh is the poll cycle run by the scheduler.
func (m *Monitor) refresh(ctx context.Context, trigger poll.Trigger) error {
	rec := models.NewRefreshRecord(string(trigger))
	m.publishSnapshot()

	count, err := m.fetch(ctx)

	rec.Finish(count, err)
	m.metrics.Refresh(string(trigger), rec.Duration(), count, err)
	if m.journal != nil {
		m.journal.Record(rec)
	}

	if ctx.Err() == nil {
		m.publishSnapshot()
	}

	log := m.logger.Debug()
	if err != nil {
		log = m.logger.Warn().Err(err)
	}
	log.Str("cycle", rec.ID.String()).
		Str("trigger", string(trigger)).
		Int("count", count).
		Dur("elapsed", rec.Duration()).
		Msg("Poll cycle finished")

	return err
}

func (m *Monitor) fetch(ctx context.Context) (int, error) {
	if _, err := m.connect(ctx); err != nil {
		return 0, err
	}
	session := m.conn.Session()
	if session == nil {
		return 0, ledger.ErrProviderUnavailable
	}

	res, err := m.reader.Refresh(ctx, session.Store)
	if err != nil {
		if ctx.Err() == nil {
			m.setStatus(StatusFetchFailed, err.Error())
		}
		return 0, err
	}

	m.mu.Lock()
	m.lastRefresh = res.FetchedAt
	m.mu.Unlock()
	m.setStatus(connectedStatus(session.Identity), "")
	return len(res.Series), nil
}

func (m *Monitor) setStatus(text, errText string) {
	m.mu.Lock()
	m.statusText = text
	m.lastError = errText
	m.mu.Unlock()
}

// startWatcher subscribes to append events once per process when enabled
// and the session's store supports it.
func (m *Monitor) startWatcher(session *ledger.Session) {
	if !m.watchEvents {
		return
	}
	source, ok := session.Store.(ledger.EventSource)
	if !ok {
		m.logger.Warn().Msg("Ledger store does not support append events")
		return
	}

	m.watchOnce.Do(func() {
		m.lifeMu.Lock()
		ctx := m.ctx
		if ctx == nil || ctx.Err() != nil {
			m.lifeMu.Unlock()
			return
		}
		m.watchWG.Add(1)
		m.lifeMu.Unlock()

		w := ledger.NewWatcher(source, m.onAppend, m.logger.With().Str("component", "watcher").Logger())
		go func() {
			defer m.watchWG.Done()
			if err := w.Run(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("Append watcher stopped, timer polling continues")
			}
		}()
	})
}

func (m *Monitor) onAppend(ev ledger.AppendEvent) {
	err := m.scheduler.RefreshNow(poll.TriggerEvent)
	switch {
	case err == nil, errors.Is(err, poll.ErrStopped):
	case errors.Is(err, poll.ErrBusy):
		m.logger.Debug().Uint64("index", ev.Index).Msg("Append during refresh, next cycle picks it up")
	default:
		m.logger.Debug().Err(err).Uint64("index", ev.Index).Msg("Event refresh failed")
	}
}

// StageSetpointEdit stores one setpoint field in the pending buffer. Raw
// text is kept as typed; validated values come from numeric input.
func (m *Monitor) StageSetpointEdit(field string, edit setpoint.Edit) error {
	f, err := setpoint.ParseField(field)
	if err != nil {
		return err
	}
	if err := m.setpoints.StageEdit(f, edit); err != nil {
		return err
	}
	m.publishSnapshot()
	return nil
}

// StageSetpointRange stores both bounds of one dimension.
func (m *Monitor) StageSetpointRange(dimension string, min, max setpoint.Edit) error {
	d, err := setpoint.ParseDimension(dimension)
	if err != nil {
		return err
	}
	if err := m.setpoints.StageRangeEdits(d, min, max); err != nil {
		return err
	}
	m.publishSnapshot()
	return nil
}

// CommitSetpoints applies the pending buffer. Fields that fail to parse keep
// their previous values and are reported as *setpoint.ParseError.
func (m *Monitor) CommitSetpoints() (models.Setpoints, error) {
	sp, err := m.setpoints.Commit()
	m.metrics.SetpointCommit(err)
	m.publishSnapshot()
	return sp, err
}

// Refreshes lists recent poll cycles, newest first.
func (m *Monitor) Refreshes(limit int) ([]*models.RefreshRecord, error) {
	if m.journal == nil {
		return []*models.RefreshRecord{}, nil
	}
	return m.journal.Recent(limit)
}

// RefreshesBetween lists poll cycles started within [start, end], newest
// first.
func (m *Monitor) RefreshesBetween(start, end time.Time, limit int) ([]*models.RefreshRecord, error) {
	if m.journal == nil {
		return []*models.RefreshRecord{}, nil
	}
	return m.journal.InRange(start, end, limit)
}

// JournalStats reports on the refresh journal. ok is false when the journal
// is disabled.
func (m *Monitor) JournalStats() (stats storage.RecorderStats, ok bool) {
	if m.journal == nil {
		return stats, false
	}
	return m.journal.Stats(), true
}

// Info describes the monitoring session.
func (m *Monitor) Info() *models.MonitorInfo {
	return m.info
}

// Snapshot assembles the current view-model.
func (m *Monitor) Snapshot() Snapshot {
	now := m.now()
	res, _ := m.reader.Current()
	series := res.Series.Clone()
	if series == nil {
		series = models.Series{}
	}
	active := m.setpoints.Active()

	m.mu.RLock()
	status, lastErr, last := m.statusText, m.lastError, m.lastRefresh
	m.mu.RUnlock()

	snap := Snapshot{
		Series:      series,
		Setpoints:   active,
		Pending:     m.setpoints.Pending(),
		Connection:  m.conn.Status(),
		Metrics:     metrics.Compute(series, active, m.info.StartTime, now),
		Status:      status,
		Error:       lastErr,
		Refreshing:  m.scheduler.InFlight(),
		Monitor:     m.info,
		GeneratedAt: now,
	}
	if !last.IsZero() {
		snap.LastRefresh = &last
	}
	return snap
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. Slow subscribers miss updates rather than blocking.
func (m *Monitor) Subscribe() (<-chan Update, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Update, subscriberBuffer)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

func (m *Monitor) publishSnapshot() {
	m.subMu.Lock()
	n := len(m.subs)
	m.subMu.Unlock()
	if n == 0 {
		return
	}
	snap := m.Snapshot()
	m.broadcast(Update{Type: models.MessageTypeSnapshot, Snapshot: &snap, Elapsed: snap.Metrics.Elapsed})
}

func (m *Monitor) tick(now time.Time) {
	m.broadcast(Update{Type: models.MessageTypeClock, Elapsed: metrics.ElapsedSince(m.info.StartTime, now)})
}

func (m *Monitor) broadcast(u Update) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- u:
		default:
			m.logger.Debug().Int("subscriber", id).Str("type", string(u.Type)).Msg("Subscriber behind, dropping update")
		}
	}
}
