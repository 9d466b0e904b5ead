package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultRecentLimit is how many stored records each cycle distributes.
const DefaultRecentLimit = 200

// Source fetches raw records from the upstream feed. Failures surface as an
// empty slice, never an error.
type Source interface {
	FetchLive(ctx context.Context) []domain.RawRecord
	FetchArchive(ctx context.Context, date time.Time) []domain.RawRecord
}

// Normalizer turns raw records into earthquakes, preserving order.
type Normalizer interface {
	Normalize(ctx context.Context, raws []domain.RawRecord) []domain.Earthquake
}

// Store persists earthquakes and reads back the most recent ones.
type Store interface {
	Upsert(ctx context.Context, quakes []domain.Earthquake) (int, error)
	FetchRecent(ctx context.Context, limit int) ([]domain.Earthquake, error)
	Count(ctx context.Context) (int, error)
}

// Distributor hands the reloaded record list to subscribers.
type Distributor interface {
	Distribute(ctx context.Context, quakes []domain.Earthquake)
}

// Notifier is told when a live record meets the notification threshold.
type Notifier interface {
	Notify(ctx context.Context, eq domain.Earthquake, threshold float64)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, eq domain.Earthquake, threshold float64)

func (f NotifierFunc) Notify(ctx context.Context, eq domain.Earthquake, threshold float64) {
	f(ctx, eq, threshold)
}

// AppContext carries the shared collaborators every long-lived component
// needs. It replaces process-wide settings and logger globals.
type AppContext struct {
	Settings *config.SettingsStore
	Logger   *slog.Logger
	Clock    clockwork.Clock
}

// State is the refresh cycle state machine.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateNormalizing
	StatePersisting
	StateDistributing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StatePersisting:
		return "persisting"
	case StateDistributing:
		return "distributing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Mode selects the upstream endpoint for a cycle.
type Mode struct {
	archive bool
	date    time.Time
}

// Live fetches the current feed.
func Live() Mode { return Mode{} }

// Archive fetches one past calendar day.
func Archive(date time.Time) Mode { return Mode{archive: true, date: date} }

// IsLive reports whether the mode targets the live feed.
func (m Mode) IsLive() bool { return !m.archive }

// Date is the archive day; zero for live mode.
func (m Mode) Date() time.Time { return m.date }

func (m Mode) String() string {
	if m.archive {
		return "archive"
	}
	return "live"
}

// CycleResult summarizes one refresh cycle.
type CycleResult struct {
	ID      string
	Mode    Mode
	Fetched int // raw records received
	Written int // rows upserted
	Count   int // records distributed

	// NotifiedThreshold is set when the live feed's first record met the
	// threshold; Notified is that record.
	NotifiedThreshold *float64
	Notified          *domain.Earthquake

	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Succeeded reports whether the cycle reached distribution.
func (r CycleResult) Succeeded() bool { return r.Err == nil }

// Coordinator runs refresh cycles: fetch, normalize, persist, reload,
// distribute, then evaluate the notification threshold. At most one cycle
// is in flight; overlapping requests are no-ops.
type Coordinator struct {
	source      Source
	normalizer  Normalizer
	store       Store
	distributor Distributor
	notifier    Notifier

	settings *config.SettingsStore
	logger   *slog.Logger
	clock    clockwork.Clock
	metrics  *observability.Metrics

	recentLimit int
	state       atomic.Int32
	ready       atomic.Bool
	reschedule  chan struct{}
	inflight    sync.WaitGroup

	mu   sync.Mutex
	last *CycleResult
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets the threshold notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithRecentLimit sets how many stored records are distributed per cycle.
func WithRecentLimit(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.recentLimit = n
		}
	}
}

// New creates a Coordinator wired to its stages.
func New(app AppContext, src Source, n Normalizer, st Store, d Distributor, metrics *observability.Metrics, opts ...Option) *Coordinator {
	clock := app.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Coordinator{
		source:      src,
		normalizer:  n,
		store:       st,
		distributor: d,
		settings:    app.Settings,
		logger:      app.Logger,
		clock:       clock,
		metrics:     metrics,
		recentLimit: DefaultRecentLimit,
		reschedule:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current cycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// CheckReadiness returns nil once a cycle has completed successfully.
func (c *Coordinator) CheckReadiness(_ context.Context) error {
	if !c.ready.Load() {
		return errors.New("no refresh cycle has completed yet")
	}
	return nil
}

// LastResult returns the most recent finished cycle, if any.
func (c *Coordinator) LastResult() (CycleResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return CycleResult{}, false
	}
	return *c.last, true
}

// RunCycle runs one cycle on the calling goroutine. The bool is false when
// another cycle was already in flight; nothing is done in that case.
func (c *Coordinator) RunCycle(ctx context.Context, mode Mode) (CycleResult, bool) {
	if !c.acquire(mode) {
		return CycleResult{}, false
	}
	return c.run(ctx, mode), true
}

// Trigger starts a cycle in the background and returns immediately. It
// returns false when a cycle is already in flight. The cycle is detached
// from ctx cancellation; the fetch timeout bounds it.
func (c *Coordinator) Trigger(ctx context.Context, mode Mode) bool {
	if !c.acquire(mode) {
		return false
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.run(context.WithoutCancel(ctx), mode)
	}()
	return true
}

// Wait blocks until background cycles started by Trigger have finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// Reschedule makes Run re-read the refresh interval now instead of at the
// next tick. Call it after the interval setting changes.
func (c *Coordinator) Reschedule() {
	select {
	case c.reschedule <- struct{}{}:
	default:
	}
}

// Run performs a live cycle immediately, then one per refresh interval until
// ctx is cancelled. The interval is re-read from settings before each wait.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("refresh loop started", "interval", c.interval())
	defer c.Wait()

	c.RunCycle(ctx, Live())

	for {
		interval := c.interval()
		timer := c.clock.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		case <-c.reschedule:
			timer.Stop()
			c.logger.Debug("refresh interval rescheduled", "interval", c.interval())
		case <-timer.Chan():
			if _, ok := c.RunCycle(ctx, Live()); !ok {
				c.logger.Debug("timer tick skipped, cycle in flight")
			}
		}
	}
}

// Snapshot returns the stored recent records. When the store is empty it
// first runs a live cycle so a fresh install shows data on first open.
func (c *Coordinator) Snapshot(ctx context.Context) ([]domain.Earthquake, error) {
	quakes, err := c.store.FetchRecent(ctx, c.recentLimit)
	if err != nil {
		return nil, err
	}
	if len(quakes) > 0 {
		return quakes, nil
	}
	if _, ok := c.RunCycle(ctx, Live()); !ok {
		return quakes, nil
	}
	return c.store.FetchRecent(ctx, c.recentLimit)
}

func (c *Coordinator) interval() time.Duration {
	if c.settings == nil {
		return config.DefaultSettings().RefreshInterval()
	}
	return c.settings.Get().RefreshInterval()
}

func (c *Coordinator) threshold() float64 {
	if c.settings == nil {
		return config.DefaultSettings().NotifyThreshold
	}
	return c.settings.Get().NotifyThreshold
}

func (c *Coordinator) acquire(mode Mode) bool {
	if c.state.CompareAndSwap(int32(StateIdle), int32(StateFetching)) {
		c.metrics.CycleRunning.Set(1)
		return true
	}
	c.metrics.Cycles.WithLabelValues(mode.String(), "skipped").Inc()
	c.logger.Debug("refresh skipped, cycle in flight", "mode", mode.String(), "state", c.State().String())
	return false
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

// run executes a cycle whose state has already been acquired.
func (c *Coordinator) run(ctx context.Context, mode Mode) (result CycleResult) {
	result = CycleResult{ID: uuid.NewString(), Mode: mode, StartedAt: c.clock.Now()}
	logger := c.logger.With("cycle_id", result.ID, "mode", mode.String())

	defer func() {
		result.Duration = c.clock.Since(result.StartedAt)
		c.finish(logger, result)
	}()

	var raws []domain.RawRecord
	if mode.IsLive() {
		raws = c.source.FetchLive(ctx)
	} else {
		raws = c.source.FetchArchive(ctx, mode.Date())
	}
	result.Fetched = len(raws)
	if len(raws) == 0 {
		logger.Warn("feed returned no records, keeping stored data")
	}

	c.setState(StateNormalizing)
	quakes := c.normalizer.Normalize(ctx, raws)

	c.setState(StatePersisting)
	written, err := c.store.Upsert(ctx, quakes)
	if err != nil {
		result.Err = fmt.Errorf("persist: %w", err)
		return result
	}
	result.Written = written

	recent, err := c.store.FetchRecent(ctx, c.recentLimit)
	if err != nil {
		result.Err = fmt.Errorf("reload recent: %w", err)
		return result
	}
	if _, err := c.store.Count(ctx); err != nil {
		logger.Warn("count stored records failed", "error", err)
	}

	c.setState(StateDistributing)
	c.distributor.Distribute(ctx, recent)
	result.Count = len(recent)

	// The provider's first live record decides, not the store's newest.
	if mode.IsLive() && len(quakes) > 0 {
		threshold := c.threshold()
		if first := quakes[0]; first.Magnitude >= threshold {
			result.NotifiedThreshold = &threshold
			result.Notified = &first
			c.metrics.Notifications.Inc()
			if c.notifier != nil {
				c.notifier.Notify(ctx, first, threshold)
			}
		}
	}
	return result
}

func (c *Coordinator) finish(logger *slog.Logger, result CycleResult) {
	c.metrics.CycleDuration.Observe(result.Duration.Seconds())
	if result.Err != nil {
		c.metrics.Cycles.WithLabelValues(result.Mode.String(), "failed").Inc()
		logger.Error("refresh cycle failed", "error", result.Err, "fetched", result.Fetched)
	} else {
		c.metrics.Cycles.WithLabelValues(result.Mode.String(), "success").Inc()
		c.ready.Store(true)
		logger.Info("refreshed",
			"count", result.Count,
			"fetched", result.Fetched,
			"written", result.Written,
			"duration", result.Duration,
		)
	}

	c.mu.Lock()
	c.last = &result
	c.mu.Unlock()

	c.setState(StateIdle)
	c.metrics.CycleRunning.Set(0)
}
