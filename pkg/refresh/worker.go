// Package refresh owns the polling loop that turns Fetch Layer results into
// immutable snapshots.
//
// Overlap policy: an interval tick that fires while a fetch is in flight is
// skipped. A manual refresh supersedes the in-flight fetch: the old request
// is cancelled and a new one issued. Every request carries a monotonic
// sequence number and only the newest issued request may publish, so a
// slow response can never overwrite a newer one.
package refresh

import (
	"context"
	"errors"
	"fmt"
	rtdebug "runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/internal/datasource"
	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/debug"
	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

var (
	// ErrAlreadyStarted is returned by Start on a running worker.
	ErrAlreadyStarted = errors.New("refresh worker already started")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("refresh worker stopped")
	// ErrEmptySnapshot is returned by readers when nothing was published yet.
	ErrEmptySnapshot = errors.New("no snapshot available")
)

// State is the worker lifecycle state.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Reason says what triggered a refresh.
type Reason string

const (
	ReasonInitial Reason = "initial"
	ReasonTick    Reason = "tick"
	ReasonManual  Reason = "manual"
	ReasonWatch   Reason = "watch"
)

// WorkerError wraps errors with phase and retry context.
type WorkerError struct {
	Phase   string    // "fetch", "normalize", "analyze", "cache"
	Cause   error     // The underlying error
	Time    time.Time // When the error occurred
	Retries int       // Consecutive failed refreshes
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v (retries: %d)", e.Phase, e.Cause, e.Retries)
}

func (e WorkerError) Unwrap() error {
	return e.Cause
}

// Event is delivered on the Events channel.
type Event interface{ event() }

// SnapshotEvent carries a newly published snapshot.
type SnapshotEvent struct{ Snapshot *Snapshot }

// ErrorEvent reports a failed refresh. Recoverable errors leave the previous
// or last-known data in place.
type ErrorEvent struct {
	Err         error
	Recoverable bool
}

// StateEvent reports a state transition.
type StateEvent struct {
	State  State
	Seq    uint64
	Reason Reason
}

func (SnapshotEvent) event() {}
func (ErrorEvent) event()    {}
func (StateEvent) event()    {}

// SnapshotCache is the last-known store; *datasource.Cache implements it.
type SnapshotCache interface {
	Save(ctx context.Context, module model.Module, records []model.Record, fetchedAt time.Time) error
	Load(ctx context.Context, module model.Module) ([]model.Record, time.Time, error)
}

// Config configures a Worker. Zero values use defaults.
type Config struct {
	Source      datasource.Source
	Cache       SnapshotCache // optional
	Engine      *analysis.Engine
	Modules     []model.Module
	Interval    time.Duration // 0 disables polling
	Overlap     string        // config.OverlapSkip or config.OverlapSupersede
	Concurrency int
	Timeout     time.Duration // per refresh, default 60s
	EventBuffer int           // default 8
	Logger      *zap.Logger
	Prom        *metrics.Prom
	Now         func() time.Time
}

// Worker polls the source and publishes snapshots.
type Worker struct {
	cfg    Config
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	started    bool
	seq        uint64 // newest issued
	published  uint64 // newest published
	inflight   context.CancelFunc
	inflightSq uint64
	latest     *Snapshot
	lastErr    *WorkerError
	errorCount int

	events     chan Event
	intervalCh chan time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	done       chan struct{}
}

// New creates a worker. It does nothing until Start.
func New(cfg Config) (*Worker, error) {
	if cfg.Source == nil {
		return nil, errors.New("refresh: nil source")
	}
	if cfg.Engine == nil {
		cfg.Engine = analysis.NewEngine(analysis.DefaultPolicy())
	}
	if len(cfg.Modules) == 0 {
		cfg.Modules = model.Modules
	}
	if cfg.Overlap == "" {
		cfg.Overlap = config.OverlapSupersede
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg:        cfg,
		logger:     logger.Named("refresh"),
		events:     make(chan Event, cfg.EventBuffer),
		intervalCh: make(chan time.Duration, 1),
		done:       make(chan struct{}),
	}, nil
}

// Events returns the event channel. It is never closed; use Done.
func (w *Worker) Events() <-chan Event { return w.events }

// Done is closed by Stop.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Start issues the initial refresh and begins polling.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("worker_start", zap.String("source", w.cfg.Source.Name()), zap.Duration("interval", w.cfg.Interval))
	go w.loop(w.cfg.Interval)
	w.trigger(ReasonInitial)
	return nil
}

// Stop cancels any in-flight fetch and waits for goroutines to exit. No
// events are delivered after Stop returns. Stop is idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	w.state = StateStopped
	if w.inflight != nil {
		w.inflight()
		w.inflight = nil
	}
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	close(w.done)

	// Drop undelivered events.
	for {
		select {
		case <-w.events:
		default:
			w.logger.Debug("worker_metrics",
				zap.Any("timings", metrics.AllTimingStats()),
				zap.Any("caches", cacheStats()),
			)
			w.logger.Info("worker_stop")
			return
		}
	}
}

// Refresh requests a manual refresh. It reports whether a fetch was issued.
func (w *Worker) Refresh() bool {
	return w.trigger(ReasonManual)
}

// Notify requests a refresh because the underlying data changed on disk.
// It follows the manual-refresh overlap policy.
func (w *Worker) Notify() bool {
	return w.trigger(ReasonWatch)
}

// SetInterval changes the polling interval; d <= 0 pauses polling.
func (w *Worker) SetInterval(d time.Duration) {
	select {
	case <-w.intervalCh:
	default:
	}
	w.intervalCh <- d
}

// Latest returns the newest published snapshot, or nil.
func (w *Worker) Latest() *Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// InFlight reports whether a fetch is running.
func (w *Worker) InFlight() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight != nil
}

// Seq returns the newest issued sequence number.
func (w *Worker) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// LastError returns the most recent refresh error (nil after a clean refresh).
func (w *Worker) LastError() *WorkerError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Worker) loop(interval time.Duration) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("loop_panic", zap.Any("panic", r), zap.ByteString("stack", rtdebug.Stack()))
		}
	}()

	var ticker *time.Ticker
	var tick <-chan time.Time
	reset := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	reset(interval)
	defer reset(0)

	for {
		select {
		case <-w.ctx.Done():
			return
		case d := <-w.intervalCh:
			w.logger.Debug("interval_changed", zap.Duration("interval", d))
			reset(d)
		case <-tick:
			w.trigger(ReasonTick)
		}
	}
}

// trigger issues a fetch according to the overlap policy.
func (w *Worker) trigger(reason Reason) bool {
	w.mu.Lock()
	if w.state == StateStopped || !w.started {
		w.mu.Unlock()
		return false
	}
	if w.inflight != nil {
		if reason == ReasonTick || reason == ReasonInitial || w.cfg.Overlap == config.OverlapSkip {
			sq := w.inflightSq
			w.mu.Unlock()
			w.cfg.Prom.TickSkipped()
			w.logger.Debug("refresh_skipped", zap.String("reason", string(reason)), zap.Uint64("inflight_seq", sq))
			return false
		}
		// Supersede: the old request is cancelled; its result will also fail
		// the sequence check if it races past cancellation.
		w.inflight()
	}
	w.seq++
	seq := w.seq
	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.Timeout)
	w.inflight = cancel
	w.inflightSq = seq
	w.state = StateFetching
	w.sendLocked(StateEvent{State: StateFetching, Seq: seq, Reason: reason})
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("refresh_start", zap.Uint64("seq", seq), zap.String("reason", string(reason)))
	go w.run(ctx, cancel, seq, reason)
	return true
}

func (w *Worker) run(ctx context.Context, cancel context.CancelFunc, seq uint64, reason Reason) {
	defer w.wg.Done()
	defer cancel()
	start := time.Now()

	snap, werr := w.collect(ctx, seq, w.previous())
	duration := time.Since(start)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inflightSq == seq {
		w.inflight = nil
		if w.state != StateStopped {
			w.state = StateIdle
		}
	}
	if w.state == StateStopped {
		return
	}
	if seq != w.seq || seq <= w.published {
		w.cfg.Prom.StaleDiscarded()
		w.logger.Debug("refresh_stale_discarded", zap.Uint64("seq", seq), zap.Uint64("newest", w.seq))
		return
	}

	w.published = seq
	w.latest = snap
	if werr != nil {
		w.errorCount++
		werr.Retries = w.errorCount
		w.lastErr = werr
	} else {
		w.errorCount = 0
		w.lastErr = nil
	}
	w.cfg.Prom.ObserveRefresh(duration)

	stale := snap.StaleModules()
	w.logger.Info("refresh_done",
		zap.Uint64("seq", seq),
		zap.String("reason", string(reason)),
		zap.Duration("duration", duration),
		zap.Int("modules", len(w.cfg.Modules)),
		zap.Int("records", snap.Total()),
		zap.Int("stale", len(stale)),
	)
	w.sendLocked(SnapshotEvent{Snapshot: snap})
	if werr != nil {
		w.logger.Warn("refresh_error", zap.Uint64("seq", seq), zap.Error(werr))
		w.sendLocked(ErrorEvent{Err: *werr, Recoverable: true})
	}
	w.sendLocked(StateEvent{State: StateIdle, Seq: seq, Reason: reason})
}

func (w *Worker) previous() *Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// collect fetches every module and builds a snapshot. Failed modules fall
// back to the cache, then to the previous snapshot, and are marked stale.
// The returned error is non-nil when at least one module failed.
func (w *Worker) collect(ctx context.Context, seq uint64, prev *Snapshot) (*Snapshot, *WorkerError) {
	defer debug.LogEnterExit(fmt.Sprintf("refresh.collect#%d", seq))()
	now := w.cfg.Now()
	res := datasource.FetchAll(ctx, w.cfg.Source, w.cfg.Modules, w.cfg.Concurrency)

	data := make(map[model.Module]ModuleData, len(w.cfg.Modules))
	var fetchErrs []error
	var cacheErr error
	for _, m := range w.cfg.Modules {
		debug.LogTiming("refresh."+string(m), res.Durations[m])
		if err, failed := res.Errors[m]; failed {
			w.cfg.Prom.ObserveFetch(string(m), "error")
			fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", m, err))
			data[m] = w.fallback(m, err, prev)
			continue
		}
		recs := res.Records[m]
		w.cfg.Prom.ObserveFetch(string(m), "ok")
		w.cfg.Prom.SetRecords(string(m), len(recs))
		data[m] = ModuleData{Records: recs}
		if w.cfg.Cache != nil && ctx.Err() == nil {
			if err := w.cfg.Cache.Save(ctx, m, recs, now); err != nil && cacheErr == nil {
				cacheErr = err
				w.logger.Warn("cache_save_failed", zap.String("module", string(m)), zap.Error(err))
			}
		}
	}

	debug.LogIf(len(fetchErrs) > 0, "refresh #%d: %d of %d modules failed", seq, len(fetchErrs), len(w.cfg.Modules))

	byModule := make(map[model.Module][]model.Record, len(data))
	for m, d := range data {
		byModule[m] = d.Records
	}
	var results map[model.Module]analysis.Result
	if werr := safeCompute("analyze", func() error {
		results = w.cfg.Engine.AnalyzeAll(byModule, now)
		return nil
	}); werr != nil {
		w.logger.Error("analyze_failed", zap.Error(werr))
		return NewSnapshot(seq, now, w.cfg.Source.Name(), data, nil), werr
	}
	for m, r := range results {
		w.cfg.Prom.SetInsights(string(m), kindCounts(r.Insights))
	}

	snap := NewSnapshot(seq, now, w.cfg.Source.Name(), data, results)
	switch {
	case len(fetchErrs) > 0:
		return snap, &WorkerError{Phase: "fetch", Cause: errors.Join(fetchErrs...), Time: now}
	case cacheErr != nil:
		return snap, &WorkerError{Phase: "cache", Cause: cacheErr, Time: now}
	}
	return snap, nil
}

func (w *Worker) fallback(m model.Module, err error, prev *Snapshot) ModuleData {
	d := ModuleData{Stale: true, Err: err}
	if w.cfg.Cache != nil {
		// The fetch context may be cancelled; the cache read must not be.
		recs, at, cerr := w.cfg.Cache.Load(context.Background(), m)
		if cerr == nil {
			d.Records, d.CachedAt = recs, at
			return d
		}
	}
	if prev != nil {
		d.Records = prev.Records(m)
		d.CachedAt = prev.FetchedAt
		if prev.IsStale(m) {
			d.CachedAt = prev.CachedAt(m)
		}
	}
	return d
}

func cacheStats() []metrics.CacheStats {
	all := metrics.AllCacheMetrics()
	out := make([]metrics.CacheStats, 0, len(all))
	for _, c := range all {
		out = append(out, c.Stats())
	}
	return out
}

func kindCounts(insights []analysis.Insight) map[string]int {
	out := make(map[string]int)
	for k, n := range analysis.CountByKind(insights) {
		out[string(k)] = n
	}
	return out
}

// sendLocked delivers e without blocking; when the buffer is full the
// oldest event is dropped so the newest wins. Callers hold w.mu, which
// orders sends against Stop.
func (w *Worker) sendLocked(e Event) {
	for {
		select {
		case w.events <- e:
			return
		default:
		}
		select {
		case <-w.events:
		default:
		}
	}
}

// safeCompute executes fn and recovers from any panics.
func safeCompute(phase string, fn func() error) *WorkerError {
	var result *WorkerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				result = &WorkerError{
					Phase: phase,
					Cause: fmt.Errorf("panic: %v\n%s", r, rtdebug.Stack()),
					Time:  time.Now(),
				}
			}
		}()
		if err := fn(); err != nil {
			result = &WorkerError{Phase: phase, Cause: err, Time: time.Now()}
		}
	}()
	return result
}

// Once fetches and analyzes every module a single time, without polling.
// Command-line subcommands use it.
func Once(ctx context.Context, cfg Config) (*Snapshot, error) {
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}
	snap, werr := w.collect(ctx, 1, nil)
	if werr != nil {
		return snap, *werr
	}
	return snap, nil
}
