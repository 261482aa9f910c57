package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/debug"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// gateSource returns one record per module whose title is the call number.
// When holdFirst is set the first call blocks until release is closed or
// its context ends.
type gateSource struct {
	calls     atomic.Int32
	holdFirst bool
	release   chan struct{}
	started   chan struct{}
	once      sync.Once

	mu   sync.Mutex
	fail map[model.Module]error
}

func newGate(holdFirst bool) *gateSource {
	return &gateSource{holdFirst: holdFirst, release: make(chan struct{}), started: make(chan struct{})}
}

func (g *gateSource) Name() string { return "gate" }

func (g *gateSource) setFail(m model.Module, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail == nil {
		g.fail = make(map[model.Module]error)
	}
	g.fail[m] = err
}

func (g *gateSource) Fetch(ctx context.Context, m model.Module) ([]model.Record, error) {
	n := g.calls.Add(1)
	if g.holdFirst && n == 1 {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	err := g.fail[m]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []model.Record{{
		ID: string(m) + "-1", Module: m, Kind: model.DefaultKind(m),
		Title: fmt.Sprint(n), Status: "open",
	}}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[model.Module][]model.Record
	at   map[model.Module]time.Time
}

func newMemCache() *memCache {
	return &memCache{data: make(map[model.Module][]model.Record), at: make(map[model.Module]time.Time)}
}

func (c *memCache) Save(_ context.Context, m model.Module, recs []model.Record, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[m] = recs
	c.at[m] = at
	return nil
}

func (c *memCache) Load(_ context.Context, m model.Module) ([]model.Record, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, ok := c.data[m]
	if !ok {
		return nil, time.Time{}, errors.New("not cached")
	}
	return recs, c.at[m], nil
}

var tickets = []model.Module{model.ModuleTickets}

func waitSnapshot(t *testing.T, w *Worker) *Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if se, ok := e.(SnapshotEvent); ok {
				return se.Snapshot
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}
}

func TestWorker_InitialSnapshot(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newGate(false)
	w, err := New(Config{Source: src, Modules: tickets})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	snap := waitSnapshot(t, w)
	if snap.Seq != 1 {
		t.Errorf("seq = %d, want 1", snap.Seq)
	}
	if got := snap.Records(model.ModuleTickets); len(got) != 1 || got[0].ID != "tickets-1" {
		t.Errorf("records = %+v", got)
	}
	if _, ok := snap.Lookup(model.ModuleTickets, "tickets-1"); !ok {
		t.Error("lookup failed")
	}
	if snap.AnyStale() {
		t.Error("fresh snapshot should not be stale")
	}
	if len(snap.Analysis(model.ModuleTickets).KPIs) == 0 {
		t.Error("expected ticket KPIs")
	}
	if w.Latest() != snap {
		t.Error("Latest should return the published snapshot")
	}
}

func TestWorker_StartTwiceAndAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := New(Config{Source: newGate(false), Modules: tickets})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
	w.Stop()
	w.Stop()
	if err := w.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
	if w.Refresh() {
		t.Error("Refresh after Stop should not issue a fetch")
	}
	select {
	case e := <-w.Events():
		t.Errorf("unexpected event after Stop: %#v", e)
	default:
	}
	if w.State() != StateStopped {
		t.Errorf("state = %s", w.State())
	}
}

func TestWorker_ManualRefreshSupersedes(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.DebugLevel)
	src := newGate(true)
	w, err := New(Config{Source: src, Modules: tickets, Logger: zap.New(core)})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-src.started
	if !w.InFlight() {
		t.Fatal("initial fetch should be in flight")
	}

	if !w.Refresh() {
		t.Fatal("manual refresh should supersede")
	}
	snap := waitSnapshot(t, w)
	if snap.Seq != 2 {
		t.Fatalf("published seq = %d, want 2", snap.Seq)
	}
	if snap.AnyStale() {
		t.Error("superseding fetch succeeded; nothing should be stale")
	}
	w.Stop()

	if logs.FilterMessage("refresh_stale_discarded").Len() != 1 {
		t.Errorf("expected the superseded result to be discarded, logs: %v", logs.All())
	}
	if w.Latest().Seq != 2 {
		t.Errorf("latest seq = %d", w.Latest().Seq)
	}
}

func TestWorker_OverlapSkipIgnoresManualRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newGate(true)
	w, err := New(Config{Source: src, Modules: tickets, Overlap: config.OverlapSkip})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	<-src.started

	if w.Refresh() {
		t.Error("refresh should be skipped while in flight")
	}
	close(src.release)
	snap := waitSnapshot(t, w)
	if snap.Seq != 1 {
		t.Errorf("seq = %d, want 1", snap.Seq)
	}
}

func TestWorker_TicksSkippedWhileInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := newGate(true)
	w, err := New(Config{Source: src, Modules: tickets, Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	<-src.started

	time.Sleep(50 * time.Millisecond)
	if seq := w.Seq(); seq != 1 {
		t.Fatalf("ticks issued fetches while one was in flight: seq %d", seq)
	}

	close(src.release)
	first := waitSnapshot(t, w)
	if first.Seq != 1 {
		t.Fatalf("first seq = %d", first.Seq)
	}
	next := waitSnapshot(t, w)
	if next.Seq <= first.Seq {
		t.Errorf("polling did not resume: %d after %d", next.Seq, first.Seq)
	}
}

func TestWorker_FailureServesCachedDataAsStale(t *testing.T) {
	defer goleak.VerifyNone(t)

	cache := newMemCache()
	cachedAt := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	cached := []model.Record{{ID: "T-OLD", Module: model.ModuleTickets, Kind: model.KindTicket}}
	_ = cache.Save(context.Background(), model.ModuleTickets, cached, cachedAt)

	src := newGate(false)
	src.setFail(model.ModuleTickets, errors.New("503 upstream"))

	modules := []model.Module{model.ModuleTickets, model.ModuleEvaluations}
	w, err := New(Config{Source: src, Cache: cache, Modules: modules})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	snap := waitSnapshot(t, w)
	if !snap.IsStale(model.ModuleTickets) || snap.IsStale(model.ModuleEvaluations) {
		t.Fatalf("stale modules = %v", snap.StaleModules())
	}
	if got := snap.Records(model.ModuleTickets); len(got) != 1 || got[0].ID != "T-OLD" {
		t.Errorf("expected cached records, got %+v", got)
	}
	if !snap.CachedAt(model.ModuleTickets).Equal(cachedAt) {
		t.Errorf("cachedAt = %v", snap.CachedAt(model.ModuleTickets))
	}
	if snap.Err(model.ModuleTickets) == nil {
		t.Error("expected a recorded fetch error")
	}

	// Successful modules are written to the cache.
	if _, _, err := cache.Load(context.Background(), model.ModuleEvaluations); err != nil {
		t.Errorf("evaluations not cached: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-w.Events():
			if ee, ok := e.(ErrorEvent); ok {
				var we WorkerError
				if !errors.As(ee.Err, &we) || we.Phase != "fetch" || !ee.Recoverable {
					t.Errorf("unexpected error event %#v", ee)
				}
				if w.LastError() == nil || w.LastError().Retries != 1 {
					t.Errorf("last error = %+v", w.LastError())
				}
				return
			}
		case <-deadline:
			t.Fatal("no error event")
		}
	}
}

func TestWorker_FailureWithoutCacheHasNoPlaceholders(t *testing.T) {
	src := newGate(false)
	src.setFail(model.ModuleTickets, errors.New("down"))

	snap, err := Once(context.Background(), Config{Source: src, Modules: tickets})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !snap.IsStale(model.ModuleTickets) {
		t.Error("module should be stale")
	}
	if n := len(snap.Records(model.ModuleTickets)); n != 0 {
		t.Errorf("expected no fabricated records, got %d", n)
	}
}

func TestWorker_EventsDropOldest(t *testing.T) {
	w, err := New(Config{Source: newGate(false), EventBuffer: 2})
	if err != nil {
		t.Fatal(err)
	}
	w.mu.Lock()
	for i := 1; i <= 5; i++ {
		w.sendLocked(StateEvent{Seq: uint64(i)})
	}
	w.mu.Unlock()

	first := (<-w.Events()).(StateEvent)
	second := (<-w.Events()).(StateEvent)
	if first.Seq != 4 || second.Seq != 5 {
		t.Errorf("kept %d,%d; want 4,5", first.Seq, second.Seq)
	}
}

func TestOnce(t *testing.T) {
	snap, err := Once(context.Background(), Config{Source: newGate(false)})
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range model.Modules {
		if len(snap.Records(m)) != 1 {
			t.Errorf("%s: %d records", m, len(snap.Records(m)))
		}
	}
	if snap.Hash == "" {
		t.Error("snapshot hash missing")
	}
	dash := snap.Analysis(model.ModuleDashboard)
	if len(dash.KPIs) == 0 {
		t.Error("dashboard KPIs missing")
	}
}

func TestCollectLogsModuleTimings(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	debug.SetLogger(zap.New(core))
	t.Cleanup(func() { debug.SetLogger(nil) })

	src := newGate(false)
	src.setFail(model.ModuleGovernance, errors.New("down"))
	if _, err := Once(context.Background(), Config{Source: src}); err == nil {
		t.Fatal("expected the governance failure to be reported")
	}

	timed := make(map[string]bool)
	for _, e := range logs.FilterMessage("timing").All() {
		if op, ok := e.ContextMap()["op"].(string); ok {
			timed[op] = true
		}
	}
	for _, m := range model.Modules {
		if !timed["refresh."+string(m)] {
			t.Errorf("no timing logged for %s; got %v", m, timed)
		}
	}
	if logs.FilterMessageSnippet("1 of").Len() != 1 {
		t.Errorf("expected one failure summary, logs: %v", logs.All())
	}
}

func TestWorker_StopLogsMetrics(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zapcore.DebugLevel)
	w, err := New(Config{Source: newGate(false), Modules: tickets, Logger: zap.New(core)})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitSnapshot(t, w)
	w.Stop()

	entries := logs.FilterMessage("worker_metrics").All()
	if len(entries) != 1 {
		t.Fatalf("worker_metrics logged %d times", len(entries))
	}
	fields := entries[0].ContextMap()
	if _, ok := fields["timings"]; !ok {
		t.Error("timings field missing")
	}
	if _, ok := fields["caches"]; !ok {
		t.Error("caches field missing")
	}
}
