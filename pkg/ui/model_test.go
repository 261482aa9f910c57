package ui

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/state"
	"github.com/vanderheijden86/bmo/pkg/testutil"
)

// fakeRefresher records calls instead of fetching anything.
type fakeRefresher struct {
	mu        sync.Mutex
	events    chan refresh.Event
	done      chan struct{}
	refreshes int
	notifies  int
	intervals []time.Duration
	latest    *refresh.Snapshot
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{events: make(chan refresh.Event, 4), done: make(chan struct{})}
}

func (f *fakeRefresher) Start(context.Context) error  { return nil }
func (f *fakeRefresher) Events() <-chan refresh.Event { return f.events }
func (f *fakeRefresher) Done() <-chan struct{}        { return f.done }
func (f *fakeRefresher) Latest() *refresh.Snapshot    { return f.latest }
func (f *fakeRefresher) InFlight() bool               { return false }

func (f *fakeRefresher) SetInterval(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervals = append(f.intervals, d)
}

func (f *fakeRefresher) Refresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return true
}

func (f *fakeRefresher) Notify() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies++
	return true
}

var _ Refresher = (*fakeRefresher)(nil)

type harness struct {
	t       *testing.T
	m       Model
	fake    *fakeRefresher
	clipped []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Export.Dir = t.TempDir()
	h := &harness{t: t, fake: newFakeRefresher()}
	h.m = NewModel(Options{
		Refresher: h.fake,
		Store:     state.NewStore(model.ModuleDashboard),
		Config:    cfg,
		Clipboard: func(s string) error { h.clipped = append(h.clipped, s); return nil },
		Now:       func() time.Time { return testutil.BaseTime },
	})
	h.send(tea.WindowSizeMsg{Width: 140, Height: 40})
	return h
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	h.t.Helper()
	next, cmd := h.m.Update(msg)
	h.m = next.(Model)
	return cmd
}

func (h *harness) keys(keys ...string) {
	h.t.Helper()
	for _, k := range keys {
		switch k {
		case "esc":
			h.send(tea.KeyMsg{Type: tea.KeyEsc})
		case "enter":
			h.send(tea.KeyMsg{Type: tea.KeyEnter})
		case "space":
			h.send(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
		case "down":
			h.send(tea.KeyMsg{Type: tea.KeyDown})
		case "tab":
			h.send(tea.KeyMsg{Type: tea.KeyTab})
		default:
			h.send(runes(k))
		}
	}
}

func (h *harness) loadSnapshot(stale map[model.Module]error) *refresh.Snapshot {
	h.t.Helper()
	snap := testutil.BuildSnapshotWith(testutil.NewDefault().AllModules(20), stale, testutil.BaseTime)
	if cmd := h.send(SnapshotMsg{Snapshot: snap}); cmd == nil {
		h.t.Fatal("a snapshot should re-arm the event wait")
	}
	return snap
}

func TestModel_WaitsForFirstSnapshot(t *testing.T) {
	h := newHarness(t)
	h.keys("4")
	if h.m.List().Len() != 0 {
		t.Fatalf("list has %d records before any snapshot", h.m.List().Len())
	}
	if view := h.m.View(); !strings.Contains(view, "Waiting for the first refresh") {
		t.Fatalf("missing waiting text:\n%s", view)
	}
}

func TestModel_SnapshotPopulatesList(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4")

	if h.m.Store().Module() != model.ModuleTickets || h.m.CurrentTab() != TabList {
		t.Fatalf("module %s tab %s", h.m.Store().Module(), h.m.CurrentTab())
	}
	if h.m.List().Len() != 20 {
		t.Fatalf("list has %d records, want 20", h.m.List().Len())
	}
	if !strings.Contains(h.m.View(), "TCK-000") {
		t.Fatal("ticket rows missing from view")
	}

	h.keys("tab")
	if h.m.CurrentTab() != TabInsights {
		t.Fatalf("tab = %s", h.m.CurrentTab())
	}
}

func TestModel_SelectionKeys(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "space", "down", "space")
	if got := h.m.Store().SelectionCount(); got != 2 {
		t.Fatalf("selection = %d, want 2", got)
	}
	if !strings.Contains(h.m.View(), "2 selected") {
		t.Fatal("footer should show the selection count")
	}

	h.keys("space")
	if got := h.m.Store().SelectionCount(); got != 1 {
		t.Fatalf("toggle again: selection = %d, want 1", got)
	}

	h.keys("esc")
	if got := h.m.Store().SelectionCount(); got != 0 {
		t.Fatalf("esc: selection = %d, want 0", got)
	}
}

func TestModel_SelectAllRespectsFilter(t *testing.T) {
	h := newHarness(t)
	snap := h.loadSnapshot(nil)
	h.keys("4")

	next, _ := h.m.runCommand(CmdFilterCritical)
	h.m = next.(Model)

	critical := 0
	for _, r := range snap.Records(model.ModuleTickets) {
		if r.Severity == model.SeverityCritical {
			critical++
		}
	}
	if critical == 0 || critical == 20 {
		t.Fatalf("fixture should mix severities, got %d critical", critical)
	}
	if h.m.List().Len() != critical {
		t.Fatalf("filtered list = %d, want %d", h.m.List().Len(), critical)
	}

	h.keys("a")
	if got := h.m.Store().SelectionCount(); got != critical {
		t.Fatalf("select all = %d, want %d", got, critical)
	}

	// First esc clears the selection, the second the filter.
	h.keys("esc")
	if h.m.Store().SelectionCount() != 0 || h.m.Store().Filter().IsZero() {
		t.Fatal("first esc should only clear the selection")
	}
	h.keys("esc")
	if !h.m.Store().Filter().IsZero() || h.m.List().Len() != 20 {
		t.Fatalf("second esc should clear the filter, list = %d", h.m.List().Len())
	}
}

func TestModel_ModuleSwitchClearsSelection(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "a")
	if h.m.Store().SelectionCount() != 20 {
		t.Fatalf("selection = %d", h.m.Store().SelectionCount())
	}
	h.keys("2")
	if h.m.Store().SelectionCount() != 0 {
		t.Fatal("switching module should clear the selection")
	}
	if h.m.List().Len() != 20 || h.m.List().Records()[0].Module != model.ModuleEvaluations {
		t.Fatal("list should show evaluations")
	}
}

func TestModel_SearchLiveAndRestore(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "/")
	if h.m.FocusState() != "search" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
	h.keys("00007")
	if h.m.List().Len() != 1 || h.m.List().Records()[0].ID != "TCK-00007" {
		t.Fatalf("search kept %d records", h.m.List().Len())
	}

	h.keys("esc")
	if h.m.Store().Filter().Search != "" || h.m.List().Len() != 20 {
		t.Fatal("esc should restore the previous query")
	}

	h.keys("/", "00007", "enter")
	if h.m.FocusState() != "list" || h.m.Store().Filter().Search != "00007" {
		t.Fatal("enter should keep the query")
	}
}

func TestModel_StaleBanner(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(map[model.Module]error{model.ModuleTickets: errors.New("gateway timeout")})

	h.keys("4")
	view := h.m.View()
	if !strings.Contains(view, "Stale data") || !strings.Contains(view, "gateway timeout") {
		t.Fatalf("stale banner missing:\n%s", view)
	}
	if h.m.List().Len() != 20 {
		t.Fatal("stale records should still be listed")
	}

	h.keys("2")
	if strings.Contains(h.m.View(), "Stale data") {
		t.Fatal("fresh module should not show the banner")
	}
}

func TestModel_RefreshErrors(t *testing.T) {
	h := newHarness(t)
	if cmd := h.send(RefreshErrorMsg{Err: errors.New("boom"), Recoverable: true}); cmd == nil {
		t.Fatal("recoverable error should keep listening")
	}
	if msg, isErr := h.m.StatusMessage(); !isErr || !strings.Contains(msg, "boom") {
		t.Fatalf("status = %q (%v)", msg, isErr)
	}
	if cmd := h.send(RefreshErrorMsg{Err: errors.New("fatal"), Recoverable: false}); cmd != nil {
		t.Fatal("unrecoverable error should stop listening")
	}
}

func TestModel_RefreshAndWatchNotify(t *testing.T) {
	h := newHarness(t)
	h.keys("r")
	h.send(DataChangedMsg{})
	if h.fake.refreshes != 1 || h.fake.notifies != 1 {
		t.Fatalf("refreshes = %d notifies = %d", h.fake.refreshes, h.fake.notifies)
	}
	if msg, _ := h.m.StatusMessage(); !strings.Contains(msg, "Refreshing") {
		t.Fatalf("status = %q", msg)
	}
}

func TestModel_BulkExportClearsSelection(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "space", "down", "space", "e")
	if h.m.FocusState() != "export" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}

	cmd := h.send(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("choosing a format should start the export")
	}
	done, ok := cmd().(exportDoneMsg)
	if !ok {
		t.Fatal("export command should report completion")
	}
	if done.Err != nil || !done.Bulk || done.Count != 2 {
		t.Fatalf("done = %+v", done)
	}
	if _, err := os.Stat(done.Path); err != nil {
		t.Fatalf("export file: %v", err)
	}

	h.send(done)
	if h.m.Store().SelectionCount() != 0 {
		t.Fatal("a completed bulk export should clear the selection")
	}
	if msg, isErr := h.m.StatusMessage(); isErr || !strings.Contains(msg, "Exported 2 records") {
		t.Fatalf("status = %q", msg)
	}
}

func TestModel_FailedExportKeepsSelection(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "space")
	h.send(exportDoneMsg{Bulk: true, Err: errors.New("disk full")})
	if h.m.Store().SelectionCount() != 1 {
		t.Fatal("selection should survive a failed export")
	}
	if _, isErr := h.m.StatusMessage(); !isErr {
		t.Fatal("failure should be reported as an error")
	}
}

func TestModel_SettingsPauseAutoRefresh(t *testing.T) {
	h := newHarness(t)
	h.keys(",")
	if h.m.FocusState() != "settings" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
	h.keys("space", "esc")
	if h.m.FocusState() != "list" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
	if len(h.fake.intervals) != 1 || h.fake.intervals[0] != 0 {
		t.Fatalf("intervals = %v, want [0]", h.fake.intervals)
	}
	if h.m.cfg.Refresh.Auto {
		t.Fatal("auto refresh should be off")
	}
}

func TestModel_CopyAndDetail(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.keys("4", "down", "y")
	want := h.m.List().Records()[1].ID
	if len(h.clipped) != 1 || h.clipped[0] != want {
		t.Fatalf("clipboard = %v", h.clipped)
	}

	h.keys("enter")
	if h.m.FocusState() != "detail" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
	h.keys("esc")
	if h.m.FocusState() != "list" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
}

func TestModel_PaletteRunsCommands(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	h.send(tea.KeyMsg{Type: tea.KeyCtrlK})
	if h.m.FocusState() != "palette" {
		t.Fatalf("focus = %s", h.m.FocusState())
	}
	h.keys("recouvrements", "enter")
	if h.m.Store().Module() != model.ModuleRecouvrements || h.m.FocusState() != "list" {
		t.Fatalf("module = %s focus = %s", h.m.Store().Module(), h.m.FocusState())
	}
}

func TestModel_ViewFitsWindow(t *testing.T) {
	h := newHarness(t)
	h.loadSnapshot(nil)
	for _, k := range []string{"1", "2", "3", "4", "5"} {
		h.keys(k)
		if got := len(strings.Split(h.m.View(), "\n")); got != 40 {
			t.Fatalf("module %s: view has %d lines, want 40", k, got)
		}
	}
	h.keys("3", "tab", "tab")
	if h.m.CurrentTab() != TabTimeline {
		t.Fatalf("tab = %s", h.m.CurrentTab())
	}
	if got := len(strings.Split(h.m.View(), "\n")); got != 40 {
		t.Fatalf("timeline: view has %d lines, want 40", got)
	}
}
