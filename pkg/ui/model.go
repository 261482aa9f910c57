// Package ui is the terminal command center: a Bubble Tea model that renders
// refresh snapshots through the state store and the windowed record list.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/config"
	"github.com/vanderheijden86/bmo/pkg/export"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/state"
	"github.com/vanderheijden86/bmo/pkg/watcher"
)

// focus represents which UI element has keyboard focus
type focus int

const (
	focusList focus = iota
	focusDetail
	focusSearch
	focusPalette
	focusExport
	focusSettings
	focusHelp
)

// exportDoneMsg reports a finished export.
type exportDoneMsg struct {
	Path  string
	Count int
	Bulk  bool
	Err   error
}

// Options wires the model to the rest of the program.
type Options struct {
	Context   context.Context
	Refresher Refresher
	Watcher   *watcher.Watcher
	Store     *state.Store
	Config    config.Config
	// ConfigPath, when set, receives settings changed from the settings modal.
	ConfigPath string
	Logger     *zap.Logger
	Clipboard  func(string) error
	Now        func() time.Time
}

// Model is the main Bubble Tea model for bmo.
type Model struct {
	ctx        context.Context
	refresher  Refresher
	watcher    *watcher.Watcher
	store      *state.Store
	cfg        config.Config
	configPath string
	logger     *zap.Logger
	clipboard  func(string) error
	now        func() time.Time

	// snapshot is the newest published snapshot. Bubble Tea never runs
	// Update and View concurrently, so it is read without locks.
	snapshot   *refresh.Snapshot
	refreshing bool
	lastErr    error

	theme   Theme
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	list     *RecordList
	listKind model.Kind
	scroll   int // line offset for overview, insights and timeline tabs

	focused  focus
	search   textinput.Model
	prevQ    string
	palette  Palette
	drill    DrillDown
	exporter ExportModal
	settings SettingsModal

	statusMsg     string
	statusIsError bool
	width         int
	height        int
	quitting      bool
}

// NewModel creates the model. Nothing runs until Init.
func NewModel(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Store == nil {
		opts.Store = state.NewStore(opts.Config.DefaultModule())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.WriteAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.UI.SidebarCollapsed && !opts.Store.SidebarCollapsed() {
		opts.Store.Dispatch(state.ToggleSidebar{})
	}

	theme := DefaultTheme(lipgloss.DefaultRenderer())

	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search id, title, category, bureau"
	search.CharLimit = 128

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.PrimaryBold

	m := Model{
		ctx:        opts.Context,
		refresher:  opts.Refresher,
		watcher:    opts.Watcher,
		store:      opts.Store,
		cfg:        opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger.Named("ui"),
		clipboard:  opts.Clipboard,
		now:        opts.Now,
		theme:      theme,
		keys:       defaultKeyMap(),
		help:       help.New(),
		spinner:    sp,
		search:     search,
		palette:    NewPalette(DefaultCommands, theme),
		width:      120,
		height:     40,
	}
	m.list = NewRecordList(theme, newRowRenderer(theme, ""), opts.Config.UI.Overscan)
	m.list.SetSelectedFunc(m.store.IsSelected)
	if opts.Refresher != nil {
		m.snapshot = opts.Refresher.Latest()
	}
	m.layout()
	m.syncList()
	return m
}

// Init starts the refresh worker and the watchers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.refresher != nil {
		cmds = append(cmds,
			StartRefresherCmd(m.ctx, m.refresher),
			WaitForRefreshEventCmd(m.refresher),
		)
		if !m.cfg.Refresh.Auto {
			m.refresher.SetInterval(0)
		}
	}
	if m.watcher != nil {
		cmds = append(cmds, WatchDirCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS - used by the CLI and tests
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot returns the snapshot being displayed.
func (m Model) Snapshot() *refresh.Snapshot { return m.snapshot }

// Store returns the state store.
func (m Model) Store() *state.Store { return m.store }

// List returns the record list of the current tab.
func (m Model) List() *RecordList { return m.list }

// CurrentTab returns the name of the active tab.
func (m Model) CurrentTab() string {
	tabs := ModuleTabs[m.store.Module()]
	i := min(max(m.store.Tab(), 0), len(tabs)-1)
	return tabs[i]
}

// StatusMessage returns the transient status line text.
func (m Model) StatusMessage() (string, bool) { return m.statusMsg, m.statusIsError }

// FocusState names the focused element.
func (m Model) FocusState() string {
	switch m.focused {
	case focusDetail:
		return "detail"
	case focusSearch:
		return "search"
	case focusPalette:
		return "palette"
	case focusExport:
		return "export"
	case focusSettings:
		return "settings"
	case focusHelp:
		return "help"
	default:
		return "list"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE
// ══════════════════════════════════════════════════════════════════════════════

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.palette.SetWidth(msg.Width)
		m.layout()
		return m, nil

	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.refreshing = false
		if msg.Snapshot != nil && !msg.Snapshot.AnyStale() {
			m.lastErr = nil
		}
		m.syncList()
		return m, WaitForRefreshEventCmd(m.refresher)

	case RefreshErrorMsg:
		m.lastErr = msg.Err
		m.refreshing = false
		m.setStatus(fmt.Sprintf("Refresh failed: %v", msg.Err), true)
		if !msg.Recoverable {
			m.logger.Error("refresh_unrecoverable", zap.Error(msg.Err))
			return m, nil
		}
		return m, WaitForRefreshEventCmd(m.refresher)

	case RefreshStateMsg:
		m.refreshing = msg.State == refresh.StateFetching
		return m, WaitForRefreshEventCmd(m.refresher)

	case DataChangedMsg:
		if m.refresher != nil {
			m.refresher.Notify()
		}
		return m, WatchDirCmd(m.watcher)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case exportDoneMsg:
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("Export failed: %v", msg.Err), true)
			return m, nil
		}
		if msg.Bulk {
			m.store.Dispatch(state.BulkActionCompleted{Action: "export"})
			m.syncList()
		}
		m.setStatus(fmt.Sprintf("Exported %d records to %s", msg.Count, msg.Path), false)
		m.logger.Info("export_done", zap.String("path", msg.Path), zap.Int("count", msg.Count), zap.Bool("bulk", msg.Bulk))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// Non-key messages for focused inputs (cursor blink etc.).
	switch m.focused {
	case focusSearch:
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		cmds = append(cmds, cmd)
	case focusPalette:
		var cmd tea.Cmd
		m.palette, _, cmd = m.palette.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focused {
	case focusPalette:
		var res PaletteResult
		var cmd tea.Cmd
		m.palette, res, cmd = m.palette.Update(msg)
		if res.Closed {
			m.focused = focusList
		}
		if res.Invoked != nil {
			return m.runCommand(res.Invoked.ID)
		}
		return m, cmd

	case focusSearch:
		return m.handleSearchKeys(msg)

	case focusDetail:
		switch msg.String() {
		case "esc", "q", "enter":
			m.focused = focusList
			return m, nil
		case "y":
			m.copyID(m.drill.ID())
			return m, nil
		}
		var cmd tea.Cmd
		m.drill, cmd = m.drill.Update(msg)
		return m, cmd

	case focusExport:
		var chosen, closed bool
		m.exporter, chosen, closed = m.exporter.Update(msg)
		if closed {
			m.focused = focusList
		}
		if chosen {
			return m, m.exportCmd(m.exporter.Format(), m.exporter.Bulk())
		}
		return m, nil

	case focusSettings:
		var changed, closed bool
		m.settings, changed, closed = m.settings.Update(msg)
		if changed {
			m.applySettings(m.settings.Values())
		}
		if closed {
			m.focused = focusList
			m.saveSettings()
		}
		return m, nil

	case focusHelp:
		m.focused = focusList
		return m, nil
	}

	return m.handleListKeys(msg)
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, k.Palette):
		m.focused = focusPalette
		cmd := m.palette.Open()
		return m, cmd
	case key.Matches(msg, k.Sidebar):
		m.store.Dispatch(state.ToggleSidebar{})
		m.layout()
	case key.Matches(msg, k.NextTab):
		m.shiftTab(1)
	case key.Matches(msg, k.PrevTab):
		m.shiftTab(-1)
	case key.Matches(msg, k.Module):
		i := int(msg.String()[0] - '1')
		if i >= 0 && i < len(model.Modules) {
			m.setModule(model.Modules[i])
		}
	case key.Matches(msg, k.Up):
		m.scrollBy(-1)
	case key.Matches(msg, k.Down):
		m.scrollBy(1)
	case key.Matches(msg, k.PageUp):
		if m.isListTab() {
			m.list.PageUp()
		} else {
			m.scrollBy(-m.bodyHeight())
		}
	case key.Matches(msg, k.PageDown):
		if m.isListTab() {
			m.list.PageDown()
		} else {
			m.scrollBy(m.bodyHeight())
		}
	case key.Matches(msg, k.Top):
		m.list.Top()
		m.scroll = 0
	case key.Matches(msg, k.Bottom):
		m.list.Bottom()
		m.scroll = 1 << 30
	case key.Matches(msg, k.Toggle):
		if r := m.list.Focused(); r != nil && m.isListTab() {
			m.store.Dispatch(state.ToggleSelection{ID: r.ID})
		}
	case key.Matches(msg, k.SelectAll):
		return m.runCommand(CmdSelectAll)
	case key.Matches(msg, k.Escape):
		switch {
		case m.store.SelectionCount() > 0:
			m.store.Dispatch(state.ClearSelection{})
		case !m.store.Filter().IsZero():
			m.store.Dispatch(state.ClearFilter{})
			m.syncList()
		}
	case key.Matches(msg, k.Open):
		m.openDetail()
	case key.Matches(msg, k.Search):
		return m.runCommand(CmdSearch)
	case key.Matches(msg, k.Sort):
		return m.runCommand(CmdCycleSort)
	case key.Matches(msg, k.Refresh):
		return m.runCommand(CmdRefresh)
	case key.Matches(msg, k.Copy):
		return m.runCommand(CmdCopyID)
	case key.Matches(msg, k.Export):
		return m.runCommand(CmdExport)
	case key.Matches(msg, k.Settings):
		return m.runCommand(CmdSettings)
	case key.Matches(msg, k.Help):
		m.focused = focusHelp
	}
	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.search.Blur()
		m.focused = focusList
		return m, nil
	case "esc":
		m.search.Blur()
		m.focused = focusList
		m.store.Dispatch(state.SetSearch{Query: m.prevQ})
		m.syncList()
		return m, nil
	}
	var cmd tea.Cmd
	before := m.search.Value()
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.store.Dispatch(state.SetSearch{Query: v})
		m.syncList()
	}
	return m, cmd
}

// runCommand executes a palette command. Keys route through here too so
// both paths behave the same.
func (m Model) runCommand(id CommandID) (tea.Model, tea.Cmd) {
	m.focused = focusList
	switch id {
	case CmdGotoDashboard:
		m.setModule(model.ModuleDashboard)
	case CmdGotoEvaluations:
		m.setModule(model.ModuleEvaluations)
	case CmdGotoGovernance:
		m.setModule(model.ModuleGovernance)
	case CmdGotoTickets:
		m.setModule(model.ModuleTickets)
	case CmdGotoRecouvrements:
		m.setModule(model.ModuleRecouvrements)
	case CmdNextTab:
		m.shiftTab(1)
	case CmdRefresh:
		if m.refresher == nil {
			m.setStatus("No data source configured", true)
			break
		}
		if m.refresher.Refresh() {
			m.refreshing = true
			m.setStatus("Refreshing…", false)
		} else {
			m.setStatus("Refresh already running", false)
		}
		return m, m.spinner.Tick
	case CmdExport:
		if m.snapshot == nil {
			m.setStatus("Nothing to export yet", true)
			break
		}
		bulk := m.store.SelectionCount() > 0
		count := len(m.exportRecords(bulk))
		m.exporter = NewExportModal(m.store.Module(), count, bulk, m.cfg.Export.Dir, m.theme)
		m.focused = focusExport
	case CmdCycleSort:
		s := m.store.Sort()
		s.Field = s.Field.Next()
		m.store.Dispatch(state.SetSort{Sort: s})
		m.syncList()
		m.setStatus("Sort: "+s.Field.String(), false)
	case CmdReverseSort:
		s := m.store.Sort()
		s.Desc = !s.Desc
		m.store.Dispatch(state.SetSort{Sort: s})
		m.syncList()
	case CmdSearch:
		if !m.isListTab() {
			m.setStatus("Search applies to record lists", false)
			break
		}
		m.prevQ = m.store.Filter().Search
		m.search.SetValue(m.prevQ)
		m.search.CursorEnd()
		m.focused = focusSearch
		cmd := m.search.Focus()
		return m, cmd
	case CmdFilterCritical:
		f := m.store.Filter()
		f.Severities = []model.Severity{model.SeverityCritical}
		m.store.Dispatch(state.ApplyFilter{Filter: f})
		m.syncList()
	case CmdFilterOpen:
		f := m.store.Filter()
		f.Statuses = openStatuses(m.snapshot, m.store.Module())
		m.store.Dispatch(state.ApplyFilter{Filter: f})
		m.syncList()
	case CmdClearFilter:
		m.store.Dispatch(state.ClearFilter{})
		m.syncList()
	case CmdSelectAll:
		if m.isListTab() {
			m.store.Dispatch(state.SelectAllVisible{IDs: m.list.VisibleIDs()})
			m.setStatus(fmt.Sprintf("%d selected", m.store.SelectionCount()), false)
		}
	case CmdClearSelection:
		m.store.Dispatch(state.ClearSelection{})
	case CmdCopyID:
		if r := m.list.Focused(); r != nil && m.isListTab() {
			m.copyID(r.ID)
		} else {
			m.setStatus("No record focused", true)
		}
	case CmdCopyInsights:
		m.copyInsights()
	case CmdSettings:
		m.settings = NewSettingsModal(m.currentSettings(), m.cfg.Policy, m.theme)
		m.focused = focusSettings
	case CmdToggleSidebar:
		m.store.Dispatch(state.ToggleSidebar{})
		m.layout()
	case CmdHelp:
		m.focused = focusHelp
	case CmdQuit:
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusIsError = isErr
}

func (m *Model) setModule(mod model.Module) {
	m.store.Dispatch(state.SetModule{Module: mod})
	m.scroll = 0
	m.syncList()
}

func (m *Model) shiftTab(delta int) {
	tabs := ModuleTabs[m.store.Module()]
	n := len(tabs)
	m.store.Dispatch(state.SetTab{Tab: ((m.store.Tab()+delta)%n + n) % n})
	m.scroll = 0
	m.syncList()
}

func (m *Model) isListTab() bool {
	_, ok := tabKind(m.store.Module(), m.CurrentTab())
	return ok
}

func (m *Model) scrollBy(delta int) {
	if m.isListTab() {
		m.list.MoveBy(delta)
		return
	}
	m.scroll = max(m.scroll+delta, 0)
}

// tabRecords returns the unfiltered records behind the current list tab.
func (m *Model) tabRecords() []model.Record {
	kind, ok := tabKind(m.store.Module(), m.CurrentTab())
	if !ok || m.snapshot == nil {
		return nil
	}
	all := m.snapshot.Records(m.store.Module())
	out := make([]model.Record, 0, len(all))
	for i := range all {
		if all[i].Kind == kind {
			out = append(out, all[i])
		}
	}
	return out
}

// syncList recomputes the visible collection from the snapshot, filter and
// sort. Nothing is carried over from the previous filter result.
func (m *Model) syncList() {
	kind, _ := tabKind(m.store.Module(), m.CurrentTab())
	if kind != m.listKind {
		m.listKind = kind
		m.list = NewRecordList(m.theme, newRowRenderer(m.theme, kind), m.currentSettings().Overscan)
		m.list.SetSelectedFunc(m.store.IsSelected)
		m.layout()
	}

	visible := m.store.Visible(m.tabRecords())
	m.list.SetRecords(visible, m.listHash())
	switch {
	case m.snapshot == nil:
		m.list.SetEmptyText("Waiting for the first refresh…")
	case m.snapshot.Err(m.store.Module()) != nil && len(m.snapshot.Records(m.store.Module())) == 0:
		m.list.SetEmptyText("No data: the source failed and nothing is cached")
	case !m.store.Filter().IsZero():
		m.list.SetEmptyText("No record matches the filter (esc clears it)")
	default:
		m.list.SetEmptyText("No records")
	}
}

// listHash identifies the list content for the row cache.
func (m *Model) listHash() string {
	f, _ := json.Marshal(m.store.Filter())
	s := m.store.Sort()
	hash := ""
	if m.snapshot != nil {
		hash = m.snapshot.Hash
	}
	return fmt.Sprintf("%s|%s|%s|%s|%d%t", hash, m.store.Module(), m.CurrentTab(), f, s.Field, s.Desc)
}

func (m *Model) openDetail() {
	if !m.isListTab() {
		return
	}
	r := m.list.Focused()
	if r == nil {
		return
	}
	var linked []analysis.Insight
	if m.snapshot != nil {
		linked = analysis.InsightsForRecord(m.snapshot.Analysis(m.store.Module()).Insights, r.ID)
	}
	m.drill = NewDrillDown(r, linked, m.width, m.height)
	m.focused = focusDetail
}

func (m *Model) copyID(id string) {
	if id == "" {
		return
	}
	if err := m.clipboard(id); err != nil {
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.setStatus("Copied "+id+" to clipboard", false)
}

func (m *Model) copyInsights() {
	if m.snapshot == nil {
		m.setStatus("No insights yet", true)
		return
	}
	insights := m.snapshot.Analysis(m.store.Module()).Insights
	var b strings.Builder
	for _, in := range insights {
		fmt.Fprintf(&b, "[%s] %s (%.0f%%)\n", in.Severity, in.Title, in.Confidence)
	}
	if err := m.clipboard(b.String()); err != nil {
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.setStatus(fmt.Sprintf("Copied %d insights", len(insights)), false)
}

// exportRecords returns the selection when bulk is set, otherwise the
// visible records of the current tab (or the whole module outside lists).
func (m *Model) exportRecords(bulk bool) []model.Record {
	if m.snapshot == nil {
		return nil
	}
	all := m.snapshot.Records(m.store.Module())
	if bulk {
		return m.store.Selected(all)
	}
	if m.isListTab() {
		return m.list.Records()
	}
	return all
}

func (m *Model) exportCmd(f export.Format, bulk bool) tea.Cmd {
	snap := m.snapshot
	mod := m.store.Module()
	records := m.exportRecords(bulk)
	dir := m.cfg.Export.Dir
	now := m.now()
	ctx := m.ctx
	return func() tea.Msg {
		b, err := export.NewBundle(snap, mod, records, now)
		if err != nil {
			return exportDoneMsg{Err: err}
		}
		path, err := export.WriteFile(ctx, b, f, dir)
		return exportDoneMsg{Path: path, Count: len(b.Records), Bulk: bulk, Err: err}
	}
}

func (m *Model) currentSettings() Settings {
	return Settings{
		AutoRefresh: m.cfg.Refresh.Auto,
		Interval:    m.cfg.Refresh.Interval,
		Overscan:    m.cfg.UI.Overscan,
	}
}

func (m *Model) applySettings(s Settings) {
	m.cfg.Refresh.Auto = s.AutoRefresh
	m.cfg.Refresh.Interval = s.Interval
	m.cfg.UI.Overscan = s.Overscan
	m.list.SetOverscan(s.Overscan)
	if m.refresher != nil {
		if s.AutoRefresh {
			m.refresher.SetInterval(s.Interval)
		} else {
			m.refresher.SetInterval(0)
		}
	}
}

func (m *Model) saveSettings() {
	if m.configPath == "" {
		return
	}
	if err := config.SaveTo(m.cfg, m.configPath); err != nil {
		m.setStatus(fmt.Sprintf("Saving settings: %v", err), true)
		m.logger.Warn("settings_save_failed", zap.Error(err))
	}
}

// openStatuses lists the statuses of module records that are not closed.
func openStatuses(snap *refresh.Snapshot, mod model.Module) []string {
	if snap == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range snap.Records(mod) {
		if r.Status == "" || model.IsClosedLikeStatus(r.Status) || seen[r.Status] {
			continue
		}
		seen[r.Status] = true
		out = append(out, r.Status)
	}
	if len(out) == 0 {
		// Nothing open: a status no record has keeps the list empty.
		out = []string{"open"}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// LAYOUT AND VIEW
// ══════════════════════════════════════════════════════════════════════════════

func (m *Model) contentWidth() int {
	side := sidebarWidth
	if m.store.SidebarCollapsed() {
		side = sidebarCollapsedWidth
	}
	return max(m.width-side-1, 20)
}

// bodyHeight is what remains for the list after the KPI bar, tabs, banner,
// column header and status bar.
func (m *Model) bodyHeight() int {
	h := m.height - 4
	if m.bannerLine() != "" {
		h--
	}
	if m.focused == focusSearch || m.store.Filter().Search != "" {
		h--
	}
	return max(h, 1)
}

func (m *Model) layout() {
	m.list.SetSize(m.contentWidth(), m.bodyHeight())
}

func (m *Model) bannerLine() string {
	return renderBanner(m.theme, m.snapshot, m.store.Module(), m.lastErr, m.now(), m.contentWidth())
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	m.layout()
	t := m.theme
	cw := m.contentWidth()
	mod := m.store.Module()

	var res analysis.Result
	if m.snapshot != nil {
		res = m.snapshot.Analysis(mod)
	}

	var rows []string
	rows = append(rows, renderKPIBar(t, res.KPIs, cw))
	rows = append(rows, renderTabs(t, ModuleTabs[mod], m.store.Tab(), m.tabSummary(), cw))
	if b := m.bannerLine(); b != "" {
		rows = append(rows, b)
	}
	if m.focused == focusSearch {
		rows = append(rows, m.search.View())
	} else if q := m.store.Filter().Search; q != "" {
		rows = append(rows, t.MutedText.Render("/ "+q))
	}

	bodyH := m.bodyHeight()
	if m.isListTab() {
		rows = append(rows, listHeader(t, m.listKind, cw))
		rows = append(rows, m.list.View())
	} else {
		var lines []string
		switch m.CurrentTab() {
		case TabOverview:
			lines = renderOverview(t, m.snapshot, cw)
		case TabTimeline:
			lines = renderTimeline(t, res.Timeline, cw)
		default:
			lines = renderInsights(t, res.Insights, cw)
		}
		rows = append(rows, "", window(lines, m.scroll, bodyH))
	}

	content := lipgloss.NewStyle().Width(cw).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	sidebar := renderSidebar(t, m.snapshot, mod, m.store.SidebarCollapsed(), m.height-1)
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", content)

	switch m.focused {
	case focusPalette:
		body = m.overlay(m.palette.View())
	case focusDetail:
		body = m.overlay(m.drill.View())
	case focusExport:
		body = m.overlay(m.exporter.View())
	case focusSettings:
		body = m.overlay(m.settings.View())
	case focusHelp:
		m.help.ShowAll = true
		body = m.overlay(FocusedPanelStyle.Padding(0, 1).Render(m.help.View(m.keys)))
	}

	finalStyle := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		MaxHeight(m.height)
	return finalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, body, m.renderFooter()))
}

func (m Model) overlay(box string) string {
	return lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) tabSummary() string {
	if !m.isListTab() {
		return ""
	}
	s := m.store.Sort()
	dir := "↑"
	if s.Desc {
		dir = "↓"
	}
	out := fmt.Sprintf("%d/%d · sort %s%s", m.list.Len(), len(m.tabRecords()), s.Field, dir)
	if !m.store.Filter().IsZero() {
		out += " · filtered"
	}
	return m.theme.MutedText.Render(out)
}

func (m Model) renderFooter() string {
	t := m.theme
	var parts []string

	switch {
	case m.refreshing:
		parts = append(parts, m.spinner.View()+" refreshing")
	case m.snapshot != nil:
		parts = append(parts, t.MutedText.Render(fmt.Sprintf("updated %s · #%d",
			formatTimeRelAt(m.snapshot.FetchedAt, m.now()), m.snapshot.Seq)))
	default:
		parts = append(parts, t.MutedText.Render("no data"))
	}
	if n := m.store.SelectionCount(); n > 0 {
		parts = append(parts, t.Marked.Render(fmt.Sprintf("%d selected", n)))
	}
	if m.snapshot != nil && m.snapshot.AnyStale() {
		parts = append(parts, t.Banner.Render("stale"))
	}
	if m.statusMsg != "" {
		style := t.InfoText
		if m.statusIsError {
			style = t.AlertValue
		}
		parts = append(parts, style.Render(m.statusMsg))
	}

	left := strings.Join(parts, t.MutedText.Render(" │ "))
	m.help.ShowAll = false
	right := m.help.View(m.keys)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return truncateANSI(left, m.width)
	}
	return left + strings.Repeat(" ", gap) + right
}

func truncateANSI(s string, width int) string {
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
