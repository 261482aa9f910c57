package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/export"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRILL-DOWN - glamour-rendered record detail with linked insights
// ══════════════════════════════════════════════════════════════════════════════

// RecordMarkdown renders a record and the insights that reference it.
func RecordMarkdown(r *model.Record, insights []analysis.Insight) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.ID)
	if r.Title != "" {
		fmt.Fprintf(&b, "**%s**\n\n", r.Title)
	}

	b.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", "\\|"))
		}
	}
	row("Module", string(r.Module))
	row("Kind", string(r.Kind))
	row("Status", r.Status)
	row("Severity", string(r.Severity))
	row("Criticality", string(r.Criticality))
	row("Category", r.Category)
	row("Bureau", r.Bureau)
	if r.Value != 0 {
		row("Value", fmt.Sprintf("%.2f", r.Value))
	}
	if r.Secondary != 0 {
		row("Secondary", fmt.Sprintf("%.2f", r.Secondary))
	}
	if !r.Timestamp.IsZero() {
		row("Created", formatDate(r.Timestamp))
	}
	if !r.DueDate.IsZero() {
		row("Due", formatDate(r.DueDate))
	}
	for _, k := range r.AttributeKeys() {
		row(k, r.Attributes[k])
	}

	if len(r.Assignments) > 0 {
		b.WriteString("\n## RACI\n\n| Bureau | Role |\n|---|---|\n")
		for _, a := range r.Assignments {
			fmt.Fprintf(&b, "| %s | %s |\n", a.Bureau, a.Role)
		}
	}

	b.WriteString("\n## Insights\n\n")
	if len(insights) == 0 {
		b.WriteString("_No insight references this record._\n")
	}
	for _, in := range insights {
		fmt.Fprintf(&b, "- **[%s] %s** (%.0f%%): %s\n", strings.ToUpper(string(in.Severity)), in.Title, in.Confidence, in.Description)
	}
	return b.String()
}

// DrillDown shows one record in a scrollable viewport.
type DrillDown struct {
	viewport viewport.Model
	id       string
	markdown string
}

// NewDrillDown renders the record at the given size.
func NewDrillDown(r *model.Record, insights []analysis.Insight, width, height int) DrillDown {
	md := RecordMarkdown(r, insights)
	vp := viewport.New(max(width-4, 20), max(height-4, 5))
	vp.SetContent(renderMarkdown(md, vp.Width))
	return DrillDown{viewport: vp, id: r.ID, markdown: md}
}

// ID returns the displayed record ID.
func (d DrillDown) ID() string { return d.id }

// Markdown returns the unrendered source.
func (d DrillDown) Markdown() string { return d.markdown }

// Update scrolls the viewport.
func (d DrillDown) Update(msg tea.Msg) (DrillDown, tea.Cmd) {
	var cmd tea.Cmd
	d.viewport, cmd = d.viewport.Update(msg)
	return d, cmd
}

// View renders the modal.
func (d DrillDown) View() string {
	return FocusedPanelStyle.Render(d.viewport.View())
}

func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT - format picker; bulk when a selection exists
// ══════════════════════════════════════════════════════════════════════════════

// ExportModal picks an output format for the current module or selection.
type ExportModal struct {
	formats []export.Format
	index   int
	module  model.Module
	count   int
	bulk    bool
	theme   Theme
	dir     string
}

// NewExportModal creates the picker. count is the number of records that
// will be written; bulk is set when they come from the selection.
func NewExportModal(m model.Module, count int, bulk bool, dir string, theme Theme) ExportModal {
	return ExportModal{formats: export.Formats, module: m, count: count, bulk: bulk, dir: dir, theme: theme}
}

// Format returns the highlighted format.
func (e ExportModal) Format() export.Format { return e.formats[e.index] }

// Bulk reports whether the export acts on the selection.
func (e ExportModal) Bulk() bool { return e.bulk }

// Update handles navigation; chosen is set when enter confirms a format.
func (e ExportModal) Update(msg tea.KeyMsg) (m ExportModal, chosen bool, closed bool) {
	switch msg.String() {
	case "up", "k":
		e.index = max(e.index-1, 0)
	case "down", "j":
		e.index = min(e.index+1, len(e.formats)-1)
	case "enter":
		return e, true, true
	case "esc", "q":
		return e, false, true
	}
	return e, false, false
}

// View renders the modal.
func (e ExportModal) View() string {
	t := e.theme
	var b strings.Builder
	b.WriteString(t.PrimaryBold.Render("Export " + e.module.Title()))
	b.WriteString("\n")
	scope := fmt.Sprintf("%d visible records", e.count)
	if e.bulk {
		scope = fmt.Sprintf("%d selected records (bulk)", e.count)
	}
	b.WriteString(t.MutedText.Render(scope))
	b.WriteString("\n\n")
	for i, f := range e.formats {
		label := fmt.Sprintf("%-7s %s", f, f.Description())
		if i == e.index {
			b.WriteString(t.Selected.Render(label))
		} else {
			b.WriteString("  " + label)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(t.MutedText.Render("→ " + e.dir))
	return FocusedPanelStyle.Padding(0, 1).Render(b.String())
}

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS - refresh, overscan, policy (read-only)
// ══════════════════════════════════════════════════════════════════════════════

var intervalPresets = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
}

// Settings holds the runtime-adjustable options.
type Settings struct {
	AutoRefresh bool
	Interval    time.Duration
	Overscan    int
}

const (
	settingAuto = iota
	settingInterval
	settingOverscan
	numSettings
)

// SettingsModal edits Settings and shows the analytics policy.
type SettingsModal struct {
	values Settings
	policy analysis.Policy
	index  int
	theme  Theme
}

// NewSettingsModal creates the modal.
func NewSettingsModal(s Settings, p analysis.Policy, theme Theme) SettingsModal {
	return SettingsModal{values: s, policy: p, theme: theme}
}

// Values returns the edited settings.
func (s SettingsModal) Values() Settings { return s.values }

// Update edits the highlighted setting; changed is set when a value moved.
func (s SettingsModal) Update(msg tea.KeyMsg) (m SettingsModal, changed bool, closed bool) {
	switch msg.String() {
	case "up", "k":
		s.index = max(s.index-1, 0)
	case "down", "j":
		s.index = min(s.index+1, numSettings-1)
	case "esc", "q", ",":
		return s, false, true
	case " ", "enter":
		if s.index == settingAuto {
			s.values.AutoRefresh = !s.values.AutoRefresh
			return s, true, false
		}
		return s.adjust(1), true, false
	case "right", "l", "+":
		return s.adjust(1), true, false
	case "left", "h", "-":
		return s.adjust(-1), true, false
	}
	return s, false, false
}

func (s SettingsModal) adjust(dir int) SettingsModal {
	switch s.index {
	case settingAuto:
		s.values.AutoRefresh = !s.values.AutoRefresh
	case settingInterval:
		i := 0
		for j, d := range intervalPresets {
			if d <= s.values.Interval {
				i = j
			}
		}
		i = min(max(i+dir, 0), len(intervalPresets)-1)
		s.values.Interval = intervalPresets[i]
	case settingOverscan:
		s.values.Overscan = min(max(s.values.Overscan+dir, 0), 20)
	}
	return s
}

// View renders the modal.
func (s SettingsModal) View() string {
	t := s.theme
	var b strings.Builder
	b.WriteString(t.PrimaryBold.Render("Settings"))
	b.WriteString("\n\n")

	onOff := "off"
	if s.values.AutoRefresh {
		onOff = "on"
	}
	items := []string{
		fmt.Sprintf("Auto refresh   %s", onOff),
		fmt.Sprintf("Interval       %s", s.values.Interval),
		fmt.Sprintf("Overscan       %d rows", s.values.Overscan),
	}
	for i, it := range items {
		if i == s.index {
			b.WriteString(t.Selected.Render(it))
		} else {
			b.WriteString("  " + it)
		}
		b.WriteString("\n")
	}

	p := s.policy
	b.WriteString("\n")
	b.WriteString(t.SecondaryText.Render("Policy"))
	b.WriteString("\n")
	lines := []string{
		fmt.Sprintf("overload > %.0f%% (high > %.0f%%), underload < %.0f%%",
			p.OverloadThreshold*100, p.HighOverloadThreshold*100, p.UnderloadThreshold*100),
		fmt.Sprintf("cluster > %d records, < %d roles", p.ClusterMinSize, p.ClusterMaxRoles),
		fmt.Sprintf("deadlines: high ≤ %dd, medium ≤ %dd, lookahead %dd",
			p.HighWithinDays, p.MediumWithinDays, p.LookaheadDays),
		fmt.Sprintf("recurring blockage ≥ %d, projected +%dd", p.RecurrenceThreshold, p.RecurrenceOffsetDays),
		fmt.Sprintf("missing accountable confidence %.0f", p.MissingAccountableConfidence),
	}
	for _, l := range lines {
		b.WriteString(t.MutedText.Render("  " + l))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(t.MutedText.Render("←/→ adjust · space toggle · esc close"))
	return FocusedPanelStyle.Padding(0, 1).Render(b.String())
}
