package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/refresh"
)

// Tab names.
const (
	TabOverview = "overview"
	TabInsights = "insights"
	TabList     = "list"
	TabRACI     = "raci"
	TabAlerts   = "alerts"
	TabTimeline = "timeline"
	TabCreances = "creances"
)

// ModuleTabs lists the sub-views of each module, in tab order.
var ModuleTabs = map[model.Module][]string{
	model.ModuleDashboard:     {TabOverview, TabInsights},
	model.ModuleEvaluations:   {TabList, TabInsights},
	model.ModuleGovernance:    {TabRACI, TabAlerts, TabTimeline, TabInsights},
	model.ModuleTickets:       {TabList, TabInsights},
	model.ModuleRecouvrements: {TabCreances, TabInsights},
}

// tabKind returns the record kind a list tab shows, or "" for every kind.
// ok is false for tabs that are not record lists.
func tabKind(m model.Module, tab string) (kind model.Kind, ok bool) {
	switch tab {
	case TabRACI:
		return model.KindRACI, true
	case TabAlerts:
		return model.KindAlert, true
	case TabList, TabCreances:
		return model.DefaultKind(m), true
	}
	return "", false
}

const (
	sidebarWidth          = 24
	sidebarCollapsedWidth = 4
)

// ══════════════════════════════════════════════════════════════════════════════
// SIDEBAR
// ══════════════════════════════════════════════════════════════════════════════

func renderSidebar(t Theme, snap *refresh.Snapshot, active model.Module, collapsed bool, height int) string {
	var b strings.Builder
	if !collapsed {
		b.WriteString(t.Header.Render("BMO"))
		b.WriteString("\n\n")
	} else {
		b.WriteString(t.PrimaryBold.Render("B"))
		b.WriteString("\n\n")
	}
	for i, m := range model.Modules {
		icon, color := t.GetModuleIcon(m)
		glyph := t.Renderer.NewStyle().Foreground(color).Render(icon)
		if collapsed {
			var line string
			if m == active {
				line = t.PrimaryBold.Render("▌") + glyph
			} else {
				line = " " + glyph
			}
			b.WriteString(line)
			b.WriteString("\n")
			continue
		}
		label := fmt.Sprintf("%d %s", i+1, m.Title())
		count := ""
		if snap != nil {
			count = fmt.Sprintf("%d", len(snap.Records(m)))
			if snap.IsStale(m) {
				count = "!" + count
			}
		}
		text := padRight(truncate(label, sidebarWidth-8), sidebarWidth-8) + " " + padRight(count, 4)
		if m == active {
			b.WriteString(t.Selected.Render(glyph + " " + text))
		} else {
			b.WriteString(" " + glyph + " " + text)
		}
		b.WriteString("\n")
	}

	w := sidebarWidth
	if collapsed {
		w = sidebarCollapsedWidth
	}
	return t.Renderer.NewStyle().
		Width(w).
		Height(max(height, 1)).
		MaxHeight(max(height, 1)).
		Border(lipgloss.NormalBorder(), false, true, false, false).
		BorderForeground(t.Border).
		Render(b.String())
}

// ══════════════════════════════════════════════════════════════════════════════
// KPI BAR AND TABS
// ══════════════════════════════════════════════════════════════════════════════

func renderKPI(t Theme, k analysis.KPI) string {
	value := FormatKPIValue(k)
	if k.Alert {
		value = t.AlertValue.Render(value)
	} else {
		value = t.PrimaryBold.Render(value)
	}
	s := t.MutedText.Render(k.Label+" ") + value
	if len(k.Series) > 0 {
		s += " " + t.InfoText.Render(Sparkline(k.Series)) + trendArrow(k.Trend)
	}
	return s
}

func renderKPIBar(t Theme, kpis []analysis.KPI, width int) string {
	if len(kpis) == 0 {
		return t.MutedText.Render(padRight("No KPI yet", width))
	}
	sep := t.MutedText.Render("  │  ")
	sepW := lipgloss.Width(sep)
	var parts []string
	used := 0
	for _, k := range kpis {
		s := renderKPI(t, k)
		w := lipgloss.Width(s)
		extra := w
		if len(parts) > 0 {
			extra += sepW
		}
		if used+extra > width {
			break
		}
		parts = append(parts, s)
		used += extra
	}
	return strings.Join(parts, sep)
}

func renderTabs(t Theme, tabs []string, active int, right string, width int) string {
	var parts []string
	for i, name := range tabs {
		if i == active {
			parts = append(parts, t.Header.Render(name))
		} else {
			parts = append(parts, t.MutedText.Render(" "+name+" "))
		}
	}
	left := strings.Join(parts, " ")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}

// ══════════════════════════════════════════════════════════════════════════════
// BANNERS
// ══════════════════════════════════════════════════════════════════════════════

// renderBanner explains degraded data for the current module. It returns ""
// when the data is fresh.
func renderBanner(t Theme, snap *refresh.Snapshot, m model.Module, lastErr error, now time.Time, width int) string {
	switch {
	case snap == nil && lastErr != nil:
		return t.Error.Width(width).Render(truncate("✗ No data: "+lastErr.Error(), width-2))
	case snap == nil:
		return ""
	case snap.IsStale(m):
		msg := "⚠ Stale data"
		if at := snap.CachedAt(m); !at.IsZero() {
			msg += " from " + formatTimeRelAt(at, now)
		}
		if err := snap.Err(m); err != nil {
			msg += ": " + err.Error()
		}
		return t.Banner.Width(width).Render(truncate(msg, width-2))
	case snap.Err(m) != nil:
		return t.Error.Width(width).Render(truncate("✗ No data: "+snap.Err(m).Error(), width-2))
	}
	return ""
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERVIEW, INSIGHTS, TIMELINE
// ══════════════════════════════════════════════════════════════════════════════

func renderOverview(t Theme, snap *refresh.Snapshot, width int) []string {
	if snap == nil {
		return []string{t.MutedText.Render("Waiting for the first refresh…")}
	}
	var lines []string
	for _, m := range model.Modules {
		if m == model.ModuleDashboard {
			continue
		}
		res := snap.Analysis(m)
		icon, color := t.GetModuleIcon(m)
		head := t.Renderer.NewStyle().Foreground(color).Bold(true).Render(icon + " " + m.Title())
		head += t.MutedText.Render(fmt.Sprintf("  %d records · %d insights", len(snap.Records(m)), len(res.Insights)))
		if snap.IsStale(m) {
			head += "  " + t.Banner.Render("stale")
		}
		lines = append(lines, head)
		lines = append(lines, "  "+renderKPIBar(t, res.KPIs, width-2))
		lines = append(lines, "")
	}

	// The dashboard result holds every module's insights, already sorted.
	top := snap.Analysis(model.ModuleDashboard).Insights
	lines = append(lines, t.SecondaryText.Render("Top insights"))
	if len(top) == 0 {
		lines = append(lines, t.MutedText.Render("  Nothing to report"))
	}
	for i, in := range top {
		if i == 10 {
			break
		}
		lines = append(lines, insightLine(t, in, width))
	}
	return lines
}

func insightLine(t Theme, in analysis.Insight, width int) string {
	head := RenderSeverityBadge(in.Severity) + " " +
		t.MutedText.Render(fmt.Sprintf("%3.0f%% %-12s ", in.Confidence, truncate(string(in.Kind), 12)))
	rest := max(width-lipgloss.Width(head)-1, 8)
	return head + truncate(in.Title, rest)
}

func renderInsights(t Theme, insights []analysis.Insight, width int) []string {
	if len(insights) == 0 {
		return []string{t.MutedText.Render("No insight for this module")}
	}
	lines := make([]string, 0, len(insights)*2)
	for _, in := range insights {
		lines = append(lines, insightLine(t, in, width))
		if in.Description != "" {
			lines = append(lines, t.MutedText.Render("      "+truncate(in.Description, max(width-7, 8))))
		}
	}
	return lines
}

func renderTimeline(t Theme, groups []analysis.TimelineGroup, width int) []string {
	if len(groups) == 0 {
		return []string{t.MutedText.Render("No alert on the timeline")}
	}
	var lines []string
	for _, g := range groups {
		day := "Undated"
		if !g.Day.IsZero() {
			day = g.Day.Format("Mon 02 Jan 2006")
		}
		lines = append(lines, t.SecondaryText.Render(fmt.Sprintf("%s (%d)", day, len(g.Alerts))))
		for i := range g.Alerts {
			a := &g.Alerts[i]
			line := "  " + RenderSeverityBadge(a.Severity) + " " + t.MutedText.Render(padRight(truncate(a.Bureau, colBureau), colBureau)) + " "
			lines = append(lines, line+truncate(a.Title, max(width-lipgloss.Width(line), 8)))
		}
	}
	return lines
}

// window returns height lines of lines starting at offset, padded.
func window(lines []string, offset, height int) string {
	offset = min(max(offset, 0), max(len(lines)-height, 0))
	end := min(offset+height, len(lines))
	out := append([]string(nil), lines[offset:end]...)
	for len(out) < height {
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}
