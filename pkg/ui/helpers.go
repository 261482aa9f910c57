package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/bmo/pkg/analysis"
)

// FormatTimeRel returns a relative time string (e.g., "2h ago", "3d ago")
func FormatTimeRel(t time.Time) string {
	return formatTimeRelAt(t, time.Now())
}

func formatTimeRelAt(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	d := now.Sub(t)
	if d < 0 {
		return "now"
	}
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(d.Hours()/(24*7)))
	default:
		return fmt.Sprintf("%dmo ago", int(d.Hours()/(24*30)))
	}
}

// formatDate renders a calendar date, or "-" for the zero sentinel.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// truncateRunesHelper truncates a string to max visual width (cells), adding suffix if needed.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}

	width := runewidth.StringWidth(s)
	if width <= maxWidth {
		return s
	}

	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}

	targetWidth := maxWidth - suffixWidth
	return runewidth.Truncate(s, targetWidth, "") + suffix
}

// padRight pads s with spaces up to width cells.
func padRight(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// truncate truncates s to maxWidth cells with an ellipsis.
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// FormatKPIValue renders a KPI value according to its unit.
func FormatKPIValue(k analysis.KPI) string {
	switch k.Unit {
	case analysis.UnitPercent:
		return fmt.Sprintf("%.1f%%", k.Value)
	case analysis.UnitAmount:
		return formatAmount(k.Value)
	case analysis.UnitDays:
		return fmt.Sprintf("%.1fd", k.Value)
	case analysis.UnitScore:
		return fmt.Sprintf("%.1f", k.Value)
	default:
		if k.Value == math.Trunc(k.Value) {
			return fmt.Sprintf("%d", int64(k.Value))
		}
		return fmt.Sprintf("%.2f", k.Value)
	}
}

// formatAmount abbreviates large amounts (1.2k, 3.4M).
func formatAmount(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.1fG", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.1fk", v/1e3)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

// trendArrow renders the direction of a KPI trend.
func trendArrow(trend float64) string {
	switch {
	case trend > 0.01:
		return "↑"
	case trend < -0.01:
		return "↓"
	default:
		return "→"
	}
}
