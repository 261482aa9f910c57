package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeBg returns the given hex color for TrueColor terminals and
// lipgloss.NoColor{} otherwise, so 16/256-color terminals keep their own
// background.
func ThemeBg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.TrueColor {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

type Theme struct {
	Renderer *lipgloss.Renderer

	// Colors
	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor

	// Severity
	Critical lipgloss.AdaptiveColor
	High     lipgloss.AdaptiveColor
	Medium   lipgloss.AdaptiveColor
	Low      lipgloss.AdaptiveColor

	// Status
	Open    lipgloss.AdaptiveColor
	Pending lipgloss.AdaptiveColor
	Blocked lipgloss.AdaptiveColor
	Closed  lipgloss.AdaptiveColor

	// UI Elements
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Styles
	Base     lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style
	Banner   lipgloss.Style
	Error    lipgloss.Style

	// Pre-computed row styles, created once instead of per frame.
	MutedText     lipgloss.Style
	InfoText      lipgloss.Style
	SecondaryText lipgloss.Style
	PrimaryBold   lipgloss.Style
	Marked        lipgloss.Style // selection check mark
	AlertValue    lipgloss.Style // KPI values needing attention
}

// DefaultTheme returns the standard Dracula-inspired theme (adaptive).
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}, // Purple
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}, // Gray
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"}, // Dim

		Critical: ColorPrioCritical,
		High:     ColorPrioHigh,
		Medium:   ColorPrioMedium,
		Low:      ColorPrioLow,

		Open:    lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}, // Green
		Pending: lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}, // Cyan
		Blocked: lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}, // Red
		Closed:  lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}, // Gray

		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(t.Primary).
		PaddingLeft(1).
		Bold(true)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.Banner = r.NewStyle().
		Foreground(ColorWarning).
		Background(ColorStatusDeferredBg).
		Bold(true).
		Padding(0, 1)

	t.Error = r.NewStyle().
		Foreground(ColorDanger).
		Background(ColorStatusBlockedBg).
		Bold(true).
		Padding(0, 1)

	t.MutedText = r.NewStyle().Foreground(ColorMuted)
	t.InfoText = r.NewStyle().Foreground(ColorInfo)
	t.SecondaryText = r.NewStyle().Foreground(t.Secondary)
	t.PrimaryBold = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.Marked = r.NewStyle().Foreground(ThemeFg("#50FA7B")).Bold(true)
	t.AlertValue = r.NewStyle().Foreground(ColorDanger).Bold(true)

	return t
}

// GetStatusColor maps a normalized record status to a color. Closed-like
// statuses share one color whatever the module's vocabulary.
func (t Theme) GetStatusColor(s string) lipgloss.AdaptiveColor {
	switch {
	case s == "":
		return t.Subtext
	case model.IsClosedLikeStatus(s):
		return t.Closed
	}
	switch s {
	case "open", "new", "active", "ouvert", "en_cours", "in_progress":
		return t.Open
	case "pending", "waiting", "en_attente", "review", "litigation", "contentieux":
		return t.Pending
	case "blocked", "bloque", "bloqué", "overdue", "escalated", "failed":
		return t.Blocked
	default:
		return t.Subtext
	}
}

// GetSeverityColor maps a severity to its color.
func (t Theme) GetSeverityColor(s model.Severity) lipgloss.AdaptiveColor {
	switch s {
	case model.SeverityCritical:
		return t.Critical
	case model.SeverityHigh:
		return t.High
	case model.SeverityMedium:
		return t.Medium
	case model.SeverityLow:
		return t.Low
	default:
		return t.Subtext
	}
}

// GetModuleIcon returns the sidebar glyph for a module.
func (t Theme) GetModuleIcon(m model.Module) (string, lipgloss.AdaptiveColor) {
	switch m {
	case model.ModuleDashboard:
		return "◆", t.Primary
	case model.ModuleEvaluations:
		return "★", ColorInfo
	case model.ModuleGovernance:
		return "⬢", ColorWarning
	case model.ModuleTickets:
		return "✉", ColorSuccess
	case model.ModuleRecouvrements:
		return "€", ColorDanger
	default:
		return "·", t.Subtext
	}
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}
