package export

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/bmo/pkg/analysis"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// Package-level compiled regex for slug creation (avoids recompilation per call)
var slugNonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// WriteMarkdown writes a report of b: KPIs, insights, a status summary and
// one section per record.
func WriteMarkdown(w io.Writer, b Bundle) error {
	_, err := io.WriteString(w, GenerateMarkdown(b))
	return err
}

// GenerateMarkdown renders b as a Markdown document.
func GenerateMarkdown(b Bundle) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s\n\n", b.Module.Title())
	fmt.Fprintf(&sb, "*Generated: %s · run `%s`*\n\n", b.GeneratedAt.Format(time.RFC1123), b.RunID)
	if b.Stale {
		sb.WriteString("> **Warning:** this export contains last-known cached data.\n\n")
	}

	// KPIs
	sb.WriteString("## KPIs\n\n")
	if len(b.KPIs) == 0 {
		sb.WriteString("_No KPI._\n\n")
	} else {
		sb.WriteString("| KPI | Value | Trend |\n|-----|-------|-------|\n")
		for _, k := range b.KPIs {
			label := escapeCell(k.Label)
			if k.Alert {
				label = "**" + label + "** ⚠"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", label, formatKPI(k), trendText(k.Trend))
		}
		sb.WriteString("\n")
	}

	// Insights
	sb.WriteString("## Insights\n\n")
	if len(b.Insights) == 0 {
		sb.WriteString("_Nothing to report._\n\n")
	} else {
		sb.WriteString("| Severity | Confidence | Insight | Records |\n|----------|------------|---------|---------|\n")
		for _, in := range b.Insights {
			fmt.Fprintf(&sb, "| %s %s | %s %.0f%% | %s | %s |\n",
				severityEmoji(in.Severity), in.Severity,
				barChart(in.Confidence/100), in.Confidence,
				escapeCell(in.Title),
				escapeCell(truncateString(strings.Join(in.RecordIDs, ", "), 60)))
		}
		sb.WriteString("\n")
	}

	// Summary Statistics
	sb.WriteString("## Summary\n\n")
	counts := make(map[string]int)
	closed := 0
	for i := range b.Records {
		if model.IsClosedLikeStatus(b.Records[i].Status) {
			closed++
		}
		counts[b.Records[i].Status]++
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	sb.WriteString("| Metric | Count |\n|--------|-------|\n")
	fmt.Fprintf(&sb, "| **Total** | %d |\n", len(b.Records))
	fmt.Fprintf(&sb, "| Closed | %d |\n", closed)
	for _, s := range statuses {
		name := s
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(&sb, "| %s %s | %d |\n", statusEmoji(s), escapeCell(name), counts[s])
	}
	sb.WriteString("\n")

	if len(b.Records) == 0 {
		return sb.String()
	}

	// Precompute stable, unique slugs for TOC anchors and headings.
	slugCounts := make(map[string]int, len(b.Records))
	slugs := make([]string, len(b.Records))
	for i := range b.Records {
		slugs[i] = uniqueSlug(createSlug(headingText(&b.Records[i])), slugCounts)
	}

	sb.WriteString("## Records\n\n")
	for i := range b.Records {
		r := &b.Records[i]
		fmt.Fprintf(&sb, "- [%s %s %s](#%s)\n", statusEmoji(r.Status), r.ID, r.Title, slugs[i])
	}
	sb.WriteString("\n---\n\n")

	for i := range b.Records {
		r := &b.Records[i]
		fmt.Fprintf(&sb, "<a id=\"%s\"></a>\n\n", slugs[i])
		fmt.Fprintf(&sb, "### %s\n\n", headingText(r))

		sb.WriteString("| Property | Value |\n|----------|-------|\n")
		prop := func(k, v string) {
			if v != "" {
				fmt.Fprintf(&sb, "| **%s** | %s |\n", k, escapeCell(v))
			}
		}
		prop("Kind", string(r.Kind))
		prop("Status", r.Status)
		prop("Severity", string(r.Severity))
		prop("Criticality", string(r.Criticality))
		prop("Category", r.Category)
		prop("Bureau", r.Bureau)
		if r.Value != 0 {
			prop("Value", fmt.Sprintf("%.2f", r.Value))
		}
		if r.Secondary != 0 {
			prop("Secondary", fmt.Sprintf("%.2f", r.Secondary))
		}
		if !r.Timestamp.IsZero() {
			prop("Created", r.Timestamp.Format("2006-01-02 15:04"))
		}
		if !r.DueDate.IsZero() {
			prop("Due", r.DueDate.Format("2006-01-02"))
		}
		for _, k := range r.AttributeKeys() {
			prop(k, r.Attributes[k])
		}
		sb.WriteString("\n")

		if len(r.Assignments) > 0 {
			sb.WriteString("**RACI:** ")
			parts := make([]string, 0, len(r.Assignments))
			for _, a := range r.Assignments {
				parts = append(parts, fmt.Sprintf("%s `%s`", a.Bureau, a.Role))
			}
			sb.WriteString(strings.Join(parts, ", "))
			sb.WriteString("\n\n")
		}

		if linked := analysis.InsightsForRecord(b.Insights, r.ID); len(linked) > 0 {
			for _, in := range linked {
				fmt.Fprintf(&sb, "- %s %s\n", severityEmoji(in.Severity), in.Title)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("---\n\n")
	}
	return sb.String()
}

func headingText(r *model.Record) string {
	return fmt.Sprintf("%s %s", r.ID, r.Title)
}

func uniqueSlug(base string, counts map[string]int) string {
	if base == "" {
		base = "section"
	}
	if count, ok := counts[base]; ok {
		count++
		counts[base] = count
		return fmt.Sprintf("%s-%d", base, count)
	}
	counts[base] = 0
	return base
}

// createSlug creates a URL-friendly slug from heading text.
func createSlug(text string) string {
	slug := strings.ToLower(text)
	slug = slugNonAlphanumericRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func statusEmoji(status string) string {
	s := strings.ToLower(status)
	switch {
	case model.IsClosedLikeStatus(status):
		return "⚫"
	case strings.Contains(s, "block") || strings.Contains(s, "overdue") || strings.Contains(s, "dispute"):
		return "🔴"
	case strings.Contains(s, "progress") || strings.Contains(s, "pending") || strings.Contains(s, "review"):
		return "🔵"
	default:
		return "🟢"
	}
}

func severityEmoji(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "🔥"
	case model.SeverityHigh:
		return "⚡"
	case model.SeverityMedium:
		return "🔹"
	default:
		return "☕"
	}
}

func formatKPI(k analysis.KPI) string {
	switch k.Unit {
	case analysis.UnitPercent:
		return fmt.Sprintf("%.1f%%", k.Value)
	case analysis.UnitAmount:
		return fmt.Sprintf("%.2f", k.Value)
	case analysis.UnitDays:
		return fmt.Sprintf("%.1f d", k.Value)
	case analysis.UnitScore:
		return fmt.Sprintf("%.1f", k.Value)
	}
	return fmt.Sprintf("%.0f", k.Value)
}

func trendText(t float64) string {
	switch {
	case t > 0.01:
		return fmt.Sprintf("▲ %.2f", t)
	case t < -0.01:
		return fmt.Sprintf("▼ %.2f", -t)
	}
	return "="
}

// barChart creates a mini bar chart for a 0-1 value
func barChart(value float64) string {
	value = min(max(value, 0), 1)
	switch int(value * 4) {
	case 0:
		return "░░░░"
	case 1:
		return "█░░░"
	case 2:
		return "██░░"
	case 3:
		return "███░"
	default:
		return "████"
	}
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
