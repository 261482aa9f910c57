package ui

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// Column widths in cells.
const (
	colMark   = 2
	colBadge  = 4
	colID     = 12
	colStatus = 11
	colBureau = 10
	colTail   = 10
)

// newRowRenderer returns the renderer for records of kind. RACI rows show
// role holders instead of the status column.
func newRowRenderer(theme Theme, kind model.Kind) RowRenderer {
	if kind == model.KindRACI {
		return func(r *model.Record, width int, selected, focused bool) string {
			return renderRACIRow(theme, r, width, selected, focused)
		}
	}
	return func(r *model.Record, width int, selected, focused bool) string {
		return renderRecordRow(theme, r, width, selected, focused)
	}
}

func markCell(t Theme, selected bool) string {
	if selected {
		return t.Marked.Render("✓ ")
	}
	return "  "
}

func tailCell(r *model.Record) string {
	switch {
	case !r.DueDate.IsZero():
		return formatDate(r.DueDate)
	case r.Value != 0:
		return formatAmount(r.Value)
	case !r.Timestamp.IsZero():
		return formatDate(r.Timestamp)
	default:
		return "-"
	}
}

func renderRecordRow(t Theme, r *model.Record, width int, selected, focused bool) string {
	fixed := colMark + colBadge + 1 + colID + 1 + colStatus + 1 + colBureau + 1 + colTail
	titleW := max(width-fixed-2, 8)

	var sb strings.Builder
	sb.WriteString(markCell(t, selected))
	sb.WriteString(RenderSeverityBadge(r.EffectiveSeverity()))
	sb.WriteString(" ")
	sb.WriteString(t.SecondaryText.Render(padRight(truncate(r.ID, colID), colID)))
	sb.WriteString(" ")
	sb.WriteString(RenderStatusBadge(r.Status, colStatus, t))
	sb.WriteString(" ")
	sb.WriteString(padRight(truncate(r.Title, titleW), titleW))
	sb.WriteString(" ")
	sb.WriteString(t.MutedText.Render(padRight(truncate(r.Bureau, colBureau), colBureau)))
	sb.WriteString(" ")
	sb.WriteString(padRight(tailCell(r), colTail))

	line := sb.String()
	if !focused {
		return line
	}
	return t.Selected.Render(line) + "\n" + detailLine(t, r, width)
}

// detailLine is the second line of a focused row.
func detailLine(t Theme, r *model.Record, width int) string {
	var parts []string
	if r.Category != "" {
		parts = append(parts, r.Category)
	}
	if !r.Timestamp.IsZero() {
		parts = append(parts, "created "+formatDate(r.Timestamp))
	}
	if !r.DueDate.IsZero() {
		parts = append(parts, "due "+formatDate(r.DueDate))
	}
	if r.Value != 0 {
		parts = append(parts, fmt.Sprintf("value %.2f", r.Value))
	}
	if len(r.Assignments) > 0 {
		parts = append(parts, assignmentSummary(r))
	}
	if len(parts) == 0 {
		parts = append(parts, string(r.Kind))
	}
	indent := strings.Repeat(" ", colMark+colBadge+1)
	return t.MutedText.Render(indent + truncate(strings.Join(parts, " · "), max(width-len(indent)-1, 8)))
}

func assignmentSummary(r *model.Record) string {
	var parts []string
	for _, role := range []model.Role{model.RoleResponsible, model.RoleAccountable, model.RoleConsulted, model.RoleInformed} {
		if b := r.BureausWithRole(role); len(b) > 0 {
			parts = append(parts, string(role)+":"+strings.Join(b, ","))
		}
	}
	return strings.Join(parts, " ")
}

func renderRACIRow(t Theme, r *model.Record, width int, selected, focused bool) string {
	roleW := 12
	fixed := colMark + colBadge + 1 + colID + 1 + 4*(roleW+1)
	titleW := max(width-fixed-2, 8)

	var sb strings.Builder
	sb.WriteString(markCell(t, selected))
	sb.WriteString(RenderSeverityBadge(r.Criticality))
	sb.WriteString(" ")
	sb.WriteString(t.SecondaryText.Render(padRight(truncate(r.ID, colID), colID)))
	sb.WriteString(" ")
	sb.WriteString(padRight(truncate(r.Title, titleW), titleW))
	for _, role := range []model.Role{model.RoleResponsible, model.RoleAccountable, model.RoleConsulted, model.RoleInformed} {
		holders := r.BureausWithRole(role)
		cell := padRight(truncate(strings.Join(holders, ","), roleW), roleW)
		sb.WriteString(" ")
		switch {
		case role == model.RoleAccountable && len(holders) > 1:
			sb.WriteString(t.AlertValue.Render(cell))
		case role == model.RoleAccountable && len(holders) == 0 && r.IsCritical():
			sb.WriteString(t.AlertValue.Render(padRight("missing", roleW)))
		default:
			sb.WriteString(cell)
		}
	}

	line := sb.String()
	if !focused {
		return line
	}
	return t.Selected.Render(line) + "\n" + detailLine(t, r, width)
}

// listHeader returns the column titles for kind.
func listHeader(t Theme, kind model.Kind, width int) string {
	if kind == model.KindRACI {
		roleW := 12
		fixed := colMark + colBadge + 1 + colID + 1 + 4*(roleW+1)
		titleW := max(width-fixed-2, 8)
		h := strings.Repeat(" ", colMark) + padRight("CRIT", colBadge) + " " + padRight("ID", colID) + " " +
			padRight("Process", titleW)
		for _, r := range []string{"Responsible", "Accountable", "Consulted", "Informed"} {
			h += " " + padRight(truncate(r, roleW), roleW)
		}
		return t.MutedText.Render(truncate(h, width))
	}
	fixed := colMark + colBadge + 1 + colID + 1 + colStatus + 1 + colBureau + 1 + colTail
	titleW := max(width-fixed-2, 8)
	h := strings.Repeat(" ", colMark) + padRight("SEV", colBadge) + " " + padRight("ID", colID) + " " +
		padRight("Status", colStatus) + " " + padRight("Title", titleW) + " " +
		padRight("Bureau", colBureau) + " " + padRight("Due/Value", colTail)
	return t.MutedText.Render(truncate(h, width))
}
