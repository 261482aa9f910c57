package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownModule is returned when a module name does not match any known module.
var ErrUnknownModule = errors.New("unknown module")

// Module identifies one command-center area of the dashboard.
type Module string

const (
	ModuleDashboard     Module = "dashboard"
	ModuleEvaluations   Module = "evaluations"
	ModuleGovernance    Module = "governance"
	ModuleTickets       Module = "tickets"
	ModuleRecouvrements Module = "recouvrements"
)

// Modules lists every module in sidebar order.
var Modules = []Module{
	ModuleDashboard,
	ModuleEvaluations,
	ModuleGovernance,
	ModuleTickets,
	ModuleRecouvrements,
}

// IsValid reports whether m is a known module.
func (m Module) IsValid() bool {
	for _, known := range Modules {
		if m == known {
			return true
		}
	}
	return false
}

// Title returns the display label for the module.
func (m Module) Title() string {
	switch m {
	case ModuleDashboard:
		return "Dashboard"
	case ModuleEvaluations:
		return "Evaluations"
	case ModuleGovernance:
		return "Governance"
	case ModuleTickets:
		return "Tickets"
	case ModuleRecouvrements:
		return "Recouvrements"
	default:
		return string(m)
	}
}

// ParseModule resolves a module name case-insensitively.
func ParseModule(s string) (Module, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dashboard", "home":
		return ModuleDashboard, nil
	case "evaluations", "evaluation":
		return ModuleEvaluations, nil
	case "governance", "gouvernance", "raci":
		return ModuleGovernance, nil
	case "tickets", "ticket":
		return ModuleTickets, nil
	case "recouvrements", "recouvrement", "recovery", "creances":
		return ModuleRecouvrements, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModule, s)
}

// Kind distinguishes the record shapes that share the Record type.
type Kind string

const (
	KindRACI       Kind = "raci"
	KindAlert      Kind = "alert"
	KindTicket     Kind = "ticket"
	KindEvaluation Kind = "evaluation"
	KindCreance    Kind = "creance"
	KindStat       Kind = "stat"
)

// DefaultKind returns the record kind a module produces when the payload
// does not say otherwise.
func DefaultKind(m Module) Kind {
	switch m {
	case ModuleEvaluations:
		return KindEvaluation
	case ModuleGovernance:
		return KindRACI
	case ModuleTickets:
		return KindTicket
	case ModuleRecouvrements:
		return KindCreance
	default:
		return KindStat
	}
}

// Role is a RACI responsibility role.
type Role string

const (
	RoleResponsible Role = "R"
	RoleAccountable Role = "A"
	RoleConsulted   Role = "C"
	RoleInformed    Role = "I"
)

// IsActive reports whether the role counts as active participation
// for load distribution (Responsible or Accountable).
func (r Role) IsActive() bool {
	return r == RoleResponsible || r == RoleAccountable
}

// ParseRole accepts single letters, English words and French labels.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "responsible", "responsable":
		return RoleResponsible, true
	case "a", "accountable", "approbateur", "approver", "redevable":
		return RoleAccountable, true
	case "c", "consulted", "consulte", "consulté":
		return RoleConsulted, true
	case "i", "informed", "informe", "informé":
		return RoleInformed, true
	}
	return "", false
}

// Assignment binds a bureau to a RACI role on one record.
type Assignment struct {
	Bureau string `json:"bureau"`
	Role   Role   `json:"role"`
}

// Severity is the shared severity/priority/criticality scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// ParseSeverity normalizes English and French labels plus numeric priorities
// (0 and 1 are the most urgent, matching common ticketing conventions).
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "critique", "urgent", "urgente", "p0", "0", "blocker":
		return SeverityCritical
	case "high", "haute", "elevee", "élevée", "élevé", "eleve", "p1", "1", "major":
		return SeverityHigh
	case "medium", "moyenne", "moyen", "normal", "normale", "p2", "2":
		return SeverityMedium
	case "low", "faible", "basse", "bas", "minor", "p3", "3", "p4", "4":
		return SeverityLow
	}
	return ""
}

// Record is the strict internal form of every collection item. Records are
// produced by the loader and never modified after a snapshot is built.
type Record struct {
	ID          string            `json:"id"`
	Module      Module            `json:"module"`
	Kind        Kind              `json:"kind"`
	Title       string            `json:"title"`
	Status      string            `json:"status"`
	Severity    Severity          `json:"severity,omitempty"`
	Category    string            `json:"category,omitempty"`
	Criticality Severity          `json:"criticality,omitempty"`
	Bureau      string            `json:"bureau,omitempty"`
	Value       float64           `json:"value"`
	Secondary   float64           `json:"secondary,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	DueDate     time.Time         `json:"due_date"`
	Assignments []Assignment      `json:"assignments,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Validate checks the fields the rest of the core depends on.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("record ID cannot be empty")
	}
	if !r.Module.IsValid() {
		return fmt.Errorf("record %s: %w: %q", r.ID, ErrUnknownModule, r.Module)
	}
	for _, a := range r.Assignments {
		if a.Bureau == "" {
			return fmt.Errorf("record %s: assignment without bureau", r.ID)
		}
	}
	return nil
}

// BureausWithRole returns the bureaus holding role on r, in assignment order.
func (r *Record) BureausWithRole(role Role) []string {
	var out []string
	for _, a := range r.Assignments {
		if a.Role == role {
			out = append(out, a.Bureau)
		}
	}
	return out
}

// ActiveBureaus returns the distinct bureaus holding an active role on r.
func (r *Record) ActiveBureaus() []string {
	seen := make(map[string]bool, len(r.Assignments))
	var out []string
	for _, a := range r.Assignments {
		if !a.Role.IsActive() || seen[a.Bureau] {
			continue
		}
		seen[a.Bureau] = true
		out = append(out, a.Bureau)
	}
	return out
}

// IsClosed reports whether the record's status is terminal.
func (r *Record) IsClosed() bool {
	return IsClosedLikeStatus(r.Status)
}

// EffectiveSeverity is the record's severity, falling back to its
// criticality. RACI activities carry only a criticality.
func (r *Record) EffectiveSeverity() Severity {
	if r.Severity != "" {
		return r.Severity
	}
	return r.Criticality
}

// IsCritical reports whether the record is marked critical by either its
// criticality or severity field.
func (r *Record) IsCritical() bool {
	return r.Criticality == SeverityCritical || (r.Criticality == "" && r.Severity == SeverityCritical)
}

// Attr returns an attribute value or "".
func (r *Record) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// AttributeKeys returns the attribute keys in sorted order.
func (r *Record) AttributeKeys() []string {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var closedStatuses = map[string]bool{
	"closed":      true,
	"resolved":    true,
	"done":        true,
	"completed":   true,
	"complete":    true,
	"recovered":   true,
	"paid":        true,
	"cancelled":   true,
	"canceled":    true,
	"archived":    true,
	"written_off": true,
	"clos":        true,
	"cloture":     true,
	"clôturé":     true,
	"resolu":      true,
	"résolu":      true,
	"termine":     true,
	"terminé":     true,
	"terminee":    true,
	"terminée":    true,
	"recouvre":    true,
	"recouvré":    true,
	"paye":        true,
	"payé":        true,
	"annule":      true,
	"annulé":      true,
}

// IsClosedLikeStatus reports whether a normalized status is terminal.
func IsClosedLikeStatus(status string) bool {
	return closedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// UnixMillis returns t in milliseconds, or 0 for the zero time. The zero
// value is the sentinel for unparseable or missing dates.
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// AttrDaysOverdue holds an explicit days-overdue count when the payload has one.
const AttrDaysOverdue = "days_overdue"
