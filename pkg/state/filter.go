package state

import (
	"strings"
	"time"

	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
)

// Filter holds the active predicate parameters for one view. The zero
// Filter matches every record.
type Filter struct {
	Statuses   []string         `json:"statuses,omitempty"`
	Bureaus    []string         `json:"bureaus,omitempty"`
	Severities []model.Severity `json:"severities,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	Kinds      []model.Kind     `json:"kinds,omitempty"`
	From       time.Time        `json:"from,omitempty"`
	To         time.Time        `json:"to,omitempty"`
	Search     string           `json:"search,omitempty"`
	Min        *float64         `json:"min,omitempty"`
	Max        *float64         `json:"max,omitempty"`
}

// IsZero reports whether the filter has no active predicate.
func (f Filter) IsZero() bool {
	return len(f.Statuses) == 0 && len(f.Bureaus) == 0 && len(f.Severities) == 0 &&
		len(f.Categories) == 0 && len(f.Kinds) == 0 && f.From.IsZero() && f.To.IsZero() &&
		strings.TrimSpace(f.Search) == "" && f.Min == nil && f.Max == nil
}

// Matches reports whether r satisfies every active predicate.
func (f Filter) Matches(r *model.Record) bool {
	if len(f.Statuses) > 0 && !containsFold(f.Statuses, r.Status) {
		return false
	}
	if len(f.Bureaus) > 0 && !containsFold(f.Bureaus, r.Bureau) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, r.EffectiveSeverity()) {
		return false
	}
	if len(f.Categories) > 0 && !containsFold(f.Categories, r.Category) {
		return false
	}
	if len(f.Kinds) > 0 && !contains(f.Kinds, r.Kind) {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		if r.Timestamp.IsZero() {
			return false
		}
		if !f.From.IsZero() && r.Timestamp.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && r.Timestamp.After(f.To) {
			return false
		}
	}
	if f.Min != nil && r.Value < *f.Min {
		return false
	}
	if f.Max != nil && r.Value > *f.Max {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(r.ID), q) &&
			!strings.Contains(strings.ToLower(r.Title), q) &&
			!strings.Contains(strings.ToLower(r.Category), q) &&
			!strings.Contains(strings.ToLower(r.Bureau), q) {
			return false
		}
	}
	return true
}

// Apply returns the records matching f in snapshot order. The result is a
// new slice on every call; snapshot is never modified.
func (f Filter) Apply(snapshot []model.Record) []model.Record {
	defer metrics.Timer(metrics.Filter)()
	out := make([]model.Record, 0, len(snapshot))
	for i := range snapshot {
		if f.Matches(&snapshot[i]) {
			out = append(out, snapshot[i])
		}
	}
	return out
}

// Clone returns a deep copy so callers cannot alias store state.
func (f Filter) Clone() Filter {
	out := f
	out.Statuses = append([]string(nil), f.Statuses...)
	out.Bureaus = append([]string(nil), f.Bureaus...)
	out.Severities = append([]model.Severity(nil), f.Severities...)
	out.Categories = append([]string(nil), f.Categories...)
	out.Kinds = append([]model.Kind(nil), f.Kinds...)
	if f.Min != nil {
		v := *f.Min
		out.Min = &v
	}
	if f.Max != nil {
		v := *f.Max
		out.Max = &v
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
