package state

import (
	"sort"
	"strings"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// SortField is the key a list view is ordered by.
type SortField int

const (
	SortDefault SortField = iota // snapshot order
	SortID
	SortTitle
	SortStatus
	SortSeverity
	SortValue
	SortTimestamp
	SortDue
	SortBureau
	numSortFields
)

// String returns a short label for display.
func (s SortField) String() string {
	switch s {
	case SortDefault:
		return "Default"
	case SortID:
		return "ID"
	case SortTitle:
		return "Title"
	case SortStatus:
		return "Status"
	case SortSeverity:
		return "Severity"
	case SortValue:
		return "Value"
	case SortTimestamp:
		return "Created"
	case SortDue:
		return "Due"
	case SortBureau:
		return "Bureau"
	default:
		return "Unknown"
	}
}

// Next cycles to the following sort field.
func (s SortField) Next() SortField {
	return (s + 1) % numSortFields
}

// ParseSortField resolves a field name; unknown names map to SortDefault.
func ParseSortField(name string) SortField {
	for f := SortDefault; f < numSortFields; f++ {
		if strings.EqualFold(f.String(), name) {
			return f
		}
	}
	switch strings.ToLower(name) {
	case "timestamp", "date":
		return SortTimestamp
	case "priority":
		return SortSeverity
	case "amount", "score":
		return SortValue
	}
	return SortDefault
}

// Sort is a field plus direction.
type Sort struct {
	Field SortField `json:"field"`
	Desc  bool      `json:"desc"`
}

func (s Sort) less(a, b *model.Record) bool {
	switch s.Field {
	case SortID:
		return a.ID < b.ID
	case SortTitle:
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	case SortStatus:
		return a.Status < b.Status
	case SortSeverity:
		return a.EffectiveSeverity().Rank() < b.EffectiveSeverity().Rank()
	case SortValue:
		return a.Value < b.Value
	case SortTimestamp:
		return a.Timestamp.Before(b.Timestamp)
	case SortDue:
		return a.DueDate.Before(b.DueDate)
	case SortBureau:
		return a.Bureau < b.Bureau
	}
	return false
}

// Sorted returns a stably ordered copy of records. Equal keys keep their
// snapshot order in both directions.
func (s Sort) Sorted(records []model.Record) []model.Record {
	out := append([]model.Record(nil), records...)
	if s.Field == SortDefault {
		if s.Desc {
			for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
				out[i], out[j] = out[j], out[i]
			}
		}
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		// Undated records sort last in both directions.
		if s.Field == SortDue && a.DueDate.IsZero() != b.DueDate.IsZero() {
			return !a.DueDate.IsZero()
		}
		if s.Desc {
			return s.less(b, a)
		}
		return s.less(a, b)
	})
	return out
}
