package state

import (
	"sort"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// Selection is a set of record IDs. IDs that are not in the current
// snapshot are kept but never match a record.
type Selection struct {
	ids map[string]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() Selection {
	return Selection{ids: make(map[string]struct{})}
}

// Toggle flips membership of id.
func (s *Selection) Toggle(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// SelectAll replaces the selection with visibleIDs. Callers pass the IDs of
// the filtered view, so records hidden by a filter are never selected.
func (s *Selection) SelectAll(visibleIDs []string) {
	s.ids = make(map[string]struct{}, len(visibleIDs))
	for _, id := range visibleIDs {
		s.ids[id] = struct{}{}
	}
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.ids = make(map[string]struct{})
}

// Has reports whether id is selected.
func (s Selection) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected IDs, including inert ones.
func (s Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected IDs sorted.
func (s Selection) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Records returns the selected records of snapshot in snapshot order.
func (s Selection) Records(snapshot []model.Record) []model.Record {
	if len(s.ids) == 0 {
		return nil
	}
	var out []model.Record
	for i := range snapshot {
		if _, ok := s.ids[snapshot[i].ID]; ok {
			out = append(out, snapshot[i])
		}
	}
	return out
}

func (s Selection) clone() Selection {
	out := Selection{ids: make(map[string]struct{}, len(s.ids))}
	for id := range s.ids {
		out.ids[id] = struct{}{}
	}
	return out
}
