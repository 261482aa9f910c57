package state

import (
	"sync"

	"github.com/vanderheijden86/bmo/pkg/model"
)

// State is the ephemeral UI state. It is owned by a Store; consumers read
// it through selectors or a cloned View.
type State struct {
	Module           model.Module
	Tab              int
	Filters          map[model.Module]Filter
	Sorts            map[model.Module]Sort
	Selection        Selection
	SidebarCollapsed bool
}

// Action is a state transition understood by Reduce.
type Action interface {
	apply(*State)
}

// SetModule switches module. Selection is cleared because selected IDs
// belong to the previous collection; the tab resets to the first one.
type SetModule struct{ Module model.Module }

// SetTab selects a sub-tab by index.
type SetTab struct{ Tab int }

// ApplyFilter replaces the filter of the current module.
type ApplyFilter struct{ Filter Filter }

// ClearFilter resets the filter of the current module.
type ClearFilter struct{}

// SetSearch replaces only the free-text search of the current filter.
type SetSearch struct{ Query string }

// SetSort replaces the sort of the current module.
type SetSort struct{ Sort Sort }

// ToggleSelection flips one ID.
type ToggleSelection struct{ ID string }

// SelectAllVisible selects exactly the given visible IDs.
type SelectAllVisible struct{ IDs []string }

// ClearSelection empties the selection.
type ClearSelection struct{}

// BulkActionCompleted is dispatched when an action over the selection has
// finished; it clears the selection.
type BulkActionCompleted struct{ Action string }

// ToggleSidebar collapses or expands the sidebar.
type ToggleSidebar struct{}

func (a SetModule) apply(s *State) {
	if s.Module == a.Module {
		return
	}
	s.Module = a.Module
	s.Tab = 0
	s.Selection.Clear()
}

func (a SetTab) apply(s *State) {
	if a.Tab >= 0 {
		s.Tab = a.Tab
	}
}

func (a ApplyFilter) apply(s *State) { s.Filters[s.Module] = a.Filter.Clone() }

func (ClearFilter) apply(s *State) { delete(s.Filters, s.Module) }

func (a SetSearch) apply(s *State) {
	f := s.Filters[s.Module].Clone()
	f.Search = a.Query
	s.Filters[s.Module] = f
}

func (a SetSort) apply(s *State)          { s.Sorts[s.Module] = a.Sort }
func (a ToggleSelection) apply(s *State)  { s.Selection.Toggle(a.ID) }
func (a SelectAllVisible) apply(s *State) { s.Selection.SelectAll(a.IDs) }
func (ClearSelection) apply(s *State)     { s.Selection.Clear() }
func (BulkActionCompleted) apply(s *State) {
	s.Selection.Clear()
}
func (ToggleSidebar) apply(s *State) { s.SidebarCollapsed = !s.SidebarCollapsed }

// NewState returns the initial state for module.
func NewState(module model.Module) State {
	return State{
		Module:    module,
		Filters:   make(map[model.Module]Filter),
		Sorts:     make(map[model.Module]Sort),
		Selection: NewSelection(),
	}
}

// Reduce applies a to s in place.
func Reduce(s *State, a Action) {
	if s.Filters == nil {
		s.Filters = make(map[model.Module]Filter)
	}
	if s.Sorts == nil {
		s.Sorts = make(map[model.Module]Sort)
	}
	a.apply(s)
}

// Store is the single writer of UI state. Dispatch is the only mutation
// path; everything else is a read-only selector. The store never fetches.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners []func(View)
}

// NewStore creates a store positioned on module.
func NewStore(module model.Module) *Store {
	return &Store{state: NewState(module)}
}

// Dispatch applies an action and notifies subscribers with a fresh view.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	Reduce(&s.state, a)
	listeners := s.listeners
	var v View
	if len(listeners) > 0 {
		v = s.viewLocked()
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// Subscribe registers fn to be called after every dispatch.
func (s *Store) Subscribe(fn func(View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// View is an immutable copy of the state.
type View struct {
	Module           model.Module
	Tab              int
	Filter           Filter
	Sort             Sort
	SelectedIDs      []string
	SidebarCollapsed bool
}

// View returns a copy of the current state for the current module.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

func (s *Store) viewLocked() View {
	return View{
		Module:           s.state.Module,
		Tab:              s.state.Tab,
		Filter:           s.state.Filters[s.state.Module].Clone(),
		Sort:             s.state.Sorts[s.state.Module],
		SelectedIDs:      s.state.Selection.IDs(),
		SidebarCollapsed: s.state.SidebarCollapsed,
	}
}

// Module returns the current module.
func (s *Store) Module() model.Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Module
}

// Tab returns the current sub-tab index.
func (s *Store) Tab() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Tab
}

// Filter returns a copy of the current module's filter.
func (s *Store) Filter() Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Filters[s.state.Module].Clone()
}

// Sort returns the current module's sort.
func (s *Store) Sort() Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Sorts[s.state.Module]
}

// SidebarCollapsed reports whether the sidebar is collapsed.
func (s *Store) SidebarCollapsed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SidebarCollapsed
}

// IsSelected reports whether id is selected.
func (s *Store) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Selection.Has(id)
}

// SelectionCount returns the number of selected IDs.
func (s *Store) SelectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Selection.Len()
}

// SelectedIDs returns the selected IDs sorted.
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Selection.IDs()
}

// Visible returns the current module's filtered and sorted view of snapshot,
// computed fresh on every call.
func (s *Store) Visible(snapshot []model.Record) []model.Record {
	s.mu.RLock()
	f := s.state.Filters[s.state.Module].Clone()
	srt := s.state.Sorts[s.state.Module]
	s.mu.RUnlock()
	return srt.Sorted(f.Apply(snapshot))
}

// Selected returns the selected records present in snapshot.
func (s *Store) Selected(snapshot []model.Record) []model.Record {
	s.mu.RLock()
	sel := s.state.Selection.clone()
	s.mu.RUnlock()
	return sel.Records(snapshot)
}
