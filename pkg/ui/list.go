package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/bmo/pkg/metrics"
	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/virtual"
)

// maxRowCache bounds the memoized row strings; the cache is dropped
// wholesale when it fills up.
const maxRowCache = 4096

// RowRenderer renders one record at the given width. Focused rows may span
// several lines; the list measures whatever comes back.
type RowRenderer func(r *model.Record, width int, selected, focused bool) string

type rowKey struct {
	id       string
	width    int
	selected bool
	focused  bool
	hash     string
}

// RecordList is a windowed list over records. Only the rows in the
// virtualizer's range are rendered, so a 10k-row table costs the same per
// frame as a 20-row one.
type RecordList struct {
	records []model.Record
	hash    string
	v       *virtual.Virtualizer
	cursor  int
	width   int
	height  int

	render     RowRenderer
	isSelected func(id string) bool
	rows       map[rowKey]string
	emptyText  string
	theme      Theme
}

// NewRecordList creates an empty list. overscan is the number of extra rows
// rendered on each side of the viewport.
func NewRecordList(theme Theme, render RowRenderer, overscan int) *RecordList {
	return &RecordList{
		v:          virtual.New(virtual.Options{Overscan: overscan, Viewport: 1}),
		render:     render,
		isSelected: func(string) bool { return false },
		rows:       make(map[rowKey]string),
		emptyText:  "No records",
		theme:      theme,
	}
}

// SetSelectedFunc installs the selection lookup used when rendering rows.
func (l *RecordList) SetSelectedFunc(fn func(id string) bool) {
	if fn == nil {
		fn = func(string) bool { return false }
	}
	l.isSelected = fn
}

// SetEmptyText sets the message shown for an empty collection.
func (l *RecordList) SetEmptyText(s string) { l.emptyText = s }

// SetOverscan changes the overscan count.
func (l *RecordList) SetOverscan(n int) { l.v.SetOverscan(n) }

// SetRecords replaces the collection. hash identifies the content (snapshot
// hash plus filter and sort); an unchanged hash keeps measurements and the
// row cache. The cursor follows the previously focused record when it is
// still present.
func (l *RecordList) SetRecords(records []model.Record, hash string) {
	if hash == l.hash && len(records) == len(l.records) {
		l.records = records
		return
	}
	focusedID := ""
	if r := l.Focused(); r != nil {
		focusedID = r.ID
	}
	l.records = records
	l.hash = hash
	l.rows = make(map[rowKey]string)
	l.v.Reset(len(records))

	l.cursor = 0
	if focusedID != "" {
		for i := range records {
			if records[i].ID == focusedID {
				l.cursor = i
				break
			}
		}
	}
	l.reveal()
}

// SetSize sets the list dimensions. A width change invalidates every
// measurement since rows may wrap differently.
func (l *RecordList) SetSize(width, height int) {
	height = max(height, 1)
	if width != l.width {
		l.width = width
		l.v.Reset(len(l.records))
	}
	l.height = height
	l.v.SetViewport(height)
	l.reveal()
}

// Len returns the number of records.
func (l *RecordList) Len() int { return len(l.records) }

// Records returns the current collection.
func (l *RecordList) Records() []model.Record { return l.records }

// Cursor returns the focused index.
func (l *RecordList) Cursor() int { return l.cursor }

// Offset returns the scroll offset in lines.
func (l *RecordList) Offset() int { return l.v.Offset() }

// TotalHeight returns the scrollable height in lines.
func (l *RecordList) TotalHeight() int { return l.v.TotalSize() }

// Focused returns the record under the cursor, or nil.
func (l *RecordList) Focused() *model.Record {
	if l.cursor < 0 || l.cursor >= len(l.records) {
		return nil
	}
	return &l.records[l.cursor]
}

// VisibleIDs returns the IDs of every record in the collection. "Visible"
// means passing the current filter, not being inside the viewport.
func (l *RecordList) VisibleIDs() []string {
	ids := make([]string, len(l.records))
	for i := range l.records {
		ids[i] = l.records[i].ID
	}
	return ids
}

// MoveBy moves the cursor by delta rows, clamped to the collection.
func (l *RecordList) MoveBy(delta int) {
	if len(l.records) == 0 {
		return
	}
	l.cursor = min(max(l.cursor+delta, 0), len(l.records)-1)
	l.reveal()
}

// PageDown moves the cursor by one viewport of rows.
func (l *RecordList) PageDown() { l.MoveBy(max(l.height-1, 1)) }

// PageUp moves the cursor back by one viewport of rows.
func (l *RecordList) PageUp() { l.MoveBy(-max(l.height-1, 1)) }

// Top focuses the first record.
func (l *RecordList) Top() { l.MoveBy(-len(l.records)) }

// Bottom focuses the last record.
func (l *RecordList) Bottom() { l.MoveBy(len(l.records)) }

// reveal measures the focused row and scrolls it into view.
func (l *RecordList) reveal() {
	if len(l.records) == 0 || l.width <= 0 {
		return
	}
	l.measure(l.cursor)
	l.v.ScrollToIndex(l.cursor, virtual.AlignAuto)
}

func (l *RecordList) measure(i int) string {
	row := l.row(i)
	l.v.Measure(i, lipgloss.Height(row))
	return row
}

func (l *RecordList) row(i int) string {
	rec := &l.records[i]
	k := rowKey{
		id:       rec.ID,
		width:    l.width,
		selected: l.isSelected(rec.ID),
		focused:  i == l.cursor,
		hash:     l.hash,
	}
	if s, ok := l.rows[k]; ok {
		metrics.RowCache.Hit()
		return s
	}
	metrics.RowCache.Miss()
	if len(l.rows) >= maxRowCache {
		l.rows = make(map[rowKey]string)
	}
	s := l.render(rec, l.width, k.selected, k.focused)
	l.rows[k] = s
	return s
}

// View renders exactly height lines.
func (l *RecordList) View() string {
	defer metrics.Timer(metrics.UIRender)()
	if l.height <= 0 {
		return ""
	}
	if len(l.records) == 0 {
		return lipgloss.Place(l.width, l.height, lipgloss.Center, lipgloss.Center,
			l.theme.MutedText.Render(l.emptyText))
	}

	// Measuring can change sizes inside the window; recompute once so the
	// rendered lines line up with the offsets.
	rng := l.v.Range()
	for _, it := range rng.Items {
		l.measure(it.Index)
	}
	rng = l.v.Range()

	lines := make([]string, 0, l.height)
	for _, it := range rng.Items {
		rowLines := strings.Split(l.row(it.Index), "\n")
		for j, line := range rowLines {
			pos := it.Start + j
			if pos < rng.Offset || pos >= rng.Offset+l.height {
				continue
			}
			lines = append(lines, line)
		}
	}
	for len(lines) < l.height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
