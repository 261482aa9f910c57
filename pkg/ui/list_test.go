package ui

import (
	"fmt"
	"strings"
	"testing"

	"github.com/vanderheijden86/bmo/pkg/model"
	"github.com/vanderheijden86/bmo/pkg/testutil"
)

// plainRows renders one line per record and two for the focused one, so
// heights are predictable without styling.
func plainRows(r *model.Record, width int, selected, focused bool) string {
	mark := " "
	if selected {
		mark = "x"
	}
	line := fmt.Sprintf("%s %s", mark, r.ID)
	if focused {
		return line + "\n  " + r.Title
	}
	return line
}

func newPlainList(t *testing.T, n, height int) *RecordList {
	t.Helper()
	l := NewRecordList(TestTheme(), plainRows, 2)
	l.SetSize(60, height)
	l.SetRecords(testutil.NewDefault().Records(model.ModuleTickets, n), "h1")
	return l
}

func TestRecordList_ViewRendersExactlyHeight(t *testing.T) {
	l := newPlainList(t, 10000, 20)
	for _, step := range []func(){
		func() {},
		l.PageDown,
		func() { l.MoveBy(4321) },
		l.Bottom,
		l.Top,
	} {
		step()
		if got := len(strings.Split(l.View(), "\n")); got != 20 {
			t.Fatalf("cursor %d: view has %d lines, want 20", l.Cursor(), got)
		}
	}
}

func TestRecordList_FocusedRowVisible(t *testing.T) {
	l := newPlainList(t, 500, 10)
	l.MoveBy(250)
	view := l.View()
	focused := l.Focused()
	if focused == nil || focused.ID != "TCK-00250" {
		t.Fatalf("focused = %v", focused)
	}
	if !strings.Contains(view, focused.ID) || !strings.Contains(view, focused.Title) {
		t.Fatalf("focused row (both lines) should be in view:\n%s", view)
	}
}

func TestRecordList_BottomIncludesTallLastRow(t *testing.T) {
	l := newPlainList(t, 100, 8)
	l.Bottom()
	view := l.View()
	last := l.Records()[99]
	if !strings.Contains(view, last.Title) {
		t.Fatalf("second line of the last row is cut off:\n%s", view)
	}
	if l.TotalHeight() < 101 {
		t.Fatalf("TotalHeight = %d, want at least 101", l.TotalHeight())
	}
}

func TestRecordList_EmptyState(t *testing.T) {
	l := NewRecordList(TestTheme(), plainRows, 2)
	l.SetSize(40, 5)
	l.SetRecords(nil, "")
	l.SetEmptyText("Nothing here")

	view := l.View()
	if !strings.Contains(view, "Nothing here") {
		t.Fatalf("empty text missing:\n%s", view)
	}
	if got := len(strings.Split(view, "\n")); got != 5 {
		t.Fatalf("empty view has %d lines, want 5", got)
	}
	if l.Focused() != nil {
		t.Fatal("empty list should have no focused record")
	}
	l.MoveBy(3)
	if l.Cursor() != 0 {
		t.Fatalf("cursor moved on empty list: %d", l.Cursor())
	}
}

func TestRecordList_CursorFollowsIDAcrossUpdates(t *testing.T) {
	recs := testutil.NewDefault().Records(model.ModuleTickets, 50)
	l := NewRecordList(TestTheme(), plainRows, 2)
	l.SetSize(60, 10)
	l.SetRecords(recs, "a")
	l.MoveBy(30)
	want := l.Focused().ID

	// Drop the first ten records: the focused record moves up by ten.
	l.SetRecords(recs[10:], "b")
	if got := l.Focused().ID; got != want {
		t.Fatalf("focused = %s, want %s", got, want)
	}
	if l.Cursor() != 20 {
		t.Fatalf("cursor = %d, want 20", l.Cursor())
	}

	// Filtered out entirely: the cursor resets.
	l.SetRecords(recs[:5], "c")
	if l.Cursor() != 0 {
		t.Fatalf("cursor = %d, want 0 after the focused record left", l.Cursor())
	}
}

func TestRecordList_SelectionMark(t *testing.T) {
	l := newPlainList(t, 5, 10)
	sel := map[string]bool{"TCK-00002": true}
	l.SetSelectedFunc(func(id string) bool { return sel[id] })
	l.SetRecords(l.Records(), "h2")

	view := l.View()
	if !strings.Contains(view, "x TCK-00002") {
		t.Fatalf("selected row not marked:\n%s", view)
	}
	if strings.Contains(view, "x TCK-00001") {
		t.Fatalf("unselected row marked:\n%s", view)
	}
	ids := l.VisibleIDs()
	if len(ids) != 5 || ids[0] != "TCK-00000" {
		t.Fatalf("VisibleIDs = %v", ids)
	}
}

func TestRecordList_StyledRowsKeepHeight(t *testing.T) {
	theme := TestTheme()
	l := NewRecordList(theme, newRowRenderer(theme, model.KindRACI), 3)
	l.SetSize(90, 12)
	l.SetRecords(testutil.NewDefault().Governance(200, 0), "raci")
	l.MoveBy(120)
	if got := len(strings.Split(l.View(), "\n")); got != 12 {
		t.Fatalf("view has %d lines, want 12", got)
	}
}
