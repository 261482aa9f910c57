package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFilterCommands(t *testing.T) {
	tests := []struct {
		query string
		want  []CommandID
	}{
		{"", nil},
		{"EXPORT", []CommandID{CmdExport}},
		{"  sidebar ", []CommandID{CmdToggleSidebar}},
		{"sort", []CommandID{CmdCycleSort, CmdReverseSort}},
		{"receivables", []CommandID{CmdGotoRecouvrements}},
		{"zzz", []CommandID{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := FilterCommands(DefaultCommands, tt.query)
			if tt.want == nil {
				if len(got) != len(DefaultCommands) {
					t.Fatalf("empty query kept %d of %d commands", len(got), len(DefaultCommands))
				}
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d commands, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("command %d = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestPalette_TypingFiltersAndResetsIndex(t *testing.T) {
	p := NewPalette(DefaultCommands, TestTheme())
	p.Open()
	p.Move(3)
	if p.Index() != 3 {
		t.Fatalf("index = %d", p.Index())
	}

	p, _, _ = p.Update(runes("quit"))
	if len(p.Filtered()) != 1 || p.Index() != 0 {
		t.Fatalf("filtered = %v index = %d", p.Filtered(), p.Index())
	}

	p.Move(10)
	if p.Index() != 0 {
		t.Fatalf("index should clamp to the single match, got %d", p.Index())
	}
}

func TestPalette_EnterInvokesHighlighted(t *testing.T) {
	p := NewPalette(DefaultCommands, TestTheme())
	p.Open()
	p, _, _ = p.Update(runes("sort"))
	p, res, _ := p.Update(tea.KeyMsg{Type: tea.KeyDown})
	if res.Closed || res.Invoked != nil {
		t.Fatalf("moving should not close: %+v", res)
	}
	_, res, _ = p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !res.Closed || res.Invoked == nil || res.Invoked.ID != CmdReverseSort {
		t.Fatalf("result = %+v", res)
	}
}

func TestPalette_EnterWithoutMatchCloses(t *testing.T) {
	p := NewPalette(DefaultCommands, TestTheme())
	p.Open()
	p, _, _ = p.Update(runes("nothing matches this"))
	if _, ok := p.Highlighted(); ok {
		t.Fatal("nothing should be highlighted")
	}
	_, res, _ := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !res.Closed || res.Invoked != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestPalette_EscCloses(t *testing.T) {
	p := NewPalette(DefaultCommands, TestTheme())
	p.Open()
	_, res, _ := p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if !res.Closed || res.Invoked != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestPalette_OpenResetsQuery(t *testing.T) {
	p := NewPalette(DefaultCommands, TestTheme())
	p.Open()
	p, _, _ = p.Update(runes("help"))
	p.Open()
	if len(p.Filtered()) != len(DefaultCommands) || p.Index() != 0 {
		t.Fatalf("reopened palette kept state: %d commands, index %d", len(p.Filtered()), p.Index())
	}
}
