package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// CommandID names a palette action. The model maps IDs to behavior.
type CommandID string

const (
	CmdGotoDashboard     CommandID = "goto.dashboard"
	CmdGotoEvaluations   CommandID = "goto.evaluations"
	CmdGotoGovernance    CommandID = "goto.governance"
	CmdGotoTickets       CommandID = "goto.tickets"
	CmdGotoRecouvrements CommandID = "goto.recouvrements"
	CmdNextTab           CommandID = "tab.next"
	CmdRefresh           CommandID = "refresh"
	CmdExport            CommandID = "export"
	CmdCycleSort         CommandID = "sort.cycle"
	CmdReverseSort       CommandID = "sort.reverse"
	CmdSearch            CommandID = "filter.search"
	CmdFilterCritical    CommandID = "filter.critical"
	CmdFilterOpen        CommandID = "filter.open"
	CmdClearFilter       CommandID = "filter.clear"
	CmdSelectAll         CommandID = "selection.all"
	CmdClearSelection    CommandID = "selection.clear"
	CmdCopyID            CommandID = "copy.id"
	CmdCopyInsights      CommandID = "copy.insights"
	CmdSettings          CommandID = "settings"
	CmdToggleSidebar     CommandID = "sidebar.toggle"
	CmdHelp              CommandID = "help"
	CmdQuit              CommandID = "quit"
)

// Command is one palette entry.
type Command struct {
	ID          CommandID
	Label       string
	Description string
	Key         string
}

// DefaultCommands is the static command list.
var DefaultCommands = []Command{
	{CmdGotoDashboard, "Go to Dashboard", "Global KPIs and alerts", "1"},
	{CmdGotoEvaluations, "Go to Evaluations", "Evaluation campaigns and scores", "2"},
	{CmdGotoGovernance, "Go to Governance", "RACI matrix, alerts and timeline", "3"},
	{CmdGotoTickets, "Go to Tickets", "Client tickets and SLA", "4"},
	{CmdGotoRecouvrements, "Go to Recouvrements", "Receivables and recovery", "5"},
	{CmdNextTab, "Next tab", "Switch to the next sub-view", "tab"},
	{CmdRefresh, "Refresh now", "Fetch every module from the source", "r"},
	{CmdExport, "Export", "Write the current module or selection to a file", "e"},
	{CmdCycleSort, "Cycle sort", "Sort by the next field", "s"},
	{CmdReverseSort, "Reverse sort", "Toggle ascending and descending order", ""},
	{CmdSearch, "Search", "Filter records by text", "/"},
	{CmdFilterCritical, "Show critical only", "Filter on critical severity", ""},
	{CmdFilterOpen, "Show open only", "Hide closed records", ""},
	{CmdClearFilter, "Clear filters", "Show every record of the module", ""},
	{CmdSelectAll, "Select all visible", "Select the records passing the filter", "a"},
	{CmdClearSelection, "Clear selection", "Unselect every record", "esc"},
	{CmdCopyID, "Copy ID", "Copy the focused record ID", "y"},
	{CmdCopyInsights, "Copy insights", "Copy the module insight summary", ""},
	{CmdSettings, "Settings", "Refresh, overscan and policy", ","},
	{CmdToggleSidebar, "Toggle sidebar", "Collapse or expand navigation", "ctrl+b"},
	{CmdHelp, "Help", "Show key bindings", "?"},
	{CmdQuit, "Quit", "Exit bmo", "q"},
}

// FilterCommands keeps the commands whose label or description contains
// query, case-insensitively. An empty query keeps everything. Order is
// preserved.
func FilterCommands(cmds []Command, query string) []Command {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if q == "" ||
			strings.Contains(strings.ToLower(c.Label), q) ||
			strings.Contains(strings.ToLower(c.Description), q) {
			out = append(out, c)
		}
	}
	return out
}

// Palette is the searchable command list (ctrl+k).
type Palette struct {
	input    textinput.Model
	commands []Command
	filtered []Command
	index    int
	width    int
	theme    Theme
}

// NewPalette creates a palette over cmds.
func NewPalette(cmds []Command, theme Theme) Palette {
	ti := textinput.New()
	ti.Placeholder = "Type a command…"
	ti.Prompt = "› "
	ti.CharLimit = 64
	p := Palette{input: ti, commands: cmds, theme: theme, width: 60}
	p.filtered = FilterCommands(cmds, "")
	return p
}

// Open resets the query and focuses the input.
func (p *Palette) Open() tea.Cmd {
	p.input.SetValue("")
	p.filtered = FilterCommands(p.commands, "")
	p.index = 0
	return p.input.Focus()
}

// SetWidth sets the modal width.
func (p *Palette) SetWidth(w int) { p.width = max(min(w-4, 72), 20) }

// Index returns the highlighted position.
func (p Palette) Index() int { return p.index }

// Filtered returns the commands matching the current query.
func (p Palette) Filtered() []Command { return p.filtered }

// Highlighted returns the highlighted command, if any.
func (p Palette) Highlighted() (Command, bool) {
	if len(p.filtered) == 0 {
		return Command{}, false
	}
	return p.filtered[p.index], true
}

// Move shifts the highlight, clamped to [0, len-1].
func (p *Palette) Move(delta int) {
	if len(p.filtered) == 0 {
		p.index = 0
		return
	}
	p.index = min(max(p.index+delta, 0), len(p.filtered)-1)
}

// PaletteResult reports what a key did to the palette.
type PaletteResult struct {
	Invoked *Command
	Closed  bool
}

// Update handles a message while the palette is open.
func (p Palette) Update(msg tea.Msg) (Palette, PaletteResult, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "esc", "ctrl+k":
			p.input.Blur()
			return p, PaletteResult{Closed: true}, nil
		case "up", "ctrl+p":
			p.Move(-1)
			return p, PaletteResult{}, nil
		case "down", "ctrl+n":
			p.Move(1)
			return p, PaletteResult{}, nil
		case "enter":
			c, ok := p.Highlighted()
			p.input.Blur()
			if !ok {
				return p, PaletteResult{Closed: true}, nil
			}
			return p, PaletteResult{Invoked: &c, Closed: true}, nil
		}
	}

	var cmd tea.Cmd
	before := p.input.Value()
	p.input, cmd = p.input.Update(msg)
	if p.input.Value() != before {
		p.filtered = FilterCommands(p.commands, p.input.Value())
		p.index = 0
	}
	return p, PaletteResult{}, cmd
}

// View renders the palette box.
func (p Palette) View() string {
	t := p.theme
	var b strings.Builder
	b.WriteString(t.PrimaryBold.Render("Commands"))
	b.WriteString("\n")
	b.WriteString(p.input.View())
	b.WriteString("\n")
	b.WriteString(RenderDivider(p.width - 4))
	b.WriteString("\n")

	if len(p.filtered) == 0 {
		b.WriteString(t.MutedText.Render("No matching command"))
	}
	const maxShown = 12
	start := 0
	if p.index >= maxShown {
		start = p.index - maxShown + 1
	}
	end := min(start+maxShown, len(p.filtered))
	for i := start; i < end; i++ {
		c := p.filtered[i]
		keyHint := t.MutedText.Render(padRight(c.Key, 7))
		line := keyHint + " " + truncate(c.Label, 22)
		desc := truncate(c.Description, max(p.width-36, 0))
		if i == p.index {
			line = t.Selected.Render(line) + " " + t.InfoText.Render(desc)
		} else {
			line = "  " + line + " " + t.MutedText.Render(desc)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	return FocusedPanelStyle.
		Width(p.width).
		Padding(0, 1).
		Render(b.String())
}
