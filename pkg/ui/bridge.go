package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/bmo/pkg/refresh"
	"github.com/vanderheijden86/bmo/pkg/watcher"
)

// Refresher is the part of the refresh worker the UI drives.
// *refresh.Worker implements it.
type Refresher interface {
	Start(ctx context.Context) error
	Events() <-chan refresh.Event
	Done() <-chan struct{}
	Refresh() bool
	Notify() bool
	SetInterval(d time.Duration)
	Latest() *refresh.Snapshot
	InFlight() bool
}

// SnapshotMsg carries a newly published snapshot.
type SnapshotMsg struct{ Snapshot *refresh.Snapshot }

// RefreshErrorMsg reports a failed refresh. The snapshot that came with it
// (if any) still arrives as a SnapshotMsg.
type RefreshErrorMsg struct {
	Err         error
	Recoverable bool
}

// RefreshStateMsg reports worker state transitions for the status bar.
type RefreshStateMsg struct {
	State  refresh.State
	Seq    uint64
	Reason refresh.Reason
}

// DataChangedMsg is sent when the watched data directory changes.
type DataChangedMsg struct{}

// StartRefresherCmd starts the worker; the worker issues the initial fetch.
func StartRefresherCmd(ctx context.Context, r Refresher) tea.Cmd {
	return func() tea.Msg {
		if r == nil {
			return nil
		}
		if err := r.Start(ctx); err != nil {
			return RefreshErrorMsg{Err: err, Recoverable: false}
		}
		return nil
	}
}

// WaitForRefreshEventCmd waits for the next worker event and translates it
// into a tea.Msg. The model re-issues it after every event.
func WaitForRefreshEventCmd(r Refresher) tea.Cmd {
	return func() tea.Msg {
		if r == nil {
			return nil
		}
		select {
		case ev := <-r.Events():
			return eventMsg(ev)
		case <-r.Done():
			return nil
		}
	}
}

func eventMsg(ev refresh.Event) tea.Msg {
	switch e := ev.(type) {
	case refresh.SnapshotEvent:
		return SnapshotMsg{Snapshot: e.Snapshot}
	case refresh.ErrorEvent:
		return RefreshErrorMsg{Err: e.Err, Recoverable: e.Recoverable}
	case refresh.StateEvent:
		return RefreshStateMsg{State: e.State, Seq: e.Seq, Reason: e.Reason}
	default:
		return nil
	}
}

// WatchDirCmd waits for a change in the watched data directory.
func WatchDirCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		if w == nil {
			return nil
		}
		if _, ok := <-w.Changed(); !ok {
			return nil
		}
		return DataChangedMsg{}
	}
}
