// Package ui provides the Bubble Tea TUI for the departure boards.
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"enroute/internal/board"
)

// SnapshotMsg carries a new board state into the program.
type SnapshotMsg board.Snapshot

// ClockTick redraws the header clock.
type ClockTick time.Time

func clockTick() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg { return ClockTick(t) })
}

// ProgramSink sends every snapshot to a running program.
type ProgramSink struct {
	Program *tea.Program
}

func (s ProgramSink) Deliver(snap board.Snapshot) {
	if s.Program != nil {
		s.Program.Send(SnapshotMsg(snap))
	}
}
