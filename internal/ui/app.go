package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"enroute/internal/board"
	"enroute/internal/departures"
)

// App is the root Bubble Tea model. It holds no session; boards push state
// in through SnapshotMsg.
type App struct {
	snap    board.Snapshot
	have    bool
	now     time.Time
	loc     *time.Location
	spinner spinner.Model
	width   int
	height  int
	ready   bool
}

// NewApp returns an App that draws its clock in loc.
func NewApp(loc *time.Location) App {
	if loc == nil {
		loc = time.Local
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	return App{loc: loc, spinner: s, now: time.Now(), snap: board.Snapshot{Use24h: true, Loading: true}}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, clockTick())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		}
		return a, nil

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case SnapshotMsg:
		a.snap = board.Snapshot(msg)
		a.have = true
		return a, nil

	case ClockTick:
		a.now = time.Time(msg)
		return a, clockTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// Snapshot returns the last snapshot received (for testing).
func (a App) Snapshot() board.Snapshot { return a.snap }

func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	header := a.renderHeader()
	caption := RenderCaption(a.snap.Caption, a.width)
	bodyHeight := a.height - lipgloss.Height(header)
	if caption != "" {
		bodyHeight -= lipgloss.Height(caption)
	}

	body := a.renderBody(bodyHeight)
	out := lipgloss.JoinVertical(lipgloss.Left, header, body)
	if caption != "" {
		out = lipgloss.JoinVertical(lipgloss.Left, out, caption)
	}
	return out
}

func (a App) renderHeader() string {
	title := a.snap.Title
	if title == "" {
		title = "Departures"
	}
	clock := departures.FormatClock(a.now.In(a.loc), a.snap.Use24h)
	left := HeaderStyle.Render(title)
	right := ClockStyle.Render(clock)
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := HeaderStyle.Padding(0).Width(gap).Render("")
	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

func (a App) renderBody(height int) string {
	s := a.snap
	width := a.width - 2
	errLine := ""
	if s.Err != "" {
		errLine = ErrorStyle.Render(s.Err)
	}

	switch {
	case !a.have || (s.Loading && s.Err == ""):
		return " " + a.spinner.View() + " Loading..."
	case s.View == board.ViewTrip:
		if s.Trip == nil {
			return " " + errLine
		}
		return indent(RenderTrip(s.Trip, width), errLine)
	case s.View == board.ViewStation && len(s.Panes) == 0:
		top := RenderArrivals(s.Arrivals, width)
		if len(s.Alerts) > 0 {
			top += "\n" + RenderAlerts(s.Alerts, width)
		}
		return indent(top, errLine)
	default:
		grid := RenderGrid(s.Rows, s.Cols, s.Panes, a.width, height)
		if errLine != "" {
			grid = lipgloss.JoinVertical(lipgloss.Left, " "+errLine, grid)
		}
		return grid
	}
}

func indent(body, errLine string) string {
	out := lipgloss.NewStyle().Padding(0, 1).Render(body)
	if errLine != "" {
		out += "\n " + errLine
	}
	return out
}
