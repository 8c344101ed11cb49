package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"enroute/internal/board"
	"enroute/internal/departures"
	"enroute/internal/enunciator"
	"enroute/internal/layout"
	"enroute/internal/trip"
)

// line lays out left and right text on one row of the given width.
func line(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func minutes(n int) string {
	return fmt.Sprintf("%d min", n)
}

// RenderDepartures renders items in the pane's display mode.
func RenderDepartures(items []departures.DisplayItem, groups []departures.RouteGroup, cfg layout.PaneConfig, width int) string {
	if len(items) == 0 {
		return MutedStyle.Render("No departures found.")
	}
	if cfg.DisplayMode == layout.ModeGroupedByRoute && len(groups) > 0 {
		return renderGroups(groups, width)
	}
	rows := make([]string, 0, len(items))
	for _, it := range items {
		if cfg.DisplayMode == layout.ModeTrainDeparture {
			rows = append(rows, trainRow(it, cfg, width))
			continue
		}
		rows = append(rows, simpleRow(it, cfg, width))
	}
	return strings.Join(rows, "\n")
}

func label(it departures.DisplayItem, cfg layout.PaneConfig) string {
	if cfg.UseRouteColor {
		return Badge(it.RouteLabel, it.Color, it.TextColor)
	}
	return lipgloss.NewStyle().Bold(true).Render(it.RouteLabel)
}

func simpleRow(it departures.DisplayItem, cfg layout.PaneConfig, width int) string {
	left := label(it, cfg) + " to " + it.Headsign
	right := MinutesStyle.Render(minutes(it.MinutesUntil))
	if it.Cancelled {
		left = label(it, cfg) + " " + CancelledStyle.Render("to "+it.Headsign)
		right = ErrorStyle.Render("✕")
	}
	return line(left, right, width)
}

func trainRow(it departures.DisplayItem, cfg layout.PaneConfig, width int) string {
	parts := []string{it.FormattedTime, label(it, cfg)}
	if cfg.ShowTripShortName && it.TripShortName != "" {
		parts = append(parts, it.TripShortName)
	}
	parts = append(parts, it.Headsign)
	left := strings.Join(parts, " ")

	var status string
	switch {
	case it.Cancelled:
		left = CancelledStyle.Render(left)
		status = ErrorStyle.Render("Cancelled")
	case it.DelayMinutes > 0:
		status = WarnStyle.Render(fmt.Sprintf("Delayed %d mins", it.DelayMinutes))
	default:
		status = minutes(it.MinutesUntil)
	}
	if it.Platform != "" {
		status = "Plat. " + it.Platform + "  " + status
	}
	return line(left, status, width)
}

func renderGroups(groups []departures.RouteGroup, width int) string {
	var rows []string
	for _, g := range groups {
		rows = append(rows, Badge(g.RouteLabel, g.Color, g.TextColor))
		for _, d := range g.Directions {
			mins := make([]string, len(d.Items))
			for i, it := range d.Items {
				mins[i] = fmt.Sprint(it.MinutesUntil)
			}
			rows = append(rows, line("  "+d.Headsign, MinutesStyle.Render(strings.Join(mins, ", ")+" min"), width))
		}
	}
	return strings.Join(rows, "\n")
}

// RenderAlerts lists alert texts, or a placeholder when there are none.
func RenderAlerts(alerts []string, width int) string {
	if len(alerts) == 0 {
		return MutedStyle.Render("No alerts found.")
	}
	style := WarnStyle.Width(width)
	rows := make([]string, len(alerts))
	for i, a := range alerts {
		rows[i] = style.Render("⚠ " + a)
	}
	return strings.Join(rows, "\n")
}

// RenderTrip renders the enroute header and the upcoming stop list.
func RenderTrip(info *trip.Info, width int) string {
	if info == nil {
		return ""
	}
	head := Badge(info.Route, info.Color, info.TextColor) + " to " + lipgloss.NewStyle().Bold(true).Render(info.Headsign)
	if info.Run != "" {
		head += MutedStyle.Render("  #" + info.Run)
	}

	var status string
	switch {
	case info.Completed:
		status = MutedStyle.Render("Trip completed")
	case info.Terminus && info.Approaching:
		status = ApproachingStyle.Render("Arriving at final stop: " + info.NextStop)
	case info.Approaching:
		status = ApproachingStyle.Render("Approaching: " + info.NextStop)
	default:
		status = "Next stop: " + lipgloss.NewStyle().Bold(true).Render(info.NextStop)
	}

	rows := []string{head, status, ""}
	for _, s := range info.Stops {
		if s.Spacer {
			rows = append(rows, MutedStyle.Render("  ⋮ "+s.Name))
			continue
		}
		right := s.Minutes
		if right != trip.DueLabel {
			right += " min"
		}
		if s.ArrivalTime != "" {
			right = MutedStyle.Render(s.ArrivalTime) + "  " + MinutesStyle.Render(right)
		}
		rows = append(rows, line("  "+s.Name, right, width))
	}
	return strings.Join(rows, "\n")
}

// RenderArrivals renders the station board rows.
func RenderArrivals(arrivals []departures.Arrival, width int) string {
	if len(arrivals) == 0 {
		return MutedStyle.Render("No upcoming arrivals.")
	}
	rows := make([]string, 0, len(arrivals))
	for _, a := range arrivals {
		left := Badge(a.Route, a.Color, a.TextColor) + " " + a.Headsign
		if a.Run != "" {
			left += MutedStyle.Render(" #" + a.Run)
		}
		right := a.Time + "  " + MinutesStyle.Render(minutes(a.Minutes))
		if a.Cancelled {
			left = CancelledStyle.Render(a.Route + " " + a.Headsign)
			right = ErrorStyle.Render("Cancelled")
		}
		rows = append(rows, line(left, right, width))
	}
	return strings.Join(rows, "\n")
}

// RenderPane renders one grid cell inside a border of the given outer size.
func RenderPane(p board.PaneState, width, height int) string {
	inner := width - PaneStyle.GetHorizontalFrameSize()
	if inner < 1 {
		inner = 1
	}
	var body string
	switch {
	case p.Err != "" && len(p.Items) == 0 && len(p.Alerts) == 0 && p.Trip == nil:
		body = ErrorStyle.Render(p.Err)
	case p.Loading:
		body = MutedStyle.Render("Loading...")
	default:
		switch p.Config.Type {
		case layout.TypeDepartures:
			body = RenderDepartures(p.Items, p.Groups, p.Config, inner)
		case layout.TypeAlerts:
			body = RenderAlerts(p.Alerts, inner)
		case layout.TypeImage:
			body = MutedStyle.Render("[image " + p.ImageURL + "]")
		case layout.TypeEnroute:
			body = RenderTrip(p.Trip, inner)
		}
		if p.Err != "" {
			body += "\n" + ErrorStyle.Render(p.Err)
		}
	}
	if p.Config.Name != "" {
		body = PaneTitleStyle.Render(p.Config.Name) + "\n" + body
	}
	style := PaneStyle.Width(width - PaneStyle.GetHorizontalBorderSize())
	if h := height - PaneStyle.GetVerticalBorderSize(); h > 0 {
		style = style.Height(h).MaxHeight(height)
	}
	return style.Render(body)
}

// RenderGrid joins panes row by row. Missing cells render blank.
func RenderGrid(rows, cols int, panes []board.PaneState, width, height int) string {
	if rows < 1 || cols < 1 {
		return ""
	}
	cellW := width / cols
	cellH := height / rows
	lines := make([]string, 0, rows)
	for r := 0; r < rows; r++ {
		cells := make([]string, 0, cols)
		for c := 0; c < cols; c++ {
			i := r*cols + c
			p := board.PaneState{Config: layout.PaneConfig{Type: layout.TypeBlank}}
			if i < len(panes) {
				p = panes[i]
			}
			cells = append(cells, RenderPane(p, cellW, cellH))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// RenderCaption renders the announcement ticker. The placeholder shown while
// playback starts renders as a speaker symbol.
func RenderCaption(text string, width int) string {
	if text == "" {
		return ""
	}
	if text == enunciator.CaptionPlaceholder {
		text = "🔊"
	}
	return CaptionStyle.Width(width).Render(text)
}
