package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Colors used in the application.
var (
	colorBoard   = lipgloss.Color("#0a233f")
	colorText    = lipgloss.Color("255")
	colorMuted   = lipgloss.Color("244")
	colorWarn    = lipgloss.Color("220")
	colorError   = lipgloss.Color("203")
	colorDivider = lipgloss.Color("238")
)

var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorText).
	Background(colorBoard).
	Padding(0, 1)

var ClockStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorText).
	Background(colorBoard).
	Padding(0, 1)

var PaneStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorDivider).
	Padding(0, 1)

var PaneTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorMuted)

var MutedStyle = lipgloss.NewStyle().Foreground(colorMuted)

var ErrorStyle = lipgloss.NewStyle().Foreground(colorError)

var WarnStyle = lipgloss.NewStyle().Foreground(colorWarn)

var CancelledStyle = lipgloss.NewStyle().
	Foreground(colorError).
	Strikethrough(true)

var MinutesStyle = lipgloss.NewStyle().Bold(true)

// CaptionStyle is the scrolling announcement ticker at the bottom.
var CaptionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(lipgloss.Color("220")).
	Padding(0, 1)

var ApproachingStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorWarn)

// Badge renders a route label in its route colors.
func Badge(label, bg, fg string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Background(termColor(bg, "#0a233f")).
		Foreground(termColor(fg, "#FFFFFF")).
		Padding(0, 1).
		Render(label)
}

// termColor turns upstream colors ("#EB131B", "EB131B", "white") into
// something lipgloss understands.
func termColor(c, def string) lipgloss.Color {
	c = strings.TrimSpace(c)
	switch strings.ToLower(c) {
	case "":
		return lipgloss.Color(def)
	case "white":
		return lipgloss.Color("#FFFFFF")
	case "black":
		return lipgloss.Color("#000000")
	}
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	if len(c) != 7 && len(c) != 4 {
		return lipgloss.Color(def)
	}
	return lipgloss.Color(c)
}
