package panels

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var (
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA54F"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
)

// FooterProps holds all data needed to render the footer bar.
type FooterProps struct {
	Hints   string // key hints, shown when there is no message
	Message string // latest log record, if any
	Error   bool   // Message is an error
	Lines   string // control-line summary, empty when hidden
	Offset  int    // lines scrolled up from the bottom
}

// RenderFooter renders the footer bar. The left side shows the latest log
// message, or the key hints when there is none. The right side shows the
// control lines and the scroll position.
func RenderFooter(props FooterProps, width int) string {
	var right []string
	if props.Lines != "" {
		right = append(right, props.Lines)
	}
	if props.Offset > 0 {
		right = append(right, fmt.Sprintf("↑%d", props.Offset))
	}
	rightText := strings.Join(right, "  ")

	leftWidth := width - ansi.StringWidth(rightText) - 2
	if leftWidth < 1 {
		leftWidth = 1
	}
	left := props.Hints
	style := footerStyle
	if props.Message != "" {
		left = props.Message
		style = messageStyle
		if props.Error {
			style = failStyle
		}
	}
	left = ansi.Truncate(left, leftWidth, "…")

	gap := width - ansi.StringWidth(left) - ansi.StringWidth(rightText)
	if gap < 1 {
		gap = 1
	}
	return style.Render(left) + footerStyle.Render(strings.Repeat(" ", gap)+rightText)
}
