package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/config"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
)

// Theme holds the accent-color-derived styles.
type Theme struct {
	accentStyle lipgloss.Style // header background
	sentStyle   lipgloss.Style // echoed outgoing text
	chartStyle  lipgloss.Style // chart dots
	border      lipgloss.Style // chart panel border
}

// NewTheme creates a Theme from a hex accent color string (e.g. "#2AA198").
// If accentColor is empty, the default accent color is used.
func NewTheme(accentColor string) Theme {
	color := config.DefaultAccentColor
	if accentColor != "" {
		color = accentColor
	}
	c := lipgloss.Color(color)
	return Theme{
		accentStyle: lipgloss.NewStyle().
			Background(c).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true),
		sentStyle: lipgloss.NewStyle().
			Foreground(c),
		chartStyle: lipgloss.NewStyle().
			Foreground(c),
		border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray),
	}
}

// AccentHeaderStyle returns the style for the header bar.
func (t Theme) AccentHeaderStyle() lipgloss.Style {
	return t.accentStyle
}

// RenderLine renders one terminal line, truncated to width cells. Received
// text is shown with control characters in caret notation.
func (t Theme) RenderLine(l termLine, width int) string {
	var s string
	switch l.kind {
	case lineSent:
		s = t.sentStyle.Render(ansi.Truncate(textutil.ToCaret(l.text, false), width, "…"))
	case lineStatus:
		s = statusStyle.Render(ansi.Truncate(l.text, width, "…"))
	case lineError:
		s = errorStyle.Render(ansi.Truncate(l.text, width, "…"))
	default:
		s = recvStyle.Render(ansi.Truncate(textutil.ToCaret(l.text, false), width, "…"))
	}
	return s
}
