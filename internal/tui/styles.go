// Package tui provides the bubbletea + lipgloss serial terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	colorWhite  = lipgloss.Color("#FAFAFA")
	colorGray   = lipgloss.Color("#888888")
	colorGreen  = lipgloss.Color("#6BCB77")
	colorYellow = lipgloss.Color("#FFD93D")
	colorRed    = lipgloss.Color("#FF6B6B")
	colorOrange = lipgloss.Color("#FFA54F")
)

// Styles that do not depend on the accent color.
var (
	footerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	recvStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	lineOnStyle = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	lineOffStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
