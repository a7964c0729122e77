// Package panels renders the header and footer bars of the terminal.
package panels

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// HeaderProps holds all data needed to render the header bar.
type HeaderProps struct {
	Device      string // port name or URL
	Transport   string // serial, websocket or sim
	StateSymbol string // e.g. "●", "✗", "⏸"
	StateLabel  string // e.g. "CONNECTED", "DETACHED"
	Newline     string // CRLF, LF, CR or none
	Hex         bool
	LogPath     string
	Received    int64 // payload bytes
	Pending     int   // events buffered by the relay
	Elapsed     time.Duration
	Clock       time.Time
}

// AbbreviatePath returns a display-friendly path, replacing the home directory
// with "~" and converting backslashes to forward slashes.
func AbbreviatePath(path string) string {
	if path == "" {
		return ""
	}
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(path, home) {
		path = "~" + path[len(home):]
	}
	return strings.ReplaceAll(path, "\\", "/")
}

// FormatElapsed renders a duration as a compact string: "5s", "2m30s", "1h15m".
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatBytes renders a byte count as "512B", "1.5K" or "3.2M".
func FormatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fK", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/(1024*1024))
	}
}

// RenderHeader renders the header bar, truncated to width. accentStyle is
// applied to the full bar.
func RenderHeader(props HeaderProps, width int, accentStyle lipgloss.Style) string {
	device := props.Device
	if device == "" {
		device = "—"
	}
	name := "usbterm " + device
	if props.Transport != "" && props.Transport != "serial" {
		name += " (" + props.Transport + ")"
	}

	parts := []string{name}
	if props.StateLabel != "" {
		state := props.StateLabel
		if props.StateSymbol != "" {
			state = props.StateSymbol + " " + state
		}
		parts = append(parts, state)
	}

	mode := "text"
	if props.Hex {
		mode = "hex"
	}
	newline := props.Newline
	if newline == "" {
		newline = "—"
	}
	parts = append(parts,
		"mode: "+mode,
		"nl: "+newline,
		"rx: "+FormatBytes(props.Received),
	)
	if props.Pending > 0 {
		parts = append(parts, fmt.Sprintf("buffered: %d", props.Pending))
	}
	if props.LogPath != "" {
		parts = append(parts, "log: "+AbbreviatePath(props.LogPath))
	}
	if props.Elapsed > 0 {
		parts = append(parts, "up: "+FormatElapsed(props.Elapsed))
	}
	if !props.Clock.IsZero() {
		parts = append(parts, props.Clock.Format("15:04"))
	}

	content := ansi.Truncate(strings.Join(parts, "  │  "), width, "…")
	return accentStyle.Width(width).Render(content)
}
