package tui

// Rect represents a rectangular region of the terminal.
type Rect struct {
	X, Y, Width, Height int
}

// Layout holds the computed panel geometry for a given terminal size.
type Layout struct {
	Header, Footer Rect
	Receive, Chart Rect
	Input          Rect
	TooSmall       bool // true when terminal is below the minimum 40x10
}

// Minimum usable terminal size.
const (
	minWidth  = 40
	minHeight = 10
)

// Calculate computes the panel layout for a terminal of the given dimensions.
//
//   - Header: full width, 1 row at top
//   - Footer: full width, 1 row at bottom
//   - Input: full width, 1 row above the footer
//   - Chart (when shown): full width, 40% of the body, clamped to [6, 16] rows,
//     below the receive view
//   - Receive: everything else
func Calculate(width, height int, chart bool) Layout {
	if width < minWidth || height < minHeight {
		return Layout{TooSmall: true}
	}

	bodyH := height - 3 // header, input, footer
	chartH := 0
	if chart {
		chartH = bodyH * 40 / 100
		chartH = max(chartH, 6)
		chartH = min(chartH, 16)
	}
	recvH := bodyH - chartH

	return Layout{
		Header:  Rect{X: 0, Y: 0, Width: width, Height: 1},
		Receive: Rect{X: 0, Y: 1, Width: width, Height: recvH},
		Chart:   Rect{X: 0, Y: 1 + recvH, Width: width, Height: chartH},
		Input:   Rect{X: 0, Y: height - 2, Width: width, Height: 1},
		Footer:  Rect{X: 0, Y: height - 1, Width: width, Height: 1},
	}
}

// innerDims returns the content dimensions for a panel rect accounting for
// the 1-character border on each side (2 total per dimension).
func innerDims(r Rect) (w, h int) {
	w = r.Width - 2
	if w < 1 {
		w = 1
	}
	h = r.Height - 2
	if h < 1 {
		h = 1
	}
	return
}
