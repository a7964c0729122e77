// Package chart draws tail samples as a Braille strip chart and watches the
// session log for changes.
package chart

import (
	"fmt"
	"strings"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
)

// Braille dot bits for a 2x4 cell, indexed [row][col].
var dotBits = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

const (
	brailleBase = 0x2800
	axisWidth   = 6
)

// Chart renders a strip chart. The newest sample is drawn in the rightmost
// dot column and each older sample one dot further left.
type Chart struct {
	Width     int // cells, including the axis
	Height    int // cells
	FullScale float64
	// Connect fills the vertical gap between neighbouring samples.
	Connect bool
	// ShowAxis draws full-scale, midpoint and zero labels on the left when
	// the chart is at least 20 cells wide.
	ShowAxis bool
}

func (c Chart) fullScale() float64 {
	if c.FullScale > 0 {
		return c.FullScale
	}
	return tail.DefaultFullScale
}

func (c Chart) axis() bool {
	return c.ShowAxis && c.Width >= 20 && c.Height >= 3
}

func (c Chart) plotWidth() int {
	w := c.Width
	if c.axis() {
		w -= axisWidth
	}
	return max(w, 1)
}

// Window returns how many samples fill the plot: two per cell.
func (c Chart) Window() int {
	return c.plotWidth() * 2
}

// Render draws samples and returns Height newline-separated rows.
func (c Chart) Render(samples []tail.Sample) string {
	if c.Width < 1 || c.Height < 1 {
		return ""
	}
	cols := c.plotWidth()
	dotsW, dotsH := cols*2, c.Height*4
	fs := c.fullScale()

	grid := make([][]rune, c.Height)
	for r := range grid {
		grid[r] = make([]rune, cols)
	}
	set := func(x, y int) {
		if x < 0 || x >= dotsW || y < 0 || y >= dotsH {
			return
		}
		grid[y/4][x/2] |= dotBits[y%4][x%2]
	}
	dotY := func(v float64) int {
		y := int(tail.PlotY(v, float64(dotsH), fs))
		return min(max(y, 0), dotsH-1)
	}

	prevX, prevY := -1, -1
	// Oldest first, so Connect draws toward newer samples.
	for _, s := range samples {
		x := tail.PlotX(s.Rank, dotsW)
		if x < 0 {
			continue
		}
		y := dotY(s.Value)
		set(x, y)
		if c.Connect && prevX == x-1 {
			lo, hi := min(prevY, y), max(prevY, y)
			for yy := lo + 1; yy < hi; yy++ {
				set(x, yy)
			}
		}
		prevX, prevY = x, y
	}

	var b strings.Builder
	for r, row := range grid {
		if r > 0 {
			b.WriteByte('\n')
		}
		if c.axis() {
			b.WriteString(c.label(r))
		}
		for _, bits := range row {
			b.WriteRune(brailleBase + bits)
		}
	}
	return b.String()
}

func (c Chart) label(row int) string {
	fs := c.fullScale()
	switch row {
	case 0:
		return fmt.Sprintf("%*.0f ", axisWidth-1, fs)
	case c.Height / 2:
		return fmt.Sprintf("%*.0f ", axisWidth-1, fs/2)
	case c.Height - 1:
		return fmt.Sprintf("%*d ", axisWidth-1, 0)
	default:
		return strings.Repeat(" ", axisWidth)
	}
}
