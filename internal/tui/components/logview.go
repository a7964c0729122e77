// Package components holds reusable TUI widgets.
package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

// LogView is a scrollable view over pre-rendered lines, built on
// bubbles/viewport. In follow mode (default) new content keeps the view
// pinned to the bottom; paging up leaves follow mode and paging back to the
// bottom re-enters it.
type LogView struct {
	vp     viewport.Model
	lines  int
	follow bool
	width  int
	height int
}

// NewLogView creates a LogView with the given dimensions, in follow mode.
func NewLogView(w, h int) LogView {
	return LogView{
		vp:     viewport.New(w, h),
		follow: true,
		width:  w,
		height: h,
	}
}

// SetLines replaces the content. The caller renders and truncates lines to
// the view width.
func (v LogView) SetLines(lines []string) LogView {
	v.lines = len(lines)
	v.vp.SetContent(strings.Join(lines, "\n"))
	if v.follow {
		v.vp.GotoBottom()
	}
	return v
}

// SetSize resizes the view.
func (v LogView) SetSize(w, h int) LogView {
	v.width = w
	v.height = h
	v.vp.Width = w
	v.vp.Height = h
	if v.follow {
		v.vp.GotoBottom()
	}
	return v
}

// PageUp scrolls one page towards older lines and leaves follow mode.
func (v LogView) PageUp() LogView {
	v.vp.LineUp(max(v.height-1, 1))
	if !v.vp.AtBottom() {
		v.follow = false
	}
	return v
}

// PageDown scrolls one page towards newer lines. Reaching the bottom
// re-enters follow mode.
func (v LogView) PageDown() LogView {
	v.vp.LineDown(max(v.height-1, 1))
	if v.vp.AtBottom() {
		v.follow = true
	}
	return v
}

// Bottom jumps to the newest line and re-enters follow mode.
func (v LogView) Bottom() LogView {
	v.follow = true
	v.vp.GotoBottom()
	return v
}

// Following reports whether follow mode is active.
func (v LogView) Following() bool { return v.follow }

// Offset returns how many lines the view is scrolled up from the bottom.
func (v LogView) Offset() int {
	bottom := max(v.lines-v.height, 0)
	return max(bottom-v.vp.YOffset, 0)
}

// Lines returns the number of lines in the content.
func (v LogView) Lines() int { return v.lines }

// View renders the visible lines.
func (v LogView) View() string {
	return v.vp.View()
}
