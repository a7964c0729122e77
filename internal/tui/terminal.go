package tui

import (
	"strings"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
)

type lineKind int

const (
	lineRecv lineKind = iota
	lineSent
	lineStatus
	lineError
)

type termLine struct {
	kind lineKind
	text string
}

// Terminal is the relay listener behind the TUI. It accumulates the receive
// view. Every method runs on the UI context, inside Model.Update.
type Terminal struct {
	lines    []termLine
	open     bool // last line is a receive line without its newline yet
	maxLines int
	hex      bool
	folder   textutil.CRLFFolder

	connected bool
	received  int64
	cleared   int // times the view overflowed maxLines

	// onError runs after a connect or I/O error.
	onError func()
	changed bool
}

var _ relay.Listener = (*Terminal)(nil)

// NewTerminal returns an empty Terminal that clears itself once it holds
// more than maxLines lines.
func NewTerminal(maxLines int) *Terminal {
	if maxLines <= 0 {
		maxLines = 10000
	}
	return &Terminal{maxLines: maxLines}
}

func (t *Terminal) OnConnect() {
	t.connected = true
	t.Status("connected")
}

func (t *Terminal) OnConnectError(err error) {
	t.connected = false
	t.Error("connection failed: " + errText(err))
	if t.onError != nil {
		t.onError()
	}
}

func (t *Terminal) OnRead(data []byte) {
	t.received += int64(len(data))
	if t.hex {
		t.closeLine()
		t.push(termLine{kind: lineRecv, text: textutil.ToHex(data)})
		return
	}
	t.appendText(t.folder.Fold(string(data)))
}

func (t *Terminal) OnIoError(err error) {
	t.connected = false
	t.Error("connection lost: " + errText(err))
	if t.onError != nil {
		t.onError()
	}
}

// Sent echoes outgoing text on its own line.
func (t *Terminal) Sent(text string) {
	t.closeLine()
	t.push(termLine{kind: lineSent, text: text})
}

// Status adds an informational line.
func (t *Terminal) Status(text string) {
	t.closeLine()
	t.push(termLine{kind: lineStatus, text: text})
}

// Error adds an error line.
func (t *Terminal) Error(text string) {
	t.closeLine()
	t.push(termLine{kind: lineError, text: text})
}

// SetHex switches the receive rendering. A held-back CR is written out
// first so it is not lost between modes.
func (t *Terminal) SetHex(on bool) {
	if on == t.hex {
		return
	}
	if on {
		t.appendText(t.folder.Flush())
	}
	t.hex = on
	t.closeLine()
}

// Hex reports whether received data is rendered as hex.
func (t *Terminal) Hex() bool { return t.hex }

// Connected reports whether the last status event was a successful connect.
func (t *Terminal) Connected() bool { return t.connected }

// Received returns the number of payload bytes delivered so far.
func (t *Terminal) Received() int64 { return t.received }

// Clear empties the view.
func (t *Terminal) Clear() {
	t.lines = nil
	t.open = false
	t.changed = true
}

// Len returns the number of lines in the view.
func (t *Terminal) Len() int { return len(t.lines) }

// Render renders every line for a view width cells wide.
func (t *Terminal) Render(theme Theme, width int) []string {
	out := make([]string, len(t.lines))
	for i, l := range t.lines {
		out[i] = theme.RenderLine(l, width)
	}
	return out
}

// takeChanged reports and resets whether the view changed since the last
// call.
func (t *Terminal) takeChanged() bool {
	c := t.changed
	t.changed = false
	return c
}

// appendText adds folded text to the view, continuing an open receive line
// and starting a new line after each LF.
func (t *Terminal) appendText(s string) {
	for s != "" {
		i := strings.IndexByte(s, '\n')
		chunk := s
		if i >= 0 {
			chunk = s[:i]
		}
		if t.open {
			t.lines[len(t.lines)-1].text += chunk
			t.changed = true
		} else {
			t.push(termLine{kind: lineRecv, text: chunk})
			t.open = true
		}
		if i < 0 {
			return
		}
		t.open = false
		s = s[i+1:]
	}
}

func (t *Terminal) closeLine() {
	t.open = false
}

func (t *Terminal) push(l termLine) {
	if len(t.lines) >= t.maxLines {
		t.lines = nil
		t.cleared++
	}
	t.lines = append(t.lines, l)
	t.open = false
	t.changed = true
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
