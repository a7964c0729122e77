package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui/components"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/uiloop"
)

// breakDuration is how long ctrl+b holds the line in BREAK.
const breakDuration = 100 * time.Millisecond

// Options configures a Model.
type Options struct {
	// Loop is the UI execution context the session posts deliveries to.
	// Model drains it from Update, so listener callbacks run on the
	// bubbletea goroutine.
	Loop    *uiloop.Loop
	Session Session

	Device    string // shown in the header
	Transport string // transport kind label
	LogPath   string // session log the chart samples

	Newline  string // textutil.NewlineCRLF etc.
	Hex      bool
	MaxLines int

	ControlLines         bool
	ControlLinesInterval time.Duration

	Chart        bool
	ChartRefresh time.Duration
	FullScale    float64
	Sampler      tail.Sampler

	AccentColor string
}

// Model is the bubbletea model for the serial terminal. It is the attached
// listener of the session while the UI is running.
type Model struct {
	loop    *uiloop.Loop
	session Session
	term    *Terminal
	theme   Theme

	recv  components.LogView
	input textinput.Model

	layout Layout
	width  int
	height int

	device    string
	transport string
	logPath   string
	newline   string
	attach    attachState
	resume    bool // reattach after a suspend

	chartOn      bool
	chartRefresh time.Duration
	fullScale    float64
	sampler      tail.Sampler
	samples      []tail.Sample
	chartErr     error
	sampling     bool

	linesOn       bool
	linesInterval time.Duration
	polling       bool
	lineStatus    relay.LineStatus
	rts, dtr      bool

	message    string
	messageErr bool
	messageSeq int

	startedAt time.Time
	now       time.Time
	done      bool
}

// New creates the terminal Model.
func New(opts Options) Model {
	now := time.Now()
	if opts.Newline == "" {
		opts.Newline = textutil.NewlineCRLF
	}
	if opts.ChartRefresh <= 0 {
		opts.ChartRefresh = time.Second
	}
	if opts.ControlLinesInterval <= 0 {
		opts.ControlLinesInterval = 200 * time.Millisecond
	}

	term := NewTerminal(opts.MaxLines)
	term.hex = opts.Hex
	term.onError = opts.Session.Disconnect

	in := textinput.New()
	in.Prompt = promptFor(opts.Hex)
	in.Placeholder = "type and press enter to send"
	in.Focus()

	layout := Calculate(80, 24, opts.Chart)
	m := Model{
		loop:          opts.Loop,
		session:       opts.Session,
		term:          term,
		theme:         NewTheme(opts.AccentColor),
		recv:          components.NewLogView(layout.Receive.Width, layout.Receive.Height),
		input:         in,
		layout:        layout,
		width:         80,
		height:        24,
		device:        opts.Device,
		transport:     opts.Transport,
		logPath:       opts.LogPath,
		newline:       opts.Newline,
		chartOn:       opts.Chart,
		chartRefresh:  opts.ChartRefresh,
		fullScale:     opts.FullScale,
		sampler:       opts.Sampler,
		linesOn:       opts.ControlLines,
		linesInterval: opts.ControlLinesInterval,
		rts:           true,
		dtr:           true,
		startedAt:     now,
		now:           now,
	}
	m.input.Width = m.width - len(m.input.Prompt) - 1
	return m
}

// Init attaches to the session and starts the UI loop pump, the clock and
// the optional chart and control-line refreshers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		func() tea.Msg { return attachMsg{} },
		waitForTask(m.loop),
		tickCmd(),
		textinput.Blink,
	}
	if m.chartOn {
		cmds = append(cmds, func() tea.Msg { return chartTickMsg{} })
	}
	if m.linesOn {
		cmds = append(cmds, lineTickCmd(m.linesInterval))
	}
	return tea.Batch(cmds...)
}

// Done reports whether the UI loop was closed underneath the model.
func (m Model) Done() bool { return m.done }

// waitForTask blocks on the UI loop and returns the next task as a message.
func waitForTask(l *uiloop.Loop) tea.Cmd {
	return func() tea.Msg {
		task, err := l.Next(context.Background())
		if err != nil {
			return loopClosedMsg{}
		}
		return taskMsg(task)
	}
}

// tickCmd schedules the next one-second clock tick.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func chartTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return chartTickMsg{} })
}

func lineTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return lineTickMsg{} })
}

// sampleCmd reads the newest w samples of the session log off the UI
// goroutine.
func sampleCmd(s tail.Sampler, path string, w int) tea.Cmd {
	return func() tea.Msg {
		samples, err := s.SampleFile(path, w)
		return samplesMsg{Samples: samples, Err: err}
	}
}

func pollLinesCmd(cl relay.ControlLines) tea.Cmd {
	return func() tea.Msg {
		st, err := cl.LineStatus()
		return lineStatusMsg{Status: st, Err: err}
	}
}

func breakCmd(cl relay.ControlLines) tea.Cmd {
	return func() tea.Msg {
		return breakDoneMsg{Err: cl.SendBreak(breakDuration)}
	}
}

func fadeCmd(seq int) tea.Cmd {
	return tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
		return logRecordFadeMsg{seq: seq}
	})
}

func promptFor(hex bool) string {
	if hex {
		return "hex> "
	}
	return "> "
}
