package tui

import (
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/chart"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
)

// Update handles all incoming bubbletea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg.Width, msg.Height), nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case attachMsg:
		return m.attachNow(), nil
	case taskMsg:
		m.loop.Exec(msg)
		m.loop.RunPending()
		return m.refresh(), waitForTask(m.loop)
	case loopClosedMsg:
		m.done = true
		return m, tea.Quit
	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()
	case tea.ResumeMsg:
		if m.resume {
			m.resume = false
			m = m.attachNow()
		}
		return m, nil
	case chartTickMsg:
		return m.handleChartTick()
	case samplesMsg:
		m.sampling = false
		m.samples, m.chartErr = msg.Samples, msg.Err
		return m, nil
	case lineTickMsg:
		return m.handleLineTick()
	case lineStatusMsg:
		if msg.Err == nil {
			m.lineStatus = msg.Status
		}
		return m, nil
	case breakDoneMsg:
		if msg.Err != nil {
			m.term.Error("break failed: " + msg.Err.Error())
		} else {
			m.term.Status("break sent")
		}
		return m.refresh(), nil
	case logRecordMsg:
		m.messageSeq++
		m.message = msg.Summary
		m.messageErr = msg.Level >= slog.LevelError
		return m, fadeCmd(m.messageSeq)
	case logRecordFadeMsg:
		if msg.seq == m.messageSeq {
			m.message = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if !IsGlobalKey(key) {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key {
	case "ctrl+c":
		m.session.Disconnect()
		return m, tea.Quit
	case "enter":
		return m.send(), nil
	case "ctrl+d":
		if m.attach == attached {
			return m.detachNow(), nil
		}
		return m.attachNow(), nil
	case "ctrl+z":
		if m.attach == attached {
			m = m.detachNow()
			m.resume = true
		}
		return m, tea.Suspend
	case "ctrl+x":
		m.term.SetHex(!m.term.Hex())
		m.input.Prompt = promptFor(m.term.Hex())
		m.input.Reset()
		return m.refresh(), nil
	case "ctrl+n":
		m.newline = textutil.NextNewline(m.newline)
		m.term.Status("newline: " + textutil.NewlineName(m.newline))
		return m.refresh(), nil
	case "ctrl+l":
		m.term.Clear()
		return m.refresh(), nil
	case "ctrl+g":
		m.chartOn = !m.chartOn
		m = m.resize(m.width, m.height)
		if m.chartOn {
			return m.handleChartTick()
		}
		return m, nil
	case "ctrl+o":
		m.linesOn = !m.linesOn
		if m.linesOn && !m.polling {
			return m.handleLineTick()
		}
		return m, nil
	case "ctrl+r":
		return m.toggleLine("RTS"), nil
	case "ctrl+t":
		return m.toggleLine("DTR"), nil
	case "ctrl+b":
		cl, ok := m.session.ControlLines()
		if !ok {
			m.term.Error("control lines not available")
			return m.refresh(), nil
		}
		return m, breakCmd(cl)
	case "pgup":
		m.recv = m.recv.PageUp()
		return m, nil
	case "pgdown":
		m.recv = m.recv.PageDown()
	}
	return m, nil
}

// attachNow binds the terminal to the session on the UI context. Buffered
// events are replayed into the terminal before it returns.
func (m Model) attachNow() Model {
	var err error
	m.loop.Exec(func() { err = m.session.Attach(m.term) })
	if err != nil && !errors.Is(err, relay.ErrAlreadyAttached) {
		m.term.Error("attach failed: " + err.Error())
		return m.refresh()
	}
	m.attach = attached
	return m.refresh()
}

// detachNow unbinds the terminal. The session keeps running and the relay
// buffers its events until the next attach.
func (m Model) detachNow() Model {
	var err error
	m.loop.Exec(func() { err = m.session.Detach() })
	if err != nil {
		m.term.Error("detach failed: " + err.Error())
		return m.refresh()
	}
	m.attach = detached
	m.term.Status("detached, press ctrl+d to reattach")
	return m.refresh()
}

// send encodes the input line and writes it to the device. A write error
// other than "not connected" ends the session like a read error does.
func (m Model) send() Model {
	data, echo, err := textutil.EncodeLine(m.input.Value(), m.newline, m.term.Hex())
	if err != nil {
		m.term.Error(err.Error())
		return m.refresh()
	}
	if err := m.session.Write(data); err != nil {
		if errors.Is(err, relay.ErrNotConnected) {
			m.term.Error("not connected")
		} else {
			m.term.OnIoError(err)
		}
		return m.refresh()
	}
	m.term.Sent(echo)
	m.input.Reset()
	m = m.refresh()
	m.recv = m.recv.Bottom()
	return m
}

func (m Model) toggleLine(name string) Model {
	cl, ok := m.session.ControlLines()
	if !ok {
		m.term.Error("control lines not available")
		return m.refresh()
	}
	var err error
	switch name {
	case "RTS":
		if err = cl.SetRTS(!m.rts); err == nil {
			m.rts = !m.rts
		}
	case "DTR":
		if err = cl.SetDTR(!m.dtr); err == nil {
			m.dtr = !m.dtr
		}
	}
	if err != nil {
		m.term.Error("set " + name + " failed: " + err.Error())
		return m.refresh()
	}
	return m
}

func (m Model) handleChartTick() (tea.Model, tea.Cmd) {
	if !m.chartOn {
		return m, nil
	}
	next := chartTickCmd(m.chartRefresh)
	if m.sampling || m.logPath == "" {
		return m, next
	}
	m.sampling = true
	return m, tea.Batch(sampleCmd(m.sampler, m.logPath, m.chartView().Window()), next)
}

func (m Model) handleLineTick() (tea.Model, tea.Cmd) {
	if !m.linesOn {
		m.polling = false
		return m, nil
	}
	m.polling = true
	next := lineTickCmd(m.linesInterval)
	cl, ok := m.session.ControlLines()
	if !ok {
		m.lineStatus = relay.LineStatus{}
		return m, next
	}
	return m, tea.Batch(pollLinesCmd(cl), next)
}

func (m Model) chartView() chart.Chart {
	w, h := innerDims(m.layout.Chart)
	return chart.Chart{
		Width:     w,
		Height:    h,
		FullScale: m.fullScale,
		Connect:   true,
		ShowAxis:  true,
	}
}

func (m Model) resize(width, height int) Model {
	m.width, m.height = width, height
	m.layout = Calculate(width, height, m.chartOn)
	if m.layout.TooSmall {
		return m
	}
	m.recv = m.recv.SetSize(m.layout.Receive.Width, m.layout.Receive.Height)
	m.recv = m.recv.SetLines(m.term.Render(m.theme, m.layout.Receive.Width))
	m.input.Width = max(width-len(m.input.Prompt)-1, 1)
	return m
}

// refresh re-renders the receive view when the terminal changed.
func (m Model) refresh() Model {
	if m.term.takeChanged() {
		m.recv = m.recv.SetLines(m.term.Render(m.theme, m.layout.Receive.Width))
	}
	return m
}
