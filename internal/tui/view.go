package tui

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/chart"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui/panels"
)

// View renders header, receive view, optional chart, send line and footer.
func (m Model) View() string {
	if m.layout.TooSmall {
		msg := fmt.Sprintf("Terminal too small (%dx%d).\nPlease resize to at least %dx%d.", m.width, m.height, minWidth, minHeight)
		return lipgloss.NewStyle().
			Width(m.width).
			Align(lipgloss.Center).
			Render(msg)
	}

	state := m.session.State()
	header := panels.RenderHeader(panels.HeaderProps{
		Device:      m.device,
		Transport:   m.transport,
		StateSymbol: stateSymbol(state, m.attach),
		StateLabel:  stateLabel(state, m.attach),
		Newline:     textutil.NewlineName(m.newline),
		Hex:         m.term.Hex(),
		LogPath:     m.logPath,
		Received:    m.term.Received(),
		Pending:     m.session.PendingLen(),
		Elapsed:     m.now.Sub(m.startedAt),
		Clock:       m.now,
	}, m.layout.Header.Width, m.theme.AccentHeaderStyle())

	footer := panels.RenderFooter(panels.FooterProps{
		Hints:   HelpLine(),
		Message: m.message,
		Error:   m.messageErr,
		Lines:   m.linesText(),
		Offset:  m.recv.Offset(),
	}, m.layout.Footer.Width)

	recv := lipgloss.NewStyle().
		Width(m.layout.Receive.Width).
		Height(m.layout.Receive.Height).
		Render(m.recv.View())

	parts := []string{header, recv}
	if m.chartOn {
		w, h := innerDims(m.layout.Chart)
		parts = append(parts, m.theme.border.
			Width(w).Height(h).
			Render(m.renderChart(m.chartView())))
	}
	parts = append(parts, m.input.View(), footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderChart(c chart.Chart) string {
	return renderChart(m.theme, c, m.samples, m.chartErr, m.logPath)
}

// renderChart draws samples, or a one-line reason why there is nothing to
// draw.
func renderChart(theme Theme, c chart.Chart, samples []tail.Sample, err error, path string) string {
	switch {
	case path == "":
		return footerStyle.Render("no session log")
	case errors.Is(err, fs.ErrNotExist):
		return footerStyle.Render("waiting for " + panels.AbbreviatePath(path))
	case err != nil:
		return warnStyle.Render("chart: " + err.Error())
	case len(samples) == 0:
		return footerStyle.Render("no samples yet")
	}
	return theme.chartStyle.Render(c.Render(samples))
}

// linesText summarises the control lines for the footer: the outputs the
// terminal drives, then the inputs last polled.
func (m Model) linesText() string {
	if !m.linesOn {
		return ""
	}
	flag := func(name string, on bool) string {
		if on {
			return lineOnStyle.Render(name)
		}
		return lineOffStyle.Render(name)
	}
	st := m.lineStatus
	return strings.Join([]string{
		flag("RTS", m.rts),
		flag("DTR", m.dtr),
		"│",
		flag("CTS", st.CTS),
		flag("DSR", st.DSR),
		flag("CD", st.CD),
		flag("RI", st.RI),
	}, " ")
}
