package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/chart"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui/panels"
)

// fileChangedMsg reports that the watched session log changed.
type fileChangedMsg struct{}

// ChartViewer is a full-screen strip chart of one session log. It resamples
// on every refresh tick and, when a change channel is given, as soon as the
// file changes.
type ChartViewer struct {
	path      string
	sampler   tail.Sampler
	changes   <-chan struct{}
	refresh   time.Duration
	fullScale float64
	theme     Theme

	width, height int
	samples       []tail.Sample
	err           error
	sampling      bool
	updated       time.Time
}

// NewChartViewer creates a viewer for the log at path. changes may be nil;
// a refresh of zero disables periodic resampling.
func NewChartViewer(path string, sampler tail.Sampler, changes <-chan struct{}, refresh time.Duration, fullScale float64, accentColor string) ChartViewer {
	return ChartViewer{
		path:      path,
		sampler:   sampler,
		changes:   changes,
		refresh:   refresh,
		fullScale: fullScale,
		theme:     NewTheme(accentColor),
		width:     80,
		height:    24,
	}
}

// Init samples once and starts the refreshers.
func (v ChartViewer) Init() tea.Cmd {
	cmds := []tea.Cmd{func() tea.Msg { return chartTickMsg{} }}
	if v.changes != nil {
		cmds = append(cmds, waitForChange(v.changes))
	}
	return tea.Batch(cmds...)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return fileChangedMsg{}
	}
}

// Update handles resize, refresh and quit keys.
func (v ChartViewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width, v.height = msg.Width, msg.Height
		return v.resample()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return v, tea.Quit
		case "r":
			return v.resample()
		}
	case chartTickMsg:
		v, cmd := v.resample()
		if v.refresh > 0 {
			cmd = tea.Batch(cmd, chartTickCmd(v.refresh))
		}
		return v, cmd
	case fileChangedMsg:
		v, cmd := v.resample()
		return v, tea.Batch(cmd, waitForChange(v.changes))
	case samplesMsg:
		v.sampling = false
		v.samples, v.err = msg.Samples, msg.Err
		v.updated = time.Now()
	}
	return v, nil
}

func (v ChartViewer) resample() (ChartViewer, tea.Cmd) {
	if v.sampling {
		return v, nil
	}
	v.sampling = true
	return v, sampleCmd(v.sampler, v.path, v.chart().Window())
}

func (v ChartViewer) chart() chart.Chart {
	return chart.Chart{
		Width:     max(v.width, 1),
		Height:    max(v.height-2, 1),
		FullScale: v.fullScale,
		Connect:   true,
		ShowAxis:  true,
	}
}

// View renders a title line, the chart and a key hint line.
func (v ChartViewer) View() string {
	title := panels.AbbreviatePath(v.path)
	if len(v.samples) > 0 {
		title += fmt.Sprintf("  │  %d samples  │  last %g", len(v.samples), v.samples[len(v.samples)-1].Value)
	}
	if !v.updated.IsZero() {
		title += "  │  " + v.updated.Format("15:04:05")
	}
	top := v.theme.AccentHeaderStyle().Width(v.width).Render(ansi.Truncate(title, v.width, "…"))

	c := v.chart()
	body := lipgloss.NewStyle().
		Width(c.Width).
		Height(c.Height).
		Render(renderChart(v.theme, c, v.samples, v.err, v.path))
	hint := footerStyle.Render(ansi.Truncate("q:quit  r:refresh", v.width, "…"))
	return lipgloss.JoinVertical(lipgloss.Left, top, body, hint)
}
