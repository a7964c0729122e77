package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/chart"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/config"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/datalog"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/transport"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui/panels"
)

// executeConnect loads config, opens the session log and the device, and
// runs the terminal until the user quits or the session ends.
func executeConnect(cfgPath, level string, f connectFlags) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyConnectFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	t, err := newTransport(cfg, transport.ListPorts)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	registerQuitHandler()

	var (
		logger *slog.Logger
		tuiLog *tui.LogHandler
	)
	if f.headless {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	} else {
		// Anything below warn would flood the footer.
		tuiLog = tui.NewLogHandler(max(lvl, slog.LevelWarn))
		logger = slog.New(tuiLog)
	}
	slog.SetDefault(logger)

	s, err := openSession(cfg, t, logger, time.Now())
	if err != nil {
		return err
	}
	defer s.close()

	if f.headless {
		return runHeadless(ctx, s, os.Stdout)
	}
	return runTUI(ctx, s, f.chart, tuiLog)
}

// applyConnectFlags overlays the command-line overrides on cfg.
func applyConnectFlags(cfg *config.Config, f connectFlags) {
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.baud > 0 {
		cfg.Serial.BaudRate = f.baud
	}
	switch {
	case f.sim:
		cfg.Transport.Kind = config.KindSim
	case f.url != "":
		cfg.Transport.Kind = config.KindWebSocket
		cfg.Transport.URL = f.url
	case f.port != "":
		cfg.Transport.Kind = config.KindSerial
	}
	if f.logDir != "" {
		cfg.Log.Dir = f.logDir
	}
	if f.newline != "" {
		cfg.Terminal.Newline = f.newline
	}
	if f.hex {
		cfg.Terminal.Hex = true
	}
}

// newTransport builds the transport cfg selects. A serial port left empty
// is detected among the ports listPorts reports.
func newTransport(cfg *config.Config, listPorts func() ([]transport.PortInfo, error)) (relay.Transport, error) {
	switch cfg.Transport.Kind {
	case config.KindSim:
		return transport.NewSim(transport.SimConfig{Interval: cfg.Transport.SimInterval}), nil
	case config.KindWebSocket:
		return transport.NewWebSocket(cfg.Transport.URL, nil), nil
	}

	port := cfg.Serial.Port
	if port == "" {
		ports, err := listPorts()
		if err != nil {
			return nil, err
		}
		if port, err = transport.DetectPort(ports); err != nil {
			return nil, err
		}
	}
	sc := transport.SerialConfig{
		Port:     port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
	}
	if _, err := transport.SerialMode(sc); err != nil {
		return nil, err
	}
	return transport.NewSerial(sc), nil
}

// newSampler returns the chart sampler for cfg. Skipped records are logged
// only when chart.log_malformed is set.
func newSampler(cfg *config.Config, logger *slog.Logger) tail.Sampler {
	s := tail.Sampler{FullScale: cfg.Chart.FullScale}
	if cfg.Chart.LogMalformed {
		s.OnMalformed = func(line string) {
			logger.Warn("malformed sample", "line", line)
		}
	}
	return s
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q: use debug, info, warn or error", s)
	}
	return l, nil
}

// chartFlags are the options of the chart command.
type chartFlags struct {
	follow bool
	print  bool
	width  int
	height int
}

// executeChart charts a session log: once to out with --print, otherwise
// in a full-screen viewer that resamples on every refresh.
func executeChart(cfgPath, path string, f chartFlags, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if path == "" {
		cur, err := datalog.ReadCurrent(cfg.Log.Dir)
		if err != nil {
			return err
		}
		path = cur.Path
	}
	sampler := newSampler(cfg, slog.Default())

	if f.print {
		c := chart.Chart{
			Width:     f.width,
			Height:    f.height,
			FullScale: cfg.Chart.FullScale,
			Connect:   true,
			ShowAxis:  true,
		}
		samples, err := sampler.SampleFile(path, c.Window())
		if err != nil {
			return err
		}
		fmt.Fprintln(out, c.Render(samples))
		return nil
	}

	var changes <-chan struct{}
	if f.follow {
		w, err := chart.NewWatcher(filepath.Dir(path), chart.DefaultDebounce, path)
		if err != nil {
			return err
		}
		defer w.Close()
		changes = w.Changes()
	}

	ctx, cancel := signalContext()
	defer cancel()

	viewer := tui.NewChartViewer(path, sampler, changes, cfg.Chart.RefreshInterval, cfg.Chart.FullScale, cfg.Terminal.AccentColor)
	return finishTUI(tea.NewProgram(viewer, tea.WithAltScreen(), tea.WithContext(ctx)))
}

// formatSessions renders the session listing. The current session is
// marked with "*".
func formatSessions(dir string, sessions []datalog.Session, current string) string {
	if len(sessions) == 0 {
		return fmt.Sprintf("No sessions in %s\n", dir)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sessions in %s\n", dir)
	b.WriteString("────────────\n")
	for _, s := range sessions {
		mark := " "
		if current != "" && filepath.Clean(s.Path) == filepath.Clean(current) {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %-26s  %s  %8s\n", mark, s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), panels.FormatBytes(s.Size))
	}
	return b.String()
}

// formatPorts renders the port listing. The port connect would pick on its
// own is marked with "*".
func formatPorts(ports []transport.PortInfo) string {
	if len(ports) == 0 {
		return "No serial ports found\n"
	}
	detected, _ := transport.DetectPort(ports)
	var b strings.Builder
	for _, p := range ports {
		mark := " "
		if p.Name == detected {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, p)
	}
	return b.String()
}

func formatScaffoldResult(created []string) string {
	if len(created) == 0 {
		return "All files already exist, nothing to create.\n"
	}
	var b strings.Builder
	for _, path := range created {
		fmt.Fprintf(&b, "Created %s\n", path)
	}
	return b.String()
}
