package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/config"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/datalog"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/notify"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/textutil"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tui"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/uiloop"
)

// session is one connection with everything hanging off it: the UI loop
// the relay delivers on, the session log and the notifier.
type session struct {
	cfg       *config.Config
	transport relay.Transport
	loop      *uiloop.Loop
	relay     *relay.Relay
	writer    *datalog.Writer
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// openSession creates the session log, marks it current and builds the
// relay. The device is not opened until start.
func openSession(cfg *config.Config, t relay.Transport, logger *slog.Logger, now time.Time) (*session, error) {
	w, err := datalog.Open(cfg.Log.Dir, datalog.NewSessionID(now), datalog.Options{
		Sync:         cfg.Log.SyncWrites,
		DrainTimeout: cfg.Log.DrainTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if err := datalog.EnforceRetention(cfg.Log.Dir, cfg.Log.Retention, w.Path()); err != nil {
		logger.Warn("log retention failed", "err", err)
	}
	err = datalog.WriteCurrent(cfg.Log.Dir, datalog.Current{
		SessionID: w.SessionID(),
		Path:      w.Path(),
		Transport: cfg.Transport.Kind,
		StartedAt: now,
		PID:       os.Getpid(),
	})
	if err != nil {
		logger.Warn("could not record current session", "err", err)
	}

	n := notify.New(cfg.Notifications.URL, "usbterm "+t.Name(), cfg.Notifications.OnBackground, cfg.Notifications.OnDisconnect)
	n.SetLogger(logger)

	loop := uiloop.New()
	r := relay.New(loop,
		relay.WithLifecycle(n),
		relay.WithObserver(w.Observer()),
		relay.WithObserver(n.Hook),
		relay.WithLogger(logger),
	)
	return &session{
		cfg:       cfg,
		transport: t,
		loop:      loop,
		relay:     r,
		writer:    w,
		notifier:  n,
		logger:    logger,
	}, nil
}

// start opens the device in the background. Open failures reach the
// listener as a connect error.
func (s *session) start(ctx context.Context) {
	go func() {
		if err := s.relay.Connect(ctx, s.transport); err != nil {
			s.logger.Debug("connect returned", "err", err)
		}
	}()
}

// close disconnects, drains the session log and waits for notifications in
// flight.
func (s *session) close() {
	s.relay.Disconnect()
	s.loop.Close()
	if err := s.writer.Close(); err != nil {
		s.logger.Warn("session log close", "err", err)
	}
	if cur, err := datalog.ReadCurrent(s.cfg.Log.Dir); err == nil && filepath.Clean(cur.Path) == filepath.Clean(s.writer.Path()) {
		if err := datalog.ClearCurrent(s.cfg.Log.Dir); err != nil {
			s.logger.Warn("clear current session", "err", err)
		}
	}
	s.notifier.Wait()
}

// runTUI runs the terminal UI. The model attaches itself to the relay and
// pumps the UI loop from its Update.
func runTUI(ctx context.Context, s *session, chartOn bool, logs *tui.LogHandler) error {
	cfg := s.cfg
	newline, _ := textutil.ParseNewline(cfg.Terminal.Newline)

	model := tui.New(tui.Options{
		Loop:                 s.loop,
		Session:              s.relay,
		Device:               s.transport.Name(),
		Transport:            cfg.Transport.Kind,
		LogPath:              s.writer.Path(),
		Newline:              newline,
		Hex:                  cfg.Terminal.Hex,
		MaxLines:             cfg.Terminal.MaxLines,
		ControlLines:         cfg.Terminal.ControlLines,
		ControlLinesInterval: cfg.Terminal.ControlLinesInterval,
		Chart:                chartOn,
		ChartRefresh:         cfg.Chart.RefreshInterval,
		FullScale:            cfg.Chart.FullScale,
		Sampler:              newSampler(cfg, s.logger),
		AccentColor:          cfg.Terminal.AccentColor,
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if logs != nil {
		logs.SetProgram(program)
	}
	s.start(ctx)
	return finishTUI(program)
}

// finishTUI runs program to completion. Being killed by the signal context
// is a normal exit.
func finishTUI(program *tea.Program) error {
	_, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

// runHeadless attaches a printer to the relay and runs the UI loop on the
// calling goroutine until the session ends or ctx is cancelled.
func runHeadless(ctx context.Context, s *session, out io.Writer) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	p := &printer{out: out, logger: s.logger, name: s.transport.Name(), stop: stop}
	s.loop.Post(func() {
		if err := s.relay.Attach(p); err != nil {
			p.err = fmt.Errorf("attach: %w", err)
			stop()
		}
	})
	s.start(ctx)

	if err := s.loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return p.err
}

// printer is the headless listener: received bytes go to out as they
// arrive and connection changes go to the log. It only runs on the UI loop.
type printer struct {
	out    io.Writer
	logger *slog.Logger
	name   string
	stop   context.CancelFunc
	err    error
}

func (p *printer) OnConnect() {
	p.logger.Info("connected", "device", p.name)
}

func (p *printer) OnConnectError(err error) {
	p.logger.Error("connection failed", "device", p.name, "err", err)
	p.err = fmt.Errorf("connection failed: %w", err)
	p.stop()
}

func (p *printer) OnRead(data []byte) {
	if _, err := p.out.Write(data); err != nil {
		p.logger.Warn("write stdout", "err", err)
	}
}

func (p *printer) OnIoError(err error) {
	p.logger.Error("connection lost", "device", p.name, "err", err)
	p.err = fmt.Errorf("connection lost: %w", err)
	p.stop()
}
