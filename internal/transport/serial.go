// Package transport implements relay.Transport over a serial port, a
// websocket byte stream, and a simulated device.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

// ErrDeviceGone is reported when a read returns nothing and no error, which
// is how a removed USB device shows up on some platforms.
var ErrDeviceGone = errors.New("transport: device removed")

// ErrClosed is returned by Write after Close, and by Open when Close ran
// while it was in progress.
var ErrClosed = errors.New("transport: closed")

const readBufferSize = 4096

// SerialConfig describes how to open a serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits string // "1", "1.5" or "2"
	Parity   string // "none", "odd", "even", "mark" or "space"
}

// SerialMode converts cfg to the driver's mode.
func SerialMode(cfg SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: true,
			DTR: true,
		},
	}
	if mode.BaudRate <= 0 {
		return nil, fmt.Errorf("transport: invalid baud rate %d", cfg.BaudRate)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("transport: invalid data bits %d", cfg.DataBits)
	}

	switch cfg.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("transport: invalid stop bits %q", cfg.StopBits)
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("transport: invalid parity %q", cfg.Parity)
	}
	return mode, nil
}

// Serial is a serial-port transport with control-line support.
type Serial struct {
	cfg    SerialConfig
	open   func(name string, mode *serial.Mode) (serial.Port, error)
	closed atomic.Bool

	mu       sync.Mutex
	port     serial.Port
	rts, dtr bool
}

// NewSerial returns a transport for cfg. Nothing is opened until Open.
func NewSerial(cfg SerialConfig) *Serial {
	return &Serial{cfg: cfg, open: serial.Open}
}

// Name returns the port name.
func (s *Serial) Name() string { return s.cfg.Port }

// Open opens the port, reports OnConnect and starts the read loop.
func (s *Serial) Open(ctx context.Context, sink relay.Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := SerialMode(s.cfg)
	if err != nil {
		return err
	}
	p, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.cfg.Port, err)
	}

	s.mu.Lock()
	if s.closed.Load() {
		// Close ran while the port was opening.
		s.mu.Unlock()
		_ = p.Close()
		return ErrClosed
	}
	s.port = p
	s.rts, s.dtr = true, true
	s.mu.Unlock()

	sink.OnConnect()
	go s.readLoop(p, sink)
	return nil
}

func (s *Serial) readLoop(p serial.Port, sink relay.Sink) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := p.Read(buf)
		if n > 0 {
			sink.OnRead(buf[:n])
		}
		if err == nil && n == 0 {
			err = ErrDeviceGone
		}
		if err != nil {
			if !s.closed.Load() {
				sink.OnIoError(err)
			}
			return
		}
	}
}

// Write sends data to the port.
func (s *Serial) Write(data []byte) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	for len(data) > 0 {
		n, err := p.Write(data)
		if err != nil {
			return fmt.Errorf("transport: write %s: %w", s.cfg.Port, err)
		}
		data = data[n:]
	}
	return nil
}

// Close closes the port. The read loop exits on its own; Close does not wait
// for it, so it may be called from a sink callback. If Open is still in
// progress, Open closes the port itself and fails with ErrClosed.
func (s *Serial) Close() error {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	p := s.port
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("transport: close %s: %w", s.cfg.Port, err)
	}
	return nil
}

func (s *Serial) current() (serial.Port, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrClosed
	}
	return s.port, nil
}

// SetRTS drives the RTS line.
func (s *Serial) SetRTS(on bool) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	if err := p.SetRTS(on); err != nil {
		return fmt.Errorf("transport: set RTS: %w", err)
	}
	s.mu.Lock()
	s.rts = on
	s.mu.Unlock()
	return nil
}

// SetDTR drives the DTR line.
func (s *Serial) SetDTR(on bool) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	if err := p.SetDTR(on); err != nil {
		return fmt.Errorf("transport: set DTR: %w", err)
	}
	s.mu.Lock()
	s.dtr = on
	s.mu.Unlock()
	return nil
}

// LineStatus reads the modem input lines and reports the last driven
// output lines.
func (s *Serial) LineStatus() (relay.LineStatus, error) {
	p, err := s.current()
	if err != nil {
		return relay.LineStatus{}, err
	}
	bits, err := p.GetModemStatusBits()
	if err != nil {
		return relay.LineStatus{}, fmt.Errorf("transport: modem status: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return relay.LineStatus{
		RTS: s.rts,
		DTR: s.dtr,
		CTS: bits.CTS,
		DSR: bits.DSR,
		CD:  bits.DCD,
		RI:  bits.RI,
	}, nil
}

// SendBreak holds the line in break state for d.
func (s *Serial) SendBreak(d time.Duration) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	if err := p.Break(d); err != nil {
		return fmt.Errorf("transport: break: %w", err)
	}
	return nil
}

// PortInfo describes an available serial port.
type PortInfo struct {
	Name    string
	IsUSB   bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// String renders the port for listings.
func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	s := fmt.Sprintf("%s  usb %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += "  " + p.Product
	}
	if p.Serial != "" {
		s += "  sn " + p.Serial
	}
	return s
}

// ListPorts returns the serial ports on this machine.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports, nil
}
