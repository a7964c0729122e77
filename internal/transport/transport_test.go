package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

// Compile-time checks.
var (
	_ relay.Transport    = (*Serial)(nil)
	_ relay.ControlLines = (*Serial)(nil)
	_ relay.Transport    = (*WebSocket)(nil)
	_ relay.Transport    = (*Sim)(nil)
	_ relay.ControlLines = (*Sim)(nil)
)

type sinkEvent struct {
	kind string
	data string
	err  error
}

type chanSink chan sinkEvent

func (c chanSink) OnConnect()               { c <- sinkEvent{kind: "connect"} }
func (c chanSink) OnConnectError(err error) { c <- sinkEvent{kind: "connect-error", err: err} }
func (c chanSink) OnRead(data []byte)       { c <- sinkEvent{kind: "read", data: string(data)} }
func (c chanSink) OnIoError(err error)      { c <- sinkEvent{kind: "io-error", err: err} }

func next(t *testing.T, c chanSink) sinkEvent {
	t.Helper()
	select {
	case e := <-c:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for sink event")
		return sinkEvent{}
	}
}

func expectQuiet(t *testing.T, c chanSink) {
	t.Helper()
	select {
	case e := <-c:
		t.Fatalf("unexpected event %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakePort struct {
	serial.Port
	reads chan []byte
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	written []byte
	rts     bool
	dtr     bool
	status  serial.ModemStatusBits
	brk     time.Duration
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan []byte, 8), done: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.reads:
		return copy(b, chunk), nil
	case <-p.done:
		return 0, errors.New("port closed")
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *fakePort) SetRTS(on bool) error { p.mu.Lock(); p.rts = on; p.mu.Unlock(); return nil }
func (p *fakePort) SetDTR(on bool) error { p.mu.Lock(); p.dtr = on; p.mu.Unlock(); return nil }
func (p *fakePort) Break(d time.Duration) error {
	p.mu.Lock()
	p.brk = d
	p.mu.Unlock()
	return nil
}

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	return &st, nil
}

func openFakeSerial(t *testing.T) (*Serial, *fakePort, chanSink) {
	t.Helper()
	port := newFakePort()
	s := NewSerial(SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200})
	s.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		if name != "/dev/ttyUSB0" || mode.BaudRate != 115200 || mode.DataBits != 8 {
			t.Errorf("open(%q, %+v)", name, mode)
		}
		return port, nil
	}
	sink := make(chanSink, 16)
	if err := s.Open(context.Background(), sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e := next(t, sink); e.kind != "connect" {
		t.Fatalf("first event = %+v", e)
	}
	return s, port, sink
}

func TestSerial_ReadWrite(t *testing.T) {
	s, port, sink := openFakeSerial(t)
	defer s.Close()

	port.reads <- []byte("12\n")
	if e := next(t, sink); e.kind != "read" || e.data != "12\n" {
		t.Errorf("event = %+v", e)
	}
	if err := s.Write([]byte("AT\r\n")); err != nil {
		t.Fatal(err)
	}
	port.mu.Lock()
	got := string(port.written)
	port.mu.Unlock()
	if got != "AT\r\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSerial_CloseIsQuiet(t *testing.T) {
	s, _, sink := openFakeSerial(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	expectQuiet(t, sink)
	if err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after Close = %v", err)
	}
}

func TestSerial_DeviceRemoved(t *testing.T) {
	s, port, sink := openFakeSerial(t)
	defer s.Close()
	port.reads <- []byte{}
	if e := next(t, sink); e.kind != "io-error" || !errors.Is(e.err, ErrDeviceGone) {
		t.Errorf("event = %+v", e)
	}
}

func TestSerial_ControlLines(t *testing.T) {
	s, port, _ := openFakeSerial(t)
	defer s.Close()

	port.mu.Lock()
	port.status = serial.ModemStatusBits{CTS: true, DCD: true}
	port.mu.Unlock()

	if err := s.SetRTS(false); err != nil {
		t.Fatal(err)
	}
	st, err := s.LineStatus()
	if err != nil {
		t.Fatal(err)
	}
	want := relay.LineStatus{RTS: false, DTR: true, CTS: true, CD: true}
	if st != want {
		t.Errorf("LineStatus = %+v, want %+v", st, want)
	}
	if err := s.SendBreak(100 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if port.rts || port.brk != 100*time.Millisecond {
		t.Errorf("port rts = %v, break = %v", port.rts, port.brk)
	}
}

func TestSerial_OpenError(t *testing.T) {
	s := NewSerial(SerialConfig{Port: "/dev/none", BaudRate: 9600})
	s.open = func(string, *serial.Mode) (serial.Port, error) { return nil, errors.New("no such device") }
	sink := make(chanSink, 1)
	err := s.Open(context.Background(), sink)
	if err == nil || !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("Open err = %v", err)
	}
	expectQuiet(t, sink)
}

func TestSerial_CloseDuringOpen(t *testing.T) {
	port := newFakePort()
	opening := make(chan struct{})
	release := make(chan struct{})
	s := NewSerial(SerialConfig{Port: "/dev/ttyUSB0", BaudRate: 115200})
	s.open = func(string, *serial.Mode) (serial.Port, error) {
		close(opening)
		<-release
		return port, nil
	}

	sink := make(chanSink, 4)
	openErr := make(chan error, 1)
	go func() { openErr <- s.Open(context.Background(), sink) }()

	<-opening
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	if err := <-openErr; !errors.Is(err, ErrClosed) {
		t.Errorf("Open = %v, want ErrClosed", err)
	}
	select {
	case <-port.done:
	case <-time.After(time.Second):
		t.Fatal("port opened after Close was left open")
	}
	expectQuiet(t, sink)
	if err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write = %v, want ErrClosed", err)
	}
}

func TestSerialMode(t *testing.T) {
	tests := []struct {
		cfg     SerialConfig
		wantErr bool
	}{
		{SerialConfig{BaudRate: 9600}, false},
		{SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: "2", Parity: "Even"}, false},
		{SerialConfig{BaudRate: 9600, StopBits: "1.5", Parity: "mark"}, false},
		{SerialConfig{BaudRate: 0}, true},
		{SerialConfig{BaudRate: 9600, DataBits: 9}, true},
		{SerialConfig{BaudRate: 9600, StopBits: "3"}, true},
		{SerialConfig{BaudRate: 9600, Parity: "weird"}, true},
	}
	for _, tt := range tests {
		_, err := SerialMode(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("SerialMode(%+v) err = %v, wantErr %v", tt.cfg, err, tt.wantErr)
		}
	}
	m, _ := SerialMode(SerialConfig{BaudRate: 9600, DataBits: 7, StopBits: "2", Parity: "even"})
	if m.DataBits != 7 || m.StopBits != serial.TwoStopBits || m.Parity != serial.EvenParity {
		t.Errorf("mode = %+v", m)
	}
}

func TestSim_EmitsNumericLinesAndEchoes(t *testing.T) {
	s := NewSim(SimConfig{Interval: time.Millisecond, Seed: 1})
	sink := make(chanSink, 64)
	if err := s.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if e := next(t, sink); e.kind != "connect" {
		t.Fatalf("first event = %+v", e)
	}
	for i := 0; i < 5; i++ {
		e := next(t, sink)
		if e.kind != "read" || !strings.HasSuffix(e.data, "\n") {
			t.Fatalf("event = %+v", e)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(e.data), 64)
		if err != nil || v < 0 || v >= 1024 {
			t.Fatalf("sample %q out of range", e.data)
		}
	}

	if err := s.SetRTS(false); err != nil {
		t.Fatal(err)
	}
	st, _ := s.LineStatus()
	if st.CTS || !st.DSR {
		t.Errorf("loopback status = %+v", st)
	}
	_ = s.SendBreak(time.Millisecond)
	if s.Breaks() != 1 {
		t.Errorf("Breaks = %d", s.Breaks())
	}
}

func TestSim_FailAfter(t *testing.T) {
	s := NewSim(SimConfig{Interval: time.Millisecond, FailAfter: 2, Seed: 1})
	sink := make(chanSink, 16)
	if err := s.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	kinds := []string{next(t, sink).kind, next(t, sink).kind, next(t, sink).kind, next(t, sink).kind}
	if strings.Join(kinds, ",") != "connect,read,read,io-error" {
		t.Errorf("events = %v", kinds)
	}
}

func TestSim_WriteAfterClose(t *testing.T) {
	s := NewSim(SimConfig{})
	_ = s.Close()
	if err := s.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write = %v, want ErrClosed", err)
	}
	if err := s.Open(context.Background(), make(chanSink, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Open after Close = %v", err)
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("hello\n"))
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, append([]byte("echo:"), data...))
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws := NewWebSocket(url, nil)
	sink := make(chanSink, 8)
	if err := ws.Open(context.Background(), sink); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if e := next(t, sink); e.kind != "connect" {
		t.Fatalf("event = %+v", e)
	}
	if e := next(t, sink); e.data != "hello\n" {
		t.Errorf("event = %+v", e)
	}
	if err := ws.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if e := next(t, sink); e.data != "echo:ping" {
		t.Errorf("event = %+v", e)
	}

	if err := ws.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	expectQuiet(t, sink)
}

func TestWebSocket_ServerDropIsIoError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	defer ws.Close()
	sink := make(chanSink, 4)
	if err := ws.Open(context.Background(), sink); err != nil {
		t.Fatal(err)
	}
	next(t, sink)
	if e := next(t, sink); e.kind != "io-error" {
		t.Errorf("event = %+v, want io-error", e)
	}
}

func TestWebSocket_CloseDuringDial(t *testing.T) {
	upgrader := websocket.Upgrader{}
	dialing := make(chan struct{})
	release := make(chan struct{})
	serverDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(dialing)
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer close(serverDone)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	sink := make(chanSink, 4)
	openErr := make(chan error, 1)
	go func() { openErr <- ws.Open(context.Background(), sink) }()

	<-dialing
	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	if err := <-openErr; !errors.Is(err, ErrClosed) {
		t.Errorf("Open = %v, want ErrClosed", err)
	}
	select {
	case <-serverDone:
	case <-time.After(3 * time.Second):
		t.Fatal("connection dialed after Close was left open")
	}
	expectQuiet(t, sink)
}

func TestWebSocket_DialError(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/none", nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Open(ctx, make(chanSink, 1)); err == nil {
		t.Error("expected dial error")
	}
}

func TestDetectPort(t *testing.T) {
	tests := []struct {
		name    string
		ports   []PortInfo
		want    string
		wantErr bool
	}{
		{"none", nil, "", true},
		{"single usb among others", []PortInfo{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyUSB0", IsUSB: true}}, "/dev/ttyUSB0", false},
		{"single non-usb", []PortInfo{{Name: "/dev/ttyS0"}}, "/dev/ttyS0", false},
		{"two usb", []PortInfo{{Name: "a", IsUSB: true}, {Name: "b", IsUSB: true}}, "", true},
		{"two non-usb", []PortInfo{{Name: "a"}, {Name: "b"}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectPort(tt.ports)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("DetectPort = %q, %v; want %q, wantErr %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
	if _, err := DetectPort(nil); !errors.Is(err, ErrNoPort) {
		t.Errorf("empty list err = %v, want ErrNoPort", err)
	}
}

func TestPortInfoString(t *testing.T) {
	p := PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"}
	if got := p.String(); got != "/dev/ttyACM0  usb 2341:0043  Arduino Uno" {
		t.Errorf("String = %q", got)
	}
}
