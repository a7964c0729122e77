package tui

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/uiloop"
)

var _ Session = (*relay.Relay)(nil)

type fakeTransport struct {
	mu       sync.Mutex
	sink     relay.Sink
	written  []string
	writeErr error
	closed   bool
	rts, dtr bool
	status   relay.LineStatus
	breaks   int
}

func (f *fakeTransport) Open(_ context.Context, s relay.Sink) error {
	f.mu.Lock()
	f.sink = s
	f.rts, f.dtr = true, true
	f.mu.Unlock()
	s.OnConnect()
	return nil
}

func (f *fakeTransport) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Name() string { return "/dev/ttyTEST" }

func (f *fakeTransport) SetRTS(on bool) error { f.mu.Lock(); f.rts = on; f.mu.Unlock(); return nil }
func (f *fakeTransport) SetDTR(on bool) error { f.mu.Lock(); f.dtr = on; f.mu.Unlock(); return nil }

func (f *fakeTransport) LineStatus() (relay.LineStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeTransport) SendBreak(time.Duration) error {
	f.mu.Lock()
	f.breaks++
	f.mu.Unlock()
	return nil
}

// newTestModel connects a relay to a fake transport and returns a sized
// model that has not attached yet.
func newTestModel(t *testing.T, opts Options) (Model, *fakeTransport, *relay.Relay) {
	t.Helper()
	loop := uiloop.New()
	t.Cleanup(loop.Close)
	r := relay.New(loop, relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ft := &fakeTransport{}
	if err := r.Connect(context.Background(), ft); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	opts.Loop = loop
	opts.Session = r
	m := New(opts)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	return m, ft, r
}

func attachedModel(t *testing.T, opts Options) (Model, *fakeTransport, *relay.Relay) {
	t.Helper()
	m, ft, r := newTestModel(t, opts)
	return update(t, m, attachMsg{}), ft, r
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	u, _ := m.Update(msg)
	return u.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "pgup":
		return tea.KeyMsg{Type: tea.KeyPgUp}
	case "pgdown":
		return tea.KeyMsg{Type: tea.KeyPgDown}
	}
	if c, ok := strings.CutPrefix(s, "ctrl+"); ok {
		return tea.KeyMsg{Type: tea.KeyCtrlA + tea.KeyType(c[0]-'a')}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// pump runs every queued UI task through Update, as the waitForTask command
// does in a running program.
func pump(t *testing.T, m Model) Model {
	t.Helper()
	for m.loop.Len() > 0 {
		task, err := m.loop.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		m = update(t, m, taskMsg(task))
	}
	return m
}

// runCmd executes cmd and any batched commands and returns their messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func lineTexts(m Model) []string { return texts(m.term) }

func TestKeyHelper(t *testing.T) {
	for _, s := range []string{"enter", "ctrl+c", "ctrl+d", "ctrl+x", "ctrl+r", "pgup"} {
		if got := key(s).String(); got != s {
			t.Errorf("key(%q).String() = %q", s, got)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	m, _, _ := newTestModel(t, Options{})
	if m.newline != "\r\n" {
		t.Errorf("default newline = %q, want CRLF", m.newline)
	}
	if m.attach != attachPending {
		t.Errorf("attach = %v before attachMsg", m.attach)
	}
	if m.Init() == nil {
		t.Error("Init should return a command")
	}
}

func TestAttach_ReplaysBufferedEvents(t *testing.T) {
	m, ft, _ := newTestModel(t, Options{})
	ft.sink.OnRead([]byte("boot\r\n"))

	if len(lineTexts(m)) != 0 {
		t.Fatalf("terminal received events before attach: %q", lineTexts(m))
	}
	m = update(t, m, attachMsg{})

	got := strings.Join(lineTexts(m), "|")
	if got != "connected|boot" {
		t.Errorf("replayed lines = %q, want connected|boot", got)
	}
	if m.attach != attached {
		t.Errorf("attach = %v, want attached", m.attach)
	}
}

func TestLiveData_DeliveredThroughUILoop(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	ft.sink.OnRead([]byte("12\r"))
	ft.sink.OnRead([]byte("\n34\r\n"))

	if m.loop.Len() == 0 {
		t.Fatal("live data should be posted to the UI loop")
	}
	m = pump(t, m)
	got := strings.Join(lineTexts(m), "|")
	if got != "connected|12|34" {
		t.Errorf("lines = %q", got)
	}
	if !strings.Contains(m.View(), "34") {
		t.Error("View() does not show received data")
	}
}

func TestSend_TextAndEcho(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	m.input.SetValue("hi")
	m = update(t, m, key("enter"))

	if len(ft.written) != 1 || ft.written[0] != "hi\r\n" {
		t.Errorf("written = %q, want [hi\\r\\n]", ft.written)
	}
	lines := m.term.lines
	last := lines[len(lines)-1]
	if last.kind != lineSent || last.text != "hi" {
		t.Errorf("echo = %+v", last)
	}
	if m.input.Value() != "" {
		t.Errorf("input not reset: %q", m.input.Value())
	}
}

func TestSend_HexModeAndNewlineCycle(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	m = update(t, m, key("ctrl+x"))
	m = update(t, m, key("ctrl+n")) // crlf -> lf
	m.input.SetValue("41 42")
	m = update(t, m, key("enter"))

	if len(ft.written) != 1 || ft.written[0] != "AB\n" {
		t.Errorf("written = %q, want [AB\\n]", ft.written)
	}
	if m.input.Prompt != "hex> " {
		t.Errorf("prompt = %q in hex mode", m.input.Prompt)
	}
	got := lineTexts(m)
	if got[len(got)-1] != "41 42 0A" {
		t.Errorf("hex echo = %q", got[len(got)-1])
	}
}

func TestSend_InvalidHex(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{Hex: true})
	m.input.SetValue("4G")
	m = update(t, m, key("enter"))
	if len(ft.written) != 0 {
		t.Errorf("invalid hex was written: %q", ft.written)
	}
	if last := m.term.lines[len(m.term.lines)-1]; last.kind != lineError {
		t.Errorf("expected an error line, got %+v", last)
	}
}

func TestSend_NotConnected(t *testing.T) {
	m, ft, r := attachedModel(t, Options{})
	r.Disconnect()
	m.input.SetValue("hi")
	m = update(t, m, key("enter"))

	if len(ft.written) != 0 {
		t.Errorf("wrote while disconnected: %q", ft.written)
	}
	got := lineTexts(m)
	if got[len(got)-1] != "not connected" {
		t.Errorf("last line = %q, want not connected", got[len(got)-1])
	}
	if m.input.Value() != "hi" {
		t.Error("input should be kept when the send fails")
	}
}

func TestSend_WriteErrorEndsSession(t *testing.T) {
	m, ft, r := attachedModel(t, Options{})
	ft.writeErr = errors.New("broken pipe")
	m.input.SetValue("hi")
	m = update(t, m, key("enter"))

	got := lineTexts(m)
	if !strings.HasPrefix(got[len(got)-1], "connection lost: ") {
		t.Errorf("last line = %q", got[len(got)-1])
	}
	if r.State() != relay.StateDisconnected {
		t.Errorf("state = %v, want disconnected", r.State())
	}
}

func TestIoError_ShowsStatusAndDisconnects(t *testing.T) {
	m, ft, r := attachedModel(t, Options{})
	ft.sink.OnIoError(errors.New("device removed"))
	m = pump(t, m)

	got := lineTexts(m)
	if got[len(got)-1] != "connection lost: device removed" {
		t.Errorf("last line = %q", got[len(got)-1])
	}
	if r.State() != relay.StateDisconnected || !ft.closed {
		t.Errorf("state = %v closed = %v", r.State(), ft.closed)
	}
	if !strings.Contains(m.View(), "DISCONNECTED") {
		t.Error("header should show DISCONNECTED")
	}
}

func TestDetach_BuffersThenReattachReplays(t *testing.T) {
	m, ft, r := attachedModel(t, Options{})
	m = update(t, m, key("ctrl+d"))
	if m.attach != detached {
		t.Fatalf("attach = %v after ctrl+d", m.attach)
	}

	ft.sink.OnRead([]byte("while away\n"))
	if m.loop.Len() != 0 {
		t.Error("no delivery should be scheduled while detached")
	}
	if r.PendingLen() != 1 {
		t.Errorf("PendingLen = %d, want 1", r.PendingLen())
	}
	if !strings.Contains(m.View(), "DETACHED") || !strings.Contains(m.View(), "buffered: 1") {
		t.Error("header should show DETACHED with the buffered count")
	}

	m = update(t, m, key("ctrl+d"))
	got := lineTexts(m)
	if got[len(got)-1] != "while away" {
		t.Errorf("last line after reattach = %q", got[len(got)-1])
	}
	if r.PendingLen() != 0 {
		t.Errorf("PendingLen after replay = %d", r.PendingLen())
	}
}

func TestSuspend_DetachesAndResumeReattaches(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	u, cmd := m.Update(key("ctrl+z"))
	m = u.(Model)
	if cmd == nil {
		t.Fatal("ctrl+z should return the suspend command")
	}
	if _, ok := cmd().(tea.SuspendMsg); !ok {
		t.Errorf("ctrl+z command did not produce SuspendMsg")
	}
	if m.attach != detached {
		t.Fatalf("attach = %v while suspended", m.attach)
	}

	ft.sink.OnRead([]byte("bg\n"))
	m = update(t, m, tea.ResumeMsg{})
	got := lineTexts(m)
	if m.attach != attached || got[len(got)-1] != "bg" {
		t.Errorf("after resume: attach=%v last=%q", m.attach, got[len(got)-1])
	}
}

func TestCtrlC_DisconnectsAndQuits(t *testing.T) {
	m, ft, r := attachedModel(t, Options{})
	_, cmd := m.Update(key("ctrl+c"))
	if cmd == nil {
		t.Fatal("ctrl+c should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c command is not tea.Quit")
	}
	if r.State() != relay.StateDisconnected || !ft.closed {
		t.Error("ctrl+c should disconnect the session")
	}
}

func TestLoopClosed_Quits(t *testing.T) {
	m, _, _ := attachedModel(t, Options{})
	u, cmd := m.Update(loopClosedMsg{})
	if !u.(Model).Done() {
		t.Error("Done() = false after loopClosedMsg")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("loopClosedMsg should quit")
	}
}

func TestClearKey(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	ft.sink.OnRead([]byte("a\nb\n"))
	m = pump(t, m)
	m = update(t, m, key("ctrl+l"))
	if m.term.Len() != 0 || m.recv.Lines() != 0 {
		t.Errorf("after clear: term=%d view=%d", m.term.Len(), m.recv.Lines())
	}
}

func TestControlLines(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})

	m = update(t, m, key("ctrl+r"))
	m = update(t, m, key("ctrl+t"))
	if ft.rts || ft.dtr || m.rts || m.dtr {
		t.Errorf("RTS/DTR not toggled off: transport %v/%v model %v/%v", ft.rts, ft.dtr, m.rts, m.dtr)
	}

	u, cmd := m.Update(key("ctrl+b"))
	m = u.(Model)
	for _, msg := range runCmd(cmd) {
		m = update(t, m, msg)
	}
	if ft.breaks != 1 {
		t.Errorf("breaks = %d, want 1", ft.breaks)
	}
	got := lineTexts(m)
	if got[len(got)-1] != "break sent" {
		t.Errorf("last line = %q", got[len(got)-1])
	}

	m = update(t, m, key("ctrl+o"))
	if !m.linesOn {
		t.Fatal("ctrl+o should show control lines")
	}
	ft.status = relay.LineStatus{CTS: true}
	cl, _ := m.session.ControlLines()
	m = update(t, m, runCmd(pollLinesCmd(cl))[0])
	if !m.lineStatus.CTS {
		t.Error("poll result not stored")
	}
	if !strings.Contains(m.View(), "CTS") {
		t.Error("footer should list control lines")
	}

	m = update(t, m, key("ctrl+o"))
	m = update(t, m, lineTickMsg{})
	if m.polling {
		t.Error("polling should stop once control lines are hidden")
	}
}

func TestControlLines_Unavailable(t *testing.T) {
	m, _, r := attachedModel(t, Options{})
	r.Disconnect()
	m = update(t, m, key("ctrl+r"))
	got := lineTexts(m)
	if got[len(got)-1] != "control lines not available" {
		t.Errorf("last line = %q", got[len(got)-1])
	}
}

func TestChart_SamplesSessionLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usbterm_1.csv")
	if err := os.WriteFile(path, []byte("data\n100\n900\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, _, _ := attachedModel(t, Options{LogPath: path, ChartRefresh: time.Millisecond})

	u, cmd := m.Update(key("ctrl+g"))
	m = u.(Model)
	if !m.chartOn || m.layout.Chart.Height == 0 {
		t.Fatal("ctrl+g should show the chart panel")
	}
	var got bool
	for _, msg := range runCmd(cmd) {
		if s, ok := msg.(samplesMsg); ok {
			m = update(t, m, s)
			got = true
		}
	}
	if !got {
		t.Fatal("chart tick did not sample the log")
	}
	if len(m.samples) != 2 || m.samples[1].Value != 900 {
		t.Errorf("samples = %+v", m.samples)
	}
	if m.sampling {
		t.Error("sampling flag not cleared")
	}
	if !hasBrailleDots(m.View()) {
		t.Error("chart panel not rendered")
	}
}

func hasBrailleDots(s string) bool {
	for _, r := range s {
		if r > 0x2800 && r <= 0x28FF {
			return true
		}
	}
	return false
}

func TestChart_MissingLog(t *testing.T) {
	m, _, _ := attachedModel(t, Options{LogPath: filepath.Join(t.TempDir(), "nope.csv"), Chart: true})
	m = update(t, m, runCmd(sampleCmd(m.sampler, m.logPath, 10))[0])
	if !strings.Contains(m.View(), "waiting for") {
		t.Error("missing log should show a waiting hint")
	}
}

func TestLogRecord_ShownThenFades(t *testing.T) {
	m, _, _ := attachedModel(t, Options{})
	m = update(t, m, logRecordMsg{Summary: "log write failed", Level: slog.LevelError})
	if !m.messageErr || !strings.Contains(m.View(), "log write failed") {
		t.Error("log record not shown in the footer")
	}
	m = update(t, m, logRecordMsg{Summary: "second", Level: slog.LevelWarn})
	m = update(t, m, logRecordFadeMsg{seq: 1})
	if m.message != "second" {
		t.Errorf("stale fade cleared the newer message: %q", m.message)
	}
	m = update(t, m, logRecordFadeMsg{seq: 2})
	if m.message != "" {
		t.Errorf("message = %q after fade", m.message)
	}
}

func TestScrollKeys(t *testing.T) {
	m, ft, _ := attachedModel(t, Options{})
	ft.sink.OnRead([]byte(strings.Repeat("line\n", 100)))
	m = pump(t, m)

	m = update(t, m, key("pgup"))
	if m.recv.Following() || m.recv.Offset() == 0 {
		t.Error("pgup should scroll back")
	}
	if !strings.Contains(m.View(), "↑") {
		t.Error("footer should show the scroll offset")
	}
	for i := 0; i < 10 && !m.recv.Following(); i++ {
		m = update(t, m, key("pgdown"))
	}
	if !m.recv.Following() {
		t.Error("pgdown back to the bottom should follow again")
	}
}

func TestTypedKeysReachInput(t *testing.T) {
	m, _, _ := attachedModel(t, Options{})
	m = update(t, m, key("q"))
	if m.input.Value() != "q" {
		t.Errorf("input = %q, want q", m.input.Value())
	}
}

func TestView_TooSmall(t *testing.T) {
	m, _, _ := attachedModel(t, Options{})
	m = update(t, m, tea.WindowSizeMsg{Width: 30, Height: 8})
	if !strings.Contains(m.View(), "too small") {
		t.Errorf("View() = %q", m.View())
	}
}
