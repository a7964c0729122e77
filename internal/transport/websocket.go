package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

const wsWriteTimeout = 10 * time.Second

// WebSocket carries the device byte stream over a websocket, for serial
// servers that expose a port over the network. Each message is one chunk of
// bytes; writes are sent as binary messages.
type WebSocket struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	closed atomic.Bool

	mu      sync.Mutex
	writeMu sync.Mutex // serialises conn writes
	conn    *websocket.Conn
}

// NewWebSocket returns a transport for url.
func NewWebSocket(url string, header http.Header) *WebSocket {
	return &WebSocket{url: url, header: header, dialer: websocket.DefaultDialer}
}

// Name returns the URL.
func (w *WebSocket) Name() string { return w.url }

// Open dials the server, reports OnConnect and starts the read loop.
func (w *WebSocket) Open(ctx context.Context, sink relay.Sink) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", w.url, err)
	}
	w.mu.Lock()
	if w.closed.Load() {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	w.conn = conn
	w.mu.Unlock()

	sink.OnConnect()
	go w.readLoop(conn, sink)
	return nil
}

func (w *WebSocket) readLoop(conn *websocket.Conn, sink relay.Sink) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !w.closed.Load() {
				sink.OnIoError(err)
			}
			return
		}
		if mt == websocket.BinaryMessage || mt == websocket.TextMessage {
			sink.OnRead(data)
		}
	}
}

// Write sends data as one binary message.
func (w *WebSocket) Write(data []byte) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: ws write: %w", err)
	}
	return nil
}

// Close sends a close frame and closes the connection. A dial still in
// progress fails with ErrClosed once it completes.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if !w.closed.CompareAndSwap(false, true) {
		w.mu.Unlock()
		return nil
	}
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	w.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	w.writeMu.Unlock()
	return conn.Close()
}
