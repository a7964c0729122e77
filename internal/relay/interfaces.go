package relay

import (
	"context"
	"time"
)

// Listener receives events on the UI execution context. Only one listener
// is bound to a Relay at a time.
type Listener interface {
	OnConnect()
	OnConnectError(err error)
	OnRead(data []byte)
	OnIoError(err error)
}

// Sink is the callback surface a Transport reports into. A transport may
// call any of these from any goroutine until it is closed.
type Sink interface {
	OnConnect()
	OnConnectError(err error)
	OnRead(data []byte)
	OnIoError(err error)
}

// Transport is a byte-oriented device connection.
//
// Open either returns an error, or reports OnConnect on sink and starts
// delivering OnRead/OnIoError. Close must be safe to call more than once
// and from inside a Sink callback.
type Transport interface {
	Open(ctx context.Context, sink Sink) error
	Write(data []byte) error
	Close() error
	Name() string
}

// LineStatus is a snapshot of serial control lines.
type LineStatus struct {
	RTS, CTS, DTR, DSR, CD, RI bool
}

// ControlLines is implemented by transports that expose modem control lines.
type ControlLines interface {
	SetRTS(on bool) error
	SetDTR(on bool) error
	LineStatus() (LineStatus, error)
	SendBreak(d time.Duration) error
}

// Executor is the single designated UI execution context. Post schedules a
// task in FIFO order without blocking; InLoop reports whether the caller is
// currently running on the context.
type Executor interface {
	Post(task func())
	InLoop() bool
}

// Lifecycle is the external process-lifecycle manager. KeepAlive asks the
// process to keep the session running without an attached listener;
// Release cancels that request.
type Lifecycle interface {
	KeepAlive(name string)
	Release()
}

// Observer sees every accepted event in arrival order, independent of
// listener attachment. Observers run under the relay lock and must not block.
type Observer func(e Event)
