// Package relay mediates between a long-lived device connection and a UI
// listener that attaches and detaches at will. Events that arrive while no
// listener is bound are buffered and replayed in arrival order on the next
// Attach; events that arrive after Disconnect are dropped.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotConnected is returned by Write when no session is connected.
	ErrNotConnected = errors.New("relay: not connected")
	// ErrAlreadyConnected is returned by Connect while a session is active.
	ErrAlreadyConnected = errors.New("relay: already connected")
	// ErrNotOnUIContext is returned by Attach and Detach when called off the
	// UI execution context.
	ErrNotOnUIContext = errors.New("relay: attach/detach called off the UI context")
	// ErrAlreadyAttached is returned by Attach when a listener is bound.
	ErrAlreadyAttached = errors.New("relay: listener already attached")
	// ErrTransportOpen wraps transport open failures returned by Connect.
	ErrTransportOpen = errors.New("relay: transport open failed")
)

// Relay buffers and forwards transport events to at most one listener.
// All of its methods are safe for concurrent use; Attach and Detach must be
// called on the Executor's context.
type Relay struct {
	exec      Executor
	lifecycle Lifecycle
	observers []Observer
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	session   uint64
	transport Transport
	listener  Listener
	binding   binding
	pending   pendingQueue
}

// Option configures a Relay.
type Option func(*Relay)

// WithLifecycle sets the process-lifecycle manager notified on detach while
// connected.
func WithLifecycle(l Lifecycle) Option {
	return func(r *Relay) { r.lifecycle = l }
}

// WithObserver adds an observer that sees every accepted event, whether or
// not a listener is attached.
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observers = append(r.observers, o) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New returns a disconnected Relay that delivers on exec.
func New(exec Executor, opts ...Option) *Relay {
	r := &Relay{exec: exec, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect opens t and wires the relay as its event sink. A failure to open
// is delivered as a ConnectError event and also returned, wrapped in
// ErrTransportOpen.
func (r *Relay) Connect(ctx context.Context, t Transport) error {
	r.mu.Lock()
	if r.state != StateDisconnected {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.session++
	id := r.session
	r.state = StateConnecting
	r.transport = t
	r.mu.Unlock()

	r.logger.Info("connecting", "transport", t.Name())
	sink := sessionSink{r: r, id: id}
	if err := t.Open(ctx, sink); err != nil {
		sink.OnConnectError(err)
		return fmt.Errorf("%w: %s: %w", ErrTransportOpen, t.Name(), err)
	}

	r.mu.Lock()
	if r.session != id || r.state == StateDisconnected {
		// Disconnect ran while Open was in flight.
		r.mu.Unlock()
		r.closeTransport(t)
		return fmt.Errorf("relay: connect %s: %w", t.Name(), ErrNotConnected)
	}
	r.state = StateConnected
	r.mu.Unlock()
	return nil
}

// Disconnect marks the session disconnected and then closes the transport.
// Events that arrive after the state flips are dropped. Calling Disconnect
// when already disconnected only releases the lifecycle request.
func (r *Relay) Disconnect() {
	r.mu.Lock()
	r.state = StateDisconnected
	t := r.transport
	r.transport = nil
	r.mu.Unlock()

	if t != nil {
		r.logger.Info("disconnected", "transport", t.Name())
		r.closeTransport(t)
	}
	if r.lifecycle != nil {
		r.lifecycle.Release()
	}
}

// Attach binds l and synchronously replays every buffered event to it in
// arrival order. It must run on the UI context.
func (r *Relay) Attach(l Listener) error {
	if !r.exec.InLoop() {
		r.logger.Error("attach called off the UI context")
		return ErrNotOnUIContext
	}
	r.mu.Lock()
	if r.listener != nil {
		r.mu.Unlock()
		return ErrAlreadyAttached
	}
	r.listener = l
	r.binding = boundPendingReplay
	r.pending.seal()
	r.mu.Unlock()

	if r.lifecycle != nil {
		r.lifecycle.Release()
	}
	r.drain()
	return nil
}

// Detach unbinds the current listener. Later events are buffered until the
// next Attach. If the session is connected, the lifecycle manager is asked
// to keep the process alive.
func (r *Relay) Detach() error {
	if !r.exec.InLoop() {
		r.logger.Error("detach called off the UI context")
		return ErrNotOnUIContext
	}
	r.mu.Lock()
	r.listener = nil
	r.binding = unbound
	r.pending.unseal()
	keep := r.state == StateConnected
	var name string
	if r.transport != nil {
		name = r.transport.Name()
	}
	r.mu.Unlock()

	if keep && r.lifecycle != nil {
		r.lifecycle.KeepAlive(name)
	}
	return nil
}

// Write sends data to the device.
func (r *Relay) Write(data []byte) error {
	r.mu.Lock()
	t := r.transport
	connected := r.state == StateConnected
	r.mu.Unlock()
	if !connected || t == nil {
		return ErrNotConnected
	}
	if err := t.Write(data); err != nil {
		return fmt.Errorf("relay: write: %w", err)
	}
	return nil
}

// ControlLines returns the transport's control-line interface when the
// session is connected and the transport supports it.
func (r *Relay) ControlLines() (ControlLines, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateConnected {
		return nil, false
	}
	cl, ok := r.transport.(ControlLines)
	return cl, ok
}

// State returns the current connection state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Name returns the name of the active transport, or "".
func (r *Relay) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transport == nil {
		return ""
	}
	return r.transport.Name()
}

// PendingLen returns the number of buffered, undelivered events.
func (r *Relay) PendingLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.len()
}

// arrive accepts one event from the transport of session id.
func (r *Relay) arrive(id uint64, e Event) {
	var release Transport

	r.mu.Lock()
	if id != r.session || r.state == StateDisconnected {
		r.mu.Unlock()
		r.logger.Debug("dropped event after disconnect", "event", e)
		return
	}
	if e.kind == EventConnected && r.state == StateConnecting {
		r.state = StateConnected
	}
	for _, o := range r.observers {
		o(e)
	}
	r.pending.push(e)
	if r.binding == bound {
		r.binding = boundPendingReplay
		r.exec.Post(r.drain)
	}
	if e.Terminal() {
		r.state = StateDisconnected
		release = r.transport
		r.transport = nil
	}
	r.mu.Unlock()

	if release != nil {
		r.logger.Warn("session ended", "transport", release.Name(), "cause", e.cause)
		r.closeTransport(release)
		if r.lifecycle != nil {
			r.lifecycle.Release()
		}
	}
}

// drain delivers queued events to the bound listener in order. It runs on
// the UI context. Each pop happens under the lock; the callback runs outside
// it so listeners may call back into the relay.
func (r *Relay) drain() {
	for {
		r.mu.Lock()
		l := r.listener
		if l == nil {
			r.mu.Unlock()
			return
		}
		e, ok := r.pending.pop()
		if !ok {
			r.binding = bound
			replayed, pre, during := r.pending.reset()
			r.mu.Unlock()
			if replayed && pre+during > 0 {
				r.logger.Debug("replayed buffered events", "pre_attach", pre, "during_attach", during)
			}
			return
		}
		r.mu.Unlock()
		Dispatch(l, e)
	}
}

func (r *Relay) closeTransport(t Transport) {
	if err := t.Close(); err != nil {
		r.logger.Warn("close transport", "transport", t.Name(), "err", err)
	}
}

// sessionSink tags transport callbacks with the session that opened them so
// a stale transport cannot inject events into a later session.
type sessionSink struct {
	r  *Relay
	id uint64
}

func (s sessionSink) OnConnect()               { s.r.arrive(s.id, Connected()) }
func (s sessionSink) OnConnectError(err error) { s.r.arrive(s.id, ConnectError(err)) }
func (s sessionSink) OnRead(data []byte)       { s.r.arrive(s.id, DataRead(data)) }
func (s sessionSink) OnIoError(err error)      { s.r.arrive(s.id, IoError(err)) }
