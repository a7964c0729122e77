package relay

import "fmt"

// State is the connection state of the relay's logical session.
type State int

const (
	StateDisconnected State = iota // Events from the transport are discarded
	StateConnecting                // Transport is being opened
	StateConnected                 // Transport is open and delivering events
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// EventKind identifies the variant of an Event.
type EventKind int

const (
	EventConnected    EventKind = iota // Transport opened
	EventConnectError                  // Transport failed to open
	EventDataRead                      // Bytes read from the device
	EventIoError                       // Transport failed after opening
)

// String returns the name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventConnectError:
		return "connect-error"
	case EventDataRead:
		return "data-read"
	case EventIoError:
		return "io-error"
	default:
		return "unknown"
	}
}

// Event is one signal from the transport. Events are immutable: the payload
// is copied on construction and must not be modified by receivers.
type Event struct {
	kind    EventKind
	payload []byte
	cause   error
}

// Connected returns a connect-success event.
func Connected() Event {
	return Event{kind: EventConnected}
}

// ConnectError returns a connect-failure event carrying cause.
func ConnectError(cause error) Event {
	return Event{kind: EventConnectError, cause: cause}
}

// DataRead returns a data event holding a private copy of payload.
func DataRead(payload []byte) Event {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Event{kind: EventDataRead, payload: p}
}

// IoError returns a runtime-failure event carrying cause.
func IoError(cause error) Event {
	return Event{kind: EventIoError, cause: cause}
}

// Kind returns the event variant.
func (e Event) Kind() EventKind { return e.kind }

// Payload returns the bytes of a DataRead event, nil otherwise.
func (e Event) Payload() []byte { return e.payload }

// Cause returns the error of a ConnectError or IoError event, nil otherwise.
func (e Event) Cause() error { return e.cause }

// Terminal reports whether the event ends the session.
func (e Event) Terminal() bool {
	return e.kind == EventConnectError || e.kind == EventIoError
}

// String renders the event for logs.
func (e Event) String() string {
	switch e.kind {
	case EventDataRead:
		return fmt.Sprintf("%s(%d bytes)", e.kind, len(e.payload))
	case EventConnectError, EventIoError:
		return fmt.Sprintf("%s(%v)", e.kind, e.cause)
	default:
		return e.kind.String()
	}
}

// Dispatch invokes the callback on l that matches the variant of e.
func Dispatch(l Listener, e Event) {
	switch e.kind {
	case EventConnected:
		l.OnConnect()
	case EventConnectError:
		l.OnConnectError(e.cause)
	case EventDataRead:
		l.OnRead(e.payload)
	case EventIoError:
		l.OnIoError(e.cause)
	}
}
