package tui

import "github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"

// Session is the part of the relay the terminal drives. *relay.Relay
// implements it.
type Session interface {
	// Attach and Detach must run on the UI context.
	Attach(l relay.Listener) error
	Detach() error

	// Disconnect ends the session. It is safe to call more than once.
	Disconnect()

	Write(data []byte) error
	ControlLines() (relay.ControlLines, bool)
	State() relay.State
	PendingLen() int
}
