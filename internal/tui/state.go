package tui

import "github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"

// attachState describes the terminal's relation to the session.
type attachState int

const (
	attachPending attachState = iota // not attached yet
	attached
	detached // detached by the user; events are buffered by the relay
)

// stateLabel returns a short uppercase label for the connection state.
func stateLabel(s relay.State, a attachState) string {
	if a == detached {
		return "DETACHED"
	}
	switch s {
	case relay.StateConnecting:
		return "CONNECTING"
	case relay.StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// stateSymbol returns a single-character symbol for the connection state.
func stateSymbol(s relay.State, a attachState) string {
	if a == detached {
		return "⏸"
	}
	switch s {
	case relay.StateConnecting:
		return "⟳"
	case relay.StateConnected:
		return "●"
	default:
		return "✗"
	}
}
