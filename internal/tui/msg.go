package tui

import (
	"time"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/tail"
)

// taskMsg carries one task from the UI loop to be run inside Update.
type taskMsg func()

// loopClosedMsg signals the UI loop was closed.
type loopClosedMsg struct{}

// attachMsg asks Update to attach the terminal to the session.
type attachMsg struct{}

// tickMsg is sent every second for the clock.
type tickMsg time.Time

// chartTickMsg schedules the next chart refresh.
type chartTickMsg struct{}

// samplesMsg carries the result of one chart refresh.
type samplesMsg struct {
	Samples []tail.Sample
	Err     error
}

// lineTickMsg schedules the next control-line poll.
type lineTickMsg struct{}

// lineStatusMsg carries the result of one control-line poll.
type lineStatusMsg struct {
	Status relay.LineStatus
	Err    error
}

// breakDoneMsg reports the end of a BREAK condition.
type breakDoneMsg struct{ Err error }
