package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logRecordMsg delivers a slog record to the model for display in the
// footer.
type logRecordMsg struct {
	Summary string
	Level   slog.Level
}

// logRecordFadeMsg clears the footer message if it is still the one with
// the same sequence number.
type logRecordFadeMsg struct{ seq int }

// logRecordFadeDelay is how long log messages stay visible in the footer.
const logRecordFadeDelay = 5 * time.Second

// LogHandler is a slog.Handler that routes records into a bubbletea program
// as messages. Records below the configured level are dropped, as are
// records logged before SetProgram.
//
// Handlers derived via WithAttrs/WithGroup share the program pointer, so a
// single SetProgram call reaches all of them.
type LogHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	group   string
}

// NewLogHandler creates a handler that delivers records at or above level.
func NewLogHandler(level slog.Level) *LogHandler {
	return &LogHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram sets the program that receives log messages. Safe to call
// from any goroutine.
func (h *LogHandler) SetProgram(p *tea.Program) {
	h.program.Store(p)
}

func (h *LogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle formats the record as "message (key=value, ...)" and sends it.
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	p := h.program.Load()
	if p == nil {
		return nil
	}
	msg := logRecordMsg{Summary: h.summary(r), Level: r.Level}
	// Send blocks until the event loop receives, and records are often
	// logged from inside Update.
	go p.Send(msg)
	return nil
}

func (h *LogHandler) summary(r slog.Record) string {
	var parts []string
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%s", h.qualify(a.Key), a.Value))
		return true
	})
	if len(parts) == 0 {
		return r.Message
	}
	return r.Message + " (" + strings.Join(parts, ", ") + ")"
}

func (h *LogHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// WithAttrs stores attrs with their keys qualified by the current group.
func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	all := append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		a.Key = h.qualify(a.Key)
		all = append(all, a)
	}
	return &LogHandler{
		level:   h.level,
		program: h.program,
		attrs:   all,
		group:   h.group,
	}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &LogHandler{
		level:   h.level,
		program: h.program,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		group:   group,
	}
}
