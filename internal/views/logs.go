package views

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const defaultLogCapacity = 500

// LogLine is one entry in the logs view.
type LogLine struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

func (l LogLine) String() string {
	return fmt.Sprintf("%s %s %s", l.Time.Format(time.TimeOnly), l.Level, l.Message)
}

// LogView keeps the most recent log lines in a fixed-size ring.
type LogView struct {
	mu    sync.Mutex
	lines []LogLine
	next  int
	full  bool
}

// NewLogView creates a ring holding up to capacity lines.
func NewLogView(capacity int) *LogView {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &LogView{lines: make([]LogLine, capacity)}
}

// Append adds a line, evicting the oldest when full.
func (v *LogView) Append(line LogLine) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lines[v.next] = line
	v.next = (v.next + 1) % len(v.lines)
	if v.next == 0 {
		v.full = true
	}
}

// Lines returns the retained lines, oldest first.
func (v *LogView) Lines() []LogLine {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.full {
		out := make([]LogLine, v.next)
		copy(out, v.lines[:v.next])
		return out
	}
	out := make([]LogLine, 0, len(v.lines))
	out = append(out, v.lines[v.next:]...)
	return append(out, v.lines[:v.next]...)
}

// Clear drops every retained line.
func (v *LogView) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	clear(v.lines)
	v.next = 0
	v.full = false
}

// TeeHandler forwards records to an inner handler and mirrors those at or
// above a minimum level into a LogView.
type TeeHandler struct {
	inner slog.Handler
	view  *LogView
	min   slog.Level
	attrs []slog.Attr
	group string
}

// NewTeeHandler wraps inner. Records below min still reach inner if it
// accepts them.
func NewTeeHandler(inner slog.Handler, view *LogView, min slog.Level) *TeeHandler {
	return &TeeHandler{inner: inner, view: view, min: min}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min || h.inner.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min {
		h.view.Append(LogLine{Time: r.Time, Level: r.Level.String(), Message: h.format(r)})
	}
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.inner = h.inner.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), h.qualify(attrs)...)
	return &c
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.inner = h.inner.WithGroup(name)
	if h.group != "" {
		c.group = h.group + "." + name
	} else {
		c.group = name
	}
	return &c
}

func (h *TeeHandler) qualify(attrs []slog.Attr) []slog.Attr {
	if h.group == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
	}
	return out
}

// format renders "msg key=value ..." with the handler's bound attrs first.
func (h *TeeHandler) format(r slog.Record) string {
	var b strings.Builder
	b.WriteString(r.Message)
	write := func(a slog.Attr) {
		if a.Equal(slog.Attr{}) {
			return
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		write(a)
		return true
	})
	return b.String()
}
