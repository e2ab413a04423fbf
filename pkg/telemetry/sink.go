// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

type (
	// NopSink discards every event.
	NopSink struct{}

	// Recorder keeps every event in emission order.
	Recorder struct {
		mu     sync.Mutex
		events []Event
	}

	// LogSink writes events as structured log lines.
	LogSink struct {
		logger *log.Logger
	}

	multiSink []Sink
)

// Nop is the sink used when none is configured.
var Nop Sink = NopSink{}

// Emit implements Sink.
func (NopSink) Emit(Event) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	out := make([]Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Filter returns the recorded events of type T, in order.
func Filter[T Event](r *Recorder) []T {
	var out []T
	for _, e := range r.Events() {
		if ev, ok := e.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

// NewLogSink returns a sink that logs through logger.
// Resolution and lifecycle failures are logged at warn level, hook traffic at debug.
func NewLogSink(logger *log.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case ResolutionStarted:
		s.logger.Debug("resolving mods", "mods", ev.Mods)
	case ResolutionFinished:
		if ev.Failures > 0 {
			s.logger.Warn("resolution finished with failures",
				"failures", ev.Failures, "order", strings.Join(ev.Order, ","), "duration", ev.Duration)
			return
		}
		s.logger.Info("resolution finished", "mods", len(ev.Order), "duration", ev.Duration)
	case HookInstalled:
		s.logger.Debug("hook installed",
			"target", ev.Target, "owner", ev.Owner, "priority", ev.Priority, "chain", ev.ChainLen, "enabled", ev.Enabled, "handle", ev.Handle)
	case HookRemoved:
		s.logger.Debug("hook removed",
			"target", ev.Target, "owner", ev.Owner, "restored", ev.Restored, "handle", ev.Handle)
	case HookToggled:
		s.logger.Debug("hook toggled", "target", ev.Target, "owner", ev.Owner, "enabled", ev.Enabled)
	case LifecycleTransition:
		if ev.Err != nil {
			s.logger.Warn("mod transition", "mod", ev.Mod, "from", ev.From, "to", ev.To, "error", ev.Err)
			return
		}
		s.logger.Info("mod transition", "mod", ev.Mod, "from", ev.From, "to", ev.To)
	default:
		s.logger.Debug("event", "kind", string(e.Kind()))
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var m multiSink
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Emit implements Sink.
func (m multiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}
