// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Emit(ResolutionStarted{Mods: 2})
	r.Emit(HookInstalled{Target: "f", Owner: "a"})
	r.Emit(HookInstalled{Target: "g", Owner: "b"})

	expected := []Kind{KindResolutionStarted, KindHookInstalled, KindHookInstalled}
	if !slices.Equal(r.Kinds(), expected) {
		t.Errorf("expected %v, got %v", expected, r.Kinds())
	}

	installs := Filter[HookInstalled](r)
	if len(installs) != 2 || installs[1].Owner != "b" {
		t.Errorf("unexpected filtered events: %+v", installs)
	}

	r.Reset()
	if len(r.Events()) != 0 {
		t.Errorf("expected no events after Reset, got %d", len(r.Events()))
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Emit(HookToggled{Enabled: true})
			}
		}()
	}
	wg.Wait()

	if got := len(r.Events()); got != 800 {
		t.Errorf("expected 800 events, got %d", got)
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a, b := NewRecorder(), NewRecorder()
	s := Multi(a, nil, b)
	s.Emit(LifecycleTransition{Mod: "m", From: "unloaded", To: "loading"})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("expected both recorders to receive the event, got %d and %d", len(a.Events()), len(b.Events()))
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	if OrNop(nil) != Nop {
		t.Error("expected Nop for nil sink")
	}
	r := NewRecorder()
	if OrNop(r) != Sink(r) {
		t.Error("expected the given sink back")
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	s := NewLogSink(logger)

	s.Emit(ResolutionFinished{Order: []string{"a", "b"}, Failures: 1})
	s.Emit(LifecycleTransition{Mod: "a", From: "loading", To: "unloaded", Err: errors.New("setup failed")})
	s.Emit(HookInstalled{Target: "host.save", Owner: "a", Priority: 10})

	out := buf.String()
	for _, want := range []string{"resolution finished with failures", "setup failed", "hook installed", "host.save"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
