// SPDX-License-Identifier: MPL-2.0

package hook

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BomberFish/geode/pkg/telemetry"
)

type tracer struct {
	mu    sync.Mutex
	steps []string
}

func (tr *tracer) add(s string) {
	tr.mu.Lock()
	tr.steps = append(tr.steps, s)
	tr.mu.Unlock()
}

func (tr *tracer) get() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return slices.Clone(tr.steps)
}

func tracing(tr *tracer, name string) Func {
	return func(next Next, args ...any) any {
		tr.add(name + ":before")
		r := next(args...)
		tr.add(name + ":after")
		return r
	}
}

// countingPatcher counts patcher calls made by the engine.
type countingPatcher struct {
	*FuncTable
	captures, redirects, restores atomic.Int32
}

func (p *countingPatcher) CaptureOriginal(t Target) (Trampoline, error) {
	p.captures.Add(1)
	return p.FuncTable.CaptureOriginal(t)
}

func (p *countingPatcher) Redirect(t Target, d Trampoline) error {
	p.redirects.Add(1)
	return p.FuncTable.Redirect(t, d)
}

func (p *countingPatcher) Restore(t Target) error {
	p.restores.Add(1)
	return p.FuncTable.Restore(t)
}

func newHost(t *testing.T, tr *tracer) (*FuncTable, Target, *atomic.Int32) {
	t.Helper()
	ft := NewFuncTable()
	target := Target{Symbol: "PlayLayer::update", Convention: "thiscall"}
	calls := &atomic.Int32{}
	err := ft.Define(target, func(args ...any) any {
		calls.Add(1)
		if tr != nil {
			tr.add("original")
		}
		if len(args) > 0 {
			return args[0]
		}
		return "original"
	})
	if err != nil {
		t.Fatalf("Define() error: %v", err)
	}
	return ft, target, calls
}

func mustInstall(t *testing.T, e *Engine, target Target, h Hook) *Handle {
	t.Helper()
	handle, err := e.Install(target, h)
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	return handle
}

func TestEngine_CallThroughOrder(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, calls := newHost(t, tr)
	e := NewEngine(ft)

	mustInstall(t, e, target, Hook{Owner: "h2", Priority: 5, Replacement: tracing(tr, "H2")})
	mustInstall(t, e, target, Hook{Owner: "h1", Priority: 10, Replacement: tracing(tr, "H1")})

	if _, err := ft.Call(target); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	expected := []string{"H1:before", "H2:before", "original", "H2:after", "H1:after"}
	if !slices.Equal(tr.get(), expected) {
		t.Errorf("expected %v, got %v", expected, tr.get())
	}
	if calls.Load() != 1 {
		t.Errorf("expected the original to run exactly once, got %d", calls.Load())
	}
}

func TestEngine_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, _ := newHost(t, tr)
	e := NewEngine(ft)

	for _, name := range []string{"first", "second", "third"} {
		mustInstall(t, e, target, Hook{Owner: name, Replacement: tracing(tr, name)})
	}
	mustInstall(t, e, target, Hook{Owner: "low", Priority: -1, Replacement: tracing(tr, "low")})

	if _, err := ft.Call(target); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	var befores []string
	for _, s := range tr.get() {
		if len(s) > 7 && s[len(s)-7:] == ":before" {
			befores = append(befores, s[:len(s)-7])
		}
	}
	expected := []string{"first", "second", "third", "low"}
	if !slices.Equal(befores, expected) {
		t.Errorf("expected %v, got %v", expected, befores)
	}

	var owners []string
	for _, h := range e.Chain(target).Hooks() {
		owners = append(owners, h.Owner)
	}
	if !slices.Equal(owners, expected) {
		t.Errorf("expected chain %v, got %v", expected, owners)
	}
}

func TestEngine_ShortCircuitAndMutation(t *testing.T) {
	t.Parallel()

	ft, target, calls := newHost(t, nil)
	e := NewEngine(ft)

	double := mustInstall(t, e, target, Hook{Owner: "double", Priority: 1, Replacement: func(next Next, args ...any) any {
		return next(args[0].(int)*2).(int) + 1
	}})
	got, _ := ft.Call(target, 20)
	if got != 41 {
		t.Errorf("expected 41, got %v", got)
	}

	mustInstall(t, e, target, Hook{Owner: "override", Priority: 0, Replacement: func(Next, ...any) any {
		return 0
	}})
	calls.Store(0)
	got, _ = ft.Call(target, 20)
	if got != 1 {
		t.Errorf("expected 1 (override result + 1), got %v", got)
	}
	if calls.Load() != 0 {
		t.Errorf("a short-circuiting hook must skip the original, got %d calls", calls.Load())
	}

	if err := e.Remove(double); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	got, _ = ft.Call(target, 20)
	if got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestEngine_RedirectsOncePerTarget(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	p := &countingPatcher{FuncTable: ft}
	e := NewEngine(p)

	var handles []*Handle
	for i := range 5 {
		handles = append(handles, mustInstall(t, e, target, Hook{Owner: "m", Priority: i, Replacement: func(n Next, a ...any) any { return n(a...) }}))
	}
	if p.captures.Load() != 1 || p.redirects.Load() != 1 {
		t.Errorf("expected one capture and one redirect, got %d and %d", p.captures.Load(), p.redirects.Load())
	}

	for _, h := range handles[:4] {
		if err := e.Remove(h); err != nil {
			t.Fatalf("Remove() error: %v", err)
		}
	}
	if p.restores.Load() != 0 {
		t.Errorf("restore must wait for the last hook, got %d restores", p.restores.Load())
	}
	if err := e.Remove(handles[4]); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if p.restores.Load() != 1 {
		t.Errorf("expected one restore, got %d", p.restores.Load())
	}
}

func TestEngine_RemoveMidChain(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, _ := newHost(t, tr)
	e := NewEngine(ft)

	mustInstall(t, e, target, Hook{Owner: "a", Priority: 3, Replacement: tracing(tr, "A")})
	mid := mustInstall(t, e, target, Hook{Owner: "b", Priority: 2, Replacement: tracing(tr, "B")})
	mustInstall(t, e, target, Hook{Owner: "c", Priority: 1, Replacement: tracing(tr, "C")})

	if err := e.Remove(mid); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := ft.Call(target); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	expected := []string{"A:before", "C:before", "original", "C:after", "A:after"}
	if !slices.Equal(tr.get(), expected) {
		t.Errorf("expected %v, got %v", expected, tr.get())
	}
}

func TestEngine_RemovingLastHookRestoresOriginal(t *testing.T) {
	t.Parallel()

	ft, target, calls := newHost(t, nil)
	e := NewEngine(ft)

	h := mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(Next, ...any) any { return "hooked" }})
	if got, _ := ft.Call(target); got != "hooked" {
		t.Fatalf("expected hooked, got %v", got)
	}
	if !ft.Redirected(target) {
		t.Error("expected target to be redirected")
	}

	if err := e.Remove(h); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if ft.Redirected(target) {
		t.Error("expected redirect to be reverted")
	}
	if e.Chain(target) != nil {
		t.Error("expected chain to be dropped")
	}
	calls.Store(0)
	if got, _ := ft.Call(target); got != "original" || calls.Load() != 1 {
		t.Errorf("expected pristine behavior, got %v after %d calls", got, calls.Load())
	}

	// A fresh install patches again.
	mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(Next, ...any) any { return "again" }})
	if got, _ := ft.Call(target); got != "again" {
		t.Errorf("expected again, got %v", got)
	}
}

func TestEngine_DoubleRemove(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)

	keep := mustInstall(t, e, target, Hook{Owner: "keep", Replacement: func(n Next, a ...any) any { return n(a...) }})
	h := mustInstall(t, e, target, Hook{Owner: "gone", Replacement: func(n Next, a ...any) any { return n(a...) }})

	if err := e.Remove(h); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := e.Remove(h); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("expected ErrHandleNotFound, got %v", err)
	}
	if err := e.Remove(nil); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("expected ErrHandleNotFound for nil, got %v", err)
	}
	if !h.Removed() || keep.Removed() {
		t.Error("unexpected Removed() state")
	}
	if err := e.SetEnabled(h, false); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("expected ErrHandleNotFound when toggling removed handle, got %v", err)
	}
}

func TestEngine_StaleHandleAfterChainRecreated(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)

	old := mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(n Next, a ...any) any { return n(a...) }})
	if err := e.Remove(old); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(n Next, a ...any) any { return n(a...) }})

	if err := e.Remove(old); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("expected ErrHandleNotFound, got %v", err)
	}
	if e.Chain(target).Len() != 1 {
		t.Errorf("stale handle must not touch the new chain")
	}
}

func TestEngine_SetEnabled(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, _ := newHost(t, tr)
	rec := telemetry.NewRecorder()
	e := NewEngine(ft, WithSink(rec))

	a := mustInstall(t, e, target, Hook{Owner: "a", Priority: 2, Replacement: tracing(tr, "A")})
	mustInstall(t, e, target, Hook{Owner: "b", Priority: 1, Replacement: tracing(tr, "B")})

	if err := e.SetEnabled(a, false); err != nil {
		t.Fatalf("SetEnabled() error: %v", err)
	}
	if err := e.SetEnabled(a, false); err != nil {
		t.Fatalf("SetEnabled() twice error: %v", err)
	}
	if _, err := ft.Call(target); err != nil {
		t.Fatal(err)
	}
	expected := []string{"B:before", "original", "B:after"}
	if !slices.Equal(tr.get(), expected) {
		t.Errorf("expected %v, got %v", expected, tr.get())
	}
	if a.Enabled() {
		t.Error("expected handle to report disabled")
	}

	if err := e.SetEnabled(a, true); err != nil {
		t.Fatal(err)
	}
	if got := e.Chain(target).Hooks()[0]; got.Owner != "a" || !got.Enabled {
		t.Errorf("expected a re-enabled at the head of the chain, got %+v", got)
	}

	toggles := telemetry.Filter[telemetry.HookToggled](rec)
	if len(toggles) != 2 || toggles[0].Enabled || !toggles[1].Enabled {
		t.Errorf("expected one disable and one enable event, got %+v", toggles)
	}
	installs := telemetry.Filter[telemetry.HookInstalled](rec)
	if len(installs) != 2 || installs[1].ChainLen != 2 || installs[0].Target != target.Key() {
		t.Errorf("unexpected install events: %+v", installs)
	}
}

func TestEngine_InstallDisabled(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, _ := newHost(t, tr)
	rec := telemetry.NewRecorder()
	e := NewEngine(ft, WithSink(rec))

	a := mustInstall(t, e, target, Hook{Owner: "a", Priority: 2, Replacement: tracing(tr, "A"), Disabled: true})
	if a.Enabled() {
		t.Error("expected handle installed disabled to report disabled")
	}
	if _, err := ft.Call(target); err != nil {
		t.Fatal(err)
	}
	if got, want := tr.get(), []string{"original"}; !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	installs := telemetry.Filter[telemetry.HookInstalled](rec)
	if len(installs) != 1 || installs[0].Enabled {
		t.Errorf("expected one install event reporting disabled, got %+v", installs)
	}
	if n := len(telemetry.Filter[telemetry.HookToggled](rec)); n != 0 {
		t.Errorf("expected no toggle events, got %d", n)
	}

	if err := e.SetEnabled(a, true); err != nil {
		t.Fatal(err)
	}
	if got := e.Chain(target).Hooks()[0]; !got.Enabled {
		t.Errorf("expected hook enabled after SetEnabled, got %+v", got)
	}
}

func TestEngine_InFlightCallKeepsSnapshot(t *testing.T) {
	t.Parallel()

	tr := &tracer{}
	ft, target, _ := newHost(t, tr)
	e := NewEngine(ft)

	entered := make(chan struct{})
	release := make(chan struct{})
	mustInstall(t, e, target, Hook{Owner: "outer", Priority: 2, Replacement: func(next Next, args ...any) any {
		close(entered)
		<-release
		return next(args...)
	}})
	inner := mustInstall(t, e, target, Hook{Owner: "inner", Priority: 1, Replacement: tracing(tr, "inner")})

	done := make(chan any)
	go func() {
		r, _ := ft.Call(target)
		done <- r
	}()

	<-entered
	if err := e.Remove(inner); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	close(release)
	<-done

	expected := []string{"inner:before", "original", "inner:after"}
	if !slices.Equal(tr.get(), expected) {
		t.Errorf("in-flight call should finish on its snapshot: expected %v, got %v", expected, tr.get())
	}
}

func TestEngine_ConcurrentDispatchDuringRemoval(t *testing.T) {
	t.Parallel()

	ft := NewFuncTable()
	target := Sym("GameManager::update")
	if err := ft.Define(target, func(...any) any { return 0 }); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(ft)

	addOne := func(next Next, args ...any) any { return next(args...).(int) + 1 }
	const hooks = 8

	var stop atomic.Bool
	var wg sync.WaitGroup
	var bad atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				r, err := ft.Call(target)
				if err != nil {
					bad.Add(1)
					return
				}
				if n := r.(int); n < 0 || n > hooks {
					bad.Add(1)
				}
			}
		}()
	}

	for range 50 {
		handles := make([]*Handle, 0, hooks)
		for i := range hooks {
			handles = append(handles, mustInstall(t, e, target, Hook{Owner: "m", Priority: i % 3, Replacement: addOne}))
		}
		for _, h := range handles {
			if err := e.Remove(h); err != nil {
				t.Errorf("Remove() error: %v", err)
			}
		}
	}
	stop.Store(true)
	wg.Wait()

	if bad.Load() != 0 {
		t.Errorf("observed %d inconsistent dispatch results", bad.Load())
	}
	if r, _ := ft.Call(target); r != 0 {
		t.Errorf("expected pristine result 0 after all removals, got %v", r)
	}
}

func TestEngine_ConcurrentInstallRemove(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h, err := e.Install(target, Hook{Owner: "m", Replacement: func(n Next, a ...any) any { return n(a...) }})
				if err != nil {
					t.Errorf("Install() error: %v", err)
					return
				}
				if err := e.Remove(h); err != nil {
					t.Errorf("Remove() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if e.Chain(target) != nil || ft.Redirected(target) {
		t.Error("expected target restored once every hook is gone")
	}
}

func TestEngine_TargetUnpatchable(t *testing.T) {
	t.Parallel()

	ft := NewFuncTable()
	e := NewEngine(ft)

	_, err := e.Install(Sym("undefined"), Hook{Owner: "m", Replacement: func(n Next, a ...any) any { return n(a...) }})
	var tu *TargetUnpatchableError
	if !errors.As(err, &tu) || !errors.Is(err, ErrTargetUnpatchable) {
		t.Fatalf("expected TargetUnpatchableError, got %v", err)
	}
	if tu.Target.Symbol != "undefined" {
		t.Errorf("expected target in error, got %+v", tu.Target)
	}
	if e.Chain(Sym("undefined")) != nil {
		t.Error("failed install must not leave a chain behind")
	}
}

func TestEngine_ExternalModificationBeforeRestore(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)

	h := mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(Next, ...any) any { return "hooked" }})
	// Something else overwrites the entry while it is redirected.
	if err := ft.Define(target, func(...any) any { return "external" }); err != nil {
		t.Fatal(err)
	}

	err := e.Remove(h)
	if !errors.Is(err, ErrTargetUnpatchable) {
		t.Fatalf("expected ErrTargetUnpatchable, got %v", err)
	}
	if got, _ := ft.Call(target); got != "external" {
		t.Errorf("external modification must be left alone, got %v", got)
	}
	if e.Chain(target) != nil {
		t.Error("expected chain to be dropped")
	}
}

func TestEngine_InvalidInput(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)

	if _, err := e.Install(Target{}, Hook{Replacement: func(n Next, a ...any) any { return nil }}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := e.Install(target, Hook{Owner: "m"}); !errors.Is(err, ErrInvalidHook) {
		t.Errorf("expected ErrInvalidHook, got %v", err)
	}
	if _, err := e.Call(target); !errors.Is(err, ErrNotHooked) {
		t.Errorf("expected ErrNotHooked, got %v", err)
	}
}

func TestEngine_CallAndCallOriginal(t *testing.T) {
	t.Parallel()

	ft, target, _ := newHost(t, nil)
	e := NewEngine(ft)
	mustInstall(t, e, target, Hook{Owner: "m", Replacement: func(n Next, a ...any) any {
		return "wrapped:" + n(a...).(string)
	}})

	if got, _ := e.Call(target, "x"); got != "wrapped:x" {
		t.Errorf("expected wrapped:x, got %v", got)
	}
	if got, _ := e.CallOriginal(target, "x"); got != "x" {
		t.Errorf("expected x, got %v", got)
	}
	if !slices.Equal(e.Targets(), []string{target.Key()}) {
		t.Errorf("unexpected targets %v", e.Targets())
	}
}

func TestTarget_Key(t *testing.T) {
	t.Parallel()

	tests := []struct {
		target Target
		want   string
	}{
		{Target{Symbol: "MenuLayer::init"}, "MenuLayer::init"},
		{Target{Symbol: "MenuLayer::init", Convention: "thiscall"}, "MenuLayer::init@thiscall"},
		{Target{Address: 0x1f00, Convention: "cdecl"}, "0x1f00@cdecl"},
		{Target{Symbol: "s", Address: 0x10}, "s"},
		{Target{}, ""},
	}
	for _, tt := range tests {
		if got := tt.target.Key(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
	if (Target{}).String() != "<invalid target>" {
		t.Error("unexpected String() for empty target")
	}
}
