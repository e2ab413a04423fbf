// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func start(t *testing.T, w *Watcher) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancellation")
		}
	}
}

func TestWatcher_CoalescesManifestChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "core", "mod.json"), "{}")
	writeFile(t, filepath.Join(dir, "api", "mod.cue"), "")

	var (
		mu    sync.Mutex
		calls [][]string
	)
	fired := make(chan struct{}, 10)
	w, err := New(Config{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			calls = append(calls, changed)
			mu.Unlock()
			fired <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := start(t, w)

	writeFile(t, filepath.Join(dir, "core", "mod.json"), `{"id":"core"}`)
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "api", "mod.cue"), `id: "api"`)
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "core", "notes.txt"), "not a manifest")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(250 * time.Millisecond)
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected 1 callback, got %d: %v", len(calls), calls)
	}
	want := []string{"api/mod.cue", "core/mod.json"}
	if !slices.Equal(calls[0], want) {
		t.Errorf("expected changed %v, got %v", want, calls[0])
	}
}

func TestWatcher_PicksUpNewModDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fired := make(chan []string, 10)
	w, err := New(Config{
		Dir:      dir,
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := start(t, w)
	defer stop()

	if err := os.Mkdir(filepath.Join(dir, "fresh"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the watcher time to register the new directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "fresh", "mod.toml"), `id = "fresh"`)

	select {
	case changed := <-fired:
		if !slices.Contains(changed, "fresh/mod.toml") {
			t.Errorf("expected fresh/mod.toml in %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_IgnoresHiddenAndUserPatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".cache", "mod.json"), "{}")
	writeFile(t, filepath.Join(dir, "draft", "mod.json"), "{}")
	writeFile(t, filepath.Join(dir, "real", "mod.json"), "{}")

	fired := make(chan []string, 10)
	w, err := New(Config{
		Dir:      dir,
		Ignore:   []string{"draft/**"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := start(t, w)
	defer stop()

	writeFile(t, filepath.Join(dir, ".cache", "mod.json"), `{"id":"x"}`)
	writeFile(t, filepath.Join(dir, "draft", "mod.json"), `{"id":"x"}`)
	time.Sleep(200 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "real", "mod.json"), `{"id":"real"}`)

	select {
	case changed := <-fired:
		if !slices.Equal(changed, []string{"real/mod.json"}) {
			t.Errorf("expected only real/mod.json, got %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	stop := start(t, w)
	defer stop()
	time.Sleep(20 * time.Millisecond)

	if err := w.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "zero value", cfg: Config{}},
		{name: "valid patterns", cfg: Config{Patterns: []string{"**/mod.json"}, Ignore: []string{"old/**"}}},
		{name: "bad pattern", cfg: Config{Patterns: []string{"[unclosed"}}, wantErr: true},
		{name: "bad ignore", cfg: Config{Ignore: []string{"mods/["}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := New(Config{Dir: t.TempDir(), Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("expected New to reject an invalid pattern")
	}
}

func TestMatching(t *testing.T) {
	t.Parallel()

	w := &Watcher{patterns: defaultPatterns, ignores: defaultIgnores}
	tests := []struct {
		path    string
		matches bool
		ignored bool
	}{
		{path: "core/mod.json", matches: true},
		{path: "core/mod.cue", matches: true},
		{path: "core/mod.toml", matches: true},
		{path: "core/mod.yaml"},
		{path: "mod.json"},
		{path: "core/nested/mod.json"},
		{path: ".hidden/mod.json", matches: true, ignored: true},
		{path: "core/.git/config", ignored: true},
		{path: "core/mod.json.swp", ignored: true},
		{path: "core/mod.json~", ignored: true},
	}
	for _, tt := range tests {
		if got := w.matches(tt.path); got != tt.matches {
			t.Errorf("matches(%q) = %v, want %v", tt.path, got, tt.matches)
		}
		if got := w.ignored(tt.path); got != tt.ignored {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
		}
	}

	if got := DefaultPatterns(); !slices.Equal(got, defaultPatterns) {
		t.Errorf("expected %v, got %v", defaultPatterns, got)
	}
}
