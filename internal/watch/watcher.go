// SPDX-License-Identifier: MPL-2.0

// Package watch reports changes to mod manifests under a mods directory.
//
// Events are filtered through doublestar patterns and coalesced: the callback
// fires once per quiet period with every path that changed during it, and
// never runs twice at the same time.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is not set.
const DefaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: already running")

var (
	// defaultPatterns select the manifest of every immediate subdirectory.
	defaultPatterns = []string{"*/mod.{cue,json,toml}"}

	defaultIgnores = []string{
		".*/**",
		"**/.git/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Config configures a Watcher.
	Config struct {
		// Dir is the mods directory. Defaults to the working directory.
		Dir string
		// Patterns select the paths, relative to Dir, that trigger OnChange.
		// Defaults to the manifests of Dir's subdirectories.
		Patterns []string
		// Ignore adds to the built-in ignore patterns.
		Ignore   []string
		Debounce time.Duration
		// OnChange receives the sorted, deduplicated paths that changed.
		OnChange func(ctx context.Context, changed []string) error
		// Logger defaults to a logger that discards everything.
		Logger *log.Logger
	}

	// Watcher watches a mods directory. Run may be called once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		dir      string
		patterns []string
		ignores  []string
		log      *log.Logger
		started  atomic.Bool
	}

	// batch collects changed paths until the quiet period ends.
	batch struct {
		mu      sync.Mutex
		pending map[string]struct{}
		timer   *time.Timer
		delay   time.Duration
		fire    func(changed []string)
		busy    atomic.Bool
	}
)

// DefaultPatterns returns the patterns used when Config.Patterns is empty.
func DefaultPatterns() []string { return slices.Clone(defaultPatterns) }

// DefaultIgnores returns the built-in ignore patterns.
func DefaultIgnores() []string { return slices.Clone(defaultIgnores) }

// Validate checks every pattern of c.
func (c Config) Validate() error {
	var errs []error
	for _, p := range c.Patterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("watch: invalid pattern %q", p))
		}
	}
	for _, p := range c.Ignore {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("watch: invalid ignore pattern %q", p))
		}
	}
	return errors.Join(errs...)
}

// New validates cfg and registers Dir and its subdirectories with fsnotify.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", dir, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		dir:      abs,
		patterns: patterns,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		log:      logger.WithPrefix("watch"),
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Dir returns the absolute directory being watched.
func (w *Watcher) Dir() string { return w.dir }

// Run processes events until ctx is done. It returns nil on cancellation and an
// error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("close failed", "err", err)
		}
	}()

	b := &batch{
		pending: make(map[string]struct{}),
		delay:   w.cfg.Debounce,
		fire: func(changed []string) {
			if ctx.Err() != nil || w.cfg.OnChange == nil {
				return
			}
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.log.Error("reload failed", "err", err)
			}
		},
	}
	defer b.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			w.handle(b, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(b *batch, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.dir, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return
	}
	// New mod directories have to be watched before their manifest shows up.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("cannot watch new directory", "dir", rel, "err", err)
			}
		}
	}
	if !w.matches(rel) {
		return
	}
	w.log.Debug("change", "path", rel, "op", ev.Op.String())
	b.add(rel)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("skipping unreadable path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) matches(rel string) bool {
	return matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// add records path and restarts the quiet period.
func (b *batch) add(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[path] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.delay, b.flush)
		return
	}
	b.timer.Reset(b.delay)
}

// flush runs on the timer goroutine. If the previous flush is still running,
// the batch waits another period instead of running twice.
func (b *batch) flush() {
	if !b.busy.CompareAndSwap(false, true) {
		b.mu.Lock()
		b.timer.Reset(b.delay)
		b.mu.Unlock()
		return
	}
	defer b.busy.Store(false)

	b.mu.Lock()
	changed := slices.Sorted(maps.Keys(b.pending))
	clear(b.pending)
	b.mu.Unlock()
	if len(changed) > 0 {
		b.fire(changed)
	}
}

func (b *batch) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
