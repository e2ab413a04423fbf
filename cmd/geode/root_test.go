// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BomberFish/geode/internal/config"
)

type staticConfig struct {
	cfg *config.Config
	err error
}

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return s.cfg, s.err
}

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, provider ConfigProvider, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	app := NewApp(provider, &out, &errOut)
	app.mdStyle = "notty"

	root := NewRootCommand(app)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func defaults() ConfigProvider {
	return staticConfig{cfg: config.DefaultConfig()}
}

func writeMod(t *testing.T, modsDir, name, manifest string) {
	t.Helper()
	dir := filepath.Join(modsDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create mod dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mod.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

func assertExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T (%v)", err, err)
	}
	if exitErr.Code != code {
		t.Errorf("exit code = %d, want %d", exitErr.Code, code)
	}
}

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got := getVersionString(); got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestRoot_ConfigErrorFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	provider := staticConfig{err: errors.New("broken config")}
	stdout, stderr, err := execute(t, provider, "config", "show")
	if err != nil {
		t.Fatalf("config show returned error: %v", err)
	}
	if !strings.Contains(stderr, "broken config") {
		t.Errorf("expected the config error on stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "(using defaults)") || !strings.Contains(stdout, "mods") {
		t.Errorf("expected default values, got:\n%s", stdout)
	}
}

func TestConfig_InitAndPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.cue")

	stdout, _, err := execute(t, defaults(), "--config", path, "config", "path")
	if err != nil {
		t.Fatalf("config path returned error: %v", err)
	}
	if strings.TrimSpace(stdout) != path {
		t.Errorf("config path printed %q, want %q", stdout, path)
	}

	if _, _, err := execute(t, defaults(), "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the config file to exist: %v", err)
	}

	if _, _, err := execute(t, defaults(), "--config", path, "config", "init"); !errors.Is(err, config.ErrConfigExists) {
		t.Errorf("expected ErrConfigExists, got %v", err)
	}
	if _, _, err := execute(t, defaults(), "--config", path, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force returned error: %v", err)
	}
}

func TestConfig_ShowDefaults(t *testing.T) {
	t.Parallel()

	stdout, _, err := execute(t, defaults(), "config", "show", "--defaults")
	if err != nil {
		t.Fatalf("config show --defaults returned error: %v", err)
	}
	if !strings.Contains(stdout, `mods_dir: "mods"`) {
		t.Errorf("expected CUE output, got:\n%s", stdout)
	}
}
