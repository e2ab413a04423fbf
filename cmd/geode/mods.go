// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/BomberFish/geode/internal/config"
	"github.com/BomberFish/geode/internal/issue"
	"github.com/BomberFish/geode/pkg/loader"
	"github.com/BomberFish/geode/pkg/modinfo"
	"github.com/BomberFish/geode/pkg/version"
)

// loaderVersion is the version the internal loader mod reports.
var loaderVersion = version.New(1, 0, 0)

// settings returns the loaded configuration, or the defaults when the root command
// did not run (tests that call handlers directly).
func (a *App) settings() *config.Config {
	if a.cfg == nil {
		return config.DefaultConfig()
	}
	return a.cfg
}

// modsDir returns the directory argument, or the configured mods_dir.
func (a *App) modsDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return a.settings().ModsDir
}

// newOrchestrator creates an orchestrator that logs through the CLI logger and
// honors disabled_mods.
func (a *App) newOrchestrator() *loader.Orchestrator {
	return loader.New(loader.Options{
		Sink:     a.sink(),
		Version:  loaderVersion,
		Disabled: a.settings().DisabledMods,
	})
}

// discoverMods parses every manifest in dir. Manifests that fail to parse are
// returned as problems next to the descriptors that did parse; err is only set
// when dir itself cannot be read.
func discoverMods(dir string) (descs []*modinfo.Descriptor, problems []error, err error) {
	info, statErr := os.Stat(dir)
	if statErr != nil || !info.IsDir() {
		return nil, nil, issue.Explain(fmt.Errorf("%w: %s", issue.ErrModsDirNotFound, dir), "discover mods", dir)
	}

	descs, err = modinfo.Discover(dir)
	if err != nil {
		problems = splitJoined(err)
	}
	return descs, problems, nil
}

// splitJoined flattens an errors.Join result.
func splitJoined(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
