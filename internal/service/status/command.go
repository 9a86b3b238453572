// Package status reports the observed state of the slot without changing it.
package status

import (
	"context"
	"fmt"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/domain/slot"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/report"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
	"github.com/oshokin/ruls-install/internal/service/common"
)

// Options are inputs accepted by the status entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// Run loads the settings and prints the status of the real slot.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	return Print(ctx, cfg, common.SystemDependencies(cfg))
}

// Print inspects the slot and hands the result to the reporter.
func Print(ctx context.Context, cfg *config.Config, deps *common.Dependencies) error {
	ctx = logger.WithName(ctx, "status")

	state, entries, err := Inspect(deps.Filesystem, common.SlotPaths(cfg))
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Observed slot", "state", state.String())
	deps.Reporter.Status(state, entries)

	return nil
}

// Inspect describes the target and the backup.
func Inspect(fsys filesystem.Filesystem, paths slot.Paths) (slot.State, []report.Entry, error) {
	entries := make([]report.Entry, 0, 2) //nolint:mnd // Target and backup.

	for _, item := range []struct {
		role string
		path string
	}{
		{role: "target", path: paths.Target},
		{role: "backup", path: paths.Backup},
	} {
		entry, err := inspect(fsys, item.role, item.path)
		if err != nil {
			return slot.StateAbsent, nil, err
		}

		entries = append(entries, entry)
	}

	return slot.Observe(entries[0].Present, entries[1].Present), entries, nil
}

// inspect stats and checksums one path.
func inspect(fsys filesystem.Filesystem, role, path string) (report.Entry, error) {
	entry := report.Entry{Role: role, Path: path}

	present, err := filesystem.Exists(fsys, path)
	if err != nil || !present {
		return entry, err
	}

	info, err := fsys.Stat(path)
	if err != nil {
		return entry, err
	}

	checksum, err := filesystem.Checksum(fsys, path)
	if err != nil {
		return entry, fmt.Errorf("checksum %s: %w", path, err)
	}

	entry.Present = true
	entry.Mode = info.Mode().Perm()
	entry.Size = info.Size()
	entry.Checksum = checksum

	return entry, nil
}
