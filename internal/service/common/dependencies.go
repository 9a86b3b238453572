//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/domain/slot"
	"github.com/oshokin/ruls-install/internal/identity"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/report"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
	"github.com/oshokin/ruls-install/internal/runner"
	"github.com/oshokin/ruls-install/internal/service/transition"
)

// CommandName is how operators invoke the installer.
const CommandName = "ruls-install"

// Dependencies are the collaborators of a service run.
type Dependencies struct {
	// Filesystem holds the slot and the artifact.
	Filesystem filesystem.Filesystem
	// Identity is resolved once per run.
	Identity *identity.Identity
	// Runner executes toolchain commands as the invoking user.
	Runner runner.Runner
	// Reporter prints outcomes.
	Reporter *report.Reporter
}

// SystemDependencies wires the real filesystem, identity and runner.
func SystemDependencies(cfg *config.Config) *Dependencies {
	id := identity.Resolve(identity.SystemEnvironment())

	return &Dependencies{
		Filesystem: filesystem.NewOS(),
		Identity:   id,
		Runner: runner.New(id,
			runner.WithUserPath(cfg.Toolchain.UserPath...),
			runner.WithSystemPath(cfg.SystemPath...),
		),
		Reporter: report.New(os.Stdout, os.Stderr, CommandName),
	}
}

// SlotPaths returns the configured target and backup.
func SlotPaths(cfg *config.Config) slot.Paths {
	return slot.Paths{
		Target: cfg.TargetPath,
		Backup: cfg.BackupPath,
	}
}

// Transitioner returns a transitioner for the configured slot and whether it
// may mutate. In a dry run it works on an in-memory copy of the slot and of
// the extra paths, and the elevation check is waived.
func Transitioner(
	ctx context.Context,
	cfg *config.Config,
	deps *Dependencies,
	dryRun bool,
	extra ...string,
) (*transition.Transitioner, bool, error) {
	paths := SlotPaths(cfg)

	actor := DetectActor(deps.Identity)
	logger.InfoKV(ctx, "Preparing transition", append(actor.KV(), "dry_run", dryRun)...)

	if !dryRun {
		return transition.New(deps.Filesystem, paths, cfg.LockPath), deps.Identity.Elevated, nil
	}

	snapshot, err := filesystem.Snapshot(deps.Filesystem, append([]string{paths.Target, paths.Backup}, extra...)...)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot slot: %w", err)
	}

	return transition.New(snapshot, paths, cfg.LockPath), true, nil
}
