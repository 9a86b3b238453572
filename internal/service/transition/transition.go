package transition

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/domain/slot"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
)

const (
	// elevationRemediation is shown when a transition runs without root.
	elevationRemediation = "re-run the same command with sudo"
	// lockedRemediation is shown when another run holds the lock.
	lockedRemediation = "wait for the other installer run to finish, then try again"
	// artifactRemediation is shown when the artifact is not a regular file.
	artifactRemediation = "build the artifact again, or pass the path of the built binary to `ruls-install apply`"
)

var (
	// errNotElevated is the cause attached to PrivilegeRequired failures.
	errNotElevated = errors.New("the effective user is not root")
	// errVerificationFailed is returned when the installed target differs from the artifact.
	errVerificationFailed = errors.New("installed target does not match the artifact")
	// errBlocked is returned when the plan refuses to run from the observed state.
	errBlocked = errors.New("transition blocked")
)

// RequireElevation fails with PrivilegeRequired unless elevated is set.
func RequireElevation(elevated bool) error {
	if !elevated {
		return failure.New(failure.ErrPrivilegeRequired, errNotElevated, elevationRemediation)
	}

	return nil
}

// Result describes a completed transition.
type Result struct {
	// Plan is what was executed.
	Plan slot.Plan
	// State is observed after execution.
	State slot.State
}

// Transitioner owns the target and backup paths on one filesystem.
type Transitioner struct {
	// fs is where the slot lives.
	fs filesystem.Filesystem
	// paths locate the slot.
	paths slot.Paths
	// lockPath serializes transitions.
	lockPath string
}

// New creates a Transitioner.
func New(fsys filesystem.Filesystem, paths slot.Paths, lockPath string) *Transitioner {
	return &Transitioner{
		fs:       fsys,
		paths:    paths,
		lockPath: lockPath,
	}
}

// Observe reads the current slot state without taking the lock.
func (t *Transitioner) Observe() (slot.State, error) {
	target, err := filesystem.Exists(t.fs, t.paths.Target)
	if err != nil {
		return slot.StateAbsent, fmt.Errorf("stat target: %w", err)
	}

	backup, err := filesystem.Exists(t.fs, t.paths.Backup)
	if err != nil {
		return slot.StateAbsent, fmt.Errorf("stat backup: %w", err)
	}

	return slot.Observe(target, backup), nil
}

// Install backs up the current target and replaces it with artifact.
// elevated must report whether the caller runs as root.
func (t *Transitioner) Install(ctx context.Context, artifact string, elevated bool) (*Result, error) {
	ctx = logger.WithName(ctx, "install")

	if err := RequireElevation(elevated); err != nil {
		return nil, err
	}

	if _, err := filesystem.StatRegular(t.fs, artifact); err != nil {
		return nil, failure.New(failure.ErrArtifactMissing, err, artifactRemediation)
	}

	// Compared with the target once every step ran.
	artifactChecksum, err := filesystem.Checksum(t.fs, artifact)
	if err != nil {
		return nil, fmt.Errorf("checksum artifact: %w", err)
	}

	return t.transition(ctx, func(from slot.State) slot.Plan {
		return slot.PlanInstall(t.paths, from, artifact)
	}, func() error {
		return t.verify(artifactChecksum)
	})
}

// Uninstall restores the backup onto the target, or removes the target when
// there is no backup. Without a target it does nothing and leaves no lock file.
func (t *Transitioner) Uninstall(ctx context.Context, elevated bool) (*Result, error) {
	ctx = logger.WithName(ctx, "uninstall")

	if err := RequireElevation(elevated); err != nil {
		return nil, err
	}

	// The target directory may not even exist; taking the lock would create it.
	from, err := t.Observe()
	if err != nil {
		return nil, err
	}

	if !from.HasTarget() {
		logger.InfoKV(ctx, "Nothing to uninstall", "target", t.paths.Target, "state", from.String())

		return &Result{Plan: slot.PlanUninstall(t.paths, from), State: from}, nil
	}

	return t.transition(ctx, func(from slot.State) slot.Plan {
		return slot.PlanUninstall(t.paths, from)
	}, nil)
}

// transition runs a plan under the lock.
func (t *Transitioner) transition(
	ctx context.Context,
	planFor func(slot.State) slot.Plan,
	verify func() error,
) (*Result, error) {
	unlock, err := t.fs.Lock(t.lockPath)
	if err != nil {
		if errors.Is(err, filesystem.ErrLocked) {
			return nil, failure.New(failure.ErrLocked, err, lockedRemediation)
		}

		return nil, fmt.Errorf("take lock %s: %w", t.lockPath, err)
	}

	defer func() {
		if unlockErr := unlock(); unlockErr != nil {
			logger.WarnKV(ctx, "Failed to release lock", "path", t.lockPath, "error", unlockErr)
		}
	}()

	from, err := t.Observe()
	if err != nil {
		return nil, err
	}

	plan := planFor(from)

	ctx = logger.WithKV(ctx, "target", t.paths.Target)
	logger.InfoKV(ctx, "Planned transition", "from", from.String(), "to", plan.To.String(), "steps", len(plan.Actions))

	if plan.DiscardsBackup {
		logger.WarnKV(ctx, "Existing backup will be overwritten with the current target", "backup", t.paths.Backup)
	}

	if plan.Blocked {
		return nil, failure.New(failure.ErrStaleBackup,
			fmt.Errorf("%s: %w", t.paths.Backup, errBlocked),
			fmt.Sprintf("restore it with: mv %s %s, or delete it with: rm %s",
				t.paths.Backup, t.paths.Target, t.paths.Backup))
	}

	if plan.StaleBackup {
		logger.WarnKV(ctx, "Backup exists without an installed target", "backup", t.paths.Backup)
	}

	if err = t.execute(ctx, plan); err != nil {
		return nil, err
	}

	if verify != nil {
		if err = verify(); err != nil {
			return nil, err
		}
	}

	state, err := t.Observe()
	if err != nil {
		return nil, err
	}

	return &Result{Plan: plan, State: state}, nil
}

// execute runs the plan's actions in order and stops at the first failure.
func (t *Transitioner) execute(ctx context.Context, plan slot.Plan) error {
	for _, action := range plan.Actions {
		logger.InfoKV(ctx, "Executing step", "step", action.String())

		var err error

		switch action.Kind {
		case slot.ActionBackup:
			err = filesystem.Copy(t.fs, action.Source, action.Destination, 0)
		case slot.ActionReplace:
			err = filesystem.Copy(t.fs, action.Source, action.Destination, slot.DefaultExecutableMode)
		case slot.ActionChmod:
			err = t.fs.Chmod(action.Destination, action.Mode)
		case slot.ActionRestore:
			err = t.fs.Rename(action.Source, action.Destination)
		case slot.ActionRemove:
			err = t.fs.Remove(action.Destination)
		default:
			err = fmt.Errorf("unknown action %s", action.Kind)
		}

		if err != nil {
			logger.ErrorKV(ctx, "Step failed, stopping", "step", action.String(), "error", err)

			return fmt.Errorf("%s: %w", action, err)
		}
	}

	return nil
}

// verify compares the installed target with the artifact checksum.
func (t *Transitioner) verify(expected []byte) error {
	actual, err := filesystem.Checksum(t.fs, t.paths.Target)
	if err != nil {
		return fmt.Errorf("checksum target: %w", err)
	}

	if !bytes.Equal(actual, expected) {
		return fmt.Errorf("%s: %w", t.paths.Target, errVerificationFailed)
	}

	return nil
}
