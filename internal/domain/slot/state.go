package slot

import (
	"fmt"
	"os"
)

// DefaultExecutableMode is applied to the target after installation.
const DefaultExecutableMode os.FileMode = 0o755

// Paths are the fixed locations of the managed slot.
type Paths struct {
	// Target is the InstallTarget path.
	Target string
	// Backup is the BackupSlot path.
	Backup string
}

// State is the observed condition of the target and backup paths.
type State int

const (
	// StateAbsent means neither the target nor a backup exists.
	StateAbsent State = iota
	// StateInstalled means the target exists without a backup. The target may
	// hold the original tool or a replacement installed over nothing.
	StateInstalled
	// StateInstalledWithBackup means a replacement is installed and the
	// previous content sits in the backup slot.
	StateInstalledWithBackup
	// StateBackupOnly means a backup exists but the target is gone.
	StateBackupOnly
)

// Observe derives the State from the presence of both paths.
func Observe(targetPresent, backupPresent bool) State {
	switch {
	case targetPresent && backupPresent:
		return StateInstalledWithBackup
	case targetPresent:
		return StateInstalled
	case backupPresent:
		return StateBackupOnly
	default:
		return StateAbsent
	}
}

// HasTarget reports whether the target path is occupied in this state.
func (s State) HasTarget() bool {
	return s == StateInstalled || s == StateInstalledWithBackup
}

// HasBackup reports whether the backup slot is occupied in this state.
func (s State) HasBackup() bool {
	return s == StateInstalledWithBackup || s == StateBackupOnly
}

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInstalled:
		return "installed"
	case StateInstalledWithBackup:
		return "installed-with-backup"
	case StateBackupOnly:
		return "backup-only"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the user-visible result of a transition.
type Outcome int

const (
	// OutcomeInstalled means the artifact now occupies the target.
	OutcomeInstalled Outcome = iota
	// OutcomeRestored means the backup was moved back onto the target.
	OutcomeRestored
	// OutcomeRemoved means the target was deleted because no backup existed.
	OutcomeRemoved
	// OutcomeNothingToUninstall means uninstall found no target.
	OutcomeNothingToUninstall
	// OutcomeRefused means the transition was blocked and nothing changed.
	OutcomeRefused
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeInstalled:
		return "installed"
	case OutcomeRestored:
		return "restored"
	case OutcomeRemoved:
		return "removed"
	case OutcomeNothingToUninstall:
		return "nothing-to-uninstall"
	case OutcomeRefused:
		return "refused"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}
