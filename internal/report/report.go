// Package report prints operator-facing messages: what happened and which
// command to run next.
package report

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"

	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/domain/slot"
)

// shortChecksumLength is the number of hex digits shown for a checksum.
const shortChecksumLength = 16

// Entry describes one slot path for the status report.
type Entry struct {
	// Role is "target" or "backup".
	Role string
	// Path is the location on disk.
	Path string
	// Present reports whether the path exists.
	Present bool
	// Mode is the permission bits when present.
	Mode os.FileMode
	// Size is the file size in bytes when present.
	Size int64
	// Checksum is the SHA-512 digest when present.
	Checksum []byte
}

// Reporter writes messages to an output and an error stream.
type Reporter struct {
	// out receives outcomes and plans.
	out io.Writer
	// errOut receives failures and warnings.
	errOut io.Writer
	// command is how the operator invokes the installer.
	command string
}

// New creates a Reporter. command is used in follow-up instructions.
func New(out, errOut io.Writer, command string) *Reporter {
	return &Reporter{
		out:     out,
		errOut:  errOut,
		command: command,
	}
}

// DryRun prints a plan that was executed against a copy of the slot and the
// state it led to.
func (r *Reporter) DryRun(plan slot.Plan, state slot.State) {
	fmt.Fprintln(r.out, color.Info.Sprint("Dry run: nothing on disk was changed."))
	fmt.Fprint(r.out, plan.Describe())
	fmt.Fprintf(r.out, "resulting state: %s\n", state)
}

// Outcome prints the result of a transition and the next available action.
func (r *Reporter) Outcome(plan slot.Plan, state slot.State) {
	paths := plan.Paths

	switch plan.Outcome {
	case slot.OutcomeInstalled:
		fmt.Fprintln(r.out, color.Success.Sprintf("Installed %s.", paths.Target))

		if state.HasBackup() {
			fmt.Fprintf(r.out, "The previous version is kept at %s.\n", paths.Backup)
		}

		fmt.Fprintf(r.out, "To roll back, run: sudo %s uninstall\n", r.command)
	case slot.OutcomeRestored:
		fmt.Fprintln(r.out, color.Success.Sprintf("Restored %s from %s.", paths.Target, paths.Backup))
	case slot.OutcomeRemoved:
		fmt.Fprintln(r.out, color.Success.Sprintf("Removed %s.", paths.Target))
		fmt.Fprintln(r.out, "No backup existed, so nothing was restored.")
	case slot.OutcomeNothingToUninstall:
		fmt.Fprintln(r.out, color.Info.Sprintf("Nothing to uninstall: %s is not present.", paths.Target))
	}

	if plan.DiscardsBackup {
		fmt.Fprintln(r.errOut, color.Warn.Sprintf(
			"Warning: the backup at %s was replaced; the version it held before is gone.", paths.Backup))
	}

	if plan.StaleBackup {
		fmt.Fprintln(r.errOut, color.Warn.Sprintf(
			"Warning: %s holds a backup but %s is missing; move it back by hand if you need it.",
			paths.Backup, paths.Target))
	}
}

// Failure prints err and its remediation.
func (r *Reporter) Failure(err error) {
	fmt.Fprintln(r.errOut, color.Error.Sprintf("Error: %v", err))

	if failure.IsBuildFailure(err) {
		fmt.Fprintln(r.errOut, "Nothing was installed; the target and its backup are unchanged.")
	}

	if remediation := failure.Remediation(err); remediation != "" {
		fmt.Fprintf(r.errOut, "Next step: %s\n", color.Bold.Sprint(remediation))
	}
}

// Status prints the observed state and every slot path.
func (r *Reporter) Status(state slot.State, entries []Entry) {
	fmt.Fprintf(r.out, "state: %s\n", color.Bold.Sprint(state))

	for _, entry := range entries {
		if !entry.Present {
			fmt.Fprintf(r.out, "%-7s %s (absent)\n", entry.Role, entry.Path)
			continue
		}

		fmt.Fprintf(r.out, "%-7s %s %#o %d bytes sha512:%s\n",
			entry.Role, entry.Path, uint32(entry.Mode.Perm()), entry.Size, ShortChecksum(entry.Checksum))
	}

	if state == slot.StateBackupOnly {
		fmt.Fprintln(r.out, color.Warn.Sprint("The backup has no installed target next to it."))
	}
}

// ShortChecksum renders the leading hex digits of a checksum.
func ShortChecksum(sum []byte) string {
	encoded := hex.EncodeToString(sum)
	if len(encoded) > shortChecksumLength {
		encoded = encoded[:shortChecksumLength]
	}

	return encoded
}
