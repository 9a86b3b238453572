package transition

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/domain/slot"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
)

const (
	targetPath   = "/usr/local/bin/ls"
	backupPath   = "/usr/local/bin/ls.ruls-backup"
	lockPath     = "/usr/local/bin/.ls.ruls-install.lock"
	artifactPath = "/src/ruls/target/x86_64-unknown-linux-musl/release/ruls"
)

var (
	original    = []byte("original ls")
	replacement = []byte("ruls build 1")
)

// setup returns a memory filesystem holding the artifact and, optionally, a target.
func setup(t *testing.T, target []byte) (*filesystem.Memory, *Transitioner) {
	t.Helper()

	fsys := filesystem.NewMemory()
	require.NoError(t, fsys.WriteFile(artifactPath, replacement, 0o755))

	if target != nil {
		require.NoError(t, fsys.WriteFile(targetPath, target, 0o751))
	}

	return fsys, New(fsys, slot.Paths{Target: targetPath, Backup: backupPath}, lockPath)
}

// snapshot captures every file and its content.
func snapshot(t *testing.T, fsys *filesystem.Memory) map[string]string {
	t.Helper()

	files, err := fsys.Files()
	require.NoError(t, err)

	contents := make(map[string]string, len(files))

	for _, name := range files {
		data, err := fsys.ReadFile(name)
		require.NoError(t, err)

		contents[name] = string(data)
	}

	return contents
}

// requireFile asserts name holds data.
func requireFile(t *testing.T, fsys *filesystem.Memory, name string, data []byte) {
	t.Helper()

	got, err := fsys.ReadFile(name)
	require.NoError(t, err, name)
	require.Equal(t, string(data), string(got), name)
}

// requireAbsent asserts name does not exist.
func requireAbsent(t *testing.T, fsys *filesystem.Memory, name string) {
	t.Helper()

	exists, err := filesystem.Exists(fsys, name)
	require.NoError(t, err)
	require.False(t, exists, name)
}

// TestInstallOverAbsentTarget installs without creating a backup.
func TestInstallOverAbsentTarget(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)

	result, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)
	require.Equal(t, slot.StateInstalled, result.State)
	require.Equal(t, slot.OutcomeInstalled, result.Plan.Outcome)

	requireFile(t, fsys, targetPath, replacement)
	requireAbsent(t, fsys, backupPath)

	info, err := fsys.Stat(targetPath)
	require.NoError(t, err)
	require.Equal(t, slot.DefaultExecutableMode, info.Mode().Perm())
}

// TestInstallBacksUpExistingTarget keeps the previous bytes and mode.
func TestInstallBacksUpExistingTarget(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)

	result, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)
	require.Equal(t, slot.StateInstalledWithBackup, result.State)

	requireFile(t, fsys, backupPath, original)
	requireFile(t, fsys, targetPath, replacement)

	info, err := fsys.Stat(backupPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o751), info.Mode().Perm())
}

// TestUninstallRestoresBackup returns the original bytes and consumes the backup.
func TestUninstallRestoresBackup(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)

	_, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)

	result, err := tr.Uninstall(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, slot.OutcomeRestored, result.Plan.Outcome)
	require.Equal(t, slot.StateInstalled, result.State)

	requireFile(t, fsys, targetPath, original)
	requireAbsent(t, fsys, backupPath)

	info, err := fsys.Stat(targetPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o751), info.Mode().Perm())
}

// TestUninstallRemovesTargetWithoutBackup leaves nothing behind.
func TestUninstallRemovesTargetWithoutBackup(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)

	_, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)

	result, err := tr.Uninstall(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, slot.OutcomeRemoved, result.Plan.Outcome)
	require.Equal(t, slot.StateAbsent, result.State)

	requireAbsent(t, fsys, targetPath)
	requireAbsent(t, fsys, backupPath)
}

// TestUninstallAbsentIsNoop succeeds without touching anything, repeatedly.
func TestUninstallAbsentIsNoop(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)
	before := snapshot(t, fsys)

	for i := 0; i < 3; i++ {
		result, err := tr.Uninstall(context.Background(), true)
		require.NoError(t, err)
		require.True(t, result.Plan.IsNoop())
		require.Equal(t, slot.OutcomeNothingToUninstall, result.Plan.Outcome)
		require.Equal(t, before, snapshot(t, fsys))
	}
}

// TestUninstallBackupOnlyIsNoop leaves a stale backup alone.
func TestUninstallBackupOnlyIsNoop(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)
	require.NoError(t, fsys.WriteFile(backupPath, original, 0o755))

	before := snapshot(t, fsys)

	result, err := tr.Uninstall(context.Background(), true)
	require.NoError(t, err)
	require.True(t, result.Plan.StaleBackup)
	require.Equal(t, slot.OutcomeNothingToUninstall, result.Plan.Outcome)
	require.Equal(t, before, snapshot(t, fsys))
}

// TestUninstallAbsentTakesNoLock observes the slot before locking and leaves no lock file.
func TestUninstallAbsentTakesNoLock(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)

	unlock, err := fsys.Lock(lockPath)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, unlock())
	}()

	result, err := tr.Uninstall(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, slot.OutcomeNothingToUninstall, result.Plan.Outcome)
	requireAbsent(t, fsys, lockPath)
}

// TestInstallRefusesStaleBackup keeps a backup that has no target and tells how to resolve it.
func TestInstallRefusesStaleBackup(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, nil)
	require.NoError(t, fsys.WriteFile(backupPath, original, 0o755))

	before := snapshot(t, fsys)

	_, err := tr.Install(context.Background(), artifactPath, true)
	require.ErrorIs(t, err, failure.ErrStaleBackup)
	require.Contains(t, failure.Remediation(err), "mv "+backupPath+" "+targetPath)
	require.Equal(t, before, snapshot(t, fsys))

	// Restoring the backup by hand makes install possible again.
	require.NoError(t, fsys.Rename(backupPath, targetPath))

	result, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)
	require.Equal(t, slot.StateInstalledWithBackup, result.State)
	requireFile(t, fsys, backupPath, original)
}

// TestNotElevated rejects both transitions without changes.
func TestNotElevated(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)
	before := snapshot(t, fsys)

	_, err := tr.Install(context.Background(), artifactPath, false)
	require.ErrorIs(t, err, failure.ErrPrivilegeRequired)
	require.NotEmpty(t, failure.Remediation(err))

	_, err = tr.Uninstall(context.Background(), false)
	require.ErrorIs(t, err, failure.ErrPrivilegeRequired)

	require.Equal(t, before, snapshot(t, fsys))
}

// TestInstallMissingArtifactFailsClosed leaves target and backup untouched.
func TestInstallMissingArtifactFailsClosed(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)
	require.NoError(t, fsys.WriteFile(backupPath, []byte("older"), 0o755))
	require.NoError(t, fsys.Remove(artifactPath))

	before := snapshot(t, fsys)

	_, err := tr.Install(context.Background(), artifactPath, true)
	require.ErrorIs(t, err, failure.ErrArtifactMissing)
	require.True(t, failure.IsBuildFailure(err))
	require.Equal(t, before, snapshot(t, fsys))
}

// TestDoubleInstallLosesOriginal keeps only the most recent previous target.
func TestDoubleInstallLosesOriginal(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)

	_, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)

	second := []byte("ruls build 2")
	require.NoError(t, fsys.WriteFile(artifactPath, second, 0o755))

	result, err := tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)
	require.True(t, result.Plan.DiscardsBackup)

	requireFile(t, fsys, backupPath, replacement)
	requireFile(t, fsys, targetPath, second)

	_, err = tr.Uninstall(context.Background(), true)
	require.NoError(t, err)

	requireFile(t, fsys, targetPath, replacement)
}

// TestRoundTripRestoresOriginal holds for every starting content.
func TestRoundTripRestoresOriginal(t *testing.T) {
	t.Parallel()

	for _, content := range [][]byte{original, {}, []byte("\x7fELF\x00\x01")} {
		fsys, tr := setup(t, content)

		_, err := tr.Install(context.Background(), artifactPath, true)
		require.NoError(t, err)

		_, err = tr.Uninstall(context.Background(), true)
		require.NoError(t, err)

		requireFile(t, fsys, targetPath, content)
		requireAbsent(t, fsys, backupPath)
	}
}

// TestLocked refuses to run while another holder owns the lock.
func TestLocked(t *testing.T) {
	t.Parallel()

	fsys, tr := setup(t, original)

	unlock, err := fsys.Lock(lockPath)
	require.NoError(t, err)

	before := snapshot(t, fsys)

	_, err = tr.Install(context.Background(), artifactPath, true)
	require.ErrorIs(t, err, failure.ErrLocked)
	require.ErrorIs(t, err, filesystem.ErrLocked)

	_, err = tr.Uninstall(context.Background(), true)
	require.ErrorIs(t, err, failure.ErrLocked)
	require.Equal(t, before, snapshot(t, fsys))

	require.NoError(t, unlock())

	_, err = tr.Install(context.Background(), artifactPath, true)
	require.NoError(t, err)
}

// TestStepFailureStops stops at the failing step without rolling back.
func TestStepFailureStops(t *testing.T) {
	t.Parallel()

	fsys, _ := setup(t, original)
	broken := &failingReplace{Memory: fsys}
	tr := New(broken, slot.Paths{Target: targetPath, Backup: backupPath}, lockPath)

	var sink bytes.Buffer

	ctx := logger.ToContext(context.Background(), logger.NewWithSink(&sink, zapcore.DebugLevel))

	_, err := tr.Install(ctx, artifactPath, true)
	require.ErrorIs(t, err, errDiskFull)
	require.Contains(t, sink.String(), "Step failed, stopping")
	require.Contains(t, sink.String(), "replace "+targetPath)

	requireFile(t, fsys, backupPath, original)
	requireFile(t, fsys, targetPath, original)
}

var errDiskFull = errors.New("no space left on device")

// failingReplace fails every write to the target.
type failingReplace struct {
	*filesystem.Memory
}

// Replace implements filesystem.Filesystem.
func (f *failingReplace) Replace(name string, content io.Reader, mode os.FileMode, checksum []byte) error {
	if name == targetPath {
		return errDiskFull
	}

	return f.Memory.Replace(name, content, mode, checksum)
}
