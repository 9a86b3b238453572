package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mitchellh/go-ps"
	"golang.org/x/sys/unix"
)

// lockFileMode restricts the lock file to its owner.
const lockFileMode os.FileMode = 0o600

// lockFile takes a non-blocking exclusive flock on path and records our PID in it.
func lockFile(path string) (Unlock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFileMode)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	fd := int(file.Fd()) //nolint:gosec // File descriptors fit in int.

	if err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := describeHolder(file)
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s held by %s: %w", path, holder, ErrLocked)
		}

		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	if err = writePID(file); err != nil {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = file.Close()

		return nil, err
	}

	// The file itself is never removed: unlinking a lock file lets a
	// concurrent run lock a fresh inode.
	return func() error {
		_ = file.Truncate(0)

		if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
			_ = file.Close()
			return fmt.Errorf("unlock %s: %w", path, err)
		}

		return file.Close()
	}, nil
}

// writePID replaces the lock file contents with the current PID.
func writePID(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}

	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	return file.Sync()
}

// describeHolder names the process recorded in the lock file.
func describeHolder(file *os.File) string {
	contents, err := io.ReadAll(io.NewSectionReader(file, 0, 64))
	if err != nil {
		return "an unknown process"
	}

	pid, err := strconv.Atoi(string(bytes.TrimSpace(contents)))
	if err != nil || pid <= 0 {
		return "an unknown process"
	}

	process, err := ps.FindProcess(pid)
	if err != nil || process == nil {
		return fmt.Sprintf("pid %d", pid)
	}

	return fmt.Sprintf("pid %d (%s)", pid, process.Executable())
}
