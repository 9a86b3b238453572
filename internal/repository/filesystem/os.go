package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
)

// OS is the Filesystem backed by the host operating system.
type OS struct{}

// NewOS returns the host filesystem.
func NewOS() *OS {
	return &OS{}
}

// Stat implements Filesystem.
func (*OS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(filepath.Clean(name))
}

// Open implements Filesystem.
func (*OS) Open(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Clean(name))
}

// Replace stages content in a unique file next to name and renames it over
// name in a single rename(2), so name is never observed missing.
// go-update writes the staging file and verifies the checksum before the
// rename; on any failure the staging file is removed and name is untouched.
func (*OS) Replace(name string, content io.Reader, mode os.FileMode, checksum []byte) error {
	name = filepath.Clean(name)
	dir := filepath.Dir(name)

	stage, err := os.CreateTemp(dir, "."+filepath.Base(name)+".stage-*")
	if err != nil {
		return fmt.Errorf("create staging file for %s: %w", name, err)
	}

	stagePath := stage.Name()
	if err = stage.Close(); err != nil {
		_ = os.Remove(stagePath)
		return err
	}

	options := goupdate.Options{
		TargetPath: stagePath,
		TargetMode: mode,
		Checksum:   checksum,
		Hash:       DefaultChecksumFunction,
	}

	if err = goupdate.Apply(content, options); err != nil {
		_ = os.Remove(stagePath)
		return fmt.Errorf("stage %s: %w", name, err)
	}

	if err = syncFile(stagePath); err != nil {
		_ = os.Remove(stagePath)
		return err
	}

	if err = os.Rename(stagePath, name); err != nil {
		_ = os.Remove(stagePath)
		return fmt.Errorf("rename staged %s: %w", name, err)
	}

	return syncFile(dir)
}

// Rename implements Filesystem.
func (*OS) Rename(oldpath, newpath string) error {
	return os.Rename(filepath.Clean(oldpath), filepath.Clean(newpath))
}

// Remove implements Filesystem.
func (*OS) Remove(name string) error {
	return os.Remove(filepath.Clean(name))
}

// Chmod implements Filesystem.
func (*OS) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(filepath.Clean(name), mode)
}

// Lock implements Filesystem with flock(2) on path.
func (*OS) Lock(path string) (Unlock, error) {
	return lockFile(filepath.Clean(path))
}

// syncFile flushes name, a file or a directory, to stable storage.
func syncFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}

	if err = file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}

	return file.Close()
}
