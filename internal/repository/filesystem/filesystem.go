package filesystem

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"

	// Ensure SHA512 is registered for crypto.Hash.
	_ "crypto/sha512"
)

// DefaultChecksumFunction verifies every staged write.
const DefaultChecksumFunction crypto.Hash = crypto.SHA512

var (
	// ErrLocked is returned by Lock when another holder owns the lock.
	ErrLocked = errors.New("lock is held by another process")
	// ErrNotRegular is returned by StatRegular for directories, devices and the like.
	ErrNotRegular = errors.New("not a regular file")
	// errChecksumMismatch is returned when staged content does not match its checksum.
	errChecksumMismatch = errors.New("checksum mismatch")
	// errHashUnavailable is returned when the checksum function is not linked in.
	errHashUnavailable = errors.New("hash function unavailable")
)

// Unlock releases a lock obtained from Filesystem.Lock.
type Unlock func() error

// Filesystem is the set of operations the slot transitions need.
type Filesystem interface {
	// Stat returns file information; a missing file yields an os.ErrNotExist error.
	Stat(name string) (os.FileInfo, error)
	// Open opens name for reading.
	Open(name string) (io.ReadCloser, error)
	// Replace atomically puts content at name with the given mode after
	// verifying it against checksum. A failed Replace leaves name untouched.
	Replace(name string, content io.Reader, mode os.FileMode, checksum []byte) error
	// Rename moves oldpath onto newpath, replacing newpath.
	Rename(oldpath, newpath string) error
	// Remove deletes name.
	Remove(name string) error
	// Chmod sets the permission bits of name.
	Chmod(name string, mode os.FileMode) error
	// Lock takes the exclusive advisory lock identified by path.
	Lock(path string) (Unlock, error)
}

// Exists reports whether name is present.
func Exists(fsys Filesystem, name string) (bool, error) {
	_, err := fsys.Stat(name)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// StatRegular stats name and fails with ErrNotRegular unless it is a regular file.
func StatRegular(fsys Filesystem, name string) (os.FileInfo, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		return nil, err
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", name, ErrNotRegular)
	}

	return info, nil
}

// Checksum returns the DefaultChecksumFunction digest of name.
func Checksum(fsys Filesystem, name string) ([]byte, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	return checksumOf(file)
}

// Copy durably copies src to dst. The destination is replaced atomically and
// keeps the source permission bits unless mode is non-zero.
func Copy(fsys Filesystem, src, dst string, mode os.FileMode) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}

	if mode == 0 {
		mode = info.Mode().Perm()
	}

	file, err := fsys.Open(src)
	if err != nil {
		return err
	}

	data, err := io.ReadAll(file)
	_ = file.Close()

	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	checksum, err := checksumOf(bytes.NewReader(data))
	if err != nil {
		return err
	}

	if err = fsys.Replace(dst, bytes.NewReader(data), mode, checksum); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}

	// The umask may have narrowed the staged file.
	return fsys.Chmod(dst, mode)
}

// checksumOf hashes everything r yields.
func checksumOf(r io.Reader) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return hasher.Sum(nil), nil
}

// verifyChecksum compares data with the expected digest when one is given.
func verifyChecksum(data, expected []byte) error {
	if expected == nil {
		return nil
	}

	actual, err := checksumOf(bytes.NewReader(data))
	if err != nil {
		return err
	}

	if !bytes.Equal(actual, expected) {
		return errChecksumMismatch
	}

	return nil
}
