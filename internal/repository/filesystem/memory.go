package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// dirMode is used for parent directories created in memory.
const dirMode os.FileMode = 0o755

// Memory is a Filesystem held entirely in memory.
type Memory struct {
	// fs stores the file tree.
	fs afero.Fs
	// mu guards locks.
	mu sync.Mutex
	// locks tracks which lock paths are held.
	locks map[string]struct{}
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{
		fs:    afero.NewMemMapFs(),
		locks: make(map[string]struct{}),
	}
}

// Snapshot copies the listed paths that exist on src into a new Memory,
// keeping their permission bits.
func Snapshot(src Filesystem, paths ...string) (*Memory, error) {
	mem := NewMemory()

	for _, name := range paths {
		info, err := src.Stat(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}

		if err != nil {
			return nil, err
		}

		file, err := src.Open(name)
		if err != nil {
			return nil, err
		}

		data, err := io.ReadAll(file)
		_ = file.Close()

		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", name, err)
		}

		if err = mem.WriteFile(name, data, info.Mode().Perm()); err != nil {
			return nil, err
		}
	}

	return mem, nil
}

// WriteFile stores data at name, creating parent directories.
func (m *Memory) WriteFile(name string, data []byte, mode os.FileMode) error {
	name = filepath.Clean(name)

	if err := m.fs.MkdirAll(filepath.Dir(name), dirMode); err != nil {
		return err
	}

	if err := afero.WriteFile(m.fs, name, data, mode); err != nil {
		return err
	}

	return m.fs.Chmod(name, mode)
}

// ReadFile returns the contents of name.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(m.fs, filepath.Clean(name))
}

// Stat implements Filesystem.
func (m *Memory) Stat(name string) (os.FileInfo, error) {
	return m.fs.Stat(filepath.Clean(name))
}

// Open implements Filesystem.
func (m *Memory) Open(name string) (io.ReadCloser, error) {
	return m.fs.Open(filepath.Clean(name))
}

// Replace stages content in a temporary file beside name and renames it into place.
func (m *Memory) Replace(name string, content io.Reader, mode os.FileMode, checksum []byte) error {
	name = filepath.Clean(name)

	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	if err = verifyChecksum(data, checksum); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}

	dir := filepath.Dir(name)
	if err = m.fs.MkdirAll(dir, dirMode); err != nil {
		return err
	}

	staged, err := afero.TempFile(m.fs, dir, "."+filepath.Base(name)+".new-*")
	if err != nil {
		return err
	}

	stagedName := filepath.Clean(staged.Name())

	if _, err = io.Copy(staged, bytes.NewReader(data)); err != nil {
		_ = staged.Close()
		_ = m.fs.Remove(stagedName)

		return err
	}

	if err = staged.Close(); err != nil {
		_ = m.fs.Remove(stagedName)
		return err
	}

	if err = m.fs.Chmod(stagedName, mode); err != nil {
		_ = m.fs.Remove(stagedName)
		return err
	}

	return m.fs.Rename(stagedName, name)
}

// Rename implements Filesystem.
func (m *Memory) Rename(oldpath, newpath string) error {
	return m.fs.Rename(filepath.Clean(oldpath), filepath.Clean(newpath))
}

// Remove implements Filesystem.
func (m *Memory) Remove(name string) error {
	return m.fs.Remove(filepath.Clean(name))
}

// Chmod implements Filesystem.
func (m *Memory) Chmod(name string, mode os.FileMode) error {
	return m.fs.Chmod(filepath.Clean(name), mode)
}

// Lock implements Filesystem with an in-process lock table.
func (m *Memory) Lock(path string) (Unlock, error) {
	path = filepath.Clean(path)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[path]; held {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	m.locks[path] = struct{}{}

	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()

		delete(m.locks, path)

		return nil
	}, nil
}

// Files lists every regular file path, for tests and dry-run reports.
func (m *Memory) Files() ([]string, error) {
	var files []string

	err := afero.Walk(m.fs, string(filepath.Separator), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}
