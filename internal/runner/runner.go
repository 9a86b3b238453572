package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/oshokin/ruls-install/internal/identity"
	"github.com/oshokin/ruls-install/internal/logger"
)

// waitDelay bounds how long Wait blocks on output pipes after the group was killed.
const waitDelay = 5 * time.Second

// passthroughVariables are copied into a dropped environment when set.
var passthroughVariables = []string{"LANG", "LC_ALL", "TERM"}

// ErrNotFound is returned when the executable is not in any search directory.
var ErrNotFound = errors.New("executable file not found")

// Command describes one child process.
type Command struct {
	// Name is the executable, resolved against the search path unless it contains a slash.
	Name string
	// Args are passed after the name.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Stdout receives standard output; nil discards it.
	Stdout io.Writer
	// Stderr receives standard error; nil discards it.
	Stderr io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes commands and reports their exit status.
type Runner interface {
	// Run blocks until the command exits. A non-zero exit yields an error
	// wrapping *exec.ExitError.
	Run(ctx context.Context, cmd Command) error
	// Output runs the command and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// Exec runs commands as the invoking user of an identity.
type Exec struct {
	// identity decides whether privileges are dropped.
	identity *identity.Identity
	// userPath lists toolchain directories relative to the invoking user's home.
	userPath []string
	// systemPath lists system-wide executable directories.
	systemPath []string
	// getenv reads the installer's own environment.
	getenv func(string) string
}

// Option configures Exec.
type Option func(*Exec)

// WithUserPath sets the home-relative toolchain directories.
func WithUserPath(dirs ...string) Option {
	return func(e *Exec) {
		e.userPath = dirs
	}
}

// WithSystemPath sets the system-wide executable directories.
func WithSystemPath(dirs ...string) Option {
	return func(e *Exec) {
		e.systemPath = dirs
	}
}

// New creates a runner acting for id.
func New(id *identity.Identity, opts ...Option) *Exec {
	e := &Exec{
		identity: id,
		getenv:   os.Getenv,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run implements Runner.
func (e *Exec) Run(ctx context.Context, c Command) error {
	cmd, err := e.command(ctx, c)
	if err != nil {
		return err
	}

	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	logger.DebugKV(ctx, "Running command",
		"command", c.String(),
		"user", e.identity.Invoking.Username,
		"drop_privileges", e.identity.DropsPrivileges(),
	)

	if err = cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", c, err)
	}

	return nil
}

// Output implements Runner.
func (e *Exec) Output(ctx context.Context, c Command) ([]byte, error) {
	var stdout bytes.Buffer

	c.Stdout = &stdout

	if err := e.Run(ctx, c); err != nil {
		return stdout.Bytes(), err
	}

	return stdout.Bytes(), nil
}

// command prepares the child with its search path, environment and credentials.
func (e *Exec) command(ctx context.Context, c Command) (*exec.Cmd, error) {
	user := e.identity.Invoking
	drop := e.identity.DropsPrivileges()

	var env []string
	if drop {
		env = environment(user, e.userPath, e.systemPath, e.getenv)
	} else {
		env = inheritedEnvironment(os.Environ(), userDirs(user.HomeDir, e.userPath), e.systemPath)
	}

	path, err := LookPath(c.Name, filepath.SplitList(pathOf(env)))
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, c.Args...) //nolint:gosec // Commands come from configuration.
	cmd.Dir = c.Dir
	cmd.Env = env
	cmd.WaitDelay = waitDelay
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if drop {
		cmd.SysProcAttr.Credential = &syscall.Credential{
			Uid:    user.UID,
			Gid:    user.GID,
			Groups: user.Groups,
		}
	}

	cmd.Cancel = func() error {
		// The child leads its own process group; kill the whole group.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	return cmd, nil
}

// environment builds the explicit environment of a child running as user.
// Only passthroughVariables are read from getenv.
func environment(user identity.User, userPath, systemPath []string, getenv func(string) string) []string {
	dirs := append(userDirs(user.HomeDir, userPath), systemPath...)

	env := []string{
		"HOME=" + user.HomeDir,
		"USER=" + user.Username,
		"LOGNAME=" + user.Username,
		"PATH=" + strings.Join(dirs, string(filepath.ListSeparator)),
	}

	for _, key := range passthroughVariables {
		if value := getenv(key); value != "" {
			env = append(env, key+"="+value)
		}
	}

	return env
}

// inheritedEnvironment returns base with PATH surrounded by the user toolchain
// directories and the system directories.
func inheritedEnvironment(base, dirs, systemPath []string) []string {
	env := make([]string, 0, len(base)+1)
	path := ""

	for _, kv := range base {
		if value, ok := strings.CutPrefix(kv, "PATH="); ok {
			path = value
			continue
		}

		env = append(env, kv)
	}

	if path != "" {
		dirs = append(dirs, path)
	}

	dirs = append(dirs, systemPath...)

	return append(env, "PATH="+strings.Join(dirs, string(filepath.ListSeparator)))
}

// userDirs anchors relative toolchain directories at home.
func userDirs(home string, userPath []string) []string {
	dirs := make([]string, 0, len(userPath))

	for _, dir := range userPath {
		switch {
		case filepath.IsAbs(dir):
			dirs = append(dirs, dir)
		case home != "":
			dirs = append(dirs, filepath.Join(home, dir))
		}
	}

	return dirs
}

// pathOf extracts PATH from an environment list.
func pathOf(env []string) string {
	for i := len(env) - 1; i >= 0; i-- {
		if value, ok := strings.CutPrefix(env[i], "PATH="); ok {
			return value
		}
	}

	return ""
}

// LookPath finds an executable regular file called name in dirs.
// Names containing a slash are checked as given.
func LookPath(name string, dirs []string) (string, error) {
	if strings.Contains(name, "/") {
		if isExecutable(name) {
			return name, nil
		}

		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}

		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s in %s: %w", name, strings.Join(dirs, string(filepath.ListSeparator)), ErrNotFound)
}

// isExecutable reports whether path is a regular file with an execute bit the caller may use.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return false
	}

	return unix.Access(path, unix.X_OK) == nil
}
