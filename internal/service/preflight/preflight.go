// Package preflight verifies the build toolchain before anything is compiled.
package preflight

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/runner"
)

// LookPathFunc finds an executable in a list of directories.
type LookPathFunc func(name string, dirs []string) (string, error)

// Checker runs the three preflight checks in order.
type Checker struct {
	// runner executes toolchain commands as the invoking user.
	runner runner.Runner
	// toolchain names the tools and their remediation hints.
	toolchain config.Toolchain
	// triple is the compilation target that must be installed.
	triple string
	// systemPath is searched for the system compiler.
	systemPath []string
	// lookPath resolves the system compiler.
	lookPath LookPathFunc
}

// Option configures a Checker.
type Option func(*Checker)

// WithLookPath replaces the system compiler lookup.
func WithLookPath(fn LookPathFunc) Option {
	return func(c *Checker) {
		c.lookPath = fn
	}
}

// New creates a Checker for the configured toolchain.
func New(r runner.Runner, cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		runner:     r,
		toolchain:  cfg.Toolchain,
		triple:     cfg.TargetTriple,
		systemPath: cfg.SystemPath,
		lookPath:   runner.LookPath,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run stops at the first failing check. Only the target check has a side
// effect: it installs a missing compilation target into the user's toolchain.
func (c *Checker) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "preflight")

	if err := c.CheckToolchain(ctx); err != nil {
		return err
	}

	if err := c.CheckTarget(ctx); err != nil {
		return err
	}

	return c.CheckSystemCompiler(ctx)
}

// CheckToolchain verifies the build tool answers for the invoking user.
func (c *Checker) CheckToolchain(ctx context.Context) error {
	out, err := c.runner.Output(ctx, runner.Command{
		Name: c.toolchain.BuildTool,
		Args: []string{"--version"},
	})
	if err != nil {
		return failure.New(failure.ErrMissingToolchain, err, c.toolchain.ToolchainHint)
	}

	logger.InfoKV(ctx, "Build tool found", "version", strings.TrimSpace(string(out)))

	return nil
}

// CheckTarget verifies the compilation target is installed and installs it otherwise.
func (c *Checker) CheckTarget(ctx context.Context) error {
	remediation := fmt.Sprintf("%s target add %s", c.toolchain.TargetManager, c.triple)

	out, err := c.runner.Output(ctx, runner.Command{
		Name: c.toolchain.TargetManager,
		Args: []string{"target", "list", "--installed"},
	})
	if err != nil {
		return failure.New(failure.ErrTargetInstall, fmt.Errorf("list installed targets: %w", err), remediation)
	}

	if hasTarget(out, c.triple) {
		logger.DebugKV(ctx, "Compilation target installed", "target", c.triple)
		return nil
	}

	logger.InfoKV(ctx, "Installing compilation target", "target", c.triple)

	err = c.runner.Run(ctx, runner.Command{
		Name: c.toolchain.TargetManager,
		Args: []string{"target", "add", c.triple},
	})
	if err != nil {
		return failure.New(failure.ErrTargetInstall, err, remediation)
	}

	return nil
}

// CheckSystemCompiler looks for the static-linking compiler in the system
// directories only; a copy in the user's home does not count.
func (c *Checker) CheckSystemCompiler(ctx context.Context) error {
	path, err := c.lookPath(c.toolchain.SystemCompiler, c.systemPath)
	if err != nil {
		return failure.New(failure.ErrMissingSystemCompiler, err, c.toolchain.SystemCompilerHint)
	}

	logger.DebugKV(ctx, "System compiler found", "path", path)

	return nil
}

// hasTarget reports whether the listing contains triple on a line of its own.
func hasTarget(listing []byte, triple string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))

	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == triple {
			return true
		}
	}

	return false
}
