// Package build runs the release build as the invoking user and checks its artifact.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/domain/failure"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/repository/filesystem"
	"github.com/oshokin/ruls-install/internal/runner"
)

// Orchestrator invokes the external build tool.
type Orchestrator struct {
	// runner executes the build as the invoking user.
	runner runner.Runner
	// buildTool is the build entry point.
	buildTool string
	// triple is the compilation target.
	triple string
	// projectDir is where the build runs.
	projectDir string
	// artifact is where the build must deposit the executable.
	artifact string
	// timeout bounds the build; zero means none.
	timeout time.Duration
	// stdout receives the build tool's output.
	stdout io.Writer
	// stderr receives the build tool's diagnostics.
	stderr io.Writer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithOutput streams the build's standard streams to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// New creates an Orchestrator for the configured project.
func New(r runner.Runner, cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:     r,
		buildTool:  cfg.Toolchain.BuildTool,
		triple:     cfg.TargetTriple,
		projectDir: cfg.ProjectDir,
		artifact:   cfg.ArtifactPath(),
		timeout:    cfg.BuildTimeout,
		stdout:     os.Stderr,
		stderr:     os.Stderr,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Artifact returns the path the build is expected to produce.
func (o *Orchestrator) Artifact() string {
	return o.artifact
}

// Build runs the release build and blocks until it exits. It does not look
// for the artifact; callers use VerifyArtifact for that.
func (o *Orchestrator) Build(ctx context.Context) error {
	ctx = logger.WithName(ctx, "build")

	if o.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	cmd := runner.Command{
		Name:   o.buildTool,
		Args:   []string{"build", "--release", "--target", o.triple},
		Dir:    o.projectDir,
		Stdout: o.stdout,
		Stderr: o.stderr,
	}

	logger.InfoKV(ctx, "Building release artifact", "command", cmd.String(), "dir", o.projectDir)

	started := time.Now()

	if err := o.runner.Run(ctx, cmd); err != nil {
		return failure.New(failure.ErrBuildFailed, err,
			fmt.Sprintf("fix the errors reported by `%s` and run the installer again", cmd))
	}

	logger.InfoKV(ctx, "Build finished", "elapsed", time.Since(started).Round(time.Millisecond).String())

	return nil
}

// VerifyArtifact fails unless path is a regular file on fsys.
func VerifyArtifact(fsys filesystem.Filesystem, path string) error {
	remediation := "check that the build writes its executable to " + path

	if _, err := filesystem.StatRegular(fsys, path); err != nil {
		return failure.New(failure.ErrArtifactMissing, err, remediation)
	}

	return nil
}
