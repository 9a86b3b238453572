package installer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/service/build"
	"github.com/oshokin/ruls-install/internal/service/common"
	"github.com/oshokin/ruls-install/internal/service/preflight"
	"github.com/oshokin/ruls-install/internal/service/transition"
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Artifact overrides the configured artifact path.
	Artifact string
	// SkipBuild applies an existing artifact without preflight or build.
	SkipBuild bool
	// DryRun executes the transition against an in-memory copy of the slot.
	DryRun bool
}

// Run loads the settings, wires the system collaborators and installs.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	return Install(ctx, cfg, common.SystemDependencies(cfg), opts)
}

// Install runs the sequence with explicit collaborators.
func Install(ctx context.Context, cfg *config.Config, deps *common.Dependencies, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "installer")

	// Refuse before spending time on a build that could not be installed.
	if !opts.DryRun {
		if err := transition.RequireElevation(deps.Identity.Elevated); err != nil {
			return err
		}
	}

	artifact, err := resolveArtifact(cfg, opts.Artifact)
	if err != nil {
		return err
	}

	if !opts.SkipBuild {
		if err = prepareArtifact(ctx, cfg, deps); err != nil {
			return err
		}
	}

	// The build may report success without producing anything.
	if err = build.VerifyArtifact(deps.Filesystem, artifact); err != nil {
		return err
	}

	tr, elevated, err := common.Transitioner(ctx, cfg, deps, opts.DryRun, artifact)
	if err != nil {
		return err
	}

	result, err := tr.Install(ctx, artifact, elevated)
	if err != nil {
		return err
	}

	if opts.DryRun {
		deps.Reporter.DryRun(result.Plan, result.State)
		return nil
	}

	logger.InfoKV(ctx, "Install completed", "state", result.State.String(), "artifact", artifact)
	deps.Reporter.Outcome(result.Plan, result.State)

	return nil
}

// prepareArtifact runs the preflight checks and the build as the invoking user.
func prepareArtifact(ctx context.Context, cfg *config.Config, deps *common.Dependencies) error {
	logger.InfoKV(ctx, "Running preflight checks", "user", deps.Identity.Invoking.Username)

	if err := preflight.New(deps.Runner, cfg).Run(ctx); err != nil {
		return err
	}

	return build.New(deps.Runner, cfg).Build(ctx)
}

// resolveArtifact picks the artifact path, anchoring relative overrides at the working directory.
func resolveArtifact(cfg *config.Config, override string) (string, error) {
	if override == "" {
		return cfg.ArtifactPath(), nil
	}

	artifact, err := filepath.Abs(override)
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}

	return artifact, nil
}
