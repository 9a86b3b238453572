// Package uninstaller restores the backed-up executable or removes the
// installed one.
package uninstaller

import (
	"context"
	"fmt"

	"github.com/oshokin/ruls-install/internal/config"
	"github.com/oshokin/ruls-install/internal/logger"
	"github.com/oshokin/ruls-install/internal/service/common"
)

// Options are inputs accepted by the uninstaller entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// DryRun executes the transition against an in-memory copy of the slot.
	DryRun bool
}

// Run loads the settings, wires the system collaborators and uninstalls.
func Run(ctx context.Context, opts *Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	return Uninstall(ctx, cfg, common.SystemDependencies(cfg), opts)
}

// Uninstall runs the transition with explicit collaborators. A missing target
// is a successful no-op.
func Uninstall(ctx context.Context, cfg *config.Config, deps *common.Dependencies, opts *Options) error {
	ctx = logger.WithName(ctx, "uninstaller")

	tr, elevated, err := common.Transitioner(ctx, cfg, deps, opts.DryRun)
	if err != nil {
		return err
	}

	result, err := tr.Uninstall(ctx, elevated)
	if err != nil {
		return err
	}

	if opts.DryRun {
		deps.Reporter.DryRun(result.Plan, result.State)
		return nil
	}

	logger.InfoKV(ctx, "Uninstall completed", "outcome", result.Plan.Outcome.String(), "state", result.State.String())
	deps.Reporter.Outcome(result.Plan, result.State)

	return nil
}
