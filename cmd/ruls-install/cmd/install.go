package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ruls-install/internal/service/installer"
)

// installCmd builds ruls and installs it over the target.
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Check the toolchain, build ruls and install it.",
	Long: `Runs the toolchain checks and the release build as the invoking user, then
backs up the current target and installs the new executable. Must run as root.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return installer.Run(ctx, &installer.Options{
			ConfigPath: configPath,
			DryRun:     dryRun,
		})
	},
}

// applyCmd installs an already built artifact.
var applyCmd = &cobra.Command{
	Use:   "apply [artifact]",
	Short: "Install an existing artifact without building.",
	Long: `Runs only the privileged install step. The artifact defaults to the path the
release build writes to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		// Use artifact argument if provided, otherwise rely on config.
		var artifact string
		if len(args) > 0 {
			artifact = args[0]
		}

		return installer.Run(ctx, &installer.Options{
			ConfigPath: configPath,
			Artifact:   artifact,
			SkipBuild:  true,
			DryRun:     dryRun,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	for _, command := range []*cobra.Command{installCmd, applyCmd} {
		command.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan and run it against an in-memory copy")
	}
}
