package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/ruls-install/internal/service/uninstaller"
)

// uninstallCmd restores the backup or removes the target.
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Restore the previous executable or remove the installed one.",
	Long: `Moves the backup back onto the target when one exists, otherwise deletes the
target. Succeeds without changes when the target is already absent. Must run
as root.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx, stop := signalContext()
		defer stop()

		return uninstaller.Run(ctx, &uninstaller.Options{
			ConfigPath: configPath,
			DryRun:     dryRun,
		})
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	uninstallCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan and run it against an in-memory copy")
}
