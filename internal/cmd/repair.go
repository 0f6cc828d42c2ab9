package cmd

import (
	"github.com/spf13/cobra"
)

var repairCmd = &cobra.Command{
	Use:   "repair <app-name>",
	Short: "Verify and repair an installed game",
	Long: `Repair re-verifies every file of an installed game against the manifest
and re-downloads whatever fails the check.

Examples:
  hangar repair fortnite`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

var repairWorkers int

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().IntVarP(&repairWorkers, "workers", "w", 0, "parallel download workers (0 uses the tool default)")
}

func runRepair(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	return a.followOp(name, "Repairing "+name, func() error {
		_, err := a.games.Repair(name, repairWorkers)
		return err
	})
}
