package cmd

import (
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <app-name>",
	Short: "Update an installed game",
	Long: `Update downloads the latest build of an installed game. The record keeps
its current version until the update verifies.

Examples:
  hangar update fortnite
  hangar update fortnite --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

var updateWorkers int

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().IntVarP(&updateWorkers, "workers", "w", 0, "parallel download workers (0 uses the tool default)")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	return a.followOp(name, "Updating "+name, func() error {
		_, err := a.games.Update(name, updateWorkers)
		return err
	})
}
