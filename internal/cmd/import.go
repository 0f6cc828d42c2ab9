package cmd

import (
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <app-name> <install-path>",
	Short: "Register an existing install with the library",
	Long: `Import points legendary at a game directory that already exists on disk,
for example one copied from another machine, and registers it without
downloading anything.

Examples:
  hangar import fortnite /mnt/games/Fortnite`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name, path := args[0], args[1]
	return a.followOp(name, "Importing "+name, func() error {
		_, err := a.games.Import(name, path)
		return err
	})
}
