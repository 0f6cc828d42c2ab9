package cmd

import (
	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <app-name> <destination-root>",
	Short: "Move an installed game to another directory",
	Long: `Move relocates a game's files to a new root directory, for example a
bigger drive, and updates both legendary's records and the library's.

Examples:
  hangar move fortnite /mnt/bigdisk/games`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name, dest := args[0], args[1]
	return a.followOp(name, "Moving "+name, func() error {
		_, err := a.games.Move(name, dest)
		return err
	})
}
