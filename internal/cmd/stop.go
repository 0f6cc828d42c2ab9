package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <app-name>",
	Short: "Stop a running game",
	Long: `Stop terminates a game's processes by matching their command lines
against the recorded install path. It works on games launched by hangar
and on ones started any other way. Nothing running is a success.

Examples:
  hangar stop fortnite`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	if err := a.games.Stop(cmd.Context(), name); err != nil {
		return err
	}
	fmt.Printf("%s: stopped\n", name)
	return nil
}
