package cmd

import (
	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <app-name>",
	Short: "Remove an installed game",
	Long: `Uninstall removes a game's files through legendary, drops its desktop
entry and marks the record as not installed. The record itself stays so
wine prefix and install history survive a reinstall.

Examples:
  hangar uninstall fortnite
  hangar uninstall fortnite --keep-files`,
	Args: cobra.ExactArgs(1),
	RunE: runUninstall,
}

var uninstallKeepFiles bool

func init() {
	rootCmd.AddCommand(uninstallCmd)
	uninstallCmd.Flags().BoolVar(&uninstallKeepFiles, "keep-files", false, "deregister the install but leave the files on disk")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	return a.followOp(name, "Uninstalling "+name, func() error {
		_, err := a.games.Uninstall(name, uninstallKeepFiles)
		return err
	})
}
