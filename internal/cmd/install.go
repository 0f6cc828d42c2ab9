package cmd

import (
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <app-name>",
	Short: "Download and install a game",
	Long: `Install downloads a game through legendary into the configured base path
and records it in the library once the download verifies.

Examples:
  hangar install fortnite
  hangar install fortnite --base-path /mnt/games --workers 8`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var (
	installBasePath string
	installWorkers  int
)

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVar(&installBasePath, "base-path", "", "install root for this game (defaults to games.base_path)")
	installCmd.Flags().IntVarP(&installWorkers, "workers", "w", 0, "parallel download workers (0 uses the tool default)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	return a.followOp(name, "Installing "+name, func() error {
		_, err := a.games.Install(name, installBasePath, installWorkers)
		return err
	})
}
