package cmd

import (
	"github.com/spf13/cobra"
)

var syncSavesCmd = &cobra.Command{
	Use:   "sync-saves <app-name>",
	Short: "Sync cloud saves for a game",
	Long: `Sync-saves exchanges save games with Epic's cloud storage. Offline it is
a no-op success so scripted launch wrappers keep working without a
connection. --skip-upload and --skip-download make the sync
one-directional.

Examples:
  hangar sync-saves fortnite
  hangar sync-saves fortnite --path ~/.wine-fortnite/drive_c/Saves
  hangar sync-saves fortnite --skip-upload`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncSaves,
}

var (
	syncSavesPath         string
	syncSavesSkipUpload   bool
	syncSavesSkipDownload bool
)

func init() {
	rootCmd.AddCommand(syncSavesCmd)
	syncSavesCmd.Flags().StringVar(&syncSavesPath, "path", "", "override the save game directory legendary detects")
	syncSavesCmd.Flags().BoolVar(&syncSavesSkipUpload, "skip-upload", false, "only download cloud saves")
	syncSavesCmd.Flags().BoolVar(&syncSavesSkipDownload, "skip-download", false, "only upload local saves")
}

func runSyncSaves(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	return a.followOp(name, "Syncing saves for "+name, func() error {
		_, err := a.games.SyncSaves(name, syncSavesPath, syncSavesSkipUpload, syncSavesSkipDownload)
		return err
	})
}
