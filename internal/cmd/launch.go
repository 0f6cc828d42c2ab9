package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hangar-launcher/hangar/internal/library"
)

var launchCmd = &cobra.Command{
	Use:   "launch <app-name> [-- game args...]",
	Short: "Launch an installed game",
	Long: `Launch starts a game under its configured wine runner and waits for it
to exit. Arguments after -- are passed through to the game itself.

The command exits 0 when the game exits cleanly, 130 when it was stopped,
and 1 when the runner failed.

Examples:
  hangar launch fortnite
  hangar launch fortnite --offline
  hangar launch fortnite -- -windowed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLaunch,
}

var (
	launchWineBin          string
	launchWinePrefix       string
	launchOffline          bool
	launchSkipVersionCheck bool
)

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().StringVar(&launchWineBin, "wine", "", "wine binary to run under (defaults to launch.wine_bin)")
	launchCmd.Flags().StringVar(&launchWinePrefix, "prefix", "", "wine prefix for this session (defaults to the game's recorded prefix)")
	launchCmd.Flags().BoolVar(&launchOffline, "offline", false, "launch without contacting Epic")
	launchCmd.Flags().BoolVar(&launchSkipVersionCheck, "skip-version-check", false, "launch even when an update is pending")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	name := args[0]
	events, stop := a.hub.Stream(name, streamBacklog)
	defer stop()

	opts := library.LaunchOptions{
		WineBin:          launchWineBin,
		WinePrefix:       launchWinePrefix,
		Offline:          launchOffline,
		SkipVersionCheck: launchSkipVersionCheck,
		ExtraArgs:        args[1:],
	}
	if _, err := a.games.Launch(name, opts); err != nil {
		return err
	}
	fmt.Printf("%s: running (interrupt to stop)\n", name)
	return a.wait(events, name)
}
