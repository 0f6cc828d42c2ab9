package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hangar-launcher/hangar/internal/util"
)

var statusCmd = &cobra.Command{
	Use:   "status [app-name]",
	Short: "Show account status or one game's record",
	Long: `Status without arguments reports the legendary account and connectivity.
With an app name it prints that game's library record.

Examples:
  hangar status
  hangar status fortnite
  hangar status fortnite --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if len(args) == 0 {
		return printAccountStatus(cmd, a)
	}
	return printGameStatus(a, args[0])
}

func printAccountStatus(cmd *cobra.Command, a *app) error {
	status, err := a.games.AccountStatus(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	online := "no"
	if a.probe.Online(cmd.Context()) {
		online = "yes"
	}
	fmt.Printf("Account:    %s\n", status.Account)
	fmt.Printf("Logged in:  %s\n", yesNo(status.LoggedIn()))
	fmt.Printf("Online:     %s\n", online)
	fmt.Printf("Owned:      %d\n", status.GamesOwned)
	fmt.Printf("Installed:  %d\n", status.GamesInstalled)
	return nil
}

func printGameStatus(a *app, name string) error {
	rec, err := a.store.Get(name)
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("App:        %s\n", rec.AppName)
	fmt.Printf("Title:      %s\n", orDash(rec.Title))
	fmt.Printf("Installed:  %s\n", yesNo(rec.Installed))
	fmt.Printf("Version:    %s\n", orDash(rec.Version))
	fmt.Printf("Platform:   %s\n", orDash(rec.Platform))
	fmt.Printf("Path:       %s\n", orDash(rec.InstallPath))
	if rec.DiskSize > 0 {
		fmt.Printf("Size:       %s\n", util.FormatBytes(rec.DiskSize))
	}
	fmt.Printf("Prefix:     %s\n", orDash(rec.WinePrefix))
	if !rec.UpdatedAt.IsZero() {
		fmt.Printf("Updated:    %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
