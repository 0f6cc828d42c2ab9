package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hangar-launcher/hangar/internal/util"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List owned and installed games",
	Long: `List merges the account's owned titles with the local install records.
Offline it falls back to records alone, so installed games stay visible
without a connection.

Examples:
  hangar list
  hangar list --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.games.Library(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOut {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No games found. Log in with 'legendary auth' first.")
		return nil
	}

	fmt.Printf("%-32s %-34s %-14s %s\n", "APP NAME", "TITLE", "VERSION", "STATE")
	installed := 0
	for _, e := range entries {
		state := "owned"
		if e.Installed {
			state = "installed"
			installed++
		}
		fmt.Printf("%-32s %-34s %-14s %s\n",
			util.TruncateString(e.AppName, 32),
			util.TruncateString(e.Title, 34),
			util.TruncateString(e.Version, 14),
			state)
	}
	fmt.Printf("\n%d games, %d installed\n", len(entries), installed)
	return nil
}
