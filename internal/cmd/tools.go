package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hangar-launcher/hangar/internal/tools"
	"github.com/hangar-launcher/hangar/internal/util"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage wine, proton and dxvk runner builds",
	Long: `Tools tracks runner builds published on their upstream release pages,
downloads them into the tools directory and keeps a catalog of what is
installed and what has updates.

Kinds: wine (wine-ge), proton (ge-proton), dxvk.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available and installed runner builds",
	Long: `List refreshes the release catalog when it is stale and prints every
known build. Offline or rate-limited it falls back to the cached catalog.

Examples:
  hangar tools list
  hangar tools list --json`,
	Args: cobra.NoArgs,
	RunE: runToolsList,
}

var toolsInstallCmd = &cobra.Command{
	Use:   "install <kind> <version>",
	Short: "Download and unpack a runner build",
	Long: `Install downloads a build's release archive, verifies its checksum when
the release publishes one, and unpacks it into the tools directory.

Examples:
  hangar tools install proton GE-Proton9-20
  hangar tools install dxvk v2.4.1`,
	Args: cobra.ExactArgs(2),
	RunE: runToolsInstall,
}

var toolsRemoveCmd = &cobra.Command{
	Use:   "remove <kind> <version>",
	Short: "Delete an installed runner build",
	Long: `Remove deletes a build's directory from the tools directory. Removing a
build that is not installed is not an error.

Examples:
  hangar tools remove proton GE-Proton9-20`,
	Args: cobra.ExactArgs(2),
	RunE: runToolsRemove,
}

var toolsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the release catalog",
	Long: `Refresh re-queries the upstream release pages. Without --force a catalog
younger than the cache TTL is returned as-is.

Examples:
  hangar tools refresh --force`,
	Args: cobra.NoArgs,
	RunE: runToolsRefresh,
}

var toolsRefreshForce bool

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsInstallCmd)
	toolsCmd.AddCommand(toolsRemoveCmd)
	toolsCmd.AddCommand(toolsRefreshCmd)
	toolsRefreshCmd.Flags().BoolVarP(&toolsRefreshForce, "force", "f", false, "refresh even when the cached catalog is fresh")
}

func runToolsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := a.tools.RefreshCatalog(cmd.Context(), false)
	if err != nil {
		// A stale catalog beats no catalog when the refresh fails.
		fmt.Fprintf(os.Stderr, "catalog refresh failed, showing cached data: %v\n", err)
		catalog = a.tools.Catalog()
	}

	if jsonOut {
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(catalog) == 0 {
		fmt.Println("No runner builds known. Run 'hangar tools refresh' while online.")
		return nil
	}

	fmt.Printf("%-8s %-26s %-12s %-10s %s\n", "KIND", "VERSION", "RELEASED", "SIZE", "STATE")
	installed := 0
	for _, d := range catalog {
		released := "-"
		if !d.ReleaseDate.IsZero() {
			released = d.ReleaseDate.Format("2006-01-02")
		}
		size := "-"
		if d.DownloadSizeBytes > 0 {
			size = util.FormatBytes(d.DownloadSizeBytes)
		}
		state := "-"
		if d.IsInstalled {
			state = "installed"
			installed++
			if d.HasUpdate {
				state = "installed (update available)"
			}
		}
		fmt.Printf("%-8s %-26s %-12s %-10s %s\n",
			d.Kind, util.TruncateString(d.Version, 26), released, size, state)
	}
	fmt.Printf("\n%d builds, %d installed\n", len(catalog), installed)
	return nil
}

func runToolsInstall(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kind, err := tools.ParseKind(args[0])
	if err != nil {
		return err
	}
	version := args[1]

	key := tools.Descriptor{Kind: kind, Version: version}.Key()
	return a.followOp(key, "Installing "+key, func() error {
		_, err := a.tools.Install(kind, version)
		return err
	})
}

func runToolsRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	kind, err := tools.ParseKind(args[0])
	if err != nil {
		return err
	}
	version := args[1]

	removed, err := a.tools.Remove(kind, version)
	if err != nil {
		return err
	}
	if removed {
		fmt.Printf("removed %s %s\n", kind, version)
	} else {
		fmt.Printf("%s %s is not installed\n", kind, version)
	}
	return nil
}

func runToolsRefresh(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := a.tools.RefreshCatalog(cmd.Context(), toolsRefreshForce)
	if err != nil {
		return err
	}
	fmt.Printf("catalog refreshed, %d builds known\n", len(catalog))
	return nil
}
