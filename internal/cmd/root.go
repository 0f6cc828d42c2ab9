package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hangar-launcher/hangar/internal/config"
	"github.com/hangar-launcher/hangar/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "hangar",
	Short: "Headless Epic Games library manager for Linux",
	Long: `Hangar drives the legendary CLI to install, update, repair and launch
Epic Games titles under wine or proton, manages runner builds fetched from
their upstream releases, and can serve the whole library over a local HTTP
API for frontends to consume.`,
	SilenceUsage: true,
}

var (
	// quiet suppresses the live progress view; commands print one line
	// per terminal result instead.
	quiet bool

	// jsonOut switches listing commands to machine-readable output.
	jsonOut bool
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps the error returned by Execute to a process exit status.
// Aborted operations exit 130, the shell convention for an interrupted
// command; every other failure exits 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errors.ErrAborted) {
		return 130
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/hangar/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the progress view, print one line per result")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print machine-readable JSON instead of tables")

	// Bind flags to viper
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/hangar")
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.AutomaticEnv()
	viper.SetEnvPrefix("HANGAR")
	// Replace dots with underscores for nested keys in env vars
	// e.g., HANGAR_GAMES_BASE_PATH for games.base_path
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
