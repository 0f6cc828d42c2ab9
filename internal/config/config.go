package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete hangar configuration
type Config struct {
	Legendary LegendaryConfig `mapstructure:"legendary"`
	Games     GamesConfig     `mapstructure:"games"`
	Launch    LaunchConfig    `mapstructure:"launch"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Network   NetworkConfig   `mapstructure:"network"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Desktop   DesktopConfig   `mapstructure:"desktop"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// LegendaryConfig locates the legendary CLI
type LegendaryConfig struct {
	// Binary is an explicit path to the legendary executable
	// Empty resolves it from PATH
	Binary string `mapstructure:"binary"`
}

// GamesConfig controls how game titles install
type GamesConfig struct {
	// BasePath is the root directory installs default into when a
	// command does not name one. A leading ~ expands to the home dir.
	BasePath string `mapstructure:"base_path"`
	// Workers is the default download worker count handed to the tool
	// (0 = let legendary decide)
	Workers int `mapstructure:"workers"`
}

// LaunchConfig is the default environment composed for every game launch
type LaunchConfig struct {
	// WineBin is the wine or proton binary used when the game record
	// does not pin one
	WineBin string `mapstructure:"wine_bin"`
	// WinePrefix is the fallback compatibility prefix
	WinePrefix string `mapstructure:"wine_prefix"`
	// DRIPrime, when set, exports DRI_PRIME for PRIME GPU offload
	DRIPrime string `mapstructure:"dri_prime"`
	// NvidiaOffload exports the NVIDIA render-offload variable pair
	NvidiaOffload bool `mapstructure:"nvidia_offload"`
	// PulseLatencyMs exports PULSE_LATENCY_MSEC when positive
	// (0 leaves the PulseAudio default alone)
	PulseLatencyMs int `mapstructure:"pulse_latency_ms"`
	// GameMode prepends gamemoderun to the launch command when it is
	// on PATH
	GameMode bool `mapstructure:"gamemode"`
}

// ToolsConfig controls runner tool (wine/proton/dxvk) management
type ToolsConfig struct {
	// Dir is the root directory tool versions install under
	// Empty means use default: <data_dir>/tools
	Dir string `mapstructure:"dir"`
	// CacheTTLHours is how long a fetched release catalog stays fresh
	// before a refresh re-contacts the API (0 = the built-in six hours)
	CacheTTLHours int `mapstructure:"cache_ttl_hours"`
	// Watch re-scans the tool directory when something other than
	// hangar changes it
	Watch bool `mapstructure:"watch"`
}

// NetworkConfig controls the connectivity probe remote operations consult
type NetworkConfig struct {
	// ProbeTargets are the host:port addresses dialed to decide online
	// state. Empty keeps the built-in resolver targets.
	ProbeTargets []string `mapstructure:"probe_targets"`
	// ProbeTTLSeconds caches a probe verdict for this long
	ProbeTTLSeconds int `mapstructure:"probe_ttl_seconds"`
	// ProbeTimeoutMs bounds a single dial attempt (0 keeps the built-in
	// three seconds)
	ProbeTimeoutMs int `mapstructure:"probe_timeout_ms"`
}

// DaemonConfig controls the serve command
type DaemonConfig struct {
	// Addr is the host:port the HTTP API listens on
	Addr string `mapstructure:"addr"`
}

// DesktopConfig controls desktop menu integration
type DesktopConfig struct {
	// Enabled maintains a .desktop entry per installed game
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Enabled controls whether hangar writes log files
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level (debug, info, warn, error)
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum size of a log file in megabytes before rotation
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where hangar keeps its state
type PathsConfig struct {
	// DataDir holds the game library records, tool installs and logs
	// Empty means use default: $XDG_DATA_HOME/hangar (~/.local/share/hangar)
	DataDir string `mapstructure:"data_dir"`
}

// ResolveDataDir returns the resolved data directory path.
// If DataDir is empty, it returns the XDG data default.
// If DataDir starts with ~, it expands to the user's home directory.
func (p *PathsConfig) ResolveDataDir() string {
	if p.DataDir == "" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "hangar")
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return ".hangar"
		}
		return filepath.Join(home, ".local", "share", "hangar")
	}
	return expandHome(p.DataDir)
}

// expandHome expands a leading ~ to the user's home directory
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
	}
	return path
}

// ResolveBasePath returns the default install root with ~ expanded.
// Empty stays empty; installs then require an explicit path.
func (g *GamesConfig) ResolveBasePath() string {
	return expandHome(g.BasePath)
}

// DataDir returns the resolved state directory
func (c *Config) DataDir() string {
	return c.Paths.ResolveDataDir()
}

// StoreDir returns the directory holding the game library records
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir(), "library")
}

// LogDir returns the directory log files are written to
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir(), "logs")
}

// ToolsDir returns the root directory runner tools install under
func (c *Config) ToolsDir() string {
	if c.Tools.Dir != "" {
		return expandHome(c.Tools.Dir)
	}
	return filepath.Join(c.DataDir(), "tools")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Legendary: LegendaryConfig{
			Binary: "", // Empty means resolve from PATH
		},
		Games: GamesConfig{
			BasePath: "~/Games/hangar",
			Workers:  0, // Let legendary pick its own concurrency
		},
		Launch: LaunchConfig{
			WineBin:        "",
			WinePrefix:     "",
			DRIPrime:       "",
			NvidiaOffload:  false,
			PulseLatencyMs: 0, // Leave PULSE_LATENCY_MSEC unset
			GameMode:       false,
		},
		Tools: ToolsConfig{
			Dir:           "", // Empty means use default: <data_dir>/tools
			CacheTTLHours: 6,
			Watch:         true,
		},
		Network: NetworkConfig{
			ProbeTargets:    []string{}, // Empty means use the built-in targets
			ProbeTTLSeconds: 30,
			ProbeTimeoutMs:  3000,
		},
		Daemon: DaemonConfig{
			Addr: "127.0.0.1:8910",
		},
		Desktop: DesktopConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			DataDir: "", // Empty means use default: $XDG_DATA_HOME/hangar
		},
	}
}

// CacheTTL returns the catalog cache TTL as a time.Duration (0 keeps the
// tool manager's built-in default)
func (c *ToolsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// ProbeTTL returns the probe cache window as a time.Duration
func (c *NetworkConfig) ProbeTTL() time.Duration {
	return time.Duration(c.ProbeTTLSeconds) * time.Second
}

// ProbeTimeout returns the per-dial probe timeout as a time.Duration
func (c *NetworkConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Legendary defaults
	viper.SetDefault("legendary.binary", defaults.Legendary.Binary)

	// Games defaults
	viper.SetDefault("games.base_path", defaults.Games.BasePath)
	viper.SetDefault("games.workers", defaults.Games.Workers)

	// Launch defaults
	viper.SetDefault("launch.wine_bin", defaults.Launch.WineBin)
	viper.SetDefault("launch.wine_prefix", defaults.Launch.WinePrefix)
	viper.SetDefault("launch.dri_prime", defaults.Launch.DRIPrime)
	viper.SetDefault("launch.nvidia_offload", defaults.Launch.NvidiaOffload)
	viper.SetDefault("launch.pulse_latency_ms", defaults.Launch.PulseLatencyMs)
	viper.SetDefault("launch.gamemode", defaults.Launch.GameMode)

	// Tools defaults
	viper.SetDefault("tools.dir", defaults.Tools.Dir)
	viper.SetDefault("tools.cache_ttl_hours", defaults.Tools.CacheTTLHours)
	viper.SetDefault("tools.watch", defaults.Tools.Watch)

	// Network defaults
	viper.SetDefault("network.probe_targets", defaults.Network.ProbeTargets)
	viper.SetDefault("network.probe_ttl_seconds", defaults.Network.ProbeTTLSeconds)
	viper.SetDefault("network.probe_timeout_ms", defaults.Network.ProbeTimeoutMs)

	// Daemon defaults
	viper.SetDefault("daemon.addr", defaults.Daemon.Addr)

	// Desktop defaults
	viper.SetDefault("desktop.enabled", defaults.Desktop.Enabled)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Paths defaults
	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hangar")
	}
	// Fall back to ~/.config/hangar
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hangar"
	}
	return filepath.Join(home, ".config", "hangar")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
