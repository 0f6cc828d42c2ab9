package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/hangar-launcher/hangar/internal/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "games.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Games config
	errors = append(errors, c.validateGames()...)

	// Validate Launch config
	errors = append(errors, c.validateLaunch()...)

	// Validate Tools config
	errors = append(errors, c.validateTools()...)

	// Validate Network config
	errors = append(errors, c.validateNetwork()...)

	// Validate Daemon config
	errors = append(errors, c.validateDaemon()...)

	// Validate Logging config
	errors = append(errors, c.validateLogging()...)

	// Validate Paths config
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateGames validates the GamesConfig
func (c *Config) validateGames() []ValidationError {
	var errors []ValidationError

	if c.Games.Workers < 0 {
		errors = append(errors, ValidationError{
			Field:   "games.workers",
			Value:   c.Games.Workers,
			Message: "must be non-negative (0 uses the tool default)",
		})
	}

	// legendary caps out well below this; treat larger values as typos
	const maxWorkers = 64
	if c.Games.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "games.workers",
			Value:   c.Games.Workers,
			Message: fmt.Sprintf("exceeds maximum of %d", maxWorkers),
		})
	}

	errors = append(errors, validatePathValue("games.base_path", c.Games.BasePath)...)

	return errors
}

// validateLaunch validates the LaunchConfig
func (c *Config) validateLaunch() []ValidationError {
	var errors []ValidationError

	if c.Launch.PulseLatencyMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "launch.pulse_latency_ms",
			Value:   c.Launch.PulseLatencyMs,
			Message: "must be non-negative (0 leaves PULSE_LATENCY_MSEC unset)",
		})
	}

	return errors
}

// validateTools validates the ToolsConfig
func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	if c.Tools.CacheTTLHours < 0 {
		errors = append(errors, ValidationError{
			Field:   "tools.cache_ttl_hours",
			Value:   c.Tools.CacheTTLHours,
			Message: "must be non-negative (0 uses the built-in six hours)",
		})
	}

	// A month-stale catalog is stale enough to be a misconfiguration
	const maxCacheTTLHours = 720
	if c.Tools.CacheTTLHours > maxCacheTTLHours {
		errors = append(errors, ValidationError{
			Field:   "tools.cache_ttl_hours",
			Value:   c.Tools.CacheTTLHours,
			Message: fmt.Sprintf("exceeds maximum of %d hours", maxCacheTTLHours),
		})
	}

	errors = append(errors, validatePathValue("tools.dir", c.Tools.Dir)...)

	return errors
}

// validateNetwork validates the NetworkConfig
func (c *Config) validateNetwork() []ValidationError {
	var errors []ValidationError

	for i, target := range c.Network.ProbeTargets {
		fieldName := fmt.Sprintf("network.probe_targets[%d]", i)

		host, port, err := net.SplitHostPort(target)
		if err != nil {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   target,
				Message: "must be a host:port address",
			})
			continue
		}
		if host == "" || port == "" {
			errors = append(errors, ValidationError{
				Field:   fieldName,
				Value:   target,
				Message: "must name both a host and a port",
			})
		}
	}

	if c.Network.ProbeTTLSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.probe_ttl_seconds",
			Value:   c.Network.ProbeTTLSeconds,
			Message: "must be non-negative (0 probes on every check)",
		})
	}

	if c.Network.ProbeTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.probe_timeout_ms",
			Value:   c.Network.ProbeTimeoutMs,
			Message: "must be non-negative",
		})
	}

	// A probe slower than this blocks operation startup for too long
	const maxProbeTimeoutMs = 60000
	if c.Network.ProbeTimeoutMs > maxProbeTimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "network.probe_timeout_ms",
			Value:   c.Network.ProbeTimeoutMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxProbeTimeoutMs),
		})
	}

	return errors
}

// validateDaemon validates the DaemonConfig
func (c *Config) validateDaemon() []ValidationError {
	var errors []ValidationError

	if c.Daemon.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "daemon.addr",
			Value:   c.Daemon.Addr,
			Message: "cannot be empty",
		})
		return errors
	}

	// Host may be empty (":8910" listens on all interfaces); the port may not
	_, port, err := net.SplitHostPort(c.Daemon.Addr)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   "daemon.addr",
			Value:   c.Daemon.Addr,
			Message: "must be a host:port listen address",
		})
	} else if port == "" {
		errors = append(errors, ValidationError{
			Field:   "daemon.addr",
			Value:   c.Daemon.Addr,
			Message: "must include a port",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	return validatePathValue("paths.data_dir", c.Paths.DataDir)
}

// validatePathValue checks a configured path for characters and lengths no
// filesystem accepts. Empty paths are valid; they mean "use the default".
func validatePathValue(field, path string) []ValidationError {
	var errors []ValidationError

	if path == "" {
		return errors
	}

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
