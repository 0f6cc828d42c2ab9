// Package legendary composes command lines for the legendary CLI, the
// external tool that performs all Epic Games Store work. It knows the
// tool's subcommands and flags; spawning and supervision live in proc, and
// operation policy lives in library.
package legendary

import (
	"fmt"
	"os"
	"os/exec"
)

// DefaultBinary is looked up on PATH when no explicit path is configured.
const DefaultBinary = "legendary"

// Client composes argument vectors for one legendary installation.
type Client struct {
	// Bin is the resolved path to the legendary executable.
	Bin string
}

// Resolve locates the legendary executable. An explicit configured path
// wins; otherwise PATH is searched.
func Resolve(configured string) (Client, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return Client{}, fmt.Errorf("configured legendary binary: %w", err)
		}
		return Client{Bin: configured}, nil
	}

	path, err := exec.LookPath(DefaultBinary)
	if err != nil {
		return Client{}, fmt.Errorf("legendary not found on PATH: %w", err)
	}
	return Client{Bin: path}, nil
}

// InstallArgs builds the argument vector for a fresh install into
// basePath. workers <= 0 leaves the tool's own download concurrency in
// place.
func (c Client) InstallArgs(app, basePath string, workers int) []string {
	args := []string{"-y", "install", app, "--base-path", basePath}
	return appendWorkers(args, workers)
}

// UpdateArgs builds the argument vector for updating an installed entity.
func (c Client) UpdateArgs(app string, workers int) []string {
	args := []string{"-y", "update", app}
	return appendWorkers(args, workers)
}

// RepairArgs builds the argument vector for verify-and-repair. The tool
// runs its verification pass first and downloads only damaged chunks.
func (c Client) RepairArgs(app string, workers int) []string {
	args := []string{"-y", "repair", app}
	return appendWorkers(args, workers)
}

// UninstallArgs builds the argument vector for removing an installation.
// keepFiles removes only the tool's registration and leaves the game files
// on disk.
func (c Client) UninstallArgs(app string, keepFiles bool) []string {
	args := []string{"-y", "uninstall", app}
	if keepFiles {
		args = append(args, "--keep-files")
	}
	return args
}

// ImportArgs registers an existing on-disk installation at path with the
// tool without downloading anything.
func (c Client) ImportArgs(app, path string) []string {
	return []string{"-y", "import", app, path}
}

// SyncSavesArgs builds the argument vector for cloud save sync. savePath
// may be empty when the tool already knows the save location. The skip
// flags make the sync one-directional; both set means the tool only
// reports state.
func (c Client) SyncSavesArgs(app, savePath string, skipUpload, skipDownload bool) []string {
	args := []string{"-y", "sync-saves", app}
	if savePath != "" {
		args = append(args, "--save-path", savePath)
	}
	if skipUpload {
		args = append(args, "--skip-upload")
	}
	if skipDownload {
		args = append(args, "--skip-download")
	}
	return args
}

// MoveArgs updates the tool's record of where an installation lives.
// skipMove tells the tool the files were already relocated so it only
// rewrites its config, which is how the library controller uses it after
// performing the physical move itself.
func (c Client) MoveArgs(app, dstRoot string, skipMove bool) []string {
	args := []string{"move", app, dstRoot}
	if skipMove {
		args = append(args, "--skip-move")
	}
	return args
}

// LaunchOptions carries the per-launch tool flags. Environment composition
// (prefix variables, performance toggles) is the caller's concern; these
// are only the flags legendary itself understands.
type LaunchOptions struct {
	// WineBin is the wine or proton binary to run the title with.
	WineBin string
	// WinePrefix is the compatibility prefix directory.
	WinePrefix string
	// Offline skips the ownership check and launches without EGS auth.
	Offline bool
	// SkipVersionCheck launches even when an update is pending.
	SkipVersionCheck bool
	// ExtraArgs are appended after "--" for the game itself.
	ExtraArgs []string
}

// LaunchArgs builds the argument vector for launching a title.
func (c Client) LaunchArgs(app string, opts LaunchOptions) []string {
	args := []string{"launch", app}
	if opts.WineBin != "" {
		args = append(args, "--wine", opts.WineBin)
	}
	if opts.WinePrefix != "" {
		args = append(args, "--wine-prefix", opts.WinePrefix)
	}
	if opts.Offline {
		args = append(args, "--offline")
	}
	if opts.SkipVersionCheck {
		args = append(args, "--skip-version-check")
	}
	if len(opts.ExtraArgs) > 0 {
		args = append(args, "--")
		args = append(args, opts.ExtraArgs...)
	}
	return args
}

// ListArgs builds the argument vector for the owned-games listing in JSON
// form.
func (c Client) ListArgs() []string {
	return []string{"list", "--json"}
}

// InfoArgs builds the argument vector for per-title metadata in JSON form,
// including download and disk sizes.
func (c Client) InfoArgs(app string) []string {
	return []string{"info", app, "--json"}
}

// StatusArgs builds the argument vector for the tool's auth and cache
// status in JSON form.
func (c Client) StatusArgs() []string {
	return []string{"status", "--json"}
}

func appendWorkers(args []string, workers int) []string {
	if workers > 0 {
		args = append(args, "--max-workers", fmt.Sprint(workers))
	}
	return args
}
