//go:build unix

package proc

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/hangar-launcher/hangar/internal/errors"
)

// setSysProcAttr places the child in its own process group so signals
// reach the whole tree the tool spawns.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminateProcess asks the child's process group to exit.
func terminateProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid signals the whole group.
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// killProcess forcibly ends the child's process group.
func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// KillByPattern terminates every process whose command line matches
// pattern. Matching nothing is success: the caller's contract is "make
// sure nothing matching this is running".
func KillByPattern(ctx context.Context, pattern string) error {
	out, err := exec.CommandContext(ctx, "pkill", "-f", pattern).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		// pkill exits 1 when no processes matched.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("pkill %q: %w (output: %s)", pattern, err, strings.TrimSpace(string(out)))
	}
	return nil
}
