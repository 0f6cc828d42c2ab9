//go:build windows

package proc

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"github.com/hangar-launcher/hangar/internal/errors"
)

// setSysProcAttr creates the child in its own process group so the group
// can be terminated as a unit.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateProcess ends the child's process tree. Windows has no graceful
// SIGTERM equivalent for console-less children, so taskkill handles the
// tree and killProcess is the fallback for the direct child.
func terminateProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	if err := kill.Run(); err != nil {
		_ = cmd.Process.Kill()
	}
}

// killProcess forcibly ends the direct child.
func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

// KillByPattern terminates every process whose image name matches pattern.
// Matching nothing is success: the caller's contract is "make sure nothing
// matching this is running".
func KillByPattern(ctx context.Context, pattern string) error {
	out, err := exec.CommandContext(ctx, "taskkill", "/F", "/IM", pattern).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		// taskkill exits 128 when no processes matched.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
			return nil
		}
		return fmt.Errorf("taskkill %q: %w (output: %s)", pattern, err, strings.TrimSpace(string(out)))
	}
	return nil
}
