// Package proc runs external tool subprocesses with streamed output and
// prompt, platform-appropriate termination on cancellation.
//
// Output is never buffered into memory wholesale: every chunk read from the
// child's stdout or stderr is handed to the caller's OutputFunc as it
// arrives, which is what makes live progress parsing possible for
// multi-gigabyte downloads. Cancelling the run context terminates the whole
// child process group and reports the run as killed rather than failed.
package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/logging"
)

// Stream identifies which pipe of the child produced a chunk.
type Stream int

const (
	StreamStdout Stream = iota
	StreamStderr
)

// String returns the stream name for logging.
func (s Stream) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// OutputFunc receives raw output chunks in arrival order. Calls are
// serialized by the runner, so implementations need no locking of their
// own. The chunk slice is reused between calls; copy it if you keep it.
type OutputFunc func(stream Stream, chunk []byte)

// Request describes a single subprocess invocation.
type Request struct {
	// Path is the executable to run. Resolved against PATH when relative.
	Path string
	// Args are passed verbatim, without shell interpretation.
	Args []string
	// Env entries ("KEY=value") are appended to the parent environment.
	Env []string
	// Dir is the working directory; empty means inherit.
	Dir string
}

// Outcome reports how a subprocess run ended.
type Outcome struct {
	// ExitCode is the child's exit status. Undefined when Killed is true.
	ExitCode int
	// Killed is true when cancellation terminated the run. A killed run is
	// never a tool failure, whatever exit status the kill produced.
	Killed bool
	// Duration covers start to reap.
	Duration time.Duration
}

// Runner runs subprocesses to completion. Implementations must stream
// output and honor context cancellation promptly.
type Runner interface {
	// Run blocks until the subprocess exits. onOutput may be nil.
	Run(ctx context.Context, req Request, onOutput OutputFunc) (Outcome, error)
}

// readBufSize is the per-stream read buffer. Matches the pipe capacity on
// most Linux systems so a single read drains a full pipe.
const readBufSize = 64 * 1024

// ExecRunner is the os/exec-backed Runner.
type ExecRunner struct {
	log *logging.Logger

	// termGrace is how long a terminated child gets to exit before the
	// hard kill.
	termGrace time.Duration
}

// NewExecRunner creates an ExecRunner. log may be nil.
func NewExecRunner(log *logging.Logger) *ExecRunner {
	return &ExecRunner{
		log:       log,
		termGrace: 5 * time.Second,
	}
}

// Run starts the subprocess and blocks until it exits or ctx is cancelled.
// Spawn problems return ErrSpawnFailed; a non-zero exit is reported through
// Outcome.ExitCode, not through the error.
func (r *ExecRunner) Run(ctx context.Context, req Request, onOutput OutputFunc) (Outcome, error) {
	if req.Path == "" {
		return Outcome{}, fmt.Errorf("%w: empty executable path", errors.ErrSpawnFailed)
	}

	cmd := exec.Command(req.Path, req.Args...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	// Place the child in its own process group so a kill reaches any
	// helpers it spawned.
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: stdout pipe: %v", errors.ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: stderr pipe: %v", errors.ErrSpawnFailed, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %v", errors.ErrSpawnFailed, filepath.Base(req.Path), err)
	}

	r.log.Debug("subprocess started",
		"exe", filepath.Base(req.Path),
		"pid", cmd.Process.Pid,
		"args", len(req.Args))

	// Drain both pipes concurrently; callbacks are serialized so the
	// consumer sees chunks one at a time.
	var cbMu sync.Mutex
	emit := func(stream Stream, chunk []byte) {
		if onOutput == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		onOutput(stream, chunk)
	}

	var drain sync.WaitGroup
	drain.Add(2)
	go r.drainPipe(&drain, StreamStdout, stdout, emit)
	go r.drainPipe(&drain, StreamStderr, stderr, emit)

	// Wait must run after the drain goroutines finish reading the pipes.
	waitErrCh := make(chan error, 1)
	go func() {
		drain.Wait()
		waitErrCh <- cmd.Wait()
	}()

	var killed bool
	var waitErr error
	select {
	case waitErr = <-waitErrCh:
	case <-ctx.Done():
		killed = true
		terminateProcess(cmd)
		select {
		case waitErr = <-waitErrCh:
		case <-time.After(r.termGrace):
			r.log.Warn("subprocess ignored termination, killing",
				"pid", cmd.Process.Pid,
				"grace", r.termGrace.String())
			killProcess(cmd)
			waitErr = <-waitErrCh
		}
	}

	outcome := Outcome{
		Killed:   killed,
		Duration: time.Since(start),
	}

	if killed {
		r.log.Info("subprocess killed by cancellation",
			"exe", filepath.Base(req.Path),
			"pid", cmd.Process.Pid,
			"duration", outcome.Duration.String())
		return outcome, nil
	}

	outcome.ExitCode = exitCode(waitErr)
	if waitErr != nil && outcome.ExitCode < 0 {
		// Wait failed for a reason other than a non-zero exit status.
		return outcome, fmt.Errorf("wait for %s: %w", filepath.Base(req.Path), waitErr)
	}

	r.log.Debug("subprocess exited",
		"exe", filepath.Base(req.Path),
		"pid", cmd.Process.Pid,
		"exit_code", outcome.ExitCode,
		"duration", outcome.Duration.String())
	return outcome, nil
}

// drainPipe reads a pipe to EOF, forwarding chunks. Read errors other than
// EOF end the drain; the subsequent Wait surfaces anything fatal.
func (r *ExecRunner) drainPipe(wg *sync.WaitGroup, stream Stream, pipe io.Reader, emit func(Stream, []byte)) {
	defer wg.Done()

	buf := make([]byte, readBufSize)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			emit(stream, buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// exitCode maps a Wait error to the child's exit status. Returns -1 when
// no status is available.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
