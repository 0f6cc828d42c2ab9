package library

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/legendary"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/store"
)

// LaunchDefaults is the environment-composition policy applied to every
// launch. Per-launch options override the binary and prefix.
type LaunchDefaults struct {
	// WineBin is the wine or proton binary used when neither the
	// request nor the record names one.
	WineBin string
	// WinePrefix is the fallback compatibility prefix.
	WinePrefix string
	// DRIPrime, when set, exports DRI_PRIME for PRIME GPU offload.
	DRIPrime string
	// NvidiaOffload exports the NVIDIA PRIME render-offload pair.
	NvidiaOffload bool
	// PulseLatencyMs, when positive, exports PULSE_LATENCY_MSEC to
	// work around crackling audio under some wine builds.
	PulseLatencyMs int
	// GameMode prepends gamemoderun when it is on PATH.
	GameMode bool
}

// LaunchOptions are the per-launch overrides.
type LaunchOptions struct {
	WineBin          string
	WinePrefix       string
	Offline          bool
	SkipVersionCheck bool
	ExtraArgs        []string
}

// Launch starts an installed title and holds its status at Running until
// the process exits. Launches are deliberately not tracked in the abort
// registry: terminating a running game is Stop's job, a different act
// from aborting a transfer. The terminal event fires when the game
// exits.
func (m *Manager) Launch(app string, opts LaunchOptions) (string, error) {
	rec, err := m.store.Get(app)
	if err != nil || !rec.Installed {
		return "", fmt.Errorf("%w: %s", errors.ErrNotInstalled, app)
	}

	ctrl := m.controller(app)
	if err := ctrl.begin(relay.StatusLaunching); err != nil {
		return "", err
	}

	opID := uuid.New().String()
	log := m.log.WithGame(app).WithOp(opLaunch, opID)
	log.Info("launch started")

	go m.runLaunch(ctrl, rec, opts, log)
	return opID, nil
}

func (m *Manager) runLaunch(ctrl *Controller, rec store.Record, opts LaunchOptions, log *logging.Logger) {
	app := ctrl.app

	var logPath string
	oplog, err := logging.NewOperationLog(m.logDir, app, opLaunch)
	if err != nil {
		log.Warn("operation capture unavailable", "error", err)
	} else {
		logPath = oplog.Path()
		defer oplog.Close()
	}

	lopts := legendary.LaunchOptions{
		WineBin:          firstNonEmpty(opts.WineBin, m.launch.WineBin),
		WinePrefix:       firstNonEmpty(opts.WinePrefix, rec.WinePrefix, m.launch.WinePrefix),
		Offline:          opts.Offline,
		SkipVersionCheck: opts.SkipVersionCheck,
		ExtraArgs:        opts.ExtraArgs,
	}

	req := proc.Request{
		Path: m.tool.Bin,
		Args: m.tool.LaunchArgs(app, lopts),
		Env:  composeLaunchEnv(lopts.WinePrefix, m.launch),
	}
	if m.launch.GameMode {
		gm, err := m.lookPath("gamemoderun")
		if err != nil {
			log.Debug("gamemoderun not on PATH, launching without it")
		} else {
			req.Args = append([]string{req.Path}, req.Args...)
			req.Path = gm
		}
	}

	title := rec.Title
	if title == "" {
		title = app
	}

	ctrl.transition(relay.StatusRunning)
	m.dispatch(log, "presence start", func() error {
		m.presence.GameStarted(app, title)
		return nil
	})

	onOutput := func(stream proc.Stream, chunk []byte) {
		if oplog != nil {
			oplog.Write(chunk)
		}
	}

	// Launch outlives any request context; only Stop ends it.
	result, runErr := m.runner.Run(context.Background(), req, onOutput)

	m.dispatch(log, "presence stop", func() error {
		m.presence.GameStopped(app)
		return nil
	})

	switch {
	case runErr != nil:
		gameErr := errors.NewGameError("launch failed", runErr).
			WithApp(app).WithOperation(opLaunch).WithLogPath(logPath)
		log.Error("launch spawn failed", "error", runErr)
		m.finish(ctrl, opLaunch, relay.StatusRunning, log, relay.Failure(gameErr, logPath))
	case result.ExitCode != 0:
		gameErr := errors.NewGameError("game exited abnormally",
			fmt.Errorf("%w: exit code %d", errors.ErrToolExit, result.ExitCode)).
			WithApp(app).WithOperation(opLaunch).WithLogPath(logPath)
		log.Warn("game exited non-zero",
			"exit_code", result.ExitCode,
			"duration", result.Duration.String())
		m.finish(ctrl, opLaunch, relay.StatusRunning, log, relay.Failure(gameErr, logPath))
	default:
		log.Info("game exited", "duration", result.Duration.String())
		m.finish(ctrl, opLaunch, relay.StatusRunning, log, relay.Succeeded())
	}
}

// Stop terminates a running title by matching its install path against
// live process command lines. Stop is idempotent; nothing to stop is
// success.
func (m *Manager) Stop(ctx context.Context, app string) error {
	rec, err := m.store.Get(app)
	if err != nil || rec.InstallPath == "" {
		m.log.WithGame(app).Debug("no install path on record, nothing to stop")
		return nil
	}

	m.log.WithGame(app).Info("stopping processes", "pattern", rec.InstallPath)
	if err := m.kill(ctx, rec.InstallPath); err != nil {
		return errors.Wrapf(err, "stop %s", app)
	}
	return nil
}

// composeLaunchEnv builds the launch environment additions from the
// resolved prefix and the configured GPU and audio toggles.
func composeLaunchEnv(winePrefix string, d LaunchDefaults) []string {
	var env []string
	if winePrefix != "" {
		env = append(env, "WINEPREFIX="+winePrefix)
	}
	if d.DRIPrime != "" {
		env = append(env, "DRI_PRIME="+d.DRIPrime)
	}
	if d.NvidiaOffload {
		env = append(env,
			"__NV_PRIME_RENDER_OFFLOAD=1",
			"__GLX_VENDOR_LIBRARY_NAME=nvidia")
	}
	if d.PulseLatencyMs > 0 {
		env = append(env, fmt.Sprintf("PULSE_LATENCY_MSEC=%d", d.PulseLatencyMs))
	}
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
