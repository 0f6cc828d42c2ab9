package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hangar-launcher/hangar/internal/abort"
	"github.com/hangar-launcher/hangar/internal/config"
	"github.com/hangar-launcher/hangar/internal/desktop"
	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/legendary"
	"github.com/hangar-launcher/hangar/internal/library"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/online"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/store"
	"github.com/hangar-launcher/hangar/internal/tools"
	"github.com/hangar-launcher/hangar/internal/tui"
)

// streamBacklog buffers the keyed event stream a command waits on. The
// stream drops its oldest entry when full, so the terminal event always
// lands even if the command falls behind during a download.
const streamBacklog = 64

// app bundles the collaborators every command shares once configuration
// is loaded.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	hub      *relay.Hub
	registry *abort.Registry
	store    *store.Store
	probe    *online.Probe
	games    *library.Manager
	tools    *tools.Manager
}

// newApp loads configuration and wires the managers the one-shot
// commands and the daemon share.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	client, err := legendary.Resolve(cfg.Legendary.Binary)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	st, err := store.NewStore(cfg.StoreDir())
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	hub := relay.NewHub()
	registry := abort.NewRegistry()
	runner := proc.NewExecRunner(log)
	probe := newProbe(cfg, log)

	var integrator library.Integrator
	if cfg.Desktop.Enabled {
		integrator = desktop.NewIntegrator(log)
	}

	games, err := library.NewManager(library.Config{
		Tool:     client,
		Runner:   runner,
		Store:    st,
		Hub:      hub,
		Registry: registry,
		Desktop:  integrator,
		Net:      probe,
		Logger:   log,
		LogDir:   cfg.LogDir(),
		BasePath: cfg.Games.ResolveBasePath(),
		Workers:  cfg.Games.Workers,
		Launch: library.LaunchDefaults{
			WineBin:        cfg.Launch.WineBin,
			WinePrefix:     cfg.Launch.WinePrefix,
			DRIPrime:       cfg.Launch.DRIPrime,
			NvidiaOffload:  cfg.Launch.NvidiaOffload,
			PulseLatencyMs: cfg.Launch.PulseLatencyMs,
			GameMode:       cfg.Launch.GameMode,
		},
	})
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	toolMgr, err := tools.NewManager(tools.Config{
		Dir:      cfg.ToolsDir(),
		Hub:      hub,
		Registry: registry,
		Runner:   runner,
		Net:      probe,
		Logger:   log,
		LogDir:   cfg.LogDir(),
		CacheTTL: cfg.Tools.CacheTTL(),
	})
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		hub:      hub,
		registry: registry,
		store:    st,
		probe:    probe,
		games:    games,
		tools:    toolMgr,
	}, nil
}

// Close releases what newApp opened.
func (a *app) Close() {
	_ = a.log.Close()
}

// newLogger honors the logging section: rotation-capped files under the
// data dir, or a no-op logger when disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(cfg.LogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   true,
	})
}

// newProbe builds the connectivity probe from the network section. Zero
// values keep the probe's built-in defaults.
func newProbe(cfg *config.Config, log *logging.Logger) *online.Probe {
	opts := []online.Option{online.WithTTL(cfg.Network.ProbeTTL())}
	if cfg.Network.ProbeTimeoutMs > 0 {
		opts = append(opts, online.WithTimeout(cfg.Network.ProbeTimeout()))
	}
	if len(cfg.Network.ProbeTargets) > 0 {
		opts = append(opts, online.WithTargets(cfg.Network.ProbeTargets...))
	}
	return online.NewProbe(log, opts...)
}

// interactive reports whether stdout is a terminal the progress view can
// own. --quiet forces the line-mode path.
func (a *app) interactive() bool {
	if quiet {
		return false
	}
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// followOp starts an operation and follows key to its terminal event:
// a live progress view when stdout is a terminal, one line per result
// otherwise. Closing the view does not cancel the operation; the command
// stays attached through the keyed stream until the terminal event lands.
func (a *app) followOp(key, title string, start func() error) error {
	events, stop := a.hub.Stream(key, streamBacklog)
	defer stop()

	if a.interactive() {
		outcome, done, err := tui.Run(a.hub, tui.Config{Title: title, Await: key, Keys: []string{key}}, start)
		if err != nil {
			return err
		}
		if done {
			return outcomeError(key, outcome)
		}
		fmt.Fprintf(os.Stderr, "view closed, still waiting on %s (interrupt aborts)\n", key)
		return a.wait(events, key)
	}

	if err := start(); err != nil {
		return err
	}
	return a.wait(events, key)
}

// wait consumes the keyed stream until the terminal event arrives. A
// first interrupt requests an abort and keeps waiting for the aborted
// result; a second interrupt kills the process the usual way.
func (a *app) wait(events <-chan relay.Event, key string) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	for {
		select {
		case <-sig:
			signal.Stop(sig)
			if a.registry.Abort(key) {
				fmt.Fprintf(os.Stderr, "aborting %s\n", key)
			}
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream for %s replaced before the operation finished", key)
			}
			res, ok := ev.(relay.ResultEvent)
			if !ok {
				continue
			}
			if res.Outcome.Kind == relay.OutcomeSuccess {
				fmt.Printf("%s: success\n", key)
			}
			return outcomeError(key, res.Outcome)
		}
	}
}

// outcomeError maps a terminal outcome to the error the command returns.
// Success maps to nil so the process exits 0.
func outcomeError(key string, out relay.Outcome) error {
	switch out.Kind {
	case relay.OutcomeSuccess:
		return nil
	case relay.OutcomeAborted:
		return errors.Wrapf(errors.ErrAborted, "%s", key)
	default:
		err := out.Err
		if err == nil {
			err = errors.New("operation failed")
		}
		if out.LogPath != "" {
			return errors.Wrapf(err, "%s failed (full log: %s)", key, out.LogPath)
		}
		return errors.Wrapf(err, "%s failed", key)
	}
}
