package library

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hangar-launcher/hangar/internal/abort"
	"github.com/hangar-launcher/hangar/internal/desktop"
	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/legendary"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/progress"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/store"
)

// Operation verbs as they appear in log attrs, capture file names and
// result callbacks.
const (
	opInstall   = "install"
	opUpdate    = "update"
	opRepair    = "repair"
	opUninstall = "uninstall"
	opImport    = "import"
	opSyncSaves = "sync-saves"
	opMove      = "move"
	opLaunch    = "launch"
)

// toolOp describes one subprocess-backed lifecycle operation for the
// uniform runner in execute.
type toolOp struct {
	verb   string
	status relay.Status
	args   []string

	// remote marks operations that need connectivity before spawning.
	remote bool
	// offlineSkip turns an offline condition into a logged no-op
	// success instead of a failure.
	offlineSkip bool
	// fetchTotal pre-queries the download size so progress snapshots
	// carry byte figures from the first line.
	fetchTotal bool
	// metadataOnly marks spawns whose real work already happened in
	// prepare. Their problems are logged, never terminal.
	metadataOnly bool

	// prepare runs before the spawn; a failure is terminal and the
	// tool never runs.
	prepare func(ctx context.Context, log *logging.Logger) error
	// commit applies the persisted-state flip after a successful run.
	commit func(ctx context.Context, info legendary.InstallInfo) error
	// effects dispatches side effects once the outcome is final. Only
	// called when the tool actually ran.
	effects func(kind relay.OutcomeKind, log *logging.Logger)
}

// startOp claims the entity, registers the abort handle and hands the
// operation to its own goroutine. The returned ID correlates the
// operation's log lines and events.
func (m *Manager) startOp(app string, op toolOp) (string, error) {
	ctrl := m.controller(app)
	if err := ctrl.begin(op.status); err != nil {
		return "", err
	}

	opID := uuid.New().String()
	log := m.log.WithGame(app).WithOp(op.verb, opID)

	handle, err := m.registry.Register(app)
	if err != nil {
		// The controller serializes operations per key, so a live
		// handle here is a bug, not a race to tolerate.
		wrapped := errors.Wrapf(err, "%s %s", op.verb, app)
		log.Error("abort handle registration failed", "error", wrapped)
		m.finish(ctrl, op.verb, op.status, log, relay.Failure(wrapped, ""))
		return "", wrapped
	}

	log.Info("operation started")
	go m.execute(ctrl, handle, log, op)
	return opID, nil
}

// execute is the uniform operation body. It runs on its own goroutine
// and guarantees the sequence: outcome finalized, persisted state
// flipped, side effects dispatched, handle unregistered, entity idle
// with exactly one terminal event.
func (m *Manager) execute(ctrl *Controller, handle *abort.Handle, log *logging.Logger, op toolOp) {
	app := ctrl.app
	ctx := handle.Context()

	var logPath string
	oplog, err := logging.NewOperationLog(m.logDir, app, op.verb)
	if err != nil {
		// Capture is best effort; the operation itself proceeds.
		log.Warn("operation capture unavailable", "error", err)
	} else {
		logPath = oplog.Path()
	}

	outcome, info, ran := m.runTool(ctx, app, handle, op, oplog, logPath, log)

	if oplog != nil {
		if err := oplog.Close(); err != nil {
			log.Warn("operation capture close failed", "error", err)
		}
	}

	if ran {
		if outcome.Kind == relay.OutcomeSuccess && op.commit != nil {
			if err := op.commit(ctx, info); err != nil {
				// The tool already finished; a record-write failure
				// must not repaint the result.
				log.Error("record update failed", "error", err)
			}
		}
		if op.effects != nil {
			op.effects(outcome.Kind, log)
		}
	}

	m.registry.Unregister(app)
	m.finish(ctrl, op.verb, op.status, log, outcome)
}

// runTool performs the connectivity gate, the preparation step and the
// spawn, then classifies the result. ran reports whether the subprocess
// actually started, which gates the state flip and side effects.
func (m *Manager) runTool(ctx context.Context, app string, handle *abort.Handle, op toolOp, oplog *logging.OperationLog, logPath string, log *logging.Logger) (relay.Outcome, legendary.InstallInfo, bool) {
	var info legendary.InstallInfo

	if op.remote {
		if err := m.net.Check(ctx); err != nil {
			if op.offlineSkip {
				log.Info("offline, skipping", "error", err)
				return relay.Succeeded(), info, false
			}
			gameErr := errors.NewGameError("offline", err).
				WithApp(app).WithOperation(op.verb)
			return relay.Failure(gameErr, logPath), info, false
		}
	}

	if op.prepare != nil {
		if err := op.prepare(ctx, log); err != nil {
			if handle.Aborted() || errors.Is(err, context.Canceled) {
				log.Info("operation aborted during preparation")
				return relay.Cancelled(), info, false
			}
			gameErr := errors.NewGameError("preparation failed", err).
				WithApp(app).WithOperation(op.verb).WithLogPath(logPath)
			log.Error("preparation failed", "error", err)
			return relay.Failure(gameErr, logPath), info, false
		}
	}

	if op.fetchTotal {
		info = m.installInfo(ctx, app, log)
	}

	parser := progress.NewParser(info.DownloadSize)
	onOutput := func(stream proc.Stream, chunk []byte) {
		if oplog != nil {
			oplog.Write(chunk)
		}
		for _, snap := range parser.Feed(chunk) {
			m.hub.Publish(relay.NewProgressEvent(app, op.status, snap))
		}
	}

	result, runErr := m.runner.Run(ctx, proc.Request{Path: m.tool.Bin, Args: op.args}, onOutput)
	for _, snap := range parser.Flush() {
		m.hub.Publish(relay.NewProgressEvent(app, op.status, snap))
	}

	if op.metadataOnly {
		switch {
		case result.Killed || handle.Aborted():
			log.Warn("metadata sync interrupted")
		case runErr != nil:
			log.Warn("metadata sync could not run", "error", runErr)
		case result.ExitCode != 0:
			log.Warn("metadata sync exited non-zero", "exit_code", result.ExitCode)
		}
		return relay.Succeeded(), info, true
	}

	switch {
	case result.Killed || handle.Aborted():
		log.Info("operation aborted", "duration", result.Duration.String())
		return relay.Cancelled(), info, true
	case runErr != nil:
		gameErr := errors.NewGameError("tool could not run", runErr).
			WithApp(app).WithOperation(op.verb).WithLogPath(logPath)
		log.Error("spawn failed", "error", runErr)
		return relay.Failure(gameErr, logPath), info, true
	case result.ExitCode != 0:
		gameErr := errors.NewGameError("tool reported failure",
			fmt.Errorf("%w: exit code %d", errors.ErrToolExit, result.ExitCode)).
			WithApp(app).WithOperation(op.verb).WithLogPath(logPath)
		log.Warn("tool exited non-zero",
			"exit_code", result.ExitCode,
			"duration", result.Duration.String())
		return relay.Failure(gameErr, logPath), info, true
	default:
		log.Info("tool finished", "duration", result.Duration.String())
		return relay.Succeeded(), info, true
	}
}

// requireInstalled fails fast when an operation needs an installed
// title.
func (m *Manager) requireInstalled(app string) error {
	rec, err := m.store.Get(app)
	if err != nil || !rec.Installed {
		return fmt.Errorf("%w: %s", errors.ErrNotInstalled, app)
	}
	return nil
}

// desktopAddOnSuccess dispatches launcher-entry creation after a
// successful operation.
func (m *Manager) desktopAddOnSuccess(app string) func(relay.OutcomeKind, *logging.Logger) {
	return func(kind relay.OutcomeKind, log *logging.Logger) {
		if kind != relay.OutcomeSuccess {
			return
		}
		m.dispatch(log, "desktop add", func() error {
			title := app
			if rec, err := m.store.Get(app); err == nil && rec.Title != "" {
				title = rec.Title
			}
			return m.desktop.Add(desktop.Entry{AppName: app, Title: title})
		})
	}
}

// Install downloads and installs a title under basePath (the configured
// default when empty). workers caps the tool's download concurrency;
// zero keeps the configured default. The operation runs asynchronously;
// the returned ID correlates its events and log lines.
func (m *Manager) Install(app, basePath string, workers int) (string, error) {
	if basePath == "" {
		basePath = m.basePath
	}
	if basePath == "" {
		return "", errors.NewGameError("no install path configured", nil).
			WithApp(app).WithOperation(opInstall)
	}
	if workers == 0 {
		workers = m.workers
	}

	return m.startOp(app, toolOp{
		verb:       opInstall,
		status:     relay.StatusInstalling,
		args:       m.tool.InstallArgs(app, basePath, workers),
		remote:     true,
		fetchTotal: true,
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			// install_path only appears in the info document once the
			// title is installed, so query again now that it is.
			if fresh := m.installInfo(ctx, app, m.log.WithGame(app)); fresh.InstallPath != "" {
				info = fresh
			}
			path := info.InstallPath
			if path == "" {
				path = filepath.Join(basePath, app)
			}
			return m.store.Update(app, func(rec *store.Record) {
				rec.Installed = true
				rec.InstallPath = path
				rec.Version = info.Version
				rec.DiskSize = info.DiskSize
				if info.Title != "" {
					rec.Title = info.Title
				}
				if info.Platform != "" {
					rec.Platform = info.Platform
				}
			})
		},
		effects: m.desktopAddOnSuccess(app),
	})
}

// Update applies a pending update to an installed title.
func (m *Manager) Update(app string, workers int) (string, error) {
	if err := m.requireInstalled(app); err != nil {
		return "", err
	}
	if workers == 0 {
		workers = m.workers
	}

	return m.startOp(app, toolOp{
		verb:       opUpdate,
		status:     relay.StatusUpdating,
		args:       m.tool.UpdateArgs(app, workers),
		remote:     true,
		fetchTotal: true,
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			return m.store.Update(app, func(rec *store.Record) {
				rec.Installed = true
				if info.Version != "" {
					rec.Version = info.Version
				}
				if info.Platform != "" {
					rec.Platform = info.Platform
				}
				if info.DiskSize > 0 {
					rec.DiskSize = info.DiskSize
				}
			})
		},
		effects: m.desktopAddOnSuccess(app),
	})
}

// Repair verifies an installation and re-downloads damaged chunks.
func (m *Manager) Repair(app string, workers int) (string, error) {
	if err := m.requireInstalled(app); err != nil {
		return "", err
	}
	if workers == 0 {
		workers = m.workers
	}

	return m.startOp(app, toolOp{
		verb:       opRepair,
		status:     relay.StatusRepairing,
		args:       m.tool.RepairArgs(app, workers),
		remote:     true,
		fetchTotal: true,
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			return m.store.Update(app, func(rec *store.Record) {
				rec.Installed = true
			})
		},
		effects: m.desktopAddOnSuccess(app),
	})
}

// Uninstall removes a title. The persisted installed flag is cleared
// before the tool runs so a crash can never leave a ghost record, and a
// tool failure does not restore it. keepFiles removes only the tool's
// registration and leaves the game files on disk.
func (m *Manager) Uninstall(app string, keepFiles bool) (string, error) {
	if err := m.requireInstalled(app); err != nil {
		return "", err
	}

	return m.startOp(app, toolOp{
		verb:   opUninstall,
		status: relay.StatusUninstalling,
		args:   m.tool.UninstallArgs(app, keepFiles),
		prepare: func(ctx context.Context, log *logging.Logger) error {
			return m.store.Update(app, func(rec *store.Record) {
				rec.Installed = false
			})
		},
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			return m.store.Update(app, func(rec *store.Record) {
				rec.InstallPath = ""
				rec.Version = ""
			})
		},
		effects: func(kind relay.OutcomeKind, log *logging.Logger) {
			// Launcher-entry removal happens whatever the tool said;
			// the record is already flagged not installed.
			m.dispatch(log, "desktop remove", func() error {
				return m.desktop.Remove(app)
			})
		},
	})
}

// Import registers an existing on-disk installation with the tool and,
// on success, records it as installed at that path.
func (m *Manager) Import(app, path string) (string, error) {
	if path == "" {
		return "", errors.NewGameError("import path required", nil).
			WithApp(app).WithOperation(opImport)
	}

	return m.startOp(app, toolOp{
		verb:   opImport,
		status: relay.StatusImporting,
		args:   m.tool.ImportArgs(app, path),
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			// The info document fills in once the title is registered,
			// so query it now for version, size and platform.
			info = m.installInfo(ctx, app, m.log.WithGame(app))
			return m.store.Update(app, func(rec *store.Record) {
				rec.Installed = true
				rec.InstallPath = path
				if info.Title != "" {
					rec.Title = info.Title
				}
				if info.Version != "" {
					rec.Version = info.Version
				}
				if info.Platform != "" {
					rec.Platform = info.Platform
				}
				if info.DiskSize > 0 {
					rec.DiskSize = info.DiskSize
				}
			})
		},
		effects: m.desktopAddOnSuccess(app),
	})
}

// SyncSaves reconciles local and cloud saves. Offline it is a logged
// no-op success; save sync runs periodically and is safe to skip. The
// skip flags restrict the sync to one direction.
func (m *Manager) SyncSaves(app, savePath string, skipUpload, skipDownload bool) (string, error) {
	if err := m.requireInstalled(app); err != nil {
		return "", err
	}

	return m.startOp(app, toolOp{
		verb:        opSyncSaves,
		status:      relay.StatusSyncingSaves,
		args:        m.tool.SyncSavesArgs(app, savePath, skipUpload, skipDownload),
		remote:      true,
		offlineSkip: true,
	})
}
