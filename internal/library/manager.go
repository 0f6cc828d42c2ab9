package library

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/hangar-launcher/hangar/internal/abort"
	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/legendary"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/store"
)

// ResultCallback is invoked after every terminal operation outcome, after
// the relay event has been published. It is optional; the relay remains
// the primary completion channel.
type ResultCallback func(app, op string, outcome relay.Outcome)

// Config carries the collaborators and defaults for a Manager.
type Config struct {
	// Tool is the resolved legendary client. Required.
	Tool legendary.Client
	// Runner executes tool subprocesses. Required.
	Runner proc.Runner
	// Store persists per-game records. Required.
	Store *store.Store
	// Hub receives status, progress and result events. Required.
	Hub *relay.Hub
	// Registry tracks abort handles for in-flight operations. Required.
	Registry *abort.Registry
	// Desktop maintains launcher entries. Nil disables integration.
	Desktop Integrator
	// Presence broadcasts play activity. Nil disables broadcasting.
	Presence Presence
	// Net gates remote-dependent operations. Nil means always online.
	Net Connectivity
	// Logger receives structured logs. Nil discards them.
	Logger *logging.Logger

	// LogDir is where per-operation capture files are written.
	LogDir string
	// BasePath is the default install root when a request names none.
	BasePath string
	// Workers is the default download-worker hint. Zero keeps the
	// tool's own default.
	Workers int
	// Launch holds the environment-composition defaults for launches.
	Launch LaunchDefaults
}

// Manager is the keyed registry of entity controllers. Controllers are
// created lazily on first reference and live for the process lifetime.
// All methods are safe for concurrent use.
type Manager struct {
	tool     legendary.Client
	runner   proc.Runner
	store    *store.Store
	hub      *relay.Hub
	registry *abort.Registry
	desktop  Integrator
	presence Presence
	net      Connectivity
	log      *logging.Logger

	logDir   string
	basePath string
	workers  int
	launch   LaunchDefaults

	// lookPath and kill are indirections over exec.LookPath and
	// proc.KillByPattern so tests can observe them.
	lookPath func(file string) (string, error)
	kill     func(ctx context.Context, pattern string) error

	mu          sync.RWMutex
	controllers map[string]*Controller

	cbMu     sync.RWMutex
	onResult ResultCallback
}

// NewManager validates cfg and creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Tool.Bin == "" {
		return nil, errors.New("library: tool client is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("library: runner is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("library: store is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("library: hub is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("library: abort registry is required")
	}

	m := &Manager{
		tool:        cfg.Tool,
		runner:      cfg.Runner,
		store:       cfg.Store,
		hub:         cfg.Hub,
		registry:    cfg.Registry,
		desktop:     cfg.Desktop,
		presence:    cfg.Presence,
		net:         cfg.Net,
		log:         cfg.Logger,
		logDir:      cfg.LogDir,
		basePath:    cfg.BasePath,
		workers:     cfg.Workers,
		launch:      cfg.Launch,
		lookPath:    exec.LookPath,
		kill:        proc.KillByPattern,
		controllers: make(map[string]*Controller),
	}
	if m.desktop == nil {
		m.desktop = NopIntegrator{}
	}
	if m.presence == nil {
		m.presence = NopPresence{}
	}
	if m.net == nil {
		m.net = alwaysOnline{}
	}
	if m.log == nil {
		m.log = logging.NopLogger()
	}
	if m.logDir == "" {
		m.logDir = filepath.Join(os.TempDir(), "hangar", "logs")
	}
	return m, nil
}

// controller returns the entity's controller, creating it on first
// reference.
func (m *Manager) controller(app string) *Controller {
	m.mu.RLock()
	c, ok := m.controllers[app]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.controllers[app]; ok {
		return c
	}
	c = newController(app, m.hub)
	m.controllers[app] = c
	return c
}

// Status reports the entity's current status. Unknown entities are idle.
func (m *Manager) Status(app string) relay.Status {
	m.mu.RLock()
	c, ok := m.controllers[app]
	m.mu.RUnlock()
	if !ok {
		return relay.StatusIdle
	}
	return c.Status()
}

// Abort requests cancellation of the entity's in-flight operation.
// Returns false when nothing was running.
func (m *Manager) Abort(app string) bool {
	return m.registry.Abort(app)
}

// AbortAll fires cancellation for every in-flight operation and returns
// how many were signalled. Used on shutdown.
func (m *Manager) AbortAll() int {
	return m.registry.AbortAll()
}

// SetResultCallback registers cb for terminal outcomes. Pass nil to
// unregister.
func (m *Manager) SetResultCallback(cb ResultCallback) {
	m.cbMu.Lock()
	m.onResult = cb
	m.cbMu.Unlock()
}

func (m *Manager) notifyResult(app, op string, outcome relay.Outcome) {
	m.cbMu.RLock()
	cb := m.onResult
	m.cbMu.RUnlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("result callback panicked",
				"app", app,
				"op", op,
				"panic", fmt.Sprint(r))
		}
	}()
	cb(app, op, outcome)
}

// finish publishes the operation's single terminal event, returns the
// entity to idle and invokes the optional result callback.
func (m *Manager) finish(ctrl *Controller, verb string, opStatus relay.Status, log *logging.Logger, outcome relay.Outcome) {
	ctrl.end(opStatus, outcome)
	m.notifyResult(ctrl.app, verb, outcome)
	log.Info("operation finished", "outcome", outcome.Kind.String())
}

// dispatch runs a side effect on its own goroutine. Side effects are
// fire-and-forget: failures are logged, panics recovered, and neither
// can reach an operation result.
func (m *Manager) dispatch(log *logging.Logger, effect string, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("side effect panicked",
					"effect", effect,
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
			}
		}()
		if err := fn(); err != nil {
			log.Warn("side effect failed", "effect", effect, "error", err)
		}
	}()
}

// runCapture runs the tool and returns its collected stdout. Used for
// the quick JSON query verbs; lifecycle subprocesses stream instead.
func (m *Manager) runCapture(ctx context.Context, args []string) ([]byte, error) {
	var buf bytes.Buffer
	outcome, err := m.runner.Run(ctx, proc.Request{Path: m.tool.Bin, Args: args}, func(stream proc.Stream, chunk []byte) {
		if stream == proc.StreamStdout {
			buf.Write(chunk)
		}
	})
	if err != nil {
		return nil, err
	}
	if outcome.Killed {
		return nil, errors.ErrAborted
	}
	if outcome.ExitCode != 0 {
		return nil, fmt.Errorf("%w: exit code %d", errors.ErrToolExit, outcome.ExitCode)
	}
	return buf.Bytes(), nil
}

// installInfo queries the tool's per-title metadata. Lookup problems are
// logged and reported as a zero value; progress then runs without a
// predicted total, which is degraded but never fatal.
func (m *Manager) installInfo(ctx context.Context, app string, log *logging.Logger) legendary.InstallInfo {
	out, err := m.runCapture(ctx, m.tool.InfoArgs(app))
	if err != nil {
		log.Warn("install info lookup failed", "error", err)
		return legendary.InstallInfo{}
	}
	info, err := legendary.ParseInfo(out)
	if err != nil {
		log.Warn("install info unreadable", "error", err)
		return legendary.InstallInfo{}
	}
	return info
}

// Entry is one row of the merged library view: the persisted record plus
// whether the account's remote listing contains the title.
type Entry struct {
	store.Record
	Owned bool `json:"owned"`
}

// Library merges the persisted records with the tool's owned-games
// listing. Offline (or when the listing fails) the persisted records are
// returned alone with ownership unknown.
func (m *Manager) Library(ctx context.Context) ([]Entry, error) {
	records, err := m.store.List()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, Entry{Record: rec})
	}

	games, ok := m.ownedGames(ctx)
	if !ok {
		return entries, nil
	}

	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		idx[e.AppName] = i
	}
	for _, g := range games {
		if i, found := idx[g.AppName]; found {
			entries[i].Owned = true
			if entries[i].Title == "" {
				entries[i].Title = g.AppTitle
			}
			continue
		}
		entries = append(entries, Entry{
			Record: store.Record{AppName: g.AppName, Title: g.AppTitle},
			Owned:  true,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].AppName < entries[j].AppName })
	return entries, nil
}

// ownedGames fetches the remote listing. The second return is false when
// the listing is unavailable (offline, tool failure, bad output); the
// caller then serves local records only.
func (m *Manager) ownedGames(ctx context.Context) ([]legendary.GameInfo, bool) {
	if err := m.net.Check(ctx); err != nil {
		m.log.Info("skipping owned-games listing", "error", err)
		return nil, false
	}

	out, err := m.runCapture(ctx, m.tool.ListArgs())
	if err != nil {
		m.log.Warn("owned-games listing failed", "error", err)
		return nil, false
	}
	games, err := legendary.ParseGameList(out)
	if err != nil {
		m.log.Warn("owned-games listing unreadable", "error", err)
		return nil, false
	}
	return games, true
}

// AccountStatus returns the tool's authentication snapshot. Requires
// connectivity.
func (m *Manager) AccountStatus(ctx context.Context) (legendary.ToolStatus, error) {
	if err := m.net.Check(ctx); err != nil {
		return legendary.ToolStatus{}, err
	}
	out, err := m.runCapture(ctx, m.tool.StatusArgs())
	if err != nil {
		return legendary.ToolStatus{}, fmt.Errorf("tool status: %w", err)
	}
	return legendary.ParseStatus(out)
}
