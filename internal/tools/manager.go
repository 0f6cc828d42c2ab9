// Package tools manages versioned runner tools: Wine and Proton builds
// and DXVK releases. It fetches per-kind release catalogs, installs
// versions through a download-verify-unpack pipeline that reports
// progress over the same relay channel the game lifecycle uses, and
// keeps IsInstalled/HasUpdate flags synchronized with the install
// directory.
//
// Entity keys are "<kind>-<version>". Install is asynchronous and
// abortable like a game operation; Remove and catalog refresh are
// synchronous.
package tools

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hangar-launcher/hangar/internal/abort"
	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/progress"
	"github.com/hangar-launcher/hangar/internal/relay"
)

// Connectivity gates remote fetches. A nil error means online.
type Connectivity interface {
	Check(ctx context.Context) error
}

type alwaysOnline struct{}

func (alwaysOnline) Check(context.Context) error { return nil }

// Config carries the collaborators and defaults for a Manager.
type Config struct {
	// Dir is the root under which versions install
	// ({Dir}/{kind}/{version}) and the catalog cache lives. Required.
	Dir string
	// Hub receives status, progress and result events. Required.
	Hub *relay.Hub
	// Registry tracks abort handles for in-flight installs. Required.
	Registry *abort.Registry
	// Runner executes the tar subprocess for .tar.xz archives.
	// Required.
	Runner proc.Runner
	// Net gates remote fetches. Nil means always online.
	Net Connectivity
	// Logger receives structured logs. Nil discards them.
	Logger *logging.Logger
	// LogDir is where per-operation capture files are written.
	LogDir string
	// Client performs catalog and archive requests. Nil uses a
	// default client without a global timeout; downloads run long.
	Client *http.Client
	// APIBase overrides the release API endpoint, for tests.
	APIBase string
	// CacheTTL is how long a fetched catalog stays fresh. Zero means
	// six hours.
	CacheTTL time.Duration
	// Sources overrides the per-kind release feeds.
	Sources map[Kind]Source
}

// Manager owns the tool catalog and its install pipeline. Safe for
// concurrent use.
type Manager struct {
	dir      string
	hub      *relay.Hub
	registry *abort.Registry
	runner   proc.Runner
	net      Connectivity
	log      *logging.Logger
	logDir   string
	client   *http.Client
	apiBase  string
	cacheTTL time.Duration
	sources  map[Kind]Source

	cachePath string

	mu        sync.RWMutex
	catalog   []Descriptor
	fetchedAt time.Time
	statuses  map[string]relay.Status
}

// NewManager validates cfg, creates a Manager and loads the cached
// catalog if one exists.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, errors.New("tools: install dir is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("tools: hub is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tools: abort registry is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("tools: runner is required")
	}

	m := &Manager{
		dir:       cfg.Dir,
		hub:       cfg.Hub,
		registry:  cfg.Registry,
		runner:    cfg.Runner,
		net:       cfg.Net,
		log:       cfg.Logger,
		logDir:    cfg.LogDir,
		client:    cfg.Client,
		apiBase:   cfg.APIBase,
		cacheTTL:  cfg.CacheTTL,
		sources:   cfg.Sources,
		cachePath: filepath.Join(cfg.Dir, "catalog.json"),
		statuses:  make(map[string]relay.Status),
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
	if m.client == nil {
		m.client = &http.Client{}
	}
	if m.apiBase == "" {
		m.apiBase = "https://api.github.com"
	}
	if m.cacheTTL == 0 {
		m.cacheTTL = 6 * time.Hour
	}
	if m.sources == nil {
		m.sources = DefaultSources()
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("tools: create install dir: %w", err)
	}

	if cache, err := loadCache(m.cachePath); err == nil {
		m.catalog = cache.Descriptors
		m.fetchedAt = cache.FetchedAt
		m.rescanLocked()
	} else if !os.IsNotExist(err) {
		m.log.Warn("tool catalog cache unreadable", "error", err)
	}
	return m, nil
}

// installDir is where a version lives once installed.
func (m *Manager) installDir(kind Kind, version string) string {
	return filepath.Join(m.dir, string(kind), version)
}

// Status reports the key's current status. Unknown keys are idle.
func (m *Manager) Status(key string) relay.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[key]
}

// Abort requests cancellation of an in-flight install. Returns false
// when nothing was running.
func (m *Manager) Abort(key string) bool {
	return m.registry.Abort(key)
}

// Catalog returns the current descriptors, newest release first within
// each kind.
func (m *Manager) Catalog() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, len(m.catalog))
	copy(out, m.catalog)
	return out
}

// Lookup finds one version in the catalog.
func (m *Manager) Lookup(kind Kind, version string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.catalog {
		if d.Kind == kind && d.Version == version {
			return d, true
		}
	}
	return Descriptor{}, false
}

// begin claims key for an operation, mirroring the game lifecycle's
// single-operation-per-entity rule.
func (m *Manager) begin(key string, status relay.Status) error {
	m.mu.Lock()
	if cur := m.statuses[key]; !cur.AtRest() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", errors.ErrOperationInProgress, key, cur)
	}
	m.statuses[key] = status
	m.mu.Unlock()

	m.hub.Publish(relay.NewStatusEvent(key, status))
	return nil
}

// transition moves a claimed key to the next phase.
func (m *Manager) transition(key string, status relay.Status) {
	m.mu.Lock()
	m.statuses[key] = status
	m.mu.Unlock()

	m.hub.Publish(relay.NewStatusEvent(key, status))
}

// finish releases key and publishes the operation's single terminal
// event. opStatus is the phase the result belongs to.
func (m *Manager) finish(key string, opStatus relay.Status, log *logging.Logger, outcome relay.Outcome) {
	m.mu.Lock()
	m.statuses[key] = relay.StatusIdle
	m.mu.Unlock()

	m.hub.Publish(relay.NewResultEvent(key, opStatus, outcome))
	log.Info("operation finished", "outcome", outcome.Kind.String())
}

// Install downloads, verifies and unpacks a catalog version. It returns
// immediately with an operation ID; completion arrives as a ResultEvent
// for the version's key. Reinstalling an installed version replaces it.
func (m *Manager) Install(kind Kind, version string) (string, error) {
	desc, ok := m.Lookup(kind, version)
	if !ok {
		return "", fmt.Errorf("%w: %s %s", errors.ErrVersionNotFound, kind, version)
	}

	key := desc.Key()
	if err := m.begin(key, relay.StatusDownloading); err != nil {
		return "", err
	}

	opID := uuid.New().String()
	log := m.log.WithTool(string(kind), version).WithOp("install", opID)

	handle, err := m.registry.Register(key)
	if err != nil {
		// The status map serializes operations per key, so a live
		// handle here is a bug, not a race to tolerate.
		wrapped := errors.Wrapf(err, "install %s", key)
		log.Error("abort handle registration failed", "error", wrapped)
		m.finish(key, relay.StatusDownloading, log, relay.Failure(wrapped, ""))
		return "", wrapped
	}

	log.Info("tool install started", "url", desc.DownloadURL)
	go m.runInstall(key, desc, handle, log)
	return opID, nil
}

// runInstall is the asynchronous install body: fetch, verify, unpack,
// commit, exactly one terminal event.
func (m *Manager) runInstall(key string, desc Descriptor, handle *abort.Handle, log *logging.Logger) {
	ctx := handle.Context()

	var logPath string
	oplog, err := logging.NewOperationLog(m.logDir, key, "install")
	if err != nil {
		log.Warn("operation capture unavailable", "error", err)
	} else {
		logPath = oplog.Path()
		defer oplog.Close()
	}
	note := func(format string, args ...any) {
		if oplog != nil {
			fmt.Fprintf(oplog, format+"\n", args...)
		}
	}

	outcome := m.installPipeline(ctx, key, desc, handle, log, logPath, note)

	m.registry.Unregister(key)
	phase := relay.StatusUnzipping
	if m.Status(key) == relay.StatusDownloading {
		phase = relay.StatusDownloading
	}
	m.finish(key, phase, log, outcome)
}

func (m *Manager) installPipeline(ctx context.Context, key string, desc Descriptor, handle *abort.Handle, log *logging.Logger, logPath string, note func(string, ...any)) relay.Outcome {
	aborted := func(err error) bool {
		return handle.Aborted() || errors.Is(err, context.Canceled)
	}
	fail := func(msg string, err error) relay.Outcome {
		toolErr := errors.NewToolError(msg, err).
			WithKind(string(desc.Kind)).WithVersion(desc.Version)
		log.Error(msg, "error", err)
		note("error: %s: %v", msg, err)
		return relay.Failure(toolErr, logPath)
	}

	if err := m.net.Check(ctx); err != nil {
		return fail("offline", err)
	}

	downloads := filepath.Join(m.dir, "downloads")
	if err := os.MkdirAll(downloads, 0755); err != nil {
		return fail("create download dir", err)
	}
	archive := filepath.Join(downloads, filepath.Base(desc.DownloadURL))

	sum, err := m.resolveChecksum(ctx, desc)
	if err != nil {
		if aborted(err) {
			return relay.Cancelled()
		}
		return fail("checksum unavailable", err)
	}
	if sum == "" {
		log.Warn("release publishes no checksum, skipping verification")
	}

	note("downloading %s", desc.DownloadURL)
	publishDL := func(snap progress.Snapshot) {
		m.hub.Publish(relay.NewProgressEvent(key, relay.StatusDownloading, snap))
	}
	if err := m.download(ctx, desc.DownloadURL, archive, desc.DownloadSizeBytes, publishDL); err != nil {
		if aborted(err) {
			log.Info("install aborted during download")
			return relay.Cancelled()
		}
		return fail("download failed", err)
	}

	if sum != "" {
		note("verifying checksum")
		if err := verifyChecksum(archive, sum); err != nil {
			// A corrupt archive would only fail again; make the next
			// attempt re-download.
			os.Remove(archive)
			return fail("checksum verification failed", err)
		}
	}

	m.transition(key, relay.StatusUnzipping)

	staging := filepath.Join(m.dir, ".staging-"+key)
	os.RemoveAll(staging)
	defer os.RemoveAll(staging)

	note("unpacking to %s", staging)
	publishUZ := func(snap progress.Snapshot) {
		m.hub.Publish(relay.NewProgressEvent(key, relay.StatusUnzipping, snap))
	}
	if err := m.unpack(ctx, archive, staging, publishUZ); err != nil {
		if aborted(err) {
			log.Info("install aborted during unpack")
			return relay.Cancelled()
		}
		return fail("unpack failed", err)
	}

	root, err := stripSingleRoot(staging)
	if err != nil {
		return fail("inspect unpacked archive", err)
	}

	dest := m.installDir(desc.Kind, desc.Version)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fail("create install parent", err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return fail("clear previous install", err)
	}
	if err := os.Rename(root, dest); err != nil {
		return fail("commit install", err)
	}

	if err := os.Remove(archive); err != nil {
		log.Debug("archive cleanup failed", "error", err)
	}

	size := dirSize(dest)
	m.commitInstall(desc.Kind, desc.Version, dest, size)
	note("installed to %s (%d bytes)", dest, size)
	log.Info("tool installed", "dir", dest, "size", size)
	return relay.Succeeded()
}

// cacheSnapshotLocked copies the catalog for persistence outside the
// lock.
func (m *Manager) cacheSnapshotLocked() catalogCache {
	descs := make([]Descriptor, len(m.catalog))
	copy(descs, m.catalog)
	return catalogCache{FetchedAt: m.fetchedAt, Descriptors: descs}
}

// commitInstall flips the catalog flags for a freshly installed version
// and persists the cache.
func (m *Manager) commitInstall(kind Kind, version, dir string, size int64) {
	m.mu.Lock()
	for i := range m.catalog {
		d := &m.catalog[i]
		if d.Kind == kind && d.Version == version {
			d.IsInstalled = true
			d.InstallDir = dir
			d.InstalledSizeBytes = size
		}
	}
	m.recomputeUpdatesLocked()
	cache := m.cacheSnapshotLocked()
	m.mu.Unlock()

	if err := saveCache(m.cachePath, cache); err != nil {
		m.log.Warn("tool catalog cache write failed", "error", err)
	}
}

// Remove deletes an installed version's directory and clears its flags.
// Returns false when the version was not installed.
func (m *Manager) Remove(kind Kind, version string) (bool, error) {
	key := fmt.Sprintf("%s-%s", kind, version)
	m.mu.Lock()
	if cur := m.statuses[key]; !cur.AtRest() {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s is %s", errors.ErrOperationInProgress, key, cur)
	}
	m.mu.Unlock()

	dir := m.installDir(kind, version)
	if _, err := os.Stat(dir); err != nil {
		m.log.WithTool(string(kind), version).Debug("nothing to remove")
		return false, nil
	}

	if err := os.RemoveAll(dir); err != nil {
		return false, errors.NewToolError("remove failed", err).
			WithKind(string(kind)).WithVersion(version)
	}

	m.mu.Lock()
	for i := range m.catalog {
		d := &m.catalog[i]
		if d.Kind == kind && d.Version == version {
			d.IsInstalled = false
			d.InstallDir = ""
			d.InstalledSizeBytes = 0
			d.HasUpdate = false
		}
	}
	m.recomputeUpdatesLocked()
	cache := m.cacheSnapshotLocked()
	m.mu.Unlock()

	if err := saveCache(m.cachePath, cache); err != nil {
		m.log.Warn("tool catalog cache write failed", "error", err)
	}

	m.log.WithTool(string(kind), version).Info("tool removed", "dir", dir)
	return true, nil
}

// RefreshCatalog fetches the per-kind release lists and merges them into
// the catalog. A fresh cache is served as-is unless force is set.
// Offline, the cached catalog is returned with the condition logged,
// never surfaced. A fetch failure returns an error; the previous catalog
// stays in place.
func (m *Manager) RefreshCatalog(ctx context.Context, force bool) ([]Descriptor, error) {
	m.mu.RLock()
	fresh := !force && len(m.catalog) > 0 && time.Since(m.fetchedAt) < m.cacheTTL
	m.mu.RUnlock()

	if fresh {
		m.Rescan()
		return m.Catalog(), nil
	}

	if err := m.net.Check(ctx); err != nil {
		m.log.Info("offline, serving cached tool catalog", "error", err)
		m.Rescan()
		return m.Catalog(), nil
	}

	kinds := Kinds()
	results := make([][]Descriptor, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		src, ok := m.sources[kind]
		if !ok {
			continue
		}
		g.Go(func() error {
			descs, err := fetchKind(gctx, m.client, m.apiBase, kind, src)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			results[i] = descs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("tool catalog refresh: %w", err)
	}

	var merged []Descriptor
	for _, descs := range results {
		merged = append(merged, descs...)
	}
	sortCatalog(merged)

	m.mu.Lock()
	// Carry installed sizes forward; fresh descriptors only know
	// release metadata.
	sizes := make(map[string]int64, len(m.catalog))
	for _, d := range m.catalog {
		if d.InstalledSizeBytes > 0 {
			sizes[d.Key()] = d.InstalledSizeBytes
		}
	}
	for i := range merged {
		if size, ok := sizes[merged[i].Key()]; ok {
			merged[i].InstalledSizeBytes = size
		}
	}
	m.catalog = merged
	m.fetchedAt = time.Now()
	m.rescanLocked()
	cache := m.cacheSnapshotLocked()
	m.mu.Unlock()

	if err := saveCache(m.cachePath, cache); err != nil {
		m.log.Warn("tool catalog cache write failed", "error", err)
	}

	m.log.Info("tool catalog refreshed", "versions", len(merged))
	return m.Catalog(), nil
}

// Rescan recomputes the on-disk flags without any network traffic. The
// directory watcher calls this when versions appear or vanish outside
// hangar.
func (m *Manager) Rescan() {
	m.mu.Lock()
	m.rescanLocked()
	m.mu.Unlock()
}

// rescanLocked recomputes IsInstalled, InstallDir and HasUpdate from the
// install directory. Keys with a live abort handle are mid-install;
// their flags stay untouched so a refresh cannot clobber an in-flight
// operation.
func (m *Manager) rescanLocked() {
	for i := range m.catalog {
		d := &m.catalog[i]
		if _, live := m.registry.Resolve(d.Key()); live {
			continue
		}

		dir := m.installDir(d.Kind, d.Version)
		if _, err := os.Stat(dir); err == nil {
			if !d.IsInstalled {
				d.InstalledSizeBytes = dirSize(dir)
			}
			d.IsInstalled = true
			d.InstallDir = dir
		} else {
			d.IsInstalled = false
			d.InstallDir = ""
			d.InstalledSizeBytes = 0
			d.HasUpdate = false
		}
	}
	m.recomputeUpdatesLocked()
}

// recomputeUpdatesLocked flags installed versions that have a newer
// release of the same kind.
func (m *Manager) recomputeUpdatesLocked() {
	latest := make(map[Kind]time.Time)
	for _, d := range m.catalog {
		if d.ReleaseDate.After(latest[d.Kind]) {
			latest[d.Kind] = d.ReleaseDate
		}
	}
	for i := range m.catalog {
		d := &m.catalog[i]
		d.HasUpdate = d.IsInstalled && d.ReleaseDate.Before(latest[d.Kind])
	}
}
