package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hangar-launcher/hangar/internal/abort"
	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/relay"
)

const (
	protonRepo = "ge/proton-runner"
	dxvkRepo   = "d9n/dxvk-runner"
)

func protonSources() map[Kind]Source {
	return map[Kind]Source{
		KindProton: {Repo: protonRepo, ArchiveSuffix: ".tar.gz", ChecksumSuffix: ".sha512sum"},
	}
}

// fakeForge fakes the release API and its asset hosting: listings under
// /repos/{repo}/releases, archive and checksum bodies under the paths
// addRelease registered.
type fakeForge struct {
	srv *httptest.Server

	mu       sync.Mutex
	releases map[string][]ghRelease
	files    map[string][]byte
	gates    map[string]chan struct{}
	fail     map[string]int
	hits     map[string]int
}

func newFakeForge(t *testing.T) *fakeForge {
	t.Helper()
	f := &fakeForge{
		releases: make(map[string][]ghRelease),
		files:    make(map[string][]byte),
		gates:    make(map[string]chan struct{}),
		fail:     make(map[string]int),
		hits:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeForge) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	f.mu.Lock()
	f.hits[path]++
	status := f.fail[path]
	gate := f.gates[path]
	body, isFile := f.files[path]
	var listing []ghRelease
	isListing := false
	if strings.HasPrefix(path, "/repos/") && strings.HasSuffix(path, "/releases") {
		repo := strings.TrimSuffix(strings.TrimPrefix(path, "/repos/"), "/releases")
		listing = f.releases[repo]
		isListing = true
	}
	f.mu.Unlock()

	switch {
	case status != 0:
		w.WriteHeader(status)
	case isListing:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listing)
	case isFile:
		if gate != nil {
			w.WriteHeader(http.StatusOK)
			w.Write(body[:1])
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
			w.Write(body[1:])
			return
		}
		w.Write(body)
	default:
		http.NotFound(w, r)
	}
}

// addRelease registers a published release whose main asset is a tar.gz
// build. digest, when set, rides the API response as a sha256; sidecarSum,
// when set, becomes a .sha512sum asset next to the archive.
func (f *fakeForge) addRelease(repo, tag string, published time.Time, archive []byte, digest, sidecarSum string) {
	name := tag + ".tar.gz"
	base := "/dl/" + repo + "/" + tag
	rel := ghRelease{
		TagName:     tag,
		PublishedAt: published,
		Assets: []ghAsset{{
			Name:               name,
			Size:               int64(len(archive)),
			BrowserDownloadURL: f.srv.URL + base + "/" + name,
		}},
	}
	if digest != "" {
		rel.Assets[0].Digest = "sha256:" + digest
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[base+"/"+name] = archive
	if sidecarSum != "" {
		sumName := name + ".sha512sum"
		sumBody := sidecarSum + "  " + name + "\n"
		f.files[base+"/"+sumName] = []byte(sumBody)
		rel.Assets = append(rel.Assets, ghAsset{
			Name:               sumName,
			Size:               int64(len(sumBody)),
			BrowserDownloadURL: f.srv.URL + base + "/" + sumName,
		})
	}
	f.releases[repo] = append(f.releases[repo], rel)
}

func (f *fakeForge) addRaw(repo string, rel ghRelease) {
	f.mu.Lock()
	f.releases[repo] = append(f.releases[repo], rel)
	f.mu.Unlock()
}

// gateDownload makes the archive response stall after its first byte
// until the returned channel closes.
func (f *fakeForge) gateDownload(repo, tag string) chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates["/dl/"+repo+"/"+tag+"/"+tag+".tar.gz"] = gate
	f.mu.Unlock()
	return gate
}

func (f *fakeForge) failListing(repo string, status int) {
	f.mu.Lock()
	f.fail["/repos/"+repo+"/releases"] = status
	f.mu.Unlock()
}

func (f *fakeForge) listingHits(repo string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits["/repos/"+repo+"/releases"]
}

// stubRunner satisfies the runner dependency; native archive formats
// never spawn a subprocess.
type stubRunner struct {
	mu    sync.Mutex
	calls int
}

func (s *stubRunner) Run(context.Context, proc.Request, proc.OutputFunc) (proc.Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return proc.Outcome{}, errors.New("unexpected subprocess")
}

type offlineNet struct{}

func (offlineNet) Check(context.Context) error { return errors.ErrOffline }

type eventRecorder struct {
	mu       sync.Mutex
	events   []relay.Event
	terminal chan relay.ResultEvent
}

func newEventRecorder(hub *relay.Hub) (*eventRecorder, func()) {
	rec := &eventRecorder{terminal: make(chan relay.ResultEvent, 8)}
	remove := hub.Observe(func(ev relay.Event) {
		rec.mu.Lock()
		rec.events = append(rec.events, ev)
		rec.mu.Unlock()
		if res, ok := ev.(relay.ResultEvent); ok {
			rec.terminal <- res
		}
	})
	return rec, remove
}

func (r *eventRecorder) waitTerminal(t *testing.T) relay.ResultEvent {
	t.Helper()
	select {
	case res := <-r.terminal:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal event within 5s")
		return relay.ResultEvent{}
	}
}

func (r *eventRecorder) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if _, ok := ev.(relay.ResultEvent); ok {
			n++
		}
	}
	return n
}

func (r *eventRecorder) statuses() []relay.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relay.Status
	for _, ev := range r.events {
		if se, ok := ev.(relay.StatusEvent); ok {
			out = append(out, se.Status)
		}
	}
	return out
}

func (r *eventRecorder) progress() []relay.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []relay.ProgressEvent
	for _, ev := range r.events {
		if pe, ok := ev.(relay.ProgressEvent); ok {
			out = append(out, pe)
		}
	}
	return out
}

type fixture struct {
	m     *Manager
	forge *fakeForge
	hub   *relay.Hub
	reg   *abort.Registry
	dir   string
}

func newFixture(t *testing.T, sources map[Kind]Source) *fixture {
	t.Helper()
	forge := newFakeForge(t)
	hub := relay.NewHub()
	reg := abort.NewRegistry()
	dir := filepath.Join(t.TempDir(), "runners")

	m, err := NewManager(Config{
		Dir:      dir,
		Hub:      hub,
		Registry: reg,
		Runner:   &stubRunner{},
		Logger:   logging.NopLogger(),
		LogDir:   filepath.Join(t.TempDir(), "logs"),
		Client:   forge.srv.Client(),
		APIBase:  forge.srv.URL,
		Sources:  sources,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &fixture{m: m, forge: forge, hub: hub, reg: reg, dir: dir}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Error("expected error without install dir")
	}
	if _, err := NewManager(Config{Dir: t.TempDir()}); err == nil {
		t.Error("expected error without hub")
	}
	if _, err := NewManager(Config{Dir: t.TempDir(), Hub: relay.NewHub()}); err == nil {
		t.Error("expected error without registry")
	}
	if _, err := NewManager(Config{Dir: t.TempDir(), Hub: relay.NewHub(), Registry: abort.NewRegistry()}); err == nil {
		t.Error("expected error without runner")
	}
}

func TestRefreshCatalogPopulatesDescriptors(t *testing.T) {
	sources := protonSources()
	sources[KindDXVK] = Source{Repo: dxvkRepo, ArchiveSuffix: ".tar.gz"}
	f := newFixture(t, sources)

	older := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 14, 9, 30, 0, 0, time.UTC)

	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "#!/bin/sh\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-1", older, arc, "", sha512Hex(arc))
	f.forge.addRelease(protonRepo, "GE-Proton10-3", newer, arc, "", sha512Hex(arc))

	dxvkArc := runnerArchive(t, "dxvk-2.7", map[string]string{"x64/dxgi.dll": "MZ"})
	f.forge.addRelease(dxvkRepo, "v2.7", newer, dxvkArc, sha256Hex(dxvkArc), "")

	// Prereleases, drafts and releases without a matching asset never
	// reach the catalog.
	f.forge.addRaw(protonRepo, ghRelease{TagName: "GE-Proton10-4-rc1", Prerelease: true, PublishedAt: newer})
	f.forge.addRaw(protonRepo, ghRelease{TagName: "GE-Proton10-5", Draft: true, PublishedAt: newer})
	f.forge.addRaw(protonRepo, ghRelease{TagName: "sources-only", PublishedAt: newer, Assets: []ghAsset{{Name: "src.zip"}}})

	descs, err := f.m.RefreshCatalog(context.Background(), false)
	if err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d: %+v", len(descs), descs)
	}

	// Kinds group alphabetically, newest release first within a kind.
	if descs[0].Kind != KindDXVK || descs[1].Version != "GE-Proton10-3" || descs[2].Version != "GE-Proton10-1" {
		t.Errorf("unexpected catalog order: %+v", descs)
	}

	proton := descs[1]
	if proton.Kind != KindProton || !proton.ReleaseDate.Equal(newer) {
		t.Errorf("descriptor metadata wrong: %+v", proton)
	}
	if proton.DownloadSizeBytes != int64(len(arc)) {
		t.Errorf("download size = %d, want %d", proton.DownloadSizeBytes, len(arc))
	}
	if proton.ChecksumURL == "" || proton.Checksum != "" {
		t.Errorf("proton should carry a sidecar checksum URL only: %+v", proton)
	}
	if got := descs[0].Checksum; got != sha256Hex(dxvkArc) {
		t.Errorf("dxvk checksum = %q, want the API-carried sha256", got)
	}
	if proton.IsInstalled || proton.HasUpdate {
		t.Errorf("nothing is installed yet: %+v", proton)
	}
}

func TestRefreshCatalogHonorsCacheTTL(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex(arc))

	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if got := f.forge.listingHits(protonRepo); got != 1 {
		t.Fatalf("listing hits = %d, want 1", got)
	}

	// Within the TTL a second refresh serves the cache.
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if got := f.forge.listingHits(protonRepo); got != 1 {
		t.Errorf("cached refresh hit the network, hits = %d", got)
	}

	if _, err := f.m.RefreshCatalog(context.Background(), true); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if got := f.forge.listingHits(protonRepo); got != 2 {
		t.Errorf("forced refresh should hit the network, hits = %d", got)
	}
}

func TestRefreshCatalogOfflineServesCache(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex(arc))

	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	f.m.net = offlineNet{}
	descs, err := f.m.RefreshCatalog(context.Background(), true)
	if err != nil {
		t.Fatalf("offline refresh should serve the cache: %v", err)
	}
	if len(descs) != 1 || descs[0].Version != "GE-Proton10-3" {
		t.Errorf("cached catalog = %+v", descs)
	}
	if got := f.forge.listingHits(protonRepo); got != 1 {
		t.Errorf("offline refresh hit the network, hits = %d", got)
	}
}

func TestRefreshCatalogOfflineColdStart(t *testing.T) {
	f := newFixture(t, protonSources())
	f.m.net = offlineNet{}

	descs, err := f.m.RefreshCatalog(context.Background(), false)
	if err != nil {
		t.Fatalf("cold offline refresh should not fail: %v", err)
	}
	if len(descs) != 0 {
		t.Errorf("expected an empty catalog, got %+v", descs)
	}
	if got := f.forge.listingHits(protonRepo); got != 0 {
		t.Errorf("offline refresh hit the network, hits = %d", got)
	}
}

func TestRefreshCatalogFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-1", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-1", time.Now().UTC(), arc, "", sha512Hex(arc))

	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	f.forge.failListing(protonRepo, http.StatusInternalServerError)
	if _, err := f.m.RefreshCatalog(context.Background(), true); err == nil {
		t.Fatal("expected an error from the failed fetch")
	}
	if got := f.m.Catalog(); len(got) != 1 || got[0].Version != "GE-Proton10-1" {
		t.Errorf("previous catalog should survive a failed refresh: %+v", got)
	}
}

func TestInstallSuccess(t *testing.T) {
	f := newFixture(t, protonSources())
	files := map[string]string{
		"proton":         "#!/bin/sh\nexec true\n",
		"files/bin/wine": "ELF\n",
		"version":        "GE-Proton10-3\n",
	}
	arc := runnerArchive(t, "GE-Proton10-3", files)
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex(arc))
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	opID, err := f.m.Install(KindProton, "GE-Proton10-3")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if opID == "" {
		t.Error("expected an operation ID")
	}

	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeSuccess {
		t.Fatalf("outcome = %s (%v)", res.Outcome.Kind, res.Outcome.Err)
	}
	if res.Key() != "proton-GE-Proton10-3" || res.Status != relay.StatusUnzipping {
		t.Errorf("terminal event key = %s, status = %s", res.Key(), res.Status)
	}

	want := []relay.Status{relay.StatusDownloading, relay.StatusUnzipping}
	if got := rec.statuses(); !reflect.DeepEqual(got, want) {
		t.Errorf("status sequence = %v, want %v", got, want)
	}

	// The single top-level directory inside the archive is stripped.
	installed := filepath.Join(f.dir, "proton", "GE-Proton10-3")
	data, err := os.ReadFile(filepath.Join(installed, "proton"))
	if err != nil {
		t.Fatalf("installed tree incomplete: %v", err)
	}
	if string(data) != files["proton"] {
		t.Errorf("unexpected file content %q", data)
	}
	if _, err := os.Stat(filepath.Join(installed, "files", "bin", "wine")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}

	desc, ok := f.m.Lookup(KindProton, "GE-Proton10-3")
	if !ok || !desc.IsInstalled || desc.InstallDir != installed {
		t.Errorf("catalog flags not committed: %+v", desc)
	}
	if desc.InstalledSizeBytes <= 0 {
		t.Errorf("installed size = %d", desc.InstalledSizeBytes)
	}

	if _, err := os.Stat(filepath.Join(f.dir, "downloads", "GE-Proton10-3.tar.gz")); !os.IsNotExist(err) {
		t.Errorf("archive should be deleted after install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, ".staging-proton-GE-Proton10-3")); !os.IsNotExist(err) {
		t.Errorf("staging dir should be cleaned up: %v", err)
	}

	foundFull := false
	for _, pe := range rec.progress() {
		if pe.Status == relay.StatusDownloading && pe.Snapshot.DownloadedBytes == int64(len(arc)) && pe.Snapshot.Percentage == 100 {
			foundFull = true
		}
	}
	if !foundFull {
		t.Error("expected a final download progress snapshot at 100%")
	}

	if rec.resultCount() != 1 {
		t.Errorf("expected exactly one terminal event, got %d", rec.resultCount())
	}
	if got := f.m.Status("proton-GE-Proton10-3"); got != relay.StatusIdle {
		t.Errorf("status after install = %s", got)
	}
	if f.reg.Len() != 0 {
		t.Errorf("abort registry should be empty, has %d", f.reg.Len())
	}
}

func TestInstallReplacesExisting(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "new\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, sha256Hex(arc), "")
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	dest := filepath.Join(f.dir, "proton", "GE-Proton10-3")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dest, "stale"), []byte("old"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeSuccess {
		t.Fatalf("outcome = %s (%v)", res.Outcome.Kind, res.Outcome.Err)
	}

	if _, err := os.Stat(filepath.Join(dest, "stale")); !os.IsNotExist(err) {
		t.Error("stale file should be gone after reinstall")
	}
	data, err := os.ReadFile(filepath.Join(dest, "proton"))
	if err != nil || string(data) != "new\n" {
		t.Errorf("reinstalled content = %q, %v", data, err)
	}
}

func TestInstallChecksumMismatch(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex([]byte("tampered")))
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); err != nil {
		t.Fatalf("Install: %v", err)
	}

	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome.Kind)
	}
	if !errors.Is(res.Outcome.Err, errors.ErrChecksumMismatch) {
		t.Errorf("err = %v, want ErrChecksumMismatch", res.Outcome.Err)
	}
	var toolErr *errors.ToolError
	if !errors.As(res.Outcome.Err, &toolErr) {
		t.Errorf("err %T should be a ToolError", res.Outcome.Err)
	}
	if res.Status != relay.StatusDownloading {
		t.Errorf("result status = %s, want downloading", res.Status)
	}

	if _, err := os.Stat(filepath.Join(f.dir, "downloads", "GE-Proton10-3.tar.gz")); !os.IsNotExist(err) {
		t.Error("corrupt archive should be removed")
	}
	if _, err := os.Stat(filepath.Join(f.dir, "proton", "GE-Proton10-3")); !os.IsNotExist(err) {
		t.Error("nothing should be installed")
	}
	if desc, _ := f.m.Lookup(KindProton, "GE-Proton10-3"); desc.IsInstalled {
		t.Error("catalog must not flag a failed install")
	}
	if got := f.m.Status("proton-GE-Proton10-3"); got != relay.StatusIdle {
		t.Errorf("status after failure = %s", got)
	}
}

func TestInstallWithoutChecksumSkipsVerification(t *testing.T) {
	f := newFixture(t, map[Kind]Source{
		KindProton: {Repo: protonRepo, ArchiveSuffix: ".tar.gz"},
	})
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", "")
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeSuccess {
		t.Fatalf("outcome = %s (%v)", res.Outcome.Kind, res.Outcome.Err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "proton", "GE-Proton10-3", "proton")); err != nil {
		t.Errorf("installed tree incomplete: %v", err)
	}
}

func TestInstallUnknownVersionFails(t *testing.T) {
	f := newFixture(t, protonSources())
	if _, err := f.m.Install(KindProton, "GE-Proton99"); !errors.Is(err, errors.ErrVersionNotFound) {
		t.Fatalf("err = %v, want ErrVersionNotFound", err)
	}
	if f.reg.Len() != 0 {
		t.Errorf("no abort handle should be registered, has %d", f.reg.Len())
	}
}

func TestConcurrentInstallRejected(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, sha256Hex(arc), "")
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	gate := f.forge.gateDownload(protonRepo, "GE-Proton10-3")

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); !errors.Is(err, errors.ErrOperationInProgress) {
		t.Fatalf("second install err = %v, want ErrOperationInProgress", err)
	}

	close(gate)
	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeSuccess {
		t.Fatalf("outcome = %s (%v)", res.Outcome.Kind, res.Outcome.Err)
	}
}

func TestInstallAbortDuringDownload(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, sha256Hex(arc), "")
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	gate := f.forge.gateDownload(protonRepo, "GE-Proton10-3")
	defer close(gate)

	rec, remove := newEventRecorder(f.hub)
	defer remove()

	key := "proton-GE-Proton10-3"
	if _, err := f.m.Install(KindProton, "GE-Proton10-3"); err != nil {
		t.Fatalf("Install: %v", err)
	}

	// The first byte has arrived once a progress event shows up.
	waitFor(t, func() bool { return len(rec.progress()) > 0 }, "the download to start")
	if !f.m.Abort(key) {
		t.Fatal("Abort should find the running install")
	}

	res := rec.waitTerminal(t)
	if res.Outcome.Kind != relay.OutcomeAborted {
		t.Fatalf("outcome = %s (%v), want aborted", res.Outcome.Kind, res.Outcome.Err)
	}
	if res.Status != relay.StatusDownloading {
		t.Errorf("result status = %s, want downloading", res.Status)
	}
	if desc, _ := f.m.Lookup(KindProton, "GE-Proton10-3"); desc.IsInstalled {
		t.Error("aborted install must not be flagged installed")
	}
	if got := f.m.Status(key); got != relay.StatusIdle {
		t.Errorf("status after abort = %s", got)
	}
	if f.reg.Len() != 0 {
		t.Errorf("abort registry should be empty, has %d", f.reg.Len())
	}
}

func TestRemoveInstalledVersion(t *testing.T) {
	f := newFixture(t, protonSources())
	older := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 14, 9, 30, 0, 0, time.UTC)
	arc := runnerArchive(t, "GE-Proton10-1", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-1", older, arc, "", sha512Hex(arc))
	f.forge.addRelease(protonRepo, "GE-Proton10-3", newer, arc, "", sha512Hex(arc))
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	dir := filepath.Join(f.dir, "proton", "GE-Proton10-1")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "proton"), []byte("x\n"), 0755); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.m.Rescan()

	desc, _ := f.m.Lookup(KindProton, "GE-Proton10-1")
	if !desc.IsInstalled || !desc.HasUpdate {
		t.Fatalf("rescan should mark the older version installed with an update: %+v", desc)
	}

	removed, err := f.m.Remove(KindProton, "GE-Proton10-1")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("install dir should be gone")
	}
	desc, _ = f.m.Lookup(KindProton, "GE-Proton10-1")
	if desc.IsInstalled || desc.HasUpdate || desc.InstallDir != "" {
		t.Errorf("flags should clear after remove: %+v", desc)
	}

	removed, err = f.m.Remove(KindProton, "GE-Proton10-1")
	if err != nil || removed {
		t.Fatalf("second remove = %v, %v, want false", removed, err)
	}
}

func TestRemoveBusyVersionRejected(t *testing.T) {
	f := newFixture(t, protonSources())
	key := "proton-GE-Proton10-3"
	f.m.mu.Lock()
	f.m.statuses[key] = relay.StatusDownloading
	f.m.mu.Unlock()

	if _, err := f.m.Remove(KindProton, "GE-Proton10-3"); !errors.Is(err, errors.ErrOperationInProgress) {
		t.Fatalf("err = %v, want ErrOperationInProgress", err)
	}
}

func TestRescanSkipsInFlightInstalls(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex(arc))
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	// Pretend an install is mid-flight with its flags already flipped.
	key := "proton-GE-Proton10-3"
	if _, err := f.reg.Register(key); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.m.mu.Lock()
	f.m.catalog[0].IsInstalled = true
	f.m.catalog[0].InstallDir = filepath.Join(f.dir, "proton", "GE-Proton10-3")
	f.m.mu.Unlock()

	f.m.Rescan()
	if desc, _ := f.m.Lookup(KindProton, "GE-Proton10-3"); !desc.IsInstalled {
		t.Error("rescan must not clobber a key with a live abort handle")
	}

	f.reg.Unregister(key)
	f.m.Rescan()
	if desc, _ := f.m.Lookup(KindProton, "GE-Proton10-3"); desc.IsInstalled {
		t.Error("flags should clear once the handle is gone")
	}
}

func TestCatalogCachePersistsAcrossManagers(t *testing.T) {
	f := newFixture(t, protonSources())
	arc := runnerArchive(t, "GE-Proton10-3", map[string]string{"proton": "x\n"})
	f.forge.addRelease(protonRepo, "GE-Proton10-3", time.Now().UTC(), arc, "", sha512Hex(arc))
	if _, err := f.m.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	m2, err := NewManager(Config{
		Dir:      f.dir,
		Hub:      relay.NewHub(),
		Registry: abort.NewRegistry(),
		Runner:   &stubRunner{},
		Logger:   logging.NopLogger(),
		Client:   f.forge.srv.Client(),
		APIBase:  f.forge.srv.URL,
		Sources:  protonSources(),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if got := m2.Catalog(); len(got) != 1 || got[0].Version != "GE-Proton10-3" {
		t.Fatalf("second manager should load the cached catalog: %+v", got)
	}
	if got := f.forge.listingHits(protonRepo); got != 1 {
		t.Errorf("loading the cache must not hit the network, hits = %d", got)
	}

	// The cached fetch time counts against the TTL too.
	if _, err := m2.RefreshCatalog(context.Background(), false); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}
	if got := f.forge.listingHits(protonRepo); got != 1 {
		t.Errorf("fresh cache should not refetch, hits = %d", got)
	}
}

func TestStatusUnknownKeyIsIdle(t *testing.T) {
	f := newFixture(t, protonSources())
	if got := f.m.Status("proton-ghost"); got != relay.StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
	if f.m.Abort("proton-ghost") {
		t.Error("abort of an idle key should report false")
	}
}
