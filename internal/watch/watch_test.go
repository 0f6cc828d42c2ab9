package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hangar-launcher/hangar/internal/logging"
)

func newWatcher(t *testing.T, root string) (*Watcher, chan struct{}) {
	t.Helper()
	changed := make(chan struct{}, 4)
	w, err := New(root, func() { changed <- struct{}{} }, logging.NopLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Stop)
	w.Start()
	return w, changed
}

func waitChange(t *testing.T, changed chan struct{}, what string) {
	t.Helper()
	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatalf("no callback after %s", what)
	}
}

func expectQuiet(t *testing.T, changed chan struct{}, what string) {
	t.Helper()
	select {
	case <-changed:
		t.Fatalf("callback fired for %s", what)
	case <-time.After(2 * debounceDelay):
	}
}

func TestWatcherRequiresCallback(t *testing.T) {
	if _, err := New(t.TempDir(), nil, nil); err == nil {
		t.Error("expected error without a callback")
	}
}

func TestWatcherRequiresExistingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := New(missing, func() {}, nil); err == nil {
		t.Error("expected error for a missing root")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), func() {}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWatcherSeesVersionAppearAndVanish(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "proton"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, changed := newWatcher(t, root)

	version := filepath.Join(root, "proton", "GE-Proton10-3")
	if err := os.MkdirAll(version, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitChange(t, changed, "a version directory appeared")

	if err := os.RemoveAll(version); err != nil {
		t.Fatalf("remove: %v", err)
	}
	waitChange(t, changed, "a version directory vanished")
}

func TestWatcherPicksUpNewKindDirs(t *testing.T) {
	root := t.TempDir()
	_, changed := newWatcher(t, root)

	// The kind directory itself is a change.
	kind := filepath.Join(root, "dxvk")
	if err := os.MkdirAll(kind, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitChange(t, changed, "a kind directory appeared")

	// And versions inside it are visible from then on.
	if err := os.MkdirAll(filepath.Join(kind, "v2.7"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	waitChange(t, changed, "a version inside the new kind directory appeared")
}

func TestWatcherIgnoresPipelineChurn(t *testing.T) {
	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	if err := os.MkdirAll(downloads, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, changed := newWatcher(t, root)

	if err := os.WriteFile(filepath.Join(downloads, "build.tar.gz.tmp"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp := filepath.Join(root, "catalog.json.tmp")
	if err := os.WriteFile(tmp, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Rename(tmp, filepath.Join(root, "catalog.json")); err != nil {
		t.Fatalf("rename: %v", err)
	}

	expectQuiet(t, changed, "download and cache churn")
}
