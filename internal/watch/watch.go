// Package watch keeps the tool catalog aligned with the install
// directory when versions appear or vanish outside hangar, for example
// through a manual unpack or an rm -rf.
package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/logging"
)

// debounceDelay coalesces the event bursts a single unpack or delete
// produces before the callback runs.
const debounceDelay = 500 * time.Millisecond

// Watcher observes the runner-tool install directory and invokes a
// callback once changes settle.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	onChange func()
	log      *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher over root. onChange runs on the watcher's
// goroutine after events settle; it should be cheap and must not block.
func New(root string, onChange func(), log *logging.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange callback is required")
	}
	if log == nil {
		log = logging.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fs:       fsw,
		root:     root,
		onChange: onChange,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	if err := w.fs.Add(root); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %s", root)
	}
	w.watchKindDirs()
	return w, nil
}

// Start begins processing events.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop tears the watcher down. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fs.Close()
	})
}

// watchKindDirs adds the immediate subdirectories to the watch. Only
// the root and the kind directories are watched: a version appearing or
// vanishing registers in its kind directory, and watching whole runner
// trees would burn inotify watches on builds with tens of thousands of
// directories.
func (w *Watcher) watchKindDirs() {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(w.root, e.Name())
		if w.ignored(path) {
			continue
		}
		if err := w.fs.Add(path); err != nil {
			w.log.Debug("watch add failed", "path", path, "error", err)
		}
	}
}

// ignored filters paths whose churn means nothing to the catalog:
// in-progress downloads, staging trees and the cache file itself.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if base == "catalog.json" || base == "catalog.json.tmp" {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	first := rel
	if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
		first = rel[:i]
	}
	return first == "downloads" || strings.HasPrefix(first, ".staging-")
}

func (w *Watcher) loop() {
	// Drain the timer so the first fire only happens after an event.
	debounce := time.NewTimer(0)
	<-debounce.C
	dirty := false

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// A new kind directory must join the watch before the
			// versions inside it can produce events.
			if event.Op&fsnotify.Create != 0 && filepath.Dir(event.Name) == w.root {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fs.Add(event.Name); err != nil {
						w.log.Debug("watch add failed", "path", event.Name, "error", err)
					}
				}
			}

			dirty = true
			debounce.Reset(debounceDelay)

		case <-debounce.C:
			if dirty {
				dirty = false
				w.log.Debug("tool directory changed")
				w.onChange()
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("tool directory watch error", "error", err)
		}
	}
}
