// Package desktop maintains launcher shortcuts for installed titles. On
// Linux that means XDG desktop entries; elsewhere the operations are
// no-ops. Callers treat all of it as best effort: a failed shortcut never
// fails the operation that triggered it.
package desktop

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hangar-launcher/hangar/internal/logging"
)

// Entry describes one shortcut.
type Entry struct {
	// AppName is the entity key, used for the file name.
	AppName string
	// Title is the human-readable name shown by the desktop shell.
	Title string
	// Comment is an optional tooltip line.
	Comment string
}

// Integrator writes and removes shortcuts.
type Integrator struct {
	log *logging.Logger
	dir string
	exe string
}

// NewIntegrator creates an Integrator targeting the platform's application
// directory and the current executable for launch commands. log may be nil.
func NewIntegrator(log *logging.Logger) *Integrator {
	exe, err := os.Executable()
	if err != nil {
		exe = "hangar"
	}
	return &Integrator{
		log: log,
		dir: applicationsDir(),
		exe: exe,
	}
}

// NewIntegratorAt creates an Integrator with explicit paths.
func NewIntegratorAt(log *logging.Logger, dir, exe string) *Integrator {
	return &Integrator{log: log, dir: dir, exe: exe}
}

// Path returns where the shortcut for app lives (or would live).
func (i *Integrator) Path(app string) string {
	return filepath.Join(i.dir, "hangar-"+sanitizeName(app)+".desktop")
}

// sanitizeName keeps shortcut files inside the applications directory.
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "-")
	return r.Replace(name)
}
