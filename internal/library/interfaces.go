// Package library implements the per-game lifecycle: a keyed registry of
// controllers that run install, update, repair, uninstall, import,
// save-sync, move, launch and stop operations through the external tool.
// Every operation follows the same shape (claim the entity, register an
// abort handle, spawn, stream output to the progress parser and the
// capture file, publish events, finish with exactly one terminal result)
// so consumers can treat all of them uniformly.
//
// The interfaces here abstract the side-effect collaborators (desktop
// integration, presence, connectivity) so the lifecycle core never
// depends on who provides them and tests can substitute recorders.
package library

import (
	"context"

	"github.com/hangar-launcher/hangar/internal/desktop"
)

// Integrator maintains launcher entries for installed games. The shipped
// implementation writes XDG desktop files; other platforms get a no-op.
//
// Integrator calls are always dispatched asynchronously after an
// operation's terminal result. Their failures are logged, never
// propagated.
type Integrator interface {
	// Add creates or replaces the launcher entry for a game.
	Add(e desktop.Entry) error

	// Remove deletes the launcher entry. Removing a missing entry is
	// not an error.
	Remove(app string) error
}

// Presence broadcasts play activity to an external social surface.
// Implementations must return quickly; the controller invokes them on a
// separate goroutine and neither an error nor a panic can reach the
// launch result.
type Presence interface {
	// GameStarted announces that a title is now running.
	GameStarted(app, title string)

	// GameStopped clears the announcement after the title exits.
	GameStopped(app string)
}

// Connectivity reports whether remote-dependent operations can proceed.
// A nil error means online. online.Probe satisfies this.
type Connectivity interface {
	Check(ctx context.Context) error
}

// NopIntegrator is an Integrator that does nothing, used when desktop
// integration is disabled.
type NopIntegrator struct{}

func (NopIntegrator) Add(desktop.Entry) error { return nil }
func (NopIntegrator) Remove(string) error     { return nil }

// NopPresence is a Presence that does nothing.
type NopPresence struct{}

func (NopPresence) GameStarted(string, string) {}
func (NopPresence) GameStopped(string)         {}

// alwaysOnline is the Connectivity used when no probe is configured.
type alwaysOnline struct{}

func (alwaysOnline) Check(context.Context) error { return nil }
