// Package abort tracks cancellation handles for in-flight operations.
//
// Every cancellable operation registers its entity key here before spawning
// the external tool and unregisters once it reaches a terminal state. At
// most one handle exists per key at any time; a second Register for the
// same key fails with ErrAlreadyRegistered, which is the mechanism that
// guarantees at most one subprocess per entity.
//
// Abort requests resolve the handle by key and fire its cancellation
// context. Aborting a key with no live handle is a deliberate no-op so
// callers can race abort against operation completion without coordination:
//
//	reg := abort.NewRegistry()
//	handle, err := reg.Register("fortnite")
//	if err != nil {
//		return err // an operation is already running
//	}
//	defer reg.Unregister("fortnite")
//
//	// elsewhere, possibly concurrently:
//	reg.Abort("fortnite") // true if a handle was cancelled
//
// Registration, resolution, and removal for a given key are serialized by
// a single lock, so observers never see torn state.
package abort
