// Package relay defines the notification events that decouple the lifecycle
// core from its consumers (CLI, TUI, HTTP daemon). Controllers push
// status/progress/result events into a Hub owned by the caller; the core
// never depends on who is listening.
package relay

import (
	"time"

	"github.com/hangar-launcher/hangar/internal/progress"
)

// Status is the operation status of an entity. Exactly one status holds per
// entity at any instant. Idle and Done are both at-rest states: Done marks an
// entity whose last operation finished, Idle one that has not run anything
// yet (or has been reset).
type Status int

const (
	StatusIdle Status = iota
	StatusInstalling
	StatusUpdating
	StatusUninstalling
	StatusRepairing
	StatusImporting
	StatusSyncingSaves
	StatusMoving
	StatusLaunching
	StatusRunning
	StatusDone

	// Tool-version installs report two extra phases through the same
	// channel: the network fetch and the archive unpack.
	StatusDownloading
	StatusUnzipping
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInstalling:
		return "installing"
	case StatusUpdating:
		return "updating"
	case StatusUninstalling:
		return "uninstalling"
	case StatusRepairing:
		return "repairing"
	case StatusImporting:
		return "importing"
	case StatusSyncingSaves:
		return "syncing-saves"
	case StatusMoving:
		return "moving"
	case StatusLaunching:
		return "launching"
	case StatusRunning:
		return "running"
	case StatusDone:
		return "done"
	case StatusDownloading:
		return "downloading"
	case StatusUnzipping:
		return "unzipping"
	default:
		return "unknown"
	}
}

// AtRest reports whether the status allows starting a new operation.
func (s Status) AtRest() bool {
	return s == StatusIdle || s == StatusDone
}

// OutcomeKind tags the terminal result of an operation.
type OutcomeKind int

const (
	// OutcomeSuccess means the operation completed and the tool exited zero.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeAborted means the caller cancelled the operation. It is not a
	// failure and must stay distinguishable from one.
	OutcomeAborted
	// OutcomeFailed means the operation failed (spawn error or non-zero,
	// non-cancellation tool exit).
	OutcomeFailed
)

// String returns a human-readable name for the outcome kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one operation. Failed outcomes carry the
// error and the per-entity log path; the log content itself is never
// embedded.
type Outcome struct {
	Kind    OutcomeKind
	Err     error
	LogPath string
}

// Succeeded returns a success outcome.
func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Cancelled returns an aborted outcome.
func Cancelled() Outcome {
	return Outcome{Kind: OutcomeAborted}
}

// Failure returns a failed outcome carrying the error and log path.
func Failure(err error, logPath string) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err, LogPath: logPath}
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Event is the interface all relay events implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "entity.status").
	EventType() string

	// Key returns the entity key the event belongs to.
	Key() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	key       string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Key() string          { return e.key }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType, key string) baseEvent {
	return baseEvent{
		eventType: eventType,
		key:       key,
		timestamp: time.Now(),
	}
}

// StatusEvent is emitted whenever an entity's status changes.
type StatusEvent struct {
	baseEvent
	Status Status
}

// NewStatusEvent creates a StatusEvent.
func NewStatusEvent(key string, status Status) StatusEvent {
	return StatusEvent{
		baseEvent: newBaseEvent("entity.status", key),
		Status:    status,
	}
}

// ProgressEvent carries one structured progress snapshot parsed from the
// subprocess output (or computed by the tool downloader).
type ProgressEvent struct {
	baseEvent
	Status   Status
	Snapshot progress.Snapshot
}

// NewProgressEvent creates a ProgressEvent.
func NewProgressEvent(key string, status Status, snap progress.Snapshot) ProgressEvent {
	return ProgressEvent{
		baseEvent: newBaseEvent("entity.progress", key),
		Status:    status,
		Snapshot:  snap,
	}
}

// ResultEvent is the terminal event of an operation. Exactly one ResultEvent
// is delivered per operation; the per-key stream ends implicitly with it.
type ResultEvent struct {
	baseEvent
	Status  Status
	Outcome Outcome
}

// NewResultEvent creates a ResultEvent.
func NewResultEvent(key string, status Status, outcome Outcome) ResultEvent {
	return ResultEvent{
		baseEvent: newBaseEvent("entity.result", key),
		Status:    status,
		Outcome:   outcome,
	}
}
