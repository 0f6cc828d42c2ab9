// Package errors provides centralized error definitions and error handling
// utilities for the hangar codebase. It defines domain-specific errors,
// sentinel errors for the operation lifecycle, error constructors with
// context wrapping, and classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - GameError: errors from game lifecycle operations (install, launch, ...)
//   - ToolError: errors from runner-tool management (download, unpack, ...)
//
// Sentinel errors represent well-known conditions:
//   - ErrAlreadyRegistered: a second cancellation handle for a busy key
//   - ErrOperationInProgress: an operation request against a busy entity
//   - ErrSpawnFailed, ErrToolExit: subprocess start/exit failures
//   - ErrAborted: caller-initiated cancellation (not a failure)
//   - ErrOffline: no network; remote operations short-circuit
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewGameError("install failed", errors.ErrToolExit).
//	        WithApp("fortnite").WithLogPath("/tmp/fortnite-install.log")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrAborted) { ... }
//
//	var gameErr *errors.GameError
//	if errors.As(err, &gameErr) { ... }
//
//	if errors.IsBusy(err) { ... }
//	if errors.IsAborted(err) { ... }
//
// # Classification
//
// Errors carry a Severity and report whether they are retryable and whether
// their message is safe to show users. Aborted outcomes are deliberately not
// modeled as failures; IsAborted must be checked before treating an error as
// a failure at any layer.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Cancellation registry sentinel errors
var (
	// ErrAlreadyRegistered indicates a cancellation handle already exists for
	// the key. Registering twice is a concurrency misuse and fails fast.
	ErrAlreadyRegistered = New("cancellation handle already registered")
	// ErrHandleNotFound indicates no cancellation handle exists for the key.
	ErrHandleNotFound = New("cancellation handle not found")
)

// Lifecycle sentinel errors
var (
	// ErrOperationInProgress indicates the entity already has an operation in
	// flight. Callers may retry once the entity returns to idle.
	ErrOperationInProgress = New("operation already in progress")
	// ErrNotInstalled indicates the operation requires an installed entity.
	ErrNotInstalled = New("not installed")
	// ErrAborted indicates caller-initiated cancellation. It is not a
	// failure and must stay distinguishable from one at every layer.
	ErrAborted = New("operation aborted")
)

// Subprocess sentinel errors
var (
	// ErrSpawnFailed indicates the external tool could not be started.
	ErrSpawnFailed = New("failed to spawn process")
	// ErrToolExit indicates the external tool exited with a non-zero code.
	ErrToolExit = New("tool exited with non-zero code")
)

// Network and catalog sentinel errors
var (
	// ErrOffline indicates no network connectivity; remote-dependent
	// operations short-circuit to a no-op instead of attempting and failing.
	ErrOffline = New("network unavailable")
	// ErrVersionNotFound indicates a requested tool version is not in the catalog.
	ErrVersionNotFound = New("tool version not found")
	// ErrChecksumMismatch indicates a downloaded archive failed verification.
	ErrChecksumMismatch = New("checksum mismatch")
)

// Storage sentinel errors
var (
	// ErrRecordNotFound indicates no persisted record exists for the entity.
	ErrRecordNotFound = New("record not found")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GameError represents errors from game lifecycle operations.
//
// Example:
//
//	err := errors.NewGameError("install failed", errors.ErrToolExit)
//	err = err.WithApp("fortnite").WithOperation("install")
//	fmt.Println(err) // "game error [app=fortnite, op=install]: install failed: tool exited with non-zero code"
type GameError struct {
	baseError
	AppName   string
	Operation string
	LogPath   string
}

// NewGameError creates a new GameError.
func NewGameError(message string, cause error) *GameError {
	return &GameError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithApp adds the app name to the error context.
func (e *GameError) WithApp(app string) *GameError {
	e.AppName = app
	return e
}

// WithOperation adds the operation name to the error context.
func (e *GameError) WithOperation(op string) *GameError {
	e.Operation = op
	return e
}

// WithLogPath attaches the per-entity log file path. Failed results carry
// only this path, never the log content.
func (e *GameError) WithLogPath(path string) *GameError {
	e.LogPath = path
	return e
}

// WithSeverity sets the error severity.
func (e *GameError) WithSeverity(s Severity) *GameError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *GameError) WithRetryable(r bool) *GameError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *GameError) Error() string {
	var parts []string
	if e.AppName != "" {
		parts = append(parts, fmt.Sprintf("app=%s", e.AppName))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.LogPath != "" {
		parts = append(parts, fmt.Sprintf("log=%s", e.LogPath))
	}

	prefix := "game error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("game error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *GameError) Is(target error) bool {
	if _, ok := target.(*GameError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ToolError represents errors from runner-tool version management.
//
// Example:
//
//	err := errors.NewToolError("download failed", cause).
//	        WithVersion("GE-Proton9-7").WithKind("proton")
type ToolError struct {
	baseError
	Version string
	Kind    string
}

// NewToolError creates a new ToolError.
func NewToolError(message string, cause error) *ToolError {
	return &ToolError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithVersion adds the tool version to the error context.
func (e *ToolError) WithVersion(version string) *ToolError {
	e.Version = version
	return e
}

// WithKind adds the tool kind (wine, proton, dxvk) to the error context.
func (e *ToolError) WithKind(kind string) *ToolError {
	e.Kind = kind
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ToolError) WithRetryable(r bool) *ToolError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ToolError) Error() string {
	var parts []string
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}
	if e.Version != "" {
		parts = append(parts, fmt.Sprintf("version=%s", e.Version))
	}

	prefix := "tool error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("tool error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ToolError) Is(target error) bool {
	if _, ok := target.(*ToolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsAborted reports whether the error chain represents caller-initiated
// cancellation. Aborted is never a failure.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsBusy reports whether the error chain represents a busy entity: either a
// visible OperationInProgress or a registry-level AlreadyRegistered.
func IsBusy(err error) bool {
	return errors.Is(err, ErrOperationInProgress) || errors.Is(err, ErrAlreadyRegistered)
}

// IsOffline reports whether the error chain represents missing connectivity.
func IsOffline(err error) bool {
	return errors.Is(err, ErrOffline)
}

// IsNotFound reports whether the error chain represents a missing record,
// version, or handle.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrHandleNotFound)
}

// IsRetryable reports whether the operation that produced err may succeed on
// retry. Busy and offline conditions are retryable; tool-reported failures
// are not (the user decides whether to retry those).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	type retryable interface {
		IsRetryable() bool
	}
	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	return IsBusy(err) || IsOffline(err)
}

// Wrapf wraps an error with a formatted message, preserving the chain.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
