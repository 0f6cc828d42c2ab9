// Package logging provides structured logging for hangar.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation support. It is designed to make long-running library
// operations (installs, updates, launches) diagnosable after the fact:
// every subsystem logs through the same writer with entity and operation
// attributes attached.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (game, tool version, operation ID)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//   - Per-operation capture files for raw subprocess output
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. The [Logger] type
// uses Go's slog internally which is designed for concurrent access. The
// [RotatingWriter] and [OperationLog] types use a mutex to protect file
// operations. Child loggers created via With* methods share the underlying
// writer safely.
//
// # Basic Usage
//
// Create a logger for the data directory:
//
//	logger, err := logging.NewLogger("/path/to/data/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Debug("detailed info", "key", "value")
//	logger.Info("operation completed", "duration_ms", 150)
//	logger.Error("operation failed", "error", err.Error())
//
// # Context Propagation
//
// Create child loggers with persistent context attributes:
//
//	gameLogger := logger.WithGame("fortnite")
//	opLogger := gameLogger.WithOp("install", opID)
//
//	// All logs from opLogger include app, op, and op_id
//	opLogger.Info("subprocess started", "pid", 4242)
//
// # Per-Operation Capture
//
// Raw subprocess output is captured to a per-entity file, surfaced to users
// only as a path inside failure results:
//
//	capture, err := logging.NewOperationLog(dir, "fortnite", "install")
//	if err != nil {
//	    return err
//	}
//	defer capture.Close()
//	// stream subprocess chunks into capture.Write
//
// # Testing
//
// For testing, use [NopLogger] to discard all log output.
package logging
