package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// OperationLog captures the raw subprocess output of a single lifecycle
// operation to a per-entity file. The file path is what failure results
// carry; the content itself is never surfaced through the API.
//
// Each new operation for the same entity and verb truncates the previous
// capture, so the file always holds the most recent attempt.
type OperationLog struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewOperationLog creates a capture file at {dir}/{app}-{op}.log and writes
// a small header identifying the run.
func NewOperationLog(dir, app, op string) (*OperationLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.log", sanitizeName(app), op))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation log: %w", err)
	}

	fmt.Fprintf(file, "# hangar %s %s (%s)\n", op, app, time.Now().Format(time.RFC3339))

	return &OperationLog{file: file, path: path}, nil
}

// sanitizeName strips path separators from an app name so a hostile or odd
// entity key cannot escape the log directory.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_")
	return replacer.Replace(name)
}

// Write appends a chunk of subprocess output. Safe for concurrent use; the
// stdout and stderr drain goroutines share one capture.
func (ol *OperationLog) Write(p []byte) (int, error) {
	ol.mu.Lock()
	defer ol.mu.Unlock()

	if ol.file == nil {
		return 0, fmt.Errorf("operation log is closed")
	}
	return ol.file.Write(p)
}

// Path returns the capture file path.
func (ol *OperationLog) Path() string {
	return ol.path
}

// Close syncs and closes the capture file. Closing twice is a no-op.
func (ol *OperationLog) Close() error {
	ol.mu.Lock()
	defer ol.mu.Unlock()

	if ol.file == nil {
		return nil
	}

	if err := ol.file.Sync(); err != nil {
		ol.file.Close()
		ol.file = nil
		return fmt.Errorf("failed to sync operation log: %w", err)
	}
	err := ol.file.Close()
	ol.file = nil
	if err != nil {
		return fmt.Errorf("failed to close operation log: %w", err)
	}
	return nil
}
