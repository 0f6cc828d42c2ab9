// Package store persists per-game library records as JSON files, one file
// per entity, with atomic writes so a crash never leaves a half-written
// record behind.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hangar-launcher/hangar/internal/errors"
)

// Record is the persisted state of one library entity. The tool owns the
// authoritative install database; this record carries what hangar needs
// between runs without shelling out.
type Record struct {
	AppName     string    `json:"app_name"`
	Title       string    `json:"title,omitempty"`
	Installed   bool      `json:"installed"`
	InstallPath string    `json:"install_path,omitempty"`
	Version     string    `json:"version,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	DiskSize    int64     `json:"disk_size,omitempty"`
	WinePrefix  string    `json:"wine_prefix,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is a file-backed record collection. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Get loads the record for app. Returns ErrRecordNotFound when no record
// exists.
func (s *Store) Get(app string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.read(app)
}

// Save writes the record, stamping UpdatedAt. Existing records are
// replaced.
func (s *Store) Save(rec Record) error {
	if rec.AppName == "" {
		return fmt.Errorf("record has no app name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	return s.write(rec)
}

// Update applies fn to the stored record for app under the store lock and
// persists the result. When no record exists yet fn receives a zero Record
// with AppName set, so callers can upsert.
func (s *Store) Update(app string, fn func(*Record)) error {
	if app == "" {
		return fmt.Errorf("record has no app name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(app)
	if err != nil {
		if !errors.Is(err, errors.ErrRecordNotFound) {
			return err
		}
		rec = Record{AppName: app}
	}

	fn(&rec)
	rec.AppName = app
	rec.UpdatedAt = time.Now()
	return s.write(rec)
}

// Delete removes the record for app. Returns ErrRecordNotFound when no
// record exists.
func (s *Store) Delete(app string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(app)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", errors.ErrRecordNotFound, app)
		}
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns all records sorted by app name. Files that fail to decode
// are skipped rather than failing the whole listing.
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.AppName == "" {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].AppName < records[j].AppName
	})
	return records, nil
}

// read loads and decodes one record. Callers hold the lock.
func (s *Store) read(app string) (Record, error) {
	data, err := os.ReadFile(s.path(app))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", errors.ErrRecordNotFound, app)
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record %s: %w", app, err)
	}
	return rec, nil
}

// write encodes and atomically persists one record. Callers hold the lock.
func (s *Store) write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return atomicWriteFile(s.path(rec.AppName), data, 0644)
}

// path maps an app name to its record file.
func (s *Store) path(app string) string {
	return filepath.Join(s.dir, sanitizeName(app)+".json")
}

// sanitizeName keeps app-named files inside the store directory.
func sanitizeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_", "..", "_")
	return r.Replace(name)
}

// atomicWriteFile writes via a temp file in the same directory and renames
// into place, so readers never observe a partial record.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}
