package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hangar-launcher/hangar/internal/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	rec := Record{
		AppName:     "Salt",
		Title:       "Celeste",
		Installed:   true,
		InstallPath: "/games/epic/Celeste",
		Version:     "1.4.0.0",
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := s.Get("Salt")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Title != "Celeste" || !got.Installed || got.InstallPath != "/games/epic/Celeste" {
		t.Errorf("Get() = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Save() should stamp UpdatedAt")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("never-saved")
	if !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("Get() error = %v, want ErrRecordNotFound", err)
	}
}

func TestSaveRequiresAppName(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{Title: "nameless"}); err == nil {
		t.Error("Save() should reject a record without an app name")
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{AppName: "Salt", Installed: false}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(Record{AppName: "Salt", Installed: true, Version: "2.0"}); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, err := s.Get("Salt")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.Installed || got.Version != "2.0" {
		t.Errorf("Get() after replace = %+v", got)
	}
}

func TestUpdateExisting(t *testing.T) {
	s := newTestStore(t)
	s.Save(Record{AppName: "Salt", Installed: true, InstallPath: "/old"}) //nolint:errcheck

	err := s.Update("Salt", func(r *Record) {
		r.InstallPath = "/new"
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, _ := s.Get("Salt")
	if got.InstallPath != "/new" {
		t.Errorf("InstallPath = %q, want /new", got.InstallPath)
	}
	if !got.Installed {
		t.Error("Update() should preserve fields fn does not touch")
	}
}

func TestUpdateUpserts(t *testing.T) {
	s := newTestStore(t)

	err := s.Update("Fresh", func(r *Record) {
		r.Installed = true
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := s.Get("Fresh")
	if err != nil {
		t.Fatalf("Get() after upsert error: %v", err)
	}
	if got.AppName != "Fresh" || !got.Installed {
		t.Errorf("upserted record = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	s.Save(Record{AppName: "Salt"}) //nolint:errcheck

	if err := s.Delete("Salt"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get("Salt"); !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrRecordNotFound", err)
	}

	if err := s.Delete("Salt"); !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRecordNotFound", err)
	}
}

func TestListSortedByAppName(t *testing.T) {
	s := newTestStore(t)
	for _, app := range []string{"Zebra", "Apple", "Mango"} {
		if err := s.Save(Record{AppName: app}); err != nil {
			t.Fatalf("Save(%s) error: %v", app, err)
		}
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	want := []string{"Apple", "Mango", "Zebra"}
	if len(records) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(records), len(want))
	}
	for i, app := range want {
		if records[i].AppName != app {
			t.Errorf("List()[%d].AppName = %q, want %q", i, records[i].AppName, app)
		}
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	s.Save(Record{AppName: "Good"}) //nolint:errcheck

	if err := os.WriteFile(filepath.Join(s.dir, "broken.json"), []byte("{nope"), 0644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("not a record"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 1 || records[0].AppName != "Good" {
		t.Errorf("List() = %+v, want only the valid record", records)
	}
}

func TestPathSanitizesAppNames(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(Record{AppName: "../escape/attempt"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			t.Errorf("record write created a directory %q inside the store", e.Name())
		}
	}

	got, err := s.Get("../escape/attempt")
	if err != nil {
		t.Fatalf("Get() with hostile name error: %v", err)
	}
	if got.AppName != "../escape/attempt" {
		t.Errorf("AppName = %q", got.AppName)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			app := fmt.Sprintf("app-%d", id)
			for j := 0; j < 10; j++ {
				s.Save(Record{AppName: app, Installed: j%2 == 0}) //nolint:errcheck
				s.Get(app)                                        //nolint:errcheck
				s.List()                                          //nolint:errcheck
			}
		}(i)
	}
	wg.Wait()

	records, err := s.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("List() returned %d records, want 10", len(records))
	}
}
