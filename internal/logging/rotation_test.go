package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterNoRotationWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	data := bytes.Repeat([]byte("x"), 4096)
	for i := 0; i < 10; i++ {
		if _, err := rw.Write(data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("backup file should not exist when rotation is disabled")
	}
	if rw.CurrentSize() != int64(len(data)*10) {
		t.Errorf("CurrentSize = %d, want %d", rw.CurrentSize(), len(data)*10)
	}
}

func TestRotatingWriterRotatesAtMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	// Two writes of 600KB exceed the 1MB limit on the second write.
	chunk := bytes.Repeat([]byte("a"), 600*1024)
	if _, err := rw.Write(chunk); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if _, err := rw.Write(chunk); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected backup file after rotation: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() != int64(len(chunk)) {
		t.Errorf("current log size = %d, want %d", info.Size(), len(chunk))
	}
}

func TestRotatingWriterShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("b"), 700*1024)
	// Four writes force at least three rotations.
	for i := 0; i < 4; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf(".1 backup missing: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf(".2 backup missing: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error(".3 backup should not exist with MaxBackups=2")
	}
}

func TestRotatingWriterWriteAfterClose(t *testing.T) {
	dir := t.TempDir()

	rw, err := NewRotatingWriter(filepath.Join(dir, "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := rw.Write([]byte("data")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestCompressFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.log")

	content := strings.Repeat("log line\n", 100)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	compressFile(path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original file should be removed after compression")
	}

	gz, err := os.Open(path + ".gz")
	if err != nil {
		t.Fatalf("compressed file missing: %v", err)
	}
	defer gz.Close()

	reader, err := gzip.NewReader(gz)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if string(decompressed) != content {
		t.Error("decompressed content does not match original")
	}
}
