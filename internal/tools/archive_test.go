package tools

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/progress"
)

type tarEntry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     e.mode,
			Typeflag: e.typeflag,
			Linkname: e.linkname,
		}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.name, err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, e.body); err != nil {
				t.Fatalf("tar body %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// runnerArchive builds the usual release shape: one top-level directory
// holding the whole build.
func runnerArchive(t *testing.T, root string, files map[string]string) []byte {
	t.Helper()
	entries := []tarEntry{{name: root + "/", mode: 0755, typeflag: tar.TypeDir}}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entries = append(entries, tarEntry{
			name:     root + "/" + name,
			body:     files[name],
			mode:     0644,
			typeflag: tar.TypeReg,
		})
	}
	return buildTarGz(t, entries)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("zip header %s: %v", name, err)
		}
		if _, err := io.WriteString(w, files[name]); err != nil {
			t.Fatalf("zip body %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

func TestUntarGzExtractsTree(t *testing.T) {
	archive := buildTarGz(t, []tarEntry{
		{name: "root/", mode: 0755, typeflag: tar.TypeDir},
		{name: "root/bin/wine", body: "ELF", mode: 0755, typeflag: tar.TypeReg},
		{name: "root/version", body: "GE-Proton10-3\n", mode: 0644, typeflag: tar.TypeReg},
		{name: "root/bin/wine64", linkname: "wine", typeflag: tar.TypeSymlink},
	})
	path := writeArchive(t, "build.tar.gz", archive)

	dest := t.TempDir()
	var snaps []progress.Snapshot
	err := untarGz(context.Background(), path, dest, func(s progress.Snapshot) { snaps = append(snaps, s) })
	if err != nil {
		t.Fatalf("untarGz: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "root", "version"))
	if err != nil || string(data) != "GE-Proton10-3\n" {
		t.Fatalf("version file = %q, %v", data, err)
	}
	info, err := os.Stat(filepath.Join(dest, "root", "bin", "wine"))
	if err != nil {
		t.Fatalf("wine binary missing: %v", err)
	}
	if info.Mode().Perm() != 0755 {
		t.Errorf("wine mode = %v, want 0755", info.Mode().Perm())
	}
	link, err := os.Readlink(filepath.Join(dest, "root", "bin", "wine64"))
	if err != nil || link != "wine" {
		t.Errorf("symlink = %q, %v", link, err)
	}

	if len(snaps) == 0 {
		t.Fatal("expected progress snapshots")
	}
	last := snaps[len(snaps)-1]
	if last.TotalBytes != int64(len(archive)) || last.DownloadedBytes <= 0 {
		t.Errorf("progress should track archive bytes: %+v", last)
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].DownloadedBytes < snaps[i-1].DownloadedBytes {
			t.Fatalf("progress went backwards at snapshot %d", i)
		}
	}
}

func TestUnzipExtractsTree(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"dxvk-2.7/x64/dxgi.dll":  "MZ64",
		"dxvk-2.7/x32/dxgi.dll":  "MZ32",
		"dxvk-2.7/setup_dxvk.sh": "#!/bin/sh\n",
	})
	path := writeArchive(t, "dxvk.zip", archive)

	dest := t.TempDir()
	var snaps []progress.Snapshot
	err := unzip(context.Background(), path, dest, func(s progress.Snapshot) { snaps = append(snaps, s) })
	if err != nil {
		t.Fatalf("unzip: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "dxvk-2.7", "x64", "dxgi.dll"))
	if err != nil || string(data) != "MZ64" {
		t.Fatalf("extracted file = %q, %v", data, err)
	}

	last := snaps[len(snaps)-1]
	if last.Percentage != 100 || last.TotalBytes != 3 || last.DownloadedBytes != 3 {
		t.Errorf("file-count progress wrong: %+v", last)
	}
}

func TestUnpackRejectsEscapingEntries(t *testing.T) {
	archive := buildTarGz(t, []tarEntry{
		{name: "../evil", body: "pwned", mode: 0644, typeflag: tar.TypeReg},
	})
	path := writeArchive(t, "evil.tar.gz", archive)

	dest := filepath.Join(t.TempDir(), "dest")
	if err := untarGz(context.Background(), path, dest, nil); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dest), "evil")); !os.IsNotExist(err) {
		t.Error("escaping entry must not be written")
	}
}

func TestUntarGzHonorsCancellation(t *testing.T) {
	archive := runnerArchive(t, "root", map[string]string{"a": "1"})
	path := writeArchive(t, "build.tar.gz", archive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := untarGz(ctx, path, t.TempDir(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUnpackUnsupportedFormat(t *testing.T) {
	m := &Manager{}
	err := m.unpack(context.Background(), filepath.Join(t.TempDir(), "build.rar"), t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected unsupported-format error")
	}
}

type fakeTar struct {
	last    proc.Request
	outcome proc.Outcome
	err     error
}

func (f *fakeTar) Run(_ context.Context, req proc.Request, _ proc.OutputFunc) (proc.Outcome, error) {
	f.last = req
	return f.outcome, f.err
}

func TestUntarXzDelegatesToSystemTar(t *testing.T) {
	ft := &fakeTar{}
	m := &Manager{runner: ft}
	dest := t.TempDir()

	if err := m.unpack(context.Background(), "/downloads/wine.tar.xz", dest, nil); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	want := []string{"-xJf", "/downloads/wine.tar.xz", "-C", dest}
	if ft.last.Path != "tar" || !reflect.DeepEqual(ft.last.Args, want) {
		t.Errorf("tar invocation = %s %v, want tar %v", ft.last.Path, ft.last.Args, want)
	}

	ft.outcome = proc.Outcome{ExitCode: 2}
	if err := m.unpack(context.Background(), "/downloads/wine.tar.xz", dest, nil); err == nil {
		t.Error("expected error when tar fails")
	}

	ft.outcome = proc.Outcome{Killed: true}
	err := m.unpack(context.Background(), "/downloads/wine.tar.xz", dest, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("killed tar should map to cancellation, got %v", err)
	}
}

func TestStripSingleRoot(t *testing.T) {
	staging := t.TempDir()
	inner := filepath.Join(staging, "GE-Proton10-3")
	if err := os.MkdirAll(inner, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	root, err := stripSingleRoot(staging)
	if err != nil || root != inner {
		t.Errorf("single dir: root = %q, %v, want %q", root, err, inner)
	}

	// A stray file next to the directory means there is no root to strip.
	if err := os.WriteFile(filepath.Join(staging, "README"), []byte("hi"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root, err = stripSingleRoot(staging)
	if err != nil || root != staging {
		t.Errorf("mixed entries: root = %q, %v, want %q", root, err, staging)
	}

	flat := t.TempDir()
	for _, dir := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(flat, dir), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	root, err = stripSingleRoot(flat)
	if err != nil || root != flat {
		t.Errorf("two dirs: root = %q, %v, want %q", root, err, flat)
	}
}

func TestSafeJoin(t *testing.T) {
	dest := filepath.Join("/", "opt", "tools")
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain file", "proton", false},
		{"nested", "files/bin/wine", false},
		{"dot segments resolve inside", "files/../proton", false},
		{"parent escape", "../evil", true},
		{"deep escape", "a/../../evil", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := safeJoin(dest, tt.entry)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("safeJoin(%q) should fail, got %q", tt.entry, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("safeJoin(%q): %v", tt.entry, err)
			}
			if !strings.HasPrefix(got, dest+string(os.PathSeparator)) {
				t.Errorf("result %q escapes %q", got, dest)
			}
		})
	}
}

func TestDirSize(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a"), []byte("abc"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b"), []byte("defgh"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := dirSize(root); got != 8 {
		t.Errorf("dirSize = %d, want 8", got)
	}
}
