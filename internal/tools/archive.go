package tools

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hangar-launcher/hangar/internal/proc"
	"github.com/hangar-launcher/hangar/internal/progress"
)

// unpack extracts archive into dest, publishing monotonic progress.
// Zip archives report exact file counts from the central directory;
// tar.gz reports consumed archive bytes; the tar subprocess used for
// .tar.xz reports nothing between start and exit.
func (m *Manager) unpack(ctx context.Context, archive, dest string, publish func(progress.Snapshot)) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	switch {
	case strings.HasSuffix(archive, ".tar.gz"), strings.HasSuffix(archive, ".tgz"):
		return untarGz(ctx, archive, dest, publish)
	case strings.HasSuffix(archive, ".zip"):
		return unzip(ctx, archive, dest, publish)
	case strings.HasSuffix(archive, ".tar.xz"):
		return m.untarXz(ctx, archive, dest)
	}
	return fmt.Errorf("unsupported archive format: %s", filepath.Base(archive))
}

// untarGz streams a gzip tarball to disk. Progress comes from compressed
// bytes consumed, which only moves forward.
func untarGz(ctx context.Context, archive, dest string, publish func(progress.Snapshot)) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	counter := &countingReader{r: f}

	gz, err := gzip.NewReader(counter)
	if err != nil {
		return fmt.Errorf("gzip open: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFileFrom(target, tr, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeLink:
			src, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Link(src, target); err != nil {
				return err
			}
		default:
			// Character devices and the like do not belong in a
			// runner build.
			continue
		}

		if publish != nil {
			publish(progress.Snapshot{
				Percentage:      float64(counter.n) / float64(info.Size()) * 100,
				DownloadedBytes: counter.n,
				TotalBytes:      info.Size(),
			})
		}
	}
	return nil
}

// unzip extracts a zip archive. The central directory gives an exact
// entry count, so progress is a true file counter.
func unzip(ctx context.Context, archive, dest string, publish func(progress.Snapshot)) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("zip open: %w", err)
	}
	defer r.Close()

	total := len(r.File)
	for i, zf := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, zf.Mode().Perm()); err != nil {
				return err
			}
		} else {
			rc, err := zf.Open()
			if err != nil {
				return err
			}
			err = writeFileFrom(target, rc, zf.Mode().Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}

		if publish != nil {
			publish(progress.Snapshot{
				Percentage:      float64(i+1) / float64(total) * 100,
				DownloadedBytes: int64(i + 1),
				TotalBytes:      int64(total),
			})
		}
	}
	return nil
}

// untarXz shells out to tar for xz archives; pure-Go xz support is not
// worth carrying for one format the system tar handles.
func (m *Manager) untarXz(ctx context.Context, archive, dest string) error {
	outcome, err := m.runner.Run(ctx, proc.Request{
		Path: "tar",
		Args: []string{"-xJf", archive, "-C", dest},
	}, nil)
	if err != nil {
		return fmt.Errorf("tar: %w", err)
	}
	if outcome.Killed {
		return context.Canceled
	}
	if outcome.ExitCode != 0 {
		return fmt.Errorf("tar exited with code %d", outcome.ExitCode)
	}
	return nil
}

// writeFileFrom creates target (and its parents) from r.
func writeFileFrom(target string, r io.Reader, perm fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// safeJoin joins name under dest, rejecting entries that would escape
// it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.Clean(name))
	if target != dest && !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}

// countingReader tracks how many bytes have been read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// stripSingleRoot returns the directory that should become the install
// dir: when staging holds exactly one directory and nothing else (the
// usual "GE-Proton9-7/" top level inside release archives), that inner
// directory is it; otherwise staging itself.
func stripSingleRoot(staging string) (string, error) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(staging, entries[0].Name()), nil
	}
	return staging, nil
}

// dirSize sums the regular-file bytes under root.
func dirSize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}
