package library

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hangar-launcher/hangar/internal/errors"
	"github.com/hangar-launcher/hangar/internal/legendary"
	"github.com/hangar-launcher/hangar/internal/logging"
	"github.com/hangar-launcher/hangar/internal/relay"
	"github.com/hangar-launcher/hangar/internal/store"
)

// Move relocates an installed title under dstRoot, keeping its directory
// name. The content move happens here, a rename with a copy-and-delete
// fallback across filesystems; the tool is then told about the new
// location through its move verb in config-only mode. The record updates
// only after the content is in place, so a failed move leaves both the
// original directory and the record untouched.
func (m *Manager) Move(app, dstRoot string) (string, error) {
	rec, err := m.store.Get(app)
	if err != nil || !rec.Installed {
		return "", fmt.Errorf("%w: %s", errors.ErrNotInstalled, app)
	}
	if rec.InstallPath == "" {
		return "", errors.NewGameError("no recorded install path", nil).
			WithApp(app).WithOperation(opMove)
	}
	if dstRoot == "" {
		return "", errors.NewGameError("destination required", nil).
			WithApp(app).WithOperation(opMove)
	}

	src := rec.InstallPath
	dst := filepath.Join(dstRoot, filepath.Base(src))

	return m.startOp(app, toolOp{
		verb:   opMove,
		status: relay.StatusMoving,
		// The files were already relocated by prepare; the spawn only
		// rewrites the tool's config and cannot fail the move.
		args:         m.tool.MoveArgs(app, dstRoot, true),
		metadataOnly: true,
		prepare: func(ctx context.Context, log *logging.Logger) error {
			return relocate(ctx, src, dst, log)
		},
		commit: func(ctx context.Context, info legendary.InstallInfo) error {
			return m.store.Update(app, func(r *store.Record) {
				r.InstallPath = dst
			})
		},
		effects: m.desktopAddOnSuccess(app),
	})
}

// relocate moves src to dst, trying a rename first and falling back to a
// copy and delete when the rename fails, typically across filesystems.
// On failure the source stays complete and any partial destination is
// removed.
func relocate(ctx context.Context, src, dst string, log *logging.Logger) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source missing: %w", err)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("destination already exists: %s", dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination root: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		log.Info("renamed install directory", "src", src, "dst", dst)
		return nil
	}
	log.Debug("rename failed, copying", "error", err)

	if err := copyTree(ctx, src, dst); err != nil {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			log.Warn("partial destination cleanup failed", "error", rmErr)
		}
		return err
	}
	if err := os.RemoveAll(src); err != nil {
		// The copy is complete; a stuck source is duplicated data, not
		// a failed move.
		log.Warn("source cleanup failed after copy", "src", src, "error", err)
	}
	log.Info("copied install directory", "src", src, "dst", dst)
	return nil
}

// copyTree copies the directory tree at src to dst, checking for
// cancellation between entries.
func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case !info.Mode().IsRegular():
			// Sockets and devices have no business in a game
			// directory; skip them rather than fail the move.
			return nil
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
