//go:build linux

package desktop

import (
	"fmt"
	"os"
	"path/filepath"
)

// applicationsDir resolves the XDG applications directory.
func applicationsDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "applications")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "applications")
}

// Add writes the shortcut for e, replacing an existing one.
func (i *Integrator) Add(e Entry) error {
	if i.dir == "" {
		return fmt.Errorf("no applications directory available")
	}
	if err := os.MkdirAll(i.dir, 0755); err != nil {
		return fmt.Errorf("create applications directory: %w", err)
	}

	comment := e.Comment
	if comment == "" {
		comment = "Launch via hangar"
	}
	content := fmt.Sprintf(`[Desktop Entry]
Type=Application
Name=%s
Comment=%s
Exec=%s launch %s
Icon=hangar
Terminal=false
Categories=Game;
`, e.Title, comment, i.exe, e.AppName)

	path := i.Path(e.AppName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write desktop entry: %w", err)
	}

	i.log.Debug("desktop entry written", "app", e.AppName, "path", path)
	return nil
}

// Remove deletes the shortcut for app. A missing shortcut is success.
func (i *Integrator) Remove(app string) error {
	path := i.Path(app)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove desktop entry: %w", err)
	}

	i.log.Debug("desktop entry removed", "app", app, "path", path)
	return nil
}
