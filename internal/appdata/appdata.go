// Package appdata locates the per-OS application data directory used for
// default log file paths. This is a small, self-contained path lookup;
// no example in the pack reaches for a third-party library for it, so it
// stays on the standard library (see DESIGN.md).
package appdata

import (
	"os"
	"path/filepath"
	"runtime"
)

// Dir returns the default application data directory for appName.
func Dir(appName string) string {
	if appName == "" {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(".", appName)
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", appName)
		}
	default:
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "."+appName)
		}
	}
	return filepath.Join(".", appName)
}
