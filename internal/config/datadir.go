package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the per-user application data directory and creates it
// best-effort. The child services store their local database under it.
func DataDir() string {
	dir := baseDataDir(runtime.GOOS)
	if dir == "" {
		dir = os.TempDir()
	}
	dir = filepath.Join(dir, appDirName)
	_ = os.MkdirAll(dir, 0o750)
	return dir
}

func baseDataDir(goos string) string {
	switch goos {
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support")
		}
	case "windows":
		if d := os.Getenv("LOCALAPPDATA"); d != "" {
			return d
		}
	default:
		if d := os.Getenv("XDG_DATA_HOME"); d != "" {
			return d
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share")
		}
	}
	return ""
}
