package service

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Bundled sidecar binaries are named by target triple, e.g.
// kubilitics-ai-x86_64-apple-darwin. Resolution prefers the exact triple in
// the candidate directories, then any executable with the base name prefix,
// then PATH, in that order.

func archName(goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return goarch
	}
}

func vendorName(goos string) string {
	switch goos {
	case "darwin", "ios":
		return "apple"
	case "windows":
		return "pc"
	default:
		return "unknown"
	}
}

func osSuffix(goos string) string {
	switch goos {
	case "darwin":
		return "darwin"
	case "linux":
		return "linux-gnu"
	case "windows":
		return "windows-msvc"
	default:
		return goos
	}
}

// expectedBinaryName builds the platform-specific bundled name for base.
func expectedBinaryName(base, goos, goarch string) string {
	name := base + "-" + archName(goarch) + "-" + vendorName(goos) + "-" + osSuffix(goos)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.HasSuffix(strings.ToLower(path), ".exe")
	}
	return info.Mode().Perm()&0o111 != 0
}

// findInDir returns the best match for base inside dir: the exact triple name
// when present, otherwise the first executable named base, base.exe or
// base-<anything>.
func findInDir(base, dir string) (string, bool) {
	expected := expectedBinaryName(base, runtime.GOOS, runtime.GOARCH)
	if p := filepath.Join(dir, expected); isExecutable(p) {
		return p, true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		name := e.Name()
		if name != base && name != base+".exe" && !strings.HasPrefix(name, base+"-") {
			continue
		}
		p := filepath.Join(dir, name)
		if isExecutable(p) {
			return p, true
		}
	}
	return "", false
}

// ResolveBinary locates the executable for base. Candidate directories are
// searched first (exact triple, then prefix scan), then PATH. As a last
// resort the bare base name is returned so the spawn error names the missing
// binary instead of an empty path.
func ResolveBinary(base string, dirs []string) string {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if p, ok := findInDir(base, dir); ok {
			return p
		}
	}
	if p, err := exec.LookPath(base); err == nil {
		return p
	}
	return base
}

// BinaryAvailable reports whether base resolves to a real file. Used to gate
// optional services before any spawn attempt.
func BinaryAvailable(base string, dirs []string) bool {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if _, ok := findInDir(base, dir); ok {
			return true
		}
	}
	_, err := exec.LookPath(base)
	return err == nil
}

// DefaultSearchDirs are the directories bundled binaries ship in: next to the
// supervisor's own executable.
func DefaultSearchDirs() []string {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	return []string{filepath.Dir(exe)}
}
