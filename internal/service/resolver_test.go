package service

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedBinaryName(t *testing.T) {
	cases := []struct {
		goos, goarch string
		want         string
	}{
		{"darwin", "arm64", "kcli-aarch64-apple-darwin"},
		{"darwin", "amd64", "kcli-x86_64-apple-darwin"},
		{"linux", "amd64", "kcli-x86_64-unknown-linux-gnu"},
		{"windows", "amd64", "kcli-x86_64-pc-windows-msvc.exe"},
		{"windows", "386", "kcli-i686-pc-windows-msvc.exe"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, expectedBinaryName("kcli", c.goos, c.goarch))
	}
}

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return p
}

func TestResolveBinaryPrefersExactTriple(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits are unix-specific")
	}
	dir := t.TempDir()
	writeExecutable(t, dir, "kcli-other")
	exact := writeExecutable(t, dir, expectedBinaryName("kcli", runtime.GOOS, runtime.GOARCH))

	assert.Equal(t, exact, ResolveBinary("kcli", []string{dir}))
}

func TestResolveBinaryPrefixFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits are unix-specific")
	}
	dir := t.TempDir()
	fallback := writeExecutable(t, dir, "kcli-v2")

	assert.Equal(t, fallback, ResolveBinary("kcli", []string{dir}))
}

func TestResolveBinarySkipsNonExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits are unix-specific")
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "kcli")
	require.NoError(t, os.WriteFile(p, []byte("not a binary"), 0o644))

	// Non-executable file in the dir is ignored; resolution moves on to PATH
	// and ultimately returns the bare name.
	got := ResolveBinary("kcli-definitely-missing", []string{dir})
	assert.Equal(t, "kcli-definitely-missing", got)
}

func TestResolveBinaryPathLookup(t *testing.T) {
	// "sh" exists on any unix PATH.
	if runtime.GOOS == "windows" {
		t.Skip("unix PATH lookup")
	}
	got := ResolveBinary("sh", nil)
	assert.True(t, filepath.IsAbs(got), "expected absolute path, got %q", got)
}

func TestBinaryAvailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits are unix-specific")
	}
	dir := t.TempDir()
	assert.False(t, BinaryAvailable("kubilitics-ai", []string{dir}))

	writeExecutable(t, dir, "kubilitics-ai-helper")
	assert.True(t, BinaryAvailable("kubilitics-ai", []string{dir}))
	assert.True(t, BinaryAvailable("sh", nil))
}
