// Package fsperm holds test assertions for files that hold key material.
package fsperm

import (
	"os"
	"runtime"
	"testing"
)

// AssertPrivateFile fails unless path is a regular file readable only by
// its owner. Permission bits are not checked on Windows.
func AssertPrivateFile(t testing.TB, path string) {
	t.Helper()
	assertMode(t, path, false, 0o600)
}

// AssertPrivateDir is the directory counterpart of AssertPrivateFile.
func AssertPrivateDir(t testing.TB, dir string) {
	t.Helper()
	assertMode(t, dir, true, 0o700)
}

func assertMode(t testing.TB, path string, dir bool, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.IsDir() != dir {
		t.Fatalf("%s: directory=%v, want %v", path, info.IsDir(), dir)
	}
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("%s: mode %04o, want %04o", path, perm, want)
	}
}
