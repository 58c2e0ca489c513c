// Package fs collects low-level filesystem helpers shared by the store,
// tarball, and installer layers: existence checks, directory creation, and
// getting a sane current working directory.
package fs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// GetCwd returns the process's current working directory as an
// AbsoluteSystemPath, with symlinks resolved — pnpm and npm both operate
// on the resolved cwd so that virtual-store symlink targets compare
// equal regardless of which symlinked path the user invoked pacquet from.
func GetCwd() (turbopath.AbsoluteSystemPath, error) {
	raw, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "invalid working directory")
	}
	resolved, err := filepath.EvalSymlinks(raw)
	if err != nil {
		return "", errors.Wrap(err, "evaluating symlinks in cwd")
	}
	return turbopath.CheckedToAbsoluteSystemPath(resolved)
}

// FileExists returns true if the given path exists and is a file.
func FileExists(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && !info.IsDir()
}

// PathExists returns true if the given path exists in any form.
func PathExists(filename string) bool {
	_, err := os.Lstat(filename)
	return err == nil
}

// IsSymlink returns true if the given path exists and is a symlink.
func IsSymlink(filename string) bool {
	info, err := os.Lstat(filename)
	return err == nil && (info.Mode()&os.ModeSymlink) != 0
}
