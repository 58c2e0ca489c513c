// Adapted from https://github.com/thought-machine/please
// Copyright Thought Machine, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"

	"github.com/pacquet/pacquet/internal/turbopath"
)

// dirPermissions are the permission bits applied to directories recreated
// during a recursive copy or link.
const dirPermissions = 0775

// CopyOrLinkFile either copies or hardlinks a file based on the link
// argument. Falls back to a copy if link fails and fallback is true.
func CopyOrLinkFile(from *LstatCachedFile, to string, link bool, fallback bool) error {
	fromMode, err := from.GetMode()
	if err != nil {
		return err
	}
	if (fromMode & os.ModeSymlink) != 0 {
		// Create an equivalent symlink in the new location.
		dest, err := from.Path.Readlink()
		if err != nil {
			return err
		}
		// Make sure the link we're about to create doesn't already exist
		if err := os.Remove(to); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return os.Symlink(dest, to)
	}
	if link {
		if err := from.Path.Link(to); err == nil || !fallback {
			return err
		}
	}
	return CopyFile(from.Path, turbopath.AbsoluteSystemPathFromUpstream(to))
}

// CopyFile copies a single regular file from `from` to `to`, creating
// `to`'s parent directory if necessary and preserving the source file's
// permission bits.
func CopyFile(from turbopath.AbsoluteSystemPath, to turbopath.AbsoluteSystemPath) error {
	info, err := from.Stat()
	if err != nil {
		return err
	}

	fromFile, err := from.Open()
	if err != nil {
		return err
	}
	defer fromFile.Close()

	if err := to.EnsureDir(); err != nil {
		return err
	}

	toFile, err := to.OpenFile(os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(toFile, fromFile); err != nil {
		toFile.Close()
		_ = to.Remove()
		return err
	}

	return toFile.Close()
}

// RecursiveCopy copies either a single file or a directory tree from
// `from` to `to` without hardlinking.
func RecursiveCopy(from turbopath.AbsoluteSystemPath, to turbopath.AbsoluteSystemPath) error {
	return RecursiveCopyOrLinkFile(from, to, false, false)
}

// RecursiveCopyOrLinkFile recursively copies or links a file or directory.
// If 'link' is true then regular files are hardlinked instead of copied.
// If 'fallback' is true then a failed link falls back to a copy.
func RecursiveCopyOrLinkFile(from turbopath.AbsoluteSystemPath, to turbopath.AbsoluteSystemPath, link bool, fallback bool) error {
	statedFrom := LstatCachedFile{Path: from}
	fromType, err := statedFrom.GetType()
	if err != nil {
		return err
	}

	if fromType.IsDir() {
		fromStr := from.ToString()
		return WalkMode(fromStr, func(name string, isDir bool, fileType os.FileMode) error {
			dest := filepath.Join(to.ToString(), name[len(fromStr):])
			if isDir {
				return os.MkdirAll(dest, dirPermissions)
			}
			entry := turbopath.AbsoluteSystemPathFromUpstream(name)
			if isSame, err := from.SameFile(entry); err != nil {
				return err
			} else if isSame {
				return nil
			}
			// name is absolute, (originates from godirwalk)
			return CopyOrLinkFile(&LstatCachedFile{Path: entry, fileType: &fileType}, dest, link, fallback)
		})
	}
	return CopyOrLinkFile(&statedFrom, to.ToString(), link, fallback)
}

// Walk implements an equivalent to filepath.Walk.
// It's implemented over github.com/karrick/godirwalk but the provided
// interface doesn't use that to make it a little easier to handle.
func Walk(rootPath string, callback func(name string, isDir bool) error) error {
	return WalkMode(rootPath, func(name string, isDir bool, mode os.FileMode) error {
		return callback(name, isDir)
	})
}

// WalkMode is like Walk but the callback receives an additional type
// specifying the file mode type. N.B. This only includes the bits of the
// mode that determine the mode type, not the permissions.
func WalkMode(rootPath string, callback func(name string, isDir bool, mode os.FileMode) error) error {
	return godirwalk.Walk(rootPath, &godirwalk.Options{
		Callback: func(name string, info *godirwalk.Dirent) error {
			// currently we support symlinked files, but not symlinked directories:
			// for copying, we mkdir and bail if we encounter a symlink to a
			// directory; for enumerating packages, we report the symlink but
			// don't follow inside it.
			isDir, err := info.IsDirOrSymlinkToDir()
			if err != nil {
				pathErr := &os.PathError{}
				if errors.As(err, &pathErr) {
					// If we have a broken link, skip this entry
					return godirwalk.SkipThis
				}
				return err
			}
			return callback(name, isDir, info.ModeType())
		},
		ErrorCallback: func(pathname string, err error) godirwalk.ErrorAction {
			pathErr := &os.PathError{}
			if errors.As(err, &pathErr) {
				return godirwalk.SkipNode
			}
			return godirwalk.Halt
		},
		Unsorted:            true,
		AllowNonDirectory:   true,
		FollowSymbolicLinks: false,
	})
}
